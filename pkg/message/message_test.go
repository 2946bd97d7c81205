package message

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	contractAddr = common.HexToAddress("0xffffffffffffffffffffffffffffffffffffffff")
	ownerAddr    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	targetAddr   = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

// keccak256("")
const emptyContentHash = "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"

func TestBuildBinding_GoldenVector(t *testing.T) {
	msg := BuildBinding(contractAddr, ownerAddr)
	require.Len(t, msg, BindingMessageLength)

	expected := "0x" + strings.Repeat("ff", 20) + strings.Repeat("11", 20)
	assert.Equal(t, expected, msg.Hex())
}

func TestBuildBinding_OrderMatters(t *testing.T) {
	a := BuildBinding(contractAddr, ownerAddr)
	b := BuildBinding(ownerAddr, contractAddr)
	assert.NotEqual(t, a, b)
}

func TestBuildAction_GoldenVector(t *testing.T) {
	msg := BuildAction(ownerAddr, uint256.NewInt(1), targetAddr, uint256.NewInt(0x0102), []byte{})
	require.Len(t, msg, ActionMessageLength)

	expected := "0x" +
		strings.Repeat("11", 20) +
		strings.Repeat("00", 31) + "01" +
		strings.Repeat("22", 20) +
		strings.Repeat("00", 30) + "0102" +
		emptyContentHash
	assert.Equal(t, expected, msg.Hex())
}

func TestBuildAction_ContentIsHashed(t *testing.T) {
	small := BuildAction(ownerAddr, uint256.NewInt(0), ownerAddr, uint256.NewInt(0), []byte("ipfs://foo"))
	large := BuildAction(ownerAddr, uint256.NewInt(0), ownerAddr, uint256.NewInt(0), []byte(strings.Repeat("x", 1<<16)))

	assert.Len(t, small, ActionMessageLength)
	assert.Len(t, large, ActionMessageLength)
	assert.Equal(t, HashContent([]byte("ipfs://foo")).Bytes(), []byte(small[ActionMessageLength-HashLength:]))
}

func TestBuildAction_FieldsAreDistinct(t *testing.T) {
	base := BuildAction(ownerAddr, uint256.NewInt(0), targetAddr, uint256.NewInt(0), []byte("a"))

	tests := []struct {
		name string
		msg  CanonicalMessage
	}{
		{"actor nonce", BuildAction(ownerAddr, uint256.NewInt(1), targetAddr, uint256.NewInt(0), []byte("a"))},
		{"target nonce", BuildAction(ownerAddr, uint256.NewInt(0), targetAddr, uint256.NewInt(1), []byte("a"))},
		{"swapped parties", BuildAction(targetAddr, uint256.NewInt(0), ownerAddr, uint256.NewInt(0), []byte("a"))},
		{"content", BuildAction(ownerAddr, uint256.NewInt(0), targetAddr, uint256.NewInt(0), []byte("b"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base, tt.msg)
		})
	}
}

func TestBuildActionWithHash_MatchesBuildAction(t *testing.T) {
	content := []byte("ipfs://bar")
	a := BuildAction(ownerAddr, uint256.NewInt(7), targetAddr, uint256.NewInt(3), content)
	b := BuildActionWithHash(ownerAddr, uint256.NewInt(7), targetAddr, uint256.NewInt(3), HashContent(content))
	assert.Equal(t, a, b)
}

func TestBuildAction_MaxNonce(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	msg := BuildAction(ownerAddr, max, targetAddr, max, nil)
	assert.Equal(t, strings.Repeat("ff", 32), hexutil.Encode(msg[20:52])[2:])
}

func TestParseNonce(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected uint64
		wantErr  bool
	}{
		{"zero", "0", 0, false},
		{"decimal", "42", 42, false},
		{"hex", "0x2a", 42, false},
		{"upper hex prefix", "0X2A", 42, false},
		{"padded", " 7 ", 7, false},
		{"negative", "-1", 0, true},
		{"empty", "", 0, true},
		{"garbage", "abc", 0, true},
		{"octal-looking is decimal", "010", 10, false},
		{"too large", "0x1" + strings.Repeat("0", 64), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := ParseNonce(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrEncoding)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, n.Uint64())
		})
	}
}

func TestNonceFromBig(t *testing.T) {
	_, err := NonceFromBig(big.NewInt(-5))
	assert.ErrorIs(t, err, ErrEncoding)

	_, err = NonceFromBig(nil)
	assert.ErrorIs(t, err, ErrEncoding)

	n, err := NonceFromBig(big.NewInt(99))
	require.NoError(t, err)
	assert.Equal(t, uint64(99), n.Uint64())
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"lowercase", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", false},
		{"valid checksum", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", false},
		{"invalid checksum", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAeD", true},
		{"too short", "0x1234", true},
		{"not hex", "0xzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := ParseAddress(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrEncoding)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, strings.ToLower(tt.input), strings.ToLower(addr.Hex()))
		})
	}
}

func TestDecodeMessage(t *testing.T) {
	binding := BuildBinding(contractAddr, ownerAddr)
	decoded, err := DecodeMessage(binding.Hex())
	require.NoError(t, err)
	assert.Equal(t, binding, decoded)

	_, err = DecodeMessage("0x1234")
	assert.ErrorIs(t, err, ErrEncoding)

	_, err = DecodeMessage("nothex")
	assert.ErrorIs(t, err, ErrEncoding)
}

func TestCanonicalMessage_Text(t *testing.T) {
	msg := BuildBinding(contractAddr, ownerAddr)
	text, err := msg.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, msg.Hex(), string(text))

	var decoded CanonicalMessage
	require.NoError(t, decoded.UnmarshalText(text))
	assert.Equal(t, msg, decoded)

	assert.ErrorIs(t, decoded.UnmarshalText([]byte("0xdead")), ErrEncoding)
}
