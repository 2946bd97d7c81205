package signing

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3-social/profile-keys-go/pkg/message"
)

// Well known test key from the web3.js documentation.
const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

var testKeyAddress = common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")

func TestDigest_IsEIP191(t *testing.T) {
	msg := message.BuildBinding(common.HexToAddress("0x01"), common.HexToAddress("0x02"))

	prefixed := append([]byte("\x19Ethereum Signed Message:\n40"), msg...)
	assert.Equal(t, crypto.Keccak256Hash(prefixed), Digest(msg))
}

func TestSignRecover_RoundTrip(t *testing.T) {
	for i := 0; i < 16; i++ {
		priv, err := crypto.GenerateKey()
		require.NoError(t, err)

		msg := message.BuildAction(
			crypto.PubkeyToAddress(priv.PublicKey), uint256.NewInt(uint64(i)),
			common.HexToAddress("0xabc"), uint256.NewInt(uint64(i*3)),
			[]byte("ipfs://foo"),
		)

		sig, err := Sign(priv, msg)
		require.NoError(t, err)
		assert.Contains(t, []byte{27, 28}, sig[64])

		pub, err := Recover(msg, sig)
		require.NoError(t, err)
		assert.Equal(t, crypto.FromECDSAPub(&priv.PublicKey), crypto.FromECDSAPub(pub))
	}
}

func TestSign_KnownKeyAddress(t *testing.T) {
	priv, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)

	msg := message.BuildBinding(common.HexToAddress("0xffffffffffffffffffffffffffffffffffffffff"), testKeyAddress)
	sig, err := Sign(priv, msg)
	require.NoError(t, err)

	addr, err := RecoverAddress(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, testKeyAddress, addr)
}

func TestSign_Deterministic(t *testing.T) {
	priv, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	msg := message.BuildBinding(common.HexToAddress("0x01"), testKeyAddress)

	a, err := Sign(priv, msg)
	require.NoError(t, err)
	b, err := Sign(priv, msg)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSign_NilKey(t *testing.T) {
	_, err := Sign(nil, message.CanonicalMessage("x"))
	assert.ErrorIs(t, err, ErrSigning)
}

func TestRecover_WrongMessageYieldsDifferentSigner(t *testing.T) {
	priv, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)

	msg := message.BuildBinding(common.HexToAddress("0x01"), testKeyAddress)
	sig, err := Sign(priv, msg)
	require.NoError(t, err)

	other := message.BuildBinding(common.HexToAddress("0x02"), testKeyAddress)
	addr, err := RecoverAddress(other, sig)
	if err == nil {
		assert.NotEqual(t, testKeyAddress, addr)
	} else {
		assert.ErrorIs(t, err, ErrInvalidSignature)
	}
}

func TestRecover_InvalidSignatures(t *testing.T) {
	msg := message.BuildBinding(common.HexToAddress("0x01"), common.HexToAddress("0x02"))

	tests := []struct {
		name string
		sig  func() Signature
	}{
		{"all zero", func() Signature {
			var s Signature
			s[64] = 27
			return s
		}},
		{"bad recovery byte", func() Signature {
			var s Signature
			s[0], s[32], s[64] = 1, 1, 30
			return s
		}},
		{"high s", func() Signature {
			var s Signature
			s[31] = 1
			copy(s[32:64], crypto.S256().Params().N.Bytes())
			s[63]--
			s[64] = 27
			return s
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Recover(msg, tt.sig())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSignature)
		})
	}
}

func TestParseSignature(t *testing.T) {
	raw := make([]byte, SignatureLength)
	raw[64] = 1

	sig, err := ParseSignature(raw)
	require.NoError(t, err)
	assert.Equal(t, byte(28), sig[64])
	assert.Equal(t, byte(1), sig.RecoveryID())

	raw[64] = 27
	sig, err = ParseSignature(raw)
	require.NoError(t, err)
	assert.Equal(t, byte(27), sig[64])

	raw[64] = 5
	_, err = ParseSignature(raw)
	assert.ErrorIs(t, err, message.ErrEncoding)

	_, err = ParseSignature(raw[:64])
	assert.ErrorIs(t, err, message.ErrEncoding)
}

func TestSignature_JSON(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := Sign(priv, message.CanonicalMessage("hello"))
	require.NoError(t, err)

	data, err := json.Marshal(struct {
		Sig Signature `json:"sig"`
	}{sig})
	require.NoError(t, err)
	assert.Contains(t, string(data), sig.Hex())

	var decoded struct {
		Sig Signature `json:"sig"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, sig, decoded.Sig)

	require.Error(t, json.Unmarshal([]byte(`{"sig":"0x1234"}`), &decoded))
}
