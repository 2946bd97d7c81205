package persistence

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3-social/profile-keys-go/pkg/types"
)

func TestMarshalUnmarshalBinding_RoundTrip(t *testing.T) {
	original := &types.StoredBinding{
		Contract: common.HexToAddress("0x00000000000000000000000000000000000000c1"),
		Owner:    common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		BoundAt:  1700000000,
	}
	original.Signature[0] = 0x11
	original.Signature[64] = 28

	data, err := MarshalBinding(original)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	restored, err := UnmarshalBinding(data)
	require.NoError(t, err)
	assert.Equal(t, original, restored)
}

func TestMarshalUnmarshalActionRecord_RoundTrip(t *testing.T) {
	original := &types.ActionRecord{
		ID:           "3c7e1f0e-8a9b-4c55-9d0c-0f1f2e3d4c5b",
		Kind:         types.ActionKindReply,
		Actor:        common.HexToAddress("0x00000000000000000000000000000000000000b2"),
		ActorNonce:   "0",
		Target:       common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		TargetNonce:  "7",
		Content:      "gm",
		ContentHash:  common.HexToHash("0x01"),
		AuthorizedAt: 1700000001,
	}
	original.Signature[64] = 27

	data, err := MarshalActionRecord(original)
	require.NoError(t, err)

	restored, err := UnmarshalActionRecord(data)
	require.NoError(t, err)
	assert.Equal(t, original, restored)
}

func TestMarshal_Nil(t *testing.T) {
	_, err := MarshalBinding(nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "nil StoredBinding")

	_, err = MarshalActionRecord(nil)
	assert.Error(t, err)
}

func TestUnmarshal_Invalid(t *testing.T) {
	_, err := UnmarshalBinding(nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "empty data")

	_, err = UnmarshalBinding([]byte("{not json"))
	assert.Error(t, err)

	_, err = UnmarshalActionRecord([]byte(`{"signature":"0x1234"}`))
	assert.Error(t, err)
}

func TestActionKey_SortsByNonce(t *testing.T) {
	actor := common.HexToAddress("0x00000000000000000000000000000000000000b2")

	k2 := ActionKey(actor, uint256.NewInt(2))
	k10 := ActionKey(actor, uint256.NewInt(10))
	k256 := ActionKey(actor, uint256.NewInt(256))

	assert.Less(t, k2, k10)
	assert.Less(t, k10, k256)
	assert.Equal(t, ActionPrefix(actor), k2[:len(ActionPrefix(actor))])
	assert.Len(t, k2, len(ActionPrefix(actor))+64)
}

func TestNonceBytes_RoundTrip(t *testing.T) {
	n := uint256.NewInt(123456789)
	restored, err := NonceFromBytes(NonceBytes(n))
	require.NoError(t, err)
	assert.True(t, n.Eq(restored))

	zero, err := NonceFromBytes(NonceBytes(nil))
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	_, err = NonceFromBytes([]byte{1})
	assert.Error(t, err)
}

func TestNextNonce(t *testing.T) {
	next, err := NextNonce(uint256.NewInt(41))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), next.Uint64())

	_, err = NextNonce(new(uint256.Int).SetAllOne())
	assert.ErrorIs(t, err, ErrNonceOverflow)
}
