package types

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_NonceString(t *testing.T) {
	assert.Equal(t, "0", NonceString(nil))
	assert.Equal(t, "42", NonceString(uint256.NewInt(42)))

	max := new(uint256.Int).SetAllOne()
	assert.Equal(t, "115792089237316195423570985008687907853269984665640564039457584007913129639935", NonceString(max))
}

func Test_StoredBindingJSON(t *testing.T) {
	b := &StoredBinding{
		Contract: common.HexToAddress("0x00000000000000000000000000000000000000c1"),
		Owner:    common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		BoundAt:  1700000000,
	}
	b.Signature[64] = 27

	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"contract":"0x00000000000000000000000000000000000000c1"`)

	var decoded StoredBinding
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, *b, decoded)
}
