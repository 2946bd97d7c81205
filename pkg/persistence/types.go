package persistence

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/web3-social/profile-keys-go/pkg/types"
)

var (
	ErrBindingExists = errors.New("binding already exists")
	ErrNonceConflict = errors.New("nonce was advanced concurrently")
	ErrNonceOverflow = errors.New("nonce space exhausted")
	ErrClosed        = errors.New("persistence layer is closed")
)

// Key layout shared by the key-value backends. Action keys end in the nonce
// as 64 hex characters so lexicographic order is numeric order.
const (
	KeyPrefixBinding     = "binding:"
	KeyPrefixNonce       = "nonce:"
	KeyPrefixAction      = "action:"
	KeySchemaVersion     = "metadata:schema_version"
	CurrentSchemaVersion = "v1"
)

func addressKey(addr common.Address) string {
	return strings.ToLower(addr.Hex()[2:])
}

// BindingKey is the storage key of a contract's binding.
func BindingKey(contract common.Address) string {
	return KeyPrefixBinding + addressKey(contract)
}

// NonceKey is the storage key of an actor's next nonce.
func NonceKey(actor common.Address) string {
	return KeyPrefixNonce + addressKey(actor)
}

// ActionPrefix is the common prefix of every action key of an actor.
func ActionPrefix(actor common.Address) string {
	return KeyPrefixAction + addressKey(actor) + ":"
}

// ActionKey is the storage key of the record authorized at (actor, nonce).
func ActionKey(actor common.Address, nonce *uint256.Int) string {
	b := NonceBytes(nonce)
	return ActionPrefix(actor) + hex.EncodeToString(b)
}

// NonceBytes is the fixed 32 byte big-endian encoding used for stored nonces.
func NonceBytes(n *uint256.Int) []byte {
	if n == nil {
		n = new(uint256.Int)
	}
	b := n.Bytes32()
	return b[:]
}

// NonceFromBytes decodes a value written by NonceBytes.
func NonceFromBytes(b []byte) (*uint256.Int, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("invalid stored nonce length: %d", len(b))
	}
	return new(uint256.Int).SetBytes32(b), nil
}

// NextNonce returns expected+1, or ErrNonceOverflow.
func NextNonce(expected *uint256.Int) (*uint256.Int, error) {
	if expected == nil {
		expected = new(uint256.Int)
	}
	next, overflow := new(uint256.Int).AddOverflow(expected, uint256.NewInt(1))
	if overflow {
		return nil, ErrNonceOverflow
	}
	return next, nil
}

// CheckRecord validates that record is the entry for (actor, expected).
func CheckRecord(actor common.Address, expected *uint256.Int, record *types.ActionRecord) error {
	if record == nil {
		return fmt.Errorf("cannot save nil ActionRecord")
	}
	if record.Actor != actor {
		return fmt.Errorf("action record actor %s does not match %s", record.Actor.Hex(), actor.Hex())
	}
	if want := types.NonceString(expected); record.ActorNonce != want {
		return fmt.Errorf("action record nonce %s does not match expected %s", record.ActorNonce, want)
	}
	return nil
}
