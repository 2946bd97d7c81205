package testutil

import (
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/web3-social/profile-keys-go/pkg/keys"
	"github.com/web3-social/profile-keys-go/pkg/logger"
	"github.com/web3-social/profile-keys-go/pkg/message"
	"github.com/web3-social/profile-keys-go/pkg/persistence"
	"github.com/web3-social/profile-keys-go/pkg/persistence/memory"
	"github.com/web3-social/profile-keys-go/pkg/signing"
)

// TestProfile is a freshly generated owner key plus a random contract address
// standing in for its deployed profile contract.
type TestProfile struct {
	Key      *ecdsa.PrivateKey
	Owner    common.Address
	Contract common.Address
}

// NewTestProfile creates a profile with a new key and contract address.
func NewTestProfile(t *testing.T) *TestProfile {
	t.Helper()

	key, err := keys.Generate()
	require.NoError(t, err)

	contractKey, err := keys.Generate()
	require.NoError(t, err)

	return &TestProfile{
		Key:      key,
		Owner:    keys.AddressOf(keys.PublicOf(key)),
		Contract: keys.AddressOf(keys.PublicOf(contractKey)),
	}
}

// Sign signs an arbitrary canonical message with the profile key.
func (p *TestProfile) Sign(t *testing.T, msg message.CanonicalMessage) signing.Signature {
	t.Helper()

	sig, err := signing.Sign(p.Key, msg)
	require.NoError(t, err)
	return sig
}

// BindingSignature signs (Contract, Owner).
func (p *TestProfile) BindingSignature(t *testing.T) signing.Signature {
	return p.Sign(t, message.BuildBinding(p.Contract, p.Owner))
}

// ActionSignature signs an action by this profile's owner.
func (p *TestProfile) ActionSignature(t *testing.T, nonce uint64, target common.Address, targetNonce uint64, content string) signing.Signature {
	msg := message.BuildAction(p.Owner, uint256.NewInt(nonce), target, uint256.NewInt(targetNonce), []byte(content))
	return p.Sign(t, msg)
}

// PostSignature signs a post: the target is the author at the same nonce.
func (p *TestProfile) PostSignature(t *testing.T, nonce uint64, content string) signing.Signature {
	return p.ActionSignature(t, nonce, p.Owner, nonce, content)
}

// ReplySignature signs a reply by p to author's post at postNonce.
func (p *TestProfile) ReplySignature(t *testing.T, nonce uint64, author common.Address, postNonce uint64, content string) signing.Signature {
	return p.ActionSignature(t, nonce, author, postNonce, content)
}

// NewTestStore returns an empty in-memory persistence layer.
func NewTestStore(t *testing.T) persistence.IProtocolPersistence {
	t.Helper()

	store := memory.NewMemoryPersistence(logger.NewTestLogger())
	t.Cleanup(func() { _ = store.Close() })
	return store
}
