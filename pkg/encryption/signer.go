package encryption

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/web3-social/profile-keys-go/pkg/keys"
	"github.com/web3-social/profile-keys-go/pkg/message"
	"github.com/web3-social/profile-keys-go/pkg/signing"
)

// ErrUnverifiedKey is returned when a recovered key does not belong to the
// address the caller expected.
var ErrUnverifiedKey = errors.New("recovered key does not match expected address")

// RecoverVerifiedKey recovers the signer of msg and checks it against an
// address the caller learned independently. Recovery alone proves nothing
// about who signed.
func RecoverVerifiedKey(msg message.CanonicalMessage, sig signing.Signature, expected common.Address) (*ecdsa.PublicKey, error) {
	pub, err := signing.Recover(msg, sig)
	if err != nil {
		return nil, errors.Wrapf(ErrUnverifiedKey, "%v", err)
	}
	if got := keys.AddressOf(pub); got != expected {
		return nil, errors.Wrapf(ErrUnverifiedKey, "recovered %s, expected %s", got.Hex(), expected.Hex())
	}
	return pub, nil
}

// EncryptToSigner encrypts plaintext to whoever signed msg, provided that is
// expected.
func EncryptToSigner(msg message.CanonicalMessage, sig signing.Signature, expected common.Address, plaintext []byte) (*CipherEnvelope, error) {
	pub, err := RecoverVerifiedKey(msg, sig, expected)
	if err != nil {
		return nil, err
	}
	return Encrypt(pub, plaintext)
}
