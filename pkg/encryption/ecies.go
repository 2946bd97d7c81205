// Package encryption implements ECIES over secp256k1 so that anyone who knows
// a profile's public key (typically recovered from one of its signatures) can
// send it a confidential message.
//
// Envelope layout, compatible with eciesjs defaults:
//
//	ephemeral public key (65, uncompressed) || nonce (16) || tag (16) || ciphertext
//
// The AES-256-GCM key is HKDF-SHA256(ephemeral public key || shared point),
// with both points uncompressed and no salt or info.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"

	"github.com/web3-social/profile-keys-go/internal/memzero"
	"github.com/web3-social/profile-keys-go/pkg/keys"
)

const (
	EphemeralKeyLength = 65
	NonceLength        = 16
	TagLength          = 16
	KeyLength          = 32

	// EnvelopeOverhead is the size of an envelope around an empty plaintext.
	EnvelopeOverhead = EphemeralKeyLength + NonceLength + TagLength
)

var (
	// ErrEncryption is returned when an envelope cannot be produced.
	ErrEncryption = errors.New("encryption error")

	// ErrDecryption is the single error returned for any decryption failure.
	ErrDecryption = errors.New("decryption failed")
)

// Encrypt seals plaintext to recipient using crypto/rand.
func Encrypt(recipient *ecdsa.PublicKey, plaintext []byte) (*CipherEnvelope, error) {
	return EncryptWithRand(rand.Reader, recipient, plaintext)
}

// EncryptWithRand is Encrypt with an explicit source for the ephemeral key
// and nonce.
func EncryptWithRand(r io.Reader, recipient *ecdsa.PublicKey, plaintext []byte) (*CipherEnvelope, error) {
	if recipient == nil {
		return nil, errors.Wrap(ErrEncryption, "recipient public key is nil")
	}
	recipientKey, err := secp256k1.ParsePubKey(keys.PublicKeyBytes(recipient))
	if err != nil {
		return nil, errors.Wrapf(ErrEncryption, "invalid recipient public key: %v", err)
	}

	ephemeral, err := keys.GenerateFrom(r)
	if err != nil {
		return nil, fmt.Errorf("%w: ephemeral key: %w", ErrEncryption, err)
	}
	ephemeralScalar := crypto.FromECDSA(ephemeral)
	defer memzero.Zero(ephemeralScalar)

	env := &CipherEnvelope{}
	copy(env.EphemeralPublicKey[:], keys.PublicKeyBytes(keys.PublicOf(ephemeral)))

	key := deriveKey(ephemeralScalar, recipientKey, env.EphemeralPublicKey[:])
	defer memzero.Zero(key)

	if _, err := io.ReadFull(r, env.Nonce[:]); err != nil {
		return nil, errors.Wrapf(ErrEncryption, "failed to read nonce: %v", err)
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, errors.Wrapf(ErrEncryption, "%v", err)
	}

	sealed := aead.Seal(nil, env.Nonce[:], plaintext, nil)
	split := len(sealed) - TagLength
	copy(env.Tag[:], sealed[split:])
	env.Ciphertext = sealed[:split]

	return env, nil
}

// Decrypt opens env with priv. Every failure (malformed ephemeral key, wrong
// key, tampered bytes) returns ErrDecryption and no plaintext.
func Decrypt(priv *ecdsa.PrivateKey, env *CipherEnvelope) ([]byte, error) {
	if priv == nil || env == nil {
		return nil, ErrDecryption
	}

	ephemeralKey, err := secp256k1.ParsePubKey(env.EphemeralPublicKey[:])
	if err != nil {
		return nil, ErrDecryption
	}

	scalar := crypto.FromECDSA(priv)
	defer memzero.Zero(scalar)

	key := deriveKey(scalar, ephemeralKey, env.EphemeralPublicKey[:])
	defer memzero.Zero(key)

	aead, err := newAEAD(key)
	if err != nil {
		return nil, ErrDecryption
	}

	sealed := make([]byte, 0, len(env.Ciphertext)+TagLength)
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.Tag[:]...)

	plaintext, err := aead.Open(nil, env.Nonce[:], sealed, nil)
	if err != nil {
		return nil, ErrDecryption
	}
	return plaintext, nil
}

// DecryptBytes parses and opens a serialized envelope.
func DecryptBytes(priv *ecdsa.PrivateKey, data []byte) ([]byte, error) {
	env, err := ParseCipherEnvelope(data)
	if err != nil {
		return nil, ErrDecryption
	}
	return Decrypt(priv, env)
}

// deriveKey computes scalar * point and expands the uncompressed shared
// point, prefixed with the ephemeral public key, into the AES key.
func deriveKey(scalar []byte, point *secp256k1.PublicKey, ephemeralPub []byte) []byte {
	priv := secp256k1.PrivKeyFromBytes(scalar)
	defer priv.Zero()

	var p, shared secp256k1.JacobianPoint
	point.AsJacobian(&p)
	secp256k1.ScalarMultNonConst(&priv.Key, &p, &shared)
	shared.ToAffine()

	sharedPoint := secp256k1.NewPublicKey(&shared.X, &shared.Y).SerializeUncompressed()
	defer memzero.Zero(sharedPoint)

	ikm := make([]byte, 0, len(ephemeralPub)+len(sharedPoint))
	ikm = append(ikm, ephemeralPub...)
	ikm = append(ikm, sharedPoint...)
	defer memzero.Zero(ikm)

	key := make([]byte, KeyLength)
	// hkdf cannot fail for a 32 byte output
	_, _ = io.ReadFull(hkdf.New(sha256.New, ikm, nil, nil), key)
	return key
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, NonceLength)
}
