// Package keys generates and loads secp256k1 profile keys and derives their
// public keys and Ethereum addresses.
package keys

import (
	"crypto/ecdsa"
	"crypto/rand"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/web3-social/profile-keys-go/internal/memzero"
	"github.com/web3-social/profile-keys-go/pkg/message"
)

const (
	PrivateKeyLength = 32

	// PublicKeyLength is the uncompressed 0x04 || X || Y encoding.
	PublicKeyLength           = 65
	CompressedPublicKeyLength = 33

	// maxScalarAttempts bounds rejection sampling. A uniformly random 32 byte
	// string is outside [1, n) with probability ~2^-128.
	maxScalarAttempts = 16
)

// ErrEntropy is returned when the random source cannot supply key material.
var ErrEntropy = errors.New("entropy error")

// Generate returns a new private key drawn from crypto/rand.
func Generate() (*ecdsa.PrivateKey, error) {
	return GenerateFrom(rand.Reader)
}

// GenerateFrom draws 32 bytes from r and rejects the rare values that are not
// valid secp256k1 scalars.
func GenerateFrom(r io.Reader) (*ecdsa.PrivateKey, error) {
	buf := make([]byte, PrivateKeyLength)
	defer memzero.Zero(buf)

	for i := 0; i < maxScalarAttempts; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, errors.Wrapf(ErrEntropy, "failed to read random bytes: %v", err)
		}
		priv, err := crypto.ToECDSA(buf)
		if err == nil {
			return priv, nil
		}
	}
	return nil, errors.Wrap(ErrEntropy, "random source did not produce a valid scalar")
}

// PublicOf returns the public half of priv.
func PublicOf(priv *ecdsa.PrivateKey) *ecdsa.PublicKey {
	return &priv.PublicKey
}

// AddressOf derives the Ethereum address: the last 20 bytes of keccak256(X || Y).
func AddressOf(pub *ecdsa.PublicKey) common.Address {
	return crypto.PubkeyToAddress(*pub)
}

// FromHex loads a private key from 64 hex characters, with or without 0x.
func FromHex(s string) (*ecdsa.PrivateKey, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != PrivateKeyLength*2 {
		return nil, errors.Wrapf(message.ErrEncoding, "private key must be %d hex characters, got %d", PrivateKeyLength*2, len(s))
	}
	priv, err := crypto.HexToECDSA(s)
	if err != nil {
		return nil, errors.Wrapf(message.ErrEncoding, "invalid private key: %v", err)
	}
	return priv, nil
}

// ToHex returns the 0x-prefixed private scalar.
func ToHex(priv *ecdsa.PrivateKey) string {
	return hexutil.Encode(crypto.FromECDSA(priv))
}

// PublicKeyBytes returns the 65 byte uncompressed encoding.
func PublicKeyBytes(pub *ecdsa.PublicKey) []byte {
	return crypto.FromECDSAPub(pub)
}

// ParsePublicKey accepts the 65 byte uncompressed form, the 64 byte form
// without the 0x04 prefix, or the 33 byte compressed form.
func ParsePublicKey(b []byte) (*ecdsa.PublicKey, error) {
	var (
		pub *ecdsa.PublicKey
		err error
	)
	switch len(b) {
	case PublicKeyLength:
		pub, err = crypto.UnmarshalPubkey(b)
	case PublicKeyLength - 1:
		pub, err = crypto.UnmarshalPubkey(append([]byte{0x04}, b...))
	case CompressedPublicKeyLength:
		pub, err = crypto.DecompressPubkey(b)
	default:
		return nil, errors.Wrapf(message.ErrEncoding, "unexpected public key length: %d", len(b))
	}
	if err != nil {
		return nil, errors.Wrapf(message.ErrEncoding, "invalid public key: %v", err)
	}
	return pub, nil
}

// PublicKeyFromHex is ParsePublicKey over a 0x-prefixed hex string.
func PublicKeyFromHex(s string) (*ecdsa.PublicKey, error) {
	raw, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil {
		return nil, errors.Wrapf(message.ErrEncoding, "invalid public key hex: %v", err)
	}
	return ParsePublicKey(raw)
}

// LoadKeystore decrypts a go-ethereum V3 JSON keystore file.
func LoadKeystore(path string, password string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read keystore file %s", path)
	}
	key, err := keystore.DecryptKey(data, password)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decrypt keystore file %s", path)
	}
	return key.PrivateKey, nil
}

// SaveKeystore encrypts priv into a V3 JSON keystore file using the light
// scrypt parameters.
func SaveKeystore(path string, priv *ecdsa.PrivateKey, password string) error {
	key := &keystore.Key{
		Address:    AddressOf(PublicOf(priv)),
		PrivateKey: priv,
	}
	id, err := newKeyID()
	if err != nil {
		return err
	}
	key.Id = id

	data, err := keystore.EncryptKey(key, password, keystore.LightScryptN, keystore.LightScryptP)
	if err != nil {
		return errors.Wrap(err, "failed to encrypt key")
	}
	return os.WriteFile(path, data, 0o600)
}

func newKeyID() (uuid.UUID, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return uuid.UUID{}, errors.Wrapf(ErrEntropy, "failed to generate keystore id: %v", err)
	}
	return id, nil
}
