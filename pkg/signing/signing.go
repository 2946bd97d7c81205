// Package signing produces and recovers recoverable secp256k1 signatures over
// canonical messages.
//
// The digest is the EIP-191 personal message hash
//
//	keccak256("\x19Ethereum Signed Message:\n" || len(msg) || msg)
//
// which is what wallets produce for signMessage(bytes). Signatures are the
// 65 byte r || s || v form with v in {27, 28}.
package signing

import (
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/web3-social/profile-keys-go/pkg/message"
)

const (
	SignatureLength = crypto.SignatureLength

	// recoveryOffset is added to the raw recovery id, per the Ethereum convention.
	recoveryOffset = 27
)

var (
	// ErrSigning is returned when the signer fails internally.
	ErrSigning = errors.New("signing error")

	// ErrInvalidSignature is returned when (r, s, v) do not recover to a valid
	// public key for the digest.
	ErrInvalidSignature = errors.New("invalid signature")
)

// Signature is r(32) || s(32) || v(1).
type Signature [SignatureLength]byte

// ParseSignature accepts 65 bytes with v in {0, 1, 27, 28} and normalizes v to 27/28.
func ParseSignature(b []byte) (Signature, error) {
	var sig Signature
	if len(b) != SignatureLength {
		return sig, errors.Wrapf(message.ErrEncoding, "signature must be %d bytes, got %d", SignatureLength, len(b))
	}
	copy(sig[:], b)

	switch v := sig[64]; v {
	case 0, 1:
		sig[64] = v + recoveryOffset
	case recoveryOffset, recoveryOffset + 1:
	default:
		return Signature{}, errors.Wrapf(message.ErrEncoding, "invalid signature recovery byte %d", v)
	}
	return sig, nil
}

// SignatureFromHex parses a 0x-prefixed hex signature.
func SignatureFromHex(s string) (Signature, error) {
	raw, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil {
		return Signature{}, errors.Wrapf(message.ErrEncoding, "invalid signature hex: %v", err)
	}
	return ParseSignature(raw)
}

func (s Signature) R() *big.Int { return new(big.Int).SetBytes(s[:32]) }
func (s Signature) S() *big.Int { return new(big.Int).SetBytes(s[32:64]) }

// RecoveryID returns v with the Ethereum offset removed. Values other than 0
// or 1 indicate a malformed signature.
func (s Signature) RecoveryID() byte {
	if s[64] >= recoveryOffset {
		return s[64] - recoveryOffset
	}
	return s[64]
}

func (s Signature) Bytes() []byte { return s[:] }
func (s Signature) Hex() string   { return hexutil.Encode(s[:]) }

func (s Signature) MarshalText() ([]byte, error) {
	return []byte(s.Hex()), nil
}

func (s *Signature) UnmarshalText(text []byte) error {
	sig, err := SignatureFromHex(string(text))
	if err != nil {
		return err
	}
	*s = sig
	return nil
}

// Digest is the EIP-191 hash of msg. Every signature in the protocol covers this value.
func Digest(msg message.CanonicalMessage) common.Hash {
	return common.BytesToHash(accounts.TextHash(msg))
}

// Sign signs the digest of msg. Nonces are derived deterministically (RFC 6979),
// so signing the same message twice yields the same signature.
func Sign(priv *ecdsa.PrivateKey, msg message.CanonicalMessage) (Signature, error) {
	return SignDigest(priv, Digest(msg))
}

// SignDigest signs a precomputed 32 byte digest.
func SignDigest(priv *ecdsa.PrivateKey, digest common.Hash) (Signature, error) {
	if priv == nil {
		return Signature{}, errors.Wrap(ErrSigning, "private key is nil")
	}
	raw, err := crypto.Sign(digest.Bytes(), priv)
	if err != nil {
		return Signature{}, errors.Wrapf(ErrSigning, "%v", err)
	}
	raw[64] += recoveryOffset

	var sig Signature
	copy(sig[:], raw)
	return sig, nil
}

// Recover reconstructs the signer's public key from msg and sig.
//
// Recovery succeeds with some key for almost any well-formed signature. The
// result only means something once it has been compared against an
// independently known address.
func Recover(msg message.CanonicalMessage, sig Signature) (*ecdsa.PublicKey, error) {
	return RecoverDigest(Digest(msg), sig)
}

// RecoverDigest is Recover for a precomputed digest.
func RecoverDigest(digest common.Hash, sig Signature) (*ecdsa.PublicKey, error) {
	v := sig.RecoveryID()
	if !crypto.ValidateSignatureValues(v, sig.R(), sig.S(), true) {
		return nil, errors.Wrap(ErrInvalidSignature, "signature values out of range")
	}

	raw := make([]byte, SignatureLength)
	copy(raw, sig[:])
	raw[64] = v

	pub, err := crypto.SigToPub(digest.Bytes(), raw)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidSignature, "%v", err)
	}
	return pub, nil
}

// RecoverAddress recovers the signer's public key and derives its address.
func RecoverAddress(msg message.CanonicalMessage, sig Signature) (common.Address, error) {
	pub, err := Recover(msg, sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
