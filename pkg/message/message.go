// Package message builds the canonical byte strings that profile keys sign.
//
// Both layouts are tightly packed big-endian concatenations, equivalent to
// Solidity's abi.encodePacked:
//
//	binding: contract(20) || owner(20)                                           = 40 bytes
//	action:  actor(20) || actorNonce(32) || target(20) || targetNonce(32) || keccak256(content)(32) = 136 bytes
//
// Field order and widths are part of the wire format. Signers and verifiers
// in any language must reproduce them byte for byte.
package message

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

const (
	AddressLength = common.AddressLength
	NonceLength   = 32
	HashLength    = common.HashLength

	BindingMessageLength = AddressLength * 2
	ActionMessageLength  = AddressLength + NonceLength + AddressLength + NonceLength + HashLength
)

// ErrEncoding is returned when a value entering the system cannot be
// represented in a canonical message.
var ErrEncoding = errors.New("encoding error")

// CanonicalMessage is the exact byte string covered by a signature.
type CanonicalMessage []byte

// Hex returns the 0x-prefixed hex encoding of the message.
func (m CanonicalMessage) Hex() string {
	return hexutil.Encode(m)
}

func (m CanonicalMessage) MarshalText() ([]byte, error) {
	return []byte(m.Hex()), nil
}

func (m *CanonicalMessage) UnmarshalText(text []byte) error {
	decoded, err := DecodeMessage(string(text))
	if err != nil {
		return err
	}
	*m = decoded
	return nil
}

// BuildBinding returns contract || owner.
func BuildBinding(contract, owner common.Address) CanonicalMessage {
	msg := make([]byte, 0, BindingMessageLength)
	msg = append(msg, contract.Bytes()...)
	msg = append(msg, owner.Bytes()...)
	return msg
}

// BuildAction returns actor || actorNonce || target || targetNonce || keccak256(content).
// Hashing content keeps the signed message fixed-width regardless of content size.
func BuildAction(actor common.Address, actorNonce *uint256.Int, target common.Address, targetNonce *uint256.Int, content []byte) CanonicalMessage {
	return BuildActionWithHash(actor, actorNonce, target, targetNonce, HashContent(content))
}

// BuildActionWithHash is BuildAction for callers that only hold the content hash.
func BuildActionWithHash(actor common.Address, actorNonce *uint256.Int, target common.Address, targetNonce *uint256.Int, contentHash common.Hash) CanonicalMessage {
	an := nonceBytes(actorNonce)
	tn := nonceBytes(targetNonce)

	msg := make([]byte, 0, ActionMessageLength)
	msg = append(msg, actor.Bytes()...)
	msg = append(msg, an[:]...)
	msg = append(msg, target.Bytes()...)
	msg = append(msg, tn[:]...)
	msg = append(msg, contentHash.Bytes()...)
	return msg
}

// HashContent is keccak256 over the raw content bytes.
func HashContent(content []byte) common.Hash {
	return crypto.Keccak256Hash(content)
}

// nil nonces encode as zero
func nonceBytes(n *uint256.Int) [32]byte {
	if n == nil {
		return [32]byte{}
	}
	return n.Bytes32()
}

// ParseNonce parses a decimal or 0x-prefixed hex nonce.
func ParseNonce(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.Wrap(ErrEncoding, "nonce is empty")
	}

	var (
		v  = new(big.Int)
		ok bool
	)
	if has0xPrefix(s) {
		_, ok = v.SetString(s[2:], 16)
	} else {
		_, ok = v.SetString(s, 10)
	}
	if !ok {
		return nil, errors.Wrapf(ErrEncoding, "invalid nonce %q", s)
	}
	return NonceFromBig(v)
}

// NonceFromBig rejects negative values and values wider than 256 bits.
func NonceFromBig(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return nil, errors.Wrap(ErrEncoding, "nonce is nil")
	}
	if v.Sign() < 0 {
		return nil, errors.Wrapf(ErrEncoding, "nonce must not be negative, got %s", v.String())
	}
	n, overflow := uint256.FromBig(v)
	if overflow {
		return nil, errors.Wrapf(ErrEncoding, "nonce %s does not fit in 256 bits", v.String())
	}
	return n, nil
}

// ParseAddress parses a 0x-prefixed 20 byte hex address. Mixed-case input must
// carry a valid EIP-55 checksum.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, errors.Wrapf(ErrEncoding, "invalid address %q", s)
	}
	addr := common.HexToAddress(s)

	body := s
	if has0xPrefix(body) {
		body = body[2:]
	}
	if body != strings.ToLower(body) && body != strings.ToUpper(body) {
		if addr.Hex()[2:] != body {
			return common.Address{}, errors.Wrapf(ErrEncoding, "address %q has an invalid checksum", s)
		}
	}
	return addr, nil
}

// DecodeMessage parses a hex encoded canonical message and checks it has one
// of the two known lengths.
func DecodeMessage(s string) (CanonicalMessage, error) {
	raw, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil {
		return nil, errors.Wrapf(ErrEncoding, "invalid message hex: %v", err)
	}
	switch len(raw) {
	case BindingMessageLength, ActionMessageLength:
		return raw, nil
	default:
		return nil, errors.Wrapf(ErrEncoding, "message must be %d or %d bytes, got %d",
			BindingMessageLength, ActionMessageLength, len(raw))
	}
}

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}
