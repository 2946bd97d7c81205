package encryption

import (
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

// CipherEnvelope is one ECIES message. Its fields sit at fixed offsets in
// the serialized form, so the envelope is self-describing.
type CipherEnvelope struct {
	EphemeralPublicKey [EphemeralKeyLength]byte
	Nonce              [NonceLength]byte
	Tag                [TagLength]byte
	Ciphertext         []byte
}

// Bytes serializes the envelope as ephemeral || nonce || tag || ciphertext.
func (e *CipherEnvelope) Bytes() []byte {
	out := make([]byte, 0, EnvelopeOverhead+len(e.Ciphertext))
	out = append(out, e.EphemeralPublicKey[:]...)
	out = append(out, e.Nonce[:]...)
	out = append(out, e.Tag[:]...)
	return append(out, e.Ciphertext...)
}

func (e *CipherEnvelope) Hex() string {
	return hexutil.Encode(e.Bytes())
}

func (e *CipherEnvelope) MarshalText() ([]byte, error) {
	return []byte(e.Hex()), nil
}

func (e *CipherEnvelope) UnmarshalText(text []byte) error {
	env, err := CipherEnvelopeFromHex(string(text))
	if err != nil {
		return err
	}
	*e = *env
	return nil
}

// ParseCipherEnvelope splits a serialized envelope. The ciphertext is copied.
// Envelopes shorter than EnvelopeOverhead fail with ErrDecryption.
func ParseCipherEnvelope(b []byte) (*CipherEnvelope, error) {
	if len(b) < EnvelopeOverhead {
		return nil, errors.Wrapf(ErrDecryption, "envelope too short: %d bytes", len(b))
	}

	env := &CipherEnvelope{}
	offset := copy(env.EphemeralPublicKey[:], b)
	offset += copy(env.Nonce[:], b[offset:])
	offset += copy(env.Tag[:], b[offset:])
	env.Ciphertext = append([]byte{}, b[offset:]...)
	return env, nil
}

// CipherEnvelopeFromHex parses a 0x-prefixed hex envelope.
func CipherEnvelopeFromHex(s string) (*CipherEnvelope, error) {
	raw, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil {
		return nil, errors.Wrapf(ErrDecryption, "invalid envelope hex: %v", err)
	}
	return ParseCipherEnvelope(raw)
}
