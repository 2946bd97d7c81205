package encryption

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/web3-social/profile-keys-go/pkg/keys"
)

func FuzzECIESEncryptDecrypt(f *testing.F) {
	recipient, err := keys.Generate()
	if err != nil {
		f.Skip("failed to generate secp256k1 key for fuzzing")
	}

	f.Add([]byte("hello"))
	f.Add([]byte{})
	f.Add(bytes.Repeat([]byte{0xFF}, 1024))
	f.Add([]byte{0x00, 0x01, 0x02})

	f.Fuzz(func(t *testing.T, plaintext []byte) {
		env, err := Encrypt(keys.PublicOf(recipient), plaintext)
		require.NoError(t, err)

		decrypted, err := DecryptBytes(recipient, env.Bytes())
		require.NoError(t, err)
		require.True(t, bytes.Equal(plaintext, decrypted))
	})
}

func FuzzECIESDecryptArbitrary(f *testing.F) {
	recipient, err := keys.Generate()
	if err != nil {
		f.Skip("failed to generate secp256k1 key for fuzzing")
	}

	f.Add([]byte{})
	f.Add(make([]byte, EnvelopeOverhead))
	f.Add(append([]byte{0x04}, bytes.Repeat([]byte{0x01}, EnvelopeOverhead)...))

	f.Fuzz(func(t *testing.T, data []byte) {
		plaintext, err := DecryptBytes(recipient, data)
		require.Equal(t, ErrDecryption, err)
		require.Nil(t, plaintext)
	})
}
