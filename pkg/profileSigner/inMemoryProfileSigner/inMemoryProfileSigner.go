package inMemoryProfileSigner

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/web3-social/profile-keys-go/pkg/keys"
	"github.com/web3-social/profile-keys-go/pkg/message"
	"github.com/web3-social/profile-keys-go/pkg/signing"
)

type InMemoryProfileSigner struct {
	logger     *zap.Logger
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

func NewInMemoryProfileSigner(privateKey *ecdsa.PrivateKey, logger *zap.Logger) *InMemoryProfileSigner {
	return &InMemoryProfileSigner{
		logger:     logger,
		privateKey: privateKey,
		address:    keys.AddressOf(keys.PublicOf(privateKey)),
	}
}

// NewInMemoryProfileSignerFromHex loads a hex private key.
func NewInMemoryProfileSignerFromHex(privateKey string, logger *zap.Logger) (*InMemoryProfileSigner, error) {
	key, err := keys.FromHex(privateKey)
	if err != nil {
		return nil, fmt.Errorf("error loading private key: %w", err)
	}
	return NewInMemoryProfileSigner(key, logger), nil
}

// NewInMemoryProfileSignerFromKeystore decrypts a V3 keystore file.
func NewInMemoryProfileSignerFromKeystore(path, password string, logger *zap.Logger) (*InMemoryProfileSigner, error) {
	key, err := keys.LoadKeystore(path, password)
	if err != nil {
		return nil, fmt.Errorf("error loading keystore: %w", err)
	}
	return NewInMemoryProfileSigner(key, logger), nil
}

func (s *InMemoryProfileSigner) Address() common.Address {
	return s.address
}

func (s *InMemoryProfileSigner) PublicKey() *ecdsa.PublicKey {
	return keys.PublicOf(s.privateKey)
}

func (s *InMemoryProfileSigner) SignMessage(_ context.Context, msg message.CanonicalMessage) (signing.Signature, error) {
	sig, err := signing.Sign(s.privateKey, msg)
	if err != nil {
		return signing.Signature{}, err
	}
	s.logger.Sugar().Debugw("Signed message", "signer", s.address.Hex(), "length", len(msg))
	return sig, nil
}
