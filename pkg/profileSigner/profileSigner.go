package profileSigner

import (
	"context"
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"

	"github.com/web3-social/profile-keys-go/pkg/message"
	"github.com/web3-social/profile-keys-go/pkg/signing"
)

// SignedMessage is a canonical message together with its signature.
type SignedMessage struct {
	Payload   message.CanonicalMessage `json:"payload"`
	Digest    common.Hash              `json:"digest"`
	Signature signing.Signature        `json:"signature"`
	Signer    common.Address           `json:"signer"`
}

// IProfileSigner holds a profile key and signs canonical messages with it.
// Signatures must recover (signing.Recover) to PublicKey.
type IProfileSigner interface {
	Address() common.Address
	PublicKey() *ecdsa.PublicKey
	SignMessage(ctx context.Context, msg message.CanonicalMessage) (signing.Signature, error)
}

// CreateSignedMessage signs msg with s and bundles the result.
func CreateSignedMessage(ctx context.Context, s IProfileSigner, msg message.CanonicalMessage) (*SignedMessage, error) {
	sig, err := s.SignMessage(ctx, msg)
	if err != nil {
		return nil, err
	}
	return &SignedMessage{
		Payload:   msg,
		Digest:    signing.Digest(msg),
		Signature: sig,
		Signer:    s.Address(),
	}, nil
}
