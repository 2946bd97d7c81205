package profileClient

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/web3-social/profile-keys-go/pkg/authorizer"
	"github.com/web3-social/profile-keys-go/pkg/message"
	"github.com/web3-social/profile-keys-go/pkg/profileSigner"
	"github.com/web3-social/profile-keys-go/pkg/types"
)

// maxNonceResyncs bounds how often a signed submission re-signs after losing
// a nonce race.
const maxNonceResyncs = 3

// BindWithSigner signs (contract, signer address) and binds it.
func (c *Client) BindWithSigner(ctx context.Context, s profileSigner.IProfileSigner, contract common.Address) (*types.StoredBinding, error) {
	owner := s.Address()
	sig, err := s.SignMessage(ctx, message.BuildBinding(contract, owner))
	if err != nil {
		return nil, fmt.Errorf("failed to sign binding: %w", err)
	}
	return c.Bind(ctx, contract, owner, sig)
}

// PostWithSigner fetches the signer's nonce, signs and submits a post. When
// another submission takes the nonce first, it re-signs at the node's
// expected nonce.
func (c *Client) PostWithSigner(ctx context.Context, s profileSigner.IProfileSigner, content string) (*types.ActionResponse, error) {
	actor := s.Address()
	return c.submitWithResync(ctx, actor, func(nonce *uint256.Int) (*types.ActionResponse, error) {
		sig, err := s.SignMessage(ctx, message.BuildAction(actor, nonce, actor, nonce, []byte(content)))
		if err != nil {
			return nil, fmt.Errorf("failed to sign post: %w", err)
		}
		return c.Post(ctx, actor, nonce, content, sig)
	})
}

// ReplyWithSigner signs and submits a reply to author's post at postNonce.
func (c *Client) ReplyWithSigner(ctx context.Context, s profileSigner.IProfileSigner, author common.Address, postNonce *uint256.Int, content string) (*types.ActionResponse, error) {
	replier := s.Address()
	return c.submitWithResync(ctx, replier, func(nonce *uint256.Int) (*types.ActionResponse, error) {
		sig, err := s.SignMessage(ctx, message.BuildAction(replier, nonce, author, postNonce, []byte(content)))
		if err != nil {
			return nil, fmt.Errorf("failed to sign reply: %w", err)
		}
		return c.Reply(ctx, replier, nonce, author, postNonce, content, sig)
	})
}

func (c *Client) submitWithResync(ctx context.Context, actor common.Address, submit func(nonce *uint256.Int) (*types.ActionResponse, error)) (*types.ActionResponse, error) {
	nonce, err := c.GetNonce(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch nonce: %w", err)
	}

	for attempt := 0; ; attempt++ {
		resp, err := submit(nonce)
		if err == nil {
			return resp, nil
		}
		if !errors.Is(err, authorizer.ErrNonceMismatch) || attempt >= maxNonceResyncs {
			return nil, err
		}

		expected, ok := ExpectedNonce(err)
		if !ok {
			return nil, err
		}
		c.logger.Sugar().Debugw("Nonce taken, re-signing",
			"actor", actor.Hex(),
			"nonce", nonce.Dec(),
			"expected", expected.Dec(),
		)
		nonce = expected
	}
}
