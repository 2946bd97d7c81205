// Package authorizer accepts signed actions in strict per-actor nonce order.
//
// Every actor starts at nonce 0. An action is accepted only if it carries
// exactly the actor's current nonce and its signature over the canonical
// action message recovers to the actor. Acceptance advances the nonce by one,
// so each signature is usable once.
package authorizer

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/web3-social/profile-keys-go/pkg/message"
	"github.com/web3-social/profile-keys-go/pkg/persistence"
	"github.com/web3-social/profile-keys-go/pkg/signing"
	"github.com/web3-social/profile-keys-go/pkg/types"
)

var (
	ErrNonceMismatch  = errors.New("nonce mismatch")
	ErrSignerMismatch = errors.New("signer mismatch")

	// ErrUnknownTarget is returned for replies to a post that was never authorized.
	ErrUnknownTarget = errors.New("unknown target")

	// ErrNonceExhausted is returned once an actor has used nonce 2^256-1.
	ErrNonceExhausted = errors.New("nonce exhausted")
)

// NonceMismatchError carries the nonce the actor must use next.
type NonceMismatchError struct {
	Expected *uint256.Int
	Provided *uint256.Int
}

func (e *NonceMismatchError) Error() string {
	return fmt.Sprintf("nonce mismatch: expected %s, provided %s", types.NonceString(e.Expected), types.NonceString(e.Provided))
}

func (e *NonceMismatchError) Is(target error) bool {
	return target == ErrNonceMismatch
}

// CheckAction is the pure transition for one action: given the actor's
// expected nonce it returns the next expected nonce, or an error leaving the
// state unchanged. The nonce is checked before the signature.
func CheckAction(expected *uint256.Int, req *types.ActionRequest) (*uint256.Int, error) {
	if req == nil {
		return nil, errors.Wrap(message.ErrEncoding, "action request is nil")
	}
	if expected == nil {
		expected = new(uint256.Int)
	}
	if req.ActorNonce == nil || !req.ActorNonce.Eq(expected) {
		return nil, &NonceMismatchError{
			Expected: new(uint256.Int).Set(expected),
			Provided: req.ActorNonce,
		}
	}

	msg := message.BuildAction(req.Actor, req.ActorNonce, req.Target, req.TargetNonce, []byte(req.Content))
	signer, err := signing.RecoverAddress(msg, req.Signature)
	if err != nil {
		return nil, fmt.Errorf("action signature: %w: %w", ErrSignerMismatch, err)
	}
	if signer != req.Actor {
		return nil, errors.Wrapf(ErrSignerMismatch, "signature recovers to %s, actor is %s", signer.Hex(), req.Actor.Hex())
	}

	next, overflow := new(uint256.Int).AddOverflow(expected, uint256.NewInt(1))
	if overflow {
		return nil, errors.Wrapf(ErrNonceExhausted, "actor %s", req.Actor.Hex())
	}
	return next, nil
}

// Authorizer tracks per-actor nonces and the log of authorized actions.
type Authorizer struct {
	store  persistence.IProtocolPersistence
	logger *zap.Logger
}

func NewAuthorizer(store persistence.IProtocolPersistence, logger *zap.Logger) *Authorizer {
	return &Authorizer{
		store:  store,
		logger: logger,
	}
}

// PeekNonce returns the nonce the actor's next action must carry.
func (a *Authorizer) PeekNonce(actor common.Address) (*uint256.Int, error) {
	n, err := a.store.GetNonce(actor)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read nonce")
	}
	return n, nil
}

// Authorize checks req against the actor's current nonce and signature and,
// on success, atomically advances the nonce and records the action. When two
// requests race on the same nonce exactly one is accepted; the other gets a
// NonceMismatchError.
func (a *Authorizer) Authorize(req *types.ActionRequest) (*types.AuthorizedAction, error) {
	if req == nil {
		return nil, errors.Wrap(message.ErrEncoding, "action request is nil")
	}

	expected, err := a.PeekNonce(req.Actor)
	if err != nil {
		return nil, err
	}

	next, err := CheckAction(expected, req)
	if err != nil {
		a.logger.Sugar().Debugw("Action rejected",
			"actor", req.Actor.Hex(),
			"kind", req.Kind,
			"expectedNonce", expected.Dec(),
			"error", err,
		)
		return nil, err
	}

	record := newRecord(req)
	if err := a.store.AdvanceNonce(req.Actor, expected, record); err != nil {
		switch {
		case errors.Is(err, persistence.ErrNonceConflict):
			current, peekErr := a.PeekNonce(req.Actor)
			if peekErr != nil {
				current = next
			}
			return nil, &NonceMismatchError{Expected: current, Provided: req.ActorNonce}
		case errors.Is(err, persistence.ErrNonceOverflow):
			return nil, errors.Wrapf(ErrNonceExhausted, "actor %s", req.Actor.Hex())
		default:
			return nil, errors.Wrap(err, "failed to advance nonce")
		}
	}

	a.logger.Sugar().Infow("Action authorized",
		"id", record.ID,
		"kind", record.Kind,
		"actor", req.Actor.Hex(),
		"nonce", record.ActorNonce,
		"target", req.Target.Hex(),
		"targetNonce", record.TargetNonce,
	)

	return &types.AuthorizedAction{
		Record:    record,
		NextNonce: next,
	}, nil
}

// AuthorizePost authorizes a post: the target is the author at the same nonce.
func (a *Authorizer) AuthorizePost(actor common.Address, nonce *uint256.Int, content string, sig signing.Signature) (*types.AuthorizedAction, error) {
	return a.Authorize(&types.ActionRequest{
		Kind:        types.ActionKindPost,
		Actor:       actor,
		ActorNonce:  nonce,
		Target:      actor,
		TargetNonce: nonce,
		Content:     content,
		Signature:   sig,
	})
}

// AuthorizeReply authorizes replier's action at replierNonce referencing the
// post postAuthor made at postNonce. The referenced post must already have
// been authorized.
func (a *Authorizer) AuthorizeReply(replier common.Address, replierNonce *uint256.Int, postAuthor common.Address, postNonce *uint256.Int, content string, sig signing.Signature) (*types.AuthorizedAction, error) {
	if postNonce == nil {
		return nil, errors.Wrap(message.ErrEncoding, "post nonce is nil")
	}
	authorNonce, err := a.PeekNonce(postAuthor)
	if err != nil {
		return nil, err
	}
	if !postNonce.Lt(authorNonce) {
		return nil, errors.Wrapf(ErrUnknownTarget, "%s has no action at nonce %s", postAuthor.Hex(), postNonce.Dec())
	}

	return a.Authorize(&types.ActionRequest{
		Kind:        types.ActionKindReply,
		Actor:       replier,
		ActorNonce:  replierNonce,
		Target:      postAuthor,
		TargetNonce: postNonce,
		Content:     content,
		Signature:   sig,
	})
}

// GetAction returns the action authorized at (actor, nonce), nil if none.
func (a *Authorizer) GetAction(actor common.Address, nonce *uint256.Int) (*types.ActionRecord, error) {
	r, err := a.store.LoadAction(actor, nonce)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load action")
	}
	return r, nil
}

// ListActions returns every action authorized for actor in nonce order.
func (a *Authorizer) ListActions(actor common.Address) ([]*types.ActionRecord, error) {
	rs, err := a.store.ListActions(actor)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list actions")
	}
	return rs, nil
}

func newRecord(req *types.ActionRequest) *types.ActionRecord {
	kind := req.Kind
	if kind == "" {
		kind = types.ActionKindAction
	}
	return &types.ActionRecord{
		ID:           uuid.NewString(),
		Kind:         kind,
		Actor:        req.Actor,
		ActorNonce:   types.NonceString(req.ActorNonce),
		Target:       req.Target,
		TargetNonce:  types.NonceString(req.TargetNonce),
		Content:      req.Content,
		ContentHash:  message.HashContent([]byte(req.Content)),
		Signature:    req.Signature,
		AuthorizedAt: time.Now().Unix(),
	}
}
