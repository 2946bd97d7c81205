// Package binding verifies that a profile contract is owned by a key and
// records the binding once.
//
// A contract is Unbound until a signature over BuildBinding(contract, owner)
// recovers to owner, after which it is Bound to that owner for good.
package binding

import (
	"crypto/ecdsa"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/web3-social/profile-keys-go/pkg/keys"
	"github.com/web3-social/profile-keys-go/pkg/message"
	"github.com/web3-social/profile-keys-go/pkg/persistence"
	"github.com/web3-social/profile-keys-go/pkg/signing"
	"github.com/web3-social/profile-keys-go/pkg/types"
)

var (
	// ErrOwnershipMismatch is returned when the binding signature does not
	// recover to the claimed owner.
	ErrOwnershipMismatch = errors.New("ownership mismatch")

	// ErrAlreadyBound is returned when the contract already has an owner.
	ErrAlreadyBound = errors.New("contract already bound")

	// ErrNotBound is returned by lookups that need a bound contract.
	ErrNotBound = errors.New("contract not bound")
)

// VerifyBinding is the Unbound -> Bound transition. It returns the record to
// persist, or an error leaving the state unchanged.
func VerifyBinding(current *types.StoredBinding, contract, claimedOwner common.Address, sig signing.Signature) (*types.StoredBinding, error) {
	if current != nil {
		return nil, errors.Wrapf(ErrAlreadyBound, "contract %s is bound to %s", contract.Hex(), current.Owner.Hex())
	}

	recovered, err := signing.RecoverAddress(message.BuildBinding(contract, claimedOwner), sig)
	if err != nil {
		return nil, errors.Wrapf(ErrOwnershipMismatch, "binding signature for %s: %v", contract.Hex(), err)
	}
	if recovered != claimedOwner {
		return nil, errors.Wrapf(ErrOwnershipMismatch, "signature recovers to %s, claimed owner %s", recovered.Hex(), claimedOwner.Hex())
	}

	return &types.StoredBinding{
		Contract:  contract,
		Owner:     claimedOwner,
		Signature: sig,
		BoundAt:   time.Now().Unix(),
	}, nil
}

// Verifier holds binding state in a persistence layer.
type Verifier struct {
	store  persistence.IProtocolPersistence
	logger *zap.Logger
}

func NewVerifier(store persistence.IProtocolPersistence, logger *zap.Logger) *Verifier {
	return &Verifier{
		store:  store,
		logger: logger,
	}
}

// Bind verifies sig and binds contract to claimedOwner. Of two concurrent
// valid binds for the same contract exactly one succeeds; the other gets
// ErrAlreadyBound.
func (v *Verifier) Bind(contract, claimedOwner common.Address, sig signing.Signature) (*types.StoredBinding, error) {
	current, err := v.store.LoadBinding(contract)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load binding")
	}

	record, err := VerifyBinding(current, contract, claimedOwner, sig)
	if err != nil {
		v.logger.Sugar().Debugw("Binding rejected",
			"contract", contract.Hex(),
			"claimedOwner", claimedOwner.Hex(),
			"error", err,
		)
		return nil, err
	}

	if err := v.store.CreateBinding(record); err != nil {
		if errors.Is(err, persistence.ErrBindingExists) {
			return nil, errors.Wrapf(ErrAlreadyBound, "contract %s was bound concurrently", contract.Hex())
		}
		return nil, errors.Wrap(err, "failed to store binding")
	}

	v.logger.Sugar().Infow("Profile bound",
		"contract", contract.Hex(),
		"owner", claimedOwner.Hex(),
	)
	return record, nil
}

// GetBinding returns the contract's binding, nil if Unbound.
func (v *Verifier) GetBinding(contract common.Address) (*types.StoredBinding, error) {
	b, err := v.store.LoadBinding(contract)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load binding")
	}
	return b, nil
}

// IsAuthorized reports whether contract is Bound to signer.
func (v *Verifier) IsAuthorized(contract, signer common.Address) (bool, error) {
	b, err := v.GetBinding(contract)
	if err != nil {
		return false, err
	}
	return b != nil && b.Owner == signer, nil
}

// OwnerPublicKey recovers the owner's public key from the stored binding
// signature. Only bindings that were verified at Bind time are used, and the
// recovered key is checked against the stored owner again before it is
// returned.
func (v *Verifier) OwnerPublicKey(contract common.Address) (*ecdsa.PublicKey, error) {
	b, err := v.GetBinding(contract)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errors.Wrapf(ErrNotBound, "contract %s", contract.Hex())
	}

	pub, err := signing.Recover(message.BuildBinding(b.Contract, b.Owner), b.Signature)
	if err != nil {
		return nil, errors.Wrapf(ErrOwnershipMismatch, "stored binding for %s: %v", contract.Hex(), err)
	}
	if keys.AddressOf(pub) != b.Owner {
		return nil, errors.Wrapf(ErrOwnershipMismatch, "stored binding for %s does not recover to owner %s", contract.Hex(), b.Owner.Hex())
	}
	return pub, nil
}

// AuthorizeSigned recovers the signer of msg and reports whether it is the
// bound owner of contract. An unrecoverable signature is an error wrapping
// signing.ErrInvalidSignature.
func (v *Verifier) AuthorizeSigned(contract common.Address, msg message.CanonicalMessage, sig signing.Signature) (common.Address, bool, error) {
	signer, err := signing.RecoverAddress(msg, sig)
	if err != nil {
		return common.Address{}, false, err
	}
	authorized, err := v.IsAuthorized(contract, signer)
	if err != nil {
		return signer, false, err
	}
	return signer, authorized, nil
}
