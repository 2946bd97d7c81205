package persistence

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/web3-social/profile-keys-go/pkg/types"
)

// IProtocolPersistence stores identity bindings, per-actor nonces and the
// action log. All implementations must be safe for concurrent use.
//
// The two mutating operations are single atomic transitions:
// - CreateBinding is set-once per contract
// - AdvanceNonce is a compare-and-swap on the actor's nonce that also appends
//   the action record
//
// Operations on different contracts or actors never block each other.
type IProtocolPersistence interface {
	// Bindings

	// CreateBinding stores b if and only if no binding exists for b.Contract.
	// Returns ErrBindingExists if the contract is already bound.
	CreateBinding(b *types.StoredBinding) error

	// LoadBinding returns nil if the contract is unbound, error only on storage failure.
	LoadBinding(contract common.Address) (*types.StoredBinding, error)

	// Nonces and action log

	// GetNonce returns the next nonce the actor must use. Zero for unseen actors.
	GetNonce(actor common.Address) (*uint256.Int, error)

	// AdvanceNonce sets the actor's nonce to expected+1 and appends record,
	// provided the stored nonce still equals expected. Returns ErrNonceConflict
	// if another writer advanced it first, ErrNonceOverflow if expected is the
	// largest representable nonce.
	AdvanceNonce(actor common.Address, expected *uint256.Int, record *types.ActionRecord) error

	// LoadAction returns the record authorized at (actor, nonce), nil if none.
	LoadAction(actor common.Address, nonce *uint256.Int) (*types.ActionRecord, error)

	// ListActions returns the actor's records in ascending nonce order.
	// Returns an empty slice for unseen actors.
	ListActions(actor common.Address) ([]*types.ActionRecord, error)

	// Lifecycle Management

	// Close cleanly shuts down the persistence layer.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations should return errors.
	Close() error

	// HealthCheck verifies the persistence layer is operational.
	HealthCheck() error
}
