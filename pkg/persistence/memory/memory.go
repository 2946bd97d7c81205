package memory

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/web3-social/profile-keys-go/pkg/persistence"
	"github.com/web3-social/profile-keys-go/pkg/types"
)

// actorState is replaced wholesale on every advance and never mutated in place.
type actorState struct {
	nonce   *uint256.Int
	actions []*types.ActionRecord
}

// MemoryPersistence is an in-memory implementation of IProtocolPersistence.
// This implementation is intended for TESTING and local development.
//
// Bindings and actor state live in xsync concurrent maps. Each mutation runs
// inside MapOf.Compute, which locks only the bucket holding the key, so
// different contracts and actors never contend on a shared lock.
type MemoryPersistence struct {
	// mu guards closed only; operations hold it shared.
	mu     sync.RWMutex
	closed bool

	bindings *xsync.MapOf[common.Address, *types.StoredBinding]
	actors   *xsync.MapOf[common.Address, *actorState]
}

// NewMemoryPersistence creates a new in-memory persistence layer.
func NewMemoryPersistence(logger *zap.Logger) *MemoryPersistence {
	logger.Sugar().Warnw("Using in-memory persistence - ALL DATA WILL BE LOST ON RESTART",
		"hint", "set PROFILE_PERSISTENCE=badger, leveldb or redis for durable storage")

	return &MemoryPersistence{
		bindings: xsync.NewMapOf[common.Address, *types.StoredBinding](),
		actors:   xsync.NewMapOf[common.Address, *actorState](),
	}
}

// CreateBinding stores b unless the contract is already bound.
func (m *MemoryPersistence) CreateBinding(b *types.StoredBinding) error {
	if b == nil {
		return fmt.Errorf("cannot save nil StoredBinding")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return persistence.ErrClosed
	}

	stored := copyBinding(b)
	_, loaded := m.bindings.LoadOrStore(b.Contract, stored)
	if loaded {
		return persistence.ErrBindingExists
	}
	return nil
}

// LoadBinding returns the contract's binding, nil if unbound.
func (m *MemoryPersistence) LoadBinding(contract common.Address) (*types.StoredBinding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	b, ok := m.bindings.Load(contract)
	if !ok {
		return nil, nil // Not found is not an error
	}
	return copyBinding(b), nil
}

// GetNonce returns the actor's next nonce.
func (m *MemoryPersistence) GetNonce(actor common.Address) (*uint256.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	state, ok := m.actors.Load(actor)
	if !ok {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Set(state.nonce), nil
}

// AdvanceNonce moves the actor from expected to expected+1 and appends record.
func (m *MemoryPersistence) AdvanceNonce(actor common.Address, expected *uint256.Int, record *types.ActionRecord) error {
	if err := persistence.CheckRecord(actor, expected, record); err != nil {
		return err
	}
	next, err := persistence.NextNonce(expected)
	if err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return persistence.ErrClosed
	}

	stored := copyRecord(record)
	var conflict bool
	m.actors.Compute(actor, func(old *actorState, loaded bool) (*actorState, bool) {
		current := new(uint256.Int)
		if loaded {
			current = old.nonce
		}
		if !current.Eq(expected) {
			conflict = true
			return old, !loaded
		}

		var actions []*types.ActionRecord
		if loaded {
			actions = make([]*types.ActionRecord, len(old.actions), len(old.actions)+1)
			copy(actions, old.actions)
		}
		return &actorState{
			nonce:   next,
			actions: append(actions, stored),
		}, false
	})

	if conflict {
		return persistence.ErrNonceConflict
	}
	return nil
}

// LoadAction returns the record at (actor, nonce), nil if none.
func (m *MemoryPersistence) LoadAction(actor common.Address, nonce *uint256.Int) (*types.ActionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	state, ok := m.actors.Load(actor)
	if !ok || nonce == nil || !nonce.IsUint64() {
		return nil, nil
	}
	// Nonces start at zero and advance by one, so the log index is the nonce.
	idx := nonce.Uint64()
	if idx >= uint64(len(state.actions)) {
		return nil, nil
	}
	return copyRecord(state.actions[idx]), nil
}

// ListActions returns the actor's records in nonce order.
func (m *MemoryPersistence) ListActions(actor common.Address) ([]*types.ActionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	state, ok := m.actors.Load(actor)
	if !ok {
		return []*types.ActionRecord{}, nil
	}

	result := make([]*types.ActionRecord, 0, len(state.actions))
	for _, r := range state.actions {
		result = append(result, copyRecord(r))
	}
	return result, nil
}

// Close marks the persistence layer as closed.
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck verifies the persistence layer is operational.
func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return persistence.ErrClosed
	}
	return nil
}

func copyBinding(b *types.StoredBinding) *types.StoredBinding {
	c := *b
	return &c
}

func copyRecord(r *types.ActionRecord) *types.ActionRecord {
	c := *r
	return &c
}
