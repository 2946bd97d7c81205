// Package persistenceTest holds behaviour tests shared by every
// IProtocolPersistence backend.
package persistenceTest

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3-social/profile-keys-go/pkg/persistence"
	"github.com/web3-social/profile-keys-go/pkg/types"
)

// Factory opens a fresh, empty backend for one test.
type Factory func(t *testing.T) persistence.IProtocolPersistence

// RandomAddress returns an address that no other test uses, so backends
// shared between tests (redis) stay isolated.
func RandomAddress() common.Address {
	id := uuid.New()
	return common.BytesToAddress(id[:])
}

// NewRecord builds the action record stored when actor uses nonce.
func NewRecord(actor common.Address, nonce uint64, content string) *types.ActionRecord {
	r := &types.ActionRecord{
		ID:           uuid.NewString(),
		Kind:         types.ActionKindPost,
		Actor:        actor,
		ActorNonce:   fmt.Sprintf("%d", nonce),
		Target:       actor,
		TargetNonce:  fmt.Sprintf("%d", nonce),
		Content:      content,
		AuthorizedAt: time.Now().Unix(),
	}
	r.Signature[64] = 27
	return r
}

// NewBinding builds a binding record for contract and owner.
func NewBinding(contract, owner common.Address) *types.StoredBinding {
	b := &types.StoredBinding{
		Contract: contract,
		Owner:    owner,
		BoundAt:  time.Now().Unix(),
	}
	b.Signature[64] = 28
	return b
}

// Run exercises the full IProtocolPersistence contract against newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndLoadBinding", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		b := NewBinding(RandomAddress(), RandomAddress())
		require.NoError(t, store.CreateBinding(b))

		loaded, err := store.LoadBinding(b.Contract)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, b, loaded)
	})

	t.Run("LoadBinding_NotFound", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		loaded, err := store.LoadBinding(RandomAddress())
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("CreateBinding_SetOnce", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		contract := RandomAddress()
		first := NewBinding(contract, RandomAddress())
		require.NoError(t, store.CreateBinding(first))

		err := store.CreateBinding(NewBinding(contract, RandomAddress()))
		assert.ErrorIs(t, err, persistence.ErrBindingExists)

		loaded, err := store.LoadBinding(contract)
		require.NoError(t, err)
		assert.Equal(t, first.Owner, loaded.Owner)
	})

	t.Run("CreateBinding_Nil", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		assert.Error(t, store.CreateBinding(nil))
	})

	t.Run("CreateBinding_ConcurrentSingleWinner", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		contract := RandomAddress()
		var wins, losses int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := store.CreateBinding(NewBinding(contract, RandomAddress()))
				switch {
				case err == nil:
					atomic.AddInt32(&wins, 1)
				case assert.ErrorIs(t, err, persistence.ErrBindingExists):
					atomic.AddInt32(&losses, 1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins)
		assert.Equal(t, int32(15), losses)
	})

	t.Run("GetNonce_StartsAtZero", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		n, err := store.GetNonce(RandomAddress())
		require.NoError(t, err)
		assert.True(t, n.IsZero())
	})

	t.Run("AdvanceNonce", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		actor := RandomAddress()
		for i := uint64(0); i < 3; i++ {
			require.NoError(t, store.AdvanceNonce(actor, uint256.NewInt(i), NewRecord(actor, i, fmt.Sprintf("post %d", i))))
		}

		n, err := store.GetNonce(actor)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), n.Uint64())

		record, err := store.LoadAction(actor, uint256.NewInt(1))
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, "post 1", record.Content)

		missing, err := store.LoadAction(actor, uint256.NewInt(3))
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("AdvanceNonce_Stale", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		actor := RandomAddress()
		require.NoError(t, store.AdvanceNonce(actor, uint256.NewInt(0), NewRecord(actor, 0, "a")))

		err := store.AdvanceNonce(actor, uint256.NewInt(0), NewRecord(actor, 0, "b"))
		assert.ErrorIs(t, err, persistence.ErrNonceConflict)

		err = store.AdvanceNonce(actor, uint256.NewInt(5), NewRecord(actor, 5, "c"))
		assert.ErrorIs(t, err, persistence.ErrNonceConflict)

		record, err := store.LoadAction(actor, uint256.NewInt(0))
		require.NoError(t, err)
		assert.Equal(t, "a", record.Content)

		actions, err := store.ListActions(actor)
		require.NoError(t, err)
		assert.Len(t, actions, 1)
	})

	t.Run("AdvanceNonce_RecordMismatch", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		actor := RandomAddress()
		assert.Error(t, store.AdvanceNonce(actor, uint256.NewInt(0), nil))
		assert.Error(t, store.AdvanceNonce(actor, uint256.NewInt(0), NewRecord(RandomAddress(), 0, "x")))
		assert.Error(t, store.AdvanceNonce(actor, uint256.NewInt(0), NewRecord(actor, 1, "x")))

		n, err := store.GetNonce(actor)
		require.NoError(t, err)
		assert.True(t, n.IsZero())
	})

	t.Run("AdvanceNonce_ConcurrentSingleWinner", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		actor := RandomAddress()
		var wins, losses int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := store.AdvanceNonce(actor, uint256.NewInt(0), NewRecord(actor, 0, fmt.Sprintf("racer %d", i)))
				switch {
				case err == nil:
					atomic.AddInt32(&wins, 1)
				case assert.ErrorIs(t, err, persistence.ErrNonceConflict):
					atomic.AddInt32(&losses, 1)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins)
		assert.Equal(t, int32(15), losses)

		n, err := store.GetNonce(actor)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), n.Uint64())

		actions, err := store.ListActions(actor)
		require.NoError(t, err)
		assert.Len(t, actions, 1)
	})

	t.Run("AdvanceNonce_IndependentActors", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		actors := make([]common.Address, 8)
		for i := range actors {
			actors[i] = RandomAddress()
		}

		var wg sync.WaitGroup
		for _, actor := range actors {
			wg.Add(1)
			go func(actor common.Address) {
				defer wg.Done()
				for n := uint64(0); n < 5; n++ {
					assert.NoError(t, store.AdvanceNonce(actor, uint256.NewInt(n), NewRecord(actor, n, "x")))
				}
			}(actor)
		}
		wg.Wait()

		for _, actor := range actors {
			n, err := store.GetNonce(actor)
			require.NoError(t, err)
			assert.Equal(t, uint64(5), n.Uint64())
		}
	})

	t.Run("ListActions_Ordered", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		actor := RandomAddress()
		other := RandomAddress()
		for i := uint64(0); i < 12; i++ {
			require.NoError(t, store.AdvanceNonce(actor, uint256.NewInt(i), NewRecord(actor, i, fmt.Sprintf("%d", i))))
		}
		require.NoError(t, store.AdvanceNonce(other, uint256.NewInt(0), NewRecord(other, 0, "other")))

		actions, err := store.ListActions(actor)
		require.NoError(t, err)
		require.Len(t, actions, 12)
		for i, a := range actions {
			assert.Equal(t, fmt.Sprintf("%d", i), a.ActorNonce)
			assert.Equal(t, actor, a.Actor)
		}

		empty, err := store.ListActions(RandomAddress())
		require.NoError(t, err)
		assert.NotNil(t, empty)
		assert.Empty(t, empty)
	})

	t.Run("HealthCheck", func(t *testing.T) {
		store := newStore(t)
		assert.NoError(t, store.HealthCheck())

		require.NoError(t, store.Close())
		assert.Error(t, store.HealthCheck())
	})

	t.Run("Close_Idempotent", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Close())
		require.NoError(t, store.Close())

		assert.ErrorIs(t, store.CreateBinding(NewBinding(RandomAddress(), RandomAddress())), persistence.ErrClosed)
		_, err := store.LoadBinding(RandomAddress())
		assert.ErrorIs(t, err, persistence.ErrClosed)
		_, err = store.GetNonce(RandomAddress())
		assert.ErrorIs(t, err, persistence.ErrClosed)
		actor := RandomAddress()
		assert.ErrorIs(t, store.AdvanceNonce(actor, uint256.NewInt(0), NewRecord(actor, 0, "x")), persistence.ErrClosed)
		_, err = store.ListActions(actor)
		assert.ErrorIs(t, err, persistence.ErrClosed)
	})
}
