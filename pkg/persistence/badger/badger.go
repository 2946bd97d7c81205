package badger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/web3-social/profile-keys-go/pkg/persistence"
	"github.com/web3-social/profile-keys-go/pkg/types"
)

// BadgerPersistence is a durable persistence implementation using Badger.
//
// Both mutating operations run in a single read-write transaction. Badger's
// optimistic concurrency control aborts the later of two transactions that
// read and wrote the same key with ErrConflict, which surfaces as
// ErrBindingExists or ErrNonceConflict.
type BadgerPersistence struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

// NewBadgerPersistence opens a Badger database at dataPath with SyncWrites
// enabled and starts a background value-log GC loop.
func NewBadgerPersistence(dataPath string, logger *zap.Logger) (*BadgerPersistence, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = newBadgerLoggerAdapter(logger)
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bp := &BadgerPersistence{
		db:     db,
		logger: logger,
	}

	if err := bp.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bp.gcCancel = cancel
	bp.gcWg.Add(1)
	go bp.runGC(ctx)

	logger.Sugar().Infow("Badger persistence initialized", "path", absPath)

	return bp, nil
}

// initSchema initializes or validates the schema version
func (b *BadgerPersistence) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(persistence.KeySchemaVersion))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return txn.Set([]byte(persistence.KeySchemaVersion), []byte(persistence.CurrentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		existingVersion, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if string(existingVersion) != persistence.CurrentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, persistence.CurrentSchemaVersion)
		}

		return nil
	})
}

func (b *BadgerPersistence) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(0.5)
			if err != nil && !errors.Is(err, badgerdb.ErrNoRewrite) {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// get returns a copy of the value at key, nil if absent.
func get(txn *badgerdb.Txn, key string) ([]byte, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// CreateBinding stores bnd unless the contract is already bound.
func (b *BadgerPersistence) CreateBinding(bnd *types.StoredBinding) error {
	if bnd == nil {
		return fmt.Errorf("cannot save nil StoredBinding")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalBinding(bnd)
	if err != nil {
		return fmt.Errorf("failed to marshal StoredBinding: %w", err)
	}

	key := persistence.BindingKey(bnd.Contract)
	err = b.db.Update(func(txn *badgerdb.Txn) error {
		existing, err := get(txn, key)
		if err != nil {
			return err
		}
		if existing != nil {
			return persistence.ErrBindingExists
		}
		return txn.Set([]byte(key), data)
	})
	if errors.Is(err, badgerdb.ErrConflict) {
		return persistence.ErrBindingExists
	}
	if err != nil && !errors.Is(err, persistence.ErrBindingExists) {
		return fmt.Errorf("failed to save StoredBinding: %w", err)
	}
	return err
}

// LoadBinding returns the contract's binding, nil if unbound.
func (b *BadgerPersistence) LoadBinding(contract common.Address) (*types.StoredBinding, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		var err error
		data, err = get(txn, persistence.BindingKey(contract))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load StoredBinding: %w", err)
	}
	if data == nil {
		return nil, nil // Not found
	}

	bnd, err := persistence.UnmarshalBinding(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal StoredBinding: %w", err)
	}
	return bnd, nil
}

func readNonce(txn *badgerdb.Txn, actor common.Address) (*uint256.Int, error) {
	data, err := get(txn, persistence.NonceKey(actor))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return new(uint256.Int), nil
	}
	return persistence.NonceFromBytes(data)
}

// GetNonce returns the actor's next nonce.
func (b *BadgerPersistence) GetNonce(actor common.Address) (*uint256.Int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	var nonce *uint256.Int
	err := b.db.View(func(txn *badgerdb.Txn) error {
		var err error
		nonce, err = readNonce(txn, actor)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	return nonce, nil
}

// AdvanceNonce moves the actor from expected to expected+1 and writes record
// in the same transaction.
func (b *BadgerPersistence) AdvanceNonce(actor common.Address, expected *uint256.Int, record *types.ActionRecord) error {
	if err := persistence.CheckRecord(actor, expected, record); err != nil {
		return err
	}
	next, err := persistence.NextNonce(expected)
	if err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalActionRecord(record)
	if err != nil {
		return fmt.Errorf("failed to marshal ActionRecord: %w", err)
	}

	err = b.db.Update(func(txn *badgerdb.Txn) error {
		current, err := readNonce(txn, actor)
		if err != nil {
			return err
		}
		if !current.Eq(expected) {
			return persistence.ErrNonceConflict
		}
		if err := txn.Set([]byte(persistence.NonceKey(actor)), persistence.NonceBytes(next)); err != nil {
			return err
		}
		return txn.Set([]byte(persistence.ActionKey(actor, expected)), data)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badgerdb.ErrConflict), errors.Is(err, persistence.ErrNonceConflict):
		return persistence.ErrNonceConflict
	default:
		return fmt.Errorf("failed to advance nonce: %w", err)
	}
}

// LoadAction returns the record at (actor, nonce), nil if none.
func (b *BadgerPersistence) LoadAction(actor common.Address, nonce *uint256.Int) (*types.ActionRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		var err error
		data, err = get(txn, persistence.ActionKey(actor, nonce))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load ActionRecord: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	return persistence.UnmarshalActionRecord(data)
}

// ListActions returns the actor's records in nonce order. Keys embed the
// nonce as fixed-width hex, so iteration order is already nonce order.
func (b *BadgerPersistence) ListActions(actor common.Address) ([]*types.ActionRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	actions := []*types.ActionRecord{}

	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(persistence.ActionPrefix(actor))

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			data, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}

			record, err := persistence.UnmarshalActionRecord(data)
			if err != nil {
				b.logger.Sugar().Warnw("Failed to unmarshal ActionRecord, skipping",
					"key", string(item.Key()), "error", err)
				continue
			}

			actions = append(actions, record)
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list ActionRecords: %w", err)
	}

	return actions, nil
}

// Close shuts down the persistence layer
func (b *BadgerPersistence) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil // Already closed, idempotent
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (b *BadgerPersistence) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(persistence.KeySchemaVersion))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}
