package leveldb

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"

	"github.com/web3-social/profile-keys-go/pkg/persistence"
	"github.com/web3-social/profile-keys-go/pkg/types"
)

// LevelDBPersistence is an embedded persistence implementation using LevelDB.
//
// LevelDB has no read-modify-write transactions that leave unrelated keys
// writable, so each mutation takes a mutex scoped to the key it guards
// (one per contract or actor), re-reads the current value and commits a
// synced batch.
type LevelDBPersistence struct {
	db     *leveldb.DB
	logger *zap.Logger
	path   string

	keyLocks *xsync.MapOf[string, *sync.Mutex]

	mu     sync.RWMutex
	closed bool
}

// NewLevelDBPersistence opens (or creates) a LevelDB database under dataPath.
func NewLevelDBPersistence(dataPath string, logger *zap.Logger) (*LevelDBPersistence, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	options := &opt.Options{
		BlockCacheCapacity: 16 * opt.MiB,
		WriteBuffer:        8 * opt.MiB,
	}

	db, err := leveldb.OpenFile(absPath, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb database at %s: %w", absPath, err)
	}

	lp := &LevelDBPersistence{
		db:       db,
		logger:   logger,
		path:     absPath,
		keyLocks: xsync.NewMapOf[string, *sync.Mutex](),
	}

	if err := lp.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("LevelDB persistence initialized", "path", absPath)

	return lp, nil
}

func (l *LevelDBPersistence) initSchema() error {
	existing, err := l.db.Get([]byte(persistence.KeySchemaVersion), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return l.db.Put([]byte(persistence.KeySchemaVersion), []byte(persistence.CurrentSchemaVersion), &opt.WriteOptions{Sync: true})
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if string(existing) != persistence.CurrentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existing, persistence.CurrentSchemaVersion)
	}
	return nil
}

// lockKey serializes writers of one key. Locks are kept for the lifetime of
// the store.
func (l *LevelDBPersistence) lockKey(key string) func() {
	m, _ := l.keyLocks.LoadOrCompute(key, func() *sync.Mutex { return &sync.Mutex{} })
	m.Lock()
	return m.Unlock
}

func (l *LevelDBPersistence) get(key string) ([]byte, error) {
	data, err := l.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

// CreateBinding stores b unless the contract is already bound.
func (l *LevelDBPersistence) CreateBinding(b *types.StoredBinding) error {
	if b == nil {
		return fmt.Errorf("cannot save nil StoredBinding")
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalBinding(b)
	if err != nil {
		return fmt.Errorf("failed to marshal StoredBinding: %w", err)
	}

	key := persistence.BindingKey(b.Contract)
	unlock := l.lockKey(key)
	defer unlock()

	existing, err := l.get(key)
	if err != nil {
		return fmt.Errorf("failed to read StoredBinding: %w", err)
	}
	if existing != nil {
		return persistence.ErrBindingExists
	}

	if err := l.db.Put([]byte(key), data, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("failed to save StoredBinding: %w", err)
	}
	return nil
}

// LoadBinding returns the contract's binding, nil if unbound.
func (l *LevelDBPersistence) LoadBinding(contract common.Address) (*types.StoredBinding, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, persistence.ErrClosed
	}

	data, err := l.get(persistence.BindingKey(contract))
	if err != nil {
		return nil, fmt.Errorf("failed to load StoredBinding: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	return persistence.UnmarshalBinding(data)
}

func (l *LevelDBPersistence) readNonce(actor common.Address) (*uint256.Int, error) {
	data, err := l.get(persistence.NonceKey(actor))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return new(uint256.Int), nil
	}
	return persistence.NonceFromBytes(data)
}

// GetNonce returns the actor's next nonce.
func (l *LevelDBPersistence) GetNonce(actor common.Address) (*uint256.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, persistence.ErrClosed
	}

	nonce, err := l.readNonce(actor)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	return nonce, nil
}

// AdvanceNonce moves the actor from expected to expected+1 and writes record
// in one batch.
func (l *LevelDBPersistence) AdvanceNonce(actor common.Address, expected *uint256.Int, record *types.ActionRecord) error {
	if err := persistence.CheckRecord(actor, expected, record); err != nil {
		return err
	}
	next, err := persistence.NextNonce(expected)
	if err != nil {
		return err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalActionRecord(record)
	if err != nil {
		return fmt.Errorf("failed to marshal ActionRecord: %w", err)
	}

	nonceKey := persistence.NonceKey(actor)
	unlock := l.lockKey(nonceKey)
	defer unlock()

	current, err := l.readNonce(actor)
	if err != nil {
		return fmt.Errorf("failed to read nonce: %w", err)
	}
	if !current.Eq(expected) {
		return persistence.ErrNonceConflict
	}

	batch := new(leveldb.Batch)
	batch.Put([]byte(nonceKey), persistence.NonceBytes(next))
	batch.Put([]byte(persistence.ActionKey(actor, expected)), data)

	if err := l.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("failed to advance nonce: %w", err)
	}
	return nil
}

// LoadAction returns the record at (actor, nonce), nil if none.
func (l *LevelDBPersistence) LoadAction(actor common.Address, nonce *uint256.Int) (*types.ActionRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, persistence.ErrClosed
	}

	data, err := l.get(persistence.ActionKey(actor, nonce))
	if err != nil {
		return nil, fmt.Errorf("failed to load ActionRecord: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	return persistence.UnmarshalActionRecord(data)
}

// ListActions returns the actor's records in nonce order.
func (l *LevelDBPersistence) ListActions(actor common.Address) ([]*types.ActionRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, persistence.ErrClosed
	}

	actions := []*types.ActionRecord{}

	iter := l.db.NewIterator(util.BytesPrefix([]byte(persistence.ActionPrefix(actor))), nil)
	defer iter.Release()

	for iter.Next() {
		record, err := persistence.UnmarshalActionRecord(iter.Value())
		if err != nil {
			l.logger.Sugar().Warnw("Failed to unmarshal ActionRecord, skipping",
				"key", string(iter.Key()), "error", err)
			continue
		}
		actions = append(actions, record)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to list ActionRecords: %w", err)
	}

	return actions, nil
}

// Close shuts down the persistence layer
func (l *LevelDBPersistence) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	if err := l.db.Close(); err != nil {
		return fmt.Errorf("failed to close leveldb database: %w", err)
	}

	l.logger.Sugar().Infow("LevelDB persistence closed", "path", l.path)
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (l *LevelDBPersistence) HealthCheck() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return persistence.ErrClosed
	}

	data, err := l.get(persistence.KeySchemaVersion)
	if err != nil {
		return fmt.Errorf("leveldb health check failed: %w", err)
	}
	if data == nil {
		return fmt.Errorf("schema version not found - database may be corrupted")
	}
	return nil
}
