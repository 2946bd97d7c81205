package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/web3-social/profile-keys-go/pkg/persistence"
	"github.com/web3-social/profile-keys-go/pkg/types"
)

const (
	// namespace is prepended to the shared key layout.
	namespace = "profile:"

	// keyPrefixActionLog holds an RPUSH list of serialized records per actor.
	// Nonces advance by one, so list order is nonce order.
	keyPrefixActionLog = "actionlog:"
)

// RedisPersistence is a distributed persistence implementation using Redis.
//
// CreateBinding relies on SETNX. AdvanceNonce runs a WATCH/MULTI/EXEC
// optimistic transaction on the actor's nonce key; a concurrent writer makes
// EXEC fail with TxFailedErr, reported as ErrNonceConflict.
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is an optional custom prefix for all keys (for multi-tenant setups),
	// e.g. "myapp:" yields keys like "myapp:profile:binding:...".
	KeyPrefix string
}

// NewRedisPersistence connects to Redis and validates the schema version.
func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rp := &RedisPersistence{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rp.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis persistence initialized", "address", cfg.Address, "db", cfg.DB, "key_prefix", cfg.KeyPrefix)

	return rp, nil
}

// prefixKey adds the custom key prefix (if configured) and the namespace.
func (r *RedisPersistence) prefixKey(key string) string {
	return r.keyPrefix + namespace + key
}

func (r *RedisPersistence) actionLogKey(actor common.Address) string {
	return r.prefixKey(keyPrefixActionLog + persistence.ActionPrefix(actor))
}

func (r *RedisPersistence) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(persistence.KeySchemaVersion)

	// SETNX so concurrent first starts agree on the version
	if err := r.client.SetNX(ctx, schemaKey, persistence.CurrentSchemaVersion, 0).Err(); err != nil {
		return fmt.Errorf("failed to write schema version: %w", err)
	}

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if existingVersion != persistence.CurrentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, persistence.CurrentSchemaVersion)
	}

	return nil
}

// CreateBinding stores b unless the contract is already bound.
func (r *RedisPersistence) CreateBinding(b *types.StoredBinding) error {
	if b == nil {
		return fmt.Errorf("cannot save nil StoredBinding")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalBinding(b)
	if err != nil {
		return fmt.Errorf("failed to marshal StoredBinding: %w", err)
	}

	ok, err := r.client.SetNX(context.Background(), r.prefixKey(persistence.BindingKey(b.Contract)), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to save StoredBinding: %w", err)
	}
	if !ok {
		return persistence.ErrBindingExists
	}
	return nil
}

// LoadBinding returns the contract's binding, nil if unbound.
func (r *RedisPersistence) LoadBinding(contract common.Address) (*types.StoredBinding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	data, err := r.client.Get(context.Background(), r.prefixKey(persistence.BindingKey(contract))).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load StoredBinding: %w", err)
	}

	return persistence.UnmarshalBinding(data)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisPersistence) readNonce(ctx context.Context, c getter, actor common.Address) (*uint256.Int, error) {
	data, err := c.Get(ctx, r.prefixKey(persistence.NonceKey(actor))).Bytes()
	if errors.Is(err, redis.Nil) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return persistence.NonceFromBytes(data)
}

// GetNonce returns the actor's next nonce.
func (r *RedisPersistence) GetNonce(actor common.Address) (*uint256.Int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	nonce, err := r.readNonce(context.Background(), r.client, actor)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	return nonce, nil
}

// AdvanceNonce moves the actor from expected to expected+1 and appends record
// in one MULTI/EXEC block guarded by WATCH on the nonce key.
func (r *RedisPersistence) AdvanceNonce(actor common.Address, expected *uint256.Int, record *types.ActionRecord) error {
	if err := persistence.CheckRecord(actor, expected, record); err != nil {
		return err
	}
	next, err := persistence.NextNonce(expected)
	if err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalActionRecord(record)
	if err != nil {
		return fmt.Errorf("failed to marshal ActionRecord: %w", err)
	}

	ctx := context.Background()
	nonceKey := r.prefixKey(persistence.NonceKey(actor))

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := r.readNonce(ctx, tx, actor)
		if err != nil {
			return err
		}
		if !current.Eq(expected) {
			return persistence.ErrNonceConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, nonceKey, persistence.NonceBytes(next), 0)
			pipe.Set(ctx, r.prefixKey(persistence.ActionKey(actor, expected)), data, 0)
			pipe.RPush(ctx, r.actionLogKey(actor), data)
			return nil
		})
		return err
	}, nonceKey)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr), errors.Is(err, persistence.ErrNonceConflict):
		return persistence.ErrNonceConflict
	default:
		return fmt.Errorf("failed to advance nonce: %w", err)
	}
}

// LoadAction returns the record at (actor, nonce), nil if none.
func (r *RedisPersistence) LoadAction(actor common.Address, nonce *uint256.Int) (*types.ActionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	data, err := r.client.Get(context.Background(), r.prefixKey(persistence.ActionKey(actor, nonce))).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ActionRecord: %w", err)
	}
	return persistence.UnmarshalActionRecord(data)
}

// ListActions returns the actor's records in nonce order.
func (r *RedisPersistence) ListActions(actor common.Address) ([]*types.ActionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	values, err := r.client.LRange(context.Background(), r.actionLogKey(actor), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list ActionRecords: %w", err)
	}

	actions := make([]*types.ActionRecord, 0, len(values))
	for _, val := range values {
		record, err := persistence.UnmarshalActionRecord([]byte(val))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal ActionRecord, skipping",
				"actor", actor.Hex(), "error", err)
			continue
		}
		actions = append(actions, record)
	}

	return actions, nil
}

// Close shuts down the persistence layer
func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil // Already closed, idempotent
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (r *RedisPersistence) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	_, err := r.client.Get(ctx, r.prefixKey(persistence.KeySchemaVersion)).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}

	return nil
}
