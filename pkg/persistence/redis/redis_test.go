package redis

import (
	"os"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3-social/profile-keys-go/pkg/logger"
	"github.com/web3-social/profile-keys-go/pkg/persistence"
	"github.com/web3-social/profile-keys-go/pkg/persistence/persistenceTest"
)

// getTestRedisAddress returns the Redis address for testing.
// Uses REDIS_TEST_ADDRESS env var if set, otherwise defaults to localhost:6379.
func getTestRedisAddress() string {
	if addr := os.Getenv("REDIS_TEST_ADDRESS"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

// requireRedis skips the test if Redis is not available
func requireRedis(t *testing.T) *RedisPersistence {
	t.Helper()

	cfg := &RedisConfig{
		Address:   getTestRedisAddress(),
		DB:        15, // Use DB 15 for tests to avoid conflicts
		KeyPrefix: "test:",
	}

	rp, err := NewRedisPersistence(cfg, logger.NewTestLogger())
	if err != nil {
		t.Skipf("Redis not available at %s: %v", cfg.Address, err)
		return nil
	}

	return rp
}

func TestRedisPersistence(t *testing.T) {
	probe := requireRedis(t)
	_ = probe.Close()

	persistenceTest.Run(t, func(t *testing.T) persistence.IProtocolPersistence {
		return requireRedis(t)
	})
}

func TestRedisPersistence_InterfaceCompliance(t *testing.T) {
	var _ persistence.IProtocolPersistence = (*RedisPersistence)(nil)
}

func TestNewRedisPersistence_InvalidConfig(t *testing.T) {
	_, err := NewRedisPersistence(nil, logger.NewTestLogger())
	assert.Error(t, err)

	_, err = NewRedisPersistence(&RedisConfig{}, logger.NewTestLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address cannot be empty")
}

func TestRedisPersistence_SharedAcrossClients(t *testing.T) {
	a := requireRedis(t)
	defer func() { _ = a.Close() }()
	b := requireRedis(t)
	defer func() { _ = b.Close() }()

	actor := persistenceTest.RandomAddress()
	require.NoError(t, a.AdvanceNonce(actor, uint256.NewInt(0), persistenceTest.NewRecord(actor, 0, "from a")))

	err := b.AdvanceNonce(actor, uint256.NewInt(0), persistenceTest.NewRecord(actor, 0, "from b"))
	assert.ErrorIs(t, err, persistence.ErrNonceConflict)

	nonce, err := b.GetNonce(actor)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), nonce.Uint64())
}

func TestRedisPersistence_KeyPrefix(t *testing.T) {
	rp := requireRedis(t)
	defer func() { _ = rp.Close() }()

	assert.Equal(t, "test:profile:nonce:ab", rp.prefixKey("nonce:ab"))
}
