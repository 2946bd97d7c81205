package node

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/web3-social/profile-keys-go/pkg/config"
	"github.com/web3-social/profile-keys-go/pkg/persistence"
	"github.com/web3-social/profile-keys-go/pkg/persistence/badger"
	"github.com/web3-social/profile-keys-go/pkg/persistence/leveldb"
	"github.com/web3-social/profile-keys-go/pkg/persistence/memory"
	"github.com/web3-social/profile-keys-go/pkg/persistence/redis"
)

// NewPersistence opens the backend selected by cfg.PersistenceType.
func NewPersistence(cfg *config.ServerConfig, logger *zap.Logger) (persistence.IProtocolPersistence, error) {
	switch cfg.PersistenceType {
	case config.PersistenceType_Memory, "":
		return memory.NewMemoryPersistence(logger), nil
	case config.PersistenceType_Badger:
		store, err := badger.NewBadgerPersistence(cfg.DataPath, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.PersistenceType_LevelDB:
		store, err := leveldb.NewLevelDBPersistence(cfg.DataPath, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.PersistenceType_Redis:
		store, err := redis.NewRedisPersistence(&redis.RedisConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s", cfg.PersistenceType)
	}
}
