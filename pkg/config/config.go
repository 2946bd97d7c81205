package config

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for the profile server and client.
const (
	EnvProfilePort            = "PROFILE_PORT"
	EnvProfilePersistence     = "PROFILE_PERSISTENCE"
	EnvProfileDataPath        = "PROFILE_DATA_PATH"
	EnvProfileRedisAddress    = "PROFILE_REDIS_ADDRESS"
	EnvProfileRedisPassword   = "PROFILE_REDIS_PASSWORD"
	EnvProfileRedisDB         = "PROFILE_REDIS_DB"
	EnvProfileRedisKeyPrefix  = "PROFILE_REDIS_KEY_PREFIX"
	EnvProfileRateLimit       = "PROFILE_RATE_LIMIT"
	EnvProfileRateLimitBurst  = "PROFILE_RATE_LIMIT_BURST"
	EnvProfileDebug           = "PROFILE_DEBUG"
	EnvProfileServerURL       = "PROFILE_SERVER_URL"
	EnvProfileSignerType      = "PROFILE_SIGNER_TYPE"
	EnvProfilePrivateKey      = "PROFILE_PRIVATE_KEY"
	EnvProfileKeystorePath    = "PROFILE_KEYSTORE_PATH"
	EnvProfileKeystorePass    = "PROFILE_KEYSTORE_PASSWORD"
	EnvProfileAWSKeyID        = "PROFILE_AWS_KMS_KEY_ID"
	EnvProfileAWSRegion       = "PROFILE_AWS_REGION"
	EnvProfileContractAddress = "PROFILE_CONTRACT_ADDRESS"
)

type PersistenceType string

const (
	PersistenceType_Memory  PersistenceType = "memory"
	PersistenceType_Badger  PersistenceType = "badger"
	PersistenceType_LevelDB PersistenceType = "leveldb"
	PersistenceType_Redis   PersistenceType = "redis"
)

var supportedPersistenceTypes = []string{
	string(PersistenceType_Memory),
	string(PersistenceType_Badger),
	string(PersistenceType_LevelDB),
	string(PersistenceType_Redis),
}

// IsDurable reports whether the backend keeps state across restarts.
func (p PersistenceType) IsDurable() bool {
	return p != PersistenceType_Memory
}

type SignerType string

const (
	SignerType_Local    SignerType = "local"
	SignerType_Keystore SignerType = "keystore"
	SignerType_AWSKMS   SignerType = "aws-kms"
)

var supportedSignerTypes = []string{
	string(SignerType_Local),
	string(SignerType_Keystore),
	string(SignerType_AWSKMS),
}

const (
	DefaultPort               = 8080
	DefaultPersistenceType    = PersistenceType_Memory
	DefaultDataPath           = "./data"
	DefaultRateLimitPerSecond = 20.0
	DefaultRateLimitBurst     = 40
)

// RedisConfig holds the connection settings used when PersistenceType is redis
type RedisConfig struct {
	Address   string `json:"address" yaml:"address"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	KeyPrefix string `json:"keyPrefix" yaml:"keyPrefix"`
}

// ServerConfig represents the complete configuration for a profile server
type ServerConfig struct {
	Port int `json:"port"`

	PersistenceType PersistenceType `json:"persistence_type"`
	DataPath        string          `json:"data_path"` // badger and leveldb
	Redis           RedisConfig     `json:"redis"`

	// Per-client token bucket. A zero rate disables limiting.
	RateLimitPerSecond float64 `json:"rate_limit_per_second"`
	RateLimitBurst     int     `json:"rate_limit_burst"`

	Debug bool `json:"debug"`
}

// NewDefaultServerConfig returns a config that serves from memory on DefaultPort.
func NewDefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:               DefaultPort,
		PersistenceType:    DefaultPersistenceType,
		DataPath:           DefaultDataPath,
		RateLimitPerSecond: DefaultRateLimitPerSecond,
		RateLimitBurst:     DefaultRateLimitBurst,
	}
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	var allErrors field.ErrorList

	if c.Port < 1 || c.Port > 65535 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("port"), c.Port, "port must be between 1-65535"))
	}

	c.PersistenceType = PersistenceType(strings.ToLower(string(c.PersistenceType)))
	switch c.PersistenceType {
	case PersistenceType_Memory:
	case PersistenceType_Badger, PersistenceType_LevelDB:
		if c.DataPath == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("dataPath"), fmt.Sprintf("dataPath is required for %s persistence", c.PersistenceType)))
		}
	case PersistenceType_Redis:
		if c.Redis.Address == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("redis", "address"), "redis address is required for redis persistence"))
		}
		if c.Redis.DB < 0 || c.Redis.DB > 15 {
			allErrors = append(allErrors, field.Invalid(field.NewPath("redis", "db"), c.Redis.DB, "redis db must be between 0-15"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("persistenceType"), string(c.PersistenceType), supportedPersistenceTypes))
	}

	if c.RateLimitPerSecond < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rateLimitPerSecond"), c.RateLimitPerSecond, "rate limit cannot be negative"))
	}
	if c.RateLimitPerSecond > 0 && c.RateLimitBurst < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rateLimitBurst"), c.RateLimitBurst, "burst must be at least 1 when rate limiting is enabled"))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// SignerConfig selects where the profile's secp256k1 key lives.
type SignerConfig struct {
	Type SignerType `json:"type" yaml:"type"`

	PrivateKey string `json:"privateKey" yaml:"privateKey"` // local

	KeystorePath     string `json:"keystorePath" yaml:"keystorePath"` // keystore
	KeystorePassword string `json:"keystorePassword" yaml:"keystorePassword"`

	AWSKeyID  string `json:"awsKeyId" yaml:"awsKeyId"` // aws-kms
	AWSRegion string `json:"awsRegion" yaml:"awsRegion"`
}

func (sc *SignerConfig) Validate() error {
	var allErrors field.ErrorList

	switch sc.Type {
	case SignerType_Local:
		if sc.PrivateKey == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("privateKey"), "privateKey is required for local signer"))
		} else if len(strings.TrimPrefix(sc.PrivateKey, "0x")) != 64 {
			allErrors = append(allErrors, field.Invalid(field.NewPath("privateKey"), "<redacted>", "private key must be 32 bytes (64 hex chars)"))
		}
	case SignerType_Keystore:
		if sc.KeystorePath == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("keystorePath"), "keystorePath is required for keystore signer"))
		}
	case SignerType_AWSKMS:
		if sc.AWSKeyID == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("awsKeyId"), "awsKeyId is required for aws-kms signer"))
		}
		if sc.AWSRegion == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("awsRegion"), "awsRegion is required for aws-kms signer"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("type"), string(sc.Type), supportedSignerTypes))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}
