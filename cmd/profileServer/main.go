package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/web3-social/profile-keys-go/pkg/config"
	"github.com/web3-social/profile-keys-go/pkg/logger"
	"github.com/web3-social/profile-keys-go/pkg/node"
)

func main() {
	app := &cli.App{
		Name:  "profile-server",
		Usage: "Profile key binding and action authorization node",
		Description: `An HTTP node that binds profile contracts to secp256k1 owner keys and
authorizes signed, strictly sequenced actions.

This server implements:
- Set-once contract -> owner bindings verified by signature recovery
- Per-actor nonce sequencing for posts, replies and generic actions
- ECIES encryption to a bound owner's recovered public key`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   config.DefaultPort,
				Usage:   "HTTP server port",
				EnvVars: []string{config.EnvProfilePort},
			},
			&cli.StringFlag{
				Name:    "persistence",
				Value:   string(config.DefaultPersistenceType),
				Usage:   "Persistence backend: memory, badger, leveldb or redis",
				EnvVars: []string{config.EnvProfilePersistence},
			},
			&cli.StringFlag{
				Name:    "data-path",
				Value:   config.DefaultDataPath,
				Usage:   "Data directory for badger and leveldb",
				EnvVars: []string{config.EnvProfileDataPath},
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Usage:   "Redis host:port",
				EnvVars: []string{config.EnvProfileRedisAddress},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				EnvVars: []string{config.EnvProfileRedisPassword},
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database number",
				EnvVars: []string{config.EnvProfileRedisDB},
			},
			&cli.StringFlag{
				Name:    "redis-key-prefix",
				Usage:   "Prefix for every Redis key",
				EnvVars: []string{config.EnvProfileRedisKeyPrefix},
			},
			&cli.Float64Flag{
				Name:    "rate-limit",
				Value:   config.DefaultRateLimitPerSecond,
				Usage:   "Requests per second per client IP (0 disables)",
				EnvVars: []string{config.EnvProfileRateLimit},
			},
			&cli.IntFlag{
				Name:    "rate-limit-burst",
				Value:   config.DefaultRateLimitBurst,
				Usage:   "Token bucket burst per client IP",
				EnvVars: []string{config.EnvProfileRateLimitBurst},
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "Enable debug logging",
				EnvVars: []string{config.EnvProfileDebug},
			},
		},
		Action: runProfileServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func runProfileServer(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("debug")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	serverConfig := parseServerConfig(c)
	if err := serverConfig.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := node.NewPersistence(serverConfig, l)
	if err != nil {
		return fmt.Errorf("failed to open persistence: %w", err)
	}
	if !serverConfig.PersistenceType.IsDurable() {
		l.Sugar().Warnw("Bindings and nonces will not survive a restart", "persistence", serverConfig.PersistenceType)
	}

	n := node.NewNode(node.Config{
		Port:               serverConfig.Port,
		RateLimitPerSecond: serverConfig.RateLimitPerSecond,
		RateLimitBurst:     serverConfig.RateLimitBurst,
		Logger:             l,
	}, store)

	l.Sugar().Infow("Starting profile server",
		"port", serverConfig.Port,
		"persistence", serverConfig.PersistenceType,
		"rate_limit", serverConfig.RateLimitPerSecond,
		"rate_limit_burst", serverConfig.RateLimitBurst,
	)

	if err := n.Start(); err != nil {
		_ = store.Close()
		return fmt.Errorf("failed to start node: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l.Sugar().Info("Press Ctrl+C to stop")
	<-ctx.Done()

	l.Sugar().Info("Shutting down profile server")
	return n.Stop()
}

func parseServerConfig(c *cli.Context) *config.ServerConfig {
	return &config.ServerConfig{
		Port:            c.Int("port"),
		PersistenceType: config.PersistenceType(c.String("persistence")),
		DataPath:        c.String("data-path"),
		Redis: config.RedisConfig{
			Address:   c.String("redis-address"),
			Password:  c.String("redis-password"),
			DB:        c.Int("redis-db"),
			KeyPrefix: c.String("redis-key-prefix"),
		},
		RateLimitPerSecond: c.Float64("rate-limit"),
		RateLimitBurst:     c.Int("rate-limit-burst"),
		Debug:              c.Bool("debug"),
	}
}
