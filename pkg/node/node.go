package node

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/web3-social/profile-keys-go/pkg/authorizer"
	"github.com/web3-social/profile-keys-go/pkg/binding"
	"github.com/web3-social/profile-keys-go/pkg/logger"
	"github.com/web3-social/profile-keys-go/pkg/persistence"
)

// Node represents a profile node: one persistence layer shared by the
// binding verifier and the action authorizer, served over HTTP.
type Node struct {
	Port int

	// Dependencies
	store      persistence.IProtocolPersistence
	verifier   *binding.Verifier
	authorizer *authorizer.Authorizer
	server     *Server
	logger     *zap.Logger
}

// Config holds node configuration
type Config struct {
	Port int

	// Per-client token bucket; a zero rate disables limiting.
	RateLimitPerSecond float64
	RateLimitBurst     int

	Logger *zap.Logger // Optional logger, will create default if nil
}

// NewNode creates a new node instance with dependency injection
func NewNode(cfg Config, store persistence.IProtocolPersistence) *Node {
	nodeLogger := cfg.Logger
	if nodeLogger == nil {
		nodeLogger = fallbackLogger(func() (*zap.Logger, error) {
			return logger.NewLogger(&logger.LoggerConfig{Debug: false})
		})
	}

	n := &Node{
		Port:       cfg.Port,
		store:      store,
		verifier:   binding.NewVerifier(store, nodeLogger),
		authorizer: authorizer.NewAuthorizer(store, nodeLogger),
		logger:     nodeLogger,
	}
	n.server = NewServer(n, cfg)

	return n
}

// fallbackLogger never returns nil; a logger that fails to build is replaced
// by a no-op one.
func fallbackLogger(build func() (*zap.Logger, error)) *zap.Logger {
	l, err := build()
	if err != nil || l == nil {
		return zap.NewNop()
	}
	return l
}

// Start starts the node's HTTP server
func (n *Node) Start() error {
	if err := n.store.HealthCheck(); err != nil {
		return fmt.Errorf("persistence is not healthy: %w", err)
	}
	return n.server.Start()
}

// Stop stops the HTTP server and closes the persistence layer
func (n *Node) Stop() error {
	serverErr := n.server.Stop()
	if err := n.store.Close(); err != nil {
		return fmt.Errorf("failed to close persistence: %w", err)
	}
	return serverErr
}

func (n *Node) GetVerifier() *binding.Verifier {
	return n.verifier
}

func (n *Node) GetAuthorizer() *authorizer.Authorizer {
	return n.authorizer
}

func (n *Node) GetServer() *Server {
	return n.server
}
