package node

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

/*
Server handles HTTP requests from profile clients.

Binding Flow:
  POST /bindings:
    - Request: { contract, owner, signature }
    - signature is the owner's signature over contract(20) || owner(20)
    - Recovered address must equal owner, otherwise ownership_mismatch
    - A contract binds once; later attempts get already_bound

  GET /bindings/{contract}:
    - Returns the stored binding or not_bound

  GET /bindings/{contract}/authorized?signer=0x...:
    - Reports whether signer is the bound owner

  GET /bindings/{contract}/authorized?message=0x...&signature=0x...:
    - Recovers the signer of a canonical message and reports whether it is
      the bound owner; an unrecoverable signature gets invalid_signature

  GET /bindings/{contract}/pubkey:
    - Re-recovers the owner's public key from the stored binding signature

  Encryption happens on the client: it fetches the binding, recovers the
  owner's key from the stored signature and seals the payload itself. The
  node never sees plaintext.

Action Flow:
  GET /actors/{actor}/nonce:
    - Returns the nonce the actor's next action must carry (starts at 0)

  POST /actions, /actions/post, /actions/reply:
    - Signature covers actor || actorNonce || target || targetNonce || keccak256(content)
    - Nonce is checked before the signature; a stale nonce gets nonce_mismatch
      with expectedNonce so the client can resync
    - On success the nonce advances by exactly one and the action is recorded

  GET /actors/{actor}/actions, /actors/{actor}/actions/{nonce}:
    - Authorized actions in nonce order

Every request carries an X-Request-Id (generated when absent), is access
logged, and is subject to a per-client token bucket.
*/

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Server handles HTTP requests for the node
type Server struct {
	node       *Node
	router     *mux.Router
	limiter    *clientRateLimiter
	httpServer *http.Server
	sweepStop  context.CancelFunc
}

// NewServer creates a new server instance
func NewServer(node *Node, cfg Config) *Server {
	s := &Server{
		node:    node,
		router:  mux.NewRouter(),
		limiter: newClientRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
	}

	s.router.Use(s.requestIDMiddleware, s.accessLogMiddleware, s.rateLimitMiddleware)
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	// Binding endpoints
	s.router.HandleFunc("/bindings", s.handleBind).Methods(http.MethodPost)
	s.router.HandleFunc("/bindings/{contract}", s.handleGetBinding).Methods(http.MethodGet)
	s.router.HandleFunc("/bindings/{contract}/authorized", s.handleIsAuthorized).Methods(http.MethodGet)
	s.router.HandleFunc("/bindings/{contract}/pubkey", s.handleOwnerPublicKey).Methods(http.MethodGet)

	// Action endpoints
	s.router.HandleFunc("/actors/{actor}/nonce", s.handleGetNonce).Methods(http.MethodGet)
	s.router.HandleFunc("/actions", s.handleAuthorize).Methods(http.MethodPost)
	s.router.HandleFunc("/actions/post", s.handleAuthorizePost).Methods(http.MethodPost)
	s.router.HandleFunc("/actions/reply", s.handleAuthorizeReply).Methods(http.MethodPost)
	s.router.HandleFunc("/actors/{actor}/actions", s.handleListActions).Methods(http.MethodGet)
	s.router.HandleFunc("/actors/{actor}/actions/{nonce}", s.handleGetAction).Methods(http.MethodGet)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.sweepStop = cancel
	go s.limiter.sweep(ctx, limiterSweepInterval, limiterIdleTimeout)

	go func() {
		s.node.logger.Sugar().Infow("Starting HTTP server", "port", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.node.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	if s.sweepStop != nil {
		s.sweepStop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}
