package node

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"

	"github.com/web3-social/profile-keys-go/pkg/types"
)

const (
	HeaderRequestID = "X-Request-Id"

	limiterSweepInterval = time.Minute
	limiterIdleTimeout   = 10 * time.Minute
)

type requestIDKey struct{}

// RequestIDFromContext returns the request id assigned by the server, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.node.logger.Sugar().Infow("HTTP request",
			"request_id", RequestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"remote", clientKey(r),
		)
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientKey(r)) {
			s.writeError(w, r, http.StatusTooManyRequests, &types.ErrorResponse{
				Error: "rate limit exceeded",
				Code:  types.ErrorCodeRateLimited,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey identifies the caller by remote IP. Forwarding headers are not
// trusted.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// clientRateLimiter keeps one token bucket per client.
type clientRateLimiter struct {
	limit   rate.Limit
	burst   int
	clients *xsync.MapOf[string, *limiterEntry]
}

func newClientRateLimiter(perSecond float64, burst int) *clientRateLimiter {
	return &clientRateLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		clients: xsync.NewMapOf[string, *limiterEntry](),
	}
}

func (c *clientRateLimiter) enabled() bool {
	return c.limit > 0
}

func (c *clientRateLimiter) allow(key string) bool {
	if !c.enabled() {
		return true
	}
	entry, _ := c.clients.LoadOrCompute(key, func() *limiterEntry {
		return &limiterEntry{limiter: rate.NewLimiter(c.limit, c.burst)}
	})
	entry.lastSeen.Store(time.Now().UnixNano())
	return entry.limiter.Allow()
}

// evictIdle drops buckets not used since cutoff.
func (c *clientRateLimiter) evictIdle(cutoff time.Time) {
	c.clients.Range(func(key string, _ *limiterEntry) bool {
		c.clients.Compute(key, func(old *limiterEntry, loaded bool) (*limiterEntry, bool) {
			if !loaded {
				return old, true
			}
			return old, old.lastSeen.Load() < cutoff.UnixNano()
		})
		return true
	})
}

func (c *clientRateLimiter) sweep(ctx context.Context, interval, idle time.Duration) {
	if !c.enabled() {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.evictIdle(time.Now().Add(-idle))
		case <-ctx.Done():
			return
		}
	}
}
