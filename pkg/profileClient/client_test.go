package profileClient

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3-social/profile-keys-go/pkg/authorizer"
	"github.com/web3-social/profile-keys-go/pkg/binding"
	"github.com/web3-social/profile-keys-go/pkg/encryption"
	"github.com/web3-social/profile-keys-go/pkg/logger"
	"github.com/web3-social/profile-keys-go/pkg/message"
	"github.com/web3-social/profile-keys-go/pkg/node"
	"github.com/web3-social/profile-keys-go/pkg/profileSigner/inMemoryProfileSigner"
	"github.com/web3-social/profile-keys-go/pkg/signing"
	"github.com/web3-social/profile-keys-go/pkg/testutil"
	"github.com/web3-social/profile-keys-go/pkg/types"
)

var fastRetry = &RetryConfig{
	MaxAttempts:     3,
	InitialBackoff:  time.Millisecond,
	MaxBackoff:      5 * time.Millisecond,
	BackoffMultiple: 2,
}

func newTestClient(t *testing.T) *Client {
	t.Helper()

	n := node.NewNode(node.Config{Logger: logger.NewTestLogger()}, testutil.NewTestStore(t))
	srv := httptest.NewServer(n.GetServer().GetHandler())
	t.Cleanup(srv.Close)

	c, err := NewClient(&ClientConfig{BaseURL: srv.URL, Logger: logger.NewTestLogger(), Retry: fastRetry})
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil)
	assert.Error(t, err)

	_, err = NewClient(&ClientConfig{Logger: logger.NewTestLogger()})
	assert.ErrorContains(t, err, "base URL is required")

	_, err = NewClient(&ClientConfig{BaseURL: "not a url", Logger: logger.NewTestLogger()})
	assert.ErrorContains(t, err, "invalid base URL")

	_, err = NewClient(&ClientConfig{BaseURL: "http://localhost:8080"})
	assert.ErrorContains(t, err, "logger is required")
}

func TestClient_BindingFlow(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	p := testutil.NewTestProfile(t)
	signer := inMemoryProfileSigner.NewInMemoryProfileSigner(p.Key, logger.NewTestLogger())

	require.NoError(t, c.Health(ctx))

	_, err := c.GetBinding(ctx, p.Contract)
	assert.ErrorIs(t, err, binding.ErrNotBound)

	b, err := c.BindWithSigner(ctx, signer, p.Contract)
	require.NoError(t, err)
	assert.Equal(t, p.Owner, b.Owner)

	_, err = c.BindWithSigner(ctx, signer, p.Contract)
	assert.ErrorIs(t, err, binding.ErrAlreadyBound)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)

	ok, err := c.IsAuthorized(ctx, p.Contract, p.Owner)
	require.NoError(t, err)
	assert.True(t, ok)

	pub, owner, err := c.OwnerPublicKey(ctx, p.Contract)
	require.NoError(t, err)
	assert.Equal(t, p.Owner, owner)
	assert.True(t, pub.Equal(&p.Key.PublicKey))

	msg := message.BuildAction(p.Owner, uint256.NewInt(0), p.Owner, uint256.NewInt(0), []byte("set avatar"))
	recovered, ok, err := c.AuthorizeSigned(ctx, p.Contract, msg, p.Sign(t, msg))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, p.Owner, recovered)

	other := testutil.NewTestProfile(t)
	recovered, ok, err = c.AuthorizeSigned(ctx, p.Contract, msg, other.Sign(t, msg))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, other.Owner, recovered)

	var zero signing.Signature
	_, _, err = c.AuthorizeSigned(ctx, p.Contract, msg, zero)
	assert.ErrorIs(t, err, signing.ErrInvalidSignature)
}

func TestClient_EncryptTo(t *testing.T) {
	ctx := context.Background()
	p := testutil.NewTestProfile(t)

	n := node.NewNode(node.Config{Logger: logger.NewTestLogger()}, testutil.NewTestStore(t))
	var sawPayload atomic.Bool
	payload := []byte{0xff, 0x00, 0xc3, 0x80, 0xfe}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if bytes.Contains(body, payload) || bytes.Contains([]byte(r.URL.RawQuery), []byte(hex.EncodeToString(payload))) {
			sawPayload.Store(true)
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		n.GetServer().GetHandler().ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(&ClientConfig{BaseURL: srv.URL, Logger: logger.NewTestLogger(), Retry: fastRetry})
	require.NoError(t, err)

	_, _, err = c.EncryptTo(ctx, p.Contract, payload)
	assert.ErrorIs(t, err, binding.ErrNotBound)

	_, err = c.Bind(ctx, p.Contract, p.Owner, p.BindingSignature(t))
	require.NoError(t, err)

	env, recipient, err := c.EncryptTo(ctx, p.Contract, payload)
	require.NoError(t, err)
	assert.Equal(t, p.Owner, recipient)
	assert.False(t, sawPayload.Load())

	plaintext, err := encryption.Decrypt(p.Key, env)
	require.NoError(t, err)
	assert.Equal(t, payload, plaintext)
}

func TestClient_EncryptTo_RejectsTamperedBinding(t *testing.T) {
	p := testutil.NewTestProfile(t)
	attacker := testutil.NewTestProfile(t)

	// a node claiming p owns the contract while serving a signature by attacker
	forged := &types.BindingResponse{Binding: &types.StoredBinding{
		Contract:  p.Contract,
		Owner:     p.Owner,
		Signature: attacker.Sign(t, message.BuildBinding(p.Contract, p.Owner)),
	}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(forged)
	}))
	defer srv.Close()

	c, err := NewClient(&ClientConfig{BaseURL: srv.URL, Logger: logger.NewTestLogger(), Retry: fastRetry})
	require.NoError(t, err)

	_, _, err = c.EncryptTo(context.Background(), p.Contract, []byte("secret"))
	assert.ErrorIs(t, err, encryption.ErrUnverifiedKey)
}

func TestClient_ForgedBinding(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	p := testutil.NewTestProfile(t)
	attacker := testutil.NewTestProfile(t)

	sig := attacker.Sign(t, message.BuildBinding(p.Contract, p.Owner))
	_, err := c.Bind(ctx, p.Contract, p.Owner, sig)
	assert.ErrorIs(t, err, binding.ErrOwnershipMismatch)
}

func TestClient_ActionFlow(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	alice := testutil.NewTestProfile(t)
	bob := testutil.NewTestProfile(t)
	aliceSigner := inMemoryProfileSigner.NewInMemoryProfileSigner(alice.Key, logger.NewTestLogger())
	bobSigner := inMemoryProfileSigner.NewInMemoryProfileSigner(bob.Key, logger.NewTestLogger())

	nonce, err := c.GetNonce(ctx, alice.Owner)
	require.NoError(t, err)
	assert.True(t, nonce.IsZero())

	resp, err := c.PostWithSigner(ctx, aliceSigner, "hello")
	require.NoError(t, err)
	assert.Equal(t, "1", resp.NextNonce)

	// stale nonce surfaces as a nonce mismatch carrying the expected nonce
	_, err = c.Post(ctx, alice.Owner, uint256.NewInt(0), "hello", alice.PostSignature(t, 0, "hello"))
	require.ErrorIs(t, err, authorizer.ErrNonceMismatch)
	expected, ok := ExpectedNonce(err)
	require.True(t, ok)
	assert.Equal(t, uint64(1), expected.Uint64())

	_, err = c.Post(ctx, alice.Owner, uint256.NewInt(1), "forged", bob.ActionSignature(t, 1, alice.Owner, 1, "forged"))
	assert.ErrorIs(t, err, authorizer.ErrSignerMismatch)

	reply, err := c.ReplyWithSigner(ctx, bobSigner, alice.Owner, uint256.NewInt(0), "hi alice")
	require.NoError(t, err)
	assert.Equal(t, types.ActionKindReply, reply.Action.Kind)

	_, err = c.ReplyWithSigner(ctx, bobSigner, alice.Owner, uint256.NewInt(9), "to nowhere")
	assert.ErrorIs(t, err, authorizer.ErrUnknownTarget)

	follow := "follow"
	_, err = c.Authorize(ctx, &types.ActionRequest{
		Actor:       alice.Owner,
		ActorNonce:  uint256.NewInt(1),
		Target:      bob.Owner,
		TargetNonce: uint256.NewInt(0),
		Content:     follow,
		Signature:   alice.ActionSignature(t, 1, bob.Owner, 0, follow),
	})
	require.NoError(t, err)

	actions, err := c.ListActions(ctx, alice.Owner)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, "hello", actions[0].Content)
	assert.Equal(t, "follow", actions[1].Content)

	action, err := c.GetAction(ctx, bob.Owner, uint256.NewInt(0))
	require.NoError(t, err)
	assert.Equal(t, "hi alice", action.Content)

	_, err = c.GetAction(ctx, bob.Owner, uint256.NewInt(3))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_PostWithSigner_Resyncs(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	p := testutil.NewTestProfile(t)
	signer := inMemoryProfileSigner.NewInMemoryProfileSigner(p.Key, logger.NewTestLogger())

	for i := 0; i < 3; i++ {
		_, err := c.PostWithSigner(ctx, signer, "post")
		require.NoError(t, err)
	}

	nonce, err := c.GetNonce(ctx, p.Owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), nonce.Uint64())
}

func TestClient_RetriesTransportErrorsOnly(t *testing.T) {
	t.Run("unreachable node", func(t *testing.T) {
		c, err := NewClient(&ClientConfig{BaseURL: "http://127.0.0.1:1", Logger: logger.NewTestLogger(), Retry: fastRetry})
		require.NoError(t, err)

		err = c.Health(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed after 3 attempts")
	})

	t.Run("api errors are not retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded","code":"rate_limited"}`))
		}))
		defer srv.Close()

		c, err := NewClient(&ClientConfig{BaseURL: srv.URL, Logger: logger.NewTestLogger(), Retry: fastRetry})
		require.NoError(t, err)

		_, err = c.GetNonce(context.Background(), testutil.NewTestProfile(t).Owner)
		assert.ErrorIs(t, err, ErrRateLimited)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("non-json error body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad gateway", http.StatusBadGateway)
		}))
		defer srv.Close()

		c, err := NewClient(&ClientConfig{BaseURL: srv.URL, Logger: logger.NewTestLogger(), Retry: fastRetry})
		require.NoError(t, err)

		err = c.Health(context.Background())
		assert.ErrorIs(t, err, ErrServer)

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
		assert.Equal(t, "bad gateway", apiErr.Message)
	})

	t.Run("context cancelled", func(t *testing.T) {
		c, err := NewClient(&ClientConfig{
			BaseURL: "http://127.0.0.1:1",
			Logger:  logger.NewTestLogger(),
			Retry:   &RetryConfig{MaxAttempts: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour, BackoffMultiple: 1},
		})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err = c.Health(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestAPIError_Unwrap(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{types.ErrorCodeEncoding, message.ErrEncoding},
		{types.ErrorCodeOwnershipMismatch, binding.ErrOwnershipMismatch},
		{types.ErrorCodeNonceMismatch, authorizer.ErrNonceMismatch},
		{types.ErrorCodeSignerMismatch, authorizer.ErrSignerMismatch},
		{"something_new", ErrServer},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := error(&APIError{StatusCode: 400, Code: tt.code})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, ok := ExpectedNonce(errors.New("plain"))
	assert.False(t, ok)
}
