package profileClient

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/web3-social/profile-keys-go/pkg/encryption"
	"github.com/web3-social/profile-keys-go/pkg/keys"
	"github.com/web3-social/profile-keys-go/pkg/message"
	"github.com/web3-social/profile-keys-go/pkg/signing"
	"github.com/web3-social/profile-keys-go/pkg/types"
)

// RetryConfig configures retry behavior. Only transport failures are
// retried; every response from the node, success or error, is final.
type RetryConfig struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides default retry settings
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     5,
	InitialBackoff:  100 * time.Millisecond,
	MaxBackoff:      5 * time.Second,
	BackoffMultiple: 2.0,
}

const defaultRequestTimeout = 30 * time.Second

// ClientConfig holds the configuration for the profile client
type ClientConfig struct {
	BaseURL    string
	Logger     *zap.Logger
	HTTPClient *http.Client // Optional, defaults to a client with a 30s timeout
	Retry      *RetryConfig // Optional, defaults to DefaultRetryConfig
}

// Client talks to a profile node over HTTP
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *zap.Logger
}

// NewClient creates a new profile client instance
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.ParseRequestURI(config.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", config.BaseURL, err)
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	retry := DefaultRetryConfig
	if config.Retry != nil {
		retry = *config.Retry
	}
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}

	return &Client{
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		httpClient:  httpClient,
		retryConfig: retry,
		logger:      config.Logger,
	}, nil
}

// Health returns nil when the node reports its persistence healthy.
func (c *Client) Health(ctx context.Context) error {
	var resp types.HealthResponse
	err := c.do(ctx, http.MethodGet, "/healthz", nil, &resp)
	if err != nil {
		return err
	}
	if resp.Status != types.HealthStatusOK {
		return fmt.Errorf("node is %s", resp.Status)
	}
	return nil
}

// Bind submits a binding signature for contract.
func (c *Client) Bind(ctx context.Context, contract, owner common.Address, sig signing.Signature) (*types.StoredBinding, error) {
	var resp types.BindingResponse
	err := c.do(ctx, http.MethodPost, "/bindings", &types.BindRequest{
		Contract:  contract.Hex(),
		Owner:     owner.Hex(),
		Signature: sig.Hex(),
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Binding, nil
}

// GetBinding returns the contract's binding, or an error matching
// binding.ErrNotBound.
func (c *Client) GetBinding(ctx context.Context, contract common.Address) (*types.StoredBinding, error) {
	var resp types.BindingResponse
	if err := c.do(ctx, http.MethodGet, "/bindings/"+contract.Hex(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Binding, nil
}

func (c *Client) IsAuthorized(ctx context.Context, contract, signer common.Address) (bool, error) {
	var resp types.AuthorizedResponse
	path := fmt.Sprintf("/bindings/%s/authorized?signer=%s", contract.Hex(), signer.Hex())
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return false, err
	}
	return resp.Authorized, nil
}

// AuthorizeSigned asks the node whether msg was signed by contract's bound
// owner. It returns the recovered signer either way.
func (c *Client) AuthorizeSigned(ctx context.Context, contract common.Address, msg message.CanonicalMessage, sig signing.Signature) (common.Address, bool, error) {
	var resp types.AuthorizedResponse
	query := url.Values{}
	query.Set("message", msg.Hex())
	query.Set("signature", sig.Hex())
	path := fmt.Sprintf("/bindings/%s/authorized?%s", contract.Hex(), query.Encode())
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return common.Address{}, false, err
	}
	signer, err := message.ParseAddress(resp.Signer)
	if err != nil {
		return common.Address{}, false, fmt.Errorf("node returned an invalid signer: %w", err)
	}
	return signer, resp.Authorized, nil
}

// OwnerPublicKey fetches the bound owner's public key and checks that it
// hashes to the owner address the node reports.
func (c *Client) OwnerPublicKey(ctx context.Context, contract common.Address) (*ecdsa.PublicKey, common.Address, error) {
	var resp types.PublicKeyResponse
	if err := c.do(ctx, http.MethodGet, "/bindings/"+contract.Hex()+"/pubkey", nil, &resp); err != nil {
		return nil, common.Address{}, err
	}

	pub, err := keys.PublicKeyFromHex(resp.PublicKey)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("node returned an invalid public key: %w", err)
	}
	owner, err := message.ParseAddress(resp.Owner)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("node returned an invalid owner: %w", err)
	}
	if keys.AddressOf(pub) != owner {
		return nil, common.Address{}, fmt.Errorf("public key %s does not match owner %s", resp.PublicKey, owner.Hex())
	}
	return pub, owner, nil
}

// EncryptTo seals plaintext to contract's owner without sending it anywhere.
// The owner's key is recovered locally from the stored binding signature and
// must hash to the bound owner address.
func (c *Client) EncryptTo(ctx context.Context, contract common.Address, plaintext []byte) (*encryption.CipherEnvelope, common.Address, error) {
	b, err := c.GetBinding(ctx, contract)
	if err != nil {
		return nil, common.Address{}, err
	}
	if b == nil || b.Contract != contract {
		return nil, common.Address{}, fmt.Errorf("node returned a binding for the wrong contract")
	}

	env, err := encryption.EncryptToSigner(message.BuildBinding(b.Contract, b.Owner), b.Signature, b.Owner, plaintext)
	if err != nil {
		return nil, common.Address{}, err
	}
	return env, b.Owner, nil
}

// GetNonce returns the nonce the actor's next action must carry.
func (c *Client) GetNonce(ctx context.Context, actor common.Address) (*uint256.Int, error) {
	var resp types.NonceResponse
	if err := c.do(ctx, http.MethodGet, "/actors/"+actor.Hex()+"/nonce", nil, &resp); err != nil {
		return nil, err
	}
	return message.ParseNonce(resp.Nonce)
}

// Authorize submits a generic signed action.
func (c *Client) Authorize(ctx context.Context, req *types.ActionRequest) (*types.ActionResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("action request cannot be nil")
	}
	var resp types.ActionResponse
	err := c.do(ctx, http.MethodPost, "/actions", &types.ActionRequestBody{
		Actor:       req.Actor.Hex(),
		ActorNonce:  types.NonceString(req.ActorNonce),
		Target:      req.Target.Hex(),
		TargetNonce: types.NonceString(req.TargetNonce),
		Content:     req.Content,
		Signature:   req.Signature.Hex(),
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Post submits a signed post at nonce.
func (c *Client) Post(ctx context.Context, actor common.Address, nonce *uint256.Int, content string, sig signing.Signature) (*types.ActionResponse, error) {
	var resp types.ActionResponse
	err := c.do(ctx, http.MethodPost, "/actions/post", &types.PostRequest{
		Actor:     actor.Hex(),
		Nonce:     types.NonceString(nonce),
		Content:   content,
		Signature: sig.Hex(),
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reply submits replier's signed reply to author's post at postNonce.
func (c *Client) Reply(ctx context.Context, replier common.Address, replierNonce *uint256.Int, author common.Address, postNonce *uint256.Int, content string, sig signing.Signature) (*types.ActionResponse, error) {
	var resp types.ActionResponse
	err := c.do(ctx, http.MethodPost, "/actions/reply", &types.ReplyRequest{
		Replier:      replier.Hex(),
		ReplierNonce: types.NonceString(replierNonce),
		PostAuthor:   author.Hex(),
		PostNonce:    types.NonceString(postNonce),
		Content:      content,
		Signature:    sig.Hex(),
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ListActions(ctx context.Context, actor common.Address) ([]*types.ActionRecord, error) {
	var resp types.ActionsResponse
	if err := c.do(ctx, http.MethodGet, "/actors/"+actor.Hex()+"/actions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Actions, nil
}

// GetAction returns the action at (actor, nonce), or an error matching
// ErrNotFound.
func (c *Client) GetAction(ctx context.Context, actor common.Address, nonce *uint256.Int) (*types.ActionRecord, error) {
	var resp types.ActionResponse
	path := fmt.Sprintf("/actors/%s/actions/%s", actor.Hex(), types.NonceString(nonce))
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Action, nil
}

// do sends one request, retrying transport failures with exponential
// backoff. Non-2xx responses are decoded into *APIError.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	backoff := c.retryConfig.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= c.retryConfig.MaxAttempts; attempt++ {
		if attempt > 1 {
			c.logger.Sugar().Debugw("Retrying request",
				"method", method,
				"path", path,
				"attempt", attempt,
				"error", lastErr,
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(float64(backoff) * c.retryConfig.BackoffMultiple)
			if backoff > c.retryConfig.MaxBackoff {
				backoff = c.retryConfig.MaxBackoff
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}
		return c.handleResponse(resp, out)
	}

	return fmt.Errorf("request %s %s failed after %d attempts: %w", method, path, c.retryConfig.MaxAttempts, lastErr)
}

func (c *Client) handleResponse(resp *http.Response, out interface{}) error {
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(status int, data []byte) error {
	var body types.ErrorResponse
	if err := json.Unmarshal(data, &body); err != nil || body.Code == "" {
		return &APIError{
			StatusCode: status,
			Code:       types.ErrorCodeInternal,
			Message:    strings.TrimSpace(string(data)),
		}
	}
	return &APIError{
		StatusCode:    status,
		Code:          body.Code,
		Message:       body.Error,
		ExpectedNonce: body.ExpectedNonce,
	}
}
