package profileClient

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/web3-social/profile-keys-go/pkg/authorizer"
	"github.com/web3-social/profile-keys-go/pkg/binding"
	"github.com/web3-social/profile-keys-go/pkg/message"
	"github.com/web3-social/profile-keys-go/pkg/signing"
	"github.com/web3-social/profile-keys-go/pkg/types"
)

var (
	// ErrNotFound is returned for lookups of actions that were never authorized.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited is returned when the node throttled the client.
	ErrRateLimited = errors.New("rate limited")

	// ErrServer is returned for internal node failures.
	ErrServer = errors.New("server error")
)

var codeSentinels = map[string]error{
	types.ErrorCodeEncoding:          message.ErrEncoding,
	types.ErrorCodeInvalidSignature:  signing.ErrInvalidSignature,
	types.ErrorCodeOwnershipMismatch: binding.ErrOwnershipMismatch,
	types.ErrorCodeAlreadyBound:      binding.ErrAlreadyBound,
	types.ErrorCodeNotBound:          binding.ErrNotBound,
	types.ErrorCodeNonceMismatch:     authorizer.ErrNonceMismatch,
	types.ErrorCodeNonceExhausted:    authorizer.ErrNonceExhausted,
	types.ErrorCodeSignerMismatch:    authorizer.ErrSignerMismatch,
	types.ErrorCodeUnknownTarget:     authorizer.ErrUnknownTarget,
	types.ErrorCodeNotFound:          ErrNotFound,
	types.ErrorCodeRateLimited:       ErrRateLimited,
	types.ErrorCodeInternal:          ErrServer,
}

// APIError is a non-2xx response from the node. It unwraps to the sentinel
// error of its code, so errors.Is(err, authorizer.ErrNonceMismatch) works
// across the wire.
type APIError struct {
	StatusCode    int
	Code          string
	Message       string
	ExpectedNonce string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("profile node returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	if sentinel, ok := codeSentinels[e.Code]; ok {
		return sentinel
	}
	return ErrServer
}

// Expected returns the nonce the node expects next, for nonce_mismatch errors.
func (e *APIError) Expected() (*uint256.Int, bool) {
	if e.ExpectedNonce == "" {
		return nil, false
	}
	n, err := message.ParseNonce(e.ExpectedNonce)
	if err != nil {
		return nil, false
	}
	return n, true
}

// ExpectedNonce extracts the node's expected nonce from err, if it carries one.
func ExpectedNonce(err error) (*uint256.Int, bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return nil, false
	}
	return apiErr.Expected()
}
