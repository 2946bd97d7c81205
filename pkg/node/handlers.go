package node

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"

	"github.com/web3-social/profile-keys-go/pkg/authorizer"
	"github.com/web3-social/profile-keys-go/pkg/binding"
	"github.com/web3-social/profile-keys-go/pkg/keys"
	"github.com/web3-social/profile-keys-go/pkg/message"
	"github.com/web3-social/profile-keys-go/pkg/signing"
	"github.com/web3-social/profile-keys-go/pkg/types"
)

const maxRequestBodyBytes = 1 << 20

// handleHealth reports whether the persistence layer is usable
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.node.store.HealthCheck(); err != nil {
		s.node.logger.Sugar().Warnw("Health check failed", "error", err)
		s.writeJSON(w, r, http.StatusServiceUnavailable, &types.HealthResponse{Status: types.HealthStatusUnhealthy})
		return
	}
	s.writeJSON(w, r, http.StatusOK, &types.HealthResponse{Status: types.HealthStatusOK})
}

// handleBind verifies a binding signature and binds the contract
func (s *Server) handleBind(w http.ResponseWriter, r *http.Request) {
	var req types.BindRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	contract, err := parseAddressField("contract", req.Contract)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	owner, err := parseAddressField("owner", req.Owner)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	sig, err := signing.SignatureFromHex(req.Signature)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	b, err := s.node.verifier.Bind(contract, owner, sig)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusCreated, &types.BindingResponse{Binding: b})
}

func (s *Server) handleGetBinding(w http.ResponseWriter, r *http.Request) {
	contract, ok := s.pathAddress(w, r, "contract")
	if !ok {
		return
	}

	b, err := s.node.verifier.GetBinding(contract)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if b == nil {
		s.writeDomainError(w, r, fmt.Errorf("contract %s: %w", contract.Hex(), binding.ErrNotBound))
		return
	}

	s.writeJSON(w, r, http.StatusOK, &types.BindingResponse{Binding: b})
}

// handleIsAuthorized answers either for an explicit signer address or, when
// message and signature are given, for whoever signed that message.
func (s *Server) handleIsAuthorized(w http.ResponseWriter, r *http.Request) {
	contract, ok := s.pathAddress(w, r, "contract")
	if !ok {
		return
	}
	query := r.URL.Query()

	var (
		signer     common.Address
		authorized bool
		err        error
	)
	if query.Get("message") != "" || query.Get("signature") != "" {
		signer, authorized, err = s.authorizeSignedQuery(contract, query.Get("message"), query.Get("signature"))
	} else {
		signer, err = parseAddressField("signer", query.Get("signer"))
		if err == nil {
			authorized, err = s.node.verifier.IsAuthorized(contract, signer)
		}
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, &types.AuthorizedResponse{
		Contract:   contract.Hex(),
		Signer:     signer.Hex(),
		Authorized: authorized,
	})
}

func (s *Server) authorizeSignedQuery(contract common.Address, rawMessage, rawSignature string) (common.Address, bool, error) {
	msg, err := message.DecodeMessage(rawMessage)
	if err != nil {
		return common.Address{}, false, fmt.Errorf("message: %w", err)
	}
	sig, err := signing.SignatureFromHex(rawSignature)
	if err != nil {
		return common.Address{}, false, fmt.Errorf("signature: %w", err)
	}
	return s.node.verifier.AuthorizeSigned(contract, msg, sig)
}

func (s *Server) handleOwnerPublicKey(w http.ResponseWriter, r *http.Request) {
	contract, ok := s.pathAddress(w, r, "contract")
	if !ok {
		return
	}

	pub, err := s.node.verifier.OwnerPublicKey(contract)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, &types.PublicKeyResponse{
		Contract:  contract.Hex(),
		Owner:     keys.AddressOf(pub).Hex(),
		PublicKey: hexutil.Encode(keys.PublicKeyBytes(pub)),
	})
}

func (s *Server) handleGetNonce(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.pathAddress(w, r, "actor")
	if !ok {
		return
	}

	nonce, err := s.node.authorizer.PeekNonce(actor)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, &types.NonceResponse{
		Actor: actor.Hex(),
		Nonce: types.NonceString(nonce),
	})
}

// handleAuthorize authorizes a generic action with an explicit target
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	var body types.ActionRequestBody
	if !s.decodeBody(w, r, &body) {
		return
	}

	req, err := parseActionRequest(&body)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	authorized, err := s.node.authorizer.Authorize(req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.writeAuthorized(w, r, authorized)
}

func (s *Server) handleAuthorizePost(w http.ResponseWriter, r *http.Request) {
	var body types.PostRequest
	if !s.decodeBody(w, r, &body) {
		return
	}

	actor, err := parseAddressField("actor", body.Actor)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	nonce, err := parseNonceField("nonce", body.Nonce)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	sig, err := signing.SignatureFromHex(body.Signature)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	authorized, err := s.node.authorizer.AuthorizePost(actor, nonce, body.Content, sig)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.writeAuthorized(w, r, authorized)
}

func (s *Server) handleAuthorizeReply(w http.ResponseWriter, r *http.Request) {
	var body types.ReplyRequest
	if !s.decodeBody(w, r, &body) {
		return
	}

	replier, err := parseAddressField("replier", body.Replier)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	replierNonce, err := parseNonceField("replierNonce", body.ReplierNonce)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	author, err := parseAddressField("postAuthor", body.PostAuthor)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	postNonce, err := parseNonceField("postNonce", body.PostNonce)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	sig, err := signing.SignatureFromHex(body.Signature)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	authorized, err := s.node.authorizer.AuthorizeReply(replier, replierNonce, author, postNonce, body.Content, sig)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.writeAuthorized(w, r, authorized)
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.pathAddress(w, r, "actor")
	if !ok {
		return
	}

	actions, err := s.node.authorizer.ListActions(actor)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, &types.ActionsResponse{
		Actor:   actor.Hex(),
		Actions: actions,
	})
}

func (s *Server) handleGetAction(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.pathAddress(w, r, "actor")
	if !ok {
		return
	}
	nonce, err := parseNonceField("nonce", mux.Vars(r)["nonce"])
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	record, err := s.node.authorizer.GetAction(actor, nonce)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if record == nil {
		s.writeError(w, r, http.StatusNotFound, &types.ErrorResponse{
			Error: fmt.Sprintf("no action for %s at nonce %s", actor.Hex(), nonce.Dec()),
			Code:  types.ErrorCodeNotFound,
		})
		return
	}

	s.writeJSON(w, r, http.StatusOK, &types.ActionResponse{Action: record})
}

func (s *Server) writeAuthorized(w http.ResponseWriter, r *http.Request, a *types.AuthorizedAction) {
	s.writeJSON(w, r, http.StatusCreated, &types.ActionResponse{
		Action:    a.Record,
		NextNonce: types.NonceString(a.NextNonce),
	})
}

func parseAddressField(name, value string) (common.Address, error) {
	if value == "" {
		return common.Address{}, fmt.Errorf("%s is required: %w", name, message.ErrEncoding)
	}
	addr, err := message.ParseAddress(value)
	if err != nil {
		return common.Address{}, fmt.Errorf("%s: %w", name, err)
	}
	return addr, nil
}

func parseNonceField(name, value string) (*uint256.Int, error) {
	n, err := message.ParseNonce(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

func parseActionRequest(body *types.ActionRequestBody) (*types.ActionRequest, error) {
	actor, err := parseAddressField("actor", body.Actor)
	if err != nil {
		return nil, err
	}
	actorNonce, err := parseNonceField("actorNonce", body.ActorNonce)
	if err != nil {
		return nil, err
	}
	target, err := parseAddressField("target", body.Target)
	if err != nil {
		return nil, err
	}
	targetNonce, err := parseNonceField("targetNonce", body.TargetNonce)
	if err != nil {
		return nil, err
	}
	sig, err := signing.SignatureFromHex(body.Signature)
	if err != nil {
		return nil, err
	}

	return &types.ActionRequest{
		Kind:        types.ActionKindAction,
		Actor:       actor,
		ActorNonce:  actorNonce,
		Target:      target,
		TargetNonce: targetNonce,
		Content:     body.Content,
		Signature:   sig,
	}, nil
}

func (s *Server) pathAddress(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	addr, err := parseAddressField(name, mux.Vars(r)[name])
	if err != nil {
		s.writeDomainError(w, r, err)
		return common.Address{}, false
	}
	return addr, true
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, r, http.StatusBadRequest, &types.ErrorResponse{
			Error: fmt.Sprintf("failed to parse request: %v", err),
			Code:  types.ErrorCodeEncoding,
		})
		return false
	}
	return true
}

// errorStatus maps a domain error to its HTTP status and error code. An
// unrecoverable action signature wraps both ErrSignerMismatch and
// ErrInvalidSignature and is reported as invalid_signature.
func errorStatus(err error) (int, *types.ErrorResponse) {
	resp := &types.ErrorResponse{Error: err.Error()}

	var nonceErr *authorizer.NonceMismatchError
	switch {
	case errors.As(err, &nonceErr):
		resp.Code = types.ErrorCodeNonceMismatch
		resp.ExpectedNonce = types.NonceString(nonceErr.Expected)
		return http.StatusConflict, resp
	case errors.Is(err, authorizer.ErrNonceMismatch):
		resp.Code = types.ErrorCodeNonceMismatch
		return http.StatusConflict, resp
	case errors.Is(err, authorizer.ErrNonceExhausted):
		resp.Code = types.ErrorCodeNonceExhausted
		return http.StatusConflict, resp
	case errors.Is(err, binding.ErrAlreadyBound):
		resp.Code = types.ErrorCodeAlreadyBound
		return http.StatusConflict, resp
	case errors.Is(err, binding.ErrOwnershipMismatch):
		resp.Code = types.ErrorCodeOwnershipMismatch
		return http.StatusForbidden, resp
	case errors.Is(err, binding.ErrNotBound):
		resp.Code = types.ErrorCodeNotBound
		return http.StatusNotFound, resp
	case errors.Is(err, authorizer.ErrUnknownTarget):
		resp.Code = types.ErrorCodeUnknownTarget
		return http.StatusUnprocessableEntity, resp
	case errors.Is(err, signing.ErrInvalidSignature):
		resp.Code = types.ErrorCodeInvalidSignature
		return http.StatusBadRequest, resp
	case errors.Is(err, authorizer.ErrSignerMismatch):
		resp.Code = types.ErrorCodeSignerMismatch
		return http.StatusForbidden, resp
	case errors.Is(err, message.ErrEncoding):
		resp.Code = types.ErrorCodeEncoding
		return http.StatusBadRequest, resp
	default:
		resp.Code = types.ErrorCodeInternal
		resp.Error = "internal error"
		return http.StatusInternalServerError, resp
	}
}

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.node.logger.Sugar().Errorw("Request failed",
			"request_id", RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	s.writeError(w, r, status, resp)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, resp *types.ErrorResponse) {
	s.writeJSON(w, r, status, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.node.logger.Sugar().Warnw("Failed to encode response",
			"request_id", RequestIDFromContext(r.Context()),
			"error", err,
		)
	}
}
