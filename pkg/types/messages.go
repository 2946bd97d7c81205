package types

// Request and response bodies exchanged with the profile node over HTTP.
// Addresses, signatures and nonces travel as strings: addresses and
// signatures as 0x-hex, nonces as decimal (0x-hex is accepted on input).

type BindRequest struct {
	Contract  string `json:"contract"`
	Owner     string `json:"owner"`
	Signature string `json:"signature"`
}

type BindingResponse struct {
	Binding *StoredBinding `json:"binding"`
}

type AuthorizedResponse struct {
	Contract   string `json:"contract"`
	Signer     string `json:"signer"`
	Authorized bool   `json:"authorized"`
}

type PublicKeyResponse struct {
	Contract  string `json:"contract"`
	Owner     string `json:"owner"`
	PublicKey string `json:"publicKey"`
}

type NonceResponse struct {
	Actor string `json:"actor"`
	Nonce string `json:"nonce"`
}

type ActionRequestBody struct {
	Actor       string `json:"actor"`
	ActorNonce  string `json:"actorNonce"`
	Target      string `json:"target"`
	TargetNonce string `json:"targetNonce"`
	Content     string `json:"content"`
	Signature   string `json:"signature"`
}

type PostRequest struct {
	Actor     string `json:"actor"`
	Nonce     string `json:"nonce"`
	Content   string `json:"content"`
	Signature string `json:"signature"`
}

type ReplyRequest struct {
	Replier      string `json:"replier"`
	ReplierNonce string `json:"replierNonce"`
	PostAuthor   string `json:"postAuthor"`
	PostNonce    string `json:"postNonce"`
	Content      string `json:"content"`
	Signature    string `json:"signature"`
}

type ActionResponse struct {
	Action    *ActionRecord `json:"action"`
	NextNonce string        `json:"nextNonce,omitempty"`
}

type ActionsResponse struct {
	Actor   string          `json:"actor"`
	Actions []*ActionRecord `json:"actions"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is returned with every non-2xx status. Code identifies the
// failure kind so callers can distinguish a stale nonce from a bad signer.
type ErrorResponse struct {
	Error         string `json:"error"`
	Code          string `json:"code"`
	ExpectedNonce string `json:"expectedNonce,omitempty"`
}

// Values of ErrorResponse.Code.
const (
	ErrorCodeEncoding          = "encoding_error"
	ErrorCodeInvalidSignature  = "invalid_signature"
	ErrorCodeOwnershipMismatch = "ownership_mismatch"
	ErrorCodeAlreadyBound      = "already_bound"
	ErrorCodeNotBound          = "not_bound"
	ErrorCodeNonceMismatch     = "nonce_mismatch"
	ErrorCodeNonceExhausted    = "nonce_exhausted"
	ErrorCodeSignerMismatch    = "signer_mismatch"
	ErrorCodeUnknownTarget     = "unknown_target"
	ErrorCodeNotFound          = "not_found"
	ErrorCodeRateLimited       = "rate_limited"
	ErrorCodeInternal          = "internal_error"
)

const (
	HealthStatusOK        = "ok"
	HealthStatusUnhealthy = "unhealthy"
)
