package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/web3-social/profile-keys-go/pkg/signing"
)

// StoredBinding is the record persisted once a profile contract is bound to
// its owner key. A contract with no StoredBinding is Unbound.
type StoredBinding struct {
	Contract  common.Address    `json:"contract"`
	Owner     common.Address    `json:"owner"`
	Signature signing.Signature `json:"signature"`
	BoundAt   int64             `json:"boundAt"`
}

// ActionKind labels how an authorized action was submitted.
type ActionKind string

const (
	ActionKindAction ActionKind = "action"
	ActionKindPost   ActionKind = "post"
	ActionKindReply  ActionKind = "reply"
)

// ActionRequest is a signed action awaiting authorization.
type ActionRequest struct {
	Kind        ActionKind
	Actor       common.Address
	ActorNonce  *uint256.Int
	Target      common.Address
	TargetNonce *uint256.Int
	Content     string
	Signature   signing.Signature
}

// ActionRecord is the persisted form of an authorized action. Nonces are
// stored as decimal strings.
type ActionRecord struct {
	ID           string            `json:"id"`
	Kind         ActionKind        `json:"kind"`
	Actor        common.Address    `json:"actor"`
	ActorNonce   string            `json:"actorNonce"`
	Target       common.Address    `json:"target"`
	TargetNonce  string            `json:"targetNonce"`
	Content      string            `json:"content"`
	ContentHash  common.Hash       `json:"contentHash"`
	Signature    signing.Signature `json:"signature"`
	AuthorizedAt int64             `json:"authorizedAt"`
}

// AuthorizedAction is returned after an action has been accepted and the
// actor's nonce advanced.
type AuthorizedAction struct {
	Record    *ActionRecord `json:"action"`
	NextNonce *uint256.Int  `json:"-"`
}

// NonceString renders a nonce in the decimal form used on the wire and in
// storage. A nil nonce is zero.
func NonceString(n *uint256.Int) string {
	if n == nil {
		return "0"
	}
	return n.Dec()
}
