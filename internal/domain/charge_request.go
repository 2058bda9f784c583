package domain

import (
	"time"

	"github.com/google/uuid"
)

// RequestState is the lifecycle state of a charge request.
type RequestState string

const (
	RequestPending   RequestState = "pending"
	RequestAccepted  RequestState = "accepted"
	RequestDeclined  RequestState = "declined"
	RequestExpired   RequestState = "expired"
	RequestCancelled RequestState = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s RequestState) Terminal() bool {
	return s != RequestPending
}

// Reasons recorded on the terminal transition.
const (
	ReasonAcceptedByTarget  = "accepted_by_target"
	ReasonDeclinedByTarget  = "declined_by_target"
	ReasonInsufficientFunds = "insufficient_funds"
	ReasonTimeout           = "timeout"
	ReasonCancelledByOwner  = "cancelled_by_requester"
)

// ChargeRequest asks Target to pay Amount to Requester. Funds only move when the
// target accepts.
type ChargeRequest struct {
	ID        uuid.UUID    `json:"id"`
	Requester string       `json:"requester"`
	Target    string       `json:"target"`
	Amount    Amount       `json:"amount"`
	State     RequestState `json:"state"`
	Reason    string       `json:"reason,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
	ClosedAt  *time.Time   `json:"closed_at,omitempty"`
}

// Involves reports whether the actor is either party of the request.
func (r ChargeRequest) Involves(actor string) bool {
	return r.Requester == actor || r.Target == actor
}

// PairKey identifies the unordered pair of accounts. A→B and B→A share a key.
type PairKey struct {
	Low  string
	High string
}

// NewPairKey builds the canonical key for two identities.
func NewPairKey(a, b string) PairKey {
	if a > b {
		a, b = b, a
	}
	return PairKey{Low: a, High: b}
}

// CreateChargeRequestPayload is the body for creating a charge request.
type CreateChargeRequestPayload struct {
	Target string `json:"target"`
	Amount Amount `json:"amount"`
}

// PayPayload is the body for an immediate pay.
type PayPayload struct {
	To     string `json:"to"`
	Amount Amount `json:"amount"`
}
