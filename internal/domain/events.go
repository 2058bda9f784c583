package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a domain event. The value doubles as the RabbitMQ routing key.
type EventType string

const (
	EventBalanceChanged         EventType = "balance.changed"
	EventChargeRequestCreated   EventType = "charge_request.created"
	EventChargeRequestAccepted  EventType = "charge_request.accepted"
	EventChargeRequestDeclined  EventType = "charge_request.declined"
	EventChargeRequestExpired   EventType = "charge_request.expired"
	EventChargeRequestCancelled EventType = "charge_request.cancelled"
)

// EventForState maps a charge request state to the event announcing it.
func EventForState(state RequestState) EventType {
	switch state {
	case RequestAccepted:
		return EventChargeRequestAccepted
	case RequestDeclined:
		return EventChargeRequestDeclined
	case RequestExpired:
		return EventChargeRequestExpired
	case RequestCancelled:
		return EventChargeRequestCancelled
	default:
		return EventChargeRequestCreated
	}
}

// Event is emitted by the core for the host integration layer to deliver.
type Event struct {
	ID         uuid.UUID      `json:"id"`
	Type       EventType      `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	AccountID  string         `json:"account_id,omitempty"`
	Balance    *Amount        `json:"balance,omitempty"`
	Request    *ChargeRequest `json:"request,omitempty"`
}

// Recipients lists the actors who should be told about the event.
func (e Event) Recipients() []string {
	if e.Request != nil {
		return []string{e.Request.Requester, e.Request.Target}
	}
	if e.AccountID != "" {
		return []string{e.AccountID}
	}
	return nil
}
