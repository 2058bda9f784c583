/**
 * @description
 * The Charge Request Engine. A requester asks a target to pay an amount; funds
 * move only when the target accepts. At most one pending request exists per
 * unordered pair of accounts, and terminal requests leave the active set at once.
 *
 * The engine lock is held across the ledger transfer on accept. Lock order is always
 * engine then ledger; the ledger never calls back into the engine. Events are only
 * handed to a non-blocking emitter, so emitting under the lock is safe.
 */
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/economy-service/internal/domain"
)

// Transferer is the ledger operation the engine settles accepted requests with.
type Transferer interface {
	Transfer(fromID, toID string, amount domain.Amount) (domain.TransferResult, error)
}

// ChargeRequests tracks the active set of pending charge requests.
type ChargeRequests struct {
	mu      sync.Mutex
	active  map[uuid.UUID]*domain.ChargeRequest
	pairs   map[domain.PairKey]uuid.UUID
	timeout time.Duration

	ledger Transferer
	events EventEmitter
	now    func() time.Time
	logger *slog.Logger
}

// ChargeRequestOption customizes the engine.
type ChargeRequestOption func(*ChargeRequests)

// WithRequestClock replaces time.Now, mainly for tests.
func WithRequestClock(now func() time.Time) ChargeRequestOption {
	return func(c *ChargeRequests) { c.now = now }
}

// NewChargeRequests creates an engine whose requests expire after timeout.
func NewChargeRequests(ledger Transferer, events EventEmitter, timeout time.Duration, logger *slog.Logger, opts ...ChargeRequestOption) *ChargeRequests {
	if events == nil {
		events = discardEmitter{}
	}
	c := &ChargeRequests{
		active:  make(map[uuid.UUID]*domain.ChargeRequest),
		pairs:   make(map[domain.PairKey]uuid.UUID),
		timeout: timeout,
		ledger:  ledger,
		events:  events,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetTimeout changes the expiry window for requests created from now on.
func (c *ChargeRequests) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = timeout
}

// Create opens a pending request asking target to pay amount to requester.
func (c *ChargeRequests) Create(requester, target string, amount domain.Amount) (domain.ChargeRequest, error) {
	req, err := c.create(requester, target, amount)
	chargeRequestTransitionsTotal.WithLabelValues(createOutcome(err)).Inc()
	if err != nil {
		return domain.ChargeRequest{}, err
	}
	c.logger.Info("charge request created", "request_id", req.ID, "requester", req.Requester, "target", req.Target, "amount", req.Amount.String())
	c.emit(req)
	return req, nil
}

func createOutcome(err error) string {
	if err != nil {
		return "rejected"
	}
	return string(domain.RequestPending)
}

func (c *ChargeRequests) create(requester, target string, amount domain.Amount) (domain.ChargeRequest, error) {
	requester, err := domain.NormalizeAccountID(requester)
	if err != nil {
		return domain.ChargeRequest{}, err
	}
	target, err = domain.NormalizeAccountID(target)
	if err != nil {
		return domain.ChargeRequest{}, err
	}
	if requester == target {
		return domain.ChargeRequest{}, domain.ErrSameActor
	}
	if err := amount.ValidatePositive(); err != nil {
		return domain.ChargeRequest{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UTC()
	key := domain.NewPairKey(requester, target)
	if existingID, ok := c.pairs[key]; ok {
		existing := c.active[existingID]
		if !now.After(existing.ExpiresAt) {
			return domain.ChargeRequest{}, fmt.Errorf("%w: request %s", domain.ErrDuplicateRequest, existingID)
		}
		// Past its deadline but not swept yet; it must not block a new request.
		c.finishLocked(existing, domain.RequestExpired, domain.ReasonTimeout, now)
		c.emit(*existing)
	}

	req := &domain.ChargeRequest{
		ID:        uuid.New(),
		Requester: requester,
		Target:    target,
		Amount:    amount,
		State:     domain.RequestPending,
		CreatedAt: now,
		ExpiresAt: now.Add(c.timeout),
	}
	c.active[req.ID] = req
	c.pairs[key] = req.ID
	activeChargeRequests.Set(float64(len(c.active)))
	return *req, nil
}

// Accept settles the request by transferring from the target to the requester. When
// the target cannot cover the amount the request ends Declined and the returned
// error wraps ErrInsufficientFunds.
func (c *ChargeRequests) Accept(id uuid.UUID, actor string) (domain.ChargeRequest, error) {
	actor, err := domain.NormalizeAccountID(actor)
	if err != nil {
		return domain.ChargeRequest{}, err
	}
	c.mu.Lock()
	req, err := c.pendingLocked(id)
	if err != nil {
		c.mu.Unlock()
		return domain.ChargeRequest{}, err
	}
	if req.Target != actor {
		c.mu.Unlock()
		return domain.ChargeRequest{}, fmt.Errorf("%w: only the target can accept", domain.ErrUnauthorized)
	}

	_, transferErr := c.ledger.Transfer(req.Target, req.Requester, req.Amount)
	now := c.now().UTC()
	switch {
	case transferErr == nil:
		c.finishLocked(req, domain.RequestAccepted, domain.ReasonAcceptedByTarget, now)
	case isInsufficientFunds(transferErr):
		c.finishLocked(req, domain.RequestDeclined, domain.ReasonInsufficientFunds, now)
	default:
		// Infrastructure failure: nothing moved, the request stays pending.
		c.mu.Unlock()
		return domain.ChargeRequest{}, fmt.Errorf("settle charge request %s: %w", id, transferErr)
	}
	out := *req
	c.mu.Unlock()

	c.logger.Info("charge request resolved", "request_id", out.ID, "state", out.State, "reason", out.Reason)
	c.emit(out)
	if transferErr != nil {
		return out, fmt.Errorf("charge request %s declined: %w", id, transferErr)
	}
	return out, nil
}

// Decline closes the request without moving funds. Only the target may decline.
func (c *ChargeRequests) Decline(id uuid.UUID, actor string) (domain.ChargeRequest, error) {
	return c.close(id, actor, domain.RequestDeclined, domain.ReasonDeclinedByTarget, func(r *domain.ChargeRequest, actor string) bool {
		return r.Target == actor
	})
}

// Cancel withdraws the request. Only the requester may cancel.
func (c *ChargeRequests) Cancel(id uuid.UUID, actor string) (domain.ChargeRequest, error) {
	return c.close(id, actor, domain.RequestCancelled, domain.ReasonCancelledByOwner, func(r *domain.ChargeRequest, actor string) bool {
		return r.Requester == actor
	})
}

func (c *ChargeRequests) close(id uuid.UUID, actor string, state domain.RequestState, reason string, allowed func(*domain.ChargeRequest, string) bool) (domain.ChargeRequest, error) {
	actor, err := domain.NormalizeAccountID(actor)
	if err != nil {
		return domain.ChargeRequest{}, err
	}
	c.mu.Lock()
	req, err := c.pendingLocked(id)
	if err != nil {
		c.mu.Unlock()
		return domain.ChargeRequest{}, err
	}
	if !allowed(req, actor) {
		c.mu.Unlock()
		return domain.ChargeRequest{}, fmt.Errorf("%w: %s cannot %s request %s", domain.ErrUnauthorized, actor, verbFor(state), id)
	}
	c.finishLocked(req, state, reason, c.now().UTC())
	out := *req
	c.mu.Unlock()

	c.logger.Info("charge request resolved", "request_id", out.ID, "state", out.State, "reason", out.Reason)
	c.emit(out)
	return out, nil
}

func verbFor(state domain.RequestState) string {
	if state == domain.RequestCancelled {
		return "cancel"
	}
	return "decline"
}

// pendingLocked finds an active request. A request found past its deadline is
// expired on the spot and reported as not found.
func (c *ChargeRequests) pendingLocked(id uuid.UUID) (*domain.ChargeRequest, error) {
	req, ok := c.active[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	now := c.now().UTC()
	if now.After(req.ExpiresAt) {
		c.finishLocked(req, domain.RequestExpired, domain.ReasonTimeout, now)
		c.emit(*req)
		return nil, fmt.Errorf("%w: %s expired", domain.ErrNotFound, id)
	}
	return req, nil
}

// finishLocked applies the terminal transition and drops the request from the
// active set.
func (c *ChargeRequests) finishLocked(req *domain.ChargeRequest, state domain.RequestState, reason string, at time.Time) {
	req.State = state
	req.Reason = reason
	closedAt := at
	req.ClosedAt = &closedAt

	delete(c.active, req.ID)
	key := domain.NewPairKey(req.Requester, req.Target)
	if c.pairs[key] == req.ID {
		delete(c.pairs, key)
	}
	chargeRequestTransitionsTotal.WithLabelValues(string(state)).Inc()
	activeChargeRequests.Set(float64(len(c.active)))
}

// Get returns a pending request visible to actor.
func (c *ChargeRequests) Get(id uuid.UUID, actor string) (domain.ChargeRequest, error) {
	actor, err := domain.NormalizeAccountID(actor)
	if err != nil {
		return domain.ChargeRequest{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	req, ok := c.active[id]
	if !ok {
		return domain.ChargeRequest{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if !req.Involves(actor) {
		return domain.ChargeRequest{}, fmt.Errorf("%w: %s is not a party to request %s", domain.ErrUnauthorized, actor, id)
	}
	return *req, nil
}

// ListFor returns the pending requests the actor is a party to, oldest first.
func (c *ChargeRequests) ListFor(actor string) []domain.ChargeRequest {
	out := make([]domain.ChargeRequest, 0)
	actor, err := domain.NormalizeAccountID(actor)
	if err != nil {
		return out
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, req := range c.active {
		if req.Involves(actor) {
			out = append(out, *req)
		}
	}
	sortRequests(out)
	return out
}

// Pending returns every active request, oldest first.
func (c *ChargeRequests) Pending() []domain.ChargeRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ChargeRequest, 0, len(c.active))
	for _, req := range c.active {
		out = append(out, *req)
	}
	sortRequests(out)
	return out
}

func sortRequests(reqs []domain.ChargeRequest) {
	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].CreatedAt.Equal(reqs[j].CreatedAt) {
			return reqs[i].ID.String() < reqs[j].ID.String()
		}
		return reqs[i].CreatedAt.Before(reqs[j].CreatedAt)
	})
}

// ExpireDue moves every pending request whose deadline is before now to Expired and
// returns them.
func (c *ChargeRequests) ExpireDue(now time.Time) []domain.ChargeRequest {
	now = now.UTC()
	c.mu.Lock()
	var expired []domain.ChargeRequest
	for _, req := range c.active {
		if now.After(req.ExpiresAt) {
			c.finishLocked(req, domain.RequestExpired, domain.ReasonTimeout, now)
			expired = append(expired, *req)
		}
	}
	c.mu.Unlock()

	sortRequests(expired)
	for _, req := range expired {
		c.emit(req)
	}
	if len(expired) > 0 {
		c.logger.Info("expired charge requests", "count", len(expired))
	}
	return expired
}

func (c *ChargeRequests) emit(req domain.ChargeRequest) {
	r := req
	c.events.Emit(domain.Event{
		Type:    domain.EventForState(req.State),
		Request: &r,
	})
}

func isInsufficientFunds(err error) bool {
	return errors.Is(err, domain.ErrInsufficientFunds)
}
