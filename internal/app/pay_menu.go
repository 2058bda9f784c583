package app

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/transfa/economy-service/internal/domain"
)

// ChargeRequester is the engine operation a charge-mode session confirms with.
type ChargeRequester interface {
	Create(requester, target string, amount domain.Amount) (domain.ChargeRequest, error)
}

// PayMenu holds one interactive pay session per actor. Sessions move from target
// selection to amount selection to confirmation, and are destroyed on confirm,
// cancel, close or idle timeout.
type PayMenu struct {
	mu       sync.Mutex
	sessions map[string]*domain.PaySession
	timeout  time.Duration

	ledger   Transferer
	requests ChargeRequester
	now      func() time.Time
	logger   *slog.Logger
}

// PayMenuOption customizes the menu.
type PayMenuOption func(*PayMenu)

// WithMenuClock replaces time.Now, mainly for tests.
func WithMenuClock(now func() time.Time) PayMenuOption {
	return func(m *PayMenu) { m.now = now }
}

// NewPayMenu creates a menu whose sessions close after timeout without input.
// A timeout of zero or less keeps idle sessions open.
func NewPayMenu(ledger Transferer, requests ChargeRequester, timeout time.Duration, logger *slog.Logger, opts ...PayMenuOption) *PayMenu {
	m := &PayMenu{
		sessions: make(map[string]*domain.PaySession),
		timeout:  timeout,
		ledger:   ledger,
		requests: requests,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetTimeout changes the idle timeout.
func (m *PayMenu) SetTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = timeout
}

// Open starts a fresh session for actor, replacing any session already open.
func (m *PayMenu) Open(actor string, mode domain.PayMode) (domain.PaySession, error) {
	actor, err := domain.NormalizeAccountID(actor)
	if err != nil {
		return domain.PaySession{}, err
	}
	if !mode.Valid() {
		return domain.PaySession{}, fmt.Errorf("%w: unknown pay mode %q", domain.ErrInvalidStep, mode)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	session := &domain.PaySession{
		Owner:     actor,
		Mode:      mode,
		Step:      domain.StepSelectingTarget,
		OpenedAt:  now,
		TouchedAt: now,
	}
	m.sessions[actor] = session
	openPaySessions.Set(float64(len(m.sessions)))
	return *session, nil
}

// Session returns a copy of the actor's open session.
func (m *PayMenu) Session(actor string) (domain.PaySession, error) {
	actor = ownerKey(actor)
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[actor]
	if !ok {
		return domain.PaySession{}, domain.ErrNoSession
	}
	return *session, nil
}

// ChooseTarget records the counterparty and advances to amount selection.
func (m *PayMenu) ChooseTarget(actor, target string) (domain.PaySession, error) {
	actor = ownerKey(actor)
	target, err := domain.NormalizeAccountID(target)
	if err != nil {
		return domain.PaySession{}, err
	}
	if target == actor {
		return domain.PaySession{}, domain.ErrSameActor
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	session, err := m.sessionAtLocked(actor, domain.StepSelectingTarget)
	if err != nil {
		return domain.PaySession{}, err
	}
	session.Target = target
	session.Step = domain.StepSelectingAmount
	session.TouchedAt = m.now().UTC()
	return *session, nil
}

// EnterAmount parses raw input. An invalid amount leaves the session at amount
// selection and returns ErrInvalidAmount.
func (m *PayMenu) EnterAmount(actor, raw string) (domain.PaySession, error) {
	actor = ownerKey(actor)
	amount, parseErr := domain.ParsePositiveAmount(raw)

	m.mu.Lock()
	defer m.mu.Unlock()
	session, err := m.sessionAtLocked(actor, domain.StepSelectingAmount)
	if err != nil {
		return domain.PaySession{}, err
	}
	session.TouchedAt = m.now().UTC()
	if parseErr != nil {
		return *session, parseErr
	}
	session.Amount = &amount
	session.Step = domain.StepConfirmingAmount
	return *session, nil
}

// Confirm ends the session and carries it out: an immediate transfer in pay mode,
// a new charge request in charge mode. The session is gone afterwards whatever
// the outcome.
func (m *PayMenu) Confirm(actor string) (domain.PayOutcome, error) {
	actor = ownerKey(actor)
	m.mu.Lock()
	session, err := m.sessionAtLocked(actor, domain.StepConfirmingAmount)
	if err != nil {
		m.mu.Unlock()
		return domain.PayOutcome{}, err
	}
	m.removeLocked(actor)
	m.mu.Unlock()

	outcome := domain.PayOutcome{Mode: session.Mode}
	switch session.Mode {
	case domain.PayModeDirect:
		result, err := m.ledger.Transfer(session.Owner, session.Target, *session.Amount)
		if err != nil {
			return outcome, err
		}
		outcome.Transfer = &result
	case domain.PayModeCharge:
		req, err := m.requests.Create(session.Owner, session.Target, *session.Amount)
		if err != nil {
			return outcome, err
		}
		outcome.Request = &req
	}
	m.logger.Info("pay session confirmed", "actor", session.Owner, "mode", session.Mode, "target", session.Target)
	return outcome, nil
}

// Cancel destroys the session without side effects.
func (m *PayMenu) Cancel(actor string) error {
	actor = ownerKey(actor)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[actor]; !ok {
		return domain.ErrNoSession
	}
	m.removeLocked(actor)
	return nil
}

// Close is called when the interaction surface goes away. It reports whether a
// session was open.
func (m *PayMenu) Close(actor string) bool {
	actor = ownerKey(actor)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[actor]; !ok {
		return false
	}
	m.removeLocked(actor)
	return true
}

// ExpireIdle destroys sessions untouched for longer than the timeout and returns
// how many were closed.
func (m *PayMenu) ExpireIdle(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timeout <= 0 {
		return 0
	}
	closed := 0
	for actor, session := range m.sessions {
		if now.Sub(session.TouchedAt) > m.timeout {
			m.removeLocked(actor)
			closed++
		}
	}
	if closed > 0 {
		m.logger.Info("closed idle pay sessions", "count", closed)
	}
	return closed
}

// ownerKey maps an actor to the key its session is stored under. A blank actor
// maps to "", which Open never stores.
func ownerKey(actor string) string {
	return strings.TrimSpace(actor)
}

func (m *PayMenu) sessionAtLocked(actor string, step domain.PayStep) (*domain.PaySession, error) {
	session, ok := m.sessions[actor]
	if !ok {
		return nil, domain.ErrNoSession
	}
	if session.Step != step {
		return nil, fmt.Errorf("%w: session is at %s, not %s", domain.ErrInvalidStep, session.Step, step)
	}
	return session, nil
}

func (m *PayMenu) removeLocked(actor string) {
	delete(m.sessions, actor)
	openPaySessions.Set(float64(len(m.sessions)))
}
