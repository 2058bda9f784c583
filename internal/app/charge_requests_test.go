package app

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/economy-service/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type failingTransferer struct {
	err error
}

func (f failingTransferer) Transfer(fromID, toID string, amount domain.Amount) (domain.TransferResult, error) {
	return domain.TransferResult{}, f.err
}

func newTestEngine(t *testing.T, timeout time.Duration) (*Economy, *ChargeRequests, *fakeClock, *recordingEmitter) {
	t.Helper()
	events := &recordingEmitter{}
	clock := newFakeClock()
	economy := NewEconomy(events, testLogger())
	engine := NewChargeRequests(economy, events, timeout, testLogger(), WithRequestClock(clock.Now))
	return economy, engine, clock, events
}

func TestChargeRequests_AcceptedScenario(t *testing.T) {
	economy, engine, _, events := newTestEngine(t, time.Minute)
	mustDeposit(t, economy, "B", 5000)

	req, err := engine.Create("A", "B", 2000)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if req.State != domain.RequestPending {
		t.Fatalf("expected pending request, got %s", req.State)
	}

	done, err := engine.Accept(req.ID, "B")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if done.State != domain.RequestAccepted || done.ClosedAt == nil {
		t.Fatalf("expected accepted request with close time, got %+v", done)
	}
	assertBalance(t, economy, "B", 3000)
	assertBalance(t, economy, "A", 2000)

	if len(engine.Pending()) != 0 {
		t.Fatal("expected terminal request to leave the active set")
	}
	if got := len(events.ofType(domain.EventChargeRequestAccepted)); got != 1 {
		t.Fatalf("expected one accepted event, got %d", got)
	}
}

func TestChargeRequests_DeclinedForInsufficientFunds(t *testing.T) {
	economy, engine, _, events := newTestEngine(t, time.Minute)
	mustDeposit(t, economy, "B", 1000)

	req, err := engine.Create("A", "B", 100000)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	done, err := engine.Accept(req.ID, "B")
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if done.State != domain.RequestDeclined || done.Reason != domain.ReasonInsufficientFunds {
		t.Fatalf("expected declined for insufficient funds, got %+v", done)
	}
	assertBalance(t, economy, "B", 1000)
	assertBalance(t, economy, "A", 0)

	declined := events.ofType(domain.EventChargeRequestDeclined)
	if len(declined) != 1 {
		t.Fatalf("expected one declined event, got %d", len(declined))
	}
	if recipients := declined[0].Recipients(); len(recipients) != 2 {
		t.Fatalf("expected both parties to be notified, got %v", recipients)
	}
}

func TestChargeRequests_DuplicateRejected(t *testing.T) {
	_, engine, _, _ := newTestEngine(t, time.Minute)

	if _, err := engine.Create("A", "B", 100); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := engine.Create("A", "B", 200); !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}
	// The pair is unordered.
	if _, err := engine.Create("B", "A", 300); !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest for reversed pair, got %v", err)
	}
	if got := len(engine.Pending()); got != 1 {
		t.Fatalf("expected exactly one active request, got %d", got)
	}
}

func TestChargeRequests_CreateValidation(t *testing.T) {
	_, engine, _, _ := newTestEngine(t, time.Minute)

	tests := []struct {
		name      string
		requester string
		target    string
		amount    domain.Amount
		want      error
	}{
		{name: "same actor", requester: "A", target: "A", amount: 1, want: domain.ErrSameActor},
		{name: "zero amount", requester: "A", target: "B", amount: 0, want: domain.ErrInvalidAmount},
		{name: "negative amount", requester: "A", target: "B", amount: -5, want: domain.ErrInvalidAmount},
		{name: "blank target", requester: "A", target: " ", amount: 1, want: domain.ErrInvalidAccount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := engine.Create(tt.requester, tt.target, tt.amount); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if len(engine.Pending()) != 0 {
		t.Fatal("expected no request to be created")
	}
}

func TestChargeRequests_ConcurrentCreatesKeepSinglePending(t *testing.T) {
	_, engine, _, _ := newTestEngine(t, time.Minute)

	const n = 64
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		succeeded  int
		duplicates int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			requester, target := "A", "B"
			if i%2 == 1 {
				requester, target = "B", "A"
			}
			_, err := engine.Create(requester, target, 100)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrDuplicateRequest):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 1 || duplicates != n-1 {
		t.Fatalf("expected 1 success and %d duplicates, got %d and %d", n-1, succeeded, duplicates)
	}
	if got := len(engine.Pending()); got != 1 {
		t.Fatalf("expected one pending request, got %d", got)
	}
}

func TestChargeRequests_Authorization(t *testing.T) {
	_, engine, _, _ := newTestEngine(t, time.Minute)
	req, err := engine.Create("A", "B", 100)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := engine.Accept(req.ID, "A"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("requester accepting: expected ErrUnauthorized, got %v", err)
	}
	if _, err := engine.Decline(req.ID, "C"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("stranger declining: expected ErrUnauthorized, got %v", err)
	}
	if _, err := engine.Cancel(req.ID, "B"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("target cancelling: expected ErrUnauthorized, got %v", err)
	}
	if _, err := engine.Get(req.ID, "C"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("stranger reading: expected ErrUnauthorized, got %v", err)
	}
	if got, err := engine.Get(req.ID, "B"); err != nil || got.ID != req.ID {
		t.Fatalf("target reading: got %+v, %v", got, err)
	}

	cancelled, err := engine.Cancel(req.ID, "A")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.State != domain.RequestCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.State)
	}
	if _, err := engine.Accept(req.ID, "B"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("accepting a terminal request: expected ErrNotFound, got %v", err)
	}
}

func TestChargeRequests_ActorIdentityIsTrimmed(t *testing.T) {
	economy, engine, _, _ := newTestEngine(t, time.Minute)
	mustDeposit(t, economy, "B", 500)

	first, err := engine.Create(" A", "B ", 100)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := engine.ListFor(" B"); len(got) != 1 {
		t.Fatalf("expected the target to see 1 request, got %d", len(got))
	}
	if _, err := engine.Get(first.ID, "B\t"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := engine.Accept(first.ID, "  B"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	assertBalance(t, economy, "A", 100)

	second, _ := engine.Create("A", "B", 50)
	if _, err := engine.Cancel(second.ID, " A "); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	third, _ := engine.Create("A", "B", 50)
	if _, err := engine.Decline(third.ID, "B "); err != nil {
		t.Fatalf("decline: %v", err)
	}
	if _, err := engine.Accept(third.ID, "  "); !errors.Is(err, domain.ErrInvalidAccount) {
		t.Fatalf("blank actor: expected ErrInvalidAccount, got %v", err)
	}
}

func TestChargeRequests_Decline(t *testing.T) {
	economy, engine, _, _ := newTestEngine(t, time.Minute)
	mustDeposit(t, economy, "B", 500)
	req, _ := engine.Create("A", "B", 100)

	declined, err := engine.Decline(req.ID, "B")
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if declined.State != domain.RequestDeclined || declined.Reason != domain.ReasonDeclinedByTarget {
		t.Fatalf("unexpected declined request %+v", declined)
	}
	assertBalance(t, economy, "B", 500)

	// The pair is free again.
	if _, err := engine.Create("B", "A", 100); err != nil {
		t.Fatalf("expected new request after decline, got %v", err)
	}
}

func TestChargeRequests_UnknownID(t *testing.T) {
	_, engine, _, _ := newTestEngine(t, time.Minute)
	if _, err := engine.Accept(uuid.New(), "B"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestChargeRequests_ExpireDue(t *testing.T) {
	economy, engine, clock, events := newTestEngine(t, time.Second)
	mustDeposit(t, economy, "B", 500)
	req, err := engine.Create("A", "B", 100)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if expired := engine.ExpireDue(clock.Now()); len(expired) != 0 {
		t.Fatalf("expected nothing to expire yet, got %d", len(expired))
	}

	clock.Advance(1500 * time.Millisecond)
	expired := engine.ExpireDue(clock.Now())
	if len(expired) != 1 || expired[0].ID != req.ID || expired[0].State != domain.RequestExpired {
		t.Fatalf("expected the request to expire, got %+v", expired)
	}
	if len(engine.Pending()) != 0 {
		t.Fatal("expected expired request to leave the active set")
	}
	if _, err := engine.Accept(req.ID, "B"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
	assertBalance(t, economy, "B", 500)
	if got := len(events.ofType(domain.EventChargeRequestExpired)); got != 1 {
		t.Fatalf("expected one expired event, got %d", got)
	}
}

func TestChargeRequests_OverdueRequestExpiresOnAccess(t *testing.T) {
	economy, engine, clock, _ := newTestEngine(t, time.Second)
	mustDeposit(t, economy, "B", 500)
	req, _ := engine.Create("A", "B", 100)

	clock.Advance(2 * time.Second)
	if _, err := engine.Accept(req.ID, "B"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for overdue request, got %v", err)
	}
	assertBalance(t, economy, "B", 500)

	if _, err := engine.Create("A", "B", 100); err != nil {
		t.Fatalf("expected overdue request not to block a new one, got %v", err)
	}
}

func TestChargeRequests_TransferFailureKeepsPending(t *testing.T) {
	clock := newFakeClock()
	engine := NewChargeRequests(failingTransferer{err: errors.New("ledger offline")}, nil, time.Minute, testLogger(), WithRequestClock(clock.Now))
	req, _ := engine.Create("A", "B", 100)

	if _, err := engine.Accept(req.ID, "B"); err == nil {
		t.Fatal("expected an error from the failing ledger")
	}
	if got, err := engine.Get(req.ID, "A"); err != nil || got.State != domain.RequestPending {
		t.Fatalf("expected request to remain pending, got %+v, %v", got, err)
	}
}

func TestChargeRequests_ListFor(t *testing.T) {
	_, engine, clock, _ := newTestEngine(t, time.Minute)
	first, _ := engine.Create("A", "B", 100)
	clock.Advance(time.Second)
	second, _ := engine.Create("C", "A", 200)
	clock.Advance(time.Second)
	_, _ = engine.Create("C", "D", 300)

	list := engine.ListFor("A")
	if len(list) != 2 || list[0].ID != first.ID || list[1].ID != second.ID {
		t.Fatalf("unexpected list for A: %+v", list)
	}
	if got := len(engine.ListFor("Z")); got != 0 {
		t.Fatalf("expected no requests for Z, got %d", got)
	}
}
