package app

import (
	"errors"
	"testing"
	"time"

	"github.com/transfa/economy-service/internal/domain"
)

func newTestMenu(t *testing.T) (*Economy, *ChargeRequests, *PayMenu, *fakeClock) {
	t.Helper()
	economy, engine, clock, _ := newTestEngine(t, time.Minute)
	menu := NewPayMenu(economy, engine, time.Minute, testLogger(), WithMenuClock(clock.Now))
	return economy, engine, menu, clock
}

func TestPayMenu_DirectPayFlow(t *testing.T) {
	economy, _, menu, _ := newTestMenu(t)
	mustDeposit(t, economy, "A", 10000)

	session, err := menu.Open("A", domain.PayModeDirect)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if session.Step != domain.StepSelectingTarget {
		t.Fatalf("expected target selection, got %s", session.Step)
	}
	if session, err = menu.ChooseTarget("A", "B"); err != nil || session.Step != domain.StepSelectingAmount {
		t.Fatalf("choose target: %+v, %v", session, err)
	}
	if session, err = menu.EnterAmount("A", "30"); err != nil || session.Step != domain.StepConfirmingAmount {
		t.Fatalf("enter amount: %+v, %v", session, err)
	}

	outcome, err := menu.Confirm("A")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if outcome.Transfer == nil || outcome.Request != nil {
		t.Fatalf("expected a transfer outcome, got %+v", outcome)
	}
	assertBalance(t, economy, "A", 7000)
	assertBalance(t, economy, "B", 3000)

	if _, err := menu.Session("A"); !errors.Is(err, domain.ErrNoSession) {
		t.Fatalf("expected session to be destroyed, got %v", err)
	}
}

func TestPayMenu_ChargeFlowCreatesRequestOnly(t *testing.T) {
	economy, engine, menu, _ := newTestMenu(t)
	mustDeposit(t, economy, "B", 5000)

	_, _ = menu.Open("A", domain.PayModeCharge)
	_, _ = menu.ChooseTarget("A", "B")
	_, _ = menu.EnterAmount("A", "20.00")

	outcome, err := menu.Confirm("A")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if outcome.Request == nil || outcome.Transfer != nil {
		t.Fatalf("expected a charge request outcome, got %+v", outcome)
	}
	if outcome.Request.Requester != "A" || outcome.Request.Target != "B" || outcome.Request.Amount != 2000 {
		t.Fatalf("unexpected request %+v", outcome.Request)
	}
	assertBalance(t, economy, "B", 5000)
	if got := len(engine.ListFor("B")); got != 1 {
		t.Fatalf("expected one pending request for B, got %d", got)
	}
}

func TestPayMenu_ActorIdentityIsTrimmed(t *testing.T) {
	economy, _, menu, _ := newTestMenu(t)
	mustDeposit(t, economy, "A", 1000)

	if _, err := menu.Open(" A", domain.PayModeDirect); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := menu.Session("A "); err != nil {
		t.Fatalf("session: %v", err)
	}
	if _, err := menu.ChooseTarget(" A ", "A"); !errors.Is(err, domain.ErrSameActor) {
		t.Fatalf("expected ErrSameActor, got %v", err)
	}
	if _, err := menu.ChooseTarget(" A", "B"); err != nil {
		t.Fatalf("choose target: %v", err)
	}
	if _, err := menu.EnterAmount("A\t", "2"); err != nil {
		t.Fatalf("enter amount: %v", err)
	}
	if _, err := menu.Confirm("  A"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	assertBalance(t, economy, "B", 200)

	_, _ = menu.Open("A", domain.PayModeCharge)
	if err := menu.Cancel(" A"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, _ = menu.Open("A", domain.PayModeCharge)
	if !menu.Close("A ") {
		t.Fatal("expected close to find the session")
	}
}

func TestPayMenu_InvalidAmountStaysAtAmountStep(t *testing.T) {
	_, _, menu, _ := newTestMenu(t)
	_, _ = menu.Open("A", domain.PayModeDirect)
	_, _ = menu.ChooseTarget("A", "B")

	for _, raw := range []string{"0", "-3", "abc", "1.234", "1e1000000000", "1e-1000000000"} {
		session, err := menu.EnterAmount("A", raw)
		if !errors.Is(err, domain.ErrInvalidAmount) {
			t.Fatalf("amount %q: expected ErrInvalidAmount, got %v", raw, err)
		}
		if session.Step != domain.StepSelectingAmount || session.Amount != nil {
			t.Fatalf("amount %q: expected session to stay at amount selection, got %+v", raw, session)
		}
	}
}

func TestPayMenu_StepOrderEnforced(t *testing.T) {
	_, _, menu, _ := newTestMenu(t)

	if _, err := menu.ChooseTarget("A", "B"); !errors.Is(err, domain.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	_, _ = menu.Open("A", domain.PayModeDirect)
	if _, err := menu.EnterAmount("A", "5"); !errors.Is(err, domain.ErrInvalidStep) {
		t.Fatalf("expected ErrInvalidStep entering amount first, got %v", err)
	}
	if _, err := menu.Confirm("A"); !errors.Is(err, domain.ErrInvalidStep) {
		t.Fatalf("expected ErrInvalidStep confirming early, got %v", err)
	}
	if _, err := menu.ChooseTarget("A", "A"); !errors.Is(err, domain.ErrSameActor) {
		t.Fatalf("expected ErrSameActor, got %v", err)
	}
	if _, err := menu.Open("A", domain.PayMode("gift")); !errors.Is(err, domain.ErrInvalidStep) {
		t.Fatalf("expected unknown mode to be rejected, got %v", err)
	}
}

func TestPayMenu_CancelHasNoSideEffects(t *testing.T) {
	economy, engine, menu, _ := newTestMenu(t)
	mustDeposit(t, economy, "A", 1000)
	_, _ = menu.Open("A", domain.PayModeDirect)
	_, _ = menu.ChooseTarget("A", "B")
	_, _ = menu.EnterAmount("A", "5")

	if err := menu.Cancel("A"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := menu.Cancel("A"); !errors.Is(err, domain.ErrNoSession) {
		t.Fatalf("expected ErrNoSession on second cancel, got %v", err)
	}
	assertBalance(t, economy, "A", 1000)
	if len(engine.Pending()) != 0 {
		t.Fatal("expected no request after cancel")
	}
}

func TestPayMenu_FailedConfirmStillDestroysSession(t *testing.T) {
	economy, _, menu, _ := newTestMenu(t)
	mustDeposit(t, economy, "A", 100)
	_, _ = menu.Open("A", domain.PayModeDirect)
	_, _ = menu.ChooseTarget("A", "B")
	_, _ = menu.EnterAmount("A", "5")

	if _, err := menu.Confirm("A"); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if _, err := menu.Session("A"); !errors.Is(err, domain.ErrNoSession) {
		t.Fatalf("expected session to be destroyed, got %v", err)
	}
	assertBalance(t, economy, "A", 100)
}

func TestPayMenu_CloseAndIdleExpiry(t *testing.T) {
	_, _, menu, clock := newTestMenu(t)
	_, _ = menu.Open("A", domain.PayModeDirect)
	_, _ = menu.Open("B", domain.PayModeCharge)

	if !menu.Close("A") {
		t.Fatal("expected Close to report an open session")
	}
	if menu.Close("A") {
		t.Fatal("expected second Close to report no session")
	}

	clock.Advance(30 * time.Second)
	if closed := menu.ExpireIdle(clock.Now()); closed != 0 {
		t.Fatalf("expected no idle sessions yet, got %d", closed)
	}
	clock.Advance(31 * time.Second)
	if closed := menu.ExpireIdle(clock.Now()); closed != 1 {
		t.Fatalf("expected one idle session to close, got %d", closed)
	}
	if _, err := menu.Session("B"); !errors.Is(err, domain.ErrNoSession) {
		t.Fatalf("expected ErrNoSession after idle expiry, got %v", err)
	}
}

func TestPayMenu_ReopenReplacesSession(t *testing.T) {
	_, _, menu, _ := newTestMenu(t)
	_, _ = menu.Open("A", domain.PayModeDirect)
	_, _ = menu.ChooseTarget("A", "B")

	session, err := menu.Open("A", domain.PayModeCharge)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if session.Step != domain.StepSelectingTarget || session.Target != "" || session.Mode != domain.PayModeCharge {
		t.Fatalf("expected a fresh session, got %+v", session)
	}
}
