package app

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/transfa/economy-service/internal/domain"
)

var (
	ledgerOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "economy_ledger_operations_total",
		Help: "Ledger operations processed, labeled by operation and outcome",
	}, []string{"operation", "outcome"})

	chargeRequestTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "economy_charge_request_transitions_total",
		Help: "Charge requests entering each state",
	}, []string{"state"})

	activeChargeRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "economy_charge_requests_active",
		Help: "Pending charge requests in the active set",
	})

	openPaySessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "economy_pay_sessions_open",
		Help: "Interactive pay sessions currently open",
	})

	persistenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "economy_persistence_duration_seconds",
		Help:    "Latency of ledger store operations",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"operation"})

	persistenceFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "economy_persistence_failures_total",
		Help: "Failed ledger store operations",
	}, []string{"operation"})

	eventsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "economy_events_dropped_total",
		Help: "Domain events dropped because the event queue was full or closed",
	})
)

// outcomeLabel keeps metric cardinality bounded by mapping errors to their kind.
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrSameActor):
		return "same_actor"
	case errors.Is(err, domain.ErrInvalidAccount):
		return "invalid_account"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return "duplicate_request"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
