/**
 * @description
 * Scheduled job implementations: autosave of the ledger, charge request expiry and
 * idle pay session cleanup.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/transfa/economy-service/internal/domain"
)

// Persister saves the ledger.
type Persister interface {
	Dirty() bool
	Save(ctx context.Context) error
}

// RequestExpirer expires overdue charge requests.
type RequestExpirer interface {
	ExpireDue(now time.Time) []domain.ChargeRequest
}

// SessionExpirer closes idle pay sessions.
type SessionExpirer interface {
	ExpireIdle(now time.Time) int
}

// defaultSaveTimeout bounds a single write to the store.
const defaultSaveTimeout = 30 * time.Second

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	persister   Persister
	requests    RequestExpirer
	sessions    SessionExpirer
	logger      *slog.Logger
	now         func() time.Time
	saveTimeout time.Duration
}

// NewJobs creates a new Jobs runner.
func NewJobs(persister Persister, requests RequestExpirer, sessions SessionExpirer, logger *slog.Logger) *Jobs {
	return &Jobs{
		persister:   persister,
		requests:    requests,
		sessions:    sessions,
		logger:      logger,
		now:         time.Now,
		saveTimeout: defaultSaveTimeout,
	}
}

// Autosave flushes the ledger when it changed since the last save. A failure is
// logged and the next cycle tries again.
func (j *Jobs) Autosave() {
	if !j.persister.Dirty() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), j.saveTimeout)
	defer cancel()

	if err := j.persister.Save(ctx); err != nil {
		j.logger.Error("autosave failed; retrying next cycle", "error", err)
		return
	}
	j.logger.Debug("autosave completed")
}

// ExpireChargeRequests sweeps overdue pending requests.
func (j *Jobs) ExpireChargeRequests() {
	expired := j.requests.ExpireDue(j.now())
	for _, req := range expired {
		j.logger.Debug("charge request expired", "request_id", req.ID, "requester", req.Requester, "target", req.Target)
	}
}

// ExpirePaySessions closes idle interactive sessions.
func (j *Jobs) ExpirePaySessions() {
	j.sessions.ExpireIdle(j.now())
}
