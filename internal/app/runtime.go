/**
 * @description
 * Runtime is the composition root of the economy core. It owns the ledger, the
 * charge request engine, the pay menu, the event bus and the scheduler, wires them
 * together explicitly, and drives load at startup and save at shutdown.
 *
 * Key features:
 * - Applies the configured load-error policy: refuse to start, or start empty with a warning.
 * - Serializes saves so autosave, on-demand save and the final save never overlap.
 * - Shuts down in order: timers, final save, event delivery, store.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/transfa/economy-service/internal/config"
	"github.com/transfa/economy-service/internal/store"
)

// Runtime holds the process-wide economy state.
type Runtime struct {
	cfgMu sync.RWMutex
	cfg   config.Config

	store     store.Store
	economy   *Economy
	requests  *ChargeRequests
	menu      *PayMenu
	bus       *EventBus
	jobs      *Jobs
	scheduler *Scheduler
	logger    *slog.Logger

	saveMu           sync.Mutex
	finalSaveTimeout time.Duration
	shutdownOnce     sync.Once
	shutdownErr  error
}

// NewRuntime loads balances from st and builds every component. Sinks receive all
// emitted domain events.
func NewRuntime(ctx context.Context, cfg config.Config, st store.Store, logger *slog.Logger, sinks ...EventSink) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	bus := NewEventBus(cfg.Events.Buffer, logger)
	for _, sink := range sinks {
		bus.AddSink(sink)
	}

	economy := NewEconomy(bus, logger)
	requests := NewChargeRequests(economy, bus, cfg.RequestTimeout(), logger)
	menu := NewPayMenu(economy, requests, cfg.MenuTimeout(), logger)

	r := &Runtime{
		cfg:      cfg,
		store:    st,
		economy:  economy,
		requests: requests,
		menu:     menu,
		bus:      bus,
		logger:   logger,

		finalSaveTimeout: defaultSaveTimeout,
	}
	r.jobs = NewJobs(r, requests, menu, logger)
	r.scheduler = NewScheduler(r.jobs, logger)

	if err := r.load(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Runtime) load(ctx context.Context) error {
	start := time.Now()
	balances, err := r.store.Load(ctx)
	persistenceDuration.WithLabelValues("load").Observe(time.Since(start).Seconds())
	if err != nil {
		persistenceFailuresTotal.WithLabelValues("load").Inc()
		if r.cfg.Storage.OnLoadError == config.OnLoadErrorEmpty {
			r.logger.Warn("failed to load balances; starting with an empty ledger", "error", err)
			// Restore leaves the ledger clean and reads never dirty it, so the
			// unreadable data survives until a balance actually changes.
			r.economy.Restore(nil)
			return nil
		}
		return fmt.Errorf("load balances: %w", err)
	}
	r.economy.Restore(balances)
	r.logger.Info("balances loaded", "accounts", len(balances), "backend", r.cfg.Storage.Backend)
	return nil
}

// Start begins event delivery and the periodic jobs.
func (r *Runtime) Start() {
	r.bus.Start()
	r.scheduler.Start(r.Config())
}

// Economy returns the account ledger.
func (r *Runtime) Economy() *Economy { return r.economy }

// Requests returns the charge request engine.
func (r *Runtime) Requests() *ChargeRequests { return r.requests }

// Menu returns the interactive pay menu.
func (r *Runtime) Menu() *PayMenu { return r.menu }

// Events returns the event bus for in-process subscribers.
func (r *Runtime) Events() *EventBus { return r.bus }

// Config returns the active configuration.
func (r *Runtime) Config() config.Config {
	r.cfgMu.RLock()
	defer r.cfgMu.RUnlock()
	return r.cfg
}

// Dirty reports whether balances changed since the last successful save.
func (r *Runtime) Dirty() bool {
	return r.economy.Dirty()
}

// Save writes a consistent snapshot of every balance to the store.
func (r *Runtime) Save(ctx context.Context) error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	snapshot := r.economy.snapshotForSave()
	start := time.Now()
	err := r.store.Save(ctx, snapshot)
	persistenceDuration.WithLabelValues("save").Observe(time.Since(start).Seconds())
	if err != nil {
		persistenceFailuresTotal.WithLabelValues("save").Inc()
		r.economy.MarkDirty()
		return fmt.Errorf("save balances: %w", err)
	}
	r.logger.Debug("balances saved", "accounts", len(snapshot))
	return nil
}

// Reload applies a new configuration. Timeouts and intervals take effect at once;
// a different storage backend only takes effect after a restart.
func (r *Runtime) Reload(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.cfgMu.Lock()
	previous := r.cfg
	if cfg.Storage != previous.Storage {
		r.logger.Warn("storage settings changed; restart to apply them", "backend", cfg.Storage.Backend)
		autosave := cfg.Storage.AutosaveSeconds
		cfg.Storage = previous.Storage
		cfg.Storage.AutosaveSeconds = autosave
	}
	r.cfg = cfg
	r.cfgMu.Unlock()

	r.requests.SetTimeout(cfg.RequestTimeout())
	r.menu.SetTimeout(cfg.MenuTimeout())
	r.scheduler.Reschedule(cfg)
	r.logger.Info("configuration reloaded",
		"autosave_seconds", cfg.Storage.AutosaveSeconds,
		"request_timeout_seconds", cfg.Requests.TimeoutSeconds,
		"menu_timeout_seconds", cfg.Menu.TimeoutSeconds,
	)
	return nil
}

// Shutdown stops the timers, saves any unsaved changes, drains pending events and
// closes the store. Only the first call does any work.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.shutdownOnce.Do(func() {
		var errs []error
		if err := r.scheduler.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
		}
		if !r.Dirty() {
			r.logger.Info("no unsaved balance changes; skipping final save")
		} else if err := r.finalSave(); err != nil {
			r.logger.Error("final save failed; changes since the last successful save are lost", "error", err)
			errs = append(errs, err)
		} else {
			r.logger.Info("final save completed")
		}
		if err := r.bus.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close event bus: %w", err))
		}
		if err := r.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		r.shutdownErr = errors.Join(errs...)
	})
	return r.shutdownErr
}

// finalSave runs under its own deadline. The shutdown context may already be spent
// waiting for an in-flight autosave.
func (r *Runtime) finalSave() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.finalSaveTimeout)
	defer cancel()
	return r.Save(ctx)
}
