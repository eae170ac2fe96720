// Package maintenance runs the background housekeeping loop: stale
// sessions are reaped and their actors stopped, expired refresh tokens
// purged, and failed blob writes reconciled.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/quanhua92/buildscale-ai-sub000/internal/cache"
	"github.com/quanhua92/buildscale-ai-sub000/internal/config"
	"github.com/quanhua92/buildscale-ai-sub000/internal/observability"
	"github.com/quanhua92/buildscale-ai-sub000/internal/sessions"
)

// cronParser accepts standard 5-field expressions, optional seconds,
// and @every descriptors.
var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// ActorStopper stops the live actor for a chat, if any.
type ActorStopper interface {
	Stop(chatFileID string)
}

// TokenPurger removes expired refresh tokens.
type TokenPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// BlobSyncer reconciles queued blob mismatches.
type BlobSyncer interface {
	SyncBlobs(ctx context.Context) (int, error)
}

// CacheInspector reports cache health for the sweep log line.
type CacheInspector interface {
	Health() cache.Health
}

// Deps is what a sweep touches. Sessions and Registry are required;
// the rest are skipped when nil.
type Deps struct {
	Sessions sessions.Store
	Registry ActorStopper
	Tokens   TokenPurger
	Files    BlobSyncer
	Cache    CacheInspector
	Logger   *observability.Logger
	Metrics  *observability.Metrics
}

// Report is the outcome of one sweep.
type Report struct {
	// StaleSessions counts reaped sessions; each one's actor was
	// stopped.
	StaleSessions int

	// TokensPurged counts deleted refresh tokens.
	TokensPurged int64

	// BlobsSynced counts reconciled blob paths.
	BlobsSynced int
}

func (r Report) empty() bool {
	return r.StaleSessions == 0 && r.TokensPurged == 0 && r.BlobsSynced == 0
}

// Sweeper periodically reaps sessions whose heartbeat went silent and
// runs the other housekeeping passes. One sweep never aborts another
// pass because an earlier one failed.
type Sweeper struct {
	deps       Deps
	staleAfter time.Duration
	interval   time.Duration
	schedule   cron.Schedule

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds a sweeper. The agent config supplies the staleness
// window; the maintenance config supplies the cadence, either a fixed
// interval or a cron expression.
func New(cfg config.MaintenanceConfig, agentCfg config.AgentConfig, deps Deps) (*Sweeper, error) {
	s := &Sweeper{
		deps:       deps,
		staleAfter: agentCfg.StaleAfter,
		interval:   cfg.SweepInterval,
	}
	if s.staleAfter <= 0 {
		s.staleAfter = 120 * time.Second
	}
	if s.interval <= 0 {
		s.interval = time.Minute
	}
	if cfg.SweepSchedule != "" {
		schedule, err := cronParser.Parse(cfg.SweepSchedule)
		if err != nil {
			return nil, fmt.Errorf("maintenance: invalid sweep schedule %q: %w", cfg.SweepSchedule, err)
		}
		s.schedule = schedule
	}
	return s, nil
}

// Start launches the sweep loop. Starting a running sweeper is a
// no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.deps.Logger.Info(ctx, "maintenance sweeper started",
		"stale_after", s.staleAfter, "interval", s.interval, "cron", s.schedule != nil)
	go s.loop(ctx, s.done)
}

// Stop halts the loop and waits for an in-flight sweep to finish,
// giving up when ctx ends first.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	// First pass right away so a restart reaps sessions orphaned by
	// the previous process.
	s.Sweep(ctx)

	timer := time.NewTimer(s.wait(time.Now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.Sweep(ctx)
			timer.Reset(s.wait(time.Now()))
		}
	}
}

// wait returns the delay until the next sweep.
func (s *Sweeper) wait(now time.Time) time.Duration {
	if s.schedule != nil {
		if d := time.Until(s.schedule.Next(now)); d > 0 {
			return d
		}
		return time.Second
	}
	return s.interval
}

// Sweep runs one housekeeping pass and reports what it cleaned.
func (s *Sweeper) Sweep(ctx context.Context) Report {
	var rep Report

	chats, err := s.deps.Sessions.CleanupStale(ctx, s.staleAfter)
	if err != nil {
		s.fail(ctx, "stale session cleanup failed", "sessions", err)
	} else {
		rep.StaleSessions = len(chats)
		for _, chatFileID := range chats {
			s.deps.Registry.Stop(chatFileID)
		}
	}

	if s.deps.Tokens != nil {
		purged, err := s.deps.Tokens.PurgeExpired(ctx)
		if err != nil {
			s.fail(ctx, "token purge failed", "tokens", err)
		} else {
			rep.TokensPurged = purged
		}
	}

	if s.deps.Files != nil {
		synced, err := s.deps.Files.SyncBlobs(ctx)
		rep.BlobsSynced = synced
		if err != nil {
			s.fail(ctx, "blob reconciliation failed", "blobs", err)
		}
	}

	if s.deps.Cache != nil {
		health := s.deps.Cache.Health()
		s.deps.Logger.Debug(ctx, "cache health",
			"num_keys", health.NumKeys,
			"cleaned_total", health.CleanedCountTotal,
			"approx_bytes", health.ApproxBytes)
	}

	if !rep.empty() {
		s.deps.Logger.Info(ctx, "sweep completed",
			"stale_sessions", rep.StaleSessions,
			"tokens_purged", rep.TokensPurged,
			"blobs_synced", rep.BlobsSynced)
	}
	return rep
}

func (s *Sweeper) fail(ctx context.Context, msg, what string, err error) {
	s.deps.Logger.Error(ctx, msg, "error", err)
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordError("maintenance", what)
	}
}
