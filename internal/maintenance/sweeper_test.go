package maintenance

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quanhua92/buildscale-ai-sub000/internal/apperr"
	"github.com/quanhua92/buildscale-ai-sub000/internal/cache"
	"github.com/quanhua92/buildscale-ai-sub000/internal/config"
	"github.com/quanhua92/buildscale-ai-sub000/internal/observability"
	"github.com/quanhua92/buildscale-ai-sub000/internal/sessions"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

type stopRecorder struct {
	mu      sync.Mutex
	stopped []string
}

func (r *stopRecorder) Stop(chatFileID string) {
	r.mu.Lock()
	r.stopped = append(r.stopped, chatFileID)
	r.mu.Unlock()
}

func (r *stopRecorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.stopped))
	copy(out, r.stopped)
	return out
}

type fakePurger struct {
	n     int64
	err   error
	calls atomic.Int64
}

func (p *fakePurger) PurgeExpired(ctx context.Context) (int64, error) {
	p.calls.Add(1)
	return p.n, p.err
}

type fakeSyncer struct {
	n     int
	err   error
	calls atomic.Int64
}

func (s *fakeSyncer) SyncBlobs(ctx context.Context) (int, error) {
	s.calls.Add(1)
	return s.n, s.err
}

type fakeCache struct{ health cache.Health }

func (c *fakeCache) Health() cache.Health { return c.health }

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Level: "error", Output: io.Discard})
}

func newSweeper(t *testing.T, cfg config.MaintenanceConfig, deps Deps) *Sweeper {
	t.Helper()
	if deps.Sessions == nil {
		deps.Sessions = sessions.NewMemoryStore()
	}
	if deps.Registry == nil {
		deps.Registry = &stopRecorder{}
	}
	deps.Logger = testLogger()

	s, err := New(cfg, config.AgentConfig{StaleAfter: time.Nanosecond}, deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func seedSession(t *testing.T, store sessions.Store, chatFileID string, status models.SessionStatus) {
	t.Helper()
	ctx := context.Background()
	sess, err := store.GetOrCreate(ctx, &models.AgentSession{
		ID:          "sess-" + chatFileID,
		WorkspaceID: "ws-1",
		ChatFileID:  chatFileID,
		UserID:      "u-1",
		AgentType:   models.AgentAssistant,
		Model:       "test:test-model",
		Mode:        models.ModeChat,
	})
	if err != nil {
		t.Fatalf("GetOrCreate(%s) error = %v", chatFileID, err)
	}
	if status == models.StatusIdle {
		return
	}
	if _, err := store.UpdateStatus(ctx, sess.ID, models.StatusRunning, nil); err != nil {
		t.Fatalf("UpdateStatus(running) error = %v", err)
	}
	if status == models.StatusRunning {
		return
	}
	if _, err := store.UpdateStatus(ctx, sess.ID, status, nil); err != nil {
		t.Fatalf("UpdateStatus(%s) error = %v", status, err)
	}
}

func TestSweepReapsStaleSessions(t *testing.T) {
	store := sessions.NewMemoryStore()
	recorder := &stopRecorder{}
	seedSession(t, store, "chat-stale", models.StatusRunning)
	seedSession(t, store, "chat-done", models.StatusCompleted)

	// Let the heartbeats age past the nanosecond staleness window.
	time.Sleep(5 * time.Millisecond)

	s := newSweeper(t, config.MaintenanceConfig{}, Deps{Sessions: store, Registry: recorder})
	rep := s.Sweep(context.Background())

	if rep.StaleSessions != 1 {
		t.Fatalf("StaleSessions = %d, want 1", rep.StaleSessions)
	}
	stopped := recorder.calls()
	if len(stopped) != 1 || stopped[0] != "chat-stale" {
		t.Fatalf("stopped actors = %v, want [chat-stale]", stopped)
	}

	// The stale session is gone; the terminal one survives.
	if _, err := store.GetByChatFile(context.Background(), "chat-stale"); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("stale session lookup error = %v, want NotFound", err)
	}
	if _, err := store.GetByChatFile(context.Background(), "chat-done"); err != nil {
		t.Errorf("terminal session was reaped: %v", err)
	}
}

func TestSweepRunsEveryPass(t *testing.T) {
	purger := &fakePurger{n: 3}
	syncer := &fakeSyncer{n: 2}
	s := newSweeper(t, config.MaintenanceConfig{}, Deps{
		Tokens: purger,
		Files:  syncer,
		Cache:  &fakeCache{health: cache.Health{NumKeys: 7}},
	})

	rep := s.Sweep(context.Background())
	if rep.StaleSessions != 0 || rep.TokensPurged != 3 || rep.BlobsSynced != 2 {
		t.Fatalf("report = %+v", rep)
	}
	if purger.calls.Load() != 1 || syncer.calls.Load() != 1 {
		t.Errorf("purger calls = %d, syncer calls = %d", purger.calls.Load(), syncer.calls.Load())
	}
}

func TestSweepFailureDoesNotAbortLaterPasses(t *testing.T) {
	purger := &fakePurger{err: errors.New("db down")}
	syncer := &fakeSyncer{n: 4}
	s := newSweeper(t, config.MaintenanceConfig{}, Deps{Tokens: purger, Files: syncer})

	rep := s.Sweep(context.Background())
	if rep.TokensPurged != 0 {
		t.Errorf("TokensPurged = %d, want 0 on failure", rep.TokensPurged)
	}
	if rep.BlobsSynced != 4 {
		t.Errorf("BlobsSynced = %d, want 4", rep.BlobsSynced)
	}
	if syncer.calls.Load() != 1 {
		t.Errorf("syncer was not reached after the purge failure")
	}
}

func TestSweeperLoopRunsAndStops(t *testing.T) {
	purger := &fakePurger{}
	s := newSweeper(t, config.MaintenanceConfig{SweepInterval: 10 * time.Millisecond}, Deps{Tokens: purger})

	s.Start(context.Background())
	s.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for purger.calls.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("sweeps = %d, want at least 2", purger.calls.Load())
		}
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}

	settled := purger.calls.Load()
	time.Sleep(30 * time.Millisecond)
	if got := purger.calls.Load(); got != settled {
		t.Errorf("sweeps continued after Stop: %d -> %d", settled, got)
	}
}

func TestNewRejectsBadSchedule(t *testing.T) {
	_, err := New(config.MaintenanceConfig{SweepSchedule: "every day at noon"},
		config.AgentConfig{}, Deps{Logger: testLogger()})
	if err == nil || !strings.Contains(err.Error(), "sweep schedule") {
		t.Fatalf("New() error = %v, want schedule parse failure", err)
	}
}

func TestWaitHonorsSchedule(t *testing.T) {
	s := newSweeper(t, config.MaintenanceConfig{SweepSchedule: "@every 1s"}, Deps{})
	if d := s.wait(time.Now()); d <= 0 || d > time.Second {
		t.Errorf("cron wait = %s, want within (0, 1s]", d)
	}

	s = newSweeper(t, config.MaintenanceConfig{SweepInterval: 42 * time.Second}, Deps{})
	if d := s.wait(time.Now()); d != 42*time.Second {
		t.Errorf("interval wait = %s, want 42s", d)
	}
}
