package stream

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/gotify-desk/deskd/internal/cache"
	"github.com/gotify-desk/deskd/internal/common/config"
	"github.com/gotify-desk/deskd/internal/event"
	"github.com/gotify-desk/deskd/internal/gotify"
	"github.com/gotify-desk/deskd/internal/message"
	"github.com/gotify-desk/deskd/internal/notify"
	"github.com/gotify-desk/deskd/internal/settings"
	deskdsync "github.com/gotify-desk/deskd/internal/sync"
	"github.com/gotify-desk/deskd/pkg/metrics"
	"github.com/gotify-desk/deskd/pkg/utils"
	"go.uber.org/zap"
)

// RecentSyncer is the reconciliation surface the session loop drives.
type RecentSyncer interface {
	SyncRecent(ctx context.Context) error
	SyncApplications(ctx context.Context) error
}

// SyncerFactory builds a syncer bound to the connection parameters of one
// supervisor run.
type SyncerFactory func(baseURL, token string) RecentSyncer

// Supervisor owns the stream lifecycle: it drives session attempts,
// applies exponential backoff with jitter between failures, and honors
// stop requests. At most one session task runs per process.
type Supervisor struct {
	logger    *zap.Logger
	cfg       config.StreamConfig
	state     *State
	store     settings.Store
	cache     *cache.Cache
	meta      *message.MetaMap
	bus       *event.Bus
	gate      *notify.Gate
	newSyncer SyncerFactory
}

// NewSupervisor creates a stream supervisor.
func NewSupervisor(logger *zap.Logger, cfg config.StreamConfig, state *State, store settings.Store,
	c *cache.Cache, meta *message.MetaMap, bus *event.Bus, gate *notify.Gate) *Supervisor {
	s := &Supervisor{
		logger: logger.Named("stream"),
		cfg:    cfg,
		state:  state,
		store:  store,
		cache:  c,
		meta:   meta,
		bus:    bus,
		gate:   gate,
	}
	s.newSyncer = func(baseURL, token string) RecentSyncer {
		client := gotify.NewClient(logger, baseURL, token)
		return deskdsync.NewSyncer(logger, client, c, meta, func() int {
			stored, err := store.Read()
			if err != nil {
				return settings.DefaultCacheLimit
			}
			return settings.NormalizeCacheLimit(stored.CacheLimit)
		})
	}
	return s
}

// State exposes the shared session state for diagnostics consumers.
func (s *Supervisor) State() *State {
	return s.state
}

// Start spawns the stream task. Starting while a session is already active
// is a no-op. A missing base URL or token is a setup error and fails the
// call immediately with no retry.
func (s *Supervisor) Start(tokenOverride string) error {
	stored, err := s.store.Read()
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}
	baseURL, err := settings.NormalizeBaseURL(stored.BaseURL)
	if err != nil {
		return err
	}

	token := strings.TrimSpace(tokenOverride)
	if token == "" {
		token = strings.TrimSpace(stored.Token)
	}
	if token == "" {
		return fmt.Errorf("no token found, save one in settings first")
	}

	stop, epoch, ok := s.state.TryStart()
	if !ok {
		return nil
	}

	s.state.SetPhase(PhaseConnecting)
	syncer := s.newSyncer(baseURL, token)

	go func() {
		if err := syncer.SyncApplications(context.Background()); err != nil {
			s.logger.Warn("failed to fetch applications", zap.Error(err))
		}
		if err := syncer.SyncRecent(context.Background()); err != nil {
			s.logger.Warn("failed to fetch recent messages", zap.Error(err))
		}
	}()
	go s.run(baseURL, token, syncer, stop, epoch)

	return nil
}

// Stop requests a cooperative shutdown of the running session, if any.
func (s *Supervisor) Stop() {
	s.state.Stop()
}

// Restart always stops the current session before starting a new one. The
// old task may still be draining when the new one starts; the epoch guard
// keeps it from clobbering the new task's state.
func (s *Supervisor) Restart(tokenOverride string) error {
	s.state.Stop()
	return s.Start(tokenOverride)
}

// Recover restarts the stream only when the operator wants it running and
// no session is currently connected or connecting.
func (s *Supervisor) Recover() error {
	if !s.state.ShouldRun() {
		return nil
	}
	switch s.state.Phase() {
	case PhaseConnected, PhaseConnecting:
		return nil
	}
	s.state.Stop()
	return s.Start("")
}

// run is the reconnection loop. A clean session end retries immediately: a
// polite close does not indicate a faulty server. Errors back off
// exponentially with jitter up to the configured ceiling.
func (s *Supervisor) run(baseURL, token string, syncer RecentSyncer, stop chan struct{}, epoch uint64) {
	backoff := uint64(s.cfg.BackoffInitial)
	s.logger.Debug("stream task started", zap.Uint64("epoch", epoch))

	for {
		if stopped(stop) {
			break
		}

		s.state.SetPhase(PhaseConnecting)
		metrics.SessionsStarted.Inc()
		err := s.session(baseURL, token, syncer, stop)
		if err == nil {
			if stopped(stop) {
				break
			}
			s.logger.Info("stream session ended without error")
			s.state.SetPhase(PhaseDisconnected)
			continue
		}

		if stopped(stop) {
			break
		}

		s.logger.Warn("stream session failed",
			zap.Error(err),
			zap.Uint64("backoff_seconds", backoff))
		s.state.SetPhase(PhaseBackoff)
		s.bus.Emit(event.ConnectionError, utils.Truncate(err.Error(), 200))
		s.state.RecordFailure(utils.Truncate(err.Error(), 300), backoff)
		s.state.EmitDiagnostics()
		metrics.ReconnectAttempts.Inc()

		var jitter time.Duration
		if s.cfg.JitterMaxMS > 0 {
			jitter = time.Duration(rand.Intn(s.cfg.JitterMaxMS)) * time.Millisecond
		}
		select {
		case <-stop:
		case <-time.After(time.Duration(backoff)*time.Second + jitter):
		}
		backoff = nextBackoff(backoff, uint64(s.cfg.BackoffMax))
	}

	s.state.FinishTask(epoch)
	s.state.SetPhase(PhaseDisconnected)
	s.logger.Debug("stream task finished", zap.Uint64("epoch", epoch))
}

// nextBackoff doubles the delay, capped at the ceiling.
func nextBackoff(current, max uint64) uint64 {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
