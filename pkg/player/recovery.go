package player

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/grafana/dskit/backoff"
)

// Supervisor watches the engine for transient failures and buffering
// stalls and drives bounded, backed-off reconnects that preserve the
// playback position. Non-transient failures pass through untouched.
// Retries are timer-driven rather than slept, so an explicit load or
// stop cancels a pending attempt immediately.
type Supervisor struct {
	logger  *slog.Logger
	cfg     Config
	engine  *Engine
	metrics *metrics

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu             sync.Mutex
	backoff        *backoff.Backoff
	failures       int
	exhausted      bool
	retryTimer     *time.Timer
	stabilityTimer *time.Timer
}

// NewSupervisor creates a supervisor bound to an engine. Start must be
// called for stall detection to run.
func NewSupervisor(cfg Config, logger *slog.Logger, engine *Engine, m *metrics) *Supervisor {
	if m == nil {
		m = newMetrics(nil)
	}
	cfg = cfg.withDefaults()
	return &Supervisor{
		logger:  logger.With("module", "recovery"),
		cfg:     cfg,
		engine:  engine,
		metrics: m,
		backoff: backoff.New(context.Background(), backoff.Config{
			MinBackoff: cfg.BackoffMin,
			MaxBackoff: cfg.BackoffMax,
		}),
	}
}

// Start launches the stall watcher.
func (s *Supervisor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.watchStalls(ctx)
}

// Stop halts the stall watcher and cancels any pending retry.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.CancelPending()
	s.wg.Wait()
}

// CancelPending discards any scheduled retry and resets the recovery
// bookkeeping. Called when the caller issues an explicit load or stop:
// a fresh session starts with a clean budget.
func (s *Supervisor) CancelPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopRetryLocked()
	s.stopStabilityLocked()
	s.failures = 0
	s.exhausted = false
	s.backoff.Reset()
}

// Handle consumes one engine event. Invoked from the facade's dispatch
// goroutine, so events arrive in transition order.
func (s *Supervisor) Handle(ev Event) {
	if ev.Kind != EventStateChanged {
		return
	}
	if ev.Gen != s.engine.generation() {
		// The event was queued behind an explicit load or stop; the
		// session it describes no longer exists.
		return
	}
	switch ev.To {
	case StateError:
		if ev.ErrKind == ErrorNetworkTransient {
			s.onTransient(ev)
		} else {
			// StreamUnavailable and DecodeFailure surface immediately.
			s.mu.Lock()
			s.stopStabilityLocked()
			s.mu.Unlock()
		}
	case StatePlaying:
		s.onPlaying()
	}
}

func (s *Supervisor) onTransient(ev Event) {
	s.mu.Lock()
	if s.exhausted || ev.Track == nil {
		s.mu.Unlock()
		return
	}
	s.stopStabilityLocked()
	s.failures++
	if s.failures > s.cfg.MaxRetries {
		s.exhausted = true
		s.mu.Unlock()
		s.metrics.recoveryExhausted.Inc()
		s.logger.Warn("recovery budget exhausted", "attempts", s.cfg.MaxRetries, "err", ev.ErrMsg)
		s.engine.Exhaust(fmt.Sprintf("gave up after %d recovery attempts: %s", s.cfg.MaxRetries, ev.ErrMsg))
		return
	}
	if s.retryTimer != nil {
		// One recovery attempt in flight per session.
		s.mu.Unlock()
		return
	}
	track := *ev.Track
	pos := ev.Position
	gen := ev.Gen
	delay := s.backoff.NextDelay()
	attempt := s.failures
	s.retryTimer = time.AfterFunc(delay, func() { s.fire(track, pos, gen) })
	s.mu.Unlock()
	s.logger.Info("scheduling recovery", "attempt", attempt, "max", s.cfg.MaxRetries,
		"delay", delay, "position", pos, "title", track.Title)
}

func (s *Supervisor) fire(track Track, pos time.Duration, gen uint64) {
	s.mu.Lock()
	if s.retryTimer == nil {
		// Canceled between firing and running.
		s.mu.Unlock()
		return
	}
	s.retryTimer = nil
	s.mu.Unlock()
	if gen != s.engine.generation() {
		// An explicit load or stop took over while the retry was pending.
		return
	}
	s.metrics.recoveryAttempts.Inc()
	s.engine.Load(track, pos)
}

// onPlaying arms the stability window; a stretch of uninterrupted
// playback clears the consecutive-failure counter.
func (s *Supervisor) onPlaying() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures == 0 {
		return
	}
	s.stopStabilityLocked()
	s.stabilityTimer = time.AfterFunc(s.cfg.StabilityWindow, func() {
		s.mu.Lock()
		s.failures = 0
		s.backoff.Reset()
		s.mu.Unlock()
		s.logger.Debug("playback stable, failure counter reset")
	})
}

// watchStalls polls for a Buffering session whose source has produced
// no data for the stall window and converts it into a transport error
// handled by the normal recovery path.
func (s *Supervisor) watchStalls(ctx context.Context) {
	defer s.wg.Done()
	interval := s.cfg.StallTimeout / 4
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.engine.State() != StateBuffering {
				continue
			}
			if time.Since(s.engine.LastDataAt()) < s.cfg.StallTimeout {
				continue
			}
			s.logger.Warn("buffering stalled, aborting stream", "window", s.cfg.StallTimeout)
			s.engine.AbortStalled()
		}
	}
}

func (s *Supervisor) stopRetryLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

func (s *Supervisor) stopStabilityLocked() {
	if s.stabilityTimer != nil {
		s.stabilityTimer.Stop()
		s.stabilityTimer = nil
	}
}
