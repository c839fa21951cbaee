package bedjet

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jcrd/bedjetd/internal/ble"
)

// SupervisorConfig holds the reconnect policy.
type SupervisorConfig struct {
	Session SessionConfig

	// InitialBackoff is the wait after the first failure; each further
	// failure doubles it up to MaxBackoff. A session reaching Ready
	// resets the next wait to InitialBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c *SupervisorConfig) withDefaults() {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = 30 * time.Second
	}
}

// Supervisor owns the zero-or-one active session for a device and restarts
// it with capped exponential backoff whenever it fails, including when a
// competing client (the vendor's mobile app) steals the single connection
// slot. There is deliberately no give-up limit: the device may become
// available again at any time, so only an explicit stop (context cancel)
// ends the retry loop.
type Supervisor struct {
	cfg     SupervisorConfig
	adapter ble.Adapter
	state   *StateModel
	queue   *Queue
	obs     Observer
	log     *slog.Logger

	session atomic.Pointer[Session]
	done    chan struct{}
}

// NewSupervisor creates a supervisor. Run must be called to start it.
func NewSupervisor(cfg SupervisorConfig, adapter ble.Adapter, state *StateModel, queue *Queue, obs Observer) *Supervisor {
	cfg.withDefaults()
	if obs == nil {
		obs = NopObserver{}
	}
	return &Supervisor{
		cfg:     cfg,
		adapter: adapter,
		state:   state,
		queue:   queue,
		obs:     obs,
		log:     slog.Default().With("addr", cfg.Session.Address),
		done:    make(chan struct{}),
	}
}

// Run blocks until ctx is cancelled, holding at most one live session at a
// time. Cancelling ctx tears down the current session (or a pending
// backoff wait) and returns.
func (s *Supervisor) Run(ctx context.Context) {
	defer close(s.done)

	for attempt := 0; ; {
		if ctx.Err() != nil {
			return
		}

		s.obs.SessionStarted()
		sess := NewSession(s.cfg.Session, s.adapter, s.state, s.queue, s.obs)
		s.session.Store(sess)
		err := sess.Run(ctx)
		s.session.Store(nil)

		if ctx.Err() != nil {
			return
		}

		// Any session that made it to Ready earns a fresh backoff
		// schedule; a device held by another client for an hour should
		// not be hammered once it frees up.
		if sess.ReachedReady() {
			attempt = 0
		}
		s.obs.SessionFailed(err)

		delay := Backoff(attempt, s.cfg.InitialBackoff, s.cfg.MaxBackoff)
		s.log.Info("[supervisor] session ended, reconnecting", "error", err, "attempt", attempt+1, "delay", delay)
		attempt++

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Done is closed when Run has returned.
func (s *Supervisor) Done() <-chan struct{} { return s.done }

// Connected reports whether the current session is Ready.
func (s *Supervisor) Connected() bool {
	sess := s.session.Load()
	return sess != nil && sess.State() == StateReady
}

// SessionState returns the current session's state, or StateClosed when no
// session is alive (between attempts).
func (s *Supervisor) SessionState() SessionState {
	if sess := s.session.Load(); sess != nil {
		return sess.State()
	}
	return StateClosed
}

// Backoff returns the reconnect delay for the given attempt: initial
// doubled per attempt, capped at max. Monotonically non-decreasing in
// attempt.
func Backoff(attempt int, initial, max time.Duration) time.Duration {
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = initial
	}
	// 1<<attempt overflows for large attempts; anything past the cap's
	// doubling horizon is just the cap.
	if attempt > 30 {
		return max
	}
	delay := initial << uint(attempt)
	if delay <= 0 || delay > max {
		return max
	}
	return delay
}
