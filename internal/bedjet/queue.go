package bedjet

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jcrd/bedjetd/internal/bedjet/protocol"
)

// Outcome is the terminal result of a submitted command.
type Outcome uint8

const (
	// OutcomeWritten means the transport-level write completed.
	OutcomeWritten Outcome = iota + 1
	// OutcomeSuperseded means a later submission with the same coalescing
	// key replaced this one before it was written.
	OutcomeSuperseded
	// OutcomeUncertain means the session was torn down while the write
	// was in flight; the device may or may not have acted on it. It is
	// never retried automatically: replaying a stale setpoint after an
	// unknown delay could override a newer decision.
	OutcomeUncertain
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWritten:
		return "written"
	case OutcomeSuperseded:
		return "superseded"
	case OutcomeUncertain:
		return "uncertain"
	}
	return "pending"
}

// Pending is a queued command submission. Its Done channel receives
// exactly one Outcome.
type Pending struct {
	cmd       protocol.Command
	key       string
	submitted time.Time
	done      chan Outcome
}

// Command returns the queued command value.
func (p *Pending) Command() protocol.Command { return p.cmd }

// Submitted returns when the submission was enqueued. A coalescing
// replacement counts as a new submission with its own time.
func (p *Pending) Submitted() time.Time { return p.submitted }

// Done returns a channel that receives the submission's final outcome.
func (p *Pending) Done() <-chan Outcome { return p.done }

func (p *Pending) resolve(o Outcome) {
	select {
	case p.done <- o:
	default:
	}
}

// ErrDrainBusy is returned when DrainNext is called while a previous entry
// is still in flight. The write characteristic has no multiplexing, so the
// queue refuses to hand out a second entry.
var ErrDrainBusy = errors.New("bedjet: drain called with a command still in flight")

// Queue serializes outbound commands for the single write characteristic.
// Submissions with the same coalescing key replace the pending entry in
// place, keeping its queue position so other commands are not starved.
// The queue outlives sessions: entries not yet drained survive a teardown
// and are written by the next session.
type Queue struct {
	mu       sync.Mutex
	entries  []*Pending
	inflight *Pending
	wake     chan struct{}
}

// NewQueue returns an empty command queue.
func NewQueue() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

// Submit enqueues a command. A non-empty coalesceKey that matches a
// still-pending entry replaces that entry at its original position and
// resolves the replaced submission as OutcomeSuperseded.
func (q *Queue) Submit(cmd protocol.Command, coalesceKey string) *Pending {
	p := &Pending{
		cmd:       cmd,
		key:       coalesceKey,
		submitted: time.Now(),
		done:      make(chan Outcome, 1),
	}

	q.mu.Lock()
	replaced := false
	if coalesceKey != "" {
		for i, e := range q.entries {
			if e.key == coalesceKey {
				e.resolve(OutcomeSuperseded)
				q.entries[i] = p
				replaced = true
				break
			}
		}
	}
	if !replaced {
		q.entries = append(q.entries, p)
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return p
}

// DrainNext blocks until an entry is available, pops the oldest one and
// marks it in flight. The caller must call Complete (or AbortInflight on
// teardown) before draining again; a second concurrent drain fails with
// ErrDrainBusy.
func (q *Queue) DrainNext(ctx context.Context) (*Pending, error) {
	for {
		q.mu.Lock()
		if q.inflight != nil {
			q.mu.Unlock()
			return nil, ErrDrainBusy
		}
		if len(q.entries) > 0 {
			p := q.entries[0]
			q.entries = q.entries[1:]
			q.inflight = p
			q.mu.Unlock()
			return p, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.wake:
		}
	}
}

// Complete resolves the in-flight entry with the given outcome.
func (q *Queue) Complete(p *Pending, o Outcome) {
	q.mu.Lock()
	if q.inflight == p {
		q.inflight = nil
	}
	q.mu.Unlock()
	p.resolve(o)
}

// AbortInflight resolves an interrupted in-flight entry as
// OutcomeUncertain. Called on session teardown mid-write; queued entries
// that never started are left untouched for the next session.
func (q *Queue) AbortInflight() {
	q.mu.Lock()
	p := q.inflight
	q.inflight = nil
	q.mu.Unlock()
	if p != nil {
		p.resolve(OutcomeUncertain)
	}
}

// Len returns the number of queued entries, not counting one in flight.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
