package engine

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fingerspell/fingerspell-core/internal/protocol"
)

// Action is the outcome of one tick or boundary deadline.
type Action int

const (
	ActionNone Action = iota
	ActionCommit
	ActionBoundary
)

func (a Action) String() string {
	switch a {
	case ActionCommit:
		return "commit"
	case ActionBoundary:
		return "boundary"
	default:
		return "none"
	}
}

// Sink receives committed characters and word boundaries. Append is called
// with either a single uppercase character or Boundary, in insertion order.
// Tail reports the most recently appended text, "" when nothing has been
// appended yet.
type Sink interface {
	Append(text string)
	Tail() string
}

// state is owned exclusively by one Session and mutated only under its lock.
type state struct {
	trackedLabel string
	trackedSince time.Time
	lastEmitted  string
	releaseStart time.Time
	boundaryAt   time.Time
}

// Session converts a per-frame stream of classifier predictions into discrete
// commits. One Session exists per active gesture stream; ticks arrive from a
// single sampling loop and the boundary timer is the only other writer, so a
// single mutex serializes both paths. A tick that reschedules the boundary
// deadline does so under the lock, which guarantees a concurrently-due timer
// callback observes the new deadline and treats its own as stale.
type Session struct {
	id   string
	log  *slog.Logger
	sink Sink

	tuning *Tuning
	clock  func() time.Time

	mu       sync.Mutex
	st       state
	timer    *time.Timer
	schedule func(deadline time.Time)
	closed   bool
}

// NewSession creates a session around the given sink and shared tuning. The
// clock supplies the current instant for boundary timer arming; nil means
// time.Now.
func NewSession(id string, tuning *Tuning, sink Sink, clock func() time.Time, log *slog.Logger) *Session {
	if clock == nil {
		clock = time.Now
	}
	s := &Session{
		id:     id,
		log:    log.With(slog.String("session", id)),
		sink:   sink,
		tuning: tuning,
		clock:  clock,
	}
	s.schedule = s.scheduleBoundary
	return s
}

// OnTick ingests the best candidate for one sampling tick. It never blocks
// and decides purely from session state, the prediction, now and the current
// tuning snapshot.
func (s *Session) OnTick(p protocol.Prediction, now time.Time) Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ActionNone
	}

	tv := s.tuning.Snapshot()
	if p.Confidence < tv.Threshold {
		// Start the release timer once per below-threshold excursion and
		// invalidate any in-progress dwell.
		if s.st.releaseStart.IsZero() {
			s.st.releaseStart = now
		}
		s.st.trackedLabel = ""
		s.st.trackedSince = time.Time{}
		return ActionNone
	}

	if p.Label != s.st.trackedLabel {
		s.st.trackedLabel = p.Label
		s.st.trackedSince = now
	}

	held := now.Sub(s.st.trackedSince) >= tv.Hold
	released := !s.st.releaseStart.IsZero() && now.Sub(s.st.releaseStart) >= ReleaseWindow
	if !held || (p.Label == s.st.lastEmitted && !released) {
		return ActionNone
	}

	s.st.lastEmitted = p.Label
	s.st.releaseStart = time.Time{}
	deadline := now.Add(WordGap)
	s.st.boundaryAt = deadline
	s.schedule(deadline)
	s.sink.Append(strings.ToUpper(p.Label))
	return ActionCommit
}

// scheduleBoundary arms the word-gap timer, superseding any earlier one. The
// deadline value itself identifies the scheduled callback; a callback whose
// deadline no longer matches session state is stale and must not fire.
func (s *Session) scheduleBoundary(deadline time.Time) {
	if s.timer != nil {
		s.timer.Stop()
	}
	d := deadline.Sub(s.clock())
	s.timer = time.AfterFunc(d, func() {
		s.onBoundaryDeadline(deadline)
	})
}

func (s *Session) onBoundaryDeadline(deadline time.Time) Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !deadline.Equal(s.st.boundaryAt) {
		return ActionNone
	}
	s.st.boundaryAt = time.Time{}

	tail := s.sink.Tail()
	if tail == "" || tail == Boundary {
		return ActionNone
	}
	s.sink.Append(Boundary)
	s.log.Debug("word boundary inserted")
	return ActionBoundary
}

// Close stops the session. No tick or timer callback mutates state afterward.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
