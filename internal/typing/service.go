package typing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/fingerspell/fingerspell-core/internal/bus"
	"github.com/fingerspell/fingerspell-core/internal/classifier"
	"github.com/fingerspell/fingerspell-core/internal/config"
	"github.com/fingerspell/fingerspell-core/internal/engine"
	"github.com/fingerspell/fingerspell-core/internal/protocol"
	"github.com/fingerspell/fingerspell-core/internal/transcript"
)

// Service is the sampling loop: it consumes gesture frames from the bus,
// classifies them, and drives one commit-engine session per stream. Frames
// for one subscription are dispatched serially, so ticks never overlap.
type Service struct {
	cfg        config.ClassifierConfig
	bus        *bus.Client
	classifier classifier.Classifier
	store      *transcript.Store
	logger     *slog.Logger
	tuning     *engine.Tuning
	clock      func() time.Time
	publish    func(protocol.Commit) error

	ctx    context.Context
	cancel context.CancelFunc
	sub    *nats.Subscription
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*engine.Session

	meter      metric.Meter
	ticks      metric.Int64Counter
	commits    metric.Int64Counter
	boundaries metric.Int64Counter
	failures   metric.Int64Counter

	ready bool
}

func NewService(parent context.Context, engineCfg config.EngineConfig, clsCfg config.ClassifierConfig, busClient *bus.Client, cls classifier.Classifier, store *transcript.Store, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		cfg:        clsCfg,
		bus:        busClient,
		classifier: cls,
		store:      store,
		logger:     logger.With(slog.String("component", "typing")),
		tuning:     engine.NewTuning(engineCfg.Threshold, engineCfg.HoldMS),
		clock:      time.Now,
		ctx:        ctx,
		cancel:     cancel,
		sessions:   make(map[string]*engine.Session),
		meter:      otel.Meter("github.com/fingerspell/fingerspell-core/typing"),
	}
	s.publish = s.publishCommit
	s.initMetrics()
	return s
}

func (s *Service) initMetrics() {
	var err error
	if s.ticks, err = s.meter.Int64Counter("fingerspell.ticks"); err != nil {
		s.logger.Warn("failed to register tick counter", slogError(err))
	}
	if s.commits, err = s.meter.Int64Counter("fingerspell.commits"); err != nil {
		s.logger.Warn("failed to register commit counter", slogError(err))
	}
	if s.boundaries, err = s.meter.Int64Counter("fingerspell.boundaries"); err != nil {
		s.logger.Warn("failed to register boundary counter", slogError(err))
	}
	if s.failures, err = s.meter.Int64Counter("fingerspell.classify_failures"); err != nil {
		s.logger.Warn("failed to register failure counter", slogError(err))
	}
}

func (s *Service) Start() error {
	subject := protocol.SubjectGestureFramePrefix + ".>"
	sub, err := s.bus.Conn().Subscribe(subject, s.handleFrame)
	if err != nil {
		return fmt.Errorf("subscribe gesture frames: %w", err)
	}
	s.sub = sub
	s.ready = true
	return nil
}

// Close stops the sampling loop and every active session, cancelling any
// outstanding boundary timers before state is discarded.
func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.mu.Lock()
	for id, sess := range s.sessions {
		sess.Close()
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return s.ready
}

// SetThreshold clamps and applies a new confidence threshold, effective from
// the next tick.
func (s *Service) SetThreshold(v float64) float64 {
	return s.tuning.SetThreshold(v)
}

// SetHoldMS clamps and applies a new hold duration in milliseconds.
func (s *Service) SetHoldMS(ms int) int {
	return s.tuning.SetHoldMS(ms)
}

func (s *Service) Tuning() engine.TuningValues {
	return s.tuning.Snapshot()
}

func (s *Service) handleFrame(msg *nats.Msg) {
	var frame protocol.GestureFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		s.logger.Warn("failed to decode gesture frame", slogError(err))
		return
	}
	if frame.SessionID == "" {
		return
	}

	if frame.Final {
		s.endSession(frame.SessionID)
		return
	}

	sess, err := s.session(frame.SessionID)
	if err != nil {
		s.logger.Warn("failed to open session", slogError(err))
		return
	}

	preds, err := s.classify(frame)
	if err != nil {
		// A failed tick is never delivered to the engine; its state and
		// timers stay exactly as they were.
		if s.failures != nil {
			s.failures.Add(s.ctx, 1)
		}
		s.logger.Warn("classification failed", slog.String("session", frame.SessionID), slogError(err))
		return
	}
	best, ok := classifier.Best(preds)
	if !ok {
		return
	}

	if s.ticks != nil {
		s.ticks.Add(s.ctx, 1)
	}
	if act := sess.OnTick(best, s.clock()); act != engine.ActionNone {
		s.logger.Debug("engine action",
			slog.String("session", frame.SessionID),
			slog.String("action", act.String()),
			slog.String("label", best.Label))
	}
}

func (s *Service) classify(frame protocol.GestureFrame) ([]protocol.Prediction, error) {
	ctx, cancel := context.WithTimeout(s.ctx, time.Duration(s.cfg.TimeoutMS)*time.Millisecond)
	defer cancel()

	var preds []protocol.Prediction
	backoff := retry.WithMaxRetries(uint64(s.cfg.Retries), retry.NewConstant(50*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		preds, err = s.classifier.Classify(ctx, frame)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	return preds, err
}

func (s *Service) session(sessionID string) (*engine.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		return sess, nil
	}

	ctx, cancel := context.WithTimeout(s.ctx, appendTimeout)
	defer cancel()
	if err := s.store.EnsureSession(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("ensure session: %w", err)
	}
	sink, err := newSessionSink(ctx, sessionID, s.store, s.publish, s.countAppend, s.clock, s.logger)
	if err != nil {
		return nil, fmt.Errorf("open session sink: %w", err)
	}

	sess := engine.NewSession(sessionID, s.tuning, sink, s.clock, s.logger)
	s.sessions[sessionID] = sess
	s.logger.Info("session started", slog.String("session", sessionID))
	return sess, nil
}

func (s *Service) endSession(sessionID string) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	sess.Close()
	s.logger.Info("session ended", slog.String("session", sessionID))
}

func (s *Service) countAppend(boundary bool) {
	if boundary {
		if s.boundaries != nil {
			s.boundaries.Add(s.ctx, 1)
		}
		return
	}
	if s.commits != nil {
		s.commits.Add(s.ctx, 1)
	}
}

func (s *Service) publishCommit(c protocol.Commit) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.bus.Conn().Publish(protocol.SubjectTextCommit, data)
}

// SessionText returns the accumulated transcript for a session.
func (s *Service) SessionText(ctx context.Context, sessionID string) (string, error) {
	return s.store.SessionText(ctx, sessionID)
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
