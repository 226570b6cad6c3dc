package typing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/fingerspell/fingerspell-core/internal/classifier"
	"github.com/fingerspell/fingerspell-core/internal/config"
	"github.com/fingerspell/fingerspell-core/internal/protocol"
	"github.com/fingerspell/fingerspell-core/internal/transcript"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T) *transcript.Store {
	t.Helper()
	cfg := config.TranscriptConfig{Path: filepath.Join(t.TempDir(), "transcripts.db"), RetentionMode: "session"}
	store, err := transcript.Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

type testHarness struct {
	svc       *Service
	published *[]protocol.Commit
	now       *time.Time
}

func newHarness(t *testing.T, cls classifier.Classifier) *testHarness {
	t.Helper()
	store := openStore(t)
	engineCfg := config.EngineConfig{Threshold: 0.70, HoldMS: 200}
	clsCfg := config.ClassifierConfig{Mode: "mock", TimeoutMS: 1000, Retries: 0}
	svc := NewService(context.Background(), engineCfg, clsCfg, nil, cls, store, newLogger())
	t.Cleanup(svc.Close)

	published := &[]protocol.Commit{}
	svc.publish = func(c protocol.Commit) error {
		*published = append(*published, c)
		return nil
	}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	nowRef := &now
	svc.clock = func() time.Time { return *nowRef }
	return &testHarness{svc: svc, published: published, now: nowRef}
}

func (h *testHarness) frame(t *testing.T, image []byte, seq int, final bool) *nats.Msg {
	t.Helper()
	data, err := json.Marshal(protocol.GestureFrame{SessionID: "stream-1", Sequence: seq, Encoding: "jpeg", Image: image, Final: final})
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	return &nats.Msg{Data: data}
}

func TestFramesProduceCommittedText(t *testing.T) {
	// Two labels keyed off payload length: len%2==0 -> "h", otherwise "i".
	h := newHarness(t, classifier.NewMockClassifier([]string{"h", "i"}))

	seq := 0
	tick := func(image []byte, ms int) {
		*h.now = h.now.Add(time.Duration(ms) * time.Millisecond)
		h.svc.handleFrame(h.frame(t, image, seq, false))
		seq++
	}

	hImg := []byte{1, 2}
	iImg := []byte{1, 2, 3}

	tick(hImg, 0)
	tick(hImg, 100)
	tick(hImg, 100) // dwell reached -> H
	tick(iImg, 100) // label change restarts dwell
	tick(iImg, 100)
	tick(iImg, 100) // dwell reached -> I

	if len(*h.published) != 2 {
		t.Fatalf("expected 2 commits, got %v", *h.published)
	}
	if (*h.published)[0].Text != "H" || (*h.published)[1].Text != "I" {
		t.Fatalf("expected H then I, got %v", *h.published)
	}
	for _, c := range *h.published {
		if c.Boundary || c.TraceID == "" {
			t.Fatalf("unexpected commit shape: %+v", c)
		}
	}

	text, err := h.svc.SessionText(context.Background(), "stream-1")
	if err != nil {
		t.Fatalf("session text: %v", err)
	}
	if text != "HI" {
		t.Fatalf("expected transcript HI, got %q", text)
	}
}

func TestFinalFrameEndsSession(t *testing.T) {
	h := newHarness(t, classifier.NewMockClassifier(nil))

	h.svc.handleFrame(h.frame(t, []byte{1}, 0, false))
	h.svc.mu.Lock()
	active := len(h.svc.sessions)
	h.svc.mu.Unlock()
	if active != 1 {
		t.Fatalf("expected 1 active session, got %d", active)
	}

	h.svc.handleFrame(h.frame(t, nil, 1, true))
	h.svc.mu.Lock()
	active = len(h.svc.sessions)
	h.svc.mu.Unlock()
	if active != 0 {
		t.Fatalf("expected session closed, got %d active", active)
	}
}

type failingClassifier struct{}

func (failingClassifier) Classify(context.Context, protocol.GestureFrame) ([]protocol.Prediction, error) {
	return nil, errors.New("model unavailable")
}

func (failingClassifier) Close() error { return nil }

func TestFailedTickLeavesStateUntouched(t *testing.T) {
	h := newHarness(t, failingClassifier{})

	h.svc.handleFrame(h.frame(t, []byte{1, 2}, 0, false))
	if len(*h.published) != 0 {
		t.Fatalf("expected no commits after failed tick, got %v", *h.published)
	}

	h.svc.mu.Lock()
	sess := h.svc.sessions["stream-1"]
	h.svc.mu.Unlock()
	if sess == nil {
		t.Fatal("expected session to exist")
	}
}

func TestTuningSettersClamp(t *testing.T) {
	h := newHarness(t, classifier.NewMockClassifier(nil))

	if got := h.svc.SetThreshold(0.5); got != 0.70 {
		t.Fatalf("expected threshold clamped to 0.70, got %v", got)
	}
	if got := h.svc.SetHoldMS(5000); got != 1200 {
		t.Fatalf("expected hold clamped to 1200, got %d", got)
	}
	tv := h.svc.Tuning()
	if tv.Threshold != 0.70 || tv.Hold != 1200*time.Millisecond {
		t.Fatalf("unexpected tuning snapshot: %+v", tv)
	}
}

func TestSinkTailSeededFromStore(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	if err := store.EnsureSession(ctx, "resumed"); err != nil {
		t.Fatalf("ensure session: %v", err)
	}
	if err := store.AppendCommit(ctx, protocol.Commit{SessionID: "resumed", Text: "A"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.AppendCommit(ctx, protocol.Commit{SessionID: "resumed", Text: " ", Boundary: true}); err != nil {
		t.Fatalf("append boundary: %v", err)
	}

	sink, err := newSessionSink(ctx, "resumed", store, func(protocol.Commit) error { return nil }, nil, time.Now, newLogger())
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	if sink.Tail() != " " {
		t.Fatalf("expected tail seeded with space, got %q", sink.Tail())
	}
}
