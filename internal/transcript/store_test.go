package transcript

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/fingerspell/fingerspell-core/internal/config"
	"github.com/fingerspell/fingerspell-core/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.TranscriptConfig{Path: filepath.Join(t.TempDir(), "transcripts.db"), RetentionMode: "session"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open transcript store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenEphemeral(t *testing.T) {
	cfg := config.TranscriptConfig{RetentionMode: "ephemeral"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.AppendCommit(context.Background(), protocol.Commit{SessionID: "s", Text: "A"}); err != nil {
		t.Fatalf("ephemeral append: %v", err)
	}
	text, err := s.SessionText(context.Background(), "s")
	if err != nil || text != "" {
		t.Fatalf("expected empty ephemeral transcript, got %q err=%v", text, err)
	}
}

func TestSessionTextPreservesOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sessionID := "session-123"

	if err := s.EnsureSession(ctx, sessionID); err != nil {
		t.Fatalf("ensure session: %v", err)
	}
	for _, text := range []string{"H", "I", " ", "G", "O"} {
		c := protocol.Commit{SessionID: sessionID, Text: text, Boundary: text == " "}
		if err := s.AppendCommit(ctx, c); err != nil {
			t.Fatalf("append commit: %v", err)
		}
	}

	text, err := s.SessionText(ctx, sessionID)
	if err != nil {
		t.Fatalf("session text: %v", err)
	}
	if text != "HI GO" {
		t.Fatalf("expected %q, got %q", "HI GO", text)
	}
}

func TestLastText(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sessionID := "session-tail"

	if err := s.EnsureSession(ctx, sessionID); err != nil {
		t.Fatalf("ensure session: %v", err)
	}
	last, err := s.LastText(ctx, sessionID)
	if err != nil || last != "" {
		t.Fatalf("expected empty tail, got %q err=%v", last, err)
	}

	if err := s.AppendCommit(ctx, protocol.Commit{SessionID: sessionID, Text: "A"}); err != nil {
		t.Fatalf("append commit: %v", err)
	}
	if err := s.AppendCommit(ctx, protocol.Commit{SessionID: sessionID, Text: " ", Boundary: true}); err != nil {
		t.Fatalf("append boundary: %v", err)
	}

	last, err = s.LastText(ctx, sessionID)
	if err != nil {
		t.Fatalf("last text: %v", err)
	}
	if last != " " {
		t.Fatalf("expected trailing space, got %q", last)
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.TranscriptConfig{Path: filepath.Join(tmp, "transcripts.db"), RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open transcript store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	s.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := s.EnsureSession(context.Background(), "old-session"); err != nil {
		t.Fatalf("ensure session: %v", err)
	}
	if err := s.AppendCommit(context.Background(), protocol.Commit{SessionID: "old-session", Text: "A"}); err != nil {
		t.Fatalf("append commit: %v", err)
	}

	s.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := s.EnsureSession(context.Background(), "new-session"); err != nil {
		t.Fatalf("ensure session: %v", err)
	}
	if err := s.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	text, err := s.SessionText(context.Background(), "old-session")
	if err != nil {
		t.Fatalf("session text: %v", err)
	}
	if text != "" {
		t.Fatalf("expected old session pruned, got %q", text)
	}
}
