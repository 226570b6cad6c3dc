package typing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fingerspell/fingerspell-core/internal/engine"
	"github.com/fingerspell/fingerspell-core/internal/protocol"
	"github.com/fingerspell/fingerspell-core/internal/transcript"
)

const appendTimeout = 5 * time.Second

// sessionSink applies engine output for one session: each committed character
// or boundary is persisted and broadcast. The tail is cached in memory and
// seeded from the last persisted commit, so a restarted daemon never stacks a
// second space onto a transcript that already ends in one.
type sessionSink struct {
	sessionID string
	store     *transcript.Store
	publish   func(protocol.Commit) error
	onAppend  func(boundary bool)
	log       *slog.Logger
	clock     func() time.Time

	mu   sync.Mutex
	tail string
}

func newSessionSink(ctx context.Context, sessionID string, store *transcript.Store, publish func(protocol.Commit) error, onAppend func(boundary bool), clock func() time.Time, log *slog.Logger) (*sessionSink, error) {
	tail, err := store.LastText(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &sessionSink{
		sessionID: sessionID,
		store:     store,
		publish:   publish,
		onAppend:  onAppend,
		log:       log,
		clock:     clock,
		tail:      tail,
	}, nil
}

func (k *sessionSink) Append(text string) {
	boundary := text == engine.Boundary
	c := protocol.Commit{
		SessionID: k.sessionID,
		TraceID:   uuid.NewString(),
		Text:      text,
		Boundary:  boundary,
		Timestamp: k.clock().UTC(),
	}
	if !boundary {
		c.Label = text
	}

	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()
	if err := k.store.AppendCommit(ctx, c); err != nil {
		k.log.Warn("failed to persist commit", slog.String("error", err.Error()))
	}
	if err := k.publish(c); err != nil {
		k.log.Warn("failed to publish commit", slog.String("error", err.Error()))
	}

	k.mu.Lock()
	k.tail = text
	k.mu.Unlock()

	if k.onAppend != nil {
		k.onAppend(boundary)
	}
}

func (k *sessionSink) Tail() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.tail
}
