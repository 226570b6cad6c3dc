package classifier

import (
	"context"

	"github.com/fingerspell/fingerspell-core/internal/protocol"
)

var defaultLabels = []string{
	"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l", "m",
	"n", "o", "p", "q", "r", "s", "t", "u", "v", "w", "x", "y", "z",
}

type mockClassifier struct {
	labels []string
}

// NewMockClassifier returns a deterministic backend for development and
// tests: the label is derived from the frame payload length.
func NewMockClassifier(labels []string) Classifier {
	if len(labels) == 0 {
		labels = defaultLabels
	}
	return &mockClassifier{labels: labels}
}

func (m *mockClassifier) Classify(_ context.Context, frame protocol.GestureFrame) ([]protocol.Prediction, error) {
	if len(frame.Image) == 0 {
		return nil, nil
	}
	label := m.labels[len(frame.Image)%len(m.labels)]
	return []protocol.Prediction{{Label: label, Confidence: 0.99}}, nil
}

func (m *mockClassifier) Close() error { return nil }
