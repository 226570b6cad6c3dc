package classifier

import (
	"context"

	"github.com/fingerspell/fingerspell-core/internal/protocol"
)

// Classifier abstracts gesture classification backends.
type Classifier interface {
	// Classify analyzes one frame and returns the candidate predictions for
	// it. An empty slice means no hand was recognized in the frame.
	Classify(ctx context.Context, frame protocol.GestureFrame) ([]protocol.Prediction, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Best reduces a candidate set to the highest-confidence prediction. Ties are
// broken by first occurrence. Returns false for an empty set.
func Best(preds []protocol.Prediction) (protocol.Prediction, bool) {
	if len(preds) == 0 {
		return protocol.Prediction{}, false
	}
	best := preds[0]
	for _, p := range preds[1:] {
		if p.Confidence > best.Confidence {
			best = p
		}
	}
	return best, true
}
