package protocol

import (
	"fmt"
	"time"
)

// GestureFrame represents an encoded video frame streamed from edge devices.
type GestureFrame struct {
	SessionID string `json:"session_id"`
	Sequence  int    `json:"sequence"`
	Encoding  string `json:"encoding"` // jpeg, png or raw
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Image     []byte `json:"image"`
	Final     bool   `json:"final"`
}

// Prediction is one classifier candidate for a frame.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Validate checks the candidate is within contract bounds.
func (p Prediction) Validate() error {
	if p.Label == "" {
		return fmt.Errorf("label must not be empty")
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0 and 1, got %f", p.Confidence)
	}
	return nil
}

// Commit is a committed character or word boundary broadcast on the bus.
type Commit struct {
	SessionID string    `json:"session_id"`
	TraceID   string    `json:"trace_id,omitempty"`
	Text      string    `json:"text"`
	Label     string    `json:"label,omitempty"`
	Boundary  bool      `json:"boundary"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectGestureFramePrefix = "gesture.frame"
	SubjectTextCommit         = "text.commit"
)
