package engine

import (
	"sync"
	"time"
)

// Tuning limits. Threshold and hold time are user-adjustable within these
// bounds; out-of-range values are clamped, never rejected.
const (
	MinThreshold = 0.70
	MaxThreshold = 1.00
	MinHold      = 200 * time.Millisecond
	MaxHold      = 1200 * time.Millisecond
)

// Fixed debounce windows. Release and word-gap timing are deliberately not
// part of Tuning.
const (
	ReleaseWindow = 300 * time.Millisecond
	WordGap       = 3 * time.Second
)

// Boundary is the word separator appended between words.
const Boundary = " "

// Tuning holds the adjustable engine parameters. Setters clamp and may be
// called at any time; changes apply from the next tick onward.
type Tuning struct {
	mu        sync.Mutex
	threshold float64
	hold      time.Duration
}

// TuningValues is an immutable snapshot of Tuning.
type TuningValues struct {
	Threshold float64
	Hold      time.Duration
}

func NewTuning(threshold float64, holdMS int) *Tuning {
	return &Tuning{
		threshold: ClampThreshold(threshold),
		hold:      clampHold(time.Duration(holdMS) * time.Millisecond),
	}
}

// SetThreshold clamps v into [MinThreshold, MaxThreshold] and returns the
// applied value.
func (t *Tuning) SetThreshold(v float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.threshold = ClampThreshold(v)
	return t.threshold
}

// SetHoldMS clamps ms into [MinHold, MaxHold] and returns the applied value
// in milliseconds.
func (t *Tuning) SetHoldMS(ms int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hold = clampHold(time.Duration(ms) * time.Millisecond)
	return int(t.hold / time.Millisecond)
}

func (t *Tuning) Snapshot() TuningValues {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TuningValues{Threshold: t.threshold, Hold: t.hold}
}

func ClampThreshold(v float64) float64 {
	if v < MinThreshold {
		return MinThreshold
	}
	if v > MaxThreshold {
		return MaxThreshold
	}
	return v
}

// ClampHoldMS clamps a millisecond value into the hold range.
func ClampHoldMS(ms int) int {
	return int(clampHold(time.Duration(ms)*time.Millisecond) / time.Millisecond)
}

func clampHold(d time.Duration) time.Duration {
	if d < MinHold {
		return MinHold
	}
	if d > MaxHold {
		return MaxHold
	}
	return d
}
