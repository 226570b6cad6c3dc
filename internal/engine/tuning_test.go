package engine

import (
	"testing"
	"time"
)

func TestThresholdClamping(t *testing.T) {
	tuning := NewTuning(0.95, 600)

	cases := []struct {
		in   float64
		want float64
	}{
		{0.5, 0.70},
		{1.5, 1.00},
		{0.70, 0.70},
		{0.97, 0.97},
	}
	for _, c := range cases {
		if got := tuning.SetThreshold(c.in); got != c.want {
			t.Fatalf("SetThreshold(%v): expected %v, got %v", c.in, c.want, got)
		}
		if tv := tuning.Snapshot(); tv.Threshold != c.want {
			t.Fatalf("snapshot threshold: expected %v, got %v", c.want, tv.Threshold)
		}
	}
}

func TestHoldClamping(t *testing.T) {
	tuning := NewTuning(0.95, 600)

	cases := []struct {
		in   int
		want int
	}{
		{50, 200},
		{5000, 1200},
		{200, 200},
		{800, 800},
	}
	for _, c := range cases {
		if got := tuning.SetHoldMS(c.in); got != c.want {
			t.Fatalf("SetHoldMS(%d): expected %d, got %d", c.in, c.want, got)
		}
		if tv := tuning.Snapshot(); tv.Hold != time.Duration(c.want)*time.Millisecond {
			t.Fatalf("snapshot hold: expected %dms, got %v", c.want, tv.Hold)
		}
	}
}

func TestNewTuningClampsInitialValues(t *testing.T) {
	tuning := NewTuning(0.2, 10)
	tv := tuning.Snapshot()
	if tv.Threshold != MinThreshold {
		t.Fatalf("expected initial threshold clamped to %v, got %v", MinThreshold, tv.Threshold)
	}
	if tv.Hold != MinHold {
		t.Fatalf("expected initial hold clamped to %v, got %v", MinHold, tv.Hold)
	}
}
