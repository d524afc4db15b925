package voice

import (
	"testing"
	"time"
)

func loudFrame() []byte {
	return []byte{128, 140, 120, 128}
}

func silentFrame() []byte {
	// All samples within the default deadband of the 128 midpoint.
	return []byte{128, 130, 126, 129}
}

func TestObserveSilenceOutlastsGrace(t *testing.T) {
	d := NewSilenceDetector(SilenceConfig{Deadband: 3, Grace: 2 * time.Second})
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	if d.Observe(silentFrame(), start) {
		t.Fatal("first silent frame must only start the grace window")
	}
	if d.State() != SilencePendingStop {
		t.Fatalf("state = %v, want pending stop", d.State())
	}
	if d.Observe(silentFrame(), start.Add(1900*time.Millisecond)) {
		t.Fatal("stopped before the grace window expired")
	}
	if !d.Observe(silentFrame(), start.Add(2*time.Second)) {
		t.Fatal("did not stop at the grace deadline")
	}
}

func TestObserveLoudnessResetsWindow(t *testing.T) {
	d := NewSilenceDetector(SilenceConfig{Deadband: 3, Grace: 2 * time.Second})
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	d.Observe(silentFrame(), start)
	if d.Observe(loudFrame(), start.Add(time.Second)) {
		t.Fatal("loud frame must never stop the recording")
	}
	if d.State() != SilenceActive {
		t.Fatalf("state = %v, want active after loudness", d.State())
	}

	// The old deadline must not survive the reset.
	if d.Observe(silentFrame(), start.Add(2100*time.Millisecond)) {
		t.Fatal("stopped on the stale deadline from the first window")
	}
	if !d.Observe(silentFrame(), start.Add(4100*time.Millisecond)) {
		t.Fatal("did not stop after a full fresh grace window")
	}
}

func TestObserveDeadbandBoundary(t *testing.T) {
	d := NewSilenceDetector(SilenceConfig{Deadband: 3, Grace: time.Second})
	now := time.Now()

	// Deviation of exactly the deadband still counts as silent.
	d.Observe([]byte{131, 125}, now)
	if d.State() != SilencePendingStop {
		t.Fatalf("deviation == deadband treated as loud")
	}

	// One sample past the deadband flips back to active.
	d.Observe([]byte{128, 132}, now.Add(100*time.Millisecond))
	if d.State() != SilenceActive {
		t.Fatalf("deviation > deadband not treated as loud")
	}
}

func TestTickExpiresRunningWindowOnly(t *testing.T) {
	d := NewSilenceDetector(SilenceConfig{Deadband: 3, Grace: time.Second})
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// A frame gap alone never starts a window.
	if d.Tick(start.Add(time.Hour)) {
		t.Fatal("Tick stopped a recording with no silence window running")
	}

	d.Observe(silentFrame(), start)
	if d.Tick(start.Add(900 * time.Millisecond)) {
		t.Fatal("Tick fired before the deadline")
	}
	if !d.Tick(start.Add(time.Second)) {
		t.Fatal("Tick did not fire at the deadline")
	}
}

func TestSilenceConfigDefaults(t *testing.T) {
	cfg := SilenceConfig{}.withDefaults()
	if cfg.Deadband != DefaultDeadband {
		t.Errorf("Deadband = %d, want %d", cfg.Deadband, DefaultDeadband)
	}
	if cfg.Grace != DefaultGrace {
		t.Errorf("Grace = %v, want %v", cfg.Grace, DefaultGrace)
	}
}

func TestEmptyFrameIsSilent(t *testing.T) {
	d := NewSilenceDetector(SilenceConfig{})
	d.Observe(nil, time.Now())
	if d.State() != SilencePendingStop {
		t.Fatal("empty frame should count as silence")
	}
}
