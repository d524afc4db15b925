// Package voice implements the microphone capture pipeline: exclusive device
// ownership, chunk buffering, and amplitude-based end-of-utterance detection.
package voice

import "time"

// SilenceState is the detector state for one recording.
type SilenceState int

const (
	// SilenceActive means speech was heard recently.
	SilenceActive SilenceState = iota
	// SilencePendingStop means the grace window is running; renewed loudness
	// returns the detector to SilenceActive.
	SilencePendingStop
)

const (
	// DefaultDeadband is the amplitude deviation from the midpoint below
	// which a sample counts as silent. Tuned empirically; varies by
	// microphone and environment.
	DefaultDeadband = 3

	// DefaultGrace is the silence duration after which a recording is
	// force-stopped.
	DefaultGrace = 2 * time.Second

	// midpoint of an unsigned 8-bit centered amplitude signal.
	midpoint = 128
)

// SilenceConfig tunes end-of-utterance detection.
type SilenceConfig struct {
	Deadband int
	Grace    time.Duration
}

func (c SilenceConfig) withDefaults() SilenceConfig {
	if c.Deadband <= 0 {
		c.Deadband = DefaultDeadband
	}
	if c.Grace <= 0 {
		c.Grace = DefaultGrace
	}
	return c
}

// SilenceDetector decides when the user has stopped speaking, without an
// explicit end-of-speech signal. It is fed amplitude frames (unsigned 8-bit
// samples centered at 128) and an observation time; time is injected so tests
// can drive the clock.
type SilenceDetector struct {
	cfg      SilenceConfig
	state    SilenceState
	deadline time.Time
}

// NewSilenceDetector creates a detector in the SilenceActive state.
func NewSilenceDetector(cfg SilenceConfig) *SilenceDetector {
	return &SilenceDetector{cfg: cfg.withDefaults()}
}

// State returns the current detector state.
func (d *SilenceDetector) State() SilenceState {
	return d.state
}

// Observe feeds one amplitude frame sampled at now. It returns true when
// sustained silence has outlasted the grace window and the recording should
// stop.
func (d *SilenceDetector) Observe(samples []byte, now time.Time) bool {
	if d.loud(samples) {
		d.state = SilenceActive
		d.deadline = time.Time{}
		return false
	}
	if d.state == SilenceActive {
		d.state = SilencePendingStop
		d.deadline = now.Add(d.cfg.Grace)
		return false
	}
	return !now.Before(d.deadline)
}

// Tick checks an already-running grace window without new samples. A gap in
// the frame feed never starts a window on its own.
func (d *SilenceDetector) Tick(now time.Time) bool {
	return d.state == SilencePendingStop && !now.Before(d.deadline)
}

func (d *SilenceDetector) loud(samples []byte) bool {
	for _, s := range samples {
		dev := int(s) - midpoint
		if dev < 0 {
			dev = -dev
		}
		if dev > d.cfg.Deadband {
			return true
		}
	}
	return false
}
