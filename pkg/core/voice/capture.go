package voice

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/foundry-kitchen/concierge/pkg/core"
	"github.com/foundry-kitchen/concierge/pkg/core/types"
)

// StopReason says why a recording ended.
type StopReason string

const (
	StopManual    StopReason = "manual"
	StopSilence   StopReason = "silence"
	StopCancelled StopReason = "cancelled"
)

// CaptureConfig configures one capture session.
type CaptureConfig struct {
	// MIMEType is the declared content encoding of the buffered chunks.
	MIMEType string
	Silence  SilenceConfig
	// Tick is the detector poll interval used when no frames arrive, so a
	// running grace window still expires on time.
	Tick time.Duration
	// Now is a clock hook for tests.
	Now func() time.Time
}

func (c CaptureConfig) withDefaults() CaptureConfig {
	if c.MIMEType == "" {
		c.MIMEType = "audio/webm"
	}
	if c.Tick <= 0 {
		c.Tick = 50 * time.Millisecond
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// CaptureSession owns exactly one recording: it acquires the input device on
// Start, buffers encoded chunks in arrival order, feeds the amplitude tap to
// a SilenceDetector, and finalizes the buffer into one AudioSegment when the
// recording ends. The device is released exactly once on every exit path.
type CaptureSession struct {
	cfg    CaptureConfig
	opener DeviceOpener

	mu        sync.Mutex
	buf       bytes.Buffer
	device    Device
	cancel    context.CancelFunc
	recording bool
	finalized bool
	segment   types.AudioSegment
	reason    StopReason

	done chan struct{}
}

// NewCaptureSession creates an idle session.
func NewCaptureSession(opener DeviceOpener, cfg CaptureConfig) *CaptureSession {
	return &CaptureSession{
		cfg:    cfg.withDefaults(),
		opener: opener,
		done:   make(chan struct{}),
	}
}

// Start acquires the microphone and begins buffering. Calling Start while
// already recording is a no-op. A session records at most once; Start after
// the recording ended is an error.
func (s *CaptureSession) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.recording {
		s.mu.Unlock()
		return nil
	}
	if s.finalized {
		s.mu.Unlock()
		return core.NewInvalidRequestError("capture session already finished")
	}
	s.mu.Unlock()

	dev, err := s.opener.Open(ctx)
	if err != nil {
		return &core.Error{
			Type:    core.ErrAPI,
			Code:    core.CodeDeviceUnavailable,
			Message: fmt.Sprintf("open audio input: %v", err),
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.recording || s.finalized {
		s.mu.Unlock()
		cancel()
		_ = dev.Close()
		return nil
	}
	s.device = dev
	s.cancel = cancel
	s.recording = true
	s.mu.Unlock()

	go s.loop(loopCtx, dev)
	return nil
}

func (s *CaptureSession) loop(ctx context.Context, dev Device) {
	det := NewSilenceDetector(s.cfg.Silence)
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.finalize(StopCancelled)
			return
		case f, ok := <-dev.Frames():
			if !ok {
				s.finalize(StopManual)
				return
			}
			s.append(f.Data)
			if det.Observe(f.Levels, s.cfg.Now()) {
				s.finalize(StopSilence)
				return
			}
		case <-ticker.C:
			if det.Tick(s.cfg.Now()) {
				s.finalize(StopSilence)
				return
			}
		}
	}
}

func (s *CaptureSession) append(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finalized {
		s.buf.Write(chunk)
	}
}

// finalize ends the recording once. It snapshots the buffer, releases the
// device, and closes Done. Returns false if the recording already ended.
func (s *CaptureSession) finalize(reason StopReason) bool {
	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return false
	}
	s.finalized = true
	s.recording = false
	dev := s.device
	s.device = nil
	cancel := s.cancel
	s.cancel = nil

	if reason == StopCancelled {
		s.buf.Reset()
	}
	data := make([]byte, s.buf.Len())
	copy(data, s.buf.Bytes())
	s.segment = types.AudioSegment{Data: data, MIMEType: s.cfg.MIMEType}
	s.reason = reason
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if dev != nil {
		_ = dev.Close()
	}
	close(s.done)
	return true
}

// Stop finalizes the recording and returns the captured segment. Calling Stop
// when not recording, or a second time, returns an empty segment and false;
// the device is never released twice.
func (s *CaptureSession) Stop() (types.AudioSegment, bool) {
	s.mu.Lock()
	idle := !s.recording && !s.finalized
	s.mu.Unlock()
	if idle {
		return types.AudioSegment{}, false
	}
	if !s.finalize(StopManual) {
		return types.AudioSegment{}, false
	}
	seg, _ := s.Result()
	return seg, true
}

// Done is closed when the recording has ended, whether by Stop, detected
// silence, or cancellation.
func (s *CaptureSession) Done() <-chan struct{} { return s.done }

// Result returns the finished segment and stop reason. Valid once Done is
// closed.
func (s *CaptureSession) Result() (types.AudioSegment, StopReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.segment, s.reason
}

// Recording reports whether a recording is currently active.
func (s *CaptureSession) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}
