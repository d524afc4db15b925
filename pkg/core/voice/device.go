package voice

import (
	"context"
	"sync"
)

// Frame is one chunk of encoded audio plus the amplitude tap used for
// silence detection.
type Frame struct {
	Data   []byte
	Levels []byte
}

// Device is an exclusively-owned audio input. Frames delivers chunks in
// arrival order; the channel closes when the input ends. Close releases the
// underlying hardware and must be safe to call once.
type Device interface {
	Frames() <-chan Frame
	Close() error
}

// DeviceOpener acquires an input device for one recording. Open fails when
// permission is denied or no input device exists.
type DeviceOpener interface {
	Open(ctx context.Context) (Device, error)
}

// FrameSource is a Device fed by an external stream, such as audio frames
// arriving over a WebSocket.
type FrameSource struct {
	mu     sync.Mutex
	closed bool
	frames chan Frame
}

// NewFrameSource creates a source with the given frame buffer depth.
func NewFrameSource(buffer int) *FrameSource {
	if buffer <= 0 {
		buffer = 16
	}
	return &FrameSource{frames: make(chan Frame, buffer)}
}

// Push delivers one frame. It returns false once the source is closed or the
// buffer is full; a slow consumer drops frames rather than blocking the
// network read loop.
func (f *FrameSource) Push(frame Frame) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	select {
	case f.frames <- frame:
		return true
	default:
		return false
	}
}

// End closes the frame stream, signalling a normal end of input.
func (f *FrameSource) End() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.frames)
	}
}

// Frames implements Device.
func (f *FrameSource) Frames() <-chan Frame { return f.frames }

// Close implements Device.
func (f *FrameSource) Close() error {
	f.End()
	return nil
}

// Open implements DeviceOpener, handing out the source itself.
func (f *FrameSource) Open(ctx context.Context) (Device, error) {
	return f, nil
}
