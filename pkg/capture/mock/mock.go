// Package mock provides a programmable capture device for tests.
//
// Example:
//
//	dev := &mock.Device{Takes: [][]audio.Frame{{{Data: pcm, SampleRate: 48000, Channels: 1}}}}
//	sess := capture.New(dev)
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/pointread/pkg/audio"
	"github.com/MrWong99/pointread/pkg/capture"
)

// Compile-time interface assertions.
var (
	_ capture.Device = (*Device)(nil)
	_ capture.Stream = (*Stream)(nil)
)

// Device is a mock capture.Device.
type Device struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// OpenErr, if non-nil, is returned by Open. Wrap
	// capture.ErrPermissionDenied to simulate a refused prompt.
	OpenErr error

	// StartErr, if non-nil, is returned by every Stream.Start.
	StartErr error

	// StopErr, if non-nil, is returned by every Stream.Stop, which then
	// leaves the take's frame channel open.
	StopErr error

	// Takes are the frames delivered by successive takes. The last entry
	// repeats; with no entries takes are silent.
	Takes [][]audio.Frame

	// --- Call records ---

	OpenCalls []capture.Constraints

	// Stream is the most recently opened stream.
	Stream *Stream
}

// Open implements capture.Device.
func (d *Device) Open(_ context.Context, c capture.Constraints) (capture.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenCalls = append(d.OpenCalls, c)
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	d.Stream = &Stream{dev: d}
	return d.Stream, nil
}

// OpenCount returns the number of Open calls.
func (d *Device) OpenCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.OpenCalls)
}

func (d *Device) take(n int) ([]audio.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.StartErr != nil {
		return nil, d.StartErr
	}
	if len(d.Takes) == 0 {
		return nil, nil
	}
	return d.Takes[min(n, len(d.Takes)-1)], nil
}

// Stream is a mock capture.Stream. Start queues the take's frames into a
// buffered channel; Stop closes it.
type Stream struct {
	dev *Device

	mu         sync.Mutex
	frames     chan audio.Frame
	StartCalls int
	StopCalls  int
	CloseCalls int
}

// Start implements capture.Stream.
func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CloseCalls > 0 {
		return errors.New("mock: stream closed")
	}
	frames, err := s.dev.take(s.StartCalls)
	s.StartCalls++
	if err != nil {
		return err
	}
	s.frames = make(chan audio.Frame, len(frames))
	for _, f := range frames {
		s.frames <- f
	}
	return nil
}

// Stop implements capture.Stream.
func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StopCalls++
	s.dev.mu.Lock()
	err := s.dev.StopErr
	s.dev.mu.Unlock()
	if err != nil {
		return err
	}
	if s.frames != nil {
		close(s.frames)
		s.frames = nil
	}
	return nil
}

// Frames implements capture.Stream.
func (s *Stream) Frames() <-chan audio.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Close implements capture.Stream.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	if s.frames != nil {
		close(s.frames)
		s.frames = nil
	}
	return nil
}

// Counts returns the Start, Stop and Close call counts.
func (s *Stream) Counts() (start, stop, closed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.StartCalls, s.StopCalls, s.CloseCalls
}
