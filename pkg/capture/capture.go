// Package capture records learner attempts from an audio input device.
//
// A [Session] acquires its [Device] stream lazily on the first
// [Session.Start] and reuses it for every following take until
// [Session.Close]. [Session.Stop] blocks until the take has been finalised
// into a single WAV blob, so a returned attempt is always ready to submit.
package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/pointread/pkg/audio"
)

// Default capture format: mono at 48 kHz.
const (
	DefaultSampleRate = 48000
	DefaultChannels   = 1
)

var (
	// ErrPermissionDenied is wrapped by devices when the user or OS refuses
	// microphone access. Sessions surface it as *PermissionError.
	ErrPermissionDenied = errors.New("capture: microphone permission denied")

	// ErrNotRecording is returned by Stop when no take is in progress.
	ErrNotRecording = errors.New("capture: not recording")

	// ErrClosed is returned by any operation after Close.
	ErrClosed = errors.New("capture: session closed")
)

// Constraints are the format hints passed to a device when it is opened.
// Devices may deliver another format; the session converts.
type Constraints struct {
	SampleRate int
	Channels   int
}

// Device opens input streams.
type Device interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is an open input. Frames are delivered only between Start and Stop.
// Start creates a fresh frame channel for the take, returned by Frames; Stop
// closes that channel once the last frame of the take has been sent.
type Stream interface {
	Start() error
	Stop() error
	Frames() <-chan audio.Frame
	Close() error
}

// PermissionError reports that microphone access was refused.
type PermissionError struct {
	Err error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("capture: microphone access denied: %v", e.Err)
}

func (e *PermissionError) Is(target error) bool { return target == ErrPermissionDenied }

func (e *PermissionError) Unwrap() error { return e.Err }

// MicrophoneError reports any other failure to acquire or start the input.
type MicrophoneError struct {
	Err error
}

func (e *MicrophoneError) Error() string {
	return fmt.Sprintf("capture: microphone error: %v", e.Err)
}

func (e *MicrophoneError) Unwrap() error { return e.Err }

// classify wraps a device failure in the matching error type.
func classify(err error) error {
	if errors.Is(err, ErrPermissionDenied) {
		return &PermissionError{Err: err}
	}
	return &MicrophoneError{Err: err}
}
