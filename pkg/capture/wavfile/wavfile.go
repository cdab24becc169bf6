// Package wavfile provides a capture device that replays a 16-bit PCM WAV
// file as if it were a microphone. Each take replays the file from the
// start; once the file is exhausted the take stays silent until stopped.
//
// It lets the terminal client and tests exercise the full record and submit
// path without audio hardware.
package wavfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/pointread/pkg/audio"
	"github.com/MrWong99/pointread/pkg/capture"
)

// Compile-time interface assertions.
var (
	_ capture.Device = (*Device)(nil)
	_ capture.Stream = (*stream)(nil)
)

const defaultFrameDuration = 20 * time.Millisecond

// Option configures a [Device].
type Option func(*Device)

// WithFrameDuration sets the length of each emitted frame. Default: 20 ms.
func WithFrameDuration(d time.Duration) Option {
	return func(dev *Device) { dev.frameDur = d }
}

// WithRealtime paces frames at playback speed when true (default). When
// false every take delivers the whole file, however soon it is stopped.
func WithRealtime(on bool) Option {
	return func(dev *Device) { dev.realtime = on }
}

// WithReadFile replaces os.ReadFile, e.g. with an fs.FS reader.
func WithReadFile(fn func(name string) ([]byte, error)) Option {
	return func(dev *Device) { dev.readFile = fn }
}

// Device replays a WAV file.
type Device struct {
	path     string
	frameDur time.Duration
	realtime bool
	readFile func(string) ([]byte, error)
}

// New returns a Device for the WAV file at path. The file is read on Open.
func New(path string, opts ...Option) *Device {
	d := &Device{
		path:     path,
		frameDur: defaultFrameDuration,
		realtime: true,
		readFile: os.ReadFile,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Open reads and validates the file. An unreadable file due to permissions
// is reported as [capture.ErrPermissionDenied]. The constraints are ignored;
// the session converts whatever format the file has.
func (d *Device) Open(_ context.Context, _ capture.Constraints) (capture.Stream, error) {
	raw, err := d.readFile(d.path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %w", capture.ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("wavfile: open %s: %w", d.path, err)
	}
	info, err := audio.ParseWAV(raw)
	if err != nil {
		return nil, fmt.Errorf("wavfile: %s: %w", d.path, err)
	}
	if info.BitsPerSample != 16 {
		return nil, fmt.Errorf("wavfile: %s: %d-bit samples not supported, want 16", d.path, info.BitsPerSample)
	}
	if info.SampleRate <= 0 || info.Channels <= 0 {
		return nil, fmt.Errorf("wavfile: %s: invalid format %dHz/%dch", d.path, info.SampleRate, info.Channels)
	}

	format := audio.Format{SampleRate: info.SampleRate, Channels: info.Channels}
	frameBytes := int(int64(format.SampleRate)*int64(d.frameDur)/int64(time.Second)) * format.Channels * 2
	return &stream{
		pcm:        info.PCM(raw),
		format:     format,
		frameBytes: max(frameBytes, format.Channels*2),
		frameDur:   d.frameDur,
		realtime:   d.realtime,
	}, nil
}

type stream struct {
	pcm        []byte
	format     audio.Format
	frameBytes int
	frameDur   time.Duration
	realtime   bool

	mu      sync.Mutex
	frames  chan audio.Frame
	stop    chan struct{}
	stopped chan struct{}
	closed  bool
}

func (s *stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("wavfile: stream closed")
	}
	if s.frames != nil {
		return nil
	}
	s.frames = make(chan audio.Frame, 16)
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	go s.run(s.frames, s.stop, s.stopped)
	return nil
}

func (s *stream) run(out chan<- audio.Frame, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	defer close(out)

	var ticker *time.Ticker
	if s.realtime {
		ticker = time.NewTicker(s.frameDur)
		defer ticker.Stop()
	}

	var ts time.Duration
	for off := 0; off < len(s.pcm); off += s.frameBytes {
		if ticker != nil {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
		end := min(off+s.frameBytes, len(s.pcm))
		f := audio.Frame{
			Data:       s.pcm[off:end],
			SampleRate: s.format.SampleRate,
			Channels:   s.format.Channels,
			Timestamp:  ts,
		}
		if ticker == nil {
			// Without pacing the whole file belongs to the take.
			out <- f
		} else {
			select {
			case <-stop:
				return
			case out <- f:
			}
		}
		ts += s.format.Duration(end - off)
	}
	<-stop
}

func (s *stream) Stop() error {
	s.mu.Lock()
	stop, stopped := s.stop, s.stopped
	s.frames, s.stop, s.stopped = nil, nil, nil
	s.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-stopped
	return nil
}

func (s *stream) Frames() <-chan audio.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *stream) Close() error {
	err := s.Stop()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return err
}
