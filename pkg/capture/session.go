package capture

import (
	"bytes"
	"context"
	"log/slog"
	"sync"

	"github.com/MrWong99/pointread/internal/observe"
	"github.com/MrWong99/pointread/pkg/audio"
	"github.com/MrWong99/pointread/pkg/types"
)

// Option configures a [Session].
type Option func(*Session)

// WithSampleRate sets the requested and recorded sample rate.
func WithSampleRate(hz int) Option {
	return func(s *Session) { s.format.SampleRate = hz }
}

// WithMIMEType sets the media type label of produced attempts. The payload
// is always WAV; this only changes the data URL prefix.
func WithMIMEType(mime string) Option {
	return func(s *Session) { s.mime = mime }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithMetrics records instruments on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// take is one start/stop cycle. done receives the concatenated PCM once the
// collector has drained the frame channel. Closing quit abandons the take.
type take struct {
	done chan []byte
	quit chan struct{}
}

// Session records takes from a single device stream. It is safe for
// concurrent use.
type Session struct {
	dev     Device
	format  audio.Format
	mime    string
	log     *slog.Logger
	metrics *observe.Metrics

	mu         sync.Mutex
	stream     Stream
	current    *take
	finalizing bool
	last       *types.RecordedAttempt
	closed     bool
}

// New creates a Session on dev. The device is not opened until Start.
func New(dev Device, opts ...Option) *Session {
	s := &Session{
		dev:    dev,
		format: audio.Format{SampleRate: DefaultSampleRate, Channels: DefaultChannels},
		mime:   audio.MIMETypeWAV,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Start begins a new take. The device stream is opened on first use and kept
// for the lifetime of the session; a failed open is retried on the next
// Start. Calling Start while already recording does nothing.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.current != nil {
		return nil
	}
	if s.stream == nil {
		stream, err := s.dev.Open(ctx, Constraints{SampleRate: s.format.SampleRate, Channels: s.format.Channels})
		if err != nil {
			err = classify(err)
			s.log.Warn("capture: open device failed", "err", err)
			return err
		}
		s.stream = stream
		s.log.Info("capture: device opened", "format", s.format)
	}

	if err := s.stream.Start(); err != nil {
		return classify(err)
	}

	t := &take{done: make(chan []byte, 1), quit: make(chan struct{})}
	go collect(s.stream.Frames(), audio.NewConverter(s.format, s.log), t.done, t.quit)
	s.current = t
	s.metrics.ActiveRecordings.Add(ctx, 1)
	return nil
}

// collect drains one take's frames, converting each to the session format,
// and hands the joined PCM to done when the channel closes. Buffers are per
// take, so nothing leaks between attempts. It returns early when quit is
// closed, for streams that never close their frame channel.
func collect(frames <-chan audio.Frame, conv *audio.Converter, done chan<- []byte, quit <-chan struct{}) {
	var buf bytes.Buffer
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				done <- buf.Bytes()
				return
			}
			buf.Write(conv.Convert(f).Data)
		case <-quit:
			return
		}
	}
}

// Stop ends the current take and returns it once finalised. The returned
// attempt has no Title; callers set it to the sentence being practised.
func (s *Session) Stop(ctx context.Context) (*types.RecordedAttempt, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	t := s.current
	if t == nil {
		s.mu.Unlock()
		return nil, ErrNotRecording
	}
	s.current = nil
	s.finalizing = true
	stopErr := s.stream.Stop()
	s.mu.Unlock()
	s.metrics.ActiveRecordings.Add(ctx, -1)

	defer func() {
		s.mu.Lock()
		s.finalizing = false
		s.mu.Unlock()
	}()

	if stopErr != nil {
		close(t.quit)
		return nil, classify(stopErr)
	}

	var pcm []byte
	select {
	case pcm = <-t.done:
	case <-ctx.Done():
		close(t.quit)
		return nil, ctx.Err()
	}

	wav := audio.EncodePCM16WAV(pcm, s.format.SampleRate, s.format.Channels)
	attempt := &types.RecordedAttempt{
		Audio:      wav,
		MIMEType:   s.mime,
		DataURL:    audio.DataURL(s.mime, wav),
		SampleRate: s.format.SampleRate,
		Duration:   s.format.Duration(len(pcm)),
	}

	s.mu.Lock()
	s.last = attempt
	s.mu.Unlock()
	s.log.Debug("capture: take finalised", "bytes", len(wav), "duration", attempt.Duration)
	return attempt, nil
}

// Recording reports whether a take is in progress.
func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Finalizing reports whether Stop is waiting for the take to be assembled.
func (s *Session) Finalizing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalizing
}

// Last returns the most recent finalised attempt, or nil.
func (s *Session) Last() *types.RecordedAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Reset drops the last attempt.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = nil
}

// Close stops any take in progress and releases the device stream. It is
// safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.last = nil
	if s.stream == nil {
		return nil
	}
	if s.current != nil {
		_ = s.stream.Stop()
		close(s.current.quit)
		s.current = nil
		s.metrics.ActiveRecordings.Add(context.Background(), -1)
	}
	err := s.stream.Close()
	s.stream = nil
	return err
}
