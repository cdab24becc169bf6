// Package practice drives a single learner through the read-aloud loop:
// fetch a sentence, record an attempt, submit it for scoring and show the
// per-letter result.
//
// A [Controller] owns all mutable practice state. Only one scoring request is
// in flight at a time; the warm-up probe fired by Init counts as one. Every
// submission carries the tag of the sentence it was recorded for, and results
// that come back after the sentence changed are dropped.
package practice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/pointread/internal/observe"
	"github.com/MrWong99/pointread/pkg/capture"
	"github.com/MrWong99/pointread/pkg/correctness"
	"github.com/MrWong99/pointread/pkg/scoring"
	"github.com/MrWong99/pointread/pkg/types"
)

var (
	// ErrNoRecording is returned by Submit when there is no finished take.
	ErrNoRecording = errors.New("practice: no recording to submit")

	// ErrSubmissionInFlight is returned by Submit while another scoring
	// request, including the warm-up probe, is outstanding.
	ErrSubmissionInFlight = errors.New("practice: submission already in flight")

	// ErrStaleResult is returned by Submit when the sentence changed before
	// the result arrived. The result is discarded.
	ErrStaleResult = errors.New("practice: sentence changed before the result arrived")

	// ErrInvalidState is returned when an operation is not allowed in the
	// current state.
	ErrInvalidState = errors.New("practice: operation not allowed")

	// ErrNoPlayback is returned by PlaySample when neither a player nor a
	// speaker is configured.
	ErrNoPlayback = errors.New("practice: no playback configured")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("practice: controller closed")
)

// SampleUnavailableNotice is shown when sample audio could not be played and
// the device voice was used instead.
const SampleUnavailableNotice = "Sample audio is unavailable; using the device voice instead."

// Compile-time interface assertions.
var (
	_ Scorer   = (*scoring.Client)(nil)
	_ Recorder = (*capture.Session)(nil)
)

// Scorer is the part of [*scoring.Client] the controller uses.
type Scorer interface {
	FetchSample(ctx context.Context, category int, language string) (types.SampleSentence, error)
	ScoreRecording(ctx context.Context, title, audioDataURL, language string) (*types.ScoreResult, error)
	Warmup(ctx context.Context, duration float64, sampleRate int, language string) error
	SynthesizeSpeech(ctx context.Context, text string) ([]byte, error)
}

// Recorder is the part of [*capture.Session] the controller uses.
type Recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (*types.RecordedAttempt, error)
	Close() error
}

// Player plays synthesised sample audio.
type Player interface {
	Play(ctx context.Context, audio []byte) error
}

// Speaker reads text aloud with a local voice. It is the fallback when sample
// audio cannot be synthesised or played.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// View is a snapshot of the controller for rendering.
type View struct {
	State    State
	Failure  FailureKind
	Sentence types.SampleSentence

	// Words is the sentence decorated with the current result. All letters
	// are unscored until a result is available.
	Words []correctness.Word

	// Result is the last score for the current sentence, or nil.
	Result *types.ScoreResult

	// Score is the overall pronunciation accuracy; valid when HasScore.
	Score    int
	HasScore bool

	// Error is learner-facing text for the last failure.
	Error string

	// Notice is a non-fatal message such as a playback fallback.
	Notice string

	WarmingUp    bool
	Finalizing   bool
	HasRecording bool
}

// CanSubmit reports whether Submit would be accepted in this view.
func (v View) CanSubmit() bool {
	if !v.HasRecording || v.WarmingUp {
		return false
	}
	switch v.State {
	case Recorded, Scored, Failed:
		return true
	}
	return false
}

// Option configures a [Controller].
type Option func(*Controller)

// WithLanguage sets the language sent with every request. Default: "en".
func WithLanguage(lang string) Option {
	return func(c *Controller) { c.language = lang }
}

// WithCategory sets the sentence category requested by Init and Next.
func WithCategory(category int) Option {
	return func(c *Controller) { c.category = category }
}

// WithWarmup enables the warm-up probe fired by Init: a silent recording of
// the given length in seconds at sampleRate Hz. A non-positive duration
// disables it.
func WithWarmup(duration float64, sampleRate int) Option {
	return func(c *Controller) {
		c.warmupDuration = duration
		c.warmupRate = sampleRate
	}
}

// WithPlayer sets the player for synthesised sample audio.
func WithPlayer(p Player) Option {
	return func(c *Controller) { c.player = p }
}

// WithSpeaker sets the local voice used when sample audio is unavailable.
func WithSpeaker(s Speaker) Option {
	return func(c *Controller) { c.speaker = s }
}

// WithOnChange registers fn to receive a fresh [View] after every state
// change. fn is called without the controller lock held.
func WithOnChange(fn func(View)) Option {
	return func(c *Controller) { c.onChange = fn }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithMetrics sets the metrics instruments. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// Controller runs the practice loop for one learner. All exported methods are
// safe for concurrent use.
type Controller struct {
	scorer   Scorer
	rec      Recorder
	language string
	category int

	warmupDuration float64
	warmupRate     int

	player   Player
	speaker  Speaker
	onChange func(View)
	log      *slog.Logger
	metrics  *observe.Metrics

	// gate admits one scoring request at a time.
	gate       *semaphore.Weighted
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	warmupDone chan struct{}

	mu         sync.Mutex
	state      State
	failure    FailureKind
	sentence   types.SampleSentence
	tag        string
	result     *types.ScoreResult
	attempt    *types.RecordedAttempt
	errText    string
	notice     string
	warmingUp  bool
	finalizing bool
	closed     bool

	// inflight cancels the submission for inflightTag.
	inflight    context.CancelFunc
	inflightTag string
}

// New creates a Controller. Call Init before any other operation.
func New(scorer Scorer, rec Recorder, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		scorer:     scorer,
		rec:        rec,
		language:   "en",
		log:        slog.Default(),
		gate:       semaphore.NewWeighted(1),
		ctx:        ctx,
		cancel:     cancel,
		warmupDone: make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Init loads the first sentence and fires the warm-up probe in the
// background. The probe holds the submission gate until it finishes; its
// result is discarded. Init may only succeed once.
func (c *Controller) Init(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.tag != "" {
		c.mu.Unlock()
		return fmt.Errorf("%w: already initialised", ErrInvalidState)
	}
	c.mu.Unlock()

	s, err := c.scorer.FetchSample(ctx, c.category, c.language)

	c.mu.Lock()
	if err != nil {
		c.failLocked(err)
		c.mu.Unlock()
		c.notify()
		return fmt.Errorf("practice: init: %w", err)
	}
	first := c.tag == ""
	c.loadSentenceLocked(s)
	warm := first && c.warmupDuration > 0
	if warm {
		c.warmingUp = true
	}
	c.mu.Unlock()

	if first {
		if warm {
			c.startWarmup()
		} else {
			close(c.warmupDone)
		}
	}
	c.notify()
	return nil
}

func (c *Controller) startWarmup() {
	// Init runs before any Submit can pass the state checks, so the gate is
	// always free here.
	if !c.gate.TryAcquire(1) {
		c.log.Warn("practice: warm-up skipped, submission gate busy")
		c.mu.Lock()
		c.warmingUp = false
		c.mu.Unlock()
		close(c.warmupDone)
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(c.warmupDone)

		err := c.scorer.Warmup(c.ctx, c.warmupDuration, c.warmupRate, c.language)
		c.gate.Release(1)
		if err != nil {
			c.log.Info("practice: warm-up finished without a score", "err", err)
		} else {
			c.log.Debug("practice: warm-up finished")
		}

		c.mu.Lock()
		c.warmingUp = false
		c.mu.Unlock()
		c.notify()
	}()
}

// WarmupDone is closed once the warm-up probe has finished, or immediately
// after Init when warm-up is disabled.
func (c *Controller) WarmupDone() <-chan struct{} {
	return c.warmupDone
}

// Next replaces the sentence. The score, decorated words and recorded audio
// are cleared and any submission still in flight becomes stale.
func (c *Controller) Next(ctx context.Context) error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.state == Recording {
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot change sentence while recording", ErrInvalidState)
	}
	c.mu.Unlock()

	s, err := c.scorer.FetchSample(ctx, c.category, c.language)

	c.mu.Lock()
	if err != nil {
		c.failLocked(err)
		c.mu.Unlock()
		c.notify()
		return fmt.Errorf("practice: next sentence: %w", err)
	}
	c.loadSentenceLocked(s)
	c.mu.Unlock()
	c.notify()
	return nil
}

func (c *Controller) loadSentenceLocked(s types.SampleSentence) {
	if c.inflight != nil {
		c.inflight()
	}
	c.sentence = s
	c.tag = uuid.NewString()
	c.result = nil
	c.attempt = nil
	c.errText = ""
	c.notice = ""
	c.failure = FailureNone
	c.state = Ready
	c.log.Debug("practice: sentence loaded", "tag", c.tag, "text", s.Text)
}

// StartRecording begins a take. A refused microphone leaves the state
// unchanged and returns the [*capture.PermissionError].
func (c *Controller) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	switch c.state {
	case Recording:
		c.mu.Unlock()
		return nil
	case Ready, Recorded, Scored, Failed:
	default:
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot record while %s", ErrInvalidState, st)
	}

	if err := c.rec.Start(ctx); err != nil {
		kind := classify(err)
		c.errText = describe(kind, err)
		c.failure = kind
		c.mu.Unlock()
		c.log.Warn("practice: start recording failed", "err", err, "kind", kind)
		c.notify()
		return err
	}
	c.state = Recording
	c.attempt = nil
	c.errText = ""
	c.failure = FailureNone
	c.mu.Unlock()
	c.notify()
	return nil
}

// StopRecording ends the take and moves to Recorded once the capture session
// has finalised the audio.
func (c *Controller) StopRecording(ctx context.Context) error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.state != Recording {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: not recording (%s)", ErrInvalidState, st)
	}
	if c.finalizing {
		c.mu.Unlock()
		return nil
	}
	c.finalizing = true
	c.mu.Unlock()
	c.notify()

	att, err := c.rec.Stop(ctx)

	c.mu.Lock()
	c.finalizing = false
	if err != nil {
		c.failLocked(err)
		c.mu.Unlock()
		c.notify()
		return fmt.Errorf("practice: stop recording: %w", err)
	}
	att.Title = c.sentence.Text
	c.attempt = att
	c.state = Recorded
	c.mu.Unlock()
	c.log.Debug("practice: take recorded", "duration", att.Duration, "bytes", len(att.Audio))
	c.notify()
	return nil
}

// Submit sends the recorded take for scoring and blocks until the result is
// in. Only one submission is in flight at a time; a concurrent call returns
// [ErrSubmissionInFlight] without side effects. A submission for a sentence
// that has since been replaced is cancelled and does not block a submission
// for the current one.
func (c *Controller) Submit(ctx context.Context) error {
	// Close and Next cancel in-flight scoring.
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.attempt == nil {
		c.mu.Unlock()
		return ErrNoRecording
	}
	prev := c.state
	switch prev {
	case Recorded, Scored, Failed:
	case Submitting:
		c.mu.Unlock()
		c.metrics.RecordSubmission(ctx, "busy")
		return ErrSubmissionInFlight
	default:
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot submit while %s", ErrInvalidState, prev)
	}
	acquired := c.gate.TryAcquire(1)
	// A gate held for an earlier sentence is released as soon as its
	// cancelled request returns.
	draining := !acquired && c.inflightTag != "" && c.inflightTag != c.tag
	if !acquired && !draining {
		c.mu.Unlock()
		c.metrics.RecordSubmission(ctx, "busy")
		return ErrSubmissionInFlight
	}
	tag, att := c.tag, c.attempt
	c.inflight, c.inflightTag = cancel, tag
	c.state = Submitting
	c.errText = ""
	c.failure = FailureNone
	c.mu.Unlock()
	c.notify()

	if draining {
		if err := c.gate.Acquire(sctx, 1); err != nil {
			c.mu.Lock()
			c.clearInflightLocked(tag)
			if c.tag == tag {
				c.state = prev
			}
			c.mu.Unlock()
			c.notify()
			return fmt.Errorf("practice: submit: %w", err)
		}
	}

	sctx, span := observe.StartSpan(sctx, "practice.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("practice.tag", tag))
	log := observe.LoggerFrom(sctx, c.log)

	res, err := c.scorer.ScoreRecording(sctx, att.Title, att.DataURL, c.language)
	c.gate.Release(1)

	c.mu.Lock()
	c.clearInflightLocked(tag)
	if c.tag != tag {
		c.mu.Unlock()
		log.Info("practice: discarding result for previous sentence", "tag", tag)
		c.metrics.RecordSubmission(ctx, "stale")
		span.SetAttributes(attribute.Bool("practice.stale", true))
		return ErrStaleResult
	}
	if err != nil {
		kind := c.failLocked(err)
		c.mu.Unlock()
		log.Warn("practice: submission failed", "err", err, "kind", kind)
		c.metrics.RecordSubmission(ctx, "failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.notify()
		return fmt.Errorf("practice: submit: %w", err)
	}
	c.result = res
	c.state = Scored
	c.mu.Unlock()

	score, _ := res.Accuracy()
	log.Info("practice: attempt scored", "score", score)
	c.metrics.RecordSubmission(ctx, "scored")
	c.notify()
	return nil
}

// clearInflightLocked forgets the submission for tag, unless a later one
// has already taken its place.
func (c *Controller) clearInflightLocked(tag string) {
	if c.inflightTag == tag {
		c.inflight, c.inflightTag = nil, ""
	}
}

// PlaySample plays synthesised audio of the current sentence. When synthesis
// or playback fails, the Speaker reads the sentence instead and View carries
// [SampleUnavailableNotice].
func (c *Controller) PlaySample(ctx context.Context) error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	text := c.sentence.Text
	c.mu.Unlock()

	if c.player == nil && c.speaker == nil {
		return ErrNoPlayback
	}

	var err error
	if c.player != nil {
		var wav []byte
		if wav, err = c.scorer.SynthesizeSpeech(ctx, text); err == nil {
			if err = c.player.Play(ctx, wav); err == nil {
				return nil
			}
		}
		c.log.Info("practice: sample audio unavailable", "err", err)
	}
	if c.speaker == nil {
		return fmt.Errorf("practice: play sample: %w", err)
	}

	c.mu.Lock()
	c.notice = SampleUnavailableNotice
	c.mu.Unlock()
	c.notify()

	if serr := c.speaker.Speak(ctx, text); serr != nil {
		return fmt.Errorf("practice: play sample: %w", errors.Join(err, serr))
	}
	return nil
}

// View returns a snapshot of the controller.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() View {
	v := View{
		State:        c.state,
		Failure:      c.failure,
		Sentence:     c.sentence,
		Words:        correctness.Decorate(c.sentence.Text, c.result),
		Result:       c.result,
		Error:        c.errText,
		Notice:       c.notice,
		WarmingUp:    c.warmingUp,
		Finalizing:   c.finalizing,
		HasRecording: c.attempt != nil,
	}
	v.Score, v.HasScore = c.result.Accuracy()
	return v
}

// Close cancels background work, waits for it and releases the microphone.
// Further calls return nil.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	return c.rec.Close()
}

func (c *Controller) usableLocked() error {
	if c.closed {
		return ErrClosed
	}
	if c.tag == "" {
		return fmt.Errorf("%w: not initialised", ErrInvalidState)
	}
	return nil
}

// failLocked moves to Failed and returns the failure kind.
func (c *Controller) failLocked(err error) FailureKind {
	kind := classify(err)
	c.state = Failed
	c.failure = kind
	c.errText = describe(kind, err)
	return kind
}

func (c *Controller) notify() {
	if c.onChange == nil {
		return
	}
	c.onChange(c.View())
}
