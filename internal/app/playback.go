package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/MrWong99/pointread/internal/practice"
	"github.com/MrWong99/pointread/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ practice.Player  = (*FilePlayer)(nil)
	_ practice.Speaker = (*ConsoleSpeaker)(nil)
)

// SampleFile is the name of the file FilePlayer writes.
const SampleFile = "sample.wav"

// FilePlayer "plays" sample audio by writing it to a WAV file that the
// learner opens with any audio player. Each call overwrites the previous
// sample.
type FilePlayer struct {
	dir string
	log *slog.Logger

	mu   sync.Mutex
	last string
}

// NewFilePlayer returns a FilePlayer writing into dir.
func NewFilePlayer(dir string, log *slog.Logger) *FilePlayer {
	if log == nil {
		log = slog.Default()
	}
	return &FilePlayer{dir: dir, log: log}
}

// Play validates wav and writes it to dir/sample.wav.
func (p *FilePlayer) Play(_ context.Context, wav []byte) error {
	info, err := audio.ParseWAV(wav)
	if err != nil {
		return fmt.Errorf("app: play sample: %w", err)
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("app: play sample: %w", err)
	}
	path := filepath.Join(p.dir, SampleFile)
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return fmt.Errorf("app: play sample: %w", err)
	}

	p.mu.Lock()
	p.last = path
	p.mu.Unlock()
	p.log.Info("sample audio written", "path", path, "sample_rate", info.SampleRate, "bytes", len(wav))
	return nil
}

// Last returns the path of the last written sample, or "".
func (p *FilePlayer) Last() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// ConsoleSpeaker stands in for a device voice on terminals without speech
// output: it prints the sentence to read.
type ConsoleSpeaker struct {
	W io.Writer
}

// Speak writes text to W.
func (s *ConsoleSpeaker) Speak(_ context.Context, text string) error {
	_, err := fmt.Fprintf(s.W, "  (read aloud) %s\n", text)
	return err
}
