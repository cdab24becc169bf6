// Package config provides the configuration schema and loader for the
// pointread practice client and its development backend.
package config

import (
	"time"

	"github.com/MrWong99/pointread/pkg/scoring"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Environment selects development or production behaviour of the scoring
// client.
type Environment string

const (
	// EnvDevelopment enables the local fallback backend and the offline
	// fallback sentence.
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// IsValid reports whether e is a recognised environment.
func (e Environment) IsValid() bool {
	return e == EnvDevelopment || e == EnvProduction
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Backend   BackendConfig   `yaml:"backend"`
	Practice  PracticeConfig  `yaml:"practice"`
	Capture   CaptureConfig   `yaml:"capture"`
	DevServer DevServerConfig `yaml:"devserver"`
}

// ServerConfig holds logging and observability settings shared by both
// binaries.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr, when set, serves /metrics, /healthz and /readyz on this
	// address (e.g., ":9090").
	MetricsAddr string `yaml:"metrics_addr"`
}

// BackendConfig locates the three backend services. Each base URL is
// independent and may be overridden from the environment; see [ApplyEnv].
type BackendConfig struct {
	SampleBaseURL string `yaml:"sample_base_url"`
	STSBaseURL    string `yaml:"sts_base_url"`
	TTSBaseURL    string `yaml:"tts_base_url"`
	APIKey        string `yaml:"api_key"`

	// Environment defaults to production.
	Environment Environment `yaml:"environment"`

	// DevFallbackURL replaces [scoring.DevFallbackURL] in development.
	DevFallbackURL string `yaml:"dev_fallback_url"`

	// Timeout bounds every HTTP request. Default: 90s.
	Timeout time.Duration `yaml:"timeout"`

	// RetryDelays is the cold-start schedule of ScoreRecording. Default:
	// 1.5s, 3s, 5s.
	RetryDelays []time.Duration `yaml:"retry_delays"`
}

// PracticeConfig holds the learner's practice settings.
type PracticeConfig struct {
	// Language is sent with every request. Default: "en".
	Language string `yaml:"language"`

	// Category selects sentence length: 0 any, 1 short, 2 medium, 3 long.
	Category int `yaml:"category"`

	Warmup WarmupConfig `yaml:"warmup"`

	// OutputDir receives synthesised sample audio. Default: "." .
	OutputDir string `yaml:"output_dir"`
}

// WarmupConfig controls the silent probe sent once at start-up.
type WarmupConfig struct {
	Disabled bool `yaml:"disabled"`

	// Duration of the silent recording in seconds. Default: 0.3.
	Duration float64 `yaml:"duration"`

	// SampleRate of the silent recording. Default: 48000.
	SampleRate int `yaml:"sample_rate"`
}

// CaptureConfig configures the capture device.
type CaptureConfig struct {
	// InputFile is the 16-bit PCM WAV replayed as microphone input.
	InputFile string `yaml:"input_file"`

	// SampleRate of produced recordings. Default: 48000.
	SampleRate int `yaml:"sample_rate"`

	// FrameDuration is the capture frame length. Default: 20ms.
	FrameDuration time.Duration `yaml:"frame_duration"`

	// NoRealtime delivers the whole file at once instead of pacing it.
	NoRealtime bool `yaml:"no_realtime"`
}

// DevServerConfig configures the local development backend.
type DevServerConfig struct {
	// ListenAddr defaults to ":3000", matching [scoring.DevFallbackURL].
	ListenAddr string `yaml:"listen_addr"`

	// ColdStartRequests is the number of scoring requests answered with an
	// empty body before real scores are returned.
	ColdStartRequests int `yaml:"cold_start_requests"`

	// Envelope wraps every JSON answer in a {"body": "<json>"} envelope.
	Envelope bool `yaml:"envelope"`

	// SentencesFile replaces the built-in sentence bank.
	SentencesFile string `yaml:"sentences_file"`

	// Latency is added to every scoring response.
	Latency time.Duration `yaml:"latency"`

	// APIKey, when set, is required in the X-Api-Key header.
	APIKey string `yaml:"api_key"`
}

// Defaults for unset fields.
const (
	DefaultLanguage          = "en"
	DefaultWarmupDuration    = 0.3
	DefaultSampleRate        = 48000
	DefaultFrameDuration     = 20 * time.Millisecond
	DefaultTimeout           = 90 * time.Second
	DefaultDevServerAddr     = ":3000"
	DefaultOutputDir         = "."
	DefaultColdStartRequests = 0
)

// DefaultRetryDelays is the cold-start schedule used when none is configured.
var DefaultRetryDelays = []time.Duration{1500 * time.Millisecond, 3 * time.Second, 5 * time.Second}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Backend.Environment == "" {
		c.Backend.Environment = EnvProduction
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = DefaultTimeout
	}
	if c.Backend.RetryDelays == nil {
		c.Backend.RetryDelays = append([]time.Duration(nil), DefaultRetryDelays...)
	}
	if c.Practice.Language == "" {
		c.Practice.Language = DefaultLanguage
	}
	if c.Practice.Warmup.Duration == 0 {
		c.Practice.Warmup.Duration = DefaultWarmupDuration
	}
	if c.Practice.Warmup.SampleRate == 0 {
		c.Practice.Warmup.SampleRate = DefaultSampleRate
	}
	if c.Practice.OutputDir == "" {
		c.Practice.OutputDir = DefaultOutputDir
	}
	if c.Capture.SampleRate == 0 {
		c.Capture.SampleRate = DefaultSampleRate
	}
	if c.Capture.FrameDuration == 0 {
		c.Capture.FrameDuration = DefaultFrameDuration
	}
	if c.DevServer.ListenAddr == "" {
		c.DevServer.ListenAddr = DefaultDevServerAddr
	}
}

// ClientConfig returns the scoring client configuration.
func (c *Config) ClientConfig() scoring.ClientConfig {
	return scoring.ClientConfig{
		SampleBaseURL: c.Backend.SampleBaseURL,
		STSBaseURL:    c.Backend.STSBaseURL,
		TTSBaseURL:    c.Backend.TTSBaseURL,
		APIKey:        c.Backend.APIKey,
		IsDevelopment: c.Backend.Environment == EnvDevelopment,
	}
}

// RetryPolicy returns the scoring retry policy built from RetryDelays.
func (c *Config) RetryPolicy() scoring.RetryPolicy {
	p := scoring.DefaultRetryPolicy()
	if c.Backend.RetryDelays != nil {
		p.Delays = append([]time.Duration(nil), c.Backend.RetryDelays...)
	}
	return p
}
