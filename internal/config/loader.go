package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/pointread/pkg/scoring"
)

// Environment variables recognised by [ApplyEnv].
const (
	EnvSampleBaseURL = "VITE_API_SAMPLE_BASE_URL"
	EnvSTSBaseURL    = "VITE_API_STS_BASE_URL"
	EnvTTSBaseURL    = "VITE_API_TTS_BASE_URL"
	EnvAPIKey        = "VITE_API_KEY"
	EnvMode          = "POINTREAD_ENV"
)

// DotEnvFiles are read by [LoadEnv] from lowest to highest precedence.
var DotEnvFiles = []string{".env", ".env.local"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := &Config{}
		cfg.ApplyDefaults()
		return cfg, Validate(cfg)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnv reads the dotenv files in dir and overlays the process environment.
// Missing files are skipped. Later files win over earlier ones and the process
// environment wins over both.
func LoadEnv(dir string) (map[string]string, error) {
	env := make(map[string]string)
	for _, name := range DotEnvFiles {
		path := name
		if dir != "" {
			path = dir + string(os.PathSeparator) + name
		}
		vals, err := godotenv.Read(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		for k, v := range vals {
			env[k] = v
		}
	}
	for _, k := range []string{EnvSampleBaseURL, EnvSTSBaseURL, EnvTTSBaseURL, EnvAPIKey, EnvMode} {
		if v, ok := os.LookupEnv(k); ok {
			env[k] = v
		}
	}
	return env, nil
}

// ApplyEnv overrides backend settings with non-empty values from env and
// re-validates cfg.
func ApplyEnv(cfg *Config, env map[string]string) error {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(env[key]); v != "" {
			*dst = v
		}
	}
	set(&cfg.Backend.SampleBaseURL, EnvSampleBaseURL)
	set(&cfg.Backend.STSBaseURL, EnvSTSBaseURL)
	set(&cfg.Backend.TTSBaseURL, EnvTTSBaseURL)
	set(&cfg.Backend.APIKey, EnvAPIKey)
	if v := strings.TrimSpace(env[EnvMode]); v != "" {
		cfg.Backend.Environment = Environment(strings.ToLower(v))
	}
	return Validate(cfg)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Backend
	if cfg.Backend.Environment != "" && !cfg.Backend.Environment.IsValid() {
		errs = append(errs, fmt.Errorf("backend.environment %q is invalid; valid values: development, production", cfg.Backend.Environment))
	}
	for _, u := range []struct{ key, val string }{
		{"backend.sample_base_url", cfg.Backend.SampleBaseURL},
		{"backend.sts_base_url", cfg.Backend.STSBaseURL},
		{"backend.tts_base_url", cfg.Backend.TTSBaseURL},
		{"backend.dev_fallback_url", cfg.Backend.DevFallbackURL},
	} {
		if u.val != "" && !strings.HasPrefix(u.val, "http://") && !strings.HasPrefix(u.val, "https://") {
			errs = append(errs, fmt.Errorf("%s %q must start with http:// or https://", u.key, u.val))
		}
	}
	if cfg.Backend.Timeout < 0 {
		errs = append(errs, fmt.Errorf("backend.timeout %s must not be negative", cfg.Backend.Timeout))
	}
	for i, d := range cfg.Backend.RetryDelays {
		if d < 0 {
			errs = append(errs, fmt.Errorf("backend.retry_delays[%d] %s must not be negative", i, d))
		}
	}
	if cfg.Backend.Environment != EnvDevelopment && (cfg.Backend.SampleBaseURL == "" || cfg.Backend.STSBaseURL == "") {
		slog.Warn("backend sample or scoring URL is not configured; practice will fail until it is",
			"sample_base_url", cfg.Backend.SampleBaseURL,
			"sts_base_url", cfg.Backend.STSBaseURL,
		)
	}

	// Practice
	if cfg.Practice.Category < scoring.CategoryAny || cfg.Practice.Category > scoring.CategoryLong {
		errs = append(errs, fmt.Errorf("practice.category %d is out of range [0, 3]", cfg.Practice.Category))
	}
	if cfg.Practice.Warmup.Duration < 0 {
		errs = append(errs, fmt.Errorf("practice.warmup.duration %.2f must not be negative", cfg.Practice.Warmup.Duration))
	}
	if cfg.Practice.Warmup.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("practice.warmup.sample_rate %d must not be negative", cfg.Practice.Warmup.SampleRate))
	}

	// Capture
	if cfg.Capture.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d must not be negative", cfg.Capture.SampleRate))
	}
	if cfg.Capture.FrameDuration < 0 {
		errs = append(errs, fmt.Errorf("capture.frame_duration %s must not be negative", cfg.Capture.FrameDuration))
	}

	// DevServer
	if cfg.DevServer.ColdStartRequests < 0 {
		errs = append(errs, fmt.Errorf("devserver.cold_start_requests %d must not be negative", cfg.DevServer.ColdStartRequests))
	}
	if cfg.DevServer.Latency < 0 {
		errs = append(errs, fmt.Errorf("devserver.latency %s must not be negative", cfg.DevServer.Latency))
	}

	return errors.Join(errs...)
}
