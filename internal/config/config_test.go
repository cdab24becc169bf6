package config_test

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/pointread/internal/config"
	"github.com/MrWong99/pointread/pkg/scoring"
)

const fullYAML = `
server:
  log_level: debug
  metrics_addr: ":9090"
backend:
  sample_base_url: https://sample.example.com
  sts_base_url: https://sts.example.com
  tts_base_url: https://tts.example.com
  api_key: secret
  environment: development
  timeout: 30s
  retry_delays: [100ms, 200ms]
practice:
  language: de
  category: 2
  warmup:
    duration: 0.5
    sample_rate: 16000
  output_dir: /tmp/out
capture:
  input_file: take.wav
  sample_rate: 16000
  frame_duration: 10ms
  no_realtime: true
devserver:
  listen_addr: ":4000"
  cold_start_requests: 2
  envelope: true
  latency: 50ms
`

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.LogLevel != config.LogDebug || cfg.Server.MetricsAddr != ":9090" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Backend.Timeout != 30*time.Second {
		t.Errorf("timeout = %v", cfg.Backend.Timeout)
	}
	if !slices.Equal(cfg.Backend.RetryDelays, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}) {
		t.Errorf("retry_delays = %v", cfg.Backend.RetryDelays)
	}
	if cfg.Practice.Language != "de" || cfg.Practice.Category != 2 || cfg.Practice.Warmup.Duration != 0.5 {
		t.Errorf("practice = %+v", cfg.Practice)
	}
	if cfg.Capture.FrameDuration != 10*time.Millisecond || !cfg.Capture.NoRealtime {
		t.Errorf("capture = %+v", cfg.Capture)
	}
	if cfg.DevServer.ColdStartRequests != 2 || !cfg.DevServer.Envelope || cfg.DevServer.Latency != 50*time.Millisecond {
		t.Errorf("devserver = %+v", cfg.DevServer)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q", cfg.Server.LogLevel)
	}
	if cfg.Backend.Environment != config.EnvProduction {
		t.Errorf("environment = %q", cfg.Backend.Environment)
	}
	if cfg.Backend.Timeout != config.DefaultTimeout {
		t.Errorf("timeout = %v", cfg.Backend.Timeout)
	}
	if !slices.Equal(cfg.Backend.RetryDelays, config.DefaultRetryDelays) {
		t.Errorf("retry_delays = %v", cfg.Backend.RetryDelays)
	}
	if cfg.Practice.Language != "en" || cfg.Practice.Warmup.Duration != 0.3 || cfg.Practice.Warmup.SampleRate != 48000 {
		t.Errorf("practice = %+v", cfg.Practice)
	}
	if cfg.Capture.SampleRate != 48000 || cfg.Capture.FrameDuration != 20*time.Millisecond {
		t.Errorf("capture = %+v", cfg.Capture)
	}
	if cfg.DevServer.ListenAddr != ":3000" {
		t.Errorf("listen_addr = %q", cfg.DevServer.ListenAddr)
	}
}

func TestLoadFromReader_EmptyRetryListDisablesRetries(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("backend:\n  retry_delays: []\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if p := cfg.RetryPolicy(); len(p.Delays) != 0 {
		t.Errorf("delays = %v, want none", p.Delays)
	}
}

func TestConfig_ClientConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	want := scoring.ClientConfig{
		SampleBaseURL: "https://sample.example.com",
		STSBaseURL:    "https://sts.example.com",
		TTSBaseURL:    "https://tts.example.com",
		APIKey:        "secret",
		IsDevelopment: true,
	}
	if got := cfg.ClientConfig(); got != want {
		t.Errorf("ClientConfig() = %+v, want %+v", got, want)
	}

	p := cfg.RetryPolicy()
	if len(p.Delays) != 2 || p.Delays[1] != 200*time.Millisecond {
		t.Errorf("RetryPolicy delays = %v", p.Delays)
	}
	if p.IsRetryable == nil {
		t.Error("RetryPolicy lost its retry predicate")
	}
}

func TestLogLevelAndEnvironment_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("verbose").IsValid() {
		t.Error("verbose should be invalid")
	}
	if !config.EnvDevelopment.IsValid() || !config.EnvProduction.IsValid() || config.Environment("staging").IsValid() {
		t.Error("environment validity wrong")
	}
}
