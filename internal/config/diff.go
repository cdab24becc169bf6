package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SentencesChanged is true when the devserver sentence bank file changed.
	SentencesChanged bool

	// SimulationChanged is true when any devserver request handling setting
	// changed.
	SimulationChanged bool

	// RestartRequired lists changed settings that only take effect after a
	// restart.
	RestartRequired []string
}

// Empty reports whether d records no change.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.SentencesChanged && !d.SimulationChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	od, nd := old.DevServer, new.DevServer
	if od.SentencesFile != nd.SentencesFile {
		d.SentencesChanged = true
	}
	if od.ColdStartRequests != nd.ColdStartRequests || od.Envelope != nd.Envelope || od.Latency != nd.Latency || od.APIKey != nd.APIKey {
		d.SimulationChanged = true
	}

	if od.ListenAddr != nd.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "devserver.listen_addr")
	}
	if old.Server.MetricsAddr != new.Server.MetricsAddr {
		d.RestartRequired = append(d.RestartRequired, "server.metrics_addr")
	}
	if old.Backend.SampleBaseURL != new.Backend.SampleBaseURL ||
		old.Backend.STSBaseURL != new.Backend.STSBaseURL ||
		old.Backend.TTSBaseURL != new.Backend.TTSBaseURL ||
		old.Backend.APIKey != new.Backend.APIKey ||
		old.Backend.Environment != new.Backend.Environment ||
		!slices.Equal(old.Backend.RetryDelays, new.Backend.RetryDelays) {
		d.RestartRequired = append(d.RestartRequired, "backend")
	}

	return d
}
