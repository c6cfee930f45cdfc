package config

import "time"

// ConfigDiff describes what changed between two configs.
//
// Log level, job timeout and waveform window are applied live. Every other
// changed section is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	JobTimeoutChanged bool
	NewJobTimeout     time.Duration

	WaveformChanged   bool
	NewWaveformWindow time.Duration

	// RestartRequired names the top-level sections whose changes only take
	// effect after a restart, e.g. "audio" or "storage".
	RestartRequired []string
}

// HotReloadable reports whether d carries any change that can be applied
// without restart.
func (d ConfigDiff) HotReloadable() bool {
	return d.LogLevelChanged || d.JobTimeoutChanged || d.WaveformChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Job timeout
	if old.Detection.JobTimeout != new.Detection.JobTimeout {
		d.JobTimeoutChanged = true
		d.NewJobTimeout = new.Detection.JobTimeout
	}

	// Waveform window
	if old.Audio.WaveformSeconds != new.Audio.WaveformSeconds {
		d.WaveformChanged = true
		d.NewWaveformWindow = new.Audio.WaveformWindow()
	}

	// Everything else needs a restart. Compare with the live fields masked.
	if old.Server.ListenAddr != new.Server.ListenAddr || !sameTLS(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}

	oldAudio, newAudio := old.Audio, new.Audio
	oldAudio.WaveformSeconds, newAudio.WaveformSeconds = 0, 0
	if oldAudio != newAudio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}

	if !sameClassifiers(old.Classifiers, new.Classifiers) {
		d.RestartRequired = append(d.RestartRequired, "classifiers")
	}

	oldDet, newDet := old.Detection, new.Detection
	oldDet.JobTimeout, newDet.JobTimeout = 0, 0
	if oldDet != newDet {
		d.RestartRequired = append(d.RestartRequired, "detection")
	}

	if old.Storage != new.Storage {
		d.RestartRequired = append(d.RestartRequired, "storage")
	}
	if old.Results != new.Results {
		d.RestartRequired = append(d.RestartRequired, "results")
	}

	return d
}

func sameTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameClassifiers(a, b ClassifiersConfig) bool {
	if len(a.Resources) != len(b.Resources) {
		return false
	}
	for t, r := range a.Resources {
		if b.Resources[t] != r {
			return false
		}
	}
	return a.Backend == b.Backend &&
		a.Fallback == b.Fallback &&
		a.ModelDir == b.ModelDir &&
		a.ChunkSeconds == b.ChunkSeconds &&
		a.ModelSampleRate == b.ModelSampleRate &&
		a.ONNXLibrary == b.ONNXLibrary
}
