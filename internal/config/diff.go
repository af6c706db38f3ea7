package config

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// GateChanged is true if any silence gate setting changed. New settings
	// apply to ingest runs started after the reload.
	GateChanged bool

	// EgressPathChanged is true if the playback file changed. The next
	// playback run uses the new file.
	EgressPathChanged bool

	// RestartRequired lists the sections whose changes only take effect
	// after a restart.
	RestartRequired []string
}

// Empty reports whether d carries no changes at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.GateChanged && !d.EgressPathChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Ingest.Gate != new.Ingest.Gate {
		d.GateChanged = true
	}
	if old.Egress.Path != new.Egress.Path {
		d.EgressPathChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.LogFile != new.Server.LogFile {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Platform != new.Platform || old.LiveKit != new.LiveKit {
		d.RestartRequired = append(d.RestartRequired, "livekit")
	}
	if old.Ingest.Enabled != new.Ingest.Enabled || old.Ingest.Path != new.Ingest.Path || old.Ingest.AudioFormat != new.Ingest.AudioFormat {
		d.RestartRequired = append(d.RestartRequired, "ingest")
	}
	oe, ne := old.Egress, new.Egress
	if oe.Enabled != ne.Enabled || oe.AudioFormat != ne.AudioFormat || oe.FrameDurationMs != ne.FrameDurationMs ||
		oe.TrackName != ne.TrackName || oe.Trigger != ne.Trigger {
		d.RestartRequired = append(d.RestartRequired, "egress")
	}

	return d
}
