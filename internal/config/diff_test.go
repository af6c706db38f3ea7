package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/wavbridge/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{
		LiveKit: config.LiveKitConfig{URL: "ws://lk", APIKey: "k", APISecret: "s", Room: "r"},
		Ingest:  config.IngestConfig{Enabled: true},
		Egress:  config.EgressConfig{Enabled: true, Path: "greeting.wav"},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		mutate      func(*config.Config)
		wantLog     bool
		wantGate    bool
		wantEgress  bool
		wantRestart []string
	}{
		{
			name:   "identical",
			mutate: func(*config.Config) {},
		},
		{
			name:    "log level",
			mutate:  func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			wantLog: true,
		},
		{
			name:     "gate threshold",
			mutate:   func(c *config.Config) { c.Ingest.Gate.Threshold = 300 },
			wantGate: true,
		},
		{
			name:     "gate toggled",
			mutate:   func(c *config.Config) { c.Ingest.Gate.Enabled = !c.Ingest.Gate.Enabled },
			wantGate: true,
		},
		{
			name:       "egress path",
			mutate:     func(c *config.Config) { c.Egress.Path = "farewell.wav" },
			wantEgress: true,
		},
		{
			name:        "room",
			mutate:      func(c *config.Config) { c.LiveKit.Room = "other" },
			wantRestart: []string{"livekit"},
		},
		{
			name:        "ingest format and trigger",
			mutate:      func(c *config.Config) { c.Ingest.SampleRate = 48000; c.Egress.Trigger = config.TriggerHTTP },
			wantRestart: []string{"ingest", "egress"},
		},
		{
			name:        "listen addr",
			mutate:      func(c *config.Config) { c.Server.ListenAddr = ":9090" },
			wantRestart: []string{"server"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, updated := baseConfig(), baseConfig()
			tt.mutate(updated)

			d := config.Diff(old, updated)
			if d.LogLevelChanged != tt.wantLog {
				t.Errorf("LogLevelChanged = %v, want %v", d.LogLevelChanged, tt.wantLog)
			}
			if tt.wantLog && d.NewLogLevel != updated.Server.LogLevel {
				t.Errorf("NewLogLevel = %q, want %q", d.NewLogLevel, updated.Server.LogLevel)
			}
			if d.GateChanged != tt.wantGate {
				t.Errorf("GateChanged = %v, want %v", d.GateChanged, tt.wantGate)
			}
			if d.EgressPathChanged != tt.wantEgress {
				t.Errorf("EgressPathChanged = %v, want %v", d.EgressPathChanged, tt.wantEgress)
			}
			if !slices.Equal(d.RestartRequired, tt.wantRestart) {
				t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, tt.wantRestart)
			}
			wantEmpty := !tt.wantLog && !tt.wantGate && !tt.wantEgress && len(tt.wantRestart) == 0
			if d.Empty() != wantEmpty {
				t.Errorf("Empty = %v, want %v", d.Empty(), wantEmpty)
			}
		})
	}
}
