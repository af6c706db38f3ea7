// Package config provides the configuration schema, loader, hot-reload
// watcher, and provider registry for the wavbridge audio bridge.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the wavbridge server.
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

// Slog maps l to the matching [slog.Level]. Unknown levels map to Info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Trigger selects what starts an egress run.
type Trigger string

const (
	// TriggerConnect starts playback as soon as the room is joined.
	TriggerConnect Trigger = "connect"

	// TriggerHTTP starts playback on POST /v1/playback.
	TriggerHTTP Trigger = "http"

	// TriggerStdin starts playback when a line is read from standard input.
	TriggerStdin Trigger = "stdin"
)

// IsValid reports whether t is a recognised trigger.
func (t Trigger) IsValid() bool {
	switch t {
	case TriggerConnect, TriggerHTTP, TriggerStdin:
		return true
	}
	return false
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr      = ":8080"
	DefaultPlatform        = "livekit"
	DefaultIdentity        = "wavbridge"
	DefaultGateEngine      = "amplitude"
	DefaultGateThreshold   = 10
	DefaultIngestRate      = 16000
	DefaultEgressRate      = 48000
	DefaultChannels        = 1
	DefaultBitDepth        = 16
	DefaultFrameDurationMs = 10
	DefaultTrackName       = "wavbridge-playback"
	DefaultIngestPath      = "recordings/{participant}-{track}.wav"
)

// Path placeholders expanded per track by the ingest side.
const (
	PlaceholderParticipant = "{participant}"
	PlaceholderTrack       = "{track}"
)

// Config is the root configuration structure for wavbridge.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Platform string        `yaml:"platform"`
	LiveKit  LiveKitConfig `yaml:"livekit"`
	Ingest   IngestConfig  `yaml:"ingest"`
	Egress   EgressConfig  `yaml:"egress"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the health, metrics and control
	// endpoints (e.g., ":8080"). Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFile, when set, receives a copy of every log record in addition to
	// stderr.
	LogFile string `yaml:"log_file"`
}

// LiveKitConfig holds the room connection settings. Empty URL and
// credentials fall back to LIVEKIT_URL, LIVEKIT_API_KEY and
// LIVEKIT_API_SECRET.
type LiveKitConfig struct {
	URL       string        `yaml:"url"`
	APIKey    string        `yaml:"api_key"`
	APISecret string        `yaml:"api_secret"`
	Room      string        `yaml:"room"`
	Identity  string        `yaml:"identity"`
	Name      string        `yaml:"name"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// AudioFormat is the PCM stream format of one pipeline side.
type AudioFormat struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
	BitDepth   int `yaml:"bit_depth"`
}

// IngestConfig configures recording of subscribed tracks.
type IngestConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path is the WAV file template. {participant} and {track} are replaced
	// with the track's owner identity and track ID.
	Path string `yaml:"path"`

	AudioFormat `yaml:",inline"`

	Gate GateConfig `yaml:"gate"`
}

// GateConfig configures the silence gate applied during ingest.
type GateConfig struct {
	Enabled bool `yaml:"enabled"`

	// Engine names the VAD engine registered in the [Registry].
	Engine string `yaml:"engine"`

	// Threshold is the absolute amplitude a sample must exceed to count as
	// activity.
	Threshold int `yaml:"threshold"`

	// LeadingSkip is the number of samples ignored at the start of every
	// frame.
	LeadingSkip int `yaml:"leading_skip"`

	// HangoverFrames is the number of silent frames tolerated inside an
	// utterance.
	HangoverFrames int `yaml:"hangover_frames"`
}

// EgressConfig configures playback of a WAV file into the room.
type EgressConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`

	AudioFormat `yaml:",inline"`

	FrameDurationMs int     `yaml:"frame_duration_ms"`
	TrackName       string  `yaml:"track_name"`
	Trigger         Trigger `yaml:"trigger"`
}
