package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables consulted when the livekit section leaves a value
// empty.
const (
	EnvLiveKitURL       = "LIVEKIT_URL"
	EnvLiveKitAPIKey    = "LIVEKIT_API_KEY"
	EnvLiveKitAPISecret = "LIVEKIT_API_SECRET"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults and environment fallbacks applied.
func Load(path string) (*Config, error) {
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

// LoadFromReader decodes a YAML config from r, applies defaults and the
// LIVEKIT_* environment fallbacks, and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	return loadFromReader(r, os.LookupEnv)
}

func loadFromReader(r io.Reader, lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg, lookup)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv fills empty LiveKit connection fields from the environment via
// lookup (usually [os.LookupEnv]).
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	fill := func(dst *string, key string) {
		if *dst != "" {
			return
		}
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	fill(&cfg.LiveKit.URL, EnvLiveKitURL)
	fill(&cfg.LiveKit.APIKey, EnvLiveKitAPIKey)
	fill(&cfg.LiveKit.APISecret, EnvLiveKitAPISecret)
}

// ApplyDefaults sets every unset field that has a default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Platform == "" {
		cfg.Platform = DefaultPlatform
	}
	if cfg.LiveKit.Identity == "" {
		cfg.LiveKit.Identity = DefaultIdentity
	}

	if cfg.Ingest.Path == "" {
		cfg.Ingest.Path = DefaultIngestPath
	}
	defaultFormat(&cfg.Ingest.AudioFormat, DefaultIngestRate)
	if cfg.Ingest.Gate.Engine == "" {
		cfg.Ingest.Gate.Engine = DefaultGateEngine
	}
	if cfg.Ingest.Gate.Threshold == 0 {
		cfg.Ingest.Gate.Threshold = DefaultGateThreshold
	}

	defaultFormat(&cfg.Egress.AudioFormat, DefaultEgressRate)
	if cfg.Egress.FrameDurationMs == 0 {
		cfg.Egress.FrameDurationMs = DefaultFrameDurationMs
	}
	if cfg.Egress.TrackName == "" {
		cfg.Egress.TrackName = DefaultTrackName
	}
	if cfg.Egress.Trigger == "" {
		cfg.Egress.Trigger = TriggerConnect
	}
}

func defaultFormat(f *AudioFormat, rate int) {
	if f.SampleRate == 0 {
		f.SampleRate = rate
	}
	if f.Channels == 0 {
		f.Channels = DefaultChannels
	}
	if f.BitDepth == 0 {
		f.BitDepth = DefaultBitDepth
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if !cfg.Ingest.Enabled && !cfg.Egress.Enabled {
		errs = append(errs, errors.New("at least one of ingest.enabled and egress.enabled must be true"))
	}

	// LiveKit
	if cfg.LiveKit.Room == "" {
		errs = append(errs, errors.New("livekit.room is required"))
	}
	if cfg.Platform == DefaultPlatform {
		if cfg.LiveKit.URL == "" {
			errs = append(errs, fmt.Errorf("livekit.url is required (or set %s)", EnvLiveKitURL))
		}
		if cfg.LiveKit.APIKey == "" || cfg.LiveKit.APISecret == "" {
			errs = append(errs, fmt.Errorf("livekit.api_key and livekit.api_secret are required (or set %s and %s)", EnvLiveKitAPIKey, EnvLiveKitAPISecret))
		}
	}
	if cfg.LiveKit.TokenTTL < 0 {
		errs = append(errs, fmt.Errorf("livekit.token_ttl %v must not be negative", cfg.LiveKit.TokenTTL))
	}

	// Ingest
	if cfg.Ingest.Enabled {
		errs = append(errs, validateFormat("ingest", cfg.Ingest.AudioFormat)...)
		if g := cfg.Ingest.Gate; g.Enabled {
			if g.Threshold < 0 {
				errs = append(errs, fmt.Errorf("ingest.gate.threshold %d must not be negative", g.Threshold))
			}
			if g.LeadingSkip < 0 {
				errs = append(errs, fmt.Errorf("ingest.gate.leading_skip %d must not be negative", g.LeadingSkip))
			}
			if g.HangoverFrames < 0 {
				errs = append(errs, fmt.Errorf("ingest.gate.hangover_frames %d must not be negative", g.HangoverFrames))
			}
			if cfg.Ingest.BitDepth != 16 {
				errs = append(errs, fmt.Errorf("ingest.gate requires bit_depth 16, got %d", cfg.Ingest.BitDepth))
			}
		}
		if !strings.Contains(cfg.Ingest.Path, PlaceholderTrack) && !strings.Contains(cfg.Ingest.Path, PlaceholderParticipant) {
			errs = append(errs, fmt.Errorf("ingest.path %q must contain %s or %s so concurrent tracks do not share a file", cfg.Ingest.Path, PlaceholderParticipant, PlaceholderTrack))
		}
	}

	// Egress
	if cfg.Egress.Enabled {
		if cfg.Egress.Path == "" {
			errs = append(errs, errors.New("egress.path is required when egress is enabled"))
		}
		errs = append(errs, validateFormat("egress", cfg.Egress.AudioFormat)...)
		if cfg.Egress.FrameDurationMs <= 0 {
			errs = append(errs, fmt.Errorf("egress.frame_duration_ms %d must be positive", cfg.Egress.FrameDurationMs))
		} else if cfg.Egress.SampleRate*cfg.Egress.FrameDurationMs/1000 == 0 {
			errs = append(errs, fmt.Errorf("egress.frame_duration_ms %d yields no samples at %d Hz", cfg.Egress.FrameDurationMs, cfg.Egress.SampleRate))
		}
		if cfg.Egress.Trigger != "" && !cfg.Egress.Trigger.IsValid() {
			errs = append(errs, fmt.Errorf("egress.trigger %q is invalid; valid values: connect, http, stdin", cfg.Egress.Trigger))
		}
		if cfg.Egress.Trigger == TriggerHTTP && cfg.Server.ListenAddr == "" {
			errs = append(errs, errors.New("egress.trigger http requires server.listen_addr"))
		}
	}

	return errors.Join(errs...)
}

func validateFormat(section string, f AudioFormat) []error {
	var errs []error
	if f.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("%s.sample_rate %d must be positive", section, f.SampleRate))
	}
	if f.Channels <= 0 {
		errs = append(errs, fmt.Errorf("%s.channels %d must be positive", section, f.Channels))
	}
	switch f.BitDepth {
	case 8, 16, 24, 32:
	default:
		errs = append(errs, fmt.Errorf("%s.bit_depth %d is invalid; valid values: 8, 16, 24, 32", section, f.BitDepth))
	}
	return errs
}

// ExpandPath substitutes the {participant} and {track} placeholders in
// template. Path separators in the substituted values are replaced so a
// remote identity cannot escape the configured directory.
func ExpandPath(template, participant, track string) string {
	clean := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return strings.NewReplacer(
		PlaceholderParticipant, clean.Replace(participant),
		PlaceholderTrack, clean.Replace(track),
	).Replace(template)
}
