// Command wavbridge records the audio tracks of a LiveKit room to WAV files
// and plays a WAV file back into the room as a live track.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/wavbridge/internal/app"
	"github.com/MrWong99/wavbridge/internal/config"
	"github.com/MrWong99/wavbridge/internal/observe"
	"github.com/MrWong99/wavbridge/pkg/audio"
	"github.com/MrWong99/wavbridge/pkg/audio/livekit"
	"github.com/MrWong99/wavbridge/pkg/provider/vad"
	"github.com/MrWong99/wavbridge/pkg/provider/vad/amplitude"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "wavbridge.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "wavbridge: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "wavbridge: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.Slog())
	logger, closeLog, err := newLogger(cfg.Server.LogFile, &level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wavbridge: %v\n", err)
		return 1
	}
	defer closeLog()
	slog.SetDefault(logger)

	slog.Info("wavbridge starting",
		"version", version,
		"config", *configPath,
		"room", cfg.LiveKit.Room,
		"ingest", cfg.Ingest.Enabled,
		"egress", cfg.Egress.Enabled,
		"listen_addr", cfg.Server.ListenAddr,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	shutdownOtel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	platform, err := reg.CreateAudio(cfg)
	if err != nil {
		slog.Error("failed to create audio platform", "platform", cfg.Platform, "err", err)
		return 1
	}
	opts := []app.Option{app.WithLevelVar(&level), app.WithStdin(os.Stdin)}
	if cfg.Ingest.Enabled {
		gate, err := reg.CreateVAD(cfg)
		if err != nil {
			slog.Error("failed to create silence gate", "engine", cfg.Ingest.Gate.Engine, "err", err)
			return 1
		}
		opts = append(opts, app.WithGate(gate))
	}

	application, err := app.New(cfg, platform, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(_, next *config.Config) {
		application.ApplyConfig(next)
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	if cfg.Server.ListenAddr != "" {
		srv := app.NewServer(cfg.Server.ListenAddr, application)
		g.Go(func() error { return srv.ListenAndServe(gctx) })
	}
	g.Go(func() error { return application.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders registers the room platforms and gate engines that
// ship with wavbridge.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterAudio(config.DefaultPlatform, func(cfg *config.Config) (audio.Platform, error) {
		lk := cfg.LiveKit
		in := cfg.Ingest.AudioFormat
		opts := []livekit.Option{
			livekit.WithURL(lk.URL),
			livekit.WithCredentials(lk.APIKey, lk.APISecret),
			livekit.WithIdentity(lk.Identity, lk.Name),
			livekit.WithIngestFormat(audio.Format{SampleRate: in.SampleRate, Channels: in.Channels, BitDepth: in.BitDepth}),
		}
		if lk.TokenTTL > 0 {
			opts = append(opts, livekit.WithTokenTTL(lk.TokenTTL))
		}
		p, err := livekit.New(opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	reg.RegisterVAD(config.DefaultGateEngine, func(cfg *config.Config) (vad.Engine, error) {
		return amplitude.New(amplitude.WithDefaultThreshold(cfg.Ingest.Gate.Threshold)), nil
	})
}

// newLogger returns a text logger writing to stderr and, when path is set, to
// the log file as well. The returned close function releases the file.
func newLogger(path string, level *slog.LevelVar) (*slog.Logger, func(), error) {
	var w io.Writer = os.Stderr
	closeFn := func() {}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %q: %w", path, err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closeFn = func() { _ = f.Close() }
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), closeFn, nil
}
