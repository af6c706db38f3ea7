// Package app wires the room platform, the ingest and egress pipeline
// drivers, and the control surface into a running wavbridge instance.
//
// The App owns the full lifecycle: New validates dependencies, Run joins the
// room and reacts to its events until the context ends or the room goes away,
// and every pipeline it started is stopped before Run returns.
//
// For testing, inject a mock [audio.Platform] and options such as
// [WithGate] and [WithMetrics].
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/wavbridge/internal/config"
	"github.com/MrWong99/wavbridge/internal/health"
	"github.com/MrWong99/wavbridge/internal/observe"
	"github.com/MrWong99/wavbridge/internal/pipeline"
	"github.com/MrWong99/wavbridge/pkg/audio"
	"github.com/MrWong99/wavbridge/pkg/provider/vad"
)

var (
	// ErrNotConnected is returned by [App.StartPlayback] before the room has
	// been joined or after it was left.
	ErrNotConnected = errors.New("app: not connected to a room")

	// ErrPlaybackActive is returned by [App.StartPlayback] while a previous
	// playback is still running.
	ErrPlaybackActive = errors.New("app: playback already running")

	// ErrEgressDisabled is returned by [App.StartPlayback] when egress is
	// turned off in the config.
	ErrEgressDisabled = errors.New("app: egress is disabled")

	// ErrRoomDisconnected is returned by [App.Run] when the room connection
	// ends without the context being cancelled.
	ErrRoomDisconnected = errors.New("app: room disconnected")
)

// trackKey identifies one remote track.
type trackKey struct {
	participant string
	track       string
}

type ingestRun struct {
	key       trackKey
	path      string
	startedAt time.Time
	cancel    context.CancelFunc
}

type playbackRun struct {
	path      string
	startedAt time.Time
}

// App owns the room connection and every pipeline started on it.
type App struct {
	platform audio.Platform
	gate     vad.Engine
	metrics  *observe.Metrics
	level    *slog.LevelVar
	stdin    io.Reader

	ready health.Flag

	mu           sync.Mutex
	cfg          *config.Config
	conn         audio.Connection
	pipeCtx      context.Context
	tracks       map[trackKey]*ingestRun
	paths        map[string]trackKey
	playback     *playbackRun
	participants int

	wg sync.WaitGroup
}

// Option is a functional option for New.
type Option func(*App)

// WithGate sets the silence gate engine used when ingest.gate.enabled is
// true.
func WithGate(eng vad.Engine) Option {
	return func(a *App) { a.gate = eng }
}

// WithMetrics sets the metrics instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets [App.ApplyConfig] change the log level at runtime.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithStdin sets the reader watched for playback go-ahead lines when
// egress.trigger is "stdin".
func WithStdin(r io.Reader) Option {
	return func(a *App) { a.stdin = r }
}

// New creates an App for cfg that joins rooms through platform.
func New(cfg *config.Config, platform audio.Platform, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if platform == nil {
		return nil, errors.New("app: audio platform is required")
	}
	a := &App{
		platform: platform,
		cfg:      cfg,
		tracks:   make(map[trackKey]*ingestRun),
		paths:    make(map[string]trackKey),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if cfg.Ingest.Enabled && cfg.Ingest.Gate.Enabled && a.gate == nil {
		return nil, errors.New("app: ingest.gate is enabled but no gate engine was provided")
	}
	if cfg.Egress.Enabled && cfg.Egress.Trigger == config.TriggerStdin && a.stdin == nil {
		return nil, errors.New("app: egress.trigger stdin requires a stdin reader")
	}
	return a, nil
}

// Ready returns the readiness flag that tracks the room connection.
func (a *App) Ready() *health.Flag { return &a.ready }

func (a *App) config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run joins the configured room and processes its events until ctx is
// cancelled or the room connection ends. All ingest and egress runs are
// stopped and the room is left before Run returns. Cancellation of ctx is a
// normal stop and yields a nil error.
func (a *App) Run(ctx context.Context) error {
	cfg := a.config()
	room := cfg.LiveKit.Room

	conn, err := a.platform.Connect(ctx, room)
	if err != nil {
		return fmt.Errorf("app: connect room %q: %w", room, err)
	}

	pipeCtx, stopPipelines := context.WithCancel(ctx)
	defer stopPipelines()

	a.mu.Lock()
	a.conn = conn
	a.pipeCtx = pipeCtx
	a.mu.Unlock()
	a.ready.Set(true)
	slog.Info("joined room", "room", room, "ingest", cfg.Ingest.Enabled, "egress", cfg.Egress.Enabled)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.consumeEvents(gctx, conn) })

	if cfg.Egress.Enabled {
		switch cfg.Egress.Trigger {
		case config.TriggerConnect:
			if err := a.StartPlayback(gctx); err != nil {
				slog.Error("playback failed to start", "err", err)
			}
		case config.TriggerStdin:
			g.Go(func() error { return a.watchStdin(gctx) })
		}
	}

	runErr := g.Wait()

	a.ready.Set(false)
	a.mu.Lock()
	a.conn = nil
	a.pipeCtx = nil
	a.mu.Unlock()
	stopPipelines()
	a.wg.Wait()

	if err := conn.Disconnect(); err != nil {
		slog.Warn("room disconnect error", "room", room, "err", err)
	}
	audio.Drain(conn.Events())
	slog.Info("left room", "room", room)

	if runErr != nil && ctx.Err() == nil {
		return runErr
	}
	return nil
}

// consumeEvents dispatches room events until ctx ends or the room goes away.
func (a *App) consumeEvents(ctx context.Context, conn audio.Connection) error {
	events := conn.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok || ev.Type == audio.EventDisconnected {
				if ctx.Err() != nil {
					return nil
				}
				return ErrRoomDisconnected
			}
			a.handleEvent(ctx, ev)
		}
	}
}

func (a *App) handleEvent(ctx context.Context, ev audio.Event) {
	slog.Debug("room event", "type", ev.Type, "participant", ev.ParticipantID, "track", ev.TrackID)

	switch ev.Type {
	case audio.EventParticipantConnected:
		a.mu.Lock()
		a.participants++
		a.mu.Unlock()
		a.metrics.ActiveParticipants.Add(ctx, 1)
		slog.Info("participant joined", "participant", ev.ParticipantID)

	case audio.EventParticipantDisconnected:
		a.mu.Lock()
		if a.participants > 0 {
			a.participants--
		}
		a.mu.Unlock()
		a.metrics.ActiveParticipants.Add(ctx, -1)
		slog.Info("participant left", "participant", ev.ParticipantID)

	case audio.EventTrackSubscribed:
		if ev.Source == nil {
			slog.Warn("track subscribed without a source", "participant", ev.ParticipantID, "track", ev.TrackID)
			return
		}
		a.startIngest(ev)

	case audio.EventTrackUnsubscribed, audio.EventTrackUnpublished:
		a.stopIngest(trackKey{participant: ev.ParticipantID, track: ev.TrackID})
	}
}

// ─── Ingest ──────────────────────────────────────────────────────────────────

// startIngest records a subscribed track to its expanded path. A second track
// resolving to a path that is already being written is refused.
func (a *App) startIngest(ev audio.Event) {
	key := trackKey{participant: ev.ParticipantID, track: ev.TrackID}

	a.mu.Lock()
	defer a.mu.Unlock()

	cfg := a.cfg
	if !cfg.Ingest.Enabled {
		return
	}
	if a.pipeCtx == nil || a.pipeCtx.Err() != nil {
		return
	}
	if _, dup := a.tracks[key]; dup {
		slog.Warn("track already recording", "participant", key.participant, "track", key.track)
		return
	}

	path := config.ExpandPath(cfg.Ingest.Path, key.participant, key.track)
	if owner, busy := a.paths[path]; busy {
		slog.Warn("ingest path already in use, refusing track",
			"path", path,
			"participant", key.participant,
			"track", key.track,
			"owner_participant", owner.participant,
			"owner_track", owner.track,
		)
		return
	}

	format := ingestFormat(cfg)
	opts := []pipeline.Option{pipeline.WithMetrics(a.metrics)}
	if cfg.Ingest.Gate.Enabled {
		if a.gate == nil {
			slog.Warn("silence gate enabled without an engine, recording ungated", "path", path)
		} else {
			opts = append(opts, pipeline.WithGate(a.gate, gateConfig(cfg, format)))
		}
	}
	in, err := pipeline.NewIngest(pipeline.IngestConfig{Path: path, Format: format}, opts...)
	if err != nil {
		slog.Error("ingest setup failed", "path", path, "err", err)
		return
	}

	ctx, cancel := context.WithCancel(a.pipeCtx)
	run := &ingestRun{key: key, path: path, startedAt: time.Now(), cancel: cancel}
	a.tracks[key] = run
	a.paths[path] = key

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer cancel()

		res, err := in.Run(ctx, ev.Source)
		if err != nil {
			slog.Error("ingest ended with error", "path", path, "participant", key.participant, "track", key.track, "err", err)
		} else {
			slog.Info("ingest finished", "path", path, "reason", res.Reason, "frames_written", res.FramesWritten)
		}

		a.mu.Lock()
		if a.tracks[key] == run {
			delete(a.tracks, key)
			delete(a.paths, path)
		}
		a.mu.Unlock()
	}()
}

// stopIngest cancels the ingest run recording key, if any.
func (a *App) stopIngest(key trackKey) {
	a.mu.Lock()
	run, ok := a.tracks[key]
	a.mu.Unlock()
	if ok {
		run.cancel()
	}
}

func ingestFormat(cfg *config.Config) audio.Format {
	f := cfg.Ingest.AudioFormat
	return audio.Format{SampleRate: f.SampleRate, Channels: f.Channels, BitDepth: f.BitDepth}
}

func gateConfig(cfg *config.Config, format audio.Format) vad.Config {
	g := cfg.Ingest.Gate
	return vad.Config{
		SampleRate:     format.SampleRate,
		Channels:       format.Channels,
		BitDepth:       format.BitDepth,
		Threshold:      g.Threshold,
		LeadingSkip:    g.LeadingSkip,
		HangoverFrames: g.HangoverFrames,
	}
}

// ─── Egress ──────────────────────────────────────────────────────────────────

// StartPlayback publishes the configured track and plays the egress file into
// it in the background. ctx governs publishing only; the playback itself runs
// until the file is exhausted or [App.Run] stops.
func (a *App) StartPlayback(ctx context.Context) error {
	a.mu.Lock()
	cfg, conn, pipeCtx := a.cfg, a.conn, a.pipeCtx
	switch {
	case !cfg.Egress.Enabled:
		a.mu.Unlock()
		return ErrEgressDisabled
	case conn == nil || pipeCtx == nil || pipeCtx.Err() != nil:
		a.mu.Unlock()
		return ErrNotConnected
	case a.playback != nil:
		a.mu.Unlock()
		return ErrPlaybackActive
	}
	run := &playbackRun{path: cfg.Egress.Path, startedAt: time.Now()}
	a.playback = run
	a.wg.Add(1)
	a.mu.Unlock()

	finish := func() {
		a.mu.Lock()
		if a.playback == run {
			a.playback = nil
		}
		a.mu.Unlock()
		a.wg.Done()
	}

	f := cfg.Egress.AudioFormat
	format := audio.Format{SampleRate: f.SampleRate, Channels: f.Channels, BitDepth: f.BitDepth}
	eg, err := pipeline.NewEgress(pipeline.EgressConfig{
		Path:          run.path,
		Format:        format,
		FrameDuration: time.Duration(cfg.Egress.FrameDurationMs) * time.Millisecond,
	}, pipeline.WithMetrics(a.metrics))
	if err != nil {
		finish()
		return fmt.Errorf("app: playback: %w", err)
	}

	sink, err := conn.Publish(ctx, cfg.Egress.TrackName, format)
	if err != nil {
		finish()
		return fmt.Errorf("app: publish %q: %w", cfg.Egress.TrackName, err)
	}
	slog.Info("playback started", "path", run.path, "track", cfg.Egress.TrackName)

	go func() {
		defer finish()
		res, err := eg.Run(pipeCtx, sink)
		if err != nil {
			slog.Error("playback ended with error", "path", run.path, "err", err)
			return
		}
		slog.Info("playback finished", "path", run.path, "reason", res.Reason, "frames_emitted", res.FramesEmitted)
	}()
	return nil
}

// watchStdin starts a playback for every line read from the stdin reader.
func (a *App) watchStdin(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(a.stdin)
		for sc.Scan() {
			select {
			case lines <- strings.TrimSpace(sc.Text()):
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			slog.Warn("stdin trigger stopped", "err", err)
		}
	}()

	slog.Info("press Enter to start playback")
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-lines:
			if !ok {
				return nil
			}
			if err := a.StartPlayback(ctx); err != nil {
				slog.Warn("playback not started", "err", err)
			}
		}
	}
}

// ─── Status ──────────────────────────────────────────────────────────────────

// IngestStatus describes one running ingest.
type IngestStatus struct {
	Participant string    `json:"participant"`
	Track       string    `json:"track"`
	Path        string    `json:"path"`
	StartedAt   time.Time `json:"started_at"`
}

// PlaybackStatus describes the running playback.
type PlaybackStatus struct {
	Path      string    `json:"path"`
	StartedAt time.Time `json:"started_at"`
}

// Status is a snapshot of the App's room and pipelines.
type Status struct {
	Room         string          `json:"room"`
	Connected    bool            `json:"connected"`
	Participants int             `json:"participants"`
	Ingests      []IngestStatus  `json:"ingests"`
	Playback     *PlaybackStatus `json:"playback,omitempty"`
}

// Status returns a snapshot of the running pipelines, ordered by path.
func (a *App) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := Status{
		Room:         a.cfg.LiveKit.Room,
		Connected:    a.conn != nil,
		Participants: a.participants,
		Ingests:      make([]IngestStatus, 0, len(a.tracks)),
	}
	for _, run := range a.tracks {
		st.Ingests = append(st.Ingests, IngestStatus{
			Participant: run.key.participant,
			Track:       run.key.track,
			Path:        run.path,
			StartedAt:   run.startedAt,
		})
	}
	slices.SortFunc(st.Ingests, func(x, y IngestStatus) int { return strings.Compare(x.Path, y.Path) })
	if a.playback != nil {
		st.Playback = &PlaybackStatus{Path: a.playback.path, StartedAt: a.playback.startedAt}
	}
	return st
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig takes over the settings of next that can change at runtime:
// the log level, the silence gate, and the egress file. Gate and egress
// changes apply to runs started afterwards. Every other change is logged and
// ignored until restart.
func (a *App) ApplyConfig(next *config.Config) config.ConfigDiff {
	a.mu.Lock()
	d := config.Diff(a.cfg, next)
	merged := *a.cfg
	merged.Server.LogLevel = next.Server.LogLevel
	merged.Ingest.Gate = next.Ingest.Gate
	merged.Egress.Path = next.Egress.Path
	a.cfg = &merged
	a.mu.Unlock()

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Slog())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.GateChanged {
		g := next.Ingest.Gate
		slog.Info("silence gate settings changed", "enabled", g.Enabled, "threshold", g.Threshold, "hangover_frames", g.HangoverFrames)
		if g.Enabled && a.gate == nil {
			slog.Warn("silence gate enabled without an engine; new recordings stay ungated")
		}
	}
	if d.EgressPathChanged {
		slog.Info("egress file changed", "path", next.Egress.Path)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "sections", d.RestartRequired)
	}
	return d
}
