package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/wavbridge/internal/health"
	"github.com/MrWong99/wavbridge/internal/observe"
)

// shutdownTimeout bounds graceful HTTP shutdown after the server context ends.
const shutdownTimeout = 5 * time.Second

// Server exposes the health probes, Prometheus metrics, and the playback
// control endpoints of an [App].
type Server struct {
	app     *App
	handler http.Handler
	srv     *http.Server
}

// NewServer builds the HTTP control surface for a on addr. Extra readiness
// checkers are evaluated alongside the room connection.
func NewServer(addr string, a *App, checkers ...Checker) *Server {
	s := &Server{app: a}

	all := append([]health.Checker{a.Ready().Checker("room")}, checkers...)
	mux := http.NewServeMux()
	health.New(all...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("POST /v1/playback", s.handlePlayback)

	s.handler = observe.Middleware(a.metrics)(mux)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Checker is an additional readiness check served on /readyz.
type Checker = health.Checker

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()
	slog.Info("http server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address and calls [Server.Serve].
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Status())
}

type playbackResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	err := s.app.StartPlayback(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, playbackResponse{Status: "started"})
	case errors.Is(err, ErrPlaybackActive):
		writeJSON(w, http.StatusConflict, playbackResponse{Status: "busy", Error: err.Error()})
	case errors.Is(err, ErrNotConnected), errors.Is(err, ErrEgressDisabled):
		writeJSON(w, http.StatusServiceUnavailable, playbackResponse{Status: "unavailable", Error: err.Error()})
	default:
		observe.Logger(r.Context()).Error("playback request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, playbackResponse{Status: "error", Error: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "err", err)
	}
}
