// Package server provides the HTTP surface for a running camera: health,
// stats, MJPEG stream, snapshots, a stats WebSocket and the session journal.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/ayusman/livecam/internal/camera"
	"github.com/ayusman/livecam/internal/journal"
	"github.com/ayusman/livecam/internal/logger"
	"github.com/ayusman/livecam/internal/server/api"
	"github.com/gorilla/mux"
)

// StatsProvider is satisfied by *camera.Controller.
type StatsProvider interface {
	Stats() camera.Stats
}

// Config holds the server configuration.
type Config struct {
	StaticDir     string
	Journal       *journal.Journal
	Stats         StatsProvider
	Frames        *FrameHub
	JPEGQuality   int
	MaxStreamFPS  int
	StatsInterval time.Duration
}

// Server represents the HTTP server.
type Server struct {
	config Config
	router *mux.Router
	start  time.Time
	stats  *StatsHandler
}

// New creates a new Server with the given configuration. Routes are only
// registered for the parts of Config that are set.
func New(config Config) *Server {
	if config.JPEGQuality <= 0 {
		config.JPEGQuality = DefaultJPEGQuality
	}
	if config.StatsInterval <= 0 {
		config.StatsInterval = time.Second
	}

	s := &Server{
		config: config,
		router: mux.NewRouter(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router.PathPrefix("/api").Subrouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	if s.config.Stats != nil {
		r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

		s.stats = NewStatsHandler(s.config.Stats, s.config.StatsInterval)
		r.Handle("/ws", s.stats)
	}

	if s.config.Frames != nil {
		r.Handle("/stream", NewStreamHandler(s.config.Frames, s.config.JPEGQuality, s.config.MaxStreamFPS)).Methods(http.MethodGet)
		r.Handle("/snapshot", NewSnapshotHandler(s.config.Frames, s.config.JPEGQuality)).Methods(http.MethodGet)
	}

	if s.config.Journal != nil {
		api.NewSessionHandler(s.config.Journal).Register(r)
	}

	if s.config.StaticDir != "" {
		s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Stats != nil {
		st := s.config.Stats.Stats()
		response["camera"] = st.State
		if st.Fault != "" {
			response["status"] = "degraded"
		}
	}

	api.WriteJSON(w, http.StatusOK, response)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, s.config.Stats.Stats())
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	log := logger.WithComponent("server")

	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		// streams end with ctx instead of holding up Shutdown
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	if s.stats != nil {
		go s.stats.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Msg("HTTP server stopped")
	return nil
}
