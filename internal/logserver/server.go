// ============================================================================
// kflogs - Kubefill Job Log Viewer
// ============================================================================
//
// Package:     logserver
// Description: Reference backend serving jobs, historical logs and live lines
// Author:      Mike Stoffels
// Created:     2026-10-14
// License:     MIT
// ============================================================================

package logserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/msto63/kflogs/internal/api"
	"github.com/msto63/kflogs/internal/logging"
	"github.com/msto63/kflogs/internal/stream"
	"github.com/msto63/kflogs/pkg/health"
	"github.com/msto63/kflogs/pkg/version"
)

// Config holds server configuration
type Config struct {
	Addr           string
	LogsPath       string
	APIPath        string
	WSPath         string
	FollowInterval time.Duration
	ReadTimeout    time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Addr:           "0.0.0.0:8080",
		LogsPath:       "./data/logs",
		APIPath:        "api",
		WSPath:         "ws",
		FollowInterval: 500 * time.Millisecond,
		ReadTimeout:    30 * time.Second,
	}
}

// Server is the reference log server
type Server struct {
	httpServer *http.Server
	store      *JobStore
	hub        *Hub
	health     *health.Registry
	logger     *logging.Logger
	config     Config
	stopHub    context.CancelFunc
}

// New creates a server and starts its hub
func New(cfg Config, store *JobStore, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	def := DefaultConfig()
	if cfg.APIPath == "" {
		cfg.APIPath = def.APIPath
	}
	if cfg.WSPath == "" {
		cfg.WSPath = def.WSPath
	}
	if cfg.FollowInterval <= 0 {
		cfg.FollowInterval = def.FollowInterval
	}

	healthRegistry := health.NewRegistry("kflogs-server", version.Version)
	healthRegistry.Register(health.PingCheck("database", store.Ping))
	healthRegistry.Register(health.DirCheck("logs", cfg.LogsPath))

	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(hubCtx)

	s := &Server{
		store:   store,
		hub:     hub,
		health:  healthRegistry,
		logger:  logger,
		config:  cfg,
		stopHub: stopHub,
	}

	s.httpServer = &http.Server{
		Addr:        cfg.Addr,
		Handler:     s.Handler(),
		ReadTimeout: cfg.ReadTimeout,
	}
	return s
}

// Handler returns the routed HTTP handler
func (s *Server) Handler() http.Handler {
	prefix := "/" + strings.Trim(s.config.APIPath, "/")
	if prefix == "/" {
		prefix = ""
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+prefix+"/jobs/{id}", s.jobHandler)
	mux.HandleFunc("GET "+prefix+"/jobs/{id}/logs", s.logsHandler)
	mux.HandleFunc("GET /"+strings.Trim(s.config.WSPath, "/"), s.wsHandler)
	mux.Handle("GET /healthz", s.health.Handler(5*time.Second))

	return loggingMiddleware(s.logger, mux)
}

// loggingMiddleware adds request logging
func loggingMiddleware(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapper.statusCode,
			"duration", time.Since(start),
		)
	})
}

// responseWrapper wraps http.ResponseWriter to capture status code
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWrapper) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack implements http.Hijacker for the websocket upgrade
func (w *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

// Unwrap exposes the underlying writer to http.ResponseController
func (w *responseWrapper) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (s *Server) jobHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}

	job, err := s.store.Get(r.Context(), id)
	if errors.Is(err, ErrJobNotFound) {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("failed to load job", "job_id", id, "error", err)
		jsonError(w, "failed to load job", http.StatusInternalServerError)
		return
	}
	writeJSON(w, job)
}

func (s *Server) logsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}

	chunks, err := CollectLogs(s.jobDir(id))
	if err != nil {
		s.logger.Error("failed to collect logs", "job_id", id, "error", err)
		jsonError(w, "failed to read logs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, chunks)
}

func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("id")
	if token == "" {
		jsonError(w, "missing client id", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(token, s.hub, conn, s.logger)
	s.hub.Register(c)
	go c.writePump()
	go c.readPump(s.subscribe)
}

// subscribe primes a follower for the job, joins the client's room and
// starts following
func (s *Server) subscribe(ctx context.Context, c *Client, frame stream.SubscribeFrame) {
	id := frame.Data.JobID
	f := &Follower{
		Dir:      s.jobDir(id),
		Interval: s.config.FollowInterval,
		Finished: func(ctx context.Context) bool {
			job, err := s.store.Get(ctx, id)
			return err == nil && job.Phase.Terminal()
		},
		Logger: s.logger.With("job_id", id),
	}
	if err := f.Prime(); err != nil {
		// not in a room yet, so disconnect the client itself
		s.logger.Error("failed to prime follower", "client", c.ID, "job_id", id, "error", err)
		s.hub.Unregister(c)
		return
	}

	s.hub.Join(c)
	go s.follow(ctx, c, f, id)
}

// follow streams appended lines to the client's room and ends the room
// once the job finished
func (s *Server) follow(ctx context.Context, c *Client, f *Follower, id int) {
	err := f.Follow(ctx, func(line string) {
		s.hub.Broadcast(c.ID, stream.EncodeLine(line))
	})
	switch {
	case err == nil:
		s.logger.Info("job finished, closing live stream", "client", c.ID, "job_id", id)
		s.hub.End(c.ID)
	case ctx.Err() == nil:
		s.logger.Error("follower failed", "client", c.ID, "job_id", id, "error", err)
		s.hub.End(c.ID)
	}
}

func (s *Server) jobDir(id int) string {
	return filepath.Join(s.config.LogsPath, strconv.Itoa(id))
}

// Start serves on the configured address until Stop
func (s *Server) Start() error {
	s.logger.Info("Starting log server", "addr", s.config.Addr, "logs_path", s.config.LogsPath)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve serves on l until Stop
func (s *Server) Serve(l net.Listener) error {
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the server and disconnects websocket clients
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping log server")
	s.stopHub()
	return s.httpServer.Shutdown(ctx)
}

// Address returns the server address
func (s *Server) Address() string {
	return s.config.Addr
}

// Hub returns the websocket hub
func (s *Server) Hub() *Hub {
	return s.hub
}

func jobID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		jsonError(w, "invalid job id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(api.ErrorResponse{Message: message})
}
