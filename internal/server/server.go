package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vincentbai/behaviortrace/internal/metrics"
	"github.com/vincentbai/behaviortrace/internal/models"
)

const maxEnvelopeBytes = 1 << 20

// EventStore is the optional persistence collaborator of the relay.
type EventStore interface {
	InsertEnvelopes(ctx context.Context, envelopes []models.Envelope) error
	SessionEvents(ctx context.Context, sessionID string) ([]models.Envelope, error)
}

type Options struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	ListenerBuffer  int
	// StaticDir, when set, is served under /static/ for the tracker scripts.
	StaticDir string
}

type Server struct {
	store   EventStore
	hub     *Hub
	address string
	opts    Options
	server  *http.Server
}

// NewServer builds a relay. store may be nil, in which case envelopes are
// only fanned out to listeners.
func NewServer(store EventStore, address string, opts Options) *Server {
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 5 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = 30 * time.Second
	}
	return &Server{
		store:   store,
		hub:     NewHub(opts.ListenerBuffer),
		address: address,
		opts:    opts,
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("ok"))
}

// handleCollect accepts one envelope in any content type; beacons arrive as
// text/plain. The envelope reaches listeners before the store is tried, so
// a store failure still answers 500 after the fan-out.
func (s *Server) handleCollect(w http.ResponseWriter, request *http.Request) {
	start := time.Now()
	defer func() { metrics.RelayCollectDuration.Observe(time.Since(start).Seconds()) }()

	if request.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(request.Body, maxEnvelopeBytes))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	var env models.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		http.Error(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		http.Error(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}
	s.hub.Broadcast(compact.Bytes())

	label := string(env.EventType)
	if !env.EventType.Valid() {
		label = "unknown"
	}
	metrics.RelayEventsReceived.WithLabelValues(label).Inc()

	if s.store != nil {
		if err := s.store.InsertEnvelopes(request.Context(), []models.Envelope{env}); err != nil {
			metrics.RelayStoreErrors.Inc()
			slog.Error("store envelope", "session_id", env.SessionID, "event_type", env.EventType, "error", err)
			http.Error(w, "Failed to store event", http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, request *http.Request) {
	if s.store == nil {
		http.Error(w, "No event store configured", http.StatusNotFound)
		return
	}
	envelopes, err := s.store.SessionEvents(request.Context(), request.PathValue("id"))
	if err != nil {
		slog.Error("read session events", "session_id", request.PathValue("id"), "error", err)
		http.Error(w, "Failed to read events", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, envelopes)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "error", err)
	}
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/collect", s.handleCollect)
	mux.Handle("GET /ws", s.hub)
	mux.HandleFunc("GET /sessions/{id}/events", s.handleSessionEvents)
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.opts.StaticDir != "" {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.opts.StaticDir))))
	}
	return mux
}

// Handler exposes the routes without a listener.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start serves until ctx is cancelled, then shuts down gracefully and
// disconnects listeners.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.address, err)
	}
	return s.Serve(ctx, listener)
}

func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.server = &http.Server{
		Handler:      s.setupRoutes(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("relay listening", "address", listener.Addr().String(), "store", s.store != nil)
		serveErr <- s.server.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down relay")
	s.hub.Close()
	shutdownContext, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownContext); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("relay exited")
	return nil
}
