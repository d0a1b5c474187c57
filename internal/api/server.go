// Package api provides the relay's HTTP surface: the study websocket,
// health and status endpoints, and a command endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"webfitts/internal/control"
	"webfitts/internal/protocol"
	"webfitts/internal/telemetry"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// ServiceName identifies a relay in GET /health responses.
const ServiceName = "webfitts-relay"

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// Params configures a relay Server.
type Params struct {
	Host       string
	Port       int
	ServerName string

	// APIToken, when set, is required as a bearer token on /api/ routes.
	APIToken string

	// Sink receives study telemetry. Nil logs it.
	Sink telemetry.Sink

	// Session is reported by /api/status. Optional.
	Session *control.Session

	// Heartbeat is the application-level ping interval. Zero means
	// DefaultHeartbeat.
	Heartbeat time.Duration

	Logger *zap.Logger
}

// Server is the telemetry relay.
type Server struct {
	params Params
	log    *zap.Logger
	ws     *WSManager
}

func NewServer(params Params) *Server {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sink := params.Sink
	if sink == nil {
		sink = telemetry.NewLogSink(logger)
	}
	return &Server{
		params: params,
		log:    logger.With(zap.String("component", "api")),
		ws:     newWSManager(params.ServerName, sink, params.Heartbeat, logger),
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.ws.handleWebSocket)
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/command", s.handleCommand)
	return s.authMiddleware(s.recoverMiddleware(mux))
}

// Start runs the event loop and serves HTTP until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.params.Host, strconv.Itoa(s.params.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start with a caller-provided listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	go s.ws.run(loopCtx)

	srv := &http.Server{Handler: s.Handler()}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Relay listening",
			zap.String("addr", ln.Addr().String()),
			zap.String("server", s.params.ServerName))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("Relay shutdown incomplete", zap.Error(err))
	}
	return nil
}

// BroadcastCommand sends a command to every connected study client
// without waiting for delivery. Safe from any goroutine.
func (s *Server) BroadcastCommand(name protocol.CommandName, data any) error {
	return s.ws.BroadcastCommand(name, data)
}

// ClientCount returns the number of connected study clients.
func (s *Server) ClientCount() int {
	return s.ws.ClientCount()
}

// recoverMiddleware prevents panics from crashing the whole server
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.log.Error("Handler panicked", zap.Any("panic", err), zap.String("path", r.URL.Path))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authMiddleware checks the API token on /api/ routes. The websocket is
// left open because browsers cannot set headers on it.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Debug("Request", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.String("remote", r.RemoteAddr))

		if s.params.APIToken != "" && strings.HasPrefix(r.URL.Path, "/api/") {
			if r.Header.Get("Authorization") != "Bearer "+s.params.APIToken {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// handleRoot accepts websocket upgrades on "/" for study pages that
// connect to the bare host address.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" && websocket.IsWebSocketUpgrade(r) {
		s.ws.handleWebSocket(w, r)
		return
	}
	http.NotFound(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HealthResponse{Status: "ok", Service: ServiceName})
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Server   string  `json:"server"`
	Clients  int     `json:"clients"`
	Keyboard bool    `json:"keyboard"`
	Running  bool    `json:"running"`
	Speed    float64 `json:"speed,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := StatusResponse{
		Server:  s.params.ServerName,
		Clients: s.ws.ClientCount(),
	}
	if sess := s.params.Session; sess != nil {
		resp.Keyboard = sess.KeyboardEnabled()
		resp.Running = sess.Running()
		resp.Speed = sess.Speed()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// CommandRequest is the body of POST /api/command.
type CommandRequest struct {
	Command protocol.CommandName `json:"command"`
	Data    json.RawMessage      `json:"data,omitempty"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	var data any
	if len(req.Data) > 0 {
		data = req.Data
	}
	err := s.ws.BroadcastCommand(req.Command, data)
	var unknown *protocol.UnknownCommandError
	switch {
	case errors.As(err, &unknown):
		http.Error(w, unknown.Error(), http.StatusBadRequest)
		return
	case err != nil:
		s.log.Warn("Command not scheduled", zap.String("command", string(req.Command)), zap.Error(err))
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	s.log.Info("Command scheduled", zap.String("command", string(req.Command)), zap.String("remote", r.RemoteAddr))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "scheduled"})
}
