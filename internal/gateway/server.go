// Package gateway is the HTTP surface: channel management, the SSE turn
// stream, health, and Prometheus metrics.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stewardhq/steward/internal/agent"
	"github.com/stewardhq/steward/internal/channels"
	"github.com/stewardhq/steward/pkg/models"
)

// Server serves the HTTP API over the channel facade.
type Server struct {
	facade  *channels.Facade
	metrics *Metrics
	logger  *slog.Logger

	httpServer *http.Server
	listener   net.Listener
}

// Option configures the server.
type Option func(*Server)

// WithLogger configures the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates the gateway server.
func NewServer(facade *channels.Facade, metrics *Metrics, opts ...Option) *Server {
	s := &Server{
		facade:  facade,
		metrics: metrics,
		logger:  slog.Default().With("component", "gateway"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the route table. Exposed for tests via httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /channels/{channelId}/create", s.handleCreate)
	mux.HandleFunc("POST /channels/{channelId}/messages", s.handleMessages)
	mux.HandleFunc("POST /channels/{channelId}/history", s.handleHistory)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	return mux
}

// Start begins serving on addr and returns once the listener is bound.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()
	s.logger.Info("http server listening", "addr", addr)
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.countRequest(r, http.StatusOK)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok","service":"personal-agent"}`))
}

type createChannelBody struct {
	ChannelType string `json:"channelType"`
	AgentID     string `json:"agentId"`
}

type sendMessageBody struct {
	Content string `json:"content"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	channelID := r.PathValue("channelId")
	var body createChannelBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.AgentID == "" {
		s.writeError(w, r, http.StatusBadRequest, "malformed request body")
		return
	}
	channelType := models.ChannelType(body.ChannelType)
	if channelType != models.ChannelCLI && channelType != models.ChannelHTTP {
		s.writeError(w, r, http.StatusBadRequest, "unknown channel type")
		return
	}

	if err := s.facade.CreateChannel(r.Context(), channelID, channelType, body.AgentID); err != nil {
		s.logger.Error("create channel failed", "channel_id", channelID, "error", err)
		s.writeError(w, r, http.StatusInternalServerError, "channel creation failed")
		return
	}
	s.countRequest(r, http.StatusOK)
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleMessages streams turn events. Failures after the stream opens travel
// as a turn.failed frame on a 200 response, never as an HTTP error.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	channelID := r.PathValue("channelId")
	var body sendMessageBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Content == "" {
		s.writeError(w, r, http.StatusBadRequest, "malformed request body")
		return
	}

	started := time.Now()
	turnID, stream, err := s.facade.SendMessage(r.Context(), channelID, body.Content)

	sse, sseErr := newSSEWriter(w)
	if sseErr != nil {
		s.writeError(w, r, http.StatusInternalServerError, sseErr.Error())
		return
	}
	s.countRequest(r, http.StatusOK)

	if err != nil {
		s.finishTurn(sse, turnID, started, err)
		return
	}
	for item := range stream {
		if item.Err != nil {
			s.finishTurn(sse, turnID, started, channels.MapTransportError(turnID, item.Err))
			return
		}
		var event models.TurnEvent
		if uerr := json.Unmarshal(item.Value, &event); uerr != nil {
			s.logger.Error("malformed stream event", "turn_id", turnID, "error", uerr)
			continue
		}
		s.metrics.EventCounter.WithLabelValues(string(event.Type)).Inc()
		if werr := sse.WriteEvent(event); werr != nil {
			// Client went away; request context cancellation stops the upstream.
			s.logger.Debug("sse write failed", "turn_id", turnID, "error", werr)
			return
		}
	}
	s.metrics.TurnCounter.WithLabelValues("completed").Inc()
	s.metrics.TurnDuration.Observe(time.Since(started).Seconds())
}

func (s *Server) finishTurn(sse *sseWriter, turnID string, started time.Time, err error) {
	s.metrics.TurnCounter.WithLabelValues("failed").Inc()
	s.metrics.TurnDuration.Observe(time.Since(started).Seconds())
	event := agent.FailureEvent(turnID, err)
	s.metrics.EventCounter.WithLabelValues(string(event.Type)).Inc()
	if werr := sse.WriteEvent(event); werr != nil {
		s.logger.Debug("sse failure write failed", "turn_id", turnID, "error", werr)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	channelID := r.PathValue("channelId")
	turns, err := s.facade.GetHistory(r.Context(), channelID)
	if err != nil {
		var notFound *models.ChannelNotFoundError
		if errors.As(err, &notFound) {
			s.writeError(w, r, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("history failed", "channel_id", channelID, "error", err)
		s.writeError(w, r, http.StatusInternalServerError, "history lookup failed")
		return
	}
	if turns == nil {
		turns = []*models.TurnRecord{}
	}
	s.countRequest(r, http.StatusOK)
	s.writeJSON(w, http.StatusOK, turns)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.countRequest(r, status)
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) countRequest(r *http.Request, status int) {
	s.metrics.HTTPRequestCounter.WithLabelValues(r.Method, r.URL.Path, fmt.Sprintf("%d", status)).Inc()
}
