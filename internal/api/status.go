// Package api exposes the monitoring engine's status surface: a plain
// JSON snapshot, a streaming WebSocket feed of the same snapshot, and the
// Prometheus scrape endpoint.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lookout/monitor/internal/domain"
	"github.com/lookout/monitor/internal/logging"
)

// StatusSource is the narrow Manager capability the API needs.
type StatusSource interface {
	GetStatus() domain.SchedulerStatus
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server serves /status, /status/stream, and /metrics.
type Server struct {
	manager StatusSource
	log     zerolog.Logger
}

// NewServer builds the status HTTP handler.
func NewServer(manager StatusSource) *Server {
	return &Server{manager: manager, log: logging.WithComponent("status_api")}
}

// Handler returns the mux to mount on an http.Server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/status/stream", s.handleStream)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.manager.GetStatus()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.log.Error().Err(err).Msg("failed to encode status response")
	}
}

// handleStream upgrades to a WebSocket and pushes a status snapshot every
// two seconds until the client disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("status stream upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go s.readPump(conn, cancel)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := s.manager.GetStatus()
			if err := conn.WriteJSON(status); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames so disconnects are detected promptly;
// this endpoint is push-only and never expects an incoming message.
func (s *Server) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
