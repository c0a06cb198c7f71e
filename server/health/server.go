// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/absmach/inflight/purge"
	"github.com/absmach/inflight/tracker"
)

// Config holds health check server configuration.
type Config struct {
	Address         string
	ShutdownTimeout time.Duration
	NodeID          string
}

// Tracker is the tracker view served by the admin endpoints.
type Tracker interface {
	Tracked() int
	History(messageID int64) ([]tracker.Status, error)
	Dump(w io.Writer) error
}

// Purger records destination purges.
type Purger interface {
	Purge(destination string) error
}

// Server provides health and diagnostics endpoints.
type Server struct {
	config  Config
	tracker Tracker
	purger  Purger
	purges  purge.Store
	logger  *slog.Logger
	server  *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// New creates a new health check server.
func New(cfg Config, t Tracker, purger Purger, purges purge.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:  cfg,
		tracker: t,
		purger:  purger,
		purges:  purges,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /messages/{id}", s.handleMessage)
	mux.HandleFunc("GET /dump", s.handleDump)
	mux.HandleFunc("POST /purges/{destination}", s.handlePurge)

	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr returns the listener's network address.
// Returns an empty string if the server hasn't started listening yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Listen serves until ctx is done, then shuts down gracefully.
func (s *Server) Listen(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("Starting health check server", "address", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("Health check server shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Health check server shutdown error", "error", err)
			return err
		}

		s.logger.Info("Health check server stopped")
		return nil
	}
}

// HealthResponse represents the liveness probe response.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// StatusResponse summarizes the tracker state.
type StatusResponse struct {
	NodeID  string         `json:"node_id"`
	Tracked int            `json:"tracked"`
	Purges  []purge.Record `json:"purges"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		NodeID:  s.config.NodeID,
		Tracked: s.tracker.Tracked(),
		Purges:  s.purges.List(),
	})
}

// MessageResponse is the status history of one tracked message.
type MessageResponse struct {
	MessageID int64    `json:"message_id"`
	Status    string   `json:"status"`
	History   []string `json:"history"`
	Removable bool     `json:"removable"`
}

// ErrorResponse carries a request failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid message id"})
		return
	}

	history, err := s.tracker.History(id)
	if err != nil {
		if errors.Is(err, tracker.ErrMessageNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	resp := MessageResponse{
		MessageID: id,
		Status:    history[len(history)-1].String(),
		History:   make([]string, len(history)),
		Removable: tracker.AnyRemovable(history),
	}
	for i, st := range history {
		resp.History[i] = st.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDump(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="message-status.csv"`)
	if err := s.tracker.Dump(w); err != nil {
		s.logger.Error("failed to stream message status dump", "error", err)
	}
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	dest := r.PathValue("destination")
	if err := s.purger.Purge(dest); err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
