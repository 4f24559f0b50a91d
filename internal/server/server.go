// Package server provides the HTTP status API shared by the tracker and the
// SOC feeder daemons.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/invisible-tech/mazerunner-sdk/internal/types"
	"github.com/invisible-tech/mazerunner-sdk/internal/version"
)

const defaultLimit = 100

// AlertSource is the tracker as seen by the API.
type AlertSource interface {
	GetAlerts(limit int) []*types.TrackedAlert
	Rules() []types.RuleInfo
	LastAlertID() int
}

// FeedSource is the SOC feeder as seen by the API.
type FeedSource interface {
	Results(limit int) []types.FeedResult
}

// Options selects which sources the server exposes. Nil sources leave their
// routes unregistered.
type Options struct {
	Addr   string
	Name   string
	Alerts AlertSource
	Feed   FeedSource
}

// Server is the HTTP server for the daemon status API.
type Server struct {
	opts       Options
	log        *logrus.Logger
	httpServer *http.Server
}

// New creates a new HTTP server.
func New(opts Options, log *logrus.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{opts: opts, log: log}
	mux.HandleFunc("/health", s.handleHealth)
	if opts.Alerts != nil {
		mux.HandleFunc("/api/v1/alerts", s.handleAlerts)
		mux.HandleFunc("/api/v1/rules", s.handleRules)
	}
	if opts.Feed != nil {
		mux.HandleFunc("/api/v1/feed", s.handleFeed)
	}
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the route table, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// ListenAndServe starts the HTTP server. It blocks until the server is closed.
func (s *Server) ListenAndServe() error {
	s.log.WithFields(logrus.Fields{"addr": s.opts.Addr, "daemon": s.opts.Name}).Info("Status API listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":  "healthy",
		"version": version.Version,
	}
	if s.opts.Name != "" {
		body["daemon"] = s.opts.Name
	}
	if s.opts.Alerts != nil {
		body["last_alert_id"] = s.opts.Alerts.LastAlertID()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit, ok := parseLimit(r)
	if !ok {
		http.Error(w, "Invalid limit", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Alerts.GetAlerts(limit))
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Alerts.Rules())
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		http.Error(w, "Invalid limit", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Feed.Results(limit))
}

func parseLimit(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
