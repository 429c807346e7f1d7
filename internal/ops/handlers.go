package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"flyknight/netplay/internal/logging"
	"flyknight/netplay/internal/server"
)

// StatsFunc returns the current host statistics.
type StatsFunc func() server.Stats

// Options configures the ops server.
type Options struct {
	Address string
	Logger  *logging.Logger
	Stats   StatsFunc
	Feed    *Feed
}

// Server serves the operational HTTP surface next to the game port.
type Server struct {
	log   *logging.Logger
	stats StatsFunc
	feed  *Feed
	http  *http.Server
}

// New constructs an ops server; Start brings it up.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	s := &Server{
		log:   logger,
		stats: opts.Stats,
		feed:  opts.Feed,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", s.livenessHandler())
	mux.HandleFunc("/readyz", s.readinessHandler())
	mux.HandleFunc("/api/stats", s.statsHandler())
	if s.feed != nil {
		mux.HandleFunc("/ws", s.feed.Handler())
	}
	s.http = &http.Server{Addr: opts.Address, Handler: mux}
	return s
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("ops server failed", logging.Error(err))
		}
	}()
	s.log.Info("ops server listening", logging.String("addr", s.http.Addr))
}

// Close shuts the HTTP server down and disconnects spectators.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if s.feed != nil {
		s.feed.Close()
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) livenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		})
	}
}

func (s *Server) readinessHandler() http.HandlerFunc {
	type response struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if s.stats == nil {
			writeJSON(w, http.StatusServiceUnavailable, response{Status: "starting"})
			return
		}
		stats := s.stats()
		writeJSON(w, http.StatusOK, response{Status: "ready", Clients: stats.Clients})
	}
}

func (s *Server) statsHandler() http.HandlerFunc {
	type response struct {
		server.Stats
		Spectators int `json:"spectators"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.stats == nil {
			http.Error(w, "stats unavailable", http.StatusServiceUnavailable)
			return
		}
		resp := response{Stats: s.stats()}
		if s.feed != nil {
			resp.Spectators = s.feed.Spectators()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
