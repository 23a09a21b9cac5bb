// Package health implements the /health and /status HTTP endpoints used by
// orchestrators and operators to check on the running daemon.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dicebet/settler/internal/supervisor"
)

// freshnessThreshold is how stale the last observed block can be before the
// stream is considered unhealthy.
const freshnessThreshold = 5 * time.Minute

// pingTimeout bounds the store reachability check per request.
const pingTimeout = 3 * time.Second

// StreamChecker is the subset of the Connection Supervisor the Health
// Surface needs.
type StreamChecker interface {
	Snapshot() supervisor.Snapshot
}

// StoreChecker is the subset of the Event Store the Health Surface needs.
type StoreChecker interface {
	Ping(ctx context.Context) error
}

// PendingCounter is the subset of the Reconciler the Status endpoint needs.
type PendingCounter interface {
	Len() int
}

// Server serves /health and /status.
type Server struct {
	stream    StreamChecker
	store     StoreChecker
	pending   PendingCounter
	startTime time.Time
}

// New builds a health Server.
func New(stream StreamChecker, store StoreChecker, pending PendingCounter, startTime time.Time) *Server {
	return &Server{stream: stream, store: store, pending: pending, startTime: startTime}
}

// Routes mounts /health and /status on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
}

func (s *Server) storeLive(r *http.Request) bool {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()
	return s.store.Ping(ctx) == nil
}

type healthResponse struct {
	Status   string `json:"status"`
	Database struct {
		Connected bool `json:"connected"`
	} `json:"database"`
	Websocket struct {
		Connected     bool   `json:"connected"`
		LastBlockTime string `json:"lastBlockTime,omitempty"`
		BlockAge      string `json:"blockAge"`
	} `json:"websocket"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.stream.Snapshot()
	storeLive := s.storeLive(r)

	blockAge := time.Duration(0)
	if !snap.LastBlockAt.IsZero() {
		blockAge = time.Since(snap.LastBlockAt)
	}
	streamLive := snap.IsConnected && !snap.LastBlockAt.IsZero() && blockAge < freshnessThreshold

	resp := healthResponse{}
	resp.Database.Connected = storeLive
	resp.Websocket.Connected = snap.IsConnected
	resp.Websocket.BlockAge = blockAge.String()
	if !snap.LastBlockAt.IsZero() {
		resp.Websocket.LastBlockTime = snap.LastBlockAt.UTC().Format(time.RFC3339)
	}

	status := http.StatusOK
	if storeLive && streamLive {
		resp.Status = "healthy"
	} else {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}

type statusResponse struct {
	Status            string    `json:"status"`
	PendingBets       int       `json:"pendingBets"`
	StartTime         time.Time `json:"startTime"`
	DatabaseConnected bool      `json:"databaseConnected"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:            "running",
		PendingBets:       s.pending.Len(),
		StartTime:         s.startTime.UTC(),
		DatabaseConnected: s.storeLive(r),
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
