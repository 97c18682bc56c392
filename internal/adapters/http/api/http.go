// Package api is the HTTP trigger source and leaderboard read API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/okian/sectorclock/internal/domain/laptime"
	"github.com/okian/sectorclock/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	TriggerDependencies
	LeaderboardDependencies
}

// Server wires HTTP routes.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	triggersHandler    *TriggersHandler
	leaderboardHandler *LeaderboardHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		triggersHandler:    NewTriggersHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/triggers", MetricsMiddleware(s.triggersHandler.HandlePostTrigger, "triggers"))
	mux.HandleFunc("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/leaderboard/", MetricsMiddleware(s.leaderboardHandler.HandleGetRider, "leaderboard_rider"))
}

// Handler returns a mux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// recordResponse is the JSON shape of one leaderboard row. Times use the
// same m:ss.t form as the CSV file; missing sectors are null.
type recordResponse struct {
	Name     string    `json:"name"`
	Total    string    `json:"total"`
	Sectors  []*string `json:"sectors"`
	AvgSpeed *float64  `json:"avg_speed_kmh,omitempty"`
}

func toRecordResponse(rec model.Record, sectors int) recordResponse {
	if sectors < len(rec.Sectors) {
		sectors = len(rec.Sectors)
	}
	out := recordResponse{
		Name:    rec.Name,
		Total:   laptime.Format(rec.Total),
		Sectors: make([]*string, sectors),
	}
	for i := range out.Sectors {
		if d, ok := rec.Sector(i); ok {
			s := laptime.Format(d)
			out.Sectors[i] = &s
		}
	}
	if rec.AvgSpeed > 0 {
		v := rec.AvgSpeed
		out.AvgSpeed = &v
	}
	return out
}

type ackResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
