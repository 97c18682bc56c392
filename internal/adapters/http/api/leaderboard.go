package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/okian/sectorclock/internal/domain/model"
)

// LeaderboardDependencies defines the read side of the leaderboard.
type LeaderboardDependencies interface {
	All(ctx context.Context) ([]model.Record, error)
	MostRecentFor(ctx context.Context, name string) (model.Record, bool, error)
	SectorCount() int
}

// LeaderboardHandler serves leaderboard rows.
type LeaderboardHandler struct {
	deps LeaderboardDependencies
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps}
}

// HandleGetLeaderboard handles GET /leaderboard: every row in file order.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	records, err := h.deps.All(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", wrapKind(op, err, nil))
		return
	}
	out := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toRecordResponse(rec, h.deps.SectorCount()))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGetRider handles GET /leaderboard/{name}: the rider's most recent run.
func (h *LeaderboardHandler) HandleGetRider(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rider"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	name, err := url.PathUnescape(strings.TrimPrefix(r.URL.EscapedPath(), "/leaderboard/"))
	if err != nil || name == "" || strings.Contains(name, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}
	rec, ok, err := h.deps.MostRecentFor(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", wrapKind(op, err, nil))
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", wrapKind(op, ErrNotFound, nil))
		return
	}
	writeJSON(w, http.StatusOK, toRecordResponse(rec, h.deps.SectorCount()))
}
