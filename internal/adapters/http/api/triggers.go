package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/okian/sectorclock/internal/adapters/mq/queue"
	"github.com/okian/sectorclock/internal/domain/model"
)

const maxTriggerBody = 4 << 10

// TriggerDependencies defines what the trigger handler needs.
type TriggerDependencies interface {
	Enqueue(ctx context.Context, t model.Trigger) error
}

// TriggersHandler accepts triggers from button boxes, tag readers and the simulator.
type TriggersHandler struct {
	deps TriggerDependencies
	now  func() time.Time
}

// NewTriggersHandler creates a new triggers handler.
func NewTriggersHandler(deps TriggerDependencies) *TriggersHandler {
	return &TriggersHandler{deps: deps, now: time.Now}
}

// triggerRequest is the body of POST /triggers.
type triggerRequest struct {
	Kind        string `json:"kind"`
	RiderID     string `json:"rider_id"`
	DisplayName string `json:"display_name"`
	TS          string `json:"ts"`
}

func (t triggerRequest) toTrigger(now time.Time) (model.Trigger, error) {
	kind, err := model.ParseTriggerKind(t.Kind)
	if err != nil {
		return model.Trigger{}, err
	}
	trig := model.Trigger{
		Kind:        kind,
		RiderID:     strings.TrimSpace(t.RiderID),
		DisplayName: strings.TrimSpace(t.DisplayName),
		At:          now,
		ReceivedAt:  now,
	}
	if kind == model.KindIdentity && trig.RiderID == "" {
		return model.Trigger{}, errors.New("identity trigger needs rider_id")
	}
	if t.TS != "" {
		at, err := time.Parse(time.RFC3339Nano, t.TS)
		if err != nil {
			return model.Trigger{}, errors.New("invalid ts; must be RFC3339")
		}
		trig.At = at
	}
	return trig, nil
}

// HandlePostTrigger handles POST /triggers. The trigger is queued, not
// applied; the response only says whether it was accepted for processing.
func (h *TriggersHandler) HandlePostTrigger(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_trigger"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req triggerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTriggerBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}
	trig, err := req.toTrigger(h.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}

	if err := h.deps.Enqueue(r.Context(), trig); err != nil {
		if errors.Is(err, queue.ErrClosed) {
			writeError(w, http.StatusServiceUnavailable, "shutting_down", wrapKind(op, ErrBackpressure, err))
			return
		}
		writeError(w, http.StatusTooManyRequests, "backpressure", wrapKind(op, ErrBackpressure, err))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}
