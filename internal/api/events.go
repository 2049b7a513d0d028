package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/leadflow/internal/automation"
	"github.com/ignite/leadflow/internal/domain"
	"github.com/ignite/leadflow/internal/pkg/httputil"
)

// eventRequest is an event plus, for message_received, the reply text to
// store before evaluating.
type eventRequest struct {
	automation.Event
	Message string `json:"message,omitempty"`
}

type outcomeView struct {
	Event         automation.Event         `json:"event"`
	Qualification *resolutionView          `json:"qualification,omitempty"`
	Step          *resolutionView          `json:"step,omitempty"`
	Escalation    *resolutionView          `json:"escalation,omitempty"`
	Executed      []*automation.IntentView `json:"executed"`
	Skipped       []string                 `json:"skipped"`
}

func viewOutcome(o *automation.Outcome) outcomeView {
	v := outcomeView{
		Event:         o.Event,
		Qualification: viewResolution(o.Qualification),
		Step:          viewResolution(o.Step),
		Escalation:    viewResolution(o.Escalation),
		Executed:      make([]*automation.IntentView, 0, len(o.Executed)),
		Skipped:       o.Skipped,
	}
	for _, in := range o.Executed {
		v.Executed = append(v.Executed, automation.View(in))
	}
	if v.Skipped == nil {
		v.Skipped = []string{}
	}
	return v
}

// HandleEvent handles POST /api/events. Retries must resend the same id so
// the fired-once guard can recognise them; a missing id gets a fresh one.
func (h *Handlers) HandleEvent(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "automation engine not configured")
		return
	}
	var req eventRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	ev := req.Event
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	if req.Message != "" && ev.Kind == automation.EventMessageReceived && h.inbound != nil && h.recorded.Add(ev.ID) {
		if err := h.inbound.RecordInbound(r.Context(), ev.LeadID, req.Message, ev.OccurredAt); err != nil {
			h.recorded.Forget(ev.ID)
			if errors.Is(err, domain.ErrNotFound) {
				httputil.NotFound(w, "conversation not found")
				return
			}
			httputil.InternalError(w, err)
			return
		}
	}

	out, err := h.events.HandleEvent(r.Context(), ev)
	switch {
	case err == nil:
	case errors.Is(err, automation.ErrLeadBusy):
		httputil.JSON(w, http.StatusConflict, httputil.ErrorResponse{Error: err.Error(), Code: "lead_busy"})
		return
	case errors.Is(err, domain.ErrNotFound):
		httputil.NotFound(w, "lead not found")
		return
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrUnknownEnum):
		httputil.ValidationFailed(w, err.Error(), nil)
		return
	default:
		if out == nil {
			httputil.InternalError(w, err)
			return
		}
		// Partial outcome: rules resolved but an intent failed to execute.
		v := viewOutcome(out)
		httputil.JSON(w, http.StatusBadGateway, map[string]any{"error": "execution failed", "outcome": v})
		return
	}
	httputil.OK(w, viewOutcome(out))
}
