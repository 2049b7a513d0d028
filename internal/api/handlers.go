package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ignite/leadflow/internal/automation"
	"github.com/ignite/leadflow/internal/domain"
	"github.com/ignite/leadflow/internal/inbound"
	"github.com/ignite/leadflow/internal/pkg/httputil"
	"github.com/ignite/leadflow/internal/service/rules"
)

// EventHandler runs rule evaluation for one event.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev automation.Event) (*automation.Outcome, error)
}

// InboundRecorder stores a lead's reply on its conversation.
type InboundRecorder interface {
	RecordInbound(ctx context.Context, leadID, body string, at time.Time) error
}

// Handlers serves the rules management, dry-run evaluation and event
// endpoints.
type Handlers struct {
	rules    *rules.Service
	resolver *automation.Resolver
	events   EventHandler
	inbound  InboundRecorder
	// Event IDs whose message was already stored, so a retried POST with the
	// same id evaluates again without storing the reply twice.
	recorded *inbound.Seen
}

// NewHandlers creates handlers backed by svc. resolver is used for dry runs;
// nil gives a resolver without an AI classifier.
func NewHandlers(svc *rules.Service, resolver *automation.Resolver) *Handlers {
	if resolver == nil {
		resolver = automation.NewResolver(nil)
	}
	return &Handlers{
		rules:    svc,
		resolver: resolver,
		recorded: inbound.NewSeen(24*time.Hour, 10000, nil),
	}
}

// SetEventHandler enables POST /api/events.
func (h *Handlers) SetEventHandler(e EventHandler) { h.events = e }

// SetInboundRecorder lets message_received events carry the reply text.
func (h *Handlers) SetInboundRecorder(r InboundRecorder) { h.inbound = r }

type activeRequest struct {
	Active *bool `json:"active"`
}

// respondServiceError maps service and domain errors to status codes.
func respondServiceError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	var eerr *domain.UnknownEnumError
	switch {
	case errors.Is(err, rules.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.As(err, &verr):
		httputil.ValidationFailed(w, err.Error(), verr)
	case errors.As(err, &eerr):
		httputil.ValidationFailed(w, err.Error(), eerr)
	case errors.Is(err, rules.ErrOwnerChanged):
		httputil.ValidationFailed(w, err.Error(), nil)
	default:
		httputil.InternalError(w, err)
	}
}

func decodeActive(w http.ResponseWriter, r *http.Request) (bool, bool) {
	var req activeRequest
	if !httputil.Decode(w, r, &req) {
		return false, false
	}
	if req.Active == nil {
		httputil.ValidationFailed(w, "active is required", &domain.ValidationError{Field: "active", Message: "is required"})
		return false, false
	}
	return *req.Active, true
}
