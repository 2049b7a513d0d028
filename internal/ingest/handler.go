package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ignite/leadflow/internal/automation"
	"github.com/ignite/leadflow/internal/pkg/httputil"
	"github.com/ignite/leadflow/internal/pkg/logger"
)

// ErrSkipped is returned by a Store for a record it chose not to import, for
// example a lead with neither email nor phone.
var ErrSkipped = errors.New("record skipped")

// Store persists normalized records. Upsert returns the id of the created or
// updated row.
type Store interface {
	Upsert(ctx context.Context, userID string, entity EntityType, rec Record) (string, error)
}

// EventSink receives form_submitted events for imported leads.
type EventSink interface {
	HandleEvent(ctx context.Context, ev automation.Event) (*automation.Outcome, error)
}

// Request is the import payload.
type Request struct {
	EntityType EntityType       `json:"entity_type"`
	Data       []map[string]any `json:"data"`
	UserID     string           `json:"user_id,omitempty"`
}

// Response is the success body.
type Response struct {
	Success    bool       `json:"success"`
	Imported   int        `json:"imported"`
	Skipped    int        `json:"skipped,omitempty"`
	EntityType EntityType `json:"entity_type"`
}

// Handler serves POST /functions/zapier-import.
type Handler struct {
	auth      *Authenticator
	store     Store
	schema    *jsonschema.Schema
	sink      EventSink
	forwarder Forwarder
	archiver  Archiver
	now       func() time.Time
}

// NewHandler creates the import handler.
func NewHandler(auth *Authenticator, store Store) (*Handler, error) {
	schema, err := compileImportSchema()
	if err != nil {
		return nil, err
	}
	return &Handler{auth: auth, store: store, schema: schema, now: time.Now}, nil
}

// SetEventSink routes imported leads into rule evaluation.
func (h *Handler) SetEventSink(s EventSink) { h.sink = s }

// SetForwarder enables auto-match forwarding.
func (h *Handler) SetForwarder(f Forwarder) { h.forwarder = f }

// SetArchiver keeps a copy of every accepted payload. Archive failures are
// logged and do not fail the import.
func (h *Handler) SetArchiver(a Archiver) { h.archiver = a }

// SetClock overrides the event timestamp source.
func (h *Handler) SetClock(now func() time.Time) { h.now = now }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, httputil.MaxBodyBytes))
	if err != nil {
		httputil.BadRequest(w, "could not read body")
		return
	}

	principal, err := h.auth.Authenticate(r.Context(), r, body)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			httputil.Unauthorized(w, "invalid or missing credentials")
			return
		}
		httputil.InternalError(w, err)
		return
	}

	req, details := h.parse(body)
	if details != nil {
		httputil.JSON(w, http.StatusBadRequest, map[string]any{"error": "invalid import payload", "details": details})
		return
	}

	userID := principal.UserID
	if userID == "" {
		userID = req.UserID
	}
	if userID == "" {
		httputil.JSON(w, http.StatusBadRequest, map[string]any{"error": "invalid import payload", "details": []string{"/user_id: required for signed requests"}})
		return
	}

	if h.archiver != nil {
		if key, err := h.archiver.Archive(r.Context(), userID, req.EntityType, body); err != nil {
			log.Printf("[ZapierImport] archive payload for user %s failed: %v", userID, err)
		} else {
			logger.Debug("zapier import archived", "key", key)
		}
	}

	resp, leadIDs, err := h.importAll(r.Context(), userID, req)
	// Records stored before a failure are committed and still get automation.
	if req.EntityType.CreatesLead() && len(leadIDs) > 0 {
		h.dispatch(r.Context(), leadIDs)
		if h.forwarder != nil {
			h.forwarder.Forward(userID, req.EntityType, leadIDs)
		}
	}
	if err != nil {
		logger.Error("zapier import failed", "user_id", userID, "entity_type", string(req.EntityType),
			"imported", resp.Imported, "error", err)
		httputil.JSON(w, http.StatusInternalServerError, map[string]any{
			"success": false, "error": "import failed",
			"imported": resp.Imported, "skipped": resp.Skipped,
		})
		return
	}
	logger.Info("zapier import", "user_id", userID, "entity_type", string(req.EntityType),
		"imported", resp.Imported, "skipped", resp.Skipped, "auth", principal.Method)
	httputil.OK(w, resp)
}

// parse validates body against the import schema. A non-nil details slice
// means the payload was rejected.
func (h *Handler) parse(body []byte) (*Request, []string) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, []string{"invalid JSON: " + err.Error()}
	}
	if err := h.schema.Validate(raw); err != nil {
		return nil, schemaDetails(err)
	}
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, []string{err.Error()}
	}
	return &req, nil
}

// importAll stops at the first store error. The IDs stored before it are
// returned with the error.
func (h *Handler) importAll(ctx context.Context, userID string, req *Request) (Response, []string, error) {
	resp := Response{Success: true, EntityType: req.EntityType}
	var leadIDs []string
	for i, raw := range req.Data {
		rec := Normalize(raw)
		id, err := h.store.Upsert(ctx, userID, req.EntityType, rec)
		if errors.Is(err, ErrSkipped) {
			resp.Skipped++
			continue
		}
		if err != nil {
			return resp, leadIDs, fmt.Errorf("record %d: %w", i, err)
		}
		resp.Imported++
		leadIDs = append(leadIDs, id)
	}
	return resp, leadIDs, nil
}

// dispatch feeds each imported lead to the engine. Evaluation failures are
// logged and never fail the import.
func (h *Handler) dispatch(ctx context.Context, leadIDs []string) {
	if h.sink == nil {
		return
	}
	now := h.now()
	for _, id := range leadIDs {
		ev := automation.Event{
			ID:         fmt.Sprintf("form:%s:%d", id, now.Unix()),
			Kind:       automation.EventFormSubmitted,
			LeadID:     id,
			OccurredAt: now,
		}
		if _, err := h.sink.HandleEvent(ctx, ev); err != nil {
			log.Printf("[ZapierImport] rule evaluation for lead %s failed: %v", id, err)
		}
	}
}
