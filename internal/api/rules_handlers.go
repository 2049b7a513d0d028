package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/leadflow/internal/domain"
	"github.com/ignite/leadflow/internal/pkg/httputil"
)

// ---------------------------------------------------------------------------
// Qualification rules
// ---------------------------------------------------------------------------

// ListQualificationRules handles GET /api/campaigns/{campaignID}/qualification-rules
func (h *Handlers) ListQualificationRules(w http.ResponseWriter, r *http.Request) {
	list, err := h.rules.ListQualificationRules(r.Context(), chi.URLParam(r, "campaignID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if list == nil {
		list = []domain.QualificationRule{}
	}
	httputil.OK(w, map[string]any{"rules": list})
}

// CreateQualificationRule handles POST /api/campaigns/{campaignID}/qualification-rules
func (h *Handlers) CreateQualificationRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.QualificationRule
	if !httputil.Decode(w, r, &rule) {
		return
	}
	rule.ID = ""
	rule.CampaignID = chi.URLParam(r, "campaignID")
	saved, err := h.rules.SaveQualificationRule(r.Context(), rule)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.Created(w, saved)
}

// GetQualificationRule handles GET /api/qualification-rules/{ruleID}
func (h *Handlers) GetQualificationRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.rules.GetQualificationRule(r.Context(), chi.URLParam(r, "ruleID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, rule)
}

// UpdateQualificationRule handles PUT /api/qualification-rules/{ruleID}. The
// body replaces the stored rule; omitting campaign_id keeps the current one.
func (h *Handlers) UpdateQualificationRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.QualificationRule
	if !httputil.Decode(w, r, &rule) {
		return
	}
	rule.ID = chi.URLParam(r, "ruleID")
	if rule.CampaignID == "" {
		existing, err := h.rules.GetQualificationRule(r.Context(), rule.ID)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		rule.CampaignID = existing.CampaignID
	}
	saved, err := h.rules.SaveQualificationRule(r.Context(), rule)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, saved)
}

// SetQualificationActive handles PUT /api/qualification-rules/{ruleID}/active
func (h *Handlers) SetQualificationActive(w http.ResponseWriter, r *http.Request) {
	active, ok := decodeActive(w, r)
	if !ok {
		return
	}
	rule, err := h.rules.SetQualificationActive(r.Context(), chi.URLParam(r, "ruleID"), active)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, rule)
}

// DeleteQualificationRule handles DELETE /api/qualification-rules/{ruleID}
func (h *Handlers) DeleteQualificationRule(w http.ResponseWriter, r *http.Request) {
	if err := h.rules.DeleteQualificationRule(r.Context(), chi.URLParam(r, "ruleID")); err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.NoContent(w)
}

// ---------------------------------------------------------------------------
// Step conditions
// ---------------------------------------------------------------------------

// ListStepConditions handles GET /api/steps/{stepID}/conditions
func (h *Handlers) ListStepConditions(w http.ResponseWriter, r *http.Request) {
	list, err := h.rules.ListStepConditions(r.Context(), chi.URLParam(r, "stepID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if list == nil {
		list = []domain.StepCondition{}
	}
	httputil.OK(w, map[string]any{"conditions": list})
}

// CreateStepCondition handles POST /api/steps/{stepID}/conditions
func (h *Handlers) CreateStepCondition(w http.ResponseWriter, r *http.Request) {
	var cond domain.StepCondition
	if !httputil.Decode(w, r, &cond) {
		return
	}
	cond.ID = ""
	cond.StepID = chi.URLParam(r, "stepID")
	saved, err := h.rules.SaveStepCondition(r.Context(), cond)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.Created(w, saved)
}

// ReplaceStepConditions handles PUT /api/steps/{stepID}/conditions. The posted
// list becomes the step's complete condition set.
func (h *Handlers) ReplaceStepConditions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Conditions []domain.StepCondition `json:"conditions"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	stepID := chi.URLParam(r, "stepID")
	for i := range req.Conditions {
		req.Conditions[i].StepID = stepID
	}
	saved, err := h.rules.ReplaceStepConditions(r.Context(), stepID, req.Conditions)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if saved == nil {
		saved = []domain.StepCondition{}
	}
	httputil.OK(w, map[string]any{"conditions": saved})
}

// UpdateStepCondition handles PUT /api/step-conditions/{id}
func (h *Handlers) UpdateStepCondition(w http.ResponseWriter, r *http.Request) {
	var cond domain.StepCondition
	if !httputil.Decode(w, r, &cond) {
		return
	}
	cond.ID = chi.URLParam(r, "id")
	saved, err := h.rules.SaveStepCondition(r.Context(), cond)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, saved)
}

// DeleteStepCondition handles DELETE /api/step-conditions/{id}
func (h *Handlers) DeleteStepCondition(w http.ResponseWriter, r *http.Request) {
	if err := h.rules.DeleteStepCondition(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.NoContent(w)
}

// ---------------------------------------------------------------------------
// Escalation rules
// ---------------------------------------------------------------------------

// ListEscalationRules handles GET /api/clients/{clientID}/escalation-rules
func (h *Handlers) ListEscalationRules(w http.ResponseWriter, r *http.Request) {
	list, err := h.rules.ListEscalationRules(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if list == nil {
		list = []domain.EscalationRule{}
	}
	httputil.OK(w, map[string]any{"rules": list})
}

// CreateEscalationRule handles POST /api/clients/{clientID}/escalation-rules
func (h *Handlers) CreateEscalationRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.EscalationRule
	if !httputil.Decode(w, r, &rule) {
		return
	}
	rule.ID = ""
	rule.ClientID = chi.URLParam(r, "clientID")
	saved, err := h.rules.SaveEscalationRule(r.Context(), rule)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.Created(w, saved)
}

// UpdateEscalationRule handles PUT /api/escalation-rules/{id}
func (h *Handlers) UpdateEscalationRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.EscalationRule
	if !httputil.Decode(w, r, &rule) {
		return
	}
	rule.ID = chi.URLParam(r, "id")
	saved, err := h.rules.SaveEscalationRule(r.Context(), rule)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, saved)
}

// SetEscalationActive handles PUT /api/escalation-rules/{id}/active
func (h *Handlers) SetEscalationActive(w http.ResponseWriter, r *http.Request) {
	active, ok := decodeActive(w, r)
	if !ok {
		return
	}
	rule, err := h.rules.SetEscalationActive(r.Context(), chi.URLParam(r, "id"), active)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, rule)
}

// DeleteEscalationRule handles DELETE /api/escalation-rules/{id}
func (h *Handlers) DeleteEscalationRule(w http.ResponseWriter, r *http.Request) {
	if err := h.rules.DeleteEscalationRule(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.NoContent(w)
}
