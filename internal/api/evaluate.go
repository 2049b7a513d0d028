package api

import (
	"net/http"
	"time"

	"github.com/ignite/leadflow/internal/automation"
	"github.com/ignite/leadflow/internal/domain"
	"github.com/ignite/leadflow/internal/pkg/httputil"
)

// snapshotInput is the posted lead state for a dry run.
type snapshotInput struct {
	Lead         *domain.Lead         `json:"lead"`
	Conversation *domain.Conversation `json:"conversation,omitempty"`
	// CustomFields restricts custom-field lookups to the named fields. Absent
	// means every custom field on the lead resolves.
	CustomFields []string   `json:"custom_fields,omitempty"`
	Now          *time.Time `json:"now,omitempty"`
}

func (in snapshotInput) snapshot() automation.Snapshot {
	var registry domain.CustomFieldRegistry
	if in.CustomFields != nil {
		registry = domain.NewCustomFieldRegistry(in.CustomFields...)
	}
	now := time.Now()
	if in.Now != nil {
		now = *in.Now
	}
	return automation.NewSnapshot(in.Lead, in.Conversation, registry, now)
}

type evaluateOptions struct {
	// Mode is "first" (default) or "all".
	Mode     string          `json:"mode,omitempty"`
	Pipeline domain.Pipeline `json:"pipeline,omitempty"`
}

type failureView struct {
	RuleID string `json:"rule_id,omitempty"`
	Index  int    `json:"index"`
	Error  string `json:"error"`
}

type matchView struct {
	RuleID string                 `json:"rule_id"`
	Intent *automation.IntentView `json:"intent"`
	Reason string                 `json:"reason"`
}

// resolutionView is the JSON form of a resolution.
type resolutionView struct {
	Matched  bool                   `json:"matched"`
	Intent   *automation.IntentView `json:"intent,omitempty"`
	RuleID   string                 `json:"rule_id,omitempty"`
	Reason   string                 `json:"reason,omitempty"`
	Matches  []matchView            `json:"matches"`
	Failures []failureView          `json:"failures"`
}

func viewResolution(res *automation.Resolution) *resolutionView {
	if res == nil {
		return nil
	}
	v := &resolutionView{
		Matched:  res.Matched,
		Intent:   automation.View(res.Intent),
		RuleID:   res.RuleID,
		Reason:   res.Reason,
		Matches:  make([]matchView, 0, len(res.Matches)),
		Failures: viewFailures(res.Failures),
	}
	for _, m := range res.Matches {
		v.Matches = append(v.Matches, matchView{RuleID: m.RuleID, Intent: automation.View(m.Intent), Reason: m.Reason})
	}
	return v
}

func viewFailures(failures []automation.RuleFailure) []failureView {
	out := make([]failureView, 0, len(failures))
	for _, f := range failures {
		out = append(out, failureView{RuleID: f.RuleID, Index: f.Index, Error: f.Err.Error()})
	}
	return out
}

// resolverFor applies the request options to the configured resolver.
func (h *Handlers) resolverFor(w http.ResponseWriter, opts evaluateOptions) (*automation.Resolver, bool) {
	mode := automation.FirstMatch
	switch opts.Mode {
	case "", "first":
	case "all":
		mode = automation.AllMatch
	default:
		httputil.ValidationFailed(w, "unknown mode", &domain.UnknownEnumError{Kind: "mode", Value: opts.Mode})
		return nil, false
	}
	if opts.Pipeline != "" && !opts.Pipeline.Valid() {
		httputil.ValidationFailed(w, "unknown pipeline", &domain.UnknownEnumError{Kind: "pipeline", Value: string(opts.Pipeline)})
		return nil, false
	}
	res := h.resolver.WithMode(mode)
	res.Pipeline = opts.Pipeline
	return res, true
}

// EvaluateQualification handles POST /api/evaluate/qualification. The posted
// rules are resolved against the posted snapshot without touching storage.
func (h *Handlers) EvaluateQualification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		evaluateOptions
		Rules    []domain.QualificationRule `json:"rules"`
		Snapshot snapshotInput              `json:"snapshot"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	res, ok := h.resolverFor(w, req.evaluateOptions)
	if !ok {
		return
	}
	out := res.ResolveQualification(req.Rules, req.Snapshot.snapshot())
	httputil.OK(w, viewResolution(&out))
}

// EvaluateSteps handles POST /api/evaluate/steps
func (h *Handlers) EvaluateSteps(w http.ResponseWriter, r *http.Request) {
	var req struct {
		evaluateOptions
		Conditions []domain.StepCondition `json:"conditions"`
		Snapshot   snapshotInput          `json:"snapshot"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	res, ok := h.resolverFor(w, req.evaluateOptions)
	if !ok {
		return
	}
	out := res.ResolveSteps(r.Context(), req.Conditions, req.Snapshot.snapshot())
	httputil.OK(w, viewResolution(&out))
}

// EvaluateEscalations handles POST /api/evaluate/escalations
func (h *Handlers) EvaluateEscalations(w http.ResponseWriter, r *http.Request) {
	var req struct {
		evaluateOptions
		Rules    []domain.EscalationRule `json:"rules"`
		Snapshot snapshotInput           `json:"snapshot"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	res, ok := h.resolverFor(w, req.evaluateOptions)
	if !ok {
		return
	}
	out := res.ResolveEscalations(r.Context(), req.Rules, req.Snapshot.snapshot())
	httputil.OK(w, viewResolution(&out))
}
