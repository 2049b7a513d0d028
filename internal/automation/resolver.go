package automation

import (
	"context"
	"sort"

	"github.com/ignite/leadflow/internal/domain"
)

// Mode controls how many matches a resolution collects.
type Mode int

const (
	// FirstMatch stops at the first matching rule.
	FirstMatch Mode = iota
	// AllMatch evaluates every rule and returns each match in order.
	AllMatch
)

// RuleFailure records a rule that could not be evaluated. Index is the rule's
// position after ordering.
type RuleFailure struct {
	RuleID string `json:"rule_id"`
	Index  int    `json:"index"`
	Err    error  `json:"-"`
}

// Error implements error.
func (f RuleFailure) Error() string {
	if f.RuleID == "" {
		return "draft rule: " + f.Err.Error()
	}
	return "rule " + f.RuleID + ": " + f.Err.Error()
}

// Unwrap exposes the underlying validation or evaluation error.
func (f RuleFailure) Unwrap() error { return f.Err }

// Match is one matched rule and its intent.
type Match struct {
	RuleID string `json:"rule_id"`
	Intent Intent `json:"-"`
	Reason string `json:"reason"`
}

// Resolution is the outcome of resolving a rule set. With FirstMatch,
// Matches holds at most one entry.
type Resolution struct {
	Matched  bool
	Intent   Intent
	RuleID   string
	Reason   string
	Matches  []Match
	Failures []RuleFailure
}

// NoMatch reports whether no rule matched.
func (r Resolution) NoMatch() bool { return !r.Matched }

func (r *Resolution) add(m Match) {
	if !r.Matched {
		r.Matched = true
		r.Intent = m.Intent
		r.RuleID = m.RuleID
		r.Reason = m.Reason
	}
	r.Matches = append(r.Matches, m)
}

func (r *Resolution) fail(id string, idx int, err error) {
	r.Failures = append(r.Failures, RuleFailure{RuleID: id, Index: idx, Err: err})
}

// Resolver orders a rule set and picks the winning intent. It holds no
// per-call state and may be shared across goroutines.
type Resolver struct {
	Evaluator *Evaluator
	Mode      Mode
	// Pipeline, when set, additionally requires qualification targets to
	// belong to it.
	Pipeline domain.Pipeline
}

// NewResolver creates a first-match resolver.
func NewResolver(ev *Evaluator) *Resolver {
	if ev == nil {
		ev = NewEvaluator(nil)
	}
	return &Resolver{Evaluator: ev, Mode: FirstMatch}
}

// WithMode returns a copy of the resolver using mode m.
func (r *Resolver) WithMode(m Mode) *Resolver {
	c := *r
	c.Mode = m
	return &c
}

func (r *Resolver) forPipeline(p domain.Pipeline) *Resolver {
	c := *r
	c.Pipeline = p
	return &c
}

// ResolveQualification evaluates active qualification rules by priority
// (highest first, ties in creation order).
func (r *Resolver) ResolveQualification(rules []domain.QualificationRule, s Snapshot) Resolution {
	ordered := make([]*domain.QualificationRule, 0, len(rules))
	for i := range rules {
		if rules[i].Active {
			ordered = append(ordered, &rules[i])
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	var res Resolution
	for idx, rule := range ordered {
		var err error
		if r.Pipeline != "" {
			err = rule.ValidateFor(r.Pipeline)
		} else {
			err = rule.ValidateBody()
		}
		if err != nil {
			res.fail(rule.ID, idx, err)
			continue
		}
		m, err := r.Evaluator.EvaluateQualification(rule, s)
		if err != nil {
			res.fail(rule.ID, idx, err)
			continue
		}
		if !m.Matched {
			continue
		}
		res.add(Match{RuleID: rule.ID, Intent: DispatchQualification(rule), Reason: m.Reason})
		if r.Mode == FirstMatch {
			break
		}
	}
	return res
}

// ResolveSteps evaluates a step's conditions in order index order.
func (r *Resolver) ResolveSteps(ctx context.Context, conds []domain.StepCondition, s Snapshot) Resolution {
	rules := make([]ifThenRule, len(conds))
	for i := range conds {
		rules[i] = ifThenRule{id: conds[i].ID, cond: &conds[i].IfThen, validate: conds[i].IfThen.Validate}
	}
	return r.resolveIfThen(ctx, rules, s)
}

// ResolveEscalations evaluates a client's active escalation rules in order
// index order.
func (r *Resolver) ResolveEscalations(ctx context.Context, esc []domain.EscalationRule, s Snapshot) Resolution {
	rules := make([]ifThenRule, 0, len(esc))
	for i := range esc {
		if !esc[i].Active {
			continue
		}
		rules = append(rules, ifThenRule{id: esc[i].ID, cond: &esc[i].IfThen, validate: esc[i].IfThen.Validate})
	}
	return r.resolveIfThen(ctx, rules, s)
}

type ifThenRule struct {
	id       string
	cond     *domain.IfThen
	validate func() error
}

func (r *Resolver) resolveIfThen(ctx context.Context, rules []ifThenRule, s Snapshot) Resolution {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].cond.OrderIndex < rules[j].cond.OrderIndex
	})

	var res Resolution
	for idx, rule := range rules {
		if err := rule.validate(); err != nil {
			res.fail(rule.id, idx, err)
			continue
		}
		m, err := r.Evaluator.EvaluateCondition(ctx, rule.cond, s)
		if err != nil {
			res.fail(rule.id, idx, err)
			continue
		}
		if !m.Matched {
			continue
		}
		intent, err := Dispatch(rule.cond.ActionType, rule.cond.ActionValue)
		if err != nil {
			res.fail(rule.id, idx, err)
			continue
		}
		res.add(Match{RuleID: rule.id, Intent: intent, Reason: m.Reason})
		if r.Mode == FirstMatch {
			break
		}
	}
	return res
}
