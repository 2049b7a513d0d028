package automation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/leadflow/internal/domain"
)

// MatchResult is the verdict of one condition against one snapshot.
type MatchResult struct {
	Matched bool   `json:"matched"`
	Reason  string `json:"reason"`
}

func hit(format string, args ...any) (MatchResult, error) {
	return MatchResult{Matched: true, Reason: fmt.Sprintf(format, args...)}, nil
}

func miss(format string, args ...any) (MatchResult, error) {
	return MatchResult{Reason: fmt.Sprintf(format, args...)}, nil
}

// Classifier answers ai_analyze conditions. It receives the lead's latest
// response and the condition values as the criteria to judge against.
type Classifier interface {
	Classify(ctx context.Context, response string, criteria []string) (bool, error)
}

// Evaluator maps a rule condition and a snapshot to a MatchResult. Apart from
// the optional Classifier it performs no I/O. A missing field, response or
// timestamp is a non-match, never an error; errors are reserved for malformed
// rules and classifier failures.
type Evaluator struct {
	Classifier Classifier
}

// NewEvaluator creates an evaluator. classifier may be nil, in which case
// ai_analyze conditions never match.
func NewEvaluator(classifier Classifier) *Evaluator {
	return &Evaluator{Classifier: classifier}
}

// EvaluateCondition evaluates a step-condition or escalation-rule condition.
func (e *Evaluator) EvaluateCondition(ctx context.Context, c *domain.IfThen, s Snapshot) (MatchResult, error) {
	switch c.ConditionType {
	case domain.CondResponseIsPresent:
		if _, ok := s.Response(); ok {
			return hit("lead responded")
		}
		return miss("no response")

	case domain.CondResponseIs, domain.CondResponseIsNot:
		resp, ok := s.Response()
		if !ok {
			return miss("no response")
		}
		v, found := firstExact(resp, c.ConditionValues)
		if c.ConditionType == domain.CondResponseIs {
			if found {
				return hit("response is %q", v)
			}
			return miss("response matches none of %d values", len(c.ConditionValues))
		}
		if found {
			return miss("response is %q", v)
		}
		return hit("response matches none of %d values", len(c.ConditionValues))

	case domain.CondResponseContains, domain.CondResponseDoesNotContain:
		resp, ok := s.Response()
		if !ok {
			return miss("no response")
		}
		v, found := firstSubstring(resp, c.ConditionValues)
		if c.ConditionType == domain.CondResponseContains {
			if found {
				return hit("response contains %q", v)
			}
			return miss("response contains none of %d phrases", len(c.ConditionValues))
		}
		if found {
			return miss("response contains %q", v)
		}
		return hit("response contains none of %d phrases", len(c.ConditionValues))

	case domain.CondNoResponseAfter:
		window, ok := c.Window()
		if !ok {
			return MatchResult{}, &domain.ValidationError{Field: "condition_time_value", Message: "missing or has an unknown unit"}
		}
		waited, ok := s.awaitingReply()
		if !ok {
			return miss("not awaiting a reply")
		}
		if waited > window {
			return hit("no reply for %s (limit %s)", waited.Round(time.Second), window)
		}
		return miss("waiting %s of %s", waited.Round(time.Second), window)

	case domain.CondLeadNoResponseAfter:
		window, ok := c.Window()
		if !ok {
			return MatchResult{}, &domain.ValidationError{Field: "condition_time_value", Message: "missing or has an unknown unit"}
		}
		quiet, ok := s.sinceInbound()
		if !ok {
			return miss("no lead activity recorded")
		}
		if quiet > window {
			return hit("lead quiet for %s (limit %s)", quiet.Round(time.Second), window)
		}
		return miss("lead quiet for %s of %s", quiet.Round(time.Second), window)

	case domain.CondMessageCountExceeds:
		limit, ok := c.MessageThreshold()
		if !ok {
			return MatchResult{}, &domain.ValidationError{Field: "condition_time_value", Message: "message count threshold missing"}
		}
		if s.MessageCount > limit {
			return hit("%d messages exceeds %d", s.MessageCount, limit)
		}
		return miss("%d messages within %d", s.MessageCount, limit)

	case domain.CondStageIs:
		want := firstNonBlank(c.ConditionValues)
		if s.Stage != "" && want != "" && s.Stage == want {
			return hit("stage is %s", want)
		}
		return miss("stage %q is not %q", s.Stage, want)

	case domain.CondAIAnalyze:
		resp, ok := s.Response()
		if !ok {
			return miss("no response to analyze")
		}
		if e.Classifier == nil {
			return miss("no classifier configured")
		}
		verdict, err := e.Classifier.Classify(ctx, resp, c.ConditionValues)
		if err != nil {
			return MatchResult{}, fmt.Errorf("ai analyze: %w", err)
		}
		if verdict {
			return hit("classifier matched")
		}
		return miss("classifier rejected")
	}
	return MatchResult{}, &domain.UnknownEnumError{Kind: "condition_type", Value: string(c.ConditionType)}
}

// EvaluateQualification evaluates a qualification rule's condition.
func (e *Evaluator) EvaluateQualification(r *domain.QualificationRule, s Snapshot) (MatchResult, error) {
	var (
		subject string
		present bool
		label   string
	)
	switch r.RuleType {
	case domain.RuleFieldMatch:
		label = r.FieldName
		subject, present = s.Field(r.FieldName)
	case domain.RuleResponseMatch:
		label = "response"
		subject, present = s.Response()
	case domain.RuleScoreThreshold:
		label = r.FieldName
		if label == "" {
			label = domain.ScoreField
		}
		subject, present = s.Field(label)
	case domain.RuleTimeBased:
		label = "hours_since_activity"
		if quiet, ok := s.sinceInbound(); ok {
			subject = strconv.FormatFloat(quiet.Hours(), 'f', -1, 64)
			present = true
		}
	default:
		return MatchResult{}, &domain.UnknownEnumError{Kind: "rule_type", Value: string(r.RuleType)}
	}
	return compare(r.Operator, label, subject, present, r.Value)
}

func compare(op domain.Operator, label, subject string, present bool, value string) (MatchResult, error) {
	if op == domain.OpIsPresent {
		if present {
			return hit("%s is present", label)
		}
		return miss("%s is absent", label)
	}
	if !op.Valid() {
		return MatchResult{}, &domain.UnknownEnumError{Kind: "operator", Value: string(op)}
	}
	if !present {
		return miss("%s is absent", label)
	}
	switch op {
	case domain.OpEquals:
		if subject == value {
			return hit("%s equals %q", label, value)
		}
		return miss("%s is %q, not %q", label, subject, value)
	case domain.OpNotEquals:
		if subject != value {
			return hit("%s is %q, not %q", label, subject, value)
		}
		return miss("%s equals %q", label, value)
	case domain.OpContains:
		if strings.Contains(subject, value) {
			return hit("%s contains %q", label, value)
		}
		return miss("%s does not contain %q", label, value)
	}

	want, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return MatchResult{}, &domain.ValidationError{Field: "value", Message: "must be numeric for " + string(op)}
	}
	got, err := strconv.ParseFloat(strings.TrimSpace(subject), 64)
	if err != nil {
		return miss("%s value %q is not numeric", label, subject)
	}
	if op == domain.OpGreaterThan {
		if got > want {
			return hit("%s %g > %g", label, got, want)
		}
		return miss("%s %g <= %g", label, got, want)
	}
	if got < want {
		return hit("%s %g < %g", label, got, want)
	}
	return miss("%s %g >= %g", label, got, want)
}

// firstSubstring reports the first phrase contained in text, compared
// case-insensitively. Blank phrases are ignored.
func firstSubstring(text string, phrases []string) (string, bool) {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		needle := strings.ToLower(strings.TrimSpace(p))
		if needle == "" {
			continue
		}
		if strings.Contains(lower, needle) {
			return p, true
		}
	}
	return "", false
}

func firstExact(text string, values []string) (string, bool) {
	t := strings.TrimSpace(text)
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		if strings.EqualFold(t, strings.TrimSpace(v)) {
			return v, true
		}
	}
	return "", false
}

func firstNonBlank(values []string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
