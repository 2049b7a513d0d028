package domain

import (
	"strconv"
	"strings"
	"time"
)

// RuleType selects which lead attribute a qualification rule inspects.
type RuleType string

const (
	RuleFieldMatch     RuleType = "field_match"
	RuleResponseMatch  RuleType = "response_match"
	RuleScoreThreshold RuleType = "score_threshold"
	RuleTimeBased      RuleType = "time_based"
)

// Valid reports whether t is a recognized rule type.
func (t RuleType) Valid() bool {
	switch t {
	case RuleFieldMatch, RuleResponseMatch, RuleScoreThreshold, RuleTimeBased:
		return true
	}
	return false
}

// Operator is a comparison applied by a qualification rule.
type Operator string

const (
	OpIsPresent   Operator = "is_present"
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
)

// Valid reports whether op is a recognized operator.
func (op Operator) Valid() bool {
	switch op {
	case OpIsPresent, OpEquals, OpNotEquals, OpContains, OpGreaterThan, OpLessThan:
		return true
	}
	return false
}

// Numeric reports whether the operator compares numbers.
func (op Operator) Numeric() bool {
	return op == OpGreaterThan || op == OpLessThan
}

// ScoreField is the built-in lead attribute a score_threshold rule reads when
// no field name is given.
const ScoreField = "score"

// QualificationRule moves a lead to TargetStage when its condition matches.
type QualificationRule struct {
	ID          string    `json:"id,omitempty" db:"id"`
	CampaignID  string    `json:"campaign_id" db:"campaign_id"`
	Name        string    `json:"name" db:"name"`
	RuleType    RuleType  `json:"rule_type" db:"rule_type"`
	FieldName   string    `json:"field_name,omitempty" db:"field_name"`
	Operator    Operator  `json:"operator" db:"operator"`
	Value       string    `json:"value" db:"value"`
	TargetStage string    `json:"target_stage" db:"target_stage"`
	Active      bool      `json:"active" db:"active"`
	Priority    int       `json:"priority" db:"priority"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// IsDraft reports whether the rule has never been persisted.
func (r *QualificationRule) IsDraft() bool { return r.ID == "" }

// Validate checks the rule's invariants. Unknown enum values are reported as
// *UnknownEnumError, everything else as *ValidationError.
func (r *QualificationRule) Validate() error {
	if err := r.ValidateBody(); err != nil {
		return err
	}
	if r.CampaignID == "" {
		return invalid("campaign_id", "is required")
	}
	return nil
}

// ValidateBody checks the fields evaluation depends on. The owning campaign
// is not required.
func (r *QualificationRule) ValidateBody() error {
	if !r.RuleType.Valid() {
		return unknown("rule_type", string(r.RuleType))
	}
	if !r.Operator.Valid() {
		return unknown("operator", string(r.Operator))
	}
	if r.RuleType == RuleFieldMatch && strings.TrimSpace(r.FieldName) == "" {
		return invalid("field_name", "is required for field_match rules")
	}
	if r.Operator.Numeric() {
		if _, err := strconv.ParseFloat(strings.TrimSpace(r.Value), 64); err != nil {
			return invalid("value", "must be numeric for "+string(r.Operator))
		}
	}
	if r.TargetStage == "" {
		return invalid("target_stage", "is required")
	}
	if !IsKnownStage(r.TargetStage) {
		return invalid("target_stage", "unknown stage "+strconv.Quote(r.TargetStage))
	}
	return nil
}

// ValidateFor checks the rule body and additionally requires the target stage
// to belong to pipeline p.
func (r *QualificationRule) ValidateFor(p Pipeline) error {
	if err := r.ValidateBody(); err != nil {
		return err
	}
	if !p.HasStage(r.TargetStage) {
		return invalid("target_stage", "stage "+strconv.Quote(r.TargetStage)+" is not in the "+string(p)+" pipeline")
	}
	return nil
}
