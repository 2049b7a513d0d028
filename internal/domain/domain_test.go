package domain

import (
	"errors"
	"testing"
	"time"
)

func intp(n int) *int { return &n }

func TestPipelineStages(t *testing.T) {
	if !PipelineStaff.HasStage(StageMatchReady) {
		t.Fatal("staff pipeline should contain match_ready")
	}
	if PipelineStaff.HasStage(StageHotRecruit) {
		t.Fatal("staff pipeline should not contain hot_recruit")
	}
	if p, ok := PipelineOf(StageNurture); !ok || p != PipelineClient {
		t.Fatalf("PipelineOf(nurture) = %q, %v", p, ok)
	}
	if IsKnownStage("archived") {
		t.Fatal("archived is not a stage")
	}
	s := PipelineClient.Stages()
	s[0] = "mutated"
	if PipelineClient.Stages()[0] != StageNewRecruit {
		t.Fatal("Stages must return a copy")
	}
}

func TestQualificationRuleValidate(t *testing.T) {
	base := QualificationRule{
		CampaignID:  "c1",
		RuleType:    RuleFieldMatch,
		FieldName:   "state",
		Operator:    OpEquals,
		Value:       "TX",
		TargetStage: StageQualified,
		Active:      true,
	}
	tests := []struct {
		name    string
		mutate  func(r *QualificationRule)
		wantErr error
	}{
		{"valid", func(r *QualificationRule) {}, nil},
		{"unknown rule type", func(r *QualificationRule) { r.RuleType = "geo" }, ErrUnknownEnum},
		{"unknown operator", func(r *QualificationRule) { r.Operator = "like" }, ErrUnknownEnum},
		{"missing campaign", func(r *QualificationRule) { r.CampaignID = "" }, ErrValidation},
		{"field match without field", func(r *QualificationRule) { r.FieldName = " " }, ErrValidation},
		{"response match without field", func(r *QualificationRule) { r.RuleType = RuleResponseMatch; r.FieldName = "" }, nil},
		{"non-numeric greater_than", func(r *QualificationRule) { r.Operator = OpGreaterThan; r.Value = "n/a" }, ErrValidation},
		{"numeric less_than", func(r *QualificationRule) { r.Operator = OpLessThan; r.Value = " 2.5 " }, nil},
		{"missing target", func(r *QualificationRule) { r.TargetStage = "" }, ErrValidation},
		{"unknown target", func(r *QualificationRule) { r.TargetStage = "limbo" }, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			tt.mutate(&r)
			err := r.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestQualificationRuleValidateBodyIgnoresOwner(t *testing.T) {
	r := QualificationRule{RuleType: RuleFieldMatch, FieldName: "experience", Operator: OpGreaterThan, Value: "5", TargetStage: StageQualified}
	if err := r.ValidateBody(); err != nil {
		t.Fatalf("body without campaign: %v", err)
	}
	var ve *ValidationError
	if err := r.Validate(); !errors.As(err, &ve) || ve.Field != "campaign_id" {
		t.Fatalf("expected campaign_id validation error, got %v", err)
	}
	if err := r.ValidateFor(PipelineStaff); err != nil {
		t.Fatalf("ValidateFor without campaign: %v", err)
	}
}

func TestQualificationRuleValidateFor(t *testing.T) {
	r := QualificationRule{CampaignID: "c1", RuleType: RuleScoreThreshold, Operator: OpGreaterThan, Value: "80", TargetStage: StageHotRecruit}
	if err := r.ValidateFor(PipelineClient); err != nil {
		t.Fatalf("client pipeline: %v", err)
	}
	var ve *ValidationError
	if err := r.ValidateFor(PipelineStaff); !errors.As(err, &ve) || ve.Field != "target_stage" {
		t.Fatalf("expected target_stage validation error, got %v", err)
	}
}

func TestIfThenValidate(t *testing.T) {
	tests := []struct {
		name    string
		c       IfThen
		wantErr error
	}{
		{"contains with values", IfThen{ConditionType: CondResponseContains, ConditionValues: []string{"yes"}, ActionType: ActionProceed}, nil},
		{"contains with blank values", IfThen{ConditionType: CondResponseContains, ConditionValues: []string{" "}, ActionType: ActionProceed}, ErrValidation},
		{"response present no values", IfThen{ConditionType: CondResponseIsPresent, ActionType: ActionAIRespond}, nil},
		{"no response without time", IfThen{ConditionType: CondNoResponseAfter, ActionType: ActionEnd}, ErrValidation},
		{"no response bad unit", IfThen{ConditionType: CondNoResponseAfter, ConditionTimeValue: intp(2), ConditionTimeUnit: "weeks", ActionType: ActionEnd}, ErrUnknownEnum},
		{"no response ok", IfThen{ConditionType: CondNoResponseAfter, ConditionTimeValue: intp(2), ConditionTimeUnit: UnitDays, ActionType: ActionEnd}, nil},
		{"count via threshold", IfThen{ConditionType: CondMessageCountExceeds, ThresholdCount: intp(5), ActionType: ActionEscalateToHuman}, nil},
		{"count missing", IfThen{ConditionType: CondMessageCountExceeds, ActionType: ActionEscalateToHuman}, ErrValidation},
		{"move to stage without value", IfThen{ConditionType: CondResponseIsPresent, ActionType: ActionMoveToStage}, ErrValidation},
		{"move to unknown stage", IfThen{ConditionType: CondResponseIsPresent, ActionType: ActionMoveToStage, ActionValue: "limbo"}, ErrValidation},
		{"move to campaign without value", IfThen{ConditionType: CondResponseIsPresent, ActionType: ActionMoveToCampaign}, ErrValidation},
		{"notify bad channel", IfThen{ConditionType: CondResponseIsPresent, ActionType: ActionSendNotification, ActionValue: "fax"}, ErrUnknownEnum},
		{"notify default channel", IfThen{ConditionType: CondResponseIsPresent, ActionType: ActionSendNotification}, nil},
		{"unknown condition", IfThen{ConditionType: "sentiment", ActionType: ActionEnd}, ErrUnknownEnum},
		{"unknown action", IfThen{ConditionType: CondResponseIsPresent, ActionType: "archive"}, ErrUnknownEnum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestOwnerRequired(t *testing.T) {
	c := IfThen{ConditionType: CondResponseIsPresent, ActionType: ActionProceed}
	if err := (&StepCondition{IfThen: c}).Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("step condition without step: %v", err)
	}
	if err := (&EscalationRule{IfThen: c}).Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("escalation rule without client: %v", err)
	}
}

func TestMessageThresholdPrefersThresholdCount(t *testing.T) {
	c := IfThen{ConditionTimeValue: intp(3), ThresholdCount: intp(7)}
	if n, ok := c.MessageThreshold(); !ok || n != 7 {
		t.Fatalf("got %d, %v", n, ok)
	}
	c.ThresholdCount = nil
	if n, ok := c.MessageThreshold(); !ok || n != 3 {
		t.Fatalf("got %d, %v", n, ok)
	}
}

func TestWindow(t *testing.T) {
	c := IfThen{ConditionTimeValue: intp(2), ConditionTimeUnit: UnitDays}
	if d, ok := c.Window(); !ok || d != 48*time.Hour {
		t.Fatalf("got %s, %v", d, ok)
	}
	c.ConditionTimeUnit = UnitMinutes
	if d, _ := c.Window(); d != 2*time.Minute {
		t.Fatalf("got %s", d)
	}
}

func TestLeadFieldsLookup(t *testing.T) {
	lead := &Lead{
		FirstName:    "Dana",
		LastName:     "Reyes",
		State:        "TX",
		Experience:   intp(4),
		CustomFields: map[string]any{"brokerage": "Summit", "deals_closed": float64(12), "secret": "x", "empty": nil},
	}
	f := LeadFields{Lead: lead, Registry: NewCustomFieldRegistry("brokerage", "deals_closed", "empty")}

	cases := []struct {
		name  string
		want  string
		found bool
	}{
		{FieldName, "Dana Reyes", true},
		{FieldState, "TX", true},
		{FieldExperience, "4", true},
		{FieldScore, "", false},
		{"brokerage", "Summit", true},
		{"deals_closed", "12", true},
		{"secret", "", false},
		{"empty", "", false},
		{"missing", "", false},
	}
	for _, c := range cases {
		got, ok := f.Lookup(c.name)
		if got != c.want || ok != c.found {
			t.Errorf("Lookup(%q) = %q, %v; want %q, %v", c.name, got, ok, c.want, c.found)
		}
	}

	open := LeadFields{Lead: lead}
	if v, ok := open.Lookup("secret"); !ok || v != "x" {
		t.Fatalf("nil registry should resolve any custom field, got %q, %v", v, ok)
	}
}
