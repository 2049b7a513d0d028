package rules_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ignite/leadflow/internal/automation"
	"github.com/ignite/leadflow/internal/domain"
	"github.com/ignite/leadflow/internal/repository/memory"
	"github.com/ignite/leadflow/internal/service/rules"
)

func newService() *rules.Service {
	return rules.NewService(memory.NewRuleRepo())
}

func expRule() domain.QualificationRule {
	return domain.QualificationRule{
		CampaignID: "camp-1", Name: "Experienced", RuleType: domain.RuleFieldMatch,
		FieldName: "experience", Operator: domain.OpGreaterThan, Value: "5",
		TargetStage: domain.StageQualified, Active: true, Priority: 10,
	}
}

func TestSaveQualificationRuleInsertsDraft(t *testing.T) {
	svc := newService()
	r, err := svc.SaveQualificationRule(context.Background(), expRule())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if r.ID == "" {
		t.Fatal("expected storage-assigned id")
	}
	if r.CreatedAt.IsZero() {
		t.Fatal("expected created_at")
	}
}

func TestSaveQualificationRuleValidates(t *testing.T) {
	svc := newService()
	bad := expRule()
	bad.Value = "n/a"
	_, err := svc.SaveQualificationRule(context.Background(), bad)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	list, _ := svc.ListQualificationRules(context.Background(), "camp-1")
	if len(list) != 0 {
		t.Fatalf("invalid rule must not be stored, got %d", len(list))
	}
}

func TestSaveQualificationRuleFullReplace(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	r, _ := svc.SaveQualificationRule(ctx, expRule())

	edit := domain.QualificationRule{
		ID: r.ID, CampaignID: "camp-1", Name: "Licensed", RuleType: domain.RuleFieldMatch,
		FieldName: "license_type", Operator: domain.OpIsPresent, TargetStage: domain.StageQualifying,
	}
	got, err := svc.SaveQualificationRule(ctx, edit)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.ID != r.ID || !got.CreatedAt.Equal(r.CreatedAt) {
		t.Fatal("update must keep id and created_at")
	}
	stored, _ := svc.GetQualificationRule(ctx, r.ID)
	if stored.Active || stored.Priority != 0 || stored.Value != "" || stored.FieldName != "license_type" {
		t.Fatalf("update should replace every field, got %+v", stored)
	}
}

func TestSaveQualificationRuleUnknownID(t *testing.T) {
	svc := newService()
	r := expRule()
	r.ID = "missing"
	if _, err := svc.SaveQualificationRule(context.Background(), r); err != rules.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveQualificationRuleOwnerChange(t *testing.T) {
	svc := newService()
	r, _ := svc.SaveQualificationRule(context.Background(), expRule())
	r.CampaignID = "camp-2"
	if _, err := svc.SaveQualificationRule(context.Background(), *r); err != rules.ErrOwnerChanged {
		t.Fatalf("expected ErrOwnerChanged, got %v", err)
	}
}

func TestDeleteAndRelist(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	draft := expRule()
	first, _ := svc.SaveQualificationRule(ctx, draft)

	if err := svc.DeleteQualificationRule(ctx, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.DeleteQualificationRule(ctx, first.ID); err != rules.ErrNotFound {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
	list, _ := svc.ListQualificationRules(ctx, "camp-1")
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}

	second, _ := svc.SaveQualificationRule(ctx, draft)
	if second.ID == first.ID {
		t.Fatal("re-inserting a draft must create a new id")
	}
	third, _ := svc.SaveQualificationRule(ctx, draft)
	if third.ID == second.ID {
		t.Fatal("each draft insert creates a distinct record")
	}
	list, _ = svc.ListQualificationRules(ctx, "camp-1")
	if len(list) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(list))
	}
}

func TestListQualificationOrder(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	for _, p := range []int{1, 10, 5, 10} {
		r := expRule()
		r.Priority = p
		if _, err := svc.SaveQualificationRule(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	list, _ := svc.ListQualificationRules(ctx, "camp-1")
	got := []int{}
	for _, r := range list {
		got = append(got, r.Priority)
	}
	want := []int{10, 10, 5, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	if !list[0].CreatedAt.Before(list[1].CreatedAt) && !list[0].CreatedAt.Equal(list[1].CreatedAt) {
		t.Fatal("ties must keep creation order")
	}
}

func TestDeactivationRoundTrip(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	top, _ := svc.SaveQualificationRule(ctx, expRule())
	low := expRule()
	low.Priority = 1
	low.TargetStage = domain.StageQualifying
	svc.SaveQualificationRule(ctx, low)

	lead := &domain.Lead{ID: "l1", Experience: new(int)}
	*lead.Experience = 9
	snap := automation.NewSnapshot(lead, nil, nil, lead.CreatedAt)
	resolve := func() automation.Resolution {
		list, _ := svc.QualificationRules(ctx, "camp-1")
		return automation.NewResolver(nil).ResolveQualification(list, snap)
	}

	if got := resolve(); got.RuleID != top.ID {
		t.Fatalf("expected top rule, got %s", got.RuleID)
	}
	if _, err := svc.SetQualificationActive(ctx, top.ID, false); err != nil {
		t.Fatal(err)
	}
	if got := resolve(); got.RuleID == top.ID {
		t.Fatal("deactivated rule must not match")
	}
	if _, err := svc.SetQualificationActive(ctx, top.ID, true); err != nil {
		t.Fatal(err)
	}
	if got := resolve(); got.RuleID != top.ID || got.Intent != (automation.ChangeStage{Stage: domain.StageQualified}) {
		t.Fatalf("reactivation should restore prior result, got %+v", got)
	}
}

func stepCondition(values ...string) domain.StepCondition {
	return domain.StepCondition{
		StepID: "step-1",
		IfThen: domain.IfThen{ConditionType: domain.CondResponseContains, ConditionValues: values, ActionType: domain.ActionEnd},
	}
}

func TestStepConditionLifecycle(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	c, err := svc.SaveStepCondition(ctx, stepCondition("stop"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	c.ConditionValues = []string{"stop", "unsubscribe"}
	if _, err := svc.SaveStepCondition(ctx, *c); err != nil {
		t.Fatalf("update: %v", err)
	}
	list, _ := svc.ListStepConditions(ctx, "step-1")
	if len(list) != 1 || len(list[0].ConditionValues) != 2 {
		t.Fatalf("unexpected list %+v", list)
	}

	if _, err := svc.SaveStepCondition(ctx, stepCondition()); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for empty values, got %v", err)
	}
	if err := svc.DeleteStepCondition(ctx, c.ID); err != nil {
		t.Fatal(err)
	}
}

func TestReplaceStepConditions(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	a, _ := svc.SaveStepCondition(ctx, stepCondition("a"))
	svc.SaveStepCondition(ctx, stepCondition("b"))

	out, err := svc.ReplaceStepConditions(ctx, "step-1", []domain.StepCondition{stepCondition("c"), *a})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if len(out) != 2 || out[1].ID != a.ID || out[1].OrderIndex != 1 {
		t.Fatalf("unexpected result %+v", out)
	}
	list, _ := svc.ListStepConditions(ctx, "step-1")
	if len(list) != 2 || list[0].ConditionValues[0] != "c" || list[1].ID != a.ID {
		t.Fatalf("unexpected stored set %+v", list)
	}
}

func TestReplaceStepConditionsLeavesSetOnBadID(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	a, _ := svc.SaveStepCondition(ctx, stepCondition("a"))
	b, _ := svc.SaveStepCondition(ctx, stepCondition("b"))
	other, _ := svc.SaveStepCondition(ctx, domain.StepCondition{StepID: "step-2", IfThen: stepCondition("x").IfThen})

	cases := []struct {
		name string
		id   string
		want error
	}{
		{"unknown id", "does-not-exist", rules.ErrNotFound},
		{"condition of another step", other.ID, rules.ErrOwnerChanged},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			replacement := stepCondition("c")
			replacement.ID = tc.id
			_, err := svc.ReplaceStepConditions(ctx, "step-1", []domain.StepCondition{*a, replacement})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			list, _ := svc.ListStepConditions(ctx, "step-1")
			if len(list) != 2 || list[0].ID != a.ID || list[1].ID != b.ID {
				t.Fatalf("stored set changed: %+v", list)
			}
		})
	}
	list, _ := svc.ListStepConditions(ctx, "step-2")
	if len(list) != 1 || list[0].StepID != "step-2" {
		t.Fatalf("other step changed: %+v", list)
	}
}

func TestEscalationRuleLifecycle(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	e, err := svc.SaveEscalationRule(ctx, domain.EscalationRule{
		ClientID: "client-1", Name: "Hot reply", Active: true,
		IfThen: domain.IfThen{ConditionType: domain.CondResponseContains, ConditionValues: []string{"call me"}, ActionType: domain.ActionSendNotification, ActionValue: domain.ChannelSMS},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	off, err := svc.SetEscalationActive(ctx, e.ID, false)
	if err != nil || off.Active {
		t.Fatalf("deactivate: %+v %v", off, err)
	}
	list, _ := svc.EscalationRules(ctx, "client-1")
	if len(list) != 1 || list[0].Active {
		t.Fatalf("unexpected list %+v", list)
	}
	if err := svc.DeleteEscalationRule(ctx, e.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SetEscalationActive(ctx, e.ID, true); err != rules.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
