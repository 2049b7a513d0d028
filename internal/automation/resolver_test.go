package automation

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/leadflow/internal/domain"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func qual(id string, priority int, rt domain.RuleType, field string, op domain.Operator, value, target string) domain.QualificationRule {
	return domain.QualificationRule{
		ID: id, CampaignID: "c1", Name: id, RuleType: rt, FieldName: field, Operator: op,
		Value: value, TargetStage: target, Active: true, Priority: priority, CreatedAt: epoch,
	}
}

func stepCond(id string, order int, ct domain.ConditionType, values []string, at domain.ActionType, av string) domain.StepCondition {
	return domain.StepCondition{
		ID: id, StepID: "step-1",
		IfThen: domain.IfThen{ConditionType: ct, ConditionValues: values, ActionType: at, ActionValue: av, OrderIndex: order},
	}
}

func TestResolveQualification_ScenarioA(t *testing.T) {
	rules := []domain.QualificationRule{
		qual("exp", 10, domain.RuleFieldMatch, "experience", domain.OpGreaterThan, "5", domain.StageQualified),
	}
	s := NewSnapshot(&domain.Lead{ID: "l1", Experience: intp(8)}, nil, nil, testNow)

	res := NewResolver(nil).ResolveQualification(rules, s)
	require.True(t, res.Matched)
	assert.Equal(t, ChangeStage{Stage: domain.StageQualified}, res.Intent)
	assert.Equal(t, "exp", res.RuleID)
	assert.Empty(t, res.Failures)
}

func TestResolveSteps_ScenarioB(t *testing.T) {
	conds := []domain.StepCondition{
		stepCond("optout", 0, domain.CondResponseContains, []string{"not interested", "stop"}, domain.ActionEnd, ""),
	}
	s := withResponse(snap(nil), "please stop contacting me")

	res := NewResolver(nil).ResolveSteps(context.Background(), conds, s)
	require.True(t, res.Matched)
	assert.Equal(t, EndCampaign{}, res.Intent)
}

func TestResolve_RulesWithoutOwnerIDs(t *testing.T) {
	t.Run("scenario A", func(t *testing.T) {
		rules := []domain.QualificationRule{{
			ID: "r1", RuleType: domain.RuleFieldMatch, FieldName: "experience", Operator: domain.OpGreaterThan,
			Value: "5", TargetStage: domain.StageQualified, Priority: 10, Active: true,
		}}
		s := NewSnapshot(&domain.Lead{ID: "l1", Experience: intp(8)}, nil, nil, testNow)

		res := NewResolver(nil).ResolveQualification(rules, s)
		require.True(t, res.Matched, "failures: %v", res.Failures)
		assert.Equal(t, ChangeStage{Stage: domain.StageQualified}, res.Intent)
		assert.Empty(t, res.Failures)
	})

	t.Run("scenario B", func(t *testing.T) {
		conds := []domain.StepCondition{{
			ID:     "c1",
			IfThen: domain.IfThen{ConditionType: domain.CondResponseContains, ConditionValues: []string{"not interested", "stop"}, ActionType: domain.ActionEnd},
		}}
		s := withResponse(snap(nil), "please stop contacting me")

		res := NewResolver(nil).ResolveSteps(context.Background(), conds, s)
		require.True(t, res.Matched, "failures: %v", res.Failures)
		assert.Equal(t, EndCampaign{}, res.Intent)
	})

	t.Run("escalation", func(t *testing.T) {
		esc := []domain.EscalationRule{{
			ID:     "e1",
			Active: true,
			IfThen: domain.IfThen{ConditionType: domain.CondResponseContains, ConditionValues: []string{"lawyer"}, ActionType: domain.ActionEnd},
		}}
		s := withResponse(snap(nil), "talk to my lawyer")

		res := NewResolver(nil).ResolveEscalations(context.Background(), esc, s)
		require.True(t, res.Matched, "failures: %v", res.Failures)
		assert.Empty(t, res.Failures)
	})
}

func TestResolveQualification_ScenarioC(t *testing.T) {
	rules := []domain.QualificationRule{
		qual("low", 5, domain.RuleFieldMatch, "state", domain.OpIsPresent, "", domain.StageQualifying),
		qual("high", 10, domain.RuleFieldMatch, "state", domain.OpIsPresent, "", domain.StageQualified),
	}
	res := NewResolver(nil).ResolveQualification(rules, snap(mapFields{"state": "TX"}))
	require.True(t, res.Matched)
	assert.Equal(t, "high", res.RuleID)
	assert.Equal(t, ChangeStage{Stage: domain.StageQualified}, res.Intent)
	assert.Len(t, res.Matches, 1)
}

func TestResolveQualification_TiesKeepCreationOrder(t *testing.T) {
	a := qual("a", 1, domain.RuleFieldMatch, "state", domain.OpIsPresent, "", domain.StageQualifying)
	b := qual("b", 1, domain.RuleFieldMatch, "state", domain.OpIsPresent, "", domain.StageQualified)
	c := qual("c", 1, domain.RuleFieldMatch, "state", domain.OpIsPresent, "", domain.StageMatchReady)
	a.CreatedAt = epoch.Add(2 * time.Minute)
	b.CreatedAt = epoch
	c.CreatedAt = epoch

	res := NewResolver(nil).WithMode(AllMatch).ResolveQualification([]domain.QualificationRule{a, b, c}, snap(mapFields{"state": "TX"}))
	ids := make([]string, 0, len(res.Matches))
	for _, m := range res.Matches {
		ids = append(ids, m.RuleID)
	}
	assert.Equal(t, []string{"b", "c", "a"}, ids)
	assert.Equal(t, "b", res.RuleID)
}

func TestResolveQualification_CollectsFailures(t *testing.T) {
	broken := qual("broken", 20, domain.RuleFieldMatch, "", domain.OpEquals, "x", domain.StageQualified)
	unknown := qual("unknown", 15, "geo", "state", domain.OpEquals, "TX", domain.StageQualified)
	good := qual("good", 1, domain.RuleFieldMatch, "state", domain.OpEquals, "TX", domain.StageQualified)

	res := NewResolver(nil).ResolveQualification([]domain.QualificationRule{good, broken, unknown}, snap(mapFields{"state": "TX"}))
	require.True(t, res.Matched)
	assert.Equal(t, "good", res.RuleID)
	require.Len(t, res.Failures, 2)
	assert.Equal(t, "broken", res.Failures[0].RuleID)
	assert.ErrorIs(t, res.Failures[0], domain.ErrValidation)
	assert.Equal(t, "unknown", res.Failures[1].RuleID)
	assert.ErrorIs(t, res.Failures[1], domain.ErrUnknownEnum)
}

func TestResolveQualification_PipelineMismatchFails(t *testing.T) {
	rules := []domain.QualificationRule{
		qual("client-stage", 1, domain.RuleFieldMatch, "state", domain.OpIsPresent, "", domain.StageHotRecruit),
	}
	r := NewResolver(nil)
	r.Pipeline = domain.PipelineStaff
	res := r.ResolveQualification(rules, snap(mapFields{"state": "TX"}))
	assert.True(t, res.NoMatch())
	require.Len(t, res.Failures, 1)
}

func TestResolveSteps_OrderIndexAndFirstMatch(t *testing.T) {
	conds := []domain.StepCondition{
		stepCond("later", 2, domain.CondResponseIsPresent, nil, domain.ActionAIRespond, ""),
		stepCond("first", 0, domain.CondResponseContains, []string{"call"}, domain.ActionMoveToStage, domain.StageBookedAppt),
		stepCond("second", 1, domain.CondResponseIsPresent, nil, domain.ActionMarkHot, ""),
	}
	s := withResponse(snap(nil), "call me at noon")

	res := NewResolver(nil).ResolveSteps(context.Background(), conds, s)
	assert.Equal(t, "first", res.RuleID)
	assert.Equal(t, ChangeStage{Stage: domain.StageBookedAppt}, res.Intent)

	all := NewResolver(nil).WithMode(AllMatch).ResolveSteps(context.Background(), conds, s)
	require.Len(t, all.Matches, 3)
	assert.Equal(t, MarkHot{}, all.Matches[1].Intent)
	assert.Equal(t, GenerateAIReply{}, all.Matches[2].Intent)
}

func TestResolveSteps_InvalidConditionIsLocal(t *testing.T) {
	conds := []domain.StepCondition{
		stepCond("bad", 0, domain.CondResponseContains, nil, domain.ActionEnd, ""),
		stepCond("ok", 1, domain.CondResponseIsPresent, nil, domain.ActionSendNotification, domain.ChannelSMS),
	}
	res := NewResolver(nil).ResolveSteps(context.Background(), conds, withResponse(snap(nil), "hi"))
	require.True(t, res.Matched)
	assert.Equal(t, Notify{Channel: domain.ChannelSMS}, res.Intent)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "bad", res.Failures[0].RuleID)
}

func TestResolveSteps_ClassifierErrorIsFailure(t *testing.T) {
	conds := []domain.StepCondition{
		stepCond("ai", 0, domain.CondAIAnalyze, []string{"wants a call"}, domain.ActionEscalateToHuman, ""),
	}
	r := NewResolver(NewEvaluator(&stubClassifier{err: fmt.Errorf("timeout")}))
	res := r.ResolveSteps(context.Background(), conds, withResponse(snap(nil), "call me"))
	assert.True(t, res.NoMatch())
	require.Len(t, res.Failures, 1)
	assert.ErrorContains(t, res.Failures[0], "timeout")
}

func TestResolveEscalations_SkipsInactive(t *testing.T) {
	esc := []domain.EscalationRule{
		{ID: "off", ClientID: "cl1", Active: false, IfThen: domain.IfThen{ConditionType: domain.CondResponseIsPresent, ActionType: domain.ActionEscalateToHuman}},
		{ID: "on", ClientID: "cl1", Active: true, IfThen: domain.IfThen{ConditionType: domain.CondMessageCountExceeds, ThresholdCount: intp(5), ActionType: domain.ActionSendNotification, OrderIndex: 1}},
	}
	s := withResponse(snap(nil), "hello")
	s.MessageCount = 6

	res := NewResolver(nil).ResolveEscalations(context.Background(), esc, s)
	require.True(t, res.Matched)
	assert.Equal(t, "on", res.RuleID)
	assert.Equal(t, Notify{Channel: domain.ChannelEmail}, res.Intent)
}

func TestResolve_EmptySetIsNoMatch(t *testing.T) {
	r := NewResolver(nil)
	assert.True(t, r.ResolveQualification(nil, snap(nil)).NoMatch())
	assert.True(t, r.ResolveSteps(context.Background(), nil, snap(nil)).NoMatch())
	assert.True(t, r.ResolveEscalations(context.Background(), nil, snap(nil)).NoMatch())
}

func TestResolver_DeactivationRoundTrip(t *testing.T) {
	rules := []domain.QualificationRule{
		qual("top", 100, domain.RuleFieldMatch, "state", domain.OpIsPresent, "", domain.StageMatchReady),
		qual("fallback", 1, domain.RuleFieldMatch, "state", domain.OpIsPresent, "", domain.StageQualifying),
	}
	s := snap(mapFields{"state": "TX"})
	r := NewResolver(nil)

	before := r.ResolveQualification(rules, s)
	assert.Equal(t, "top", before.RuleID)

	rules[0].Active = false
	assert.Equal(t, "fallback", r.ResolveQualification(rules, s).RuleID)

	rules[0].Active = true
	after := r.ResolveQualification(rules, s)
	assert.Equal(t, before.RuleID, after.RuleID)
	assert.Equal(t, before.Intent, after.Intent)
}

var propOperators = []domain.Operator{
	domain.OpIsPresent, domain.OpEquals, domain.OpNotEquals, domain.OpContains, domain.OpGreaterThan, domain.OpLessThan,
}

// noiseRules builds arbitrary active rules below priority 100.
func noiseRules(priorities []int, ops []int, values []string) []domain.QualificationRule {
	out := make([]domain.QualificationRule, 0, len(priorities))
	for i, p := range priorities {
		op := propOperators[ops[i%len(ops)]%len(propOperators)]
		v := values[i%len(values)]
		if op.Numeric() {
			v = strconv.Itoa(len(v))
		}
		out = append(out, qual(fmt.Sprintf("noise-%d", i), p, domain.RuleFieldMatch, "state", op, v, domain.StageQualifying))
	}
	return out
}

func TestResolverProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("an always-matching top-priority rule wins", prop.ForAll(
		func(priorities []int, ops []int, values []string, state string) bool {
			rules := noiseRules(priorities, ops, values)
			winner := qual("winner", 100, domain.RuleFieldMatch, "email", domain.OpIsPresent, "", domain.StageMatched)
			rules = append(rules, winner)
			res := NewResolver(nil).ResolveQualification(rules, snap(mapFields{"email": "a@b.co", "state": state}))
			return res.Matched && res.RuleID == "winner" && res.Intent == ChangeStage{Stage: domain.StageMatched}
		},
		gen.SliceOf(gen.IntRange(-50, 99)),
		gen.SliceOfN(3, gen.IntRange(0, 5)),
		gen.SliceOfN(3, gen.AlphaString()),
		gen.AlphaString(),
	))

	properties.Property("unsatisfiable rule sets resolve to NoMatch", prop.ForAll(
		func(priorities []int, fields []string) bool {
			rules := make([]domain.QualificationRule, 0, len(priorities))
			for i, p := range priorities {
				field := "missing_" + fields[i%len(fields)]
				rules = append(rules, qual(fmt.Sprintf("r%d", i), p, domain.RuleFieldMatch, field, domain.OpIsPresent, "", domain.StageQualified))
			}
			res := NewResolver(nil).ResolveQualification(rules, snap(mapFields{"state": "TX"}))
			return res.NoMatch() && res.Intent == nil && len(res.Failures) == 0
		},
		gen.SliceOf(gen.IntRange(-100, 100)),
		gen.SliceOfN(2, gen.AlphaString()),
	))

	properties.Property("greater_than on a non-numeric field never matches", prop.ForAll(
		func(threshold int, junk string) bool {
			r := qual("gt", 1, domain.RuleFieldMatch, "experience", domain.OpGreaterThan, strconv.Itoa(threshold), domain.StageQualified)
			m, err := NewEvaluator(nil).EvaluateQualification(&r, snap(mapFields{"experience": "n/a" + junk}))
			return err == nil && !m.Matched
		},
		gen.Int(),
		gen.AlphaString(),
	))

	properties.Property("deactivating the winner and reactivating it restores the result", prop.ForAll(
		func(priorities []int, ops []int, values []string) bool {
			rules := noiseRules(priorities, ops, values)
			rules = append(rules, qual("winner", 100, domain.RuleFieldMatch, "email", domain.OpIsPresent, "", domain.StageMatched))
			s := snap(mapFields{"email": "a@b.co", "state": "TX"})
			r := NewResolver(nil)

			before := r.ResolveQualification(rules, s)
			rules[len(rules)-1].Active = false
			during := r.ResolveQualification(rules, s)
			rules[len(rules)-1].Active = true
			after := r.ResolveQualification(rules, s)
			return before.RuleID == "winner" && during.RuleID != "winner" && after.RuleID == before.RuleID
		},
		gen.SliceOf(gen.IntRange(0, 99)),
		gen.SliceOfN(3, gen.IntRange(0, 5)),
		gen.SliceOfN(3, gen.AlphaString()),
	))

	properties.Property("contains matches when any phrase is present", prop.ForAll(
		func(prefix, suffix string, pick bool) bool {
			phrases := []string{"yes", "sure"}
			word := phrases[0]
			if pick {
				word = phrases[1]
			}
			s := withResponse(snap(nil), prefix+" "+word+" "+suffix)
			m, err := NewEvaluator(nil).EvaluateCondition(context.Background(), cond(domain.CondResponseContains, phrases...), s)
			return err == nil && m.Matched
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
