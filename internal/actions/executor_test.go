package actions

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/leadflow/internal/ai"
	"github.com/ignite/leadflow/internal/automation"
	"github.com/ignite/leadflow/internal/domain"
	"github.com/ignite/leadflow/internal/notify"
)

var errMissing = fmt.Errorf("enrollment %w", domain.ErrNotFound)

type fakeLeads struct {
	conv     *domain.Conversation
	client   *domain.Client
	stage    string
	hot      bool
	outbound []time.Time
}

func (f *fakeLeads) Conversation(context.Context, string) (*domain.Conversation, error) {
	return f.conv, nil
}
func (f *fakeLeads) Client(context.Context, string) (*domain.Client, error) {
	return f.client, nil
}
func (f *fakeLeads) UpdateStage(_ context.Context, _, s string) error {
	f.stage = s
	return nil
}
func (f *fakeLeads) MarkHot(context.Context, string) error {
	f.hot = true
	return nil
}
func (f *fakeLeads) RecordOutbound(_ context.Context, _ string, at time.Time) error {
	f.outbound = append(f.outbound, at)
	return nil
}

type fakeEnrollments struct {
	next      *domain.CampaignStep
	first     *domain.CampaignStep
	err       error
	ai        bool
	ended     bool
	escalated bool
	enrolled  string
	advanced  int
}

func (f *fakeEnrollments) NextStep(context.Context, string) (*domain.CampaignStep, error) {
	return f.next, f.err
}
func (f *fakeEnrollments) Advance(context.Context, string) (*domain.CampaignStep, error) {
	f.advanced++
	return f.next, f.err
}
func (f *fakeEnrollments) End(context.Context, string) error {
	f.ended = true
	return f.err
}
func (f *fakeEnrollments) Escalate(context.Context, string) error {
	f.escalated = true
	return f.err
}
func (f *fakeEnrollments) Enroll(_ context.Context, _, c string) (*domain.CampaignStep, error) {
	f.enrolled = c
	return f.first, f.err
}
func (f *fakeEnrollments) AIEnabled(context.Context, string) (bool, error) {
	return f.ai, nil
}

type sent struct {
	channel string
	msg     notify.Message
}

type fakeNotifier struct {
	sent []sent
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, ch string, m notify.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, sent{ch, m})
	return "id", nil
}

type fakeReplier struct {
	req  ai.ReplyRequest
	text string
}

func (f *fakeReplier) Reply(_ context.Context, r ai.ReplyRequest) (string, error) {
	f.req = r
	if f.text != "" {
		return f.text, nil
	}
	return "Thanks {lead_first_name}, when can we talk?", nil
}

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	leads *fakeLeads
	enr   *fakeEnrollments
	notes *fakeNotifier
	x     *Executor
	lead  *domain.Lead
}

func newFixture() *fixture {
	f := &fixture{
		leads: &fakeLeads{client: &domain.Client{ID: "cl1", Name: "Summit Realty", Email: "owner@summit.com", Phone: "5550001111"}},
		enr:   &fakeEnrollments{},
		notes: &fakeNotifier{},
		lead:  &domain.Lead{ID: "l1", ClientID: "cl1", FirstName: "Ana", LastName: "Ruiz", Email: "ana@x.io", Phone: "5550102000", Stage: "new_recruit"},
	}
	f.x = NewExecutor(f.leads, f.enr, f.notes)
	f.x.SetClock(func() time.Time { return fixedNow })
	return f
}

func (f *fixture) exec(t *testing.T, in automation.Intent) error {
	t.Helper()
	ev := automation.Event{ID: "e1", Kind: automation.EventMessageReceived, LeadID: f.lead.ID}
	return f.x.Execute(context.Background(), ev, f.lead, in)
}

func TestChangeStageAndMarkHot(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.exec(t, automation.ChangeStage{Stage: "hot_recruit"}))
	require.NoError(t, f.exec(t, automation.MarkHot{}))
	assert.Equal(t, "hot_recruit", f.leads.stage)
	assert.True(t, f.leads.hot)
}

func TestAdvanceSendsRenderedStep(t *testing.T) {
	f := newFixture()
	f.enr.next = &domain.CampaignStep{ID: "s2", Channel: "email", Subject: "Hi {lead_first_name}", Body: "{client_name} would love to chat."}

	require.NoError(t, f.exec(t, automation.AdvanceToNextStep{}))
	require.Len(t, f.notes.sent, 1)
	got := f.notes.sent[0]
	assert.Equal(t, "email", got.channel)
	assert.Equal(t, "ana@x.io", got.msg.To)
	assert.Equal(t, "Hi Ana", got.msg.Subject)
	assert.Equal(t, "Summit Realty would love to chat.", got.msg.Body)
	assert.Equal(t, []time.Time{fixedNow}, f.leads.outbound)
	assert.Equal(t, 1, f.enr.advanced)
}

func TestAdvanceAfterFailedSendResendsSameStep(t *testing.T) {
	f := newFixture()
	f.enr.next = &domain.CampaignStep{ID: "s2", Channel: "sms", Body: "Step two"}
	f.notes.err = errors.New("gateway down")

	require.Error(t, f.exec(t, automation.AdvanceToNextStep{}))
	require.Error(t, f.exec(t, automation.AdvanceToNextStep{}))
	assert.Zero(t, f.enr.advanced)

	f.notes.err = nil
	require.NoError(t, f.exec(t, automation.AdvanceToNextStep{}))
	assert.Equal(t, 1, f.enr.advanced)
	require.Len(t, f.notes.sent, 1)
	assert.Equal(t, "Step two", f.notes.sent[0].msg.Body)
}

func TestAdvancePastEndSendsNothing(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.exec(t, automation.AdvanceToNextStep{}))
	assert.Empty(t, f.notes.sent)
	assert.Equal(t, 1, f.enr.advanced)
}

func TestEndWithoutEnrollmentIsNoop(t *testing.T) {
	f := newFixture()
	f.enr.err = errMissing
	require.NoError(t, f.exec(t, automation.EndCampaign{}))
	assert.True(t, f.enr.ended)

	f.enr.err = errors.New("db down")
	assert.Error(t, f.exec(t, automation.EndCampaign{}))
}

func TestChangeCampaignSendsFirstStep(t *testing.T) {
	f := newFixture()
	f.enr.first = &domain.CampaignStep{ID: "n1", Channel: "sms", Body: "Welcome {lead_first_name}"}
	require.NoError(t, f.exec(t, automation.ChangeCampaign{CampaignID: "c2"}))
	assert.Equal(t, "c2", f.enr.enrolled)
	assert.Equal(t, "c2", f.lead.CampaignID)
	require.Len(t, f.notes.sent, 1)
	assert.Equal(t, "sms", f.notes.sent[0].channel)
	assert.Equal(t, "5550102000", f.notes.sent[0].msg.To)
	assert.Equal(t, "Welcome Ana", f.notes.sent[0].msg.Body)
}

func TestEscalateNotifiesClient(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.exec(t, automation.EscalateToHuman{}))
	assert.True(t, f.enr.escalated)
	require.Len(t, f.notes.sent, 1)
	assert.Equal(t, "owner@summit.com", f.notes.sent[0].msg.To)
	assert.Equal(t, "Lead needs a human: Ana Ruiz", f.notes.sent[0].msg.Subject)
}

func TestNotifyOverSMS(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.exec(t, automation.Notify{Channel: "sms"}))
	require.Len(t, f.notes.sent, 1)
	assert.Equal(t, "5550001111", f.notes.sent[0].msg.To)
	assert.Contains(t, f.notes.sent[0].msg.Body, "message_received")

	f.lead.ClientID = ""
	require.NoError(t, f.exec(t, automation.Notify{Channel: "email"}))
	assert.Len(t, f.notes.sent, 1)
}

func TestGenerateAIReply(t *testing.T) {
	f := newFixture()
	resp := "tell me more"
	f.leads.conv = &domain.Conversation{LeadID: "l1", LastResponse: &resp}

	require.NoError(t, f.exec(t, automation.GenerateAIReply{}))
	assert.Empty(t, f.notes.sent, "no replier configured")

	r := &fakeReplier{}
	f.x.SetReplier(r)
	require.NoError(t, f.exec(t, automation.GenerateAIReply{}))
	assert.Empty(t, f.notes.sent, "ai disabled on enrollment")

	f.enr.ai = true
	require.NoError(t, f.exec(t, automation.GenerateAIReply{}))
	require.Len(t, f.notes.sent, 1)
	assert.Equal(t, "tell me more", r.req.LastResponse)
	assert.Equal(t, "Summit Realty", r.req.ClientName)
	assert.Equal(t, "Thanks Ana, when can we talk?", f.notes.sent[0].msg.Body)
	assert.Equal(t, "sms", f.notes.sent[0].channel)
}

func TestGenerateAIReplyOverrideSkipsModel(t *testing.T) {
	f := newFixture()
	r := &fakeReplier{}
	f.x.SetReplier(r)
	require.NoError(t, f.exec(t, automation.GenerateAIReply{PromptOverride: "Following up, {lead_first_name}!"}))
	require.Len(t, f.notes.sent, 1)
	assert.Equal(t, "Following up, Ana!", f.notes.sent[0].msg.Body)
	assert.Empty(t, r.req.LastResponse)
}

func TestAIReplyWithTemplateSyntaxIsSentAsWritten(t *testing.T) {
	f := newFixture()
	f.enr.ai = true
	f.x.SetReplier(&fakeReplier{text: "Use {% raw %} or {{ braces }} as you like, {lead_first_name}"})

	require.NoError(t, f.exec(t, automation.GenerateAIReply{}))
	require.Len(t, f.notes.sent, 1)
	assert.Equal(t, "Use {% raw %} or {{ braces }} as you like, Ana", f.notes.sent[0].msg.Body)

	require.NoError(t, f.exec(t, automation.GenerateAIReply{PromptOverride: "{% if x %}unterminated {lead_first_name}"}))
	require.Len(t, f.notes.sent, 2)
	assert.Equal(t, "{% if x %}unterminated Ana", f.notes.sent[1].msg.Body)
}

func TestSendFailuresPropagate(t *testing.T) {
	f := newFixture()
	f.notes.err = errors.New("gateway down")
	f.enr.next = &domain.CampaignStep{Channel: "sms", Body: "x"}
	assert.ErrorContains(t, f.exec(t, automation.AdvanceToNextStep{}), "gateway down")
	assert.Empty(t, f.leads.outbound)

	f = newFixture()
	f.lead.Phone, f.lead.Email = "", ""
	f.enr.next = &domain.CampaignStep{Body: "x"}
	assert.ErrorIs(t, f.exec(t, automation.AdvanceToNextStep{}), ErrNoChannel)
}
