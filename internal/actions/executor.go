// Package actions carries out the intents produced by the automation engine:
// stage and campaign moves, step sends, AI replies, escalations and client
// notifications.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ignite/leadflow/internal/ai"
	"github.com/ignite/leadflow/internal/automation"
	"github.com/ignite/leadflow/internal/domain"
	"github.com/ignite/leadflow/internal/notify"
	"github.com/ignite/leadflow/internal/template"
)

// ErrNoChannel is returned when a lead has no address for any channel.
var ErrNoChannel = errors.New("lead has no email or phone")

// LeadStore is the lead state the executor reads and writes.
type LeadStore interface {
	Conversation(ctx context.Context, leadID string) (*domain.Conversation, error)
	Client(ctx context.Context, id string) (*domain.Client, error)
	UpdateStage(ctx context.Context, leadID, stage string) error
	MarkHot(ctx context.Context, leadID string) error
	RecordOutbound(ctx context.Context, leadID string, at time.Time) error
}

// Enrollments moves a lead through campaign steps.
type Enrollments interface {
	NextStep(ctx context.Context, leadID string) (*domain.CampaignStep, error)
	Advance(ctx context.Context, leadID string) (*domain.CampaignStep, error)
	End(ctx context.Context, leadID string) error
	Escalate(ctx context.Context, leadID string) error
	Enroll(ctx context.Context, leadID, campaignID string) (*domain.CampaignStep, error)
	AIEnabled(ctx context.Context, leadID string) (bool, error)
}

// Notifier sends a message over a named channel.
type Notifier interface {
	Send(ctx context.Context, channel string, msg notify.Message) (string, error)
}

// Replier drafts AI replies.
type Replier interface {
	Reply(ctx context.Context, req ai.ReplyRequest) (string, error)
}

// Executor implements automation.IntentExecutor.
type Executor struct {
	leads       LeadStore
	enrollments Enrollments
	notifier    Notifier
	replier     Replier
	renderer    *template.Renderer
	now         func() time.Time
}

var _ automation.IntentExecutor = (*Executor)(nil)

// NewExecutor creates an executor. AI replies are skipped until SetReplier.
func NewExecutor(leads LeadStore, enrollments Enrollments, notifier Notifier) *Executor {
	return &Executor{
		leads:       leads,
		enrollments: enrollments,
		notifier:    notifier,
		renderer:    template.NewRenderer(),
		now:         time.Now,
	}
}

// SetReplier enables generate_ai_reply intents.
func (x *Executor) SetReplier(r Replier) { x.replier = r }

// SetClock overrides the outbound timestamp source.
func (x *Executor) SetClock(now func() time.Time) { x.now = now }

func (x *Executor) Execute(ctx context.Context, ev automation.Event, lead *domain.Lead, intent automation.Intent) error {
	switch in := intent.(type) {
	case automation.ChangeStage:
		return x.leads.UpdateStage(ctx, lead.ID, in.Stage)

	case automation.MarkHot:
		return x.leads.MarkHot(ctx, lead.ID)

	case automation.EndCampaign:
		return ignoreMissing(x.enrollments.End(ctx, lead.ID), "end campaign", lead.ID)

	case automation.AdvanceToNextStep:
		// The enrollment moves only after the step is sent, so a retried
		// event resends the same step instead of skipping it.
		next, err := x.enrollments.NextStep(ctx, lead.ID)
		if err != nil {
			return ignoreMissing(err, "advance", lead.ID)
		}
		if next != nil {
			if err := x.sendStep(ctx, lead, next); err != nil {
				return err
			}
		}
		if _, err := x.enrollments.Advance(ctx, lead.ID); err != nil {
			return ignoreMissing(err, "advance", lead.ID)
		}
		if next == nil {
			log.Printf("[Actions] lead=%s reached the end of its campaign", lead.ID)
		}
		return nil

	case automation.ChangeCampaign:
		first, err := x.enrollments.Enroll(ctx, lead.ID, in.CampaignID)
		if err != nil {
			return fmt.Errorf("enroll in campaign %s: %w", in.CampaignID, err)
		}
		lead.CampaignID = in.CampaignID
		return x.sendStep(ctx, lead, first)

	case automation.GenerateAIReply:
		return x.reply(ctx, lead, in.PromptOverride)

	case automation.EscalateToHuman:
		if err := ignoreMissing(x.enrollments.Escalate(ctx, lead.ID), "escalate", lead.ID); err != nil {
			return err
		}
		return x.notifyClient(ctx, lead, domain.ChannelEmail,
			"Lead needs a human: {lead_name}",
			"{lead_name} ({lead_email} {lead_phone}) was handed off from automation and is waiting for a reply.")

	case automation.Notify:
		return x.notifyClient(ctx, lead, in.Channel,
			"Automation alert: {lead_name}",
			"{lead_name} matched an automation rule on "+string(ev.Kind)+". Stage: {lead_stage}.")
	}
	return &domain.UnknownEnumError{Kind: "intent", Value: string(intent.Kind())}
}

func ignoreMissing(err error, op, leadID string) error {
	if errors.Is(err, domain.ErrNotFound) {
		log.Printf("[Actions] %s: lead=%s has no active enrollment", op, leadID)
		return nil
	}
	return err
}

func (x *Executor) client(ctx context.Context, lead *domain.Lead) (*domain.Client, error) {
	if lead.ClientID == "" {
		return nil, nil
	}
	c, err := x.leads.Client(ctx, lead.ClientID)
	if err != nil {
		return nil, fmt.Errorf("load client: %w", err)
	}
	return c, nil
}

// leadAddress picks the recipient for channel, preferring SMS when the
// channel is unspecified.
func leadAddress(lead *domain.Lead, channel string) (string, string, error) {
	switch channel {
	case domain.ChannelSMS:
		if lead.Phone != "" {
			return channel, lead.Phone, nil
		}
	case domain.ChannelEmail:
		if lead.Email != "" {
			return channel, lead.Email, nil
		}
	default:
		if lead.Phone != "" {
			return domain.ChannelSMS, lead.Phone, nil
		}
		if lead.Email != "" {
			return domain.ChannelEmail, lead.Email, nil
		}
	}
	return "", "", ErrNoChannel
}

// sendToLead renders and sends one message. Literal bodies (AI drafts and
// configured replies) get plain token substitution instead of Liquid.
func (x *Executor) sendToLead(ctx context.Context, lead *domain.Lead, channel, subject, body string, literal bool) error {
	client, err := x.client(ctx, lead)
	if err != nil {
		return err
	}
	ch, to, err := leadAddress(lead, channel)
	if err != nil {
		return err
	}
	bindings := template.Bindings(lead, client)
	if literal {
		subject = template.RenderText(subject, bindings)
		body = template.RenderText(body, bindings)
	} else {
		if subject, err = x.renderer.Render(subject, bindings); err != nil {
			return err
		}
		if body, err = x.renderer.Render(body, bindings); err != nil {
			return err
		}
	}
	msg := notify.Message{To: to, Subject: subject, Body: body, Tags: map[string]string{"lead_id": lead.ID}}
	if _, err := x.notifier.Send(ctx, ch, msg); err != nil {
		return fmt.Errorf("send %s to lead: %w", ch, err)
	}
	return x.leads.RecordOutbound(ctx, lead.ID, x.now())
}

func (x *Executor) sendStep(ctx context.Context, lead *domain.Lead, step *domain.CampaignStep) error {
	return x.sendToLead(ctx, lead, step.Channel, step.Subject, step.Body, false)
}

func (x *Executor) reply(ctx context.Context, lead *domain.Lead, override string) error {
	if override != "" {
		return x.sendToLead(ctx, lead, "", "", override, true)
	}
	if x.replier == nil {
		log.Printf("[Actions] lead=%s ai reply skipped: no responder configured", lead.ID)
		return nil
	}
	enabled, err := x.enrollments.AIEnabled(ctx, lead.ID)
	if err != nil {
		return err
	}
	if !enabled {
		log.Printf("[Actions] lead=%s ai reply skipped: ai disabled", lead.ID)
		return nil
	}
	conv, err := x.leads.Conversation(ctx, lead.ID)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	var last string
	if conv != nil && conv.LastResponse != nil {
		last = *conv.LastResponse
	}
	client, err := x.client(ctx, lead)
	if err != nil {
		return err
	}
	req := ai.ReplyRequest{LeadName: lead.FirstName, LastResponse: last}
	if client != nil {
		req.ClientName = client.Name
	}
	text, err := x.replier.Reply(ctx, req)
	if err != nil {
		return fmt.Errorf("draft ai reply: %w", err)
	}
	return x.sendToLead(ctx, lead, "", "", text, true)
}

func (x *Executor) notifyClient(ctx context.Context, lead *domain.Lead, channel, subject, body string) error {
	client, err := x.client(ctx, lead)
	if err != nil {
		return err
	}
	if client == nil {
		log.Printf("[Actions] lead=%s notification skipped: no client", lead.ID)
		return nil
	}
	if channel == "" {
		channel = domain.ChannelEmail
	}
	to := client.Email
	if channel == domain.ChannelSMS {
		to = client.Phone
	}
	bindings := template.Bindings(lead, client)
	if subject, err = x.renderer.Render(subject, bindings); err != nil {
		return err
	}
	if body, err = x.renderer.Render(body, bindings); err != nil {
		return err
	}
	if _, err := x.notifier.Send(ctx, channel, notify.Message{To: to, Subject: subject, Body: body,
		Tags: map[string]string{"lead_id": lead.ID, "client_id": client.ID}}); err != nil {
		return fmt.Errorf("notify client over %s: %w", channel, err)
	}
	return nil
}
