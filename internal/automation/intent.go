package automation

import (
	"strings"

	"github.com/ignite/leadflow/internal/domain"
)

// IntentKind tags an Intent variant.
type IntentKind string

const (
	KindEndCampaign       IntentKind = "end_campaign"
	KindAdvanceToNextStep IntentKind = "advance_to_next_step"
	KindChangeStage       IntentKind = "change_stage"
	KindChangeCampaign    IntentKind = "change_campaign"
	KindGenerateAIReply   IntentKind = "generate_ai_reply"
	KindEscalateToHuman   IntentKind = "escalate_to_human"
	KindNotify            IntentKind = "notify"
	KindMarkHot           IntentKind = "mark_hot"
)

// Intent is what a matched rule asks the caller to do. The engine never
// performs an intent itself. The set of variants is closed: only the types in
// this file implement it.
type Intent interface {
	Kind() IntentKind
	isIntent()
}

type (
	// EndCampaign stops the lead's campaign.
	EndCampaign struct{}
	// AdvanceToNextStep moves the lead to the campaign's next step.
	AdvanceToNextStep struct{}
	// ChangeStage moves the lead to another pipeline stage.
	ChangeStage struct{ Stage string }
	// ChangeCampaign enrolls the lead in another campaign.
	ChangeCampaign struct{ CampaignID string }
	// GenerateAIReply asks the AI responder for a reply. PromptOverride, when
	// set, is a literal follow-up message to send instead.
	GenerateAIReply struct{ PromptOverride string }
	// EscalateToHuman hands the conversation to staff.
	EscalateToHuman struct{}
	// Notify alerts the client over Channel.
	Notify struct{ Channel string }
	// MarkHot flags the lead as hot.
	MarkHot struct{}
)

func (EndCampaign) Kind() IntentKind       { return KindEndCampaign }
func (AdvanceToNextStep) Kind() IntentKind { return KindAdvanceToNextStep }
func (ChangeStage) Kind() IntentKind       { return KindChangeStage }
func (ChangeCampaign) Kind() IntentKind    { return KindChangeCampaign }
func (GenerateAIReply) Kind() IntentKind   { return KindGenerateAIReply }
func (EscalateToHuman) Kind() IntentKind   { return KindEscalateToHuman }
func (Notify) Kind() IntentKind            { return KindNotify }
func (MarkHot) Kind() IntentKind           { return KindMarkHot }

func (EndCampaign) isIntent()       {}
func (AdvanceToNextStep) isIntent() {}
func (ChangeStage) isIntent()       {}
func (ChangeCampaign) isIntent()    {}
func (GenerateAIReply) isIntent()   {}
func (EscalateToHuman) isIntent()   {}
func (Notify) isIntent()            {}
func (MarkHot) isIntent()           {}

// Dispatch maps a matched rule's action fields to an intent.
func Dispatch(action domain.ActionType, value string) (Intent, error) {
	value = strings.TrimSpace(value)
	switch action {
	case domain.ActionEnd:
		return EndCampaign{}, nil
	case domain.ActionProceed:
		return AdvanceToNextStep{}, nil
	case domain.ActionMoveToStage:
		if value == "" {
			return nil, &domain.ValidationError{Field: "action_value", Message: "stage is required for move_to_stage"}
		}
		return ChangeStage{Stage: value}, nil
	case domain.ActionMoveToCampaign:
		if value == "" {
			return nil, &domain.ValidationError{Field: "action_value", Message: "campaign is required for move_to_campaign"}
		}
		return ChangeCampaign{CampaignID: value}, nil
	case domain.ActionAIRespond:
		return GenerateAIReply{PromptOverride: value}, nil
	case domain.ActionEscalateToHuman:
		return EscalateToHuman{}, nil
	case domain.ActionSendNotification:
		ch := value
		if ch == "" {
			ch = domain.ChannelEmail
		}
		return Notify{Channel: ch}, nil
	case domain.ActionMarkHot:
		return MarkHot{}, nil
	}
	return nil, &domain.UnknownEnumError{Kind: "action_type", Value: string(action)}
}

// DispatchQualification maps a matched qualification rule to its intent.
func DispatchQualification(r *domain.QualificationRule) Intent {
	return ChangeStage{Stage: r.TargetStage}
}

// IntentView is the JSON form of an intent.
type IntentView struct {
	Kind       IntentKind `json:"kind"`
	Stage      string     `json:"stage,omitempty"`
	CampaignID string     `json:"campaign_id,omitempty"`
	Message    string     `json:"message,omitempty"`
	Channel    string     `json:"channel,omitempty"`
}

// View flattens an intent for serialization. A nil intent yields nil.
func View(i Intent) *IntentView {
	if i == nil {
		return nil
	}
	v := &IntentView{Kind: i.Kind()}
	switch t := i.(type) {
	case ChangeStage:
		v.Stage = t.Stage
	case ChangeCampaign:
		v.CampaignID = t.CampaignID
	case GenerateAIReply:
		v.Message = t.PromptOverride
	case Notify:
		v.Channel = t.Channel
	}
	return v
}
