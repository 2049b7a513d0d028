package domain

import (
	"strings"
	"time"
)

// ConditionType is the IF half of a step condition or escalation rule.
type ConditionType string

const (
	CondResponseIsPresent      ConditionType = "response_is_present"
	CondResponseIs             ConditionType = "response_is"
	CondResponseIsNot          ConditionType = "response_is_not"
	CondResponseContains       ConditionType = "response_contains"
	CondResponseDoesNotContain ConditionType = "response_does_not_contain"
	CondNoResponseAfter        ConditionType = "no_response_after"
	CondLeadNoResponseAfter    ConditionType = "lead_no_response_after"
	CondMessageCountExceeds    ConditionType = "message_count_exceeds"
	CondStageIs                ConditionType = "stage_is"
	CondAIAnalyze              ConditionType = "ai_analyze"
)

// Valid reports whether c is a recognized condition type.
func (c ConditionType) Valid() bool {
	switch c {
	case CondResponseIsPresent, CondResponseIs, CondResponseIsNot, CondResponseContains,
		CondResponseDoesNotContain, CondNoResponseAfter, CondLeadNoResponseAfter,
		CondMessageCountExceeds, CondStageIs, CondAIAnalyze:
		return true
	}
	return false
}

// NeedsValues reports whether the condition matches against ConditionValues.
func (c ConditionType) NeedsValues() bool {
	switch c {
	case CondResponseIs, CondResponseIsNot, CondResponseContains, CondResponseDoesNotContain, CondStageIs:
		return true
	}
	return false
}

// NeedsTime reports whether the condition reads ConditionTimeValue.
func (c ConditionType) NeedsTime() bool {
	switch c {
	case CondNoResponseAfter, CondLeadNoResponseAfter, CondMessageCountExceeds:
		return true
	}
	return false
}

// TimeUnit scales ConditionTimeValue.
type TimeUnit string

const (
	UnitMinutes TimeUnit = "minutes"
	UnitHours   TimeUnit = "hours"
	UnitDays    TimeUnit = "days"
)

// Duration converts n units to a time.Duration.
func (u TimeUnit) Duration(n int) (time.Duration, bool) {
	switch u {
	case UnitMinutes:
		return time.Duration(n) * time.Minute, true
	case UnitHours:
		return time.Duration(n) * time.Hour, true
	case UnitDays:
		return time.Duration(n) * 24 * time.Hour, true
	}
	return 0, false
}

// ActionType is the THEN half of a step condition or escalation rule.
type ActionType string

const (
	ActionEnd              ActionType = "end"
	ActionProceed          ActionType = "proceed"
	ActionMoveToStage      ActionType = "move_to_stage"
	ActionMoveToCampaign   ActionType = "move_to_campaign"
	ActionAIRespond        ActionType = "ai_respond"
	ActionEscalateToHuman  ActionType = "escalate_to_human"
	ActionSendNotification ActionType = "send_notification"
	ActionMarkHot          ActionType = "mark_hot"
)

// Valid reports whether a is a recognized action type.
func (a ActionType) Valid() bool {
	switch a {
	case ActionEnd, ActionProceed, ActionMoveToStage, ActionMoveToCampaign, ActionAIRespond,
		ActionEscalateToHuman, ActionSendNotification, ActionMarkHot:
		return true
	}
	return false
}

// NeedsValue reports whether ActionValue is mandatory for the action.
func (a ActionType) NeedsValue() bool {
	return a == ActionMoveToStage || a == ActionMoveToCampaign
}

// Notification channels accepted as the action value of send_notification.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// IfThen is the condition/action shape shared by step conditions and
// escalation rules.
type IfThen struct {
	ConditionType      ConditionType `json:"condition_type" db:"condition_type"`
	ConditionValues    []string      `json:"condition_values" db:"condition_values"`
	ConditionTimeValue *int          `json:"condition_time_value,omitempty" db:"condition_time_value"`
	ConditionTimeUnit  TimeUnit      `json:"condition_time_unit,omitempty" db:"condition_time_unit"`
	// ThresholdCount overrides ConditionTimeValue for message_count_exceeds.
	ThresholdCount *int       `json:"threshold_count,omitempty" db:"threshold_count"`
	ActionType     ActionType `json:"action_type" db:"action_type"`
	ActionValue    string     `json:"action_value,omitempty" db:"action_value"`
	OrderIndex     int        `json:"order_index" db:"order_index"`
}

// MessageThreshold returns the count a message_count_exceeds condition
// compares against.
func (c *IfThen) MessageThreshold() (int, bool) {
	if c.ThresholdCount != nil {
		return *c.ThresholdCount, true
	}
	if c.ConditionTimeValue != nil {
		return *c.ConditionTimeValue, true
	}
	return 0, false
}

// Window returns the elapsed-time threshold of a no-response condition.
func (c *IfThen) Window() (time.Duration, bool) {
	if c.ConditionTimeValue == nil {
		return 0, false
	}
	return c.ConditionTimeUnit.Duration(*c.ConditionTimeValue)
}

// Validate checks the shared condition/action invariants.
func (c *IfThen) Validate() error {
	if !c.ConditionType.Valid() {
		return unknown("condition_type", string(c.ConditionType))
	}
	if !c.ActionType.Valid() {
		return unknown("action_type", string(c.ActionType))
	}
	if c.ConditionType.NeedsValues() && !hasNonBlank(c.ConditionValues) {
		return invalid("condition_values", "at least one value is required for "+string(c.ConditionType))
	}
	if c.ConditionType.NeedsTime() {
		if c.ConditionType == CondMessageCountExceeds {
			if _, ok := c.MessageThreshold(); !ok {
				return invalid("condition_time_value", "a count is required for "+string(c.ConditionType))
			}
		} else {
			if c.ConditionTimeValue == nil {
				return invalid("condition_time_value", "is required for "+string(c.ConditionType))
			}
			if _, ok := c.ConditionTimeUnit.Duration(0); !ok {
				return unknown("condition_time_unit", string(c.ConditionTimeUnit))
			}
		}
	}
	if c.ActionType.NeedsValue() && strings.TrimSpace(c.ActionValue) == "" {
		return invalid("action_value", "is required for "+string(c.ActionType))
	}
	if c.ActionType == ActionMoveToStage && !IsKnownStage(c.ActionValue) {
		return invalid("action_value", "unknown stage \""+c.ActionValue+"\"")
	}
	if c.ActionType == ActionSendNotification && c.ActionValue != "" &&
		c.ActionValue != ChannelEmail && c.ActionValue != ChannelSMS {
		return unknown("notification_channel", c.ActionValue)
	}
	return nil
}

func hasNonBlank(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// StepCondition is an IF-THEN rule attached to one messaging step. It has no
// active flag; a saved step condition is always evaluated.
type StepCondition struct {
	ID     string `json:"id,omitempty" db:"id"`
	StepID string `json:"step_id" db:"step_id"`
	IfThen
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Validate checks the step condition's invariants.
func (s *StepCondition) Validate() error {
	if s.StepID == "" {
		return invalid("step_id", "is required")
	}
	return s.IfThen.Validate()
}

// EscalationRule is a client-wide IF-THEN rule evaluated across all of the
// client's conversations.
type EscalationRule struct {
	ID       string `json:"id,omitempty" db:"id"`
	ClientID string `json:"client_id" db:"client_id"`
	Name     string `json:"name,omitempty" db:"name"`
	IfThen
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Validate checks the escalation rule's invariants.
func (e *EscalationRule) Validate() error {
	if e.ClientID == "" {
		return invalid("client_id", "is required")
	}
	return e.IfThen.Validate()
}
