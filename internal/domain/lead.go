package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Built-in lead field names resolvable by rules.
const (
	FieldFirstName   = "first_name"
	FieldLastName    = "last_name"
	FieldName        = "name"
	FieldEmail       = "email"
	FieldPhone       = "phone"
	FieldState       = "state"
	FieldCity        = "city"
	FieldLicenseType = "license_type"
	FieldExperience  = "experience"
	FieldScore       = ScoreField
	FieldSource      = "source"
	FieldStage       = "stage"
	FieldHot         = "hot"
)

// BuiltinFields lists every built-in lead attribute.
var BuiltinFields = []string{
	FieldFirstName, FieldLastName, FieldName, FieldEmail, FieldPhone, FieldState, FieldCity,
	FieldLicenseType, FieldExperience, FieldScore, FieldSource, FieldStage, FieldHot,
}

// IsBuiltinField reports whether name is a built-in lead attribute.
func IsBuiltinField(name string) bool {
	for _, f := range BuiltinFields {
		if f == name {
			return true
		}
	}
	return false
}

// Lead is a recruit or prospect moving through a pipeline.
type Lead struct {
	ID           string         `json:"id" db:"id"`
	CampaignID   string         `json:"campaign_id,omitempty" db:"campaign_id"`
	ClientID     string         `json:"client_id,omitempty" db:"client_id"`
	Pipeline     Pipeline       `json:"pipeline" db:"pipeline"`
	Stage        string         `json:"stage" db:"stage"`
	FirstName    string         `json:"first_name" db:"first_name"`
	LastName     string         `json:"last_name" db:"last_name"`
	Email        string         `json:"email" db:"email"`
	Phone        string         `json:"phone" db:"phone"`
	State        string         `json:"state" db:"state"`
	City         string         `json:"city" db:"city"`
	LicenseType  string         `json:"license_type" db:"license_type"`
	Experience   *int           `json:"experience,omitempty" db:"experience"`
	Score        *int           `json:"score,omitempty" db:"score"`
	Source       string         `json:"source" db:"source"`
	Hot          bool           `json:"hot" db:"hot"`
	CustomFields map[string]any `json:"custom_fields,omitempty" db:"custom_fields"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

// FullName joins first and last name.
func (l *Lead) FullName() string {
	return strings.TrimSpace(l.FirstName + " " + l.LastName)
}

// builtin returns the string form of a built-in attribute. Unset optional
// values report absent.
func (l *Lead) builtin(name string) (string, bool) {
	switch name {
	case FieldFirstName:
		return l.FirstName, true
	case FieldLastName:
		return l.LastName, true
	case FieldName:
		return l.FullName(), true
	case FieldEmail:
		return l.Email, true
	case FieldPhone:
		return l.Phone, true
	case FieldState:
		return l.State, true
	case FieldCity:
		return l.City, true
	case FieldLicenseType:
		return l.LicenseType, true
	case FieldExperience:
		if l.Experience == nil {
			return "", false
		}
		return strconv.Itoa(*l.Experience), true
	case FieldScore:
		if l.Score == nil {
			return "", false
		}
		return strconv.Itoa(*l.Score), true
	case FieldSource:
		return l.Source, true
	case FieldStage:
		return l.Stage, true
	case FieldHot:
		return strconv.FormatBool(l.Hot), true
	}
	return "", false
}

// CustomFieldRegistry is the set of custom-field names a client registered.
type CustomFieldRegistry map[string]struct{}

// NewCustomFieldRegistry builds a registry from field names.
func NewCustomFieldRegistry(names ...string) CustomFieldRegistry {
	r := make(CustomFieldRegistry, len(names))
	for _, n := range names {
		r[n] = struct{}{}
	}
	return r
}

// Has reports whether name is registered.
func (r CustomFieldRegistry) Has(name string) bool {
	_, ok := r[name]
	return ok
}

// LeadFields resolves rule field names against a lead. Built-ins are always
// resolvable; custom fields resolve only when registered, or unconditionally
// when Registry is nil.
type LeadFields struct {
	Lead     *Lead
	Registry CustomFieldRegistry
}

// Lookup returns the string value of the named field.
func (f LeadFields) Lookup(name string) (string, bool) {
	if f.Lead == nil {
		return "", false
	}
	if IsBuiltinField(name) {
		return f.Lead.builtin(name)
	}
	if f.Registry != nil && !f.Registry.Has(name) {
		return "", false
	}
	v, ok := f.Lead.CustomFields[name]
	if !ok || v == nil {
		return "", false
	}
	return stringify(v), true
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// Conversation is the messaging state between the system and one lead.
type Conversation struct {
	LeadID         string     `json:"lead_id" db:"lead_id"`
	CampaignID     string     `json:"campaign_id,omitempty" db:"campaign_id"`
	CurrentStepID  string     `json:"current_step_id,omitempty" db:"current_step_id"`
	MessageCount   int        `json:"message_count" db:"message_count"`
	LastInboundAt  *time.Time `json:"last_inbound_at,omitempty" db:"last_inbound_at"`
	LastOutboundAt *time.Time `json:"last_outbound_at,omitempty" db:"last_outbound_at"`
	LastResponse   *string    `json:"last_response,omitempty" db:"last_response"`
}

// EnrollmentStatus enumerates the lifecycle of a lead in a campaign.
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentEnded     EnrollmentStatus = "ended"
	EnrollmentEscalated EnrollmentStatus = "escalated"
)

// Enrollment tracks a lead's position in a campaign's step sequence.
type Enrollment struct {
	ID         string           `json:"id" db:"id"`
	LeadID     string           `json:"lead_id" db:"lead_id"`
	CampaignID string           `json:"campaign_id" db:"campaign_id"`
	StepIndex  int              `json:"step_index" db:"step_index"`
	Status     EnrollmentStatus `json:"status" db:"status"`
	AIEnabled  bool             `json:"ai_enabled" db:"ai_enabled"`
	UpdatedAt  time.Time        `json:"updated_at" db:"updated_at"`
}

// Client is a brokerage or team that recruits through the CRM. Notifications
// for its leads go to its contact email or phone.
type Client struct {
	ID    string `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Email string `json:"email" db:"email"`
	Phone string `json:"phone" db:"phone"`
}

// CampaignStep is one message in a campaign's drip sequence.
type CampaignStep struct {
	ID         string `json:"id" db:"id"`
	CampaignID string `json:"campaign_id" db:"campaign_id"`
	StepOrder  int    `json:"step_order" db:"step_order"`
	Channel    string `json:"channel" db:"channel"`
	Subject    string `json:"subject,omitempty" db:"subject"`
	Body       string `json:"body" db:"body"`
}
