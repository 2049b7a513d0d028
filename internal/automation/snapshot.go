package automation

import (
	"strings"
	"time"

	"github.com/ignite/leadflow/internal/domain"
)

// FieldSource resolves a rule field name to the lead's current value.
// Implementations report absent for null or unregistered fields.
type FieldSource interface {
	Lookup(name string) (string, bool)
}

// Snapshot is the lead/conversation state a rule set is evaluated against.
// It is captured once per triggering event and never mutated by the engine.
type Snapshot struct {
	LeadID         string
	Fields         FieldSource
	Stage          string
	MessageCount   int
	LatestResponse *string
	LastInboundAt  *time.Time
	LastOutboundAt *time.Time
	LeadCreatedAt  time.Time
	// Now is the evaluation clock. Zero means time.Now().
	Now time.Time
}

// NewSnapshot builds a snapshot from a lead, its conversation (which may be
// nil) and the client's custom-field registry.
func NewSnapshot(lead *domain.Lead, conv *domain.Conversation, registry domain.CustomFieldRegistry, now time.Time) Snapshot {
	s := Snapshot{Now: now}
	if lead != nil {
		s.LeadID = lead.ID
		s.Stage = lead.Stage
		s.LeadCreatedAt = lead.CreatedAt
		s.Fields = domain.LeadFields{Lead: lead, Registry: registry}
	}
	if conv != nil {
		s.MessageCount = conv.MessageCount
		s.LatestResponse = conv.LastResponse
		s.LastInboundAt = conv.LastInboundAt
		s.LastOutboundAt = conv.LastOutboundAt
	}
	return s
}

func (s Snapshot) clock() time.Time {
	if s.Now.IsZero() {
		return time.Now()
	}
	return s.Now
}

// Field returns a non-empty field value.
func (s Snapshot) Field(name string) (string, bool) {
	if s.Fields == nil {
		return "", false
	}
	v, ok := s.Fields.Lookup(name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Response returns the latest inbound text if there is one.
func (s Snapshot) Response() (string, bool) {
	if s.LatestResponse == nil || strings.TrimSpace(*s.LatestResponse) == "" {
		return "", false
	}
	return *s.LatestResponse, true
}

// sinceInbound is the time elapsed since the lead last wrote, falling back to
// lead creation when the lead never replied.
func (s Snapshot) sinceInbound() (time.Duration, bool) {
	ref := s.LeadCreatedAt
	if s.LastInboundAt != nil {
		ref = *s.LastInboundAt
	}
	if ref.IsZero() {
		return 0, false
	}
	return s.clock().Sub(ref), true
}

// awaitingReply returns how long the last outbound message has gone
// unanswered.
func (s Snapshot) awaitingReply() (time.Duration, bool) {
	if s.LastOutboundAt == nil {
		return 0, false
	}
	if s.LastInboundAt != nil && !s.LastInboundAt.Before(*s.LastOutboundAt) {
		return 0, false
	}
	return s.clock().Sub(*s.LastOutboundAt), true
}

// WithStage returns a copy of s at a different pipeline stage.
func (s Snapshot) WithStage(stage string) Snapshot {
	s.Stage = stage
	return s
}
