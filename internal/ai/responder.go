package ai

import (
	"context"
	"fmt"
	"strings"
)

const responderSystem = `You write short, friendly SMS-style replies on behalf of a brokerage recruiter.
Keep replies under 320 characters, never invent facts about compensation, and end with a question that moves the conversation toward a call.
Return only the reply text.`

// ReplyRequest is the context for one AI-written reply.
type ReplyRequest struct {
	LeadName     string
	ClientName   string
	LastResponse string
	// Guidance is optional extra instruction from the rule.
	Guidance string
}

// Responder drafts conversational replies.
type Responder struct {
	model *Model
}

// NewResponder creates a responder on model.
func NewResponder(model *Model) *Responder {
	return &Responder{model: model}
}

// Reply drafts a reply to the lead's latest message.
func (r *Responder) Reply(ctx context.Context, req ReplyRequest) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Recruiting for: %s\n", fallback(req.ClientName, "our brokerage"))
	fmt.Fprintf(&b, "Lead: %s\n", fallback(req.LeadName, "the lead"))
	fmt.Fprintf(&b, "Their latest message: %q\n", req.LastResponse)
	if g := strings.TrimSpace(req.Guidance); g != "" {
		fmt.Fprintf(&b, "Guidance: %s\n", g)
	}
	b.WriteString("Write the reply.")
	return r.model.Complete(ctx, responderSystem, b.String(), 300, 0.7)
}

func fallback(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
