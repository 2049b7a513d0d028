package automation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ignite/leadflow/internal/domain"
	"github.com/ignite/leadflow/internal/pkg/distlock"
)

// ErrLeadBusy is returned when another worker holds the lead's lock.
var ErrLeadBusy = errors.New("lead is locked by another worker")

// EventKind classifies what triggered an evaluation.
type EventKind string

const (
	EventMessageReceived EventKind = "message_received"
	EventTimerFired      EventKind = "timer_fired"
	EventFormSubmitted   EventKind = "form_submitted"
)

// Valid reports whether k is a recognized event kind.
func (k EventKind) Valid() bool {
	switch k {
	case EventMessageReceived, EventTimerFired, EventFormSubmitted:
		return true
	}
	return false
}

// Event is one trigger for rule evaluation. ID identifies the event for
// fired-once bookkeeping; retries of the same event must reuse it.
type Event struct {
	ID         string    `json:"id"`
	Kind       EventKind `json:"kind"`
	LeadID     string    `json:"lead_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// TimerEventID is the stable ID of the timer event for a conversation's
// current unanswered outbound message.
func TimerEventID(leadID string, lastOutbound time.Time) string {
	return fmt.Sprintf("timer:%s:%d", leadID, lastOutbound.Unix())
}

// RuleSource loads rule sets for evaluation.
type RuleSource interface {
	QualificationRules(ctx context.Context, campaignID string) ([]domain.QualificationRule, error)
	StepConditions(ctx context.Context, stepID string) ([]domain.StepCondition, error)
	EscalationRules(ctx context.Context, clientID string) ([]domain.EscalationRule, error)
}

// StateSource loads the lead state a snapshot is built from. Conversation
// returns nil, nil when the lead has none.
type StateSource interface {
	Lead(ctx context.Context, id string) (*domain.Lead, error)
	Conversation(ctx context.Context, leadID string) (*domain.Conversation, error)
	CustomFields(ctx context.Context, clientID string) (domain.CustomFieldRegistry, error)
}

// DueSource lists conversations waiting on a reply, oldest outbound first.
type DueSource interface {
	DueConversations(ctx context.Context, limit int) ([]domain.Conversation, error)
}

// IntentExecutor carries out an intent's side effects.
type IntentExecutor interface {
	Execute(ctx context.Context, ev Event, lead *domain.Lead, intent Intent) error
}

// FiredGuard records that a rule fired for a lead on an event. FirstFire
// returns false when the triple was already recorded.
type FiredGuard interface {
	FirstFire(ctx context.Context, ruleID, leadID, eventID string) (bool, error)
}

type forgetter interface {
	Forget(ctx context.Context, ruleID, leadID, eventID string) error
}

// LockFactory returns a lock for key.
type LockFactory func(key string) distlock.DistLock

// Outcome summarizes one HandleEvent call.
type Outcome struct {
	Event         Event
	Qualification *Resolution
	Step          *Resolution
	Escalation    *Resolution
	Executed      []Intent
	Skipped       []string
}

// Failures returns every rule failure across the resolutions.
func (o *Outcome) Failures() []RuleFailure {
	var out []RuleFailure
	for _, r := range []*Resolution{o.Qualification, o.Step, o.Escalation} {
		if r != nil {
			out = append(out, r.Failures...)
		}
	}
	return out
}

// Engine runs rule sets against leads as events arrive and on a timer for
// conversations awaiting a reply.
type Engine struct {
	rules    RuleSource
	state    StateSource
	executor IntentExecutor
	resolver *Resolver

	due       DueSource
	guard     FiredGuard
	locks     LockFactory
	interval  time.Duration
	batchSize int
	now       func() time.Time

	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	lastRunAt time.Time
	healthy   bool
}

// NewEngine creates an engine. Due-timer processing, the fired-once guard and
// per-lead locking are disabled until configured with the setters.
func NewEngine(rules RuleSource, state StateSource, executor IntentExecutor, resolver *Resolver) *Engine {
	if resolver == nil {
		resolver = NewResolver(nil)
	}
	return &Engine{
		rules:     rules,
		state:     state,
		executor:  executor,
		resolver:  resolver,
		interval:  time.Minute,
		batchSize: 100,
		now:       time.Now,
		healthy:   true,
	}
}

// SetDueSource enables timer processing in Start.
func (e *Engine) SetDueSource(d DueSource) { e.due = d }

// SetGuard enables fired-once bookkeeping.
func (e *Engine) SetGuard(g FiredGuard) { e.guard = g }

// SetLockFactory enables per-lead locking.
func (e *Engine) SetLockFactory(f LockFactory) { e.locks = f }

func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// SetSchedule sets the tick interval and the number of due conversations
// processed per tick. Non-positive values keep the current setting.
func (e *Engine) SetSchedule(interval time.Duration, batchSize int) {
	if interval > 0 {
		e.interval = interval
	}
	if batchSize > 0 {
		e.batchSize = batchSize
	}
}

// Start begins the tick loop. It is a no-op without a due source.
func (e *Engine) Start() {
	if e.due == nil {
		return
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	go func() {
		log.Println("[AutomationEngine] Starting automation engine")
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-e.ctx.Done():
				log.Println("[AutomationEngine] Stopped")
				return
			case <-ticker.C:
				e.ProcessDue(e.ctx)
			}
		}
	}()
}

// Stop halts the tick loop.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) IsHealthy() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.healthy
}

func (e *Engine) LastRunAt() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastRunAt
}

// ProcessDue fires a timer event for each conversation awaiting a reply and
// returns how many were handled.
func (e *Engine) ProcessDue(ctx context.Context) int {
	convs, err := e.due.DueConversations(ctx, e.batchSize)
	e.mu.Lock()
	e.lastRunAt = e.now()
	e.healthy = err == nil
	e.mu.Unlock()
	if err != nil {
		log.Printf("[AutomationEngine] list due conversations error: %v", err)
		return 0
	}

	handled := 0
	for _, c := range convs {
		if ctx.Err() != nil {
			break
		}
		if c.LastOutboundAt == nil {
			continue
		}
		ev := Event{
			ID:         TimerEventID(c.LeadID, *c.LastOutboundAt),
			Kind:       EventTimerFired,
			LeadID:     c.LeadID,
			OccurredAt: e.now(),
		}
		if _, err := e.HandleEvent(ctx, ev); err != nil {
			if !errors.Is(err, ErrLeadBusy) {
				log.Printf("[AutomationEngine] timer lead=%s error: %v", c.LeadID, err)
			}
			continue
		}
		handled++
	}
	return handled
}

// HandleEvent evaluates the lead's rule sets for ev and executes the winning
// intents. Qualification rules run on form submissions and inbound messages.
// Step conditions run on inbound messages and timers; the client's escalation
// rules run only when no step condition matched.
func (e *Engine) HandleEvent(ctx context.Context, ev Event) (*Outcome, error) {
	if !ev.Kind.Valid() {
		return nil, &domain.UnknownEnumError{Kind: "event_kind", Value: string(ev.Kind)}
	}
	if ev.LeadID == "" {
		return nil, &domain.ValidationError{Field: "lead_id", Message: "is required"}
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = e.now()
	}

	if e.locks != nil {
		lock := e.locks("lead:" + ev.LeadID)
		ok, err := lock.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("lock lead %s: %w", ev.LeadID, err)
		}
		if !ok {
			return nil, ErrLeadBusy
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				log.Printf("[AutomationEngine] release lock lead=%s: %v", ev.LeadID, err)
			}
		}()
	}

	lead, err := e.state.Lead(ctx, ev.LeadID)
	if err != nil {
		return nil, fmt.Errorf("load lead: %w", err)
	}
	conv, err := e.state.Conversation(ctx, ev.LeadID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	var registry domain.CustomFieldRegistry
	if lead.ClientID != "" {
		if registry, err = e.state.CustomFields(ctx, lead.ClientID); err != nil {
			return nil, fmt.Errorf("load custom fields: %w", err)
		}
	}
	snap := NewSnapshot(lead, conv, registry, ev.OccurredAt)
	out := &Outcome{Event: ev}

	if ev.Kind != EventTimerFired && lead.CampaignID != "" {
		rules, err := e.rules.QualificationRules(ctx, lead.CampaignID)
		if err != nil {
			return nil, fmt.Errorf("load qualification rules: %w", err)
		}
		r := e.resolver
		if lead.Pipeline.Valid() {
			r = r.forPipeline(lead.Pipeline)
		}
		res := r.ResolveQualification(rules, snap)
		out.Qualification = &res
		e.logFailures(ev, res.Failures)
		if res.Matched {
			if cs, ok := res.Intent.(ChangeStage); ok && cs.Stage == lead.Stage {
				out.Skipped = append(out.Skipped, res.RuleID)
			} else if err := e.fire(ctx, ev, lead, res.RuleID, res.Intent, out); err != nil {
				return out, err
			} else if ok {
				snap = snap.WithStage(cs.Stage)
				lead.Stage = cs.Stage
			}
		}
	}

	if ev.Kind == EventFormSubmitted || conv == nil {
		return out, nil
	}

	if conv.CurrentStepID != "" {
		conds, err := e.rules.StepConditions(ctx, conv.CurrentStepID)
		if err != nil {
			return out, fmt.Errorf("load step conditions: %w", err)
		}
		res := e.resolver.ResolveSteps(ctx, conds, snap)
		out.Step = &res
		e.logFailures(ev, res.Failures)
		if res.Matched {
			return out, e.fire(ctx, ev, lead, res.RuleID, res.Intent, out)
		}
	}

	if lead.ClientID != "" {
		rules, err := e.rules.EscalationRules(ctx, lead.ClientID)
		if err != nil {
			return out, fmt.Errorf("load escalation rules: %w", err)
		}
		res := e.resolver.ResolveEscalations(ctx, rules, snap)
		out.Escalation = &res
		e.logFailures(ev, res.Failures)
		if res.Matched {
			return out, e.fire(ctx, ev, lead, res.RuleID, res.Intent, out)
		}
	}
	return out, nil
}

func (e *Engine) fire(ctx context.Context, ev Event, lead *domain.Lead, ruleID string, intent Intent, out *Outcome) error {
	if e.guard != nil && ev.ID != "" {
		first, err := e.guard.FirstFire(ctx, ruleID, lead.ID, ev.ID)
		if err != nil {
			return fmt.Errorf("fired-once guard: %w", err)
		}
		if !first {
			log.Printf("[AutomationEngine] skipping duplicate fire rule=%s lead=%s event=%s", ruleID, lead.ID, ev.ID)
			out.Skipped = append(out.Skipped, ruleID)
			return nil
		}
	}
	if err := e.executor.Execute(ctx, ev, lead, intent); err != nil {
		// Let a retry of the same event fire again.
		if f, ok := e.guard.(forgetter); ok && ev.ID != "" {
			if ferr := f.Forget(context.WithoutCancel(ctx), ruleID, lead.ID, ev.ID); ferr != nil {
				log.Printf("[AutomationEngine] forget fire rule=%s lead=%s: %v", ruleID, lead.ID, ferr)
			}
		}
		return fmt.Errorf("execute %s for rule %s: %w", intent.Kind(), ruleID, err)
	}
	out.Executed = append(out.Executed, intent)
	return nil
}

func (e *Engine) logFailures(ev Event, failures []RuleFailure) {
	for _, f := range failures {
		log.Printf("[AutomationEngine] lead=%s event=%s %v", ev.LeadID, ev.ID, f)
	}
}
