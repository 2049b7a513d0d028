package rules

import (
	"context"
	"fmt"
	"log"

	"github.com/ignite/leadflow/internal/domain"
)

// Service implements rule management. All public methods are safe for
// concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo Repository
}

// NewService creates a rules service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ListQualificationRules returns a campaign's rules in evaluation order,
// inactive rules included.
func (s *Service) ListQualificationRules(ctx context.Context, campaignID string) ([]domain.QualificationRule, error) {
	return s.repo.ListQualification(ctx, campaignID)
}

// GetQualificationRule returns a single rule.
func (s *Service) GetQualificationRule(ctx context.Context, id string) (*domain.QualificationRule, error) {
	return s.repo.GetQualification(ctx, id)
}

// SaveQualificationRule validates r and upserts it. The stored rule is
// returned with its id and timestamps.
func (s *Service) SaveQualificationRule(ctx context.Context, r domain.QualificationRule) (*domain.QualificationRule, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if r.IsDraft() {
		if err := s.repo.InsertQualification(ctx, &r); err != nil {
			return nil, err
		}
		log.Printf("[rules] created qualification rule id=%s campaign=%s", r.ID, r.CampaignID)
		return &r, nil
	}
	existing, err := s.repo.GetQualification(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	if existing.CampaignID != r.CampaignID {
		return nil, ErrOwnerChanged
	}
	r.CreatedAt = existing.CreatedAt
	if err := s.repo.UpdateQualification(ctx, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// SetQualificationActive toggles a rule without touching its other fields.
func (s *Service) SetQualificationActive(ctx context.Context, id string, active bool) (*domain.QualificationRule, error) {
	r, err := s.repo.GetQualification(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Active == active {
		return r, nil
	}
	r.Active = active
	if err := s.repo.UpdateQualification(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// DeleteQualificationRule removes a rule permanently.
func (s *Service) DeleteQualificationRule(ctx context.Context, id string) error {
	return s.repo.DeleteQualification(ctx, id)
}

// ListStepConditions returns a step's conditions in evaluation order.
func (s *Service) ListStepConditions(ctx context.Context, stepID string) ([]domain.StepCondition, error) {
	return s.repo.ListStepConditions(ctx, stepID)
}

// SaveStepCondition validates c and upserts it.
func (s *Service) SaveStepCondition(ctx context.Context, c domain.StepCondition) (*domain.StepCondition, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.ID == "" {
		if err := s.repo.InsertStepCondition(ctx, &c); err != nil {
			return nil, err
		}
		log.Printf("[rules] created step condition id=%s step=%s", c.ID, c.StepID)
		return &c, nil
	}
	existing, err := s.repo.GetStepCondition(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if existing.StepID != c.StepID {
		return nil, ErrOwnerChanged
	}
	c.CreatedAt = existing.CreatedAt
	if err := s.repo.UpdateStepCondition(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteStepCondition removes a step condition permanently.
func (s *Service) DeleteStepCondition(ctx context.Context, id string) error {
	return s.repo.DeleteStepCondition(ctx, id)
}

// ReplaceStepConditions saves conds as the full condition set of stepID,
// deleting stored conditions that are absent from conds. Order indexes are
// reassigned from slice position.
func (s *Service) ReplaceStepConditions(ctx context.Context, stepID string, conds []domain.StepCondition) ([]domain.StepCondition, error) {
	for i := range conds {
		conds[i].StepID = stepID
		conds[i].OrderIndex = i
		if err := conds[i].Validate(); err != nil {
			return nil, fmt.Errorf("condition %d: %w", i, err)
		}
	}
	if err := s.repo.ReplaceStepConditions(ctx, stepID, conds); err != nil {
		return nil, err
	}
	log.Printf("[rules] replaced conditions step=%s count=%d", stepID, len(conds))
	return conds, nil
}

// ListEscalationRules returns a client's escalation rules in evaluation
// order, inactive rules included.
func (s *Service) ListEscalationRules(ctx context.Context, clientID string) ([]domain.EscalationRule, error) {
	return s.repo.ListEscalation(ctx, clientID)
}

// SaveEscalationRule validates e and upserts it.
func (s *Service) SaveEscalationRule(ctx context.Context, e domain.EscalationRule) (*domain.EscalationRule, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if e.ID == "" {
		if err := s.repo.InsertEscalation(ctx, &e); err != nil {
			return nil, err
		}
		log.Printf("[rules] created escalation rule id=%s client=%s", e.ID, e.ClientID)
		return &e, nil
	}
	existing, err := s.repo.GetEscalation(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	if existing.ClientID != e.ClientID {
		return nil, ErrOwnerChanged
	}
	e.CreatedAt = existing.CreatedAt
	if err := s.repo.UpdateEscalation(ctx, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// SetEscalationActive toggles an escalation rule.
func (s *Service) SetEscalationActive(ctx context.Context, id string, active bool) (*domain.EscalationRule, error) {
	e, err := s.repo.GetEscalation(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Active == active {
		return e, nil
	}
	e.Active = active
	if err := s.repo.UpdateEscalation(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// DeleteEscalationRule removes an escalation rule permanently.
func (s *Service) DeleteEscalationRule(ctx context.Context, id string) error {
	return s.repo.DeleteEscalation(ctx, id)
}

// QualificationRules, StepConditions and EscalationRules let the service act
// as the automation engine's rule source.

func (s *Service) QualificationRules(ctx context.Context, campaignID string) ([]domain.QualificationRule, error) {
	return s.repo.ListQualification(ctx, campaignID)
}

func (s *Service) StepConditions(ctx context.Context, stepID string) ([]domain.StepCondition, error) {
	return s.repo.ListStepConditions(ctx, stepID)
}

func (s *Service) EscalationRules(ctx context.Context, clientID string) ([]domain.EscalationRule, error) {
	return s.repo.ListEscalation(ctx, clientID)
}
