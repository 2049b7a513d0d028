package rules

import (
	"context"

	"github.com/ignite/leadflow/internal/domain"
)

// QualificationRepository stores qualification rules.
// Implementations must be safe for concurrent use.
type QualificationRepository interface {
	// ListQualification returns a campaign's rules ordered by priority DESC,
	// created_at ASC.
	ListQualification(ctx context.Context, campaignID string) ([]domain.QualificationRule, error)

	// GetQualification returns ErrNotFound if the rule doesn't exist.
	GetQualification(ctx context.Context, id string) (*domain.QualificationRule, error)

	// InsertQualification assigns r.ID, CreatedAt and UpdatedAt.
	InsertQualification(ctx context.Context, r *domain.QualificationRule) error

	// UpdateQualification replaces every mutable column of the rule with id
	// r.ID and sets UpdatedAt. Returns ErrNotFound if it doesn't exist.
	UpdateQualification(ctx context.Context, r *domain.QualificationRule) error

	// DeleteQualification returns ErrNotFound if the rule doesn't exist.
	DeleteQualification(ctx context.Context, id string) error
}

// StepConditionRepository stores step conditions.
type StepConditionRepository interface {
	// ListStepConditions returns a step's conditions ordered by order_index
	// ASC, created_at ASC.
	ListStepConditions(ctx context.Context, stepID string) ([]domain.StepCondition, error)
	GetStepCondition(ctx context.Context, id string) (*domain.StepCondition, error)
	InsertStepCondition(ctx context.Context, c *domain.StepCondition) error
	UpdateStepCondition(ctx context.Context, c *domain.StepCondition) error
	DeleteStepCondition(ctx context.Context, id string) error

	// ReplaceStepConditions makes conds the full condition set of stepID in
	// one atomic write. Conditions with an empty ID are inserted, the rest are
	// updated, and stored conditions absent from conds are deleted. Returns
	// ErrNotFound or ErrOwnerChanged for an unknown or foreign ID and leaves
	// the stored set untouched.
	ReplaceStepConditions(ctx context.Context, stepID string, conds []domain.StepCondition) error
}

// EscalationRepository stores client escalation rules.
type EscalationRepository interface {
	// ListEscalation returns a client's rules ordered by order_index ASC,
	// created_at ASC.
	ListEscalation(ctx context.Context, clientID string) ([]domain.EscalationRule, error)
	GetEscalation(ctx context.Context, id string) (*domain.EscalationRule, error)
	InsertEscalation(ctx context.Context, e *domain.EscalationRule) error
	UpdateEscalation(ctx context.Context, e *domain.EscalationRule) error
	DeleteEscalation(ctx context.Context, id string) error
}

// Repository is the full rule storage contract.
type Repository interface {
	QualificationRepository
	StepConditionRepository
	EscalationRepository
}
