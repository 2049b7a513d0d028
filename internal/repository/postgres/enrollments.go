package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/leadflow/internal/domain"
)

// EnrollmentRepo moves leads through campaign step sequences. Each write
// keeps enrollments, conversations and the lead's campaign in one transaction.
type EnrollmentRepo struct{ db *sql.DB }

// NewEnrollmentRepo creates a Postgres-backed enrollment repository.
func NewEnrollmentRepo(db *sql.DB) *EnrollmentRepo { return &EnrollmentRepo{db: db} }

func (r *EnrollmentRepo) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return withTx(ctx, r.db, fn)
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func activeEnrollment(ctx context.Context, tx *sql.Tx, leadID string) (*domain.Enrollment, error) {
	e := &domain.Enrollment{}
	err := tx.QueryRowContext(ctx, `
		SELECT id, lead_id, campaign_id, step_index, status, ai_enabled, updated_at
		FROM enrollments
		WHERE lead_id = $1 AND status = 'active'
		ORDER BY updated_at DESC
		LIMIT 1
		FOR UPDATE
	`, leadID).Scan(&e.ID, &e.LeadID, &e.CampaignID, &e.StepIndex, &e.Status, &e.AIEnabled, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrLeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	return e, nil
}

func stepAt(ctx context.Context, tx *sql.Tx, campaignID string, index int) (*domain.CampaignStep, error) {
	s := &domain.CampaignStep{}
	err := tx.QueryRowContext(ctx, `
		SELECT id, campaign_id, step_order, channel, COALESCE(subject,''), body
		FROM campaign_steps
		WHERE campaign_id = $1
		ORDER BY step_order ASC
		OFFSET $2 LIMIT 1
	`, campaignID, index).Scan(&s.ID, &s.CampaignID, &s.StepOrder, &s.Channel, &s.Subject, &s.Body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign step: %w", err)
	}
	return s, nil
}

func setConversationStatus(ctx context.Context, tx *sql.Tx, leadID, status string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE conversations SET status = $2, updated_at = NOW() WHERE lead_id = $1`, leadID, status)
	if err != nil {
		return fmt.Errorf("update conversation status: %w", err)
	}
	return nil
}

// NextStep returns the step after the lead's current one without moving the
// enrollment, or nil at the end of the campaign.
func (r *EnrollmentRepo) NextStep(ctx context.Context, leadID string) (*domain.CampaignStep, error) {
	var next *domain.CampaignStep
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		e, err := activeEnrollment(ctx, tx, leadID)
		if err != nil {
			return err
		}
		next, err = stepAt(ctx, tx, e.CampaignID, e.StepIndex+1)
		return err
	})
	return next, err
}

// Advance moves the lead to the next step of its active campaign and returns
// that step. When the campaign has no further step, the enrollment ends and
// Advance returns nil.
func (r *EnrollmentRepo) Advance(ctx context.Context, leadID string) (*domain.CampaignStep, error) {
	var next *domain.CampaignStep
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		e, err := activeEnrollment(ctx, tx, leadID)
		if err != nil {
			return err
		}
		next, err = stepAt(ctx, tx, e.CampaignID, e.StepIndex+1)
		if err != nil {
			return err
		}
		if next == nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE enrollments SET status = 'ended', updated_at = NOW() WHERE id = $1`, e.ID); err != nil {
				return fmt.Errorf("end enrollment: %w", err)
			}
			return setConversationStatus(ctx, tx, leadID, string(domain.EnrollmentEnded))
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE enrollments SET step_index = step_index + 1, updated_at = NOW() WHERE id = $1`, e.ID); err != nil {
			return fmt.Errorf("advance enrollment: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE conversations SET current_step_id = $2, updated_at = NOW() WHERE lead_id = $1`, leadID, next.ID); err != nil {
			return fmt.Errorf("update conversation step: %w", err)
		}
		return nil
	})
	return next, err
}

// End stops the lead's active campaign.
func (r *EnrollmentRepo) End(ctx context.Context, leadID string) error {
	return r.setStatus(ctx, leadID, domain.EnrollmentEnded)
}

// Escalate hands the lead to a human: the enrollment stops and AI replies are
// disabled.
func (r *EnrollmentRepo) Escalate(ctx context.Context, leadID string) error {
	return r.setStatus(ctx, leadID, domain.EnrollmentEscalated)
}

func (r *EnrollmentRepo) setStatus(ctx context.Context, leadID string, status domain.EnrollmentStatus) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE enrollments
			SET status = $2, ai_enabled = CASE WHEN $2 = 'escalated' THEN false ELSE ai_enabled END,
			    updated_at = NOW()
			WHERE lead_id = $1 AND status = 'active'
		`, leadID, string(status))
		if err != nil {
			return fmt.Errorf("set enrollment %s: %w", status, err)
		}
		if err := notFoundIfNone(res); err != nil {
			return err
		}
		return setConversationStatus(ctx, tx, leadID, string(status))
	})
}

// Enroll ends any active enrollment and starts the lead at the first step of
// campaignID, which is returned.
func (r *EnrollmentRepo) Enroll(ctx context.Context, leadID, campaignID string) (*domain.CampaignStep, error) {
	var first *domain.CampaignStep
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		first, err = stepAt(ctx, tx, campaignID, 0)
		if err != nil {
			return err
		}
		if first == nil {
			return fmt.Errorf("campaign %s has no steps: %w", campaignID, ErrLeadNotFound)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE enrollments SET status = 'ended', updated_at = NOW()
			WHERE lead_id = $1 AND status = 'active'
		`, leadID); err != nil {
			return fmt.Errorf("end previous enrollment: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO enrollments (id, lead_id, campaign_id, step_index, status, ai_enabled, updated_at)
			VALUES ($1, $2, $3, 0, 'active', true, NOW())
		`, uuid.New().String(), leadID, campaignID); err != nil {
			return fmt.Errorf("insert enrollment: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE leads SET campaign_id = $2, updated_at = NOW() WHERE id = $1`, leadID, campaignID); err != nil {
			return fmt.Errorf("update lead campaign: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (lead_id, campaign_id, current_step_id, message_count, status, updated_at)
			VALUES ($1, $2, $3, 0, 'active', NOW())
			ON CONFLICT (lead_id) DO UPDATE
			SET campaign_id = $2, current_step_id = $3, status = 'active', updated_at = NOW()
		`, leadID, campaignID, first.ID); err != nil {
			return fmt.Errorf("upsert conversation: %w", err)
		}
		return nil
	})
	return first, err
}

// AIEnabled reports whether AI replies are allowed for the lead's active
// enrollment.
func (r *EnrollmentRepo) AIEnabled(ctx context.Context, leadID string) (bool, error) {
	var enabled bool
	err := r.db.QueryRowContext(ctx, `
		SELECT ai_enabled FROM enrollments
		WHERE lead_id = $1 AND status = 'active'
		ORDER BY updated_at DESC LIMIT 1
	`, leadID).Scan(&enabled)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get ai flag: %w", err)
	}
	return enabled, nil
}
