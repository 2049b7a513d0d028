package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/leadflow/internal/domain"
	"github.com/ignite/leadflow/internal/service/rules"
)

// RuleRepo implements rules.Repository against PostgreSQL.
type RuleRepo struct{ db *sql.DB }

var _ rules.Repository = (*RuleRepo)(nil)

// NewRuleRepo creates a Postgres-backed rule repository.
func NewRuleRepo(db *sql.DB) *RuleRepo { return &RuleRepo{db: db} }

type rowScanner interface {
	Scan(dest ...any) error
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// isUUID reports whether id can be compared against a uuid column. Other
// values are reported as ErrNotFound without a round trip.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return rules.ErrNotFound
	}
	return nil
}

// ---- qualification rules ----

const qualColumns = `id, campaign_id, name, rule_type, COALESCE(field_name,''), operator,
	COALESCE(value,''), target_stage, active, priority, created_at, updated_at`

func scanQualification(s rowScanner) (*domain.QualificationRule, error) {
	r := &domain.QualificationRule{}
	err := s.Scan(&r.ID, &r.CampaignID, &r.Name, &r.RuleType, &r.FieldName, &r.Operator,
		&r.Value, &r.TargetStage, &r.Active, &r.Priority, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (r *RuleRepo) ListQualification(ctx context.Context, campaignID string) ([]domain.QualificationRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+qualColumns+`
		FROM campaign_qualification_rules
		WHERE campaign_id = $1
		ORDER BY priority DESC, created_at ASC, id ASC
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list qualification rules: %w", err)
	}
	defer rows.Close()

	var out []domain.QualificationRule
	for rows.Next() {
		q, err := scanQualification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan qualification rule: %w", err)
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}

func (r *RuleRepo) GetQualification(ctx context.Context, id string) (*domain.QualificationRule, error) {
	if !isUUID(id) {
		return nil, rules.ErrNotFound
	}
	q, err := scanQualification(r.db.QueryRowContext(ctx, `
		SELECT `+qualColumns+` FROM campaign_qualification_rules WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, rules.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get qualification rule: %w", err)
	}
	return q, nil
}

func (r *RuleRepo) InsertQualification(ctx context.Context, q *domain.QualificationRule) error {
	q.ID = uuid.New().String()
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO campaign_qualification_rules
			(id, campaign_id, name, rule_type, field_name, operator, value,
			 target_stage, active, priority, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5,''), $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING created_at, updated_at
	`, q.ID, q.CampaignID, q.Name, q.RuleType, q.FieldName, q.Operator, q.Value,
		q.TargetStage, q.Active, q.Priority,
	).Scan(&q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert qualification rule: %w", err)
	}
	return nil
}

func (r *RuleRepo) UpdateQualification(ctx context.Context, q *domain.QualificationRule) error {
	if !isUUID(q.ID) {
		return rules.ErrNotFound
	}
	err := r.db.QueryRowContext(ctx, `
		UPDATE campaign_qualification_rules
		SET name = $2, rule_type = $3, field_name = NULLIF($4,''), operator = $5, value = $6,
		    target_stage = $7, active = $8, priority = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at
	`, q.ID, q.Name, q.RuleType, q.FieldName, q.Operator, q.Value,
		q.TargetStage, q.Active, q.Priority,
	).Scan(&q.CreatedAt, &q.UpdatedAt)
	if err == sql.ErrNoRows {
		return rules.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update qualification rule: %w", err)
	}
	return nil
}

func (r *RuleRepo) DeleteQualification(ctx context.Context, id string) error {
	if !isUUID(id) {
		return rules.ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM campaign_qualification_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete qualification rule: %w", err)
	}
	return affected(res)
}

// ---- step conditions ----

const ifThenColumns = `condition_type, condition_values, condition_time_value,
	COALESCE(condition_time_unit,''), threshold_count, action_type, COALESCE(action_value,''), order_index`

func scanIfThen(c *domain.IfThen) []any {
	return []any{&c.ConditionType, (*pq.StringArray)(&c.ConditionValues), &timeValueScan{c: c},
		&c.ConditionTimeUnit, &thresholdScan{c: c}, &c.ActionType, &c.ActionValue, &c.OrderIndex}
}

// timeValueScan and thresholdScan scan nullable integers into IfThen pointers.
type timeValueScan struct{ c *domain.IfThen }

func (s *timeValueScan) Scan(src any) error {
	var n sql.NullInt64
	if err := n.Scan(src); err != nil {
		return err
	}
	s.c.ConditionTimeValue = intPtr(n)
	return nil
}

type thresholdScan struct{ c *domain.IfThen }

func (s *thresholdScan) Scan(src any) error {
	var n sql.NullInt64
	if err := n.Scan(src); err != nil {
		return err
	}
	s.c.ThresholdCount = intPtr(n)
	return nil
}

func ifThenArgs(c *domain.IfThen) []any {
	values := c.ConditionValues
	if values == nil {
		values = []string{}
	}
	return []any{c.ConditionType, pq.Array(values), nullInt(c.ConditionTimeValue),
		string(c.ConditionTimeUnit), nullInt(c.ThresholdCount), c.ActionType, c.ActionValue, c.OrderIndex}
}

func scanStepCondition(s rowScanner) (*domain.StepCondition, error) {
	c := &domain.StepCondition{}
	dest := append([]any{&c.ID, &c.StepID}, scanIfThen(&c.IfThen)...)
	dest = append(dest, &c.CreatedAt, &c.UpdatedAt)
	return c, s.Scan(dest...)
}

func (r *RuleRepo) ListStepConditions(ctx context.Context, stepID string) ([]domain.StepCondition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, step_id, `+ifThenColumns+`, created_at, updated_at
		FROM step_conditions
		WHERE step_id = $1
		ORDER BY order_index ASC, created_at ASC, id ASC
	`, stepID)
	if err != nil {
		return nil, fmt.Errorf("list step conditions: %w", err)
	}
	defer rows.Close()

	var out []domain.StepCondition
	for rows.Next() {
		c, err := scanStepCondition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan step condition: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *RuleRepo) GetStepCondition(ctx context.Context, id string) (*domain.StepCondition, error) {
	if !isUUID(id) {
		return nil, rules.ErrNotFound
	}
	c, err := scanStepCondition(r.db.QueryRowContext(ctx, `
		SELECT id, step_id, `+ifThenColumns+`, created_at, updated_at
		FROM step_conditions WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, rules.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get step condition: %w", err)
	}
	return c, nil
}

func (r *RuleRepo) InsertStepCondition(ctx context.Context, c *domain.StepCondition) error {
	return insertStepCondition(ctx, r.db, c)
}

func (r *RuleRepo) UpdateStepCondition(ctx context.Context, c *domain.StepCondition) error {
	if !isUUID(c.ID) {
		return rules.ErrNotFound
	}
	return updateStepCondition(ctx, r.db, c)
}

func (r *RuleRepo) DeleteStepCondition(ctx context.Context, id string) error {
	if !isUUID(id) {
		return rules.ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM step_conditions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete step condition: %w", err)
	}
	return affected(res)
}

// ReplaceStepConditions locks the step's rows, checks every incoming ID
// belongs to stepID, then deletes, updates and inserts in one transaction.
func (r *RuleRepo) ReplaceStepConditions(ctx context.Context, stepID string, conds []domain.StepCondition) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, c := range conds {
			if c.ID == "" {
				continue
			}
			if !isUUID(c.ID) {
				return rules.ErrNotFound
			}
			var owner string
			err := tx.QueryRowContext(ctx, `SELECT step_id FROM step_conditions WHERE id = $1 FOR UPDATE`, c.ID).Scan(&owner)
			if err == sql.ErrNoRows {
				return rules.ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("lock step condition: %w", err)
			}
			if owner != stepID {
				return rules.ErrOwnerChanged
			}
		}

		keep := []string{}
		for _, c := range conds {
			if c.ID != "" {
				keep = append(keep, c.ID)
			}
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM step_conditions WHERE step_id = $1 AND NOT (id::text = ANY($2))
		`, stepID, pq.Array(keep)); err != nil {
			return fmt.Errorf("delete replaced step conditions: %w", err)
		}

		for i := range conds {
			c := &conds[i]
			c.StepID = stepID
			var err error
			if c.ID == "" {
				err = insertStepCondition(ctx, tx, c)
			} else {
				err = updateStepCondition(ctx, tx, c)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func insertStepCondition(ctx context.Context, q queryer, c *domain.StepCondition) error {
	id := uuid.New().String()
	args := append([]any{id, c.StepID}, ifThenArgs(&c.IfThen)...)
	err := q.QueryRowContext(ctx, `
		INSERT INTO step_conditions
			(id, step_id, condition_type, condition_values, condition_time_value,
			 condition_time_unit, threshold_count, action_type, action_value, order_index,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6,''), $7, $8, NULLIF($9,''), $10, NOW(), NOW())
		RETURNING created_at, updated_at
	`, args...).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert step condition: %w", err)
	}
	c.ID = id
	return nil
}

func updateStepCondition(ctx context.Context, q queryer, c *domain.StepCondition) error {
	args := append([]any{c.ID}, ifThenArgs(&c.IfThen)...)
	err := q.QueryRowContext(ctx, `
		UPDATE step_conditions
		SET condition_type = $2, condition_values = $3, condition_time_value = $4,
		    condition_time_unit = NULLIF($5,''), threshold_count = $6, action_type = $7,
		    action_value = NULLIF($8,''), order_index = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at
	`, args...).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return rules.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update step condition: %w", err)
	}
	return nil
}

// ---- escalation rules ----

func scanEscalation(s rowScanner) (*domain.EscalationRule, error) {
	e := &domain.EscalationRule{}
	dest := append([]any{&e.ID, &e.ClientID, &e.Name}, scanIfThen(&e.IfThen)...)
	dest = append(dest, &e.Active, &e.CreatedAt, &e.UpdatedAt)
	return e, s.Scan(dest...)
}

func (r *RuleRepo) ListEscalation(ctx context.Context, clientID string) ([]domain.EscalationRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, client_id, COALESCE(name,''), `+ifThenColumns+`, active, created_at, updated_at
		FROM client_escalation_rules
		WHERE client_id = $1
		ORDER BY order_index ASC, created_at ASC, id ASC
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list escalation rules: %w", err)
	}
	defer rows.Close()

	var out []domain.EscalationRule
	for rows.Next() {
		e, err := scanEscalation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan escalation rule: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *RuleRepo) GetEscalation(ctx context.Context, id string) (*domain.EscalationRule, error) {
	if !isUUID(id) {
		return nil, rules.ErrNotFound
	}
	e, err := scanEscalation(r.db.QueryRowContext(ctx, `
		SELECT id, client_id, COALESCE(name,''), `+ifThenColumns+`, active, created_at, updated_at
		FROM client_escalation_rules WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, rules.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get escalation rule: %w", err)
	}
	return e, nil
}

func (r *RuleRepo) InsertEscalation(ctx context.Context, e *domain.EscalationRule) error {
	e.ID = uuid.New().String()
	args := append([]any{e.ID, e.ClientID, e.Name}, ifThenArgs(&e.IfThen)...)
	args = append(args, e.Active)
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO client_escalation_rules
			(id, client_id, name, condition_type, condition_values, condition_time_value,
			 condition_time_unit, threshold_count, action_type, action_value, order_index,
			 active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7,''), $8, $9, NULLIF($10,''), $11, $12, NOW(), NOW())
		RETURNING created_at, updated_at
	`, args...).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert escalation rule: %w", err)
	}
	return nil
}

func (r *RuleRepo) UpdateEscalation(ctx context.Context, e *domain.EscalationRule) error {
	if !isUUID(e.ID) {
		return rules.ErrNotFound
	}
	args := append([]any{e.ID, e.Name}, ifThenArgs(&e.IfThen)...)
	args = append(args, e.Active)
	err := r.db.QueryRowContext(ctx, `
		UPDATE client_escalation_rules
		SET name = $2, condition_type = $3, condition_values = $4, condition_time_value = $5,
		    condition_time_unit = NULLIF($6,''), threshold_count = $7, action_type = $8,
		    action_value = NULLIF($9,''), order_index = $10, active = $11, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at
	`, args...).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return rules.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update escalation rule: %w", err)
	}
	return nil
}

func (r *RuleRepo) DeleteEscalation(ctx context.Context, id string) error {
	if !isUUID(id) {
		return rules.ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM client_escalation_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete escalation rule: %w", err)
	}
	return affected(res)
}
