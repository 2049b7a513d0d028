package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/leadflow/internal/domain"
)

// ErrLeadNotFound is returned when a lead, client, enrollment or step does
// not exist. It matches domain.ErrNotFound.
var ErrLeadNotFound = fmt.Errorf("lead %w", domain.ErrNotFound)

// LeadRepo reads and writes lead, conversation and client state.
type LeadRepo struct{ db *sql.DB }

// NewLeadRepo creates a Postgres-backed lead repository.
func NewLeadRepo(db *sql.DB) *LeadRepo { return &LeadRepo{db: db} }

func (r *LeadRepo) Lead(ctx context.Context, id string) (*domain.Lead, error) {
	l := &domain.Lead{}
	var (
		campaignID, clientID sql.NullString
		experience, score    sql.NullInt64
		custom               []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, campaign_id, client_id, pipeline, stage,
		       COALESCE(first_name,''), COALESCE(last_name,''), COALESCE(email,''), COALESCE(phone,''),
		       COALESCE(state,''), COALESCE(city,''), COALESCE(license_type,''),
		       experience, score, COALESCE(source,''), hot, custom_fields, created_at, updated_at
		FROM leads
		WHERE id = $1
	`, id).Scan(
		&l.ID, &campaignID, &clientID, &l.Pipeline, &l.Stage,
		&l.FirstName, &l.LastName, &l.Email, &l.Phone,
		&l.State, &l.City, &l.LicenseType,
		&experience, &score, &l.Source, &l.Hot, &custom, &l.CreatedAt, &l.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrLeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	l.CampaignID = campaignID.String
	l.ClientID = clientID.String
	l.Experience = intPtr(experience)
	l.Score = intPtr(score)
	if len(custom) > 0 {
		if err := json.Unmarshal(custom, &l.CustomFields); err != nil {
			return nil, fmt.Errorf("decode custom fields for lead %s: %w", id, err)
		}
	}
	return l, nil
}

const convColumns = `lead_id, COALESCE(campaign_id::text,''), COALESCE(current_step_id::text,''),
	message_count, last_inbound_at, last_outbound_at, last_response`

func scanConversation(s rowScanner) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	var (
		inbound, outbound pq.NullTime
		response          sql.NullString
	)
	if err := s.Scan(&c.LeadID, &c.CampaignID, &c.CurrentStepID, &c.MessageCount, &inbound, &outbound, &response); err != nil {
		return nil, err
	}
	if inbound.Valid {
		t := inbound.Time
		c.LastInboundAt = &t
	}
	if outbound.Valid {
		t := outbound.Time
		c.LastOutboundAt = &t
	}
	if response.Valid {
		s := response.String
		c.LastResponse = &s
	}
	return c, nil
}

// Conversation returns nil, nil when the lead has no conversation yet.
func (r *LeadRepo) Conversation(ctx context.Context, leadID string) (*domain.Conversation, error) {
	c, err := scanConversation(r.db.QueryRowContext(ctx,
		`SELECT `+convColumns+` FROM conversations WHERE lead_id = $1`, leadID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

// DueConversations lists active conversations whose last outbound message is
// still unanswered, oldest first.
func (r *LeadRepo) DueConversations(ctx context.Context, limit int) ([]domain.Conversation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+convColumns+`
		FROM conversations
		WHERE last_outbound_at IS NOT NULL
		  AND (last_inbound_at IS NULL OR last_inbound_at < last_outbound_at)
		  AND status = 'active'
		ORDER BY last_outbound_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list due conversations: %w", err)
	}
	defer rows.Close()

	var out []domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// CustomFields returns the client's registered custom-field names.
func (r *LeadRepo) CustomFields(ctx context.Context, clientID string) (domain.CustomFieldRegistry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT field_name FROM custom_field_definitions WHERE client_id = $1`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list custom fields: %w", err)
	}
	defer rows.Close()

	reg := domain.CustomFieldRegistry{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan custom field: %w", err)
		}
		reg[name] = struct{}{}
	}
	return reg, rows.Err()
}

// Client returns the client record.
func (r *LeadRepo) Client(ctx context.Context, id string) (*domain.Client, error) {
	c := &domain.Client{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(email,''), COALESCE(phone,'') FROM clients WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Email, &c.Phone)
	if err == sql.ErrNoRows {
		return nil, ErrLeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	return c, nil
}

func (r *LeadRepo) UpdateStage(ctx context.Context, leadID, stage string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE leads SET stage = $2, updated_at = NOW() WHERE id = $1`, leadID, stage)
	if err != nil {
		return fmt.Errorf("update lead stage: %w", err)
	}
	return notFoundIfNone(res)
}

func (r *LeadRepo) MarkHot(ctx context.Context, leadID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE leads SET hot = true, updated_at = NOW() WHERE id = $1`, leadID)
	if err != nil {
		return fmt.Errorf("mark lead hot: %w", err)
	}
	return notFoundIfNone(res)
}

// RecordInbound stores a lead reply on the conversation.
func (r *LeadRepo) RecordInbound(ctx context.Context, leadID, body string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations
		SET last_response = $2, last_inbound_at = $3, message_count = message_count + 1, updated_at = NOW()
		WHERE lead_id = $1
	`, leadID, body, at)
	if err != nil {
		return fmt.Errorf("record inbound: %w", err)
	}
	return notFoundIfNone(res)
}

// RecordOutbound stamps a sent message on the conversation.
func (r *LeadRepo) RecordOutbound(ctx context.Context, leadID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations
		SET last_outbound_at = $2, message_count = message_count + 1, updated_at = NOW()
		WHERE lead_id = $1
	`, leadID, at)
	if err != nil {
		return fmt.Errorf("record outbound: %w", err)
	}
	return notFoundIfNone(res)
}

func notFoundIfNone(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLeadNotFound
	}
	return nil
}
