package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/leadflow/internal/domain"
	"github.com/ignite/leadflow/internal/ingest"
)

// ImportRepo upserts webhook imports. Rows are matched to existing ones by
// owner and email, falling back to phone.
type ImportRepo struct{ db *sql.DB }

var _ ingest.Store = (*ImportRepo)(nil)

// NewImportRepo creates a Postgres-backed import store.
func NewImportRepo(db *sql.DB) *ImportRepo { return &ImportRepo{db: db} }

// contactTables maps non-lead entity types to their tables.
var contactTables = map[ingest.EntityType]string{
	ingest.EntityClients: "clients",
	ingest.EntityStaff:   "staff_members",
	ingest.EntityUsers:   "profiles",
}

// leadPipelines places imported leads. Agents are recruits for a client;
// plain leads enter the staff sales pipeline.
var leadPipelines = map[ingest.EntityType]struct {
	pipeline domain.Pipeline
	stage    string
}{
	ingest.EntityLeads:  {domain.PipelineStaff, domain.StageNew},
	ingest.EntityAgents: {domain.PipelineClient, domain.StageNewRecruit},
}

func matchKey(rec ingest.Record) (string, string) {
	if rec.Email != "" {
		return "email", rec.Email
	}
	return "phone", rec.Phone
}

func (r *ImportRepo) Upsert(ctx context.Context, userID string, entity ingest.EntityType, rec ingest.Record) (string, error) {
	if !rec.HasContact() {
		return "", ingest.ErrSkipped
	}
	if p, ok := leadPipelines[entity]; ok {
		return r.upsertLead(ctx, userID, p.pipeline, p.stage, rec)
	}
	table, ok := contactTables[entity]
	if !ok {
		return "", fmt.Errorf("unsupported entity type %q", entity)
	}
	return r.upsertContact(ctx, table, userID, rec)
}

func (r *ImportRepo) upsertLead(ctx context.Context, userID string, pipeline domain.Pipeline, stage string, rec ingest.Record) (string, error) {
	custom := []byte("{}")
	if len(rec.Extra) > 0 {
		b, err := json.Marshal(rec.Extra)
		if err != nil {
			return "", fmt.Errorf("encode custom fields: %w", err)
		}
		custom = b
	}
	col, key := matchKey(rec)
	var campaignID sql.NullString
	if rec.CampaignID != "" {
		campaignID = sql.NullString{String: rec.CampaignID, Valid: true}
	}

	var id string
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			UPDATE leads SET
				first_name    = COALESCE(NULLIF($3,''), first_name),
				last_name     = COALESCE(NULLIF($4,''), last_name),
				email         = COALESCE(NULLIF($5,''), email),
				phone         = COALESCE(NULLIF($6,''), phone),
				state         = COALESCE(NULLIF($7,''), state),
				city          = COALESCE(NULLIF($8,''), city),
				license_type  = COALESCE(NULLIF($9,''), license_type),
				experience    = COALESCE($10, experience),
				custom_fields = COALESCE(custom_fields, '{}'::jsonb) || $11::jsonb,
				updated_at    = NOW()
			WHERE user_id = $1 AND `+col+` = $2
			RETURNING id
		`, userID, key, rec.FirstName, rec.LastName, rec.Email, rec.Phone, rec.State, rec.City,
			rec.LicenseType, nullInt(rec.Experience), custom).Scan(&id)
		if err == nil {
			return nil
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("update imported lead: %w", err)
		}
		id = uuid.New().String()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO leads (id, user_id, campaign_id, pipeline, stage, first_name, last_name, email, phone,
			                   state, city, license_type, experience, source, hot, custom_fields, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, false, $15::jsonb, NOW(), NOW())
		`, id, userID, campaignID, pipeline, stage, rec.FirstName, rec.LastName, rec.Email, rec.Phone,
			rec.State, rec.City, rec.LicenseType, nullInt(rec.Experience), rec.Source, custom)
		if err != nil {
			return fmt.Errorf("insert imported lead: %w", err)
		}
		return nil
	})
	return id, err
}

func (r *ImportRepo) upsertContact(ctx context.Context, table, userID string, rec ingest.Record) (string, error) {
	name := rec.FirstName
	if rec.LastName != "" {
		name += " " + rec.LastName
	}
	col, key := matchKey(rec)

	var id string
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			UPDATE `+table+` SET
				name       = COALESCE(NULLIF($3,''), name),
				email      = COALESCE(NULLIF($4,''), email),
				phone      = COALESCE(NULLIF($5,''), phone),
				company    = COALESCE(NULLIF($6,''), company),
				updated_at = NOW()
			WHERE user_id = $1 AND `+col+` = $2
			RETURNING id
		`, userID, key, name, rec.Email, rec.Phone, rec.Company).Scan(&id)
		if err == nil {
			return nil
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("update imported %s: %w", table, err)
		}
		id = uuid.New().String()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO `+table+` (id, user_id, name, email, phone, company, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		`, id, userID, name, rec.Email, rec.Phone, rec.Company)
		if err != nil {
			return fmt.Errorf("insert imported %s: %w", table, err)
		}
		return nil
	})
	return id, err
}
