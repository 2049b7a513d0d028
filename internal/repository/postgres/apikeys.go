package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/leadflow/internal/ingest"
)

// APIKeyRepo resolves hashed import API keys.
type APIKeyRepo struct{ db *sql.DB }

var _ ingest.KeyStore = (*APIKeyRepo)(nil)

// NewAPIKeyRepo creates a Postgres-backed key store.
func NewAPIKeyRepo(db *sql.DB) *APIKeyRepo { return &APIKeyRepo{db: db} }

// OwnerOfKeyHash returns the user owning an active key and stamps its last use.
func (r *APIKeyRepo) OwnerOfKeyHash(ctx context.Context, hash string) (string, error) {
	var owner string
	err := r.db.QueryRowContext(ctx, `
		UPDATE api_keys SET last_used_at = NOW()
		WHERE key_hash = $1 AND revoked_at IS NULL
		RETURNING user_id
	`, hash).Scan(&owner)
	if err == sql.ErrNoRows {
		return "", ingest.ErrUnknownKey
	}
	if err != nil {
		return "", fmt.Errorf("lookup api key: %w", err)
	}
	return owner, nil
}
