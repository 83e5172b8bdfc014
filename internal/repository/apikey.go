package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/davifernan/bayrol-pool-api/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// APIKeyRepository persists API keys.
type APIKeyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAPIKeyRepository creates an API key repository.
func NewAPIKeyRepository(db *sql.DB, logger *zap.Logger) *APIKeyRepository {
	return &APIKeyRepository{db: db, logger: logger}
}

// Create inserts a new key.
func (r *APIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	key.ID = uuid.NewString()
	key.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO api_keys (id, key, name, description, is_active, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		key.ID,
		key.Key,
		key.Name,
		key.Description,
		key.IsActive,
		key.CreatedAt,
		key.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert api key: %w", err)
	}
	return nil
}

// GetActiveByKey loads an active, unexpired key by its value.
func (r *APIKeyRepository) GetActiveByKey(ctx context.Context, key string) (*models.APIKey, error) {
	query := `
		SELECT id, key, name, description, is_active, created_at, last_used, expires_at
		FROM api_keys
		WHERE key = $1 AND is_active = true AND (expires_at IS NULL OR expires_at > $2)
	`
	var k models.APIKey
	err := r.db.QueryRowContext(ctx, query, key, time.Now().UTC()).Scan(
		&k.ID,
		&k.Key,
		&k.Name,
		&k.Description,
		&k.IsActive,
		&k.CreatedAt,
		&k.LastUsed,
		&k.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan api key: %w", err)
	}
	return &k, nil
}

// TouchLastUsed records key usage. Best effort, a failed touch never blocks
// an authenticated request.
func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, id string) {
	query := `UPDATE api_keys SET last_used = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		r.logger.Warn("Failed to update api key last_used",
			zap.String("key_id", id),
			zap.Error(err),
		)
	}
}

// List returns every key, newest first, with key values included. The HTTP
// layer decides what to redact.
func (r *APIKeyRepository) List(ctx context.Context) ([]models.APIKey, error) {
	query := `
		SELECT id, key, name, description, is_active, created_at, last_used, expires_at
		FROM api_keys
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query api keys: %w", err)
	}
	defer rows.Close()

	var keys []models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(
			&k.ID,
			&k.Key,
			&k.Name,
			&k.Description,
			&k.IsActive,
			&k.CreatedAt,
			&k.LastUsed,
			&k.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Deactivate revokes a key without deleting its audit trail.
func (r *APIKeyRepository) Deactivate(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE api_keys SET is_active = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate api key: %w", err)
	}
	return requireRow(result)
}
