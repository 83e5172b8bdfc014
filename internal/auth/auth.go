package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/davifernan/bayrol-pool-api/internal/models"
	"github.com/davifernan/bayrol-pool-api/internal/repository"

	"go.uber.org/zap"
)

// apiKeyBytes matches token_urlsafe-style 32 bytes of entropy.
const apiKeyBytes = 32

// ErrUnauthorized is returned for missing, unknown, revoked or expired keys.
var ErrUnauthorized = errors.New("invalid api key")

// KeyStore is the persistence the service needs, satisfied by
// repository.APIKeyRepository.
type KeyStore interface {
	Create(ctx context.Context, key *models.APIKey) error
	GetActiveByKey(ctx context.Context, key string) (*models.APIKey, error)
	TouchLastUsed(ctx context.Context, id string)
	List(ctx context.Context) ([]models.APIKey, error)
	Deactivate(ctx context.Context, id string) error
}

// Service issues and validates API keys. A master key from configuration
// bypasses the store so the system stays administrable with an empty
// api_keys table.
type Service struct {
	store     KeyStore
	masterKey string
	logger    *zap.Logger
}

// NewService creates an auth service. masterKey may be empty.
func NewService(store KeyStore, masterKey string, logger *zap.Logger) *Service {
	return &Service{store: store, masterKey: masterKey, logger: logger}
}

// GenerateKey returns a URL-safe random key.
func GenerateKey() (string, error) {
	buf := make([]byte, apiKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CreateKey mints and persists a new API key.
func (s *Service) CreateKey(ctx context.Context, name, description string, expiresAt *time.Time) (*models.APIKey, error) {
	value, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	key := &models.APIKey{
		Key:         value,
		Name:        name,
		Description: description,
		IsActive:    true,
		ExpiresAt:   expiresAt,
	}
	if err := s.store.Create(ctx, key); err != nil {
		return nil, err
	}
	s.logger.Info("Created api key", zap.String("key_id", key.ID), zap.String("name", name))
	return key, nil
}

// Validate checks a presented key. The master key always passes; stored
// keys must be active and unexpired, and get their last_used bumped.
func (s *Service) Validate(ctx context.Context, key string) error {
	if key == "" {
		return ErrUnauthorized
	}
	if s.masterKey != "" && key == s.masterKey {
		return nil
	}

	stored, err := s.store.GetActiveByKey(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUnauthorized
		}
		return err
	}
	s.store.TouchLastUsed(ctx, stored.ID)
	return nil
}

// ListKeys returns every key with the secret value redacted.
func (s *Service) ListKeys(ctx context.Context) ([]models.APIKey, error) {
	keys, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range keys {
		keys[i].Key = redact(keys[i].Key)
	}
	return keys, nil
}

// RevokeKey deactivates a key by id.
func (s *Service) RevokeKey(ctx context.Context, id string) error {
	return s.store.Deactivate(ctx, id)
}

func redact(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
