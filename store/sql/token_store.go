package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/watchrelay/watchrelay/core"
)

// TokenStore persists the single OAuth credential pair for the watch-history
// source. Upsert replaces access and refresh token in one statement so a
// crash can never leave a mixed pair behind.
type TokenStore struct {
	db   *bun.DB
	repo repository.Repository[*credentialRecord]
	now  func() time.Time
}

func NewTokenStore(db *bun.DB) (*TokenStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*credentialRecord](db, credentialHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid credential repository wiring: %w", err)
		}
	}
	return &TokenStore{
		db:   db,
		repo: repo,
		now:  time.Now,
	}, nil
}

func (s *TokenStore) Get(ctx context.Context) (core.Credential, error) {
	if s == nil || s.db == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: token store is not configured")
	}
	record := &credentialRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", credentialSingletonID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Credential{}, core.ErrCredentialNotFound
		}
		return core.Credential{}, err
	}
	return record.toDomain(), nil
}

func (s *TokenStore) Upsert(ctx context.Context, credential core.Credential) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: token store is not configured")
	}
	if strings.TrimSpace(credential.AccessToken) == "" {
		return fmt.Errorf("sqlstore: access token is required")
	}
	if strings.TrimSpace(credential.RefreshToken) == "" {
		return fmt.Errorf("sqlstore: refresh token is required")
	}

	now := s.now().UTC()
	record := &credentialRecord{
		ID:           credentialSingletonID,
		AccessToken:  credential.AccessToken,
		RefreshToken: credential.RefreshToken,
		ExpiresAt:    credential.ExpiresAt.UTC(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (id) DO UPDATE").
		Set("access_token = EXCLUDED.access_token").
		Set("refresh_token = EXCLUDED.refresh_token").
		Set("expires_at = EXCLUDED.expires_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

var _ core.TokenStore = (*TokenStore)(nil)
