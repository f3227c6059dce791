package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/kapu/top-music-bot-go/internal/domain"
	"github.com/kapu/top-music-bot-go/pkg/errors"
)

// SaveAuthToken stores the serialized OAuth token of a platform account.
func (s *SQLStore) SaveAuthToken(ctx context.Context, platform domain.Platform, accountID string, token []byte) error {
	query := s.dialect.Rebind(`
		INSERT INTO auth_tokens (platform, account_id, token, updated_at_us)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (platform, account_id) DO UPDATE SET
			token = excluded.token,
			updated_at_us = excluded.updated_at_us
	`)

	if _, err := s.db.ExecContext(ctx, query, platform.String(), accountID, string(token), toMicros(time.Now())); err != nil {
		return errors.NewStoreError("failed to save auth token", "save_auth_token", err)
	}
	return nil
}

// LoadAuthToken returns nil, nil when no token was saved for the account.
func (s *SQLStore) LoadAuthToken(ctx context.Context, platform domain.Platform, accountID string) ([]byte, error) {
	query := s.dialect.Rebind(`SELECT token FROM auth_tokens WHERE platform = ? AND account_id = ?`)

	var token string
	err := s.db.QueryRowContext(ctx, query, platform.String(), accountID).Scan(&token)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStoreError("failed to load auth token", "load_auth_token", err)
	}
	return []byte(token), nil
}
