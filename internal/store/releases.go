package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/kapu/top-music-bot-go/internal/domain"
	"github.com/kapu/top-music-bot-go/pkg/errors"
)

// UpsertRelease stores release. A zero TopDay defaults to the day of
// PublishedAt.
func (s *SQLStore) UpsertRelease(ctx context.Context, release domain.Release) error {
	topDay := release.TopDay
	if topDay.IsZero() {
		topDay = release.PublishedAt
	}

	query := s.dialect.Rebind(`
		INSERT INTO releases (platform, release_id, account_id, top_day_us, published_at_us)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (platform, release_id) DO UPDATE SET
			account_id = excluded.account_id,
			top_day_us = excluded.top_day_us,
			published_at_us = excluded.published_at_us
	`)

	_, err := s.db.ExecContext(ctx, query,
		release.Platform.String(),
		release.ReleaseID,
		release.AccountID,
		toMicros(domain.StartOfDay(topDay)),
		toMicros(release.PublishedAt),
	)
	if err != nil {
		return errors.NewStoreError("failed to upsert release", "upsert_release", err)
	}
	return nil
}

// GetRelease returns nil, nil when no release matches.
func (s *SQLStore) GetRelease(ctx context.Context, platform domain.Platform, releaseID string) (*domain.Release, error) {
	query := s.dialect.Rebind(`
		SELECT platform, release_id, account_id, top_day_us, published_at_us
		FROM releases
		WHERE platform = ? AND release_id = ?
	`)

	var (
		release     domain.Release
		platformStr string
		topDayUs    int64
		publishedUs int64
	)
	err := s.db.QueryRowContext(ctx, query, platform.String(), releaseID).
		Scan(&platformStr, &release.ReleaseID, &release.AccountID, &topDayUs, &publishedUs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStoreError("failed to query release", "get_release", err)
	}

	release.Platform = domain.Platform(platformStr)
	release.TopDay = fromMicros(topDayUs)
	release.PublishedAt = fromMicros(publishedUs)
	return &release, nil
}

// IsReleasedOn reports whether the top list of the UTC day containing day was
// already published to platform, whenever the upload happened.
func (s *SQLStore) IsReleasedOn(ctx context.Context, platform domain.Platform, day time.Time) (bool, error) {
	query := s.dialect.Rebind(`
		SELECT COUNT(*) FROM releases
		WHERE platform = ? AND top_day_us = ?
	`)

	var count int
	err := s.db.QueryRowContext(ctx, query, platform.String(), toMicros(domain.StartOfDay(day))).Scan(&count)
	if err != nil {
		return false, errors.NewStoreError("failed to query releases", "is_released_on", err)
	}
	return count > 0, nil
}
