package store

import (
	"context"
	"fmt"

	"github.com/kapu/top-music-bot-go/pkg/errors"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS video_snapshots (
		video_id TEXT NOT NULL,
		observed_at_us BIGINT NOT NULL,
		views BIGINT NOT NULL,
		likes BIGINT NOT NULL,
		view_growth BIGINT,
		rank INTEGER,
		rank_delta TEXT,
		previous_rank INTEGER,
		PRIMARY KEY (video_id, observed_at_us)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_video_snapshots_observed ON video_snapshots(observed_at_us)`,
	`CREATE TABLE IF NOT EXISTS video_metadata (
		video_id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		channel_id TEXT,
		channel_name TEXT,
		duration_seconds BIGINT NOT NULL DEFAULT 0,
		updated_at_us BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS releases (
		platform TEXT NOT NULL,
		release_id TEXT NOT NULL,
		account_id TEXT NOT NULL DEFAULT '',
		top_day_us BIGINT NOT NULL,
		published_at_us BIGINT NOT NULL,
		PRIMARY KEY (platform, release_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_releases_top_day ON releases(platform, top_day_us)`,
	`CREATE TABLE IF NOT EXISTS auth_tokens (
		platform TEXT NOT NULL,
		account_id TEXT NOT NULL,
		token TEXT NOT NULL,
		updated_at_us BIGINT NOT NULL,
		PRIMARY KEY (platform, account_id)
	)`,
}

// Migrate creates the tables when they do not exist yet. The statements are
// portable between PostgreSQL and SQLite.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for i, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.NewStoreError(fmt.Sprintf("schema statement %d failed", i+1), "migrate", err)
		}
	}
	s.logger.Debug("Schema ensured")
	return nil
}
