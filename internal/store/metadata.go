package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/kapu/top-music-bot-go/internal/domain"
	"github.com/kapu/top-music-bot-go/pkg/errors"
)

func (s *SQLStore) UpsertMetadata(ctx context.Context, meta domain.VideoMetadata) error {
	query := s.dialect.Rebind(`
		INSERT INTO video_metadata (video_id, title, description, channel_id, channel_name, duration_seconds, updated_at_us)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (video_id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			channel_id = excluded.channel_id,
			channel_name = excluded.channel_name,
			duration_seconds = excluded.duration_seconds,
			updated_at_us = excluded.updated_at_us
	`)

	var channelID, channelName sql.NullString
	if meta.Channel != nil {
		channelID = sql.NullString{String: meta.Channel.ID, Valid: true}
		channelName = sql.NullString{String: meta.Channel.Name, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		meta.VideoID,
		meta.Title,
		meta.Description,
		channelID,
		channelName,
		meta.DurationSeconds,
		toMicros(time.Now()),
	)
	if err != nil {
		return errors.NewStoreError("failed to upsert video metadata", "upsert_metadata", err)
	}
	return nil
}

// GetMetadata returns nil, nil when the video is unknown.
func (s *SQLStore) GetMetadata(ctx context.Context, videoID string) (*domain.VideoMetadata, error) {
	query := s.dialect.Rebind(`
		SELECT video_id, title, description, channel_id, channel_name, duration_seconds
		FROM video_metadata
		WHERE video_id = ?
	`)

	rows, err := s.db.QueryContext(ctx, query, videoID)
	if err != nil {
		return nil, errors.NewStoreError("failed to query video metadata", "get_metadata", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, errors.NewStoreError("failed to query video metadata", "get_metadata", err)
		}
		return nil, nil
	}
	meta, err := scanMetadata(rows)
	if err != nil {
		return nil, errors.NewStoreError("failed to scan video metadata", "get_metadata", err)
	}
	return meta, nil
}

func (s *SQLStore) GetMetadataBatch(ctx context.Context, videoIDs []string) (map[string]*domain.VideoMetadata, error) {
	result := make(map[string]*domain.VideoMetadata, len(videoIDs))
	if len(videoIDs) == 0 {
		return result, nil
	}

	query := s.dialect.Rebind(`
		SELECT video_id, title, description, channel_id, channel_name, duration_seconds
		FROM video_metadata
		WHERE video_id IN (` + placeholders(len(videoIDs)) + `)
	`)
	args := make([]any, 0, len(videoIDs))
	for _, id := range videoIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewStoreError("failed to query video metadata batch", "get_metadata_batch", err)
	}
	defer rows.Close()

	for rows.Next() {
		meta, err := scanMetadata(rows)
		if err != nil {
			return nil, errors.NewStoreError("failed to scan video metadata", "get_metadata_batch", err)
		}
		result[meta.VideoID] = meta
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("failed to iterate video metadata", "get_metadata_batch", err)
	}
	return result, nil
}

func scanMetadata(rows *sql.Rows) (*domain.VideoMetadata, error) {
	var (
		meta        domain.VideoMetadata
		channelID   sql.NullString
		channelName sql.NullString
	)
	if err := rows.Scan(&meta.VideoID, &meta.Title, &meta.Description, &channelID, &channelName, &meta.DurationSeconds); err != nil {
		return nil, err
	}
	if channelID.Valid || channelName.Valid {
		meta.Channel = &domain.Channel{ID: channelID.String, Name: channelName.String}
	}
	return &meta, nil
}
