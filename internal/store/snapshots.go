package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/kapu/top-music-bot-go/internal/domain"
	"github.com/kapu/top-music-bot-go/pkg/errors"
	"go.uber.org/zap"
)

const snapshotColumns = `video_id, observed_at_us, views, likes, view_growth, rank, rank_delta, previous_rank`

// AppendSnapshot inserts a raw snapshot. An existing (video_id, observed_at)
// row is left untouched and ErrDuplicateSnapshotKey is returned.
func (s *SQLStore) AppendSnapshot(ctx context.Context, snap domain.MetricSnapshot) error {
	query := s.dialect.Rebind(`
		INSERT INTO video_snapshots (` + snapshotColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (video_id, observed_at_us) DO NOTHING
	`)

	res, err := s.db.ExecContext(ctx, query,
		snap.VideoID,
		toMicros(snap.ObservedAt),
		snap.Views,
		snap.Likes,
		nullInt64(snap.ViewGrowth),
		nullInt(snap.Rank),
		nullDelta(snap.RankDelta),
		nullInt(snap.PreviousRank),
	)
	if err != nil {
		return errors.NewStoreError("failed to insert snapshot", "append_snapshot", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.NewStoreError("failed to read insert result", "append_snapshot", err)
	}
	if affected == 0 {
		return errors.NewStoreError(
			fmt.Sprintf("snapshot %s@%s already stored", snap.VideoID, domain.NormalizeTimestamp(snap.ObservedAt).Format(time.RFC3339Nano)),
			"append_snapshot",
			errors.ErrDuplicateSnapshotKey,
		)
	}
	return nil
}

// UpdateSnapshot writes the ranking-derived fields of one snapshot.
func (s *SQLStore) UpdateSnapshot(ctx context.Context, videoID string, observedAt time.Time, ann domain.SnapshotAnnotation) error {
	query := s.dialect.Rebind(`
		UPDATE video_snapshots
		SET view_growth = ?, rank = ?, rank_delta = ?, previous_rank = ?
		WHERE video_id = ? AND observed_at_us = ?
	`)

	res, err := s.db.ExecContext(ctx, query,
		nullInt64(ann.ViewGrowth),
		nullInt(ann.Rank),
		nullDelta(ann.RankDelta),
		nullInt(ann.PreviousRank),
		videoID,
		toMicros(observedAt),
	)
	if err != nil {
		return errors.NewStoreError("failed to update snapshot", "update_snapshot", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.NewStoreError("failed to read update result", "update_snapshot", err)
	}
	if affected == 0 {
		return errors.NewStoreError(
			fmt.Sprintf("no snapshot for %s@%s", videoID, domain.NormalizeTimestamp(observedAt).Format(time.RFC3339Nano)),
			"update_snapshot",
			errors.ErrSnapshotNotFound,
		)
	}
	return nil
}

// QueryWindow returns the snapshots observed in [from, to), optionally
// restricted to videoIDs, ordered by video id then time.
func (s *SQLStore) QueryWindow(ctx context.Context, from, to time.Time, videoIDs ...string) ([]domain.MetricSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM video_snapshots WHERE observed_at_us >= ? AND observed_at_us < ?`
	args := []any{toMicros(from), toMicros(to)}

	if len(videoIDs) > 0 {
		query += ` AND video_id IN (` + placeholders(len(videoIDs)) + `)`
		for _, id := range videoIDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY video_id ASC, observed_at_us ASC`

	return s.querySnapshots(ctx, "query_window", s.dialect.Rebind(query), args...)
}

// LatestTimestamp returns the most recent observation instant. ok is false
// when the store holds no snapshots.
func (s *SQLStore) LatestTimestamp(ctx context.Context) (time.Time, bool, error) {
	var latest sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(observed_at_us) FROM video_snapshots`).Scan(&latest); err != nil {
		return time.Time{}, false, errors.NewStoreError("failed to query latest timestamp", "latest_timestamp", err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	return fromMicros(latest.Int64), true, nil
}

// SnapshotsAt returns every snapshot observed at exactly ts.
func (s *SQLStore) SnapshotsAt(ctx context.Context, ts time.Time) ([]domain.MetricSnapshot, error) {
	query := s.dialect.Rebind(`SELECT ` + snapshotColumns + ` FROM video_snapshots WHERE observed_at_us = ? ORDER BY video_id ASC`)
	return s.querySnapshots(ctx, "snapshots_at", query, toMicros(ts))
}

// Enrich joins a snapshot with its metadata. Missing metadata is logged and
// leaves Metadata nil.
func (s *SQLStore) Enrich(ctx context.Context, snap domain.MetricSnapshot) (domain.EnrichedSnapshot, error) {
	meta, err := s.GetMetadata(ctx, snap.VideoID)
	if err != nil {
		return domain.EnrichedSnapshot{}, err
	}
	if meta == nil {
		s.logger.Warn("Video metadata missing",
			zap.String("video_id", snap.VideoID),
			zap.Error(errors.ErrMetadataMissing),
		)
	}
	return domain.EnrichedSnapshot{MetricSnapshot: snap, Metadata: meta}, nil
}

// EnrichAll is the batch form of Enrich, issuing a single metadata query.
func (s *SQLStore) EnrichAll(ctx context.Context, snaps []domain.MetricSnapshot) ([]domain.EnrichedSnapshot, error) {
	if len(snaps) == 0 {
		return []domain.EnrichedSnapshot{}, nil
	}

	seen := make(map[string]struct{}, len(snaps))
	ids := make([]string, 0, len(snaps))
	for _, snap := range snaps {
		if _, ok := seen[snap.VideoID]; ok {
			continue
		}
		seen[snap.VideoID] = struct{}{}
		ids = append(ids, snap.VideoID)
	}
	sort.Strings(ids)

	metas, err := s.GetMetadataBatch(ctx, ids)
	if err != nil {
		return nil, err
	}

	enriched := make([]domain.EnrichedSnapshot, 0, len(snaps))
	missing := 0
	for _, snap := range snaps {
		meta := metas[snap.VideoID]
		if meta == nil {
			missing++
		}
		enriched = append(enriched, domain.EnrichedSnapshot{MetricSnapshot: snap, Metadata: meta})
	}
	if missing > 0 {
		s.logger.Warn("Video metadata missing for some snapshots",
			zap.Int("missing", missing),
			zap.Int("total", len(snaps)),
			zap.Error(errors.ErrMetadataMissing),
		)
	}
	return enriched, nil
}

func (s *SQLStore) querySnapshots(ctx context.Context, operation, query string, args ...any) ([]domain.MetricSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewStoreError("failed to query snapshots", operation, err)
	}
	defer rows.Close()

	snaps := make([]domain.MetricSnapshot, 0)
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, errors.NewStoreError("failed to scan snapshot", operation, err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("failed to iterate snapshots", operation, err)
	}
	return snaps, nil
}

func scanSnapshot(rows *sql.Rows) (domain.MetricSnapshot, error) {
	var (
		snap         domain.MetricSnapshot
		observedAtUs int64
		growth       sql.NullInt64
		rank         sql.NullInt64
		delta        sql.NullString
		previousRank sql.NullInt64
	)

	if err := rows.Scan(&snap.VideoID, &observedAtUs, &snap.Views, &snap.Likes, &growth, &rank, &delta, &previousRank); err != nil {
		return domain.MetricSnapshot{}, err
	}

	snap.ObservedAt = fromMicros(observedAtUs)
	if growth.Valid {
		snap.ViewGrowth = domain.Int64Ptr(growth.Int64)
	}
	if rank.Valid {
		snap.Rank = domain.IntPtr(int(rank.Int64))
	}
	if delta.Valid {
		parsed, err := domain.ParseRankDelta(delta.String)
		if err != nil {
			return domain.MetricSnapshot{}, err
		}
		snap.RankDelta = domain.RankDeltaPtr(parsed)
	}
	if previousRank.Valid {
		snap.PreviousRank = domain.IntPtr(int(previousRank.Int64))
	}
	return snap, nil
}
