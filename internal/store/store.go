// Package store persists snapshots, video metadata, releases and platform
// tokens in PostgreSQL or SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kapu/top-music-bot-go/internal/domain"
	"go.uber.org/zap"
)

// SnapshotRepository is the time-series query surface used by the fetch cycle
// and the top list.
type SnapshotRepository interface {
	AppendSnapshot(ctx context.Context, snap domain.MetricSnapshot) error
	UpdateSnapshot(ctx context.Context, videoID string, observedAt time.Time, ann domain.SnapshotAnnotation) error
	QueryWindow(ctx context.Context, from, to time.Time, videoIDs ...string) ([]domain.MetricSnapshot, error)
	LatestTimestamp(ctx context.Context) (time.Time, bool, error)
	SnapshotsAt(ctx context.Context, ts time.Time) ([]domain.MetricSnapshot, error)
	Enrich(ctx context.Context, snap domain.MetricSnapshot) (domain.EnrichedSnapshot, error)
	EnrichAll(ctx context.Context, snaps []domain.MetricSnapshot) ([]domain.EnrichedSnapshot, error)
}

type MetadataRepository interface {
	UpsertMetadata(ctx context.Context, meta domain.VideoMetadata) error
	GetMetadata(ctx context.Context, videoID string) (*domain.VideoMetadata, error)
	GetMetadataBatch(ctx context.Context, videoIDs []string) (map[string]*domain.VideoMetadata, error)
}

type ReleaseRepository interface {
	UpsertRelease(ctx context.Context, release domain.Release) error
	GetRelease(ctx context.Context, platform domain.Platform, releaseID string) (*domain.Release, error)
	IsReleasedOn(ctx context.Context, platform domain.Platform, day time.Time) (bool, error)
}

type AuthTokenRepository interface {
	SaveAuthToken(ctx context.Context, platform domain.Platform, accountID string, token []byte) error
	LoadAuthToken(ctx context.Context, platform domain.Platform, accountID string) ([]byte, error)
}

// Dialect selects placeholder syntax and schema types.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

func ParseDialect(value string) (Dialect, error) {
	switch Dialect(strings.ToLower(strings.TrimSpace(value))) {
	case DialectPostgres:
		return DialectPostgres, nil
	case DialectSQLite:
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unknown store driver %q", value)
	}
}

// Rebind rewrites ? placeholders to $n for PostgreSQL.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStore implements every repository interface on a single database.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

func New(db *sql.DB, dialect Dialect, logger *zap.Logger) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		logger:  logger,
	}
}

func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

func toMicros(t time.Time) int64 {
	return domain.NormalizeTimestamp(t).UnixMicro()
}

func fromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullDelta(v *domain.RankDelta) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: v.String(), Valid: true}
}
