package pipeline

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kapu/top-music-bot-go/internal/constants"
	"github.com/kapu/top-music-bot-go/internal/domain"
	"github.com/kapu/top-music-bot-go/internal/metrics"
	"github.com/kapu/top-music-bot-go/internal/platform"
	"github.com/kapu/top-music-bot-go/internal/service/cache"
	"github.com/kapu/top-music-bot-go/internal/service/database"
	"github.com/kapu/top-music-bot-go/internal/service/fixture"
	"github.com/kapu/top-music-bot-go/internal/store"
	apperrors "github.com/kapu/top-music-bot-go/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var day1 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *store.SQLStore {
	t.Helper()
	svc, err := database.NewSQLiteService(filepath.Join(t.TempDir(), "topmusic.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { svc.Close() })

	s := store.New(svc.GetDB(), store.DialectSQLite, zap.NewNop())
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return s
}

func newCache(t *testing.T) (*cache.CacheService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return cache.NewCacheServiceFromClient(client, zap.NewNop()), mr
}

// clock is shared by the fetcher and the fixture source.
type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTestFetcher(s *store.SQLStore, coordinator Coordinator, m *metrics.Metrics, c *clock) *Fetcher {
	source := &fixture.PopularitySource{Now: c.Now}
	f := NewFetcher(source, s, s, coordinator, m, 1, zap.NewNop())
	f.now = c.Now
	return f
}

// staticSource returns the same chart on every call.
type staticSource struct{ videos []platform.PopularVideo }

func (s staticSource) FetchCurrentPopularity(ctx context.Context) ([]platform.PopularVideo, error) {
	return s.videos, nil
}

func TestFetcherRanksAgainstLatestSet(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	m := metrics.New()
	c := &clock{now: day1}
	f := newTestFetcher(s, nil, m, c)

	first, err := f.Run(ctx)
	if err != nil {
		t.Fatalf("first fetch failed: %v", err)
	}
	if first.Skipped || first.Fetched == 0 || first.Stored != first.Fetched || first.Ranked != first.Fetched {
		t.Fatalf("unexpected first result %+v", first)
	}

	again, err := f.Run(ctx)
	if err != nil {
		t.Fatalf("second fetch failed: %v", err)
	}
	if !again.Skipped {
		t.Fatalf("expected same-day fetch to be skipped, got %+v", again)
	}

	c.now = day1.AddDate(0, 0, 1)
	next, err := f.Run(ctx)
	if err != nil {
		t.Fatalf("next-day fetch failed: %v", err)
	}
	if next.Skipped || next.Ranked != first.Ranked {
		t.Fatalf("unexpected next-day result %+v", next)
	}

	from := domain.StartOfDay(c.now)
	snaps, err := s.QueryWindow(ctx, from, from.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(snaps) != next.Ranked {
		t.Fatalf("expected %d snapshots, got %d", next.Ranked, len(snaps))
	}
	for _, snap := range snaps {
		if snap.Rank == nil || snap.PreviousRank == nil || snap.RankDelta == nil {
			t.Fatalf("expected ranked snapshot with a previous rank, got %+v", snap)
		}
		if *snap.RankDelta == domain.RankDeltaNew {
			t.Fatalf("video %s seen yesterday must not be NEW", snap.VideoID)
		}
	}

	meta, err := s.GetMetadata(ctx, snaps[0].VideoID)
	if err != nil || meta == nil || meta.Title == "" {
		t.Fatalf("expected metadata for %s, got %+v, %v", snaps[0].VideoID, meta, err)
	}

	if got := testutil.ToFloat64(m.FetchCycles.WithLabelValues(metrics.ResultSuccess)); got != 2 {
		t.Fatalf("expected 2 successful cycles, got %v", got)
	}
	if got := testutil.ToFloat64(m.FetchCycles.WithLabelValues(metrics.ResultSkipped)); got != 1 {
		t.Fatalf("expected 1 skipped cycle, got %v", got)
	}
}

func TestFetcherSkipsWhileLocked(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	c, mr := newCache(t)
	f := newTestFetcher(s, c, nil, &clock{now: day1})

	if err := mr.Set(constants.CacheKeys.FetchLock, "other-instance"); err != nil {
		t.Fatalf("failed to seed lock: %v", err)
	}

	result, err := f.Run(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Skipped {
		t.Fatalf("expected skip while another instance holds the lock")
	}
	if _, found, _ := s.LatestTimestamp(ctx); found {
		t.Fatalf("locked fetch must not store snapshots")
	}
}

func TestFetcherInvalidatesTopListsAndReleasesLock(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	c, mr := newCache(t)
	f := newTestFetcher(s, c, nil, &clock{now: day1})

	c.SetTopList(ctx, domain.PeriodDaily, day1, 5, []domain.Video{{VideoID: "stale"}}, time.Hour)

	if _, err := f.Run(ctx); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if _, ok := c.GetTopList(ctx, domain.PeriodDaily, day1, 5); ok {
		t.Fatalf("expected cached top list to be invalidated")
	}
	if mr.Exists(constants.CacheKeys.FetchLock) {
		t.Fatalf("expected fetch lock to be released")
	}
}

func TestFetcherRecoversDuplicateChartEntries(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	source := staticSource{videos: []platform.PopularVideo{
		{VideoID: "a", Title: "Song A", Views: 100},
		{VideoID: "b", Title: "Song B", Views: 200},
		{VideoID: "a", Title: "Song A", Views: 300},
	}}
	f := NewFetcher(source, s, s, nil, nil, 1, zap.NewNop())
	f.now = func() time.Time { return day1 }

	result, err := f.Run(ctx)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if result.Fetched != 3 || result.Stored != 2 || result.Ranked != 2 {
		t.Fatalf("expected 3 fetched, 2 stored, 2 ranked, got %+v", result)
	}

	snaps, err := s.SnapshotsAt(ctx, result.ObservedAt)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("expected one row per video, got %+v", snaps)
	}
	byID := map[string]domain.MetricSnapshot{}
	for _, snap := range snaps {
		if !snap.IsRanked() {
			t.Fatalf("expected %s annotated in place, got %+v", snap.VideoID, snap)
		}
		byID[snap.VideoID] = snap
	}
	a := byID["a"]
	if a.Views != 100 {
		t.Fatalf("the first stored row must be kept, got views %d", a.Views)
	}
	if *a.Rank != 1 || *a.ViewGrowth != 300 || *a.RankDelta != domain.RankDeltaNew {
		t.Fatalf("expected the later chart entry to rank a first, got %+v", a)
	}
	if b := byID["b"]; *b.Rank != 2 {
		t.Fatalf("expected b second, got %+v", b)
	}
}

func TestFetcherEmptyChartLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	c := &clock{now: day1}
	if _, err := newTestFetcher(s, nil, nil, c).Run(ctx); err != nil {
		t.Fatalf("seed fetch failed: %v", err)
	}
	latest, _, err := s.LatestTimestamp(ctx)
	if err != nil {
		t.Fatalf("latest failed: %v", err)
	}

	f := NewFetcher(staticSource{}, s, s, nil, nil, 1, zap.NewNop())
	next := day1.AddDate(0, 0, 1)
	f.now = func() time.Time { return next }

	result, err := f.Run(ctx)
	if !stderrors.Is(err, apperrors.ErrNoCurrentData) {
		t.Fatalf("expected ErrNoCurrentData, got %v", err)
	}
	if result.Stored != 0 || result.Ranked != 0 {
		t.Fatalf("expected nothing stored, got %+v", result)
	}

	from := domain.StartOfDay(next)
	snaps, err := s.QueryWindow(ctx, from, from.AddDate(0, 0, 1))
	if err != nil || len(snaps) != 0 {
		t.Fatalf("expected no snapshots for the empty cycle, got %d, %v", len(snaps), err)
	}
	after, _, err := s.LatestTimestamp(ctx)
	if err != nil || !after.Equal(latest) {
		t.Fatalf("latest snapshot moved from %s to %s (%v)", latest, after, err)
	}
}
