package toplist

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kapu/top-music-bot-go/internal/domain"
	"github.com/kapu/top-music-bot-go/internal/service/cache"
	"github.com/kapu/top-music-bot-go/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type fakeSnapshots struct {
	snaps    []domain.MetricSnapshot
	metadata map[string]*domain.VideoMetadata
	queries  int
}

func (f *fakeSnapshots) AppendSnapshot(ctx context.Context, snap domain.MetricSnapshot) error {
	f.snaps = append(f.snaps, snap)
	return nil
}

func (f *fakeSnapshots) UpdateSnapshot(ctx context.Context, videoID string, observedAt time.Time, ann domain.SnapshotAnnotation) error {
	return nil
}

func (f *fakeSnapshots) QueryWindow(ctx context.Context, from, to time.Time, videoIDs ...string) ([]domain.MetricSnapshot, error) {
	f.queries++
	out := []domain.MetricSnapshot{}
	for _, s := range f.snaps {
		if !s.ObservedAt.Before(from) && s.ObservedAt.Before(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSnapshots) LatestTimestamp(ctx context.Context) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

func (f *fakeSnapshots) SnapshotsAt(ctx context.Context, ts time.Time) ([]domain.MetricSnapshot, error) {
	return nil, nil
}

func (f *fakeSnapshots) Enrich(ctx context.Context, snap domain.MetricSnapshot) (domain.EnrichedSnapshot, error) {
	return domain.EnrichedSnapshot{MetricSnapshot: snap, Metadata: f.metadata[snap.VideoID]}, nil
}

func (f *fakeSnapshots) EnrichAll(ctx context.Context, snaps []domain.MetricSnapshot) ([]domain.EnrichedSnapshot, error) {
	out := make([]domain.EnrichedSnapshot, len(snaps))
	for i, s := range snaps {
		out[i], _ = f.Enrich(ctx, s)
	}
	return out, nil
}

var day = time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC)

func snap(id string, at time.Time, views int64) domain.MetricSnapshot {
	return domain.MetricSnapshot{VideoID: id, ObservedAt: at, Views: views}
}

func ranked(s domain.MetricSnapshot, rank int) domain.MetricSnapshot {
	s.Rank = domain.IntPtr(rank)
	return s
}

func weeklyFixture() *fakeSnapshots {
	prev := day.AddDate(0, 0, -7).Add(9 * time.Hour)
	cur := day.Add(9 * time.Hour)
	return &fakeSnapshots{
		snaps: []domain.MetricSnapshot{
			ranked(snap("a", prev, 100), 1),
			ranked(snap("b", prev, 100), 2),
			snap("a", cur, 150),
			snap("b", cur, 400),
			snap("c", cur, 50),
			// outside both windows
			snap("z", day.AddDate(0, 0, -3), 1),
		},
		metadata: map[string]*domain.VideoMetadata{
			"a": {VideoID: "a", Title: "Song A", Channel: &domain.Channel{Name: "Artist A"}},
			"b": {VideoID: "b", Title: "Song B"},
		},
	}
}

func TestWindows(t *testing.T) {
	curFrom, curTo, prevFrom, prevTo := Windows(domain.PeriodDaily, day.Add(15*time.Hour))
	if !curFrom.Equal(day) || !curTo.Equal(day.AddDate(0, 0, 1)) {
		t.Fatalf("unexpected current window %s - %s", curFrom, curTo)
	}
	if !prevFrom.Equal(day.AddDate(0, 0, -1)) || !prevTo.Equal(day) {
		t.Fatalf("unexpected previous window %s - %s", prevFrom, prevTo)
	}

	_, _, prevFrom, prevTo = Windows(domain.PeriodWeekly, day)
	if !prevFrom.Equal(day.AddDate(0, 0, -7)) || !prevTo.Equal(day.AddDate(0, 0, -6)) {
		t.Fatalf("unexpected weekly previous window %s - %s", prevFrom, prevTo)
	}
}

func TestTopVideosWeekly(t *testing.T) {
	svc := NewService(weeklyFixture(), nil, zap.NewNop())

	videos, err := svc.TopVideos(context.Background(), domain.PeriodWeekly, day, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(videos) != 3 {
		t.Fatalf("expected 3 videos, got %d", len(videos))
	}

	// b grew 300, c is new with 50 views, a grew 50 (ties keep query order)
	wantOrder := []string{"b", "a", "c"}
	wantGrowth := []int64{300, 50, 50}
	for i, v := range videos {
		if v.VideoID != wantOrder[i] {
			t.Fatalf("position %d: expected %s, got %s", i, wantOrder[i], v.VideoID)
		}
		if v.GrowthValue() != wantGrowth[i] || v.RankValue() != i+1 {
			t.Fatalf("%s: unexpected growth %d rank %d", v.VideoID, v.GrowthValue(), v.RankValue())
		}
	}

	if videos[0].Delta() != domain.RankDeltaUp {
		t.Fatalf("b moved from 2 to 1, expected UP, got %s", videos[0].Delta())
	}
	if videos[1].Delta() != domain.RankDeltaDown {
		t.Fatalf("a moved from 1 to 2, expected DOWN, got %s", videos[1].Delta())
	}
	if videos[2].Delta() != domain.RankDeltaNew {
		t.Fatalf("c has no baseline, expected NEW, got %s", videos[2].Delta())
	}
	if videos[1].Title != "Song A" || videos[1].Channel.GetDisplayName() != "Artist A" {
		t.Fatalf("metadata not attached: %+v", videos[1])
	}
	if videos[2].Title != "" {
		t.Fatalf("video without metadata should have empty title")
	}
}

func TestTopVideosLimit(t *testing.T) {
	svc := NewService(weeklyFixture(), nil, zap.NewNop())

	videos, err := svc.TopVideos(context.Background(), domain.PeriodWeekly, day, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(videos) != 2 || videos[0].VideoID != "b" {
		t.Fatalf("unexpected limited result %+v", videos)
	}
}

func TestTopVideosWithoutBaselineMarksAllNew(t *testing.T) {
	svc := NewService(weeklyFixture(), nil, zap.NewNop())

	videos, err := svc.TopVideos(context.Background(), domain.PeriodDaily, day, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, v := range videos {
		if v.Delta() != domain.RankDeltaNew {
			t.Fatalf("%s: expected NEW without baseline, got %s", v.VideoID, v.Delta())
		}
	}
	if videos[0].VideoID != "b" || videos[0].GrowthValue() != 400 {
		t.Fatalf("growth should fall back to views, got %+v", videos[0])
	}
}

func TestTopVideosNoCurrentData(t *testing.T) {
	svc := NewService(weeklyFixture(), nil, zap.NewNop())

	_, err := svc.TopVideos(context.Background(), domain.PeriodWeekly, day.AddDate(0, 0, 5), 0)
	if !stderrors.Is(err, errors.ErrNoCurrentData) {
		t.Fatalf("expected ErrNoCurrentData, got %v", err)
	}
}

func TestTopVideosUsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cacheSvc := cache.NewCacheServiceFromClient(client, zap.NewNop())
	t.Cleanup(func() { _ = cacheSvc.Close() })

	repo := weeklyFixture()
	svc := NewService(repo, cacheSvc, zap.NewNop())
	ctx := context.Background()

	first, err := svc.TopVideos(ctx, domain.PeriodWeekly, day, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	queries := repo.queries

	second, err := svc.TopVideos(ctx, domain.PeriodWeekly, day, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.queries != queries {
		t.Fatalf("expected cached result without store queries")
	}
	if len(second) != len(first) || second[0].VideoID != first[0].VideoID || second[0].Delta() != first[0].Delta() {
		t.Fatalf("cached result differs: %+v vs %+v", second, first)
	}

	if _, err := cacheSvc.InvalidateTopLists(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := svc.TopVideos(ctx, domain.PeriodWeekly, day, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.queries == queries {
		t.Fatalf("expected store queries after invalidation")
	}
}
