package pipeline

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kapu/top-music-bot-go/internal/constants"
	"github.com/kapu/top-music-bot-go/internal/domain"
	"github.com/kapu/top-music-bot-go/internal/metrics"
	"github.com/kapu/top-music-bot-go/internal/platform"
	"github.com/kapu/top-music-bot-go/internal/service/fixture"
	"github.com/kapu/top-music-bot-go/internal/store"
	"github.com/kapu/top-music-bot-go/internal/toplist"
	apperrors "github.com/kapu/top-music-bot-go/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

type fakeBuilder struct {
	mu       sync.Mutex
	requests []PublishRequest
	videos   [][]domain.Video
	err      error
	onBuild  func()
}

func (b *fakeBuilder) Build(ctx context.Context, videos []domain.Video, req PublishRequest) (Built, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	b.videos = append(b.videos, videos)
	if b.onBuild != nil {
		b.onBuild()
	}
	if b.err != nil {
		return Built{}, b.err
	}
	return Built{VideoPath: "/out/top.mp4", ThumbnailPath: "/out/top.jpg"}, nil
}

type publishFixture struct {
	store     *store.SQLStore
	publisher *Publisher
	builder   *fakeBuilder
	shorts    *fixture.Publisher
	tiktok    *fixture.Publisher
	instagram *fixture.Publisher
	weekly    *fixture.Publisher
	syncer    *fixture.PlaylistSyncer
	metrics   *metrics.Metrics
	day       time.Time
}

// newPublishFixture stores two consecutive daily snapshot sets and wires a
// publisher with three vertical targets and one horizontal target.
func newPublishFixture(t *testing.T) *publishFixture {
	t.Helper()
	ctx := context.Background()
	s := newStore(t)
	c := &clock{now: day1}
	f := newTestFetcher(s, nil, nil, c)
	if _, err := f.Run(ctx); err != nil {
		t.Fatalf("seed fetch failed: %v", err)
	}
	c.now = day1.AddDate(0, 0, 1)
	if _, err := f.Run(ctx); err != nil {
		t.Fatalf("seed fetch failed: %v", err)
	}

	pf := &publishFixture{
		store:     s,
		builder:   &fakeBuilder{},
		shorts:    fixture.NewPublisher(domain.PlatformYouTube, "yt-account"),
		tiktok:    fixture.NewPublisher(domain.PlatformTikTok, "tt-account"),
		instagram: fixture.NewPublisher(domain.PlatformInstagram, "ig-account"),
		weekly:    fixture.NewPublisher(domain.PlatformYouTube, "yt-account"),
		syncer:    fixture.NewPlaylistSyncer("links"),
		metrics:   metrics.New(),
		day:       c.now,
	}
	pf.tiktok.FailWith(stderrors.New("upload rejected"))

	targets := []Target{
		{Publisher: pf.shorts, Release: domain.PlatformYouTubeShorts, Vertical: true,
			Playlists: map[domain.Period]string{domain.PeriodDaily: "PL-daily"}},
		{Publisher: pf.tiktok, Vertical: true},
		{Publisher: pf.instagram, Vertical: true},
		{Publisher: pf.weekly, Playlists: map[domain.Period]string{domain.PeriodWeekly: "PL-weekly"}},
	}
	templates := Templates{
		Title:       "Top @@TOP_DATE@@ @@HASHTAGS@@",
		Description: "@@VIDEO_LIST@@@@DISCLAIMER@@",
		Disclaimer:  "Clips belong to their owners.",
	}
	top := toplist.NewService(s, nil, zap.NewNop())
	pf.publisher = NewPublisher(top, s, pf.builder, templates, targets,
		[]platform.PlaylistSyncer{pf.syncer}, nil, pf.metrics, zap.NewNop())
	pf.publisher.now = func() time.Time { return pf.day.Add(2 * time.Hour) }
	return pf
}

func outcomeFor(t *testing.T, report PublishReport, p domain.Platform) PlatformOutcome {
	t.Helper()
	for _, o := range report.Outcomes {
		if o.Platform == p {
			return o
		}
	}
	t.Fatalf("no outcome for %s in %+v", p, report.Outcomes)
	return PlatformOutcome{}
}

func TestPublisherPublishesEachTargetIndependently(t *testing.T) {
	ctx := context.Background()
	pf := newPublishFixture(t)

	req := PublishRequest{Period: domain.PeriodDaily, Day: pf.day, Limit: 5, Vertical: true}
	report, err := pf.publisher.Run(ctx, req)
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if report.Videos != 5 || len(pf.builder.videos) != 1 || len(pf.builder.videos[0]) != 5 {
		t.Fatalf("expected a 5 video render, got report %d and builds %d", report.Videos, len(pf.builder.videos))
	}
	if !pf.builder.requests[0].Vertical {
		t.Fatalf("expected a vertical render")
	}
	if len(report.Outcomes) != 3 || report.Published() != 2 {
		t.Fatalf("expected 2 of 3 vertical targets published, got %+v", report.Outcomes)
	}

	failed := outcomeFor(t, report, domain.PlatformTikTok)
	if failed.Status != StatusFailed || !stderrors.Is(failed.Err, apperrors.ErrUpstreamPublish) {
		t.Fatalf("expected TikTok publish error, got %+v", failed)
	}
	if o := outcomeFor(t, report, domain.PlatformYouTubeShorts); o.Status != StatusPublished || o.ReleaseID == "" {
		t.Fatalf("expected shorts release, got %+v", o)
	}

	uploads := pf.shorts.Published()
	if len(uploads) != 1 {
		t.Fatalf("expected one shorts upload, got %d", len(uploads))
	}
	if uploads[0].PlaylistID != "PL-daily" || uploads[0].FilePath != "/out/top.mp4" || !uploads[0].Vertical {
		t.Fatalf("unexpected artifact %+v", uploads[0])
	}
	if !strings.Contains(uploads[0].Title, "#top5") {
		t.Fatalf("expected title to carry the top size, got %q", uploads[0].Title)
	}
	if len(pf.weekly.Published()) != 0 {
		t.Fatalf("horizontal target must not receive a vertical video")
	}

	syncs := pf.syncer.Syncs()
	if len(syncs) != 1 || len(syncs[0]) <= 5 {
		t.Fatalf("expected playlist sync with the full top list, got %v", syncs)
	}

	released, err := pf.store.IsReleasedOn(ctx, domain.PlatformYouTubeShorts, pf.day)
	if err != nil || !released {
		t.Fatalf("expected shorts release recorded, got %v, %v", released, err)
	}
	released, _ = pf.store.IsReleasedOn(ctx, domain.PlatformTikTok, pf.day)
	if released {
		t.Fatalf("failed platform must not be recorded as released")
	}
	released, _ = pf.store.IsReleasedOn(ctx, domain.PlatformYouTube, pf.day)
	if released {
		t.Fatalf("shorts release must not gate the horizontal video")
	}
}

func TestPublisherSkipsReleasedTargets(t *testing.T) {
	ctx := context.Background()
	pf := newPublishFixture(t)
	req := PublishRequest{Period: domain.PeriodDaily, Day: pf.day, Limit: 5, Vertical: true}

	if _, err := pf.publisher.Run(ctx, req); err != nil {
		t.Fatalf("first publish failed: %v", err)
	}
	report, err := pf.publisher.Run(ctx, req)
	if err != nil {
		t.Fatalf("second publish failed: %v", err)
	}

	if o := outcomeFor(t, report, domain.PlatformInstagram); o.Status != StatusSkipped {
		t.Fatalf("expected instagram skipped, got %+v", o)
	}
	if o := outcomeFor(t, report, domain.PlatformTikTok); o.Status != StatusFailed {
		t.Fatalf("expected tiktok retried, got %+v", o)
	}
	if len(pf.instagram.Published()) != 1 {
		t.Fatalf("expected exactly one instagram upload")
	}
	if got := testutil.ToFloat64(pf.metrics.Publishes.WithLabelValues("TIKTOK", metrics.ResultError)); got != 2 {
		t.Fatalf("expected 2 tiktok errors, got %v", got)
	}
}

func TestPublisherHoldsPublishLockForWholeCycle(t *testing.T) {
	ctx := context.Background()
	pf := newPublishFixture(t)
	cacheSvc, mr := newCache(t)
	pf.publisher.coordinator = cacheSvc

	var held bool
	var ttl time.Duration
	pf.builder.onBuild = func() {
		held = mr.Exists(constants.CacheKeys.PublishLock)
		ttl = mr.TTL(constants.CacheKeys.PublishLock)
	}

	req := PublishRequest{Period: domain.PeriodDaily, Day: pf.day, Limit: 5, Vertical: true}
	if _, err := pf.publisher.Run(ctx, req); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if !held {
		t.Fatal("expected the publish lock to be held during the render")
	}
	if ttl != constants.CacheTTL.PublishLock {
		t.Fatalf("expected publish lock ttl %s, got %s", constants.CacheTTL.PublishLock, ttl)
	}
	if ttl <= constants.CacheTTL.FetchLock {
		t.Fatalf("publish lock ttl %s must outlast the fetch lock ttl %s", ttl, constants.CacheTTL.FetchLock)
	}
	if mr.Exists(constants.CacheKeys.PublishLock) {
		t.Fatal("expected the publish lock to be released after the cycle")
	}
}

func TestPublisherGatesPastDayByTopListDay(t *testing.T) {
	ctx := context.Background()
	pf := newPublishFixture(t)
	pf.publisher.now = func() time.Time { return pf.day.AddDate(0, 0, 1).Add(2 * time.Hour) }
	req := PublishRequest{Period: domain.PeriodDaily, Day: pf.day, Limit: 5, Vertical: true}

	if _, err := pf.publisher.Run(ctx, req); err != nil {
		t.Fatalf("first publish failed: %v", err)
	}
	report, err := pf.publisher.Run(ctx, req)
	if err != nil {
		t.Fatalf("second publish failed: %v", err)
	}

	if o := outcomeFor(t, report, domain.PlatformInstagram); o.Status != StatusSkipped {
		t.Fatalf("expected instagram skipped on rerun, got %+v", o)
	}
	if n := len(pf.instagram.Published()); n != 1 {
		t.Fatalf("expected one instagram upload, got %d", n)
	}

	released, err := pf.store.IsReleasedOn(ctx, domain.PlatformInstagram, pf.day.AddDate(0, 0, 1))
	if err != nil || released {
		t.Fatalf("upload day must stay free for its own top list, got %v, %v", released, err)
	}
}

func TestPublisherDoesNotRenderWhenEverythingReleased(t *testing.T) {
	ctx := context.Background()
	pf := newPublishFixture(t)

	release := domain.Release{Platform: domain.PlatformYouTube, AccountID: "yt-account", ReleaseID: "old", PublishedAt: pf.day.Add(time.Hour)}
	if err := pf.store.UpsertRelease(ctx, release); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	report, err := pf.publisher.Run(ctx, PublishRequest{Period: domain.PeriodWeekly, Day: pf.day, Limit: 25})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if len(pf.builder.requests) != 0 {
		t.Fatalf("expected no render when nothing is pending")
	}
	if len(report.Outcomes) != 1 || report.Outcomes[0].Status != StatusSkipped {
		t.Fatalf("unexpected outcomes %+v", report.Outcomes)
	}
}

func TestPublisherRenderFailureAbortsCycle(t *testing.T) {
	pf := newPublishFixture(t)
	pf.builder.err = stderrors.New("ffmpeg exited 1")

	_, err := pf.publisher.Run(context.Background(), PublishRequest{Period: domain.PeriodDaily, Day: pf.day, Limit: 5, Vertical: true})
	if err == nil {
		t.Fatalf("expected render error")
	}
	if len(pf.shorts.Published()) != 0 {
		t.Fatalf("nothing may be published after a failed render")
	}
}

func TestPublisherDue(t *testing.T) {
	ctx := context.Background()
	pf := newPublishFixture(t)

	due, err := pf.publisher.Due(ctx, false, pf.day, 7)
	if err != nil || !due {
		t.Fatalf("expected weekly due without releases, got %v, %v", due, err)
	}

	release := domain.Release{Platform: domain.PlatformYouTube, AccountID: "yt-account", ReleaseID: "w1", PublishedAt: pf.day.AddDate(0, 0, -3)}
	if err := pf.store.UpsertRelease(ctx, release); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	if due, _ := pf.publisher.Due(ctx, false, pf.day, 7); due {
		t.Fatalf("expected weekly not due three days after a release")
	}
	if due, _ := pf.publisher.Due(ctx, false, pf.day.AddDate(0, 0, 5), 7); !due {
		t.Fatalf("expected weekly due eight days after a release")
	}
}
