package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kapu/top-music-bot-go/internal/domain"
	"github.com/kapu/top-music-bot-go/internal/service/database"
	"github.com/kapu/top-music-bot-go/internal/store"
	"go.uber.org/zap"
)

func newStore(t *testing.T) *store.SQLStore {
	t.Helper()
	db, err := database.NewSQLiteService(filepath.Join(t.TempDir(), "migrate.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st := store.New(db.GetDB(), store.DialectSQLite, zap.NewNop())
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}

func TestValidateExport(t *testing.T) {
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	bad := domain.RankDelta("SIDEWAYS")

	cases := map[string]*export{
		"metadata without id": {Metadata: []domain.VideoMetadata{{Title: "x"}}},
		"snapshot without id": {Snapshots: []domain.MetricSnapshot{{ObservedAt: at}}},
		"missing timestamp":   {Snapshots: []domain.MetricSnapshot{{VideoID: "a"}}},
		"negative views":      {Snapshots: []domain.MetricSnapshot{{VideoID: "a", ObservedAt: at, Views: -1}}},
		"unknown delta":       {Snapshots: []domain.MetricSnapshot{{VideoID: "a", ObservedAt: at, RankDelta: &bad}}},
	}
	for name, doc := range cases {
		if err := validateExport(doc); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}

	ok := &export{Snapshots: []domain.MetricSnapshot{{VideoID: "a", ObservedAt: at, Views: 10}}}
	if err := validateExport(ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestImportExportSkipsDuplicates(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	day1 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	doc := &export{
		Metadata: []domain.VideoMetadata{{VideoID: "a", Title: "Song A"}},
		Snapshots: []domain.MetricSnapshot{
			{VideoID: "a", ObservedAt: day2, Views: 200},
			{VideoID: "a", ObservedAt: day1, Views: 100},
			{VideoID: "a", ObservedAt: day1, Views: 100},
		},
	}

	sum, err := importExport(ctx, st, doc, zap.NewNop())
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if sum.metadata != 1 || sum.snapshots != 2 || sum.duplicates != 1 || sum.days != 2 {
		t.Fatalf("unexpected summary %+v", sum)
	}

	latest, ok, err := st.LatestTimestamp(ctx)
	if err != nil || !ok || !latest.Equal(day2) {
		t.Fatalf("expected latest %s, got %s ok=%v err=%v", day2, latest, ok, err)
	}
}
