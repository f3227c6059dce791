// Command migrate applies the schema and optionally imports a JSON export of
// chart history (video metadata plus metric snapshots) into the store.
package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/kapu/top-music-bot-go/internal/app"
	"github.com/kapu/top-music-bot-go/internal/config"
	"github.com/kapu/top-music-bot-go/internal/domain"
	"github.com/kapu/top-music-bot-go/internal/store"
	"github.com/kapu/top-music-bot-go/internal/util"
	"github.com/kapu/top-music-bot-go/pkg/errors"
	"go.uber.org/zap"
)

var (
	importFile = flag.String("import", "", "JSON export with metadata and snapshots to load")
	dryRun     = flag.Bool("dry-run", false, "validate the import without writing to the store")
)

// export is a dump of the chart history.
type export struct {
	Metadata  []domain.VideoMetadata  `json:"metadata"`
	Snapshots []domain.MetricSnapshot `json:"snapshots"`
}

type importer interface {
	store.MetadataRepository
	AppendSnapshot(ctx context.Context, snap domain.MetricSnapshot) error
}

type summary struct {
	metadata   int
	snapshots  int
	duplicates int
	days       int
}

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := util.NewLogger(util.LogOptions{
		Level: cfg.Logging.Level,
		File:  cfg.Logging.File,
		JSON:  cfg.Logging.JSON,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error("Migration failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	var doc *export
	if *importFile != "" {
		var err error
		if doc, err = loadExport(*importFile); err != nil {
			return err
		}
		if err := validateExport(doc); err != nil {
			return err
		}
		logger.Info("Import validated",
			zap.Int("metadata", len(doc.Metadata)),
			zap.Int("snapshots", len(doc.Snapshots)),
		)
	}

	if *dryRun {
		logger.Info("Dry run completed, no changes written")
		return nil
	}

	// OpenStore applies the schema.
	st, _, closeStore, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info("Schema up to date", zap.String("driver", cfg.Store.Driver))

	if doc == nil {
		return nil
	}
	sum, err := importExport(ctx, st, doc, logger)
	if err != nil {
		return err
	}
	logger.Info("Import completed",
		zap.Int("metadata", sum.metadata),
		zap.Int("snapshots", sum.snapshots),
		zap.Int("duplicates", sum.duplicates),
		zap.Int("days", sum.days),
	)
	return nil
}

func loadExport(path string) (*export, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	var doc export
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode export: %w", err)
	}
	return &doc, nil
}

func validateExport(doc *export) error {
	for i, meta := range doc.Metadata {
		if meta.VideoID == "" {
			return errors.NewValidationError(fmt.Sprintf("metadata[%d] has no video_id", i), "video_id", "")
		}
	}
	for i, snap := range doc.Snapshots {
		if snap.VideoID == "" {
			return errors.NewValidationError(fmt.Sprintf("snapshots[%d] has no video_id", i), "video_id", "")
		}
		if snap.ObservedAt.IsZero() {
			return errors.NewValidationError(fmt.Sprintf("snapshots[%d] has no observed_at", i), "observed_at", snap.VideoID)
		}
		if snap.Views < 0 || snap.Likes < 0 {
			return errors.NewValidationError(fmt.Sprintf("snapshots[%d] has negative counters", i), "views", snap.VideoID)
		}
		if snap.RankDelta != nil && !snap.RankDelta.IsValid() {
			return errors.NewValidationError(fmt.Sprintf("snapshots[%d] has an unknown rank delta", i), "rank_delta", snap.RankDelta.String())
		}
	}
	return nil
}

// importExport loads snapshots oldest first. Snapshots already stored are
// counted and skipped.
func importExport(ctx context.Context, st importer, doc *export, logger *zap.Logger) (summary, error) {
	var sum summary
	for _, meta := range doc.Metadata {
		if err := st.UpsertMetadata(ctx, meta); err != nil {
			return sum, err
		}
		sum.metadata++
	}

	snaps := append([]domain.MetricSnapshot(nil), doc.Snapshots...)
	sort.SliceStable(snaps, func(i, j int) bool { return snaps[i].ObservedAt.Before(snaps[j].ObservedAt) })

	days := make(map[time.Time]struct{})
	for _, snap := range snaps {
		err := st.AppendSnapshot(ctx, snap)
		switch {
		case stderrors.Is(err, errors.ErrDuplicateSnapshotKey):
			sum.duplicates++
			logger.Debug("Snapshot already stored", zap.String("video_id", snap.VideoID), zap.Time("observed_at", snap.ObservedAt))
			continue
		case err != nil:
			return sum, err
		}
		sum.snapshots++
		days[domain.StartOfDay(snap.ObservedAt)] = struct{}{}
	}
	sum.days = len(days)
	return sum, nil
}
