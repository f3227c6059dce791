package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const memoryPath = ":memory:"

// SQLiteService is the embedded alternative to PostgresService for single-host
// deployments and tests.
type SQLiteService struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

func NewSQLiteService(path string, logger *zap.Logger) (*SQLiteService, error) {
	connStr := path
	if path == memoryPath {
		// all pooled connections must see the same in-memory database
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if path == memoryPath {
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := waitReady(ctx, db, "sqlite", logger); err != nil {
		db.Close()
		return nil, err
	}

	if path != memoryPath {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	logger.Info("SQLite opened", zap.String("path", path))

	return &SQLiteService{
		db:     db,
		path:   path,
		logger: logger,
	}, nil
}

func (ss *SQLiteService) GetDB() *sql.DB {
	return ss.db
}

func (ss *SQLiteService) Close() error {
	if ss.db != nil {
		return ss.db.Close()
	}
	return nil
}

func (ss *SQLiteService) Ping(ctx context.Context) error {
	return ss.db.PingContext(ctx)
}
