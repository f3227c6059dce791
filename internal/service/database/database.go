// Package database opens the SQL connections the store runs on.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kapu/top-music-bot-go/internal/constants"
	"go.uber.org/zap"
)

// Pool sizes the connection pool. Zero fields keep the database/sql defaults.
type Pool struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (p Pool) apply(db *sql.DB) {
	if p.MaxOpenConns > 0 {
		db.SetMaxOpenConns(p.MaxOpenConns)
	}
	if p.MaxIdleConns > 0 {
		db.SetMaxIdleConns(p.MaxIdleConns)
	}
	if p.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(p.ConnMaxLifetime)
	}
}

// waitReady pings db until it answers, doubling the delay after every failed
// attempt. A database container that is still starting is the common case.
func waitReady(ctx context.Context, db *sql.DB, name string, logger *zap.Logger) error {
	delay := constants.RetryConfig.BaseDelay
	var err error
	for attempt := 1; attempt <= constants.RetryConfig.MaxAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt == constants.RetryConfig.MaxAttempts {
			break
		}

		logger.Warn("Database not ready, retrying",
			zap.String("database", name),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("failed to ping %s: %w", name, err)
}
