// Package db provides the PostgreSQL snapshot archive. The live ring buffer
// is the source of truth for replay; the archive keeps a longer history for
// later import.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/unklstewy/globe-replay/pkg/config"
)

//go:embed schema.sql
var schemaSQL embed.FS

// DB wraps a database connection with helper methods.
type DB struct {
	*sql.DB
	config config.DatabaseConfig
}

// Connect establishes a connection to the PostgreSQL database.
func Connect(cfg config.DatabaseConfig) (*DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.Username,
		cfg.Password,
		cfg.Database,
		cfg.SSLMode,
	)

	sqlDB, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{
		DB:     sqlDB,
		config: cfg,
	}, nil
}

// InitSchema creates or updates the database schema.
// This should be called once at application startup.
func (db *DB) InitSchema(ctx context.Context) error {
	schemaBytes, err := schemaSQL.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	if _, err := db.ExecContext(ctx, string(schemaBytes)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// GetStats returns archive statistics.
func (db *DB) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var snapshotCount int64
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM snapshots`,
	).Scan(&snapshotCount)
	if err != nil {
		return nil, err
	}
	stats["snapshots"] = snapshotCount

	var oldest, newest sql.NullTime
	err = db.QueryRowContext(ctx,
		`SELECT MIN(captured_at), MAX(captured_at) FROM snapshots`,
	).Scan(&oldest, &newest)
	if err != nil {
		return nil, err
	}
	if oldest.Valid {
		stats["oldest_snapshot"] = oldest.Time
	}
	if newest.Valid {
		stats["newest_snapshot"] = newest.Time
	}

	var entitySum sql.NullInt64
	err = db.QueryRowContext(ctx,
		`SELECT SUM(entity_count) FROM snapshots`,
	).Scan(&entitySum)
	if err != nil {
		return nil, err
	}
	if entitySum.Valid {
		stats["entity_records"] = entitySum.Int64
	}

	return stats, nil
}
