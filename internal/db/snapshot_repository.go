package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/unklstewy/globe-replay/pkg/telemetry"
)

// SnapshotRepository handles archive operations for recorded snapshots.
type SnapshotRepository struct {
	db *DB
}

// NewSnapshotRepository creates a new snapshot repository.
func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Insert archives a snapshot. Duplicate capture times are ignored so a
// restarted recorder can safely replay its ring into the archive.
func (r *SnapshotRepository) Insert(ctx context.Context, snap telemetry.Snapshot) error {
	entities, err := json.Marshal(snap.Entities)
	if err != nil {
		return fmt.Errorf("failed to marshal entities: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO snapshots (
			captured_at, source_time, feed_interval_ms, entity_count, entities
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (captured_at) DO NOTHING`,
		snap.CapturedAt.UTC(),
		snap.SourceTime.UTC(),
		snap.FeedInterval.Milliseconds(),
		len(snap.Entities),
		entities,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// Range returns archived snapshots with captured_at in [from, to], oldest
// first.
func (r *SnapshotRepository) Range(ctx context.Context, from, to time.Time) ([]telemetry.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT captured_at, source_time, feed_interval_ms, entities
		 FROM snapshots
		 WHERE captured_at >= $1 AND captured_at <= $2
		 ORDER BY captured_at ASC`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []telemetry.Snapshot
	for rows.Next() {
		var (
			capturedAt time.Time
			sourceTime time.Time
			intervalMs int64
			entities   []byte
		)
		if err := rows.Scan(&capturedAt, &sourceTime, &intervalMs, &entities); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}

		var records []telemetry.EntityStateRecord
		if err := json.Unmarshal(entities, &records); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entities: %w", err)
		}

		snaps = append(snaps, telemetry.Snapshot{
			CapturedAt:   capturedAt,
			SourceTime:   sourceTime,
			Entities:     records,
			FeedInterval: time.Duration(intervalMs) * time.Millisecond,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return snaps, nil
}

// Latest returns the newest n archived snapshots, oldest first.
func (r *SnapshotRepository) Latest(ctx context.Context, n int) ([]telemetry.Snapshot, error) {
	var cutoff time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT captured_at FROM snapshots
		 ORDER BY captured_at DESC
		 OFFSET $1 LIMIT 1`,
		n-1,
	).Scan(&cutoff)
	if err != nil {
		// Fewer than n rows archived; return everything.
		cutoff = time.Time{}
	}
	return r.Range(ctx, cutoff, time.Now().UTC())
}

// Prune deletes archived snapshots older than the retention window.
// Returns the number of rows removed.
func (r *SnapshotRepository) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE captured_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return res.RowsAffected()
}
