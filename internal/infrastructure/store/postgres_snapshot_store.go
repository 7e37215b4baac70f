package store

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresSnapshotStore stores snapshots in PostgreSQL, several per
// aggregate, keyed by (aggregate_id, version).
type PostgresSnapshotStore struct {
	db *sql.DB
}

func NewPostgresSnapshotStore(db *sql.DB) *PostgresSnapshotStore {
	return &PostgresSnapshotStore{db: db}
}

// GetLatest returns the highest-version snapshot for an aggregate
func (ss *PostgresSnapshotStore) GetLatest(ctx context.Context, aggregateID string) (*Snapshot, error) {
	var s Snapshot
	err := ss.db.QueryRowContext(ctx,
		`SELECT aggregate_id, aggregate_type, version, state, created_at
		 FROM snapshots
		 WHERE aggregate_id = $1
		 ORDER BY version DESC
		 LIMIT 1`,
		aggregateID,
	).Scan(&s.AggregateID, &s.AggregateType, &s.Version, &s.State, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return &s, nil
}

// Save upserts a snapshot at its version
func (ss *PostgresSnapshotStore) Save(ctx context.Context, snapshot *Snapshot) error {
	_, err := ss.db.ExecContext(ctx,
		`INSERT INTO snapshots (aggregate_id, aggregate_type, version, state, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (aggregate_id, version)
		 DO UPDATE SET state = EXCLUDED.state, created_at = EXCLUDED.created_at`,
		snapshot.AggregateID,
		snapshot.AggregateType,
		snapshot.Version,
		snapshot.State,
		snapshot.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Prune keeps the newest keep snapshots. The last snapshot is never removed.
func (ss *PostgresSnapshotStore) Prune(ctx context.Context, aggregateID string, keep int) error {
	if keep < 1 {
		keep = 1
	}
	_, err := ss.db.ExecContext(ctx,
		`DELETE FROM snapshots
		 WHERE aggregate_id = $1 AND version NOT IN (
			SELECT version FROM snapshots
			WHERE aggregate_id = $1
			ORDER BY version DESC
			LIMIT $2
		 )`,
		aggregateID, keep,
	)
	if err != nil {
		return fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return nil
}
