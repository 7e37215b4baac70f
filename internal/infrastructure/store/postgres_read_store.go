package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresReadStore stores read models in PostgreSQL as one jsonb row per
// (collection, id). Collections register a factory so rows can be decoded
// back into their concrete read model type.
type PostgresReadStore struct {
	db        *sql.DB
	factories map[string]func() any
}

func NewPostgresReadStore(db *sql.DB) *PostgresReadStore {
	return &PostgresReadStore{
		db:        db,
		factories: make(map[string]func() any),
	}
}

// Register associates a collection with a factory for its read model type
func (rs *PostgresReadStore) Register(collection string, factory func() any) {
	rs.factories[collection] = factory
}

func (rs *PostgresReadStore) decode(collection string, data []byte) (any, error) {
	factory, ok := rs.factories[collection]
	if !ok {
		return nil, fmt.Errorf("no read model registered for collection %q", collection)
	}
	model := factory()
	if err := json.Unmarshal(data, model); err != nil {
		return nil, fmt.Errorf("failed to decode %s read model: %w", collection, err)
	}
	return model, nil
}

// Set stores a read model
func (rs *PostgresReadStore) Set(ctx context.Context, collection, id string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s read model: %w", collection, err)
	}
	_, err = rs.db.ExecContext(ctx,
		`INSERT INTO read_models (collection, id, data, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (collection, id)
		 DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		collection, id, payload, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to set read model: %w", err)
	}
	return nil
}

// Get retrieves a read model by id
func (rs *PostgresReadStore) Get(ctx context.Context, collection, id string) (any, bool, error) {
	var payload []byte
	err := rs.db.QueryRowContext(ctx,
		`SELECT data FROM read_models WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get read model: %w", err)
	}
	model, err := rs.decode(collection, payload)
	if err != nil {
		return nil, false, err
	}
	return model, true, nil
}

// GetAll retrieves all items in a collection
func (rs *PostgresReadStore) GetAll(ctx context.Context, collection string) ([]any, error) {
	rows, err := rs.db.QueryContext(ctx,
		`SELECT data FROM read_models WHERE collection = $1 ORDER BY id ASC`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list read models: %w", err)
	}
	defer rows.Close()

	var items []any
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan read model: %w", err)
		}
		model, err := rs.decode(collection, payload)
		if err != nil {
			return nil, err
		}
		items = append(items, model)
	}
	return items, rows.Err()
}

// Delete removes a read model
func (rs *PostgresReadStore) Delete(ctx context.Context, collection, id string) error {
	_, err := rs.db.ExecContext(ctx,
		`DELETE FROM read_models WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete read model: %w", err)
	}
	return nil
}

// Update modifies a read model using an update function
func (rs *PostgresReadStore) Update(ctx context.Context, collection, id string, updateFn func(current any) any) (bool, error) {
	current, ok, err := rs.Get(ctx, collection, id)
	if err != nil || !ok {
		return false, err
	}
	if err := rs.Set(ctx, collection, id, updateFn(current)); err != nil {
		return false, err
	}
	return true, nil
}

// SeenEvent records an event id for a projection; the unique key makes
// re-processing an already-applied event a no-op
func (rs *PostgresReadStore) SeenEvent(ctx context.Context, projection, eventID string) (bool, error) {
	res, err := rs.db.ExecContext(ctx,
		`INSERT INTO applied_events (projection, event_id, applied_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (projection, event_id) DO NOTHING`,
		projection, eventID, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to record applied event: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return inserted == 0, nil
}

// PostgresCheckpointStore persists projection checkpoints
type PostgresCheckpointStore struct {
	db *sql.DB
}

func NewPostgresCheckpointStore(db *sql.DB) *PostgresCheckpointStore {
	return &PostgresCheckpointStore{db: db}
}

func (cs *PostgresCheckpointStore) Get(ctx context.Context, projection string) (Checkpoint, error) {
	cp := Checkpoint{Projection: projection}
	err := cs.db.QueryRowContext(ctx,
		`SELECT position, last_event_id, updated_at
		 FROM projection_checkpoints
		 WHERE projection = $1`,
		projection,
	).Scan(&cp.Position, &cp.LastEventID, &cp.UpdatedAt)
	if err == sql.ErrNoRows {
		return cp, nil
	}
	if err != nil {
		return cp, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return cp, nil
}

func (cs *PostgresCheckpointStore) Save(ctx context.Context, cp Checkpoint) error {
	_, err := cs.db.ExecContext(ctx,
		`INSERT INTO projection_checkpoints (projection, position, last_event_id, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (projection)
		 DO UPDATE SET position = EXCLUDED.position, last_event_id = EXCLUDED.last_event_id, updated_at = EXCLUDED.updated_at`,
		cp.Projection, cp.Position, cp.LastEventID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// PostgresDeadLetterStore persists events a projection gave up on
type PostgresDeadLetterStore struct {
	db *sql.DB
}

func NewPostgresDeadLetterStore(db *sql.DB) *PostgresDeadLetterStore {
	return &PostgresDeadLetterStore{db: db}
}

func (ds *PostgresDeadLetterStore) Add(ctx context.Context, dl DeadLetter) error {
	if dl.FailedAt.IsZero() {
		dl.FailedAt = time.Now()
	}
	payload, err := json.Marshal(dl.Event)
	if err != nil {
		return fmt.Errorf("failed to encode dead letter: %w", err)
	}
	_, err = ds.db.ExecContext(ctx,
		`INSERT INTO dead_letters (projection, event_id, event, reason, attempts, failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (projection, event_id) DO NOTHING`,
		dl.Projection, dl.EventID, payload, dl.Reason, dl.Attempts, dl.FailedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add dead letter: %w", err)
	}
	return nil
}

func (ds *PostgresDeadLetterStore) List(ctx context.Context, projection string) ([]DeadLetter, error) {
	rows, err := ds.db.QueryContext(ctx,
		`SELECT projection, event_id, event, reason, attempts, failed_at
		 FROM dead_letters
		 WHERE projection = $1
		 ORDER BY failed_at ASC`,
		projection,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	var letters []DeadLetter
	for rows.Next() {
		var dl DeadLetter
		var payload []byte
		if err := rows.Scan(&dl.Projection, &dl.EventID, &payload, &dl.Reason, &dl.Attempts, &dl.FailedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		if err := json.Unmarshal(payload, &dl.Event); err != nil {
			return nil, fmt.Errorf("failed to decode dead letter: %w", err)
		}
		letters = append(letters, dl)
	}
	return letters, rows.Err()
}

// EnsureReadSchema creates the read-side tables
func EnsureReadSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS read_models (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			data JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (collection, id)
		);
		CREATE TABLE IF NOT EXISTS applied_events (
			projection TEXT NOT NULL,
			event_id TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (projection, event_id)
		);
		CREATE TABLE IF NOT EXISTS projection_checkpoints (
			projection TEXT PRIMARY KEY,
			position BIGINT NOT NULL,
			last_event_id TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS dead_letters (
			projection TEXT NOT NULL,
			event_id TEXT NOT NULL,
			event JSONB NOT NULL,
			reason TEXT NOT NULL,
			attempts INT NOT NULL,
			failed_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (projection, event_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure read schema: %w", err)
	}
	return nil
}
