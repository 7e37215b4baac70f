package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/example/ec-audit-core/internal/infrastructure/kafka"
	"github.com/lib/pq"
)

// readPageSize bounds a single page when streaming long histories.
const readPageSize = 500

// PostgresEventStore stores events in PostgreSQL. Correctness rests on the
// unique constraints on id and on (aggregate_id, sequence_number); the
// version check and the insert run in one transaction.
type PostgresEventStore struct {
	db       *sql.DB
	producer *kafka.Producer
}

func NewPostgresEventStore(db *sql.DB, producer *kafka.Producer) *PostgresEventStore {
	return &PostgresEventStore{
		db:       db,
		producer: producer,
	}
}

const eventColumns = `id, aggregate_id, aggregate_type, event_type, sequence_number, schema_version, data, occurred_at, correlation_id, causation_id, global_position`

// Append commits a batch in a single transaction and publishes to Kafka
func (es *PostgresEventStore) Append(ctx context.Context, aggregateID, aggregateType string, expectedVersion int, events []NewEvent) ([]Event, error) {
	if len(events) == 0 {
		return nil, ErrEmptyAppend
	}

	tx, err := es.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin append: %w", err)
	}
	defer tx.Rollback()

	// Idempotent retry: a batch whose ids are all committed is a no-op.
	ids := make([]string, len(events))
	for i, ne := range events {
		ids[i] = ne.ID
	}
	var existing int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE id = ANY($1)`,
		pq.Array(ids),
	).Scan(&existing)
	if err != nil {
		return nil, fmt.Errorf("failed to check event ids: %w", err)
	}
	if existing == len(events) {
		return es.eventsByID(ctx, ids)
	}
	if existing > 0 {
		return nil, fmt.Errorf("%w: %d of %d events already committed", ErrDuplicateEvent, existing, len(events))
	}

	var current int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) FROM events WHERE aggregate_id = $1`,
		aggregateID,
	).Scan(&current)
	if err != nil {
		return nil, fmt.Errorf("failed to read current version: %w", err)
	}
	if current != expectedVersion {
		return nil, fmt.Errorf("%w: aggregate %s expected %d, current %d",
			ErrConcurrencyConflict, aggregateID, expectedVersion, current)
	}

	committed := make([]Event, 0, len(events))
	for i, ne := range events {
		event := ne.seal(aggregateID, aggregateType, expectedVersion+i+1)
		err = tx.QueryRowContext(ctx,
			`INSERT INTO events (id, aggregate_id, aggregate_type, event_type, sequence_number, schema_version, data, occurred_at, correlation_id, causation_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING global_position`,
			event.ID,
			event.AggregateID,
			event.AggregateType,
			event.EventType,
			event.SequenceNumber,
			event.SchemaVersion,
			event.Data,
			event.OccurredAt,
			event.CorrelationID,
			event.CausationID,
		).Scan(&event.GlobalPosition)
		if err != nil {
			return nil, mapPqError(err, aggregateID, expectedVersion)
		}
		committed = append(committed, event)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapPqError(err, aggregateID, expectedVersion)
	}

	if es.producer != nil {
		for _, event := range committed {
			if perr := es.producer.Publish(ctx, aggregateID, event); perr != nil {
				log.Printf("[EventStore] Failed to publish event %s: %v", event.ID, perr)
			}
		}
	}

	return committed, nil
}

// mapPqError folds constraint violations into the store's sentinel errors.
// Two racing writers both pass the version read; the unique constraint on
// (aggregate_id, sequence_number) rejects the loser at insert or commit.
func mapPqError(err error, aggregateID string, expectedVersion int) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		if strings.Contains(pqErr.Constraint, "sequence_number") {
			return fmt.Errorf("%w: aggregate %s lost the race at version %d",
				ErrConcurrencyConflict, aggregateID, expectedVersion)
		}
		return fmt.Errorf("%w: %s", ErrDuplicateEvent, pqErr.Detail)
	}
	return fmt.Errorf("failed to append events: %w", err)
}

// eventsByID loads committed events for an id set, in sequence order
func (es *PostgresEventStore) eventsByID(ctx context.Context, ids []string) ([]Event, error) {
	rows, err := es.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ANY($1) ORDER BY sequence_number ASC`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load committed events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ReadEvents returns events after fromVersion, paging through long histories
func (es *PostgresEventStore) ReadEvents(ctx context.Context, aggregateID string, fromVersion int) ([]Event, error) {
	var events []Event
	cursor := fromVersion
	for {
		page, err := es.readPage(ctx, aggregateID, cursor, readPageSize)
		if err != nil {
			return nil, err
		}
		events = append(events, page...)
		if len(page) < readPageSize {
			return events, nil
		}
		cursor = page[len(page)-1].SequenceNumber
	}
}

func (es *PostgresEventStore) readPage(ctx context.Context, aggregateID string, afterVersion, limit int) ([]Event, error) {
	rows, err := es.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE aggregate_id = $1 AND sequence_number > $2
		 ORDER BY sequence_number ASC
		 LIMIT $3`,
		aggregateID, afterVersion, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ReadRange returns events with from <= sequence <= to
func (es *PostgresEventStore) ReadRange(ctx context.Context, aggregateID string, from, to int) ([]Event, error) {
	if to <= 0 {
		to = 1<<31 - 1
	}
	rows, err := es.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE aggregate_id = $1 AND sequence_number BETWEEN $2 AND $3
		 ORDER BY sequence_number ASC`,
		aggregateID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read event range: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ReadAllEvents returns events across aggregates in commit order
func (es *PostgresEventStore) ReadAllEvents(ctx context.Context, afterPosition int64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 1<<31 - 1
	}
	rows, err := es.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE global_position > $1
		 ORDER BY global_position ASC
		 LIMIT $2`,
		afterPosition, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read all events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// CurrentVersion returns the highest committed sequence number
func (es *PostgresEventStore) CurrentVersion(ctx context.Context, aggregateID string) (int, error) {
	var current int
	err := es.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) FROM events WHERE aggregate_id = $1`,
		aggregateID,
	).Scan(&current)
	if err != nil {
		return 0, fmt.Errorf("failed to read current version: %w", err)
	}
	return current, nil
}

// Ping verifies the append and read paths are reachable
func (es *PostgresEventStore) Ping(ctx context.Context) error {
	if err := es.db.PingContext(ctx); err != nil {
		return fmt.Errorf("event store unreachable: %w", err)
	}
	var one int
	if err := es.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("event store read path failed: %w", err)
	}
	return nil
}

// RedactEvent blanks the payload of a committed event in place
func (es *PostgresEventStore) RedactEvent(ctx context.Context, aggregateID string, sequenceNumber int) error {
	res, err := es.db.ExecContext(ctx,
		`UPDATE events SET data = NULL WHERE aggregate_id = $1 AND sequence_number = $2`,
		aggregateID, sequenceNumber,
	)
	if err != nil {
		return fmt.Errorf("failed to redact event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: aggregate %s sequence %d", ErrEventNotFound, aggregateID, sequenceNumber)
	}
	return nil
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var e Event
		var data, correlationID, causationID sql.NullString
		if err := rows.Scan(
			&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType,
			&e.SequenceNumber, &e.SchemaVersion, &data, &e.OccurredAt,
			&correlationID, &causationID, &e.GlobalPosition,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if data.Valid {
			e.Data = []byte(data.String)
		}
		e.CorrelationID = correlationID.String
		e.CausationID = causationID.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// EnsureEventSchema creates the event and snapshot tables
func EnsureEventSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS events (
			global_position BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			aggregate_id TEXT NOT NULL,
			aggregate_type TEXT NOT NULL,
			event_type TEXT NOT NULL,
			sequence_number INT NOT NULL,
			schema_version INT NOT NULL DEFAULT 1,
			data JSONB,
			occurred_at TIMESTAMPTZ NOT NULL,
			correlation_id TEXT,
			causation_id TEXT,
			UNIQUE (aggregate_id, sequence_number)
		);
		CREATE TABLE IF NOT EXISTS snapshots (
			aggregate_id TEXT NOT NULL,
			aggregate_type TEXT NOT NULL,
			version INT NOT NULL,
			state JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (aggregate_id, version)
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure event schema: %w", err)
	}
	return nil
}

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}
