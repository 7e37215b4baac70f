package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoEventStore stores events in DynamoDB. The append batch goes through
// TransactWriteItems with attribute_not_exists conditions on the
// (aggregate_id, version) key, so the version check and the insert are one
// atomic compare-and-swap. Committed events reach downstream consumers via
// the DynamoDB Kinesis integration, not an in-process producer.
type DynamoEventStore struct {
	client            *dynamodb.Client
	tableName         string
	snapshotTableName string
}

// dynamoEvent represents the DynamoDB item structure
type dynamoEvent struct {
	AggregateID   string `dynamodbav:"aggregate_id"`
	Version       int    `dynamodbav:"version"`
	ID            string `dynamodbav:"id"`
	AggregateType string `dynamodbav:"aggregate_type"`
	EventType     string `dynamodbav:"event_type"`
	SchemaVersion int    `dynamodbav:"schema_version"`
	Data          string `dynamodbav:"data"`
	OccurredAt    string `dynamodbav:"occurred_at"`
	CorrelationID string `dynamodbav:"correlation_id,omitempty"`
	CausationID   string `dynamodbav:"causation_id,omitempty"`
	GSI1PK        string `dynamodbav:"gsi1pk"`
}

func NewDynamoEventStore(client *dynamodb.Client, tableName, snapshotTableName string) *DynamoEventStore {
	return &DynamoEventStore{
		client:            client,
		tableName:         tableName,
		snapshotTableName: snapshotTableName,
	}
}

// NewDynamoClient builds a DynamoDB client from the ambient AWS config
func NewDynamoClient(ctx context.Context) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

// Append commits a batch with one conditional put per event in a single
// transaction. A racing writer trips the condition check and gets
// ErrConcurrencyConflict.
func (es *DynamoEventStore) Append(ctx context.Context, aggregateID, aggregateType string, expectedVersion int, events []NewEvent) ([]Event, error) {
	if len(events) == 0 {
		return nil, ErrEmptyAppend
	}

	current, err := es.CurrentVersion(ctx, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("failed to read current version: %w", err)
	}
	if current != expectedVersion {
		// Distinguish an idempotent retry from a real conflict.
		if replay, ok, err := es.committedBatch(ctx, aggregateID, events); err == nil && ok {
			return replay, nil
		} else if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: aggregate %s expected %d, current %d",
			ErrConcurrencyConflict, aggregateID, expectedVersion, current)
	}

	committed := make([]Event, 0, len(events))
	writes := make([]types.TransactWriteItem, 0, len(events))
	for i, ne := range events {
		event := ne.seal(aggregateID, aggregateType, expectedVersion+i+1)
		item := dynamoEvent{
			AggregateID:   event.AggregateID,
			Version:       event.SequenceNumber,
			ID:            event.ID,
			AggregateType: event.AggregateType,
			EventType:     event.EventType,
			SchemaVersion: event.SchemaVersion,
			Data:          string(event.Data),
			OccurredAt:    event.OccurredAt.Format(time.RFC3339Nano),
			CorrelationID: event.CorrelationID,
			CausationID:   event.CausationID,
			GSI1PK:        "EVENTS", // Fixed value for GSI1 to enable commit-order scans
		}
		av, err := attributevalue.MarshalMap(item)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event: %w", err)
		}
		writes = append(writes, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(es.tableName),
				Item:                av,
				ConditionExpression: aws.String("attribute_not_exists(aggregate_id) AND attribute_not_exists(version)"),
			},
		})
		committed = append(committed, event)
	}

	_, err = es.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: writes,
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			return nil, fmt.Errorf("%w: aggregate %s lost the race at version %d",
				ErrConcurrencyConflict, aggregateID, expectedVersion)
		}
		return nil, fmt.Errorf("failed to put events: %w", err)
	}

	return committed, nil
}

// committedBatch reports whether every id in the batch is already committed
// and returns the committed events if so.
func (es *DynamoEventStore) committedBatch(ctx context.Context, aggregateID string, events []NewEvent) ([]Event, bool, error) {
	stored, err := es.ReadEvents(ctx, aggregateID, 0)
	if err != nil {
		return nil, false, err
	}
	byID := make(map[string]Event, len(stored))
	for _, e := range stored {
		byID[e.ID] = e
	}
	committed := make([]Event, 0, len(events))
	for _, ne := range events {
		e, ok := byID[ne.ID]
		if !ok {
			return nil, false, nil
		}
		committed = append(committed, e)
	}
	return committed, true, nil
}

// ReadEvents returns events after fromVersion for an aggregate
func (es *DynamoEventStore) ReadEvents(ctx context.Context, aggregateID string, fromVersion int) ([]Event, error) {
	result, err := es.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid AND version > :ver"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
			":ver": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", fromVersion)},
		},
		ScanIndexForward: aws.Bool(true), // Ascending order by version
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return es.unmarshalEvents(result.Items)
}

// ReadRange returns events with from <= sequence <= to
func (es *DynamoEventStore) ReadRange(ctx context.Context, aggregateID string, from, to int) ([]Event, error) {
	if to <= 0 {
		to = 1<<31 - 1
	}
	result, err := es.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid AND version BETWEEN :from AND :to"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid":  &types.AttributeValueMemberS{Value: aggregateID},
			":from": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", from)},
			":to":   &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", to)},
		},
		ScanIndexForward: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query event range: %w", err)
	}
	return es.unmarshalEvents(result.Items)
}

// ReadAllEvents returns events across aggregates via GSI1 in occurred-at
// order. DynamoDB has no commit counter, so GlobalPosition is left 0 and
// afterPosition/limit only bound the page size.
func (es *DynamoEventStore) ReadAllEvents(ctx context.Context, afterPosition int64, limit int) ([]Event, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("gsi1pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: "EVENTS"},
		},
		ScanIndexForward: aws.Bool(true), // Ascending order by occurred_at
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}
	result, err := es.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to query all events: %w", err)
	}
	return es.unmarshalEvents(result.Items)
}

// CurrentVersion queries for the highest committed sequence number
func (es *DynamoEventStore) CurrentVersion(ctx context.Context, aggregateID string) (int, error) {
	result, err := es.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
		},
		ScanIndexForward:     aws.Bool(false), // Descending order
		Limit:                aws.Int32(1),
		ProjectionExpression: aws.String("version"),
	})
	if err != nil {
		return 0, err
	}

	if len(result.Items) == 0 {
		return 0, nil
	}

	var item struct {
		Version int `dynamodbav:"version"`
	}
	if err := attributevalue.UnmarshalMap(result.Items[0], &item); err != nil {
		return 0, err
	}
	return item.Version, nil
}

// Ping verifies the table is reachable
func (es *DynamoEventStore) Ping(ctx context.Context) error {
	_, err := es.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(es.tableName),
	})
	if err != nil {
		return fmt.Errorf("event store unreachable: %w", err)
	}
	return nil
}

// unmarshalEvents converts DynamoDB items to Event slice
func (es *DynamoEventStore) unmarshalEvents(items []map[string]types.AttributeValue) ([]Event, error) {
	events := make([]Event, 0, len(items))

	for _, item := range items {
		var de dynamoEvent
		if err := attributevalue.UnmarshalMap(item, &de); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}

		occurredAt, _ := time.Parse(time.RFC3339Nano, de.OccurredAt)

		events = append(events, Event{
			ID:             de.ID,
			AggregateID:    de.AggregateID,
			AggregateType:  de.AggregateType,
			EventType:      de.EventType,
			SequenceNumber: de.Version,
			SchemaVersion:  de.SchemaVersion,
			Data:           json.RawMessage(de.Data),
			OccurredAt:     occurredAt,
			CorrelationID:  de.CorrelationID,
			CausationID:    de.CausationID,
		})
	}

	return events, nil
}

// dynamoSnapshot represents the DynamoDB item structure for snapshots.
// Stored in a separate snapshots table keyed by (aggregate_id, version).
type dynamoSnapshot struct {
	AggregateID   string `dynamodbav:"aggregate_id"`
	AggregateType string `dynamodbav:"aggregate_type"`
	Version       int    `dynamodbav:"version"`
	State         string `dynamodbav:"state"`
	CreatedAt     string `dynamodbav:"created_at"`
}

// Save stores a snapshot in the dedicated snapshots table
func (es *DynamoEventStore) Save(ctx context.Context, snapshot *Snapshot) error {
	item := dynamoSnapshot{
		AggregateID:   snapshot.AggregateID,
		AggregateType: snapshot.AggregateType,
		Version:       snapshot.Version,
		State:         string(snapshot.State),
		CreatedAt:     snapshot.CreatedAt.Format(time.RFC3339Nano),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	// Overwrite existing snapshot at the same version (no condition)
	_, err = es.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(es.snapshotTableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put snapshot: %w", err)
	}

	return nil
}

// GetLatest retrieves the newest snapshot for an aggregate
func (es *DynamoEventStore) GetLatest(ctx context.Context, aggregateID string) (*Snapshot, error) {
	result, err := es.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.snapshotTableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
		},
		ScanIndexForward: aws.Bool(false), // Descending order by version
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	if len(result.Items) == 0 {
		return nil, nil // No snapshot exists
	}

	var ds dynamoSnapshot
	if err := attributevalue.UnmarshalMap(result.Items[0], &ds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, ds.CreatedAt)

	return &Snapshot{
		AggregateID:   ds.AggregateID,
		AggregateType: ds.AggregateType,
		Version:       ds.Version,
		State:         json.RawMessage(ds.State),
		CreatedAt:     createdAt,
	}, nil
}

// Prune keeps the newest keep snapshots for an aggregate
func (es *DynamoEventStore) Prune(ctx context.Context, aggregateID string, keep int) error {
	if keep < 1 {
		keep = 1
	}

	result, err := es.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.snapshotTableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
		},
		ScanIndexForward:     aws.Bool(false), // Newest first
		ProjectionExpression: aws.String("aggregate_id, version"),
	})
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}

	if len(result.Items) <= keep {
		return nil
	}

	for _, item := range result.Items[keep:] {
		var key struct {
			AggregateID string `dynamodbav:"aggregate_id"`
			Version     int    `dynamodbav:"version"`
		}
		if err := attributevalue.UnmarshalMap(item, &key); err != nil {
			return fmt.Errorf("failed to unmarshal snapshot key: %w", err)
		}
		_, err = es.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(es.snapshotTableName),
			Key: map[string]types.AttributeValue{
				"aggregate_id": &types.AttributeValueMemberS{Value: key.AggregateID},
				"version":      &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", key.Version)},
			},
		})
		if err != nil {
			return fmt.Errorf("failed to prune snapshot: %w", err)
		}
	}

	return nil
}
