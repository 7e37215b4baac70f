package kinesis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/example/ec-audit-core/internal/infrastructure/store"
)

// ConvertFromKinesisRecord converts a Kinesis record (DynamoDB Streams
// format) to a store.Event. The DynamoDB Kinesis integration delivers
// committed rows of the events table in DynamoDB Streams format.
func ConvertFromKinesisRecord(record events.KinesisEventRecord) (*store.Event, error) {
	var dynamoDBRecord events.DynamoDBEventRecord
	if err := json.Unmarshal(record.Kinesis.Data, &dynamoDBRecord); err != nil {
		return nil, fmt.Errorf("failed to unmarshal DynamoDB record: %w", err)
	}

	// Only INSERTs are new commits; the log never sees MODIFY or REMOVE
	// except for payload redaction, which projections must not re-apply.
	if dynamoDBRecord.EventName != "INSERT" {
		return nil, nil
	}

	return convertDynamoDBImage(dynamoDBRecord.Change.NewImage)
}

// ConvertFromDynamoDBStreamRecord converts a DynamoDB Stream record to a
// store.Event. Used when consuming DynamoDB Streams directly.
func ConvertFromDynamoDBStreamRecord(record events.DynamoDBEventRecord) (*store.Event, error) {
	if record.EventName != "INSERT" {
		return nil, nil
	}

	return convertDynamoDBImage(record.Change.NewImage)
}

// convertDynamoDBImage extracts the envelope from DynamoDB attribute values
func convertDynamoDBImage(image map[string]events.DynamoDBAttributeValue) (*store.Event, error) {
	if image == nil {
		return nil, fmt.Errorf("DynamoDB image is nil")
	}

	event := &store.Event{}

	if v, ok := image["id"]; ok {
		event.ID = v.String()
	}
	if v, ok := image["aggregate_id"]; ok {
		event.AggregateID = v.String()
	}
	if v, ok := image["aggregate_type"]; ok {
		event.AggregateType = v.String()
	}
	if v, ok := image["event_type"]; ok {
		event.EventType = v.String()
	}
	if v, ok := image["data"]; ok {
		event.Data = json.RawMessage(v.String())
	}
	if v, ok := image["correlation_id"]; ok {
		event.CorrelationID = v.String()
	}
	if v, ok := image["causation_id"]; ok {
		event.CausationID = v.String()
	}
	if v, ok := image["occurred_at"]; ok {
		t, err := time.Parse(time.RFC3339Nano, v.String())
		if err != nil {
			return nil, fmt.Errorf("failed to parse occurred_at: %w", err)
		}
		event.OccurredAt = t
	}
	if v, ok := image["version"]; ok {
		seq, err := strconv.Atoi(v.Number())
		if err != nil {
			return nil, fmt.Errorf("failed to parse version: %w", err)
		}
		event.SequenceNumber = seq
	}
	if v, ok := image["schema_version"]; ok {
		sv, err := strconv.Atoi(v.Number())
		if err != nil {
			return nil, fmt.Errorf("failed to parse schema_version: %w", err)
		}
		event.SchemaVersion = sv
	}

	if event.ID == "" || event.AggregateID == "" || event.SequenceNumber == 0 {
		return nil, fmt.Errorf("incomplete event image: id=%q aggregate_id=%q seq=%d",
			event.ID, event.AggregateID, event.SequenceNumber)
	}

	return event, nil
}
