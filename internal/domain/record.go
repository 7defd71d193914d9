package domain

import "context"

// EventRecord is the persisted trace of one ingested chat event.
// Exactly one of MessageText and ImageLocator is set.
type EventRecord struct {
	SubjectID                string   `json:"subject_id"`
	Timestamp                int64    `json:"timestamp"` // unix seconds, assigned at ingestion
	DisplayName              string   `json:"display_name"`
	MessageText              *string  `json:"message_text"`
	ImageLocator             *string  `json:"image_locator"`
	ClassificationLabel      *string  `json:"classification_label,omitempty"`
	ClassificationConfidence *float64 `json:"classification_confidence,omitempty"`
}

// RecordStore persists event records keyed by (subject, timestamp).
type RecordStore interface {
	// Upsert creates the record or replaces every mutable field of an existing one.
	Upsert(ctx context.Context, rec EventRecord) error

	// Get returns the record for the key, or nil when none exists.
	Get(ctx context.Context, subjectID string, timestamp int64) (*EventRecord, error)

	Scan(ctx context.Context) ([]EventRecord, error)
	Delete(ctx context.Context, subjectID string, timestamp int64) error
	Close() error
}
