package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// EventType defines the type of event
type EventType string

const (
	EventTypeEntitiesMerged         EventType = "entities.merged"
	EventTypeAliasCreated           EventType = "alias.created"
	EventTypeMergeUndone            EventType = "merge.undone"
	EventTypeEntitySplit            EventType = "entity.split"
	EventTypeConsolidationCompleted EventType = "consolidation.completed"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	TenantID      string    `json:"tenant_id"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// Event is anything the publisher can deliver. Key partitions delivery so all
// events for one canonical entity stay ordered.
type Event interface {
	Base() BaseEvent
	Key() string
}

func (b BaseEvent) Base() BaseEvent {
	return b
}

// NewBaseEvent creates a base event with common fields
func NewBaseEvent(eventType EventType, tenantID string) BaseEvent {
	return BaseEvent{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		TenantID:      tenantID,
		Timestamp:     time.Now().UTC(),
		CorrelationID: uuid.New().String(),
	}
}

// EntitiesMergedEvent is emitted after entities are merged into a canonical
// record.
type EntitiesMergedEvent struct {
	BaseEvent
	MergeEventID             string             `json:"merge_event_id"`
	CanonicalEntityID        string             `json:"canonical_entity_id"`
	MergedEntityIDs          []string           `json:"merged_entity_ids"`
	RelationshipsTransferred int                `json:"relationships_transferred"`
	MergeReason              string             `json:"merge_reason,omitempty"`
	SimilarityScores         map[string]float64 `json:"similarity_scores,omitempty"`
}

func (e EntitiesMergedEvent) Key() string { return e.CanonicalEntityID }

// AliasCreatedEvent is emitted once per merged-away entity.
type AliasCreatedEvent struct {
	BaseEvent
	AliasID           string `json:"alias_id"`
	OriginalEntityID  string `json:"original_entity_id"`
	CanonicalEntityID string `json:"canonical_entity_id"`
	MergeEventID      string `json:"merge_event_id"`
}

func (e AliasCreatedEvent) Key() string { return e.CanonicalEntityID }

// MergeUndoneEvent is emitted after a merge is reversed.
type MergeUndoneEvent struct {
	BaseEvent
	MergeEventID      string            `json:"merge_event_id"`
	UndoEventID       string            `json:"undo_event_id"`
	CanonicalEntityID string            `json:"canonical_entity_id"`
	RestoredEntityIDs map[string]string `json:"restored_entity_ids"` // original id -> new id
	UndoReason        string            `json:"undo_reason,omitempty"`
}

func (e MergeUndoneEvent) Key() string { return e.CanonicalEntityID }

// EntitySplitEvent is emitted after an entity is split into new canonical
// entities.
type EntitySplitEvent struct {
	BaseEvent
	SplitEventID     string   `json:"split_event_id"`
	OriginalEntityID string   `json:"original_entity_id"`
	NewEntityIDs     []string `json:"new_entity_ids"`
	SplitReason      string   `json:"split_reason,omitempty"`
}

func (e EntitySplitEvent) Key() string { return e.OriginalEntityID }

// ConsolidationCompletedEvent is emitted when a tenant batch run finishes.
type ConsolidationCompletedEvent struct {
	BaseEvent
	JobID   string                      `json:"job_id,omitempty"`
	Summary models.ConsolidationSummary `json:"summary"`
}

func (e ConsolidationCompletedEvent) Key() string { return e.TenantID }
