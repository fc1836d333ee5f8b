package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	published []Event
	failAfter int // fail once this many events have been published; -1 never
}

func (p *capturePublisher) Publish(_ context.Context, event Event) error {
	if p.failAfter >= 0 && len(p.published) >= p.failAfter {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, event)
	return nil
}

func TestOutboxFlushInOrder(t *testing.T) {
	outbox := NewOutbox()
	outbox.Add(EntitiesMergedEvent{
		BaseEvent:         NewBaseEvent(EventTypeEntitiesMerged, "tenant-1"),
		CanonicalEntityID: "canonical-1",
	})
	outbox.Add(AliasCreatedEvent{
		BaseEvent: NewBaseEvent(EventTypeAliasCreated, "tenant-1"),
		AliasID:   "alias-1",
	})

	publisher := &capturePublisher{failAfter: -1}
	require.NoError(t, outbox.Flush(context.Background(), publisher))

	require.Len(t, publisher.published, 2)
	assert.Equal(t, EventTypeEntitiesMerged, publisher.published[0].Base().EventType)
	assert.Equal(t, EventTypeAliasCreated, publisher.published[1].Base().EventType)
	assert.Equal(t, 0, outbox.Pending())
}

func TestOutboxFlushKeepsUndelivered(t *testing.T) {
	outbox := NewOutbox()
	outbox.Add(EntitiesMergedEvent{BaseEvent: NewBaseEvent(EventTypeEntitiesMerged, "tenant-1")})
	outbox.Add(MergeUndoneEvent{BaseEvent: NewBaseEvent(EventTypeMergeUndone, "tenant-1")})

	publisher := &capturePublisher{failAfter: 1}
	err := outbox.Flush(context.Background(), publisher)

	assert.Error(t, err)
	assert.Len(t, publisher.published, 1)
	assert.Equal(t, 1, outbox.Pending())
}

func TestOutboxDiscard(t *testing.T) {
	outbox := NewOutbox()
	outbox.Add(EntitySplitEvent{BaseEvent: NewBaseEvent(EventTypeEntitySplit, "tenant-1")})
	require.Equal(t, 1, outbox.Pending())

	outbox.Discard()

	publisher := &capturePublisher{failAfter: -1}
	require.NoError(t, outbox.Flush(context.Background(), publisher))
	assert.Empty(t, publisher.published)
}

func TestNewBaseEventFields(t *testing.T) {
	base := NewBaseEvent(EventTypeConsolidationCompleted, "tenant-9")

	assert.Equal(t, EventTypeConsolidationCompleted, base.EventType)
	assert.Equal(t, SchemaVersion, base.SchemaVersion)
	assert.Equal(t, "tenant-9", base.TenantID)
	assert.NotEmpty(t, base.CorrelationID)
	assert.False(t, base.Timestamp.IsZero())
}
