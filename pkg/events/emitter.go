// Package events publishes contact lifecycle events for every resolution that wrote something.
package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Publisher is satisfied by *kafka.Producer
type Publisher interface {
	PublishContactEvents(ctx context.Context, events []*kafka.ContactEvent) error
}

// Emitter turns resolutions into contact events
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

func (e *Emitter) Name() string {
	return "events"
}

// Observe publishes one event per contact the resolution created, demoted or
// re-parented. Failed and read-only resolutions publish nothing.
func (e *Emitter) Observe(ctx context.Context, event identity.Event) error {
	if event.Err != nil || event.Resolution == nil {
		return nil
	}

	ctx, span := tracing.StartSpan(ctx, "events.Emitter.Observe")
	defer span.End()

	batch := BuildContactEvents(event.Resolution, event.Source, tracing.GetTraceID(ctx))
	if len(batch) == 0 {
		return nil
	}

	if err := e.publisher.PublishContactEvents(ctx, batch); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("primary_contact_id", event.Resolution.Primary.ID).Error("Failed to emit contact events")
		return err
	}
	return nil
}

// BuildContactEvents lists the events for a resolution: created and linked
// contacts first, then demotions, then re-parented secondaries.
func BuildContactEvents(res *identity.Resolution, source, traceID string) []*kafka.ContactEvent {
	primaryID := res.Primary.ID
	batch := make([]*kafka.ContactEvent, 0, len(res.Created)+len(res.Demoted)+len(res.Relinked))

	add := func(eventType string, c models.Contact) {
		batch = append(batch, &kafka.ContactEvent{
			EventType:        eventType,
			ContactID:        c.ID,
			PrimaryContactID: primaryID,
			LinkPrecedence:   string(c.LinkPrecedence),
			Email:            c.Email,
			PhoneNumber:      c.PhoneNumber,
			Source:           source,
			TraceID:          traceID,
		})
	}

	for _, c := range res.Created {
		if c.IsPrimary() {
			add(kafka.EventContactCreated, c)
		} else {
			add(kafka.EventContactLinked, c)
		}
	}
	for _, c := range res.Demoted {
		add(kafka.EventContactDemoted, c)
	}
	for _, c := range res.Relinked {
		add(kafka.EventContactRelinked, c)
	}
	return batch
}
