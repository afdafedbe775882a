package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/repositories/contact"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
)

type recordingPublisher struct {
	batches [][]*kafka.ContactEvent
	err     error
}

func (p *recordingPublisher) PublishContactEvents(_ context.Context, batch []*kafka.ContactEvent) error {
	p.batches = append(p.batches, batch)
	return p.err
}

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func eventTypes(batch []*kafka.ContactEvent) []string {
	types := []string{}
	for _, e := range batch {
		types = append(types, e.EventType)
	}
	return types
}

func TestEmitter_ThroughResolver(t *testing.T) {
	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store := contact.NewMemoryStore(contact.WithClock(func() time.Time {
		tick++
		return start.Add(time.Duration(tick) * time.Second)
	}))

	publisher := &recordingPublisher{}
	resolver := identity.NewResolver(store, noopLogger(), identity.WithObservers(events.NewEmitter(publisher, noopLogger())))
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, models.NewFragment("george@hillvalley.edu", "919191"))
	require.NoError(t, err)
	_, err = resolver.Resolve(ctx, models.NewFragment("biff@hillvalley.edu", "717171"))
	require.NoError(t, err)
	_, err = resolver.Resolve(ctx, models.NewFragment("biff@hillvalley.edu", "333"))
	require.NoError(t, err)
	// already known, nothing to publish
	_, err = resolver.Resolve(ctx, models.NewFragment("biff@hillvalley.edu", ""))
	require.NoError(t, err)
	_, err = resolver.Resolve(ctx, models.NewFragment("george@hillvalley.edu", "717171"))
	require.NoError(t, err)

	require.Len(t, publisher.batches, 4)
	assert.Equal(t, []string{kafka.EventContactCreated}, eventTypes(publisher.batches[0]))
	assert.Equal(t, []string{kafka.EventContactCreated}, eventTypes(publisher.batches[1]))
	assert.Equal(t, []string{kafka.EventContactLinked}, eventTypes(publisher.batches[2]))

	merge := publisher.batches[3]
	assert.Equal(t, []string{kafka.EventContactDemoted, kafka.EventContactRelinked}, eventTypes(merge))
	for _, e := range merge {
		assert.Equal(t, int64(1), e.PrimaryContactID)
		assert.Equal(t, "secondary", e.LinkPrecedence)
	}
	assert.Equal(t, int64(2), merge[0].ContactID)
	assert.Equal(t, int64(3), merge[1].ContactID)
}

func TestEmitter_SkipsFailures(t *testing.T) {
	publisher := &recordingPublisher{}
	emitter := events.NewEmitter(publisher, noopLogger())

	err := emitter.Observe(context.Background(), identity.Event{Err: identity.ErrInvalidFragment})
	require.NoError(t, err)
	assert.Empty(t, publisher.batches)
}

func TestEmitter_PublishErrorIsReturned(t *testing.T) {
	publisher := &recordingPublisher{err: errors.New("broker unavailable")}
	emitter := events.NewEmitter(publisher, noopLogger())

	primary := models.Contact{ID: 1, LinkPrecedence: models.LinkPrecedencePrimary}
	err := emitter.Observe(context.Background(), identity.Event{
		Resolution: &identity.Resolution{
			Cluster: identity.Cluster{Primary: primary},
			Outcome: identity.OutcomeCreated,
			Created: []models.Contact{primary},
		},
		Source: "http",
	})
	assert.EqualError(t, err, "broker unavailable")
	require.Len(t, publisher.batches, 1)
	assert.Equal(t, "http", publisher.batches[0][0].Source)
}
