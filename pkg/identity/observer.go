package identity

import (
	"context"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Event describes one finished Resolve call. Exactly one of Resolution and Err is set.
type Event struct {
	Fragment   models.Fragment
	Resolution *Resolution
	Err        error
	Duration   time.Duration
	Source     string
}

// Observer is told about every finished resolution. Returned errors are
// logged by the resolver and never fail the call.
type Observer interface {
	Name() string
	Observe(ctx context.Context, event Event) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc struct {
	ObserverName string
	Fn           func(ctx context.Context, event Event) error
}

func (o ObserverFunc) Name() string {
	return o.ObserverName
}

func (o ObserverFunc) Observe(ctx context.Context, event Event) error {
	return o.Fn(ctx, event)
}
