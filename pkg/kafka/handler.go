package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Resolver is the part of identity.Resolver the fragment handler needs.
type Resolver interface {
	Resolve(ctx context.Context, fragment models.Fragment) (*identity.Resolution, error)
}

// NewFragmentHandler resolves each consumed fragment. Invalid fragments are
// dropped (committed); every other failure is returned so the message is
// not committed.
func NewFragmentHandler(resolver Resolver, timeout time.Duration, logger ectologger.Logger) MessageHandler {
	return func(ctx context.Context, msg *IncomingMessage) error {
		ctx = appctx.SetSource(ctx, appctx.SourceKafka)
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		if msg.Fragment == nil {
			if err := msg.ParseFragment(); err != nil {
				logger.WithContext(ctx).WithError(err).Warn("Dropping unparseable fragment")
				return nil
			}
		}

		res, err := resolver.Resolve(ctx, *msg.Fragment)
		if err != nil {
			if errors.Is(err, identity.ErrInvalidFragment) {
				logger.WithContext(ctx).WithFields(map[string]any{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("Dropping fragment without email or phone number")
				return nil
			}
			return err
		}

		logger.WithContext(ctx).WithFields(map[string]any{
			"primary_contact_id": res.Primary.ID,
			"outcome":            string(res.Outcome),
		}).Debug("Resolved fragment from stream")
		return nil
	}
}
