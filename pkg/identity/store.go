package identity

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/models"
)

// ContactStore is the persistence surface the resolver needs. Deleted
// contacts are invisible to every method.
type ContactStore interface {
	// Create stores a contact and fills in id, createdAt and updatedAt.
	Create(ctx context.Context, contact models.NewContact) (*models.Contact, error)
	// FindByID returns models.ErrContactNotFound when no live contact has id.
	FindByID(ctx context.Context, id int64) (*models.Contact, error)
	// FindByEmailOrPhone matches either value. Nil inputs match nothing.
	FindByEmailOrPhone(ctx context.Context, email, phoneNumber *string) ([]models.Contact, error)
	// FindLinked returns the contact with primaryID plus every contact linked to it,
	// ordered by createdAt then id.
	FindLinked(ctx context.Context, primaryID int64) ([]models.Contact, error)
	// Update sets the supplied fields and always refreshes updatedAt.
	Update(ctx context.Context, id int64, update models.ContactUpdate) (*models.Contact, error)
}

// Transactor runs fn in a single serializable unit of work.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
