package contact

import (
	"context"
	"database/sql"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const table = "contacts"

var columns = []string{"id", "phone_number", "email", "linked_id", "link_precedence", "created_at", "updated_at", "deleted_at"}

// Repository handles contact persistence in PostgreSQL
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new contact repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// DB exposes the underlying database handle.
func (r *Repository) DB() database.DB {
	return r.db
}

// querier uses the transaction carried by ctx when there is one.
func (r *Repository) querier(ctx context.Context) database.Querier {
	if tx, ok := database.TxFromContext(ctx); ok {
		return tx
	}
	return r.db
}

// WithinTx runs fn in a serializable transaction. Serialization failures are
// returned to the caller unchanged.
func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.WithinTx")
	defer span.End()

	return database.WithinTx(ctx, r.db, &sql.TxOptions{Isolation: sql.LevelSerializable}, fn)
}

// Create inserts a contact and returns it with the generated fields
func (r *Repository) Create(ctx context.Context, c models.NewContact) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.Create")
	defer span.End()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols("phone_number", "email", "linked_id", "link_precedence")
	ib.Values(c.PhoneNumber, c.Email, c.LinkedID, string(c.LinkPrecedence))
	ib.Returning(columns...)

	query, args := ib.Build()
	var contact models.Contact
	if err := r.querier(ctx).GetContext(ctx, &contact, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create contact")
		return nil, errors.Wrap(err, "failed to create contact")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":              contact.ID,
		"link_precedence": contact.LinkPrecedence,
	}).Debug("Created contact")
	return &contact, nil
}

// FindByID returns a live contact by id
func (r *Repository) FindByID(ctx context.Context, id int64) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.FindByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var contact models.Contact
	if err := r.querier(ctx).GetContext(ctx, &contact, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrContactNotFound
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get contact")
		return nil, errors.Wrap(err, "failed to get contact")
	}

	return &contact, nil
}

// FindByEmailOrPhone returns live contacts sharing either value, oldest first
func (r *Repository) FindByEmailOrPhone(ctx context.Context, email, phoneNumber *string) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.FindByEmailOrPhone")
	defer span.End()

	if email == nil && phoneNumber == nil {
		return []models.Contact{}, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)

	var matchers []string
	if email != nil {
		matchers = append(matchers, sb.Equal("email", *email))
	}
	if phoneNumber != nil {
		matchers = append(matchers, sb.Equal("phone_number", *phoneNumber))
	}
	sb.Where(
		sb.Or(matchers...),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("created_at", "id").Asc()

	return r.selectContacts(ctx, sb, "Failed to find contacts by email or phone")
}

// FindLinked returns the primary with primaryID and every contact linked to it
func (r *Repository) FindLinked(ctx context.Context, primaryID int64) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.FindLinked")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(
		sb.Or(
			sb.Equal("id", primaryID),
			sb.Equal("linked_id", primaryID),
		),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("created_at", "id").Asc()

	return r.selectContacts(ctx, sb, "Failed to find linked contacts")
}

// Update sets the supplied fields and bumps updated_at
func (r *Repository) Update(ctx context.Context, id int64, update models.ContactUpdate) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.Update")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(table)

	assignments := []string{ub.Assign("updated_at", sqlbuilder.Raw("NOW()"))}
	if update.LinkedID != nil {
		assignments = append(assignments, ub.Assign("linked_id", *update.LinkedID))
	}
	if update.LinkPrecedence != nil {
		assignments = append(assignments, ub.Assign("link_precedence", string(*update.LinkPrecedence)))
	}
	ub.Set(assignments...)
	ub.Where(
		ub.Equal("id", id),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	query += " RETURNING " + strings.Join(columns, ", ")

	var contact models.Contact
	if err := r.querier(ctx).GetContext(ctx, &contact, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrContactNotFound
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update contact")
		return nil, errors.Wrap(err, "failed to update contact")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":              contact.ID,
		"linked_id":       contact.LinkedID,
		"link_precedence": contact.LinkPrecedence,
	}).Debug("Updated contact")
	return &contact, nil
}

// SoftDelete hides a contact from every query
func (r *Repository) SoftDelete(ctx context.Context, id int64) error {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.SoftDelete")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(ub.Assign("deleted_at", sqlbuilder.Raw("NOW()")))
	ub.Where(
		ub.Equal("id", id),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	result, err := r.querier(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to soft delete contact")
		return errors.Wrap(err, "failed to soft delete contact")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.ErrContactNotFound
	}
	return nil
}

func (r *Repository) selectContacts(ctx context.Context, sb *sqlbuilder.SelectBuilder, failure string) ([]models.Contact, error) {
	query, args := sb.Build()
	contacts := []models.Contact{}
	if err := r.querier(ctx).SelectContext(ctx, &contacts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error(failure)
		return nil, errors.Wrap(err, "failed to select contacts")
	}
	return contacts, nil
}
