package contact

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// MemoryStore keeps contacts in process. It backs STORE_DRIVER=memory and the tests.
// WithinTx serializes callers and restores the previous state when fn fails;
// writers outside WithinTx are not isolated from it.
type MemoryStore struct {
	mu       sync.RWMutex
	txMu     sync.Mutex
	contacts map[int64]models.Contact
	nextID   int64
	now      func() time.Time
}

type MemoryOption func(*MemoryStore)

// WithClock overrides the timestamp source, mainly so tests can force createdAt ties.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		contacts: make(map[int64]models.Contact),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Create(ctx context.Context, c models.NewContact) (*models.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	now := s.now()
	contact := models.Contact{
		ID:             s.nextID,
		Email:          cloneString(c.Email),
		PhoneNumber:    cloneString(c.PhoneNumber),
		LinkedID:       cloneInt64(c.LinkedID),
		LinkPrecedence: c.LinkPrecedence,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.contacts[contact.ID] = contact
	return cloneContact(contact), nil
}

// Seed stores a contact exactly as given, keeping its id and timestamps.
func (s *MemoryStore) Seed(c models.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.contacts[c.ID] = *cloneContact(c)
	if c.ID > s.nextID {
		s.nextID = c.ID
	}
}

func (s *MemoryStore) FindByID(ctx context.Context, id int64) (*models.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contacts[id]
	if !ok || c.DeletedAt != nil {
		return nil, models.ErrContactNotFound
	}
	return cloneContact(c), nil
}

func (s *MemoryStore) FindByEmailOrPhone(ctx context.Context, email, phoneNumber *string) ([]models.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if email == nil && phoneNumber == nil {
		return []models.Contact{}, nil
	}

	return s.filter(func(c models.Contact) bool {
		return (email != nil && c.Email != nil && *c.Email == *email) ||
			(phoneNumber != nil && c.PhoneNumber != nil && *c.PhoneNumber == *phoneNumber)
	}), nil
}

func (s *MemoryStore) FindLinked(ctx context.Context, primaryID int64) ([]models.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return s.filter(func(c models.Contact) bool {
		return c.ID == primaryID || (c.LinkedID != nil && *c.LinkedID == primaryID)
	}), nil
}

func (s *MemoryStore) Update(ctx context.Context, id int64, update models.ContactUpdate) (*models.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contacts[id]
	if !ok || c.DeletedAt != nil {
		return nil, models.ErrContactNotFound
	}
	if update.LinkedID != nil {
		c.LinkedID = cloneInt64(update.LinkedID)
	}
	if update.LinkPrecedence != nil {
		c.LinkPrecedence = *update.LinkPrecedence
	}
	c.UpdatedAt = s.now()
	s.contacts[id] = c
	return cloneContact(c), nil
}

// SoftDelete hides a contact from every query.
func (s *MemoryStore) SoftDelete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contacts[id]
	if !ok || c.DeletedAt != nil {
		return models.ErrContactNotFound
	}
	now := s.now()
	c.DeletedAt = &now
	s.contacts[id] = c
	return nil
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := make(map[int64]models.Contact, len(s.contacts))
	for id, c := range s.contacts {
		snapshot[id] = c
	}
	nextID := s.nextID
	s.mu.RUnlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.contacts = snapshot
		s.nextID = nextID
		s.mu.Unlock()
		return err
	}
	return nil
}

// All returns every stored contact, deleted ones included, ordered by id.
func (s *MemoryStore) All() []models.Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]models.Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		all = append(all, *cloneContact(c))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

func (s *MemoryStore) filter(keep func(c models.Contact) bool) []models.Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Contact{}
	for _, c := range s.contacts {
		if c.DeletedAt == nil && keep(c) {
			out = append(out, *cloneContact(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Older(&out[j])
	})
	return out
}

func cloneContact(c models.Contact) *models.Contact {
	out := c
	out.Email = cloneString(c.Email)
	out.PhoneNumber = cloneString(c.PhoneNumber)
	out.LinkedID = cloneInt64(c.LinkedID)
	if c.DeletedAt != nil {
		deletedAt := *c.DeletedAt
		out.DeletedAt = &deletedAt
	}
	return &out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt64(i *int64) *int64 {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
