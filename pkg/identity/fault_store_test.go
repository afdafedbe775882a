package identity_test

import (
	"context"
	"sync"

	"github.com/Ramsey-B/fern/internal/repositories/contact"
	"github.com/Ramsey-B/fern/pkg/models"
)

// faultStore wraps the memory store and fails chosen operations on demand.
type faultStore struct {
	*contact.MemoryStore

	mu     sync.Mutex
	calls  map[string]int
	faults map[string]fault
}

type fault struct {
	after int
	err   error
}

func (s *faultStore) fail(op string, err error) {
	s.failAfter(op, 0, err)
}

// failAfter lets the first n calls of op through and fails the rest.
func (s *faultStore) failAfter(op string, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.faults == nil {
		s.faults = map[string]fault{}
	}
	s.faults[op] = fault{after: (s.calls[op]) + n, err: err}
}

func (s *faultStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = nil
}

func (s *faultStore) totalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

func (s *faultStore) check(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[op]++
	f, ok := s.faults[op]
	if ok && s.calls[op] > f.after {
		return f.err
	}
	return nil
}

func (s *faultStore) Create(ctx context.Context, c models.NewContact) (*models.Contact, error) {
	if err := s.check("Create"); err != nil {
		return nil, err
	}
	return s.MemoryStore.Create(ctx, c)
}

func (s *faultStore) FindByID(ctx context.Context, id int64) (*models.Contact, error) {
	if err := s.check("FindByID"); err != nil {
		return nil, err
	}
	return s.MemoryStore.FindByID(ctx, id)
}

func (s *faultStore) FindByEmailOrPhone(ctx context.Context, email, phoneNumber *string) ([]models.Contact, error) {
	if err := s.check("FindByEmailOrPhone"); err != nil {
		return nil, err
	}
	return s.MemoryStore.FindByEmailOrPhone(ctx, email, phoneNumber)
}

func (s *faultStore) FindLinked(ctx context.Context, primaryID int64) ([]models.Contact, error) {
	if err := s.check("FindLinked"); err != nil {
		return nil, err
	}
	return s.MemoryStore.FindLinked(ctx, primaryID)
}

func (s *faultStore) Update(ctx context.Context, id int64, update models.ContactUpdate) (*models.Contact, error) {
	if err := s.check("Update"); err != nil {
		return nil, err
	}
	return s.MemoryStore.Update(ctx, id, update)
}
