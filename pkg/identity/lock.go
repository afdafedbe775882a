package identity

import (
	"context"
	"sort"
	"sync"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Locker serializes resolutions that share a fragment value. Implementations
// must take keys in the order given and release all of them on unlock.
type Locker interface {
	Lock(ctx context.Context, keys []string) (unlock func(), err error)
}

// LockKeys returns the sorted lock keys for a fragment.
func LockKeys(fragment models.Fragment) []string {
	keys := make([]string, 0, 2)
	if fragment.Email != nil {
		keys = append(keys, "email:"+*fragment.Email)
	}
	if fragment.PhoneNumber != nil {
		keys = append(keys, "phone:"+*fragment.PhoneNumber)
	}
	sort.Strings(keys)
	return keys
}

// LocalLocker is an in-process keyed mutex. Waiting honours ctx.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*lockSlot)}
}

func (l *LocalLocker) Lock(ctx context.Context, keys []string) (func(), error) {
	held := make([]string, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.release(held[i])
		}
	}

	for _, key := range keys {
		slot := l.acquireSlot(key)
		select {
		case slot.ch <- struct{}{}:
			held = append(held, key)
		case <-ctx.Done():
			l.dropSlot(key)
			release()
			return nil, ErrLockUnavailable
		}
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *LocalLocker) acquireSlot(key string) *lockSlot {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot, ok := l.slots[key]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	return slot
}

func (l *LocalLocker) release(key string) {
	l.mu.Lock()
	slot := l.slots[key]
	l.mu.Unlock()

	<-slot.ch
	l.dropSlot(key)
}

func (l *LocalLocker) dropSlot(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot := l.slots[key]
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
}
