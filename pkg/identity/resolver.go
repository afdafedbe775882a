// Package identity reconciles email/phone fragments into primary/secondary contact clusters.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"golang.org/x/sync/errgroup"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// maxLinkDepth bounds how many linkedId hops are followed from a secondary.
const maxLinkDepth = 8

type Outcome string

const (
	// OutcomeCreated: no contact matched and a new primary was stored.
	OutcomeCreated Outcome = "created"
	// OutcomeAttached: a secondary carrying new information joined an existing cluster.
	OutcomeAttached Outcome = "attached"
	// OutcomeMerged: two or more clusters were merged, with or without an attachment.
	OutcomeMerged Outcome = "merged"
	// OutcomeMatched: the fragment was already fully known.
	OutcomeMatched Outcome = "matched"
)

// Cluster is a primary and the secondaries linked to it, in store order.
type Cluster struct {
	Primary     models.Contact
	Secondaries []models.Contact
}

func (c Cluster) View() models.ClusterView {
	return Project(c.Primary, c.Secondaries)
}

// Resolution is the result of Resolve along with what the call wrote.
type Resolution struct {
	Cluster
	Outcome  Outcome
	Created  []models.Contact
	Demoted  []models.Contact
	Relinked []models.Contact
}

type Option func(*Resolver)

// WithLocker takes per-value locks around every resolution.
func WithLocker(locker Locker) Option {
	return func(r *Resolver) {
		r.locker = locker
	}
}

// WithTransactor runs the reads and writes of a resolution in one transaction.
// Demotions then run one at a time because a transaction holds a single connection.
func WithTransactor(transactor Transactor) Option {
	return func(r *Resolver) {
		r.transactor = transactor
	}
}

// WithObservers registers observers notified after every resolution.
func WithObservers(observers ...Observer) Option {
	return func(r *Resolver) {
		r.observers = append(r.observers, observers...)
	}
}

// Resolver decides, per fragment, whether to attach, merge or create contacts.
type Resolver struct {
	store      ContactStore
	logger     ectologger.Logger
	locker     Locker
	transactor Transactor
	observers  []Observer
	now        func() time.Time
}

func NewResolver(store ContactStore, logger ectologger.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve reconciles a fragment against the stored contacts and returns the
// cluster it belongs to afterwards.
func (r *Resolver) Resolve(ctx context.Context, fragment models.Fragment) (*Resolution, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Resolver.Resolve")
	defer span.End()

	fragment = fragment.Normalize()
	if fragment.IsEmpty() {
		return nil, ErrInvalidFragment
	}

	start := r.now()
	res, err := r.resolveLocked(ctx, fragment)
	duration := r.now().Sub(start)

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"has_email":    fragment.Email != nil,
		"has_phone":    fragment.PhoneNumber != nil,
		"duration_ms":  duration.Milliseconds(),
		"source":       appctx.GetSource(ctx),
		"lock_enabled": r.locker != nil,
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrInconsistentCluster) {
			log.WithError(err).Error("Fragment matched contacts without a reachable primary")
		} else {
			log.WithError(err).Warn("Failed to resolve fragment")
		}
	} else {
		log.WithFields(map[string]any{
			"primary_contact_id": res.Primary.ID,
			"outcome":            string(res.Outcome),
			"created":            len(res.Created),
			"demoted":            len(res.Demoted),
			"relinked":           len(res.Relinked),
		}).Info("Resolved fragment")
	}

	r.notify(ctx, Event{
		Fragment:   fragment,
		Resolution: res,
		Err:        err,
		Duration:   duration,
		Source:     appctx.GetSource(ctx),
	})

	if err != nil {
		return nil, err
	}
	return res, nil
}

// ClusterOf returns the cluster containing the contact with id.
func (r *Resolver) ClusterOf(ctx context.Context, id int64) (*Cluster, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Resolver.ClusterOf")
	defer span.End()

	contact, err := r.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrContactNotFound) {
			return nil, err
		}
		return nil, storeError("FindByID", err)
	}

	primary := *contact
	if !primary.IsPrimary() {
		found, err := r.primaryOf(ctx, primary, map[int64]*models.Contact{})
		if err != nil {
			return nil, err
		}
		if found == nil {
			return nil, fmt.Errorf("%w: contact %d", ErrInconsistentCluster, id)
		}
		primary = *found
	}

	return r.loadCluster(ctx, primary)
}

func (r *Resolver) resolveLocked(ctx context.Context, fragment models.Fragment) (*Resolution, error) {
	if r.locker != nil {
		unlock, err := r.locker.Lock(ctx, LockKeys(fragment))
		if err != nil {
			if errors.Is(err, ErrLockUnavailable) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrLockUnavailable, err)
		}
		defer unlock()
	}

	if r.transactor == nil {
		return r.resolve(ctx, fragment)
	}

	var res *Resolution
	err := r.transactor.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		res, err = r.resolve(txCtx, fragment)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInconsistentCluster) || IsStoreError(err) {
			return nil, err
		}
		return nil, storeError("Transaction", err)
	}
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, fragment models.Fragment) (*Resolution, error) {
	matches, err := r.store.FindByEmailOrPhone(ctx, fragment.Email, fragment.PhoneNumber)
	if err != nil {
		return nil, storeError("FindByEmailOrPhone", err)
	}

	if len(matches) == 0 {
		created, err := r.store.Create(ctx, models.NewContact{
			Email:          fragment.Email,
			PhoneNumber:    fragment.PhoneNumber,
			LinkPrecedence: models.LinkPrecedencePrimary,
		})
		if err != nil {
			return nil, storeError("Create", err)
		}
		return &Resolution{
			Cluster: Cluster{Primary: *created, Secondaries: []models.Contact{}},
			Outcome: OutcomeCreated,
			Created: []models.Contact{*created},
		}, nil
	}

	candidates, err := r.candidatePrimaries(ctx, matches)
	if err != nil {
		return nil, err
	}

	canonical, losers := electPrimary(candidates)
	res := &Resolution{Outcome: OutcomeMatched}

	if len(losers) > 0 {
		demoted, relinked, err := r.demote(ctx, canonical, losers)
		if err != nil {
			return nil, err
		}
		res.Demoted = demoted
		res.Relinked = relinked
		res.Outcome = OutcomeMerged
	}

	cluster, err := r.loadCluster(ctx, canonical)
	if err != nil {
		return nil, err
	}

	members := append([]models.Contact{cluster.Primary}, cluster.Secondaries...)
	email, phoneNumber := newInformation(fragment, members)
	if email != nil || phoneNumber != nil {
		primaryID := cluster.Primary.ID
		attached, err := r.store.Create(ctx, models.NewContact{
			Email:          email,
			PhoneNumber:    phoneNumber,
			LinkedID:       &primaryID,
			LinkPrecedence: models.LinkPrecedenceSecondary,
		})
		if err != nil {
			return nil, storeError("Create", err)
		}
		cluster.Secondaries = append(cluster.Secondaries, *attached)
		res.Created = append(res.Created, *attached)
		if res.Outcome == OutcomeMatched {
			res.Outcome = OutcomeAttached
		}
	}

	res.Cluster = *cluster
	return res, nil
}

// candidatePrimaries returns the primaries the election runs over. Matched
// primaries are taken as they are and matched secondaries are ignored; only
// when no primary matched are the secondaries followed through linkedId.
func (r *Resolver) candidatePrimaries(ctx context.Context, matches []models.Contact) ([]models.Contact, error) {
	primaries, secondaries := partition(matches)
	if len(primaries) > 0 {
		return primaries, nil
	}

	cache := make(map[int64]*models.Contact, len(secondaries))
	for i := range secondaries {
		cache[secondaries[i].ID] = &secondaries[i]
	}

	seen := map[int64]bool{}
	reached := []models.Contact{}
	for _, s := range secondaries {
		primary, err := r.primaryOf(ctx, s, cache)
		if err != nil {
			return nil, err
		}
		if primary == nil {
			r.logger.WithContext(ctx).WithField("contact_id", s.ID).Warn("Matched secondary does not lead to a primary")
			continue
		}
		if seen[primary.ID] {
			continue
		}
		seen[primary.ID] = true
		reached = append(reached, *primary)
	}

	if len(reached) == 0 {
		ids := make([]int64, 0, len(secondaries))
		for _, s := range secondaries {
			ids = append(ids, s.ID)
		}
		return nil, fmt.Errorf("%w: secondaries %v", ErrInconsistentCluster, ids)
	}
	return reached, nil
}

// primaryOf follows linkedId from c until it reaches a primary. A nil result
// means the chain dangles, loops, or is longer than maxLinkDepth.
func (r *Resolver) primaryOf(ctx context.Context, c models.Contact, cache map[int64]*models.Contact) (*models.Contact, error) {
	current := c
	visited := map[int64]bool{current.ID: true}
	for depth := 0; depth < maxLinkDepth; depth++ {
		if current.IsPrimary() {
			found := current
			return &found, nil
		}
		if current.LinkedID == nil || visited[*current.LinkedID] {
			return nil, nil
		}

		nextID := *current.LinkedID
		visited[nextID] = true
		next, ok := cache[nextID]
		if !ok {
			found, err := r.store.FindByID(ctx, nextID)
			switch {
			case errors.Is(err, models.ErrContactNotFound):
				cache[nextID] = nil
			case err != nil:
				return nil, storeError("FindByID", err)
			default:
				cache[nextID] = found
			}
			next = cache[nextID]
		}
		if next == nil {
			return nil, nil
		}
		current = *next
	}

	if current.IsPrimary() {
		return &current, nil
	}
	return nil, nil
}

// demote turns every loser into a secondary of canonical and re-parents the
// loser's own secondaries in the same pass.
func (r *Resolver) demote(ctx context.Context, canonical models.Contact, losers []models.Contact) (demoted, relinked []models.Contact, err error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Resolver.demote")
	defer span.End()

	type result struct {
		demoted  []models.Contact
		relinked []models.Contact
	}
	results := make([]result, len(losers))

	g, gctx := errgroup.WithContext(ctx)
	if r.transactor != nil {
		g.SetLimit(1)
	}

	secondary := models.LinkPrecedenceSecondary
	canonicalID := canonical.ID
	for i, loser := range losers {
		g.Go(func() error {
			members, err := r.store.FindLinked(gctx, loser.ID)
			if err != nil {
				return storeError("FindLinked", err)
			}
			if !containsID(members, loser.ID) {
				members = append([]models.Contact{loser}, members...)
			}

			for _, m := range members {
				if m.ID == canonicalID {
					continue
				}
				updated, err := r.store.Update(gctx, m.ID, models.ContactUpdate{
					LinkedID:       &canonicalID,
					LinkPrecedence: &secondary,
				})
				if err != nil {
					return storeError("Update", err)
				}
				if m.ID == loser.ID {
					results[i].demoted = append(results[i].demoted, *updated)
				} else {
					results[i].relinked = append(results[i].relinked, *updated)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	for _, res := range results {
		demoted = append(demoted, res.demoted...)
		relinked = append(relinked, res.relinked...)
	}
	return demoted, relinked, nil
}

func (r *Resolver) loadCluster(ctx context.Context, primary models.Contact) (*Cluster, error) {
	members, err := r.store.FindLinked(ctx, primary.ID)
	if err != nil {
		return nil, storeError("FindLinked", err)
	}

	stored, secondaries, ok := splitCluster(primary.ID, members)
	if !ok {
		return nil, fmt.Errorf("%w: primary %d is no longer stored", ErrInconsistentCluster, primary.ID)
	}
	return &Cluster{Primary: stored, Secondaries: secondaries}, nil
}

func (r *Resolver) notify(ctx context.Context, event Event) {
	for _, observer := range r.observers {
		if err := observer.Observe(ctx, event); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("observer", observer.Name()).Warn("Resolution observer failed")
		}
	}
}

func containsID(contacts []models.Contact, id int64) bool {
	for _, c := range contacts {
		if c.ID == id {
			return true
		}
	}
	return false
}
