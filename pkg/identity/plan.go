package identity

import (
	"sort"

	"github.com/Ramsey-B/fern/pkg/models"
)

// partition splits matched contacts into primaries and secondaries, keeping
// query order and dropping duplicate ids.
func partition(matches []models.Contact) (primaries, secondaries []models.Contact) {
	seen := make(map[int64]bool, len(matches))
	for _, c := range matches {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		if c.IsPrimary() {
			primaries = append(primaries, c)
		} else {
			secondaries = append(secondaries, c)
		}
	}
	return primaries, secondaries
}

// electPrimary picks the oldest contact as canonical (createdAt, then id) and
// returns the rest as losers, oldest first.
func electPrimary(candidates []models.Contact) (models.Contact, []models.Contact) {
	ordered := make([]models.Contact, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Older(&ordered[j])
	})
	return ordered[0], ordered[1:]
}

// newInformation returns the fragment values the cluster has not seen yet.
func newInformation(fragment models.Fragment, cluster []models.Contact) (email, phoneNumber *string) {
	emails := make(map[string]bool, len(cluster))
	phones := make(map[string]bool, len(cluster))
	for _, c := range cluster {
		if c.Email != nil {
			emails[*c.Email] = true
		}
		if c.PhoneNumber != nil {
			phones[*c.PhoneNumber] = true
		}
	}

	if fragment.Email != nil && !emails[*fragment.Email] {
		email = fragment.Email
	}
	if fragment.PhoneNumber != nil && !phones[*fragment.PhoneNumber] {
		phoneNumber = fragment.PhoneNumber
	}
	return email, phoneNumber
}

// splitCluster separates the contact with primaryID from the other members.
// ok is false when the primary is missing from members.
func splitCluster(primaryID int64, members []models.Contact) (primary models.Contact, secondaries []models.Contact, ok bool) {
	secondaries = make([]models.Contact, 0, len(members))
	for _, m := range members {
		if m.ID == primaryID {
			primary = m
			ok = true
			continue
		}
		secondaries = append(secondaries, m)
	}
	return primary, secondaries, ok
}
