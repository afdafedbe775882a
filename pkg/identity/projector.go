package identity

import "github.com/Ramsey-B/fern/pkg/models"

// Project shapes a cluster into its consolidated view. The primary's values
// come first, then each new value from members in the order given.
func Project(primary models.Contact, members []models.Contact) models.ClusterView {
	view := models.ClusterView{
		PrimaryContactID:    primary.ID,
		Emails:              []string{},
		PhoneNumbers:        []string{},
		SecondaryContactIDs: make([]int64, 0, len(members)),
	}

	seenEmails := map[string]bool{}
	seenPhones := map[string]bool{}
	add := func(c models.Contact) {
		if c.Email != nil && !seenEmails[*c.Email] {
			seenEmails[*c.Email] = true
			view.Emails = append(view.Emails, *c.Email)
		}
		if c.PhoneNumber != nil && !seenPhones[*c.PhoneNumber] {
			seenPhones[*c.PhoneNumber] = true
			view.PhoneNumbers = append(view.PhoneNumbers, *c.PhoneNumber)
		}
	}

	add(primary)
	for _, m := range members {
		add(m)
		view.SecondaryContactIDs = append(view.SecondaryContactIDs, m.ID)
	}

	return view
}
