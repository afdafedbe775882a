package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/fern/pkg/models"
)

func contactAt(id int64, precedence models.LinkPrecedence, createdAt time.Time) models.Contact {
	return models.Contact{ID: id, LinkPrecedence: precedence, CreatedAt: createdAt}
}

func TestElectPrimary(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		candidates []models.Contact
		want       int64
		wantLosers []int64
	}{
		{
			name:       "single candidate",
			candidates: []models.Contact{contactAt(7, models.LinkPrecedencePrimary, t0)},
			want:       7,
			wantLosers: []int64{},
		},
		{
			name: "oldest wins",
			candidates: []models.Contact{
				contactAt(1, models.LinkPrecedencePrimary, t0.Add(time.Minute)),
				contactAt(2, models.LinkPrecedencePrimary, t0),
			},
			want:       2,
			wantLosers: []int64{1},
		},
		{
			name: "equal timestamps fall back to id",
			candidates: []models.Contact{
				contactAt(9, models.LinkPrecedencePrimary, t0),
				contactAt(4, models.LinkPrecedencePrimary, t0),
				contactAt(6, models.LinkPrecedencePrimary, t0),
			},
			want:       4,
			wantLosers: []int64{6, 9},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for run := 0; run < 3; run++ {
				winner, losers := electPrimary(tt.candidates)
				assert.Equal(t, tt.want, winner.ID)

				ids := []int64{}
				for _, l := range losers {
					ids = append(ids, l.ID)
				}
				assert.Equal(t, tt.wantLosers, ids)
			}
		})
	}
}

func TestPartition(t *testing.T) {
	t0 := time.Now()
	matches := []models.Contact{
		contactAt(1, models.LinkPrecedencePrimary, t0),
		contactAt(2, models.LinkPrecedenceSecondary, t0),
		contactAt(1, models.LinkPrecedencePrimary, t0),
		contactAt(3, models.LinkPrecedencePrimary, t0),
	}

	primaries, secondaries := partition(matches)
	assert.Len(t, primaries, 2)
	assert.Len(t, secondaries, 1)
	assert.Equal(t, int64(3), primaries[1].ID)
}

func TestNewInformation(t *testing.T) {
	cluster := []models.Contact{
		{ID: 1, Email: models.StringPtr("a@x.io"), PhoneNumber: models.StringPtr("1")},
		{ID: 2, Email: models.StringPtr("b@x.io")},
	}

	tests := []struct {
		name      string
		fragment  models.Fragment
		wantEmail *string
		wantPhone *string
	}{
		{name: "fully known", fragment: models.NewFragment("b@x.io", "1")},
		{name: "email only known", fragment: models.NewFragment("a@x.io", "")},
		{name: "new phone", fragment: models.NewFragment("a@x.io", "2"), wantPhone: models.StringPtr("2")},
		{name: "new email", fragment: models.NewFragment("c@x.io", "1"), wantEmail: models.StringPtr("c@x.io")},
		{name: "both new", fragment: models.NewFragment("c@x.io", "2"), wantEmail: models.StringPtr("c@x.io"), wantPhone: models.StringPtr("2")},
		{name: "case sensitive", fragment: models.NewFragment("A@x.io", ""), wantEmail: models.StringPtr("A@x.io")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email, phone := newInformation(tt.fragment, cluster)
			assert.Equal(t, tt.wantEmail, email)
			assert.Equal(t, tt.wantPhone, phone)
		})
	}
}

func TestSplitCluster(t *testing.T) {
	members := []models.Contact{{ID: 3}, {ID: 1}, {ID: 5}}

	primary, secondaries, ok := splitCluster(1, members)
	assert.True(t, ok)
	assert.Equal(t, int64(1), primary.ID)
	assert.Equal(t, []models.Contact{{ID: 3}, {ID: 5}}, secondaries)

	_, _, ok = splitCluster(9, members)
	assert.False(t, ok)
}
