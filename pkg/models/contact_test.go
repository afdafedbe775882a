package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFragment_IsEmpty(t *testing.T) {
	tests := []struct {
		name     string
		fragment Fragment
		want     bool
	}{
		{name: "nil values", fragment: Fragment{}, want: true},
		{name: "empty strings", fragment: Fragment{Email: StringPtr(""), PhoneNumber: StringPtr("")}, want: true},
		{name: "email only", fragment: Fragment{Email: StringPtr("doc@brown.io")}, want: false},
		{name: "phone only", fragment: NewFragment("", "121"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fragment.IsEmpty())
		})
	}
}

func TestFragment_Normalize(t *testing.T) {
	f := Fragment{Email: StringPtr(""), PhoneNumber: StringPtr("121")}.Normalize()

	assert.Nil(t, f.Email)
	assert.Equal(t, "121", *f.PhoneNumber)
}

func TestContact_Older(t *testing.T) {
	now := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	a := &Contact{ID: 2, CreatedAt: now}
	b := &Contact{ID: 1, CreatedAt: now.Add(time.Second)}
	c := &Contact{ID: 3, CreatedAt: now}

	assert.True(t, a.Older(b))
	assert.False(t, b.Older(a))
	assert.True(t, a.Older(c), "ties break on id")
	assert.False(t, c.Older(a))
}
