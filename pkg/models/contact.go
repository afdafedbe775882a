package models

import (
	"errors"
	"time"
)

// ErrContactNotFound is returned by stores when no live contact has the requested id.
var ErrContactNotFound = errors.New("contact not found")

type LinkPrecedence string

const (
	LinkPrecedencePrimary   LinkPrecedence = "primary"
	LinkPrecedenceSecondary LinkPrecedence = "secondary"
)

// Contact is a single identity record. A secondary's LinkedID always points at a primary.
type Contact struct {
	ID             int64          `json:"id" db:"id"`
	PhoneNumber    *string        `json:"phoneNumber" db:"phone_number"`
	Email          *string        `json:"email" db:"email"`
	LinkedID       *int64         `json:"linkedId" db:"linked_id"`
	LinkPrecedence LinkPrecedence `json:"linkPrecedence" db:"link_precedence"`
	CreatedAt      time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time      `json:"updatedAt" db:"updated_at"`
	DeletedAt      *time.Time     `json:"deletedAt,omitempty" db:"deleted_at"`
}

func (c *Contact) IsPrimary() bool {
	return c.LinkPrecedence == LinkPrecedencePrimary
}

// Older reports whether c sorts before other: createdAt ascending, then id.
func (c *Contact) Older(other *Contact) bool {
	if !c.CreatedAt.Equal(other.CreatedAt) {
		return c.CreatedAt.Before(other.CreatedAt)
	}
	return c.ID < other.ID
}

// NewContact is the insert payload for a contact.
type NewContact struct {
	Email          *string
	PhoneNumber    *string
	LinkedID       *int64
	LinkPrecedence LinkPrecedence
}

// ContactUpdate carries the fields to change. Nil fields are left alone.
type ContactUpdate struct {
	LinkedID       *int64
	LinkPrecedence *LinkPrecedence
}

// Fragment is a partial identity submitted for resolution.
type Fragment struct {
	Email       *string `json:"email"`
	PhoneNumber *string `json:"phoneNumber"`
}

// NewFragment builds a fragment, treating empty strings as absent.
func NewFragment(email, phoneNumber string) Fragment {
	var f Fragment
	if email != "" {
		f.Email = &email
	}
	if phoneNumber != "" {
		f.PhoneNumber = &phoneNumber
	}
	return f
}

// Normalize drops empty values so that "" and nil mean the same thing.
func (f Fragment) Normalize() Fragment {
	if f.Email != nil && *f.Email == "" {
		f.Email = nil
	}
	if f.PhoneNumber != nil && *f.PhoneNumber == "" {
		f.PhoneNumber = nil
	}
	return f
}

func (f Fragment) IsEmpty() bool {
	f = f.Normalize()
	return f.Email == nil && f.PhoneNumber == nil
}

// ClusterView is the consolidated shape returned to callers.
type ClusterView struct {
	PrimaryContactID    int64    `json:"primaryContactId"`
	Emails              []string `json:"emails"`
	PhoneNumbers        []string `json:"phoneNumbers"`
	SecondaryContactIDs []int64  `json:"secondaryContactIds"`
}

// IdentifyResponse is the response envelope for an identify call.
type IdentifyResponse struct {
	Contact ClusterView `json:"contact"`
}

// StringPtr is a small helper for optional string fields.
func StringPtr(s string) *string {
	return &s
}

func Int64Ptr(i int64) *int64 {
	return &i
}
