package user

import (
	"time"

	"github.com/irsalhamdi/edemy/core/claims"
)

// User mirrors the identity provider's account; ID is the provider's user id.
type User struct {
	ID        string    `json:"id" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	ImageURL  string    `json:"imageUrl" db:"image_url"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

type UserUp struct {
	ID       string `db:"user_id"`
	Name     string `db:"name"`
	Email    string `db:"email"`
	ImageURL string `db:"image_url"`
}

// Placeholder profile values used when a user is first seen without profile claims.
const (
	DefaultName     = "User"
	DefaultEmail    = "user@example.com"
	DefaultImageURL = "https://ui-avatars.com/api/?name=User"
)

// WithDefaults fills the profile fields the identity provider left empty.
func (up UserUp) WithDefaults() UserUp {
	if up.Name == "" {
		up.Name = DefaultName
	}
	if up.Email == "" {
		up.Email = DefaultEmail
	}
	if up.ImageURL == "" {
		up.ImageURL = DefaultImageURL
	}
	return up
}

// FromClaims builds the profile of a first-time user from its token claims.
func FromClaims(clm claims.Claims) UserUp {
	up := UserUp{
		ID:       clm.UserID,
		Name:     clm.Name,
		Email:    clm.Email,
		ImageURL: clm.ImageURL,
	}
	return up.WithDefaults()
}
