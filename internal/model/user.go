// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a verified account.
//
// Email is the identity anchor: it is set once, on the first successful
// code exchange with the identity provider, and never changes. Handle is
// assigned lazily (see internal/handle) and is empty until then.
type User struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	Handle      string    `json:"handle,omitempty"`
	Name        string    `json:"name,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	LastLoginAt time.Time `json:"lastLoginAt"`
}

// DisplayLabel is the author label captured on memes created by this user:
// "@handle" when a handle is set, otherwise the display name, otherwise the email.
func (u *User) DisplayLabel() string {
	switch {
	case u.Handle != "":
		return "@" + u.Handle
	case u.Name != "":
		return u.Name
	default:
		return u.Email
	}
}

// Profile is the public subset of a User returned by the profile endpoints.
type Profile struct {
	Email  string `json:"email"`
	Handle string `json:"handle"`
	Name   string `json:"name"`
}

// Profile returns the user's profile view.
func (u *User) Profile() Profile {
	return Profile{Email: u.Email, Handle: u.Handle, Name: u.Name}
}
