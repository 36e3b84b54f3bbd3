// Package models defines client-side data models used by the ticketdesk CLI.
package models

// User is the identity backend's view of the account behind a credential.
// It is only ever replaced by a re-fetch; the client never computes fields.
type User struct {
	// ID is the backend primary key ("pk" on the wire).
	ID int64 `json:"pk" yaml:"id"`

	// Email is the login address, lower-cased by the backend.
	Email string `json:"email" yaml:"email"`

	// Name is the display name given at registration. May be empty.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// IsOnboarded flips to true server-side once onboarding completes.
	IsOnboarded bool `json:"is_onboarded" yaml:"is_onboarded"`
}
