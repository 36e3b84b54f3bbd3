package models

import "time"

// Company is the record the user administers; onboarding fills it in.
type Company struct {
	ID        int64     `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Logo      string    `json:"logo,omitempty" yaml:"logo,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// CompanyUpdate carries the onboarding form. LogoPath is a local file
// that is sent as the multipart "logo" part when non-empty.
type CompanyUpdate struct {
	Name     string
	LogoPath string
}
