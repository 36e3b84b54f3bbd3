package models

// Credential is an opaque bearer token issued by the identity backend.
type Credential string

// Session is a point-in-time copy of the session state.
//
// Invariant: User != nil implies Credential != "".
// Loading is true only while the initial resume runs or a login/verify
// call is in flight.
type Session struct {
	Credential Credential `json:"-" yaml:"-"`
	User       *User      `json:"user,omitempty" yaml:"user,omitempty"`
	Loading    bool       `json:"loading" yaml:"loading"`
}

// Authenticated reports whether a credential is held.
func (s Session) Authenticated() bool {
	return s.Credential != ""
}

// Onboarded reports whether the session's user finished onboarding.
func (s Session) Onboarded() bool {
	return s.User != nil && s.User.IsOnboarded
}
