package client

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNetwork: no usable response from the backend (transport failure,
	// timeout, open circuit breaker, 5xx).
	ErrNetwork = errors.New("network error")

	// ErrValidation: the backend rejected the input (4xx with detail).
	ErrValidation = errors.New("validation error")

	// ErrUnauthorized: the backend answered 401. Every subscriber of
	// OnUnauthorized has already been notified when a caller sees it.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidCredentials: login was refused for the given email/password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmailNotVerified: login was refused until the address is verified.
	ErrEmailNotVerified = errors.New("email not verified")

	// ErrRateLimited: a resend was attempted before the cooldown elapsed.
	// Raised client-side, never sent to the backend.
	ErrRateLimited = errors.New("rate limited")
)

// NetworkError wraps a transport-level failure of a single call.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrNetwork, e.Op, e.Err)
}

func (e *NetworkError) Unwrap() []error {
	return []error{ErrNetwork, e.Err}
}

// ValidationError carries the backend's detail and per-field messages.
type ValidationError struct {
	Status int
	Detail string
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, e.Message())
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Message renders the error for the user: the detail when present,
// otherwise every field message, non-field messages first.
func (e *ValidationError) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i] == nonFieldErrors {
			return true
		}
		if keys[j] == nonFieldErrors {
			return false
		}
		return keys[i] < keys[j]
	})

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		msg := strings.Join(e.Fields[k], " ")
		if k == nonFieldErrors {
			parts = append(parts, msg)
			continue
		}
		parts = append(parts, k+": "+msg)
	}
	if len(parts) == 0 {
		return fmt.Sprintf("request rejected with status %d", e.Status)
	}
	return strings.Join(parts, "; ")
}

// OnlyNonField reports whether every message is a non-field one.
func (e *ValidationError) OnlyNonField() bool {
	if e.Detail != "" || len(e.Fields) == 0 {
		return false
	}
	_, ok := e.Fields[nonFieldErrors]
	return ok && len(e.Fields) == 1
}

// AuthError is a refused login.
type AuthError struct {
	Detail string
}

func (e *AuthError) Error() string {
	if e.Detail == "" {
		return ErrInvalidCredentials.Error()
	}
	return fmt.Sprintf("%s: %s", ErrInvalidCredentials, e.Detail)
}

func (e *AuthError) Unwrap() error {
	return ErrInvalidCredentials
}

// EmailNotVerifiedError is a login refused because Email is unverified.
type EmailNotVerifiedError struct {
	Email  string
	Detail string
}

func (e *EmailNotVerifiedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrEmailNotVerified, e.Email)
}

func (e *EmailNotVerifiedError) Unwrap() error {
	return ErrEmailNotVerified
}

// UserMessage turns any error of this package into the text shown to the
// user. Unknown errors fall back to err.Error().
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		ve  *ValidationError
		ae  *AuthError
		ene *EmailNotVerifiedError
	)
	switch {
	case errors.As(err, &ve):
		return ve.Message()
	case errors.As(err, &ae):
		if ae.Detail != "" {
			return ae.Detail
		}
		return "Invalid email or password."
	case errors.As(err, &ene):
		if ene.Detail != "" {
			return ene.Detail
		}
		return "Please verify your email before logging in."
	case errors.Is(err, ErrUnauthorized):
		return "Your session has expired. Please log in again."
	case errors.Is(err, ErrRateLimited):
		return "Please wait before requesting another code."
	case errors.Is(err, ErrNetwork):
		return "Could not reach the server. Please try again."
	default:
		return err.Error()
	}
}
