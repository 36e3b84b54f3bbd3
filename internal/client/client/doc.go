// Package client is the transport to the ticketdesk identity backend.
//
// # Overview
//
// The package provides:
//  1. The Client interface: login, registration, logout, current user,
//     email verification and resend, password reset, onboarding completion,
//     the user's company and a liveness probe.
//  2. HTTPClient, the HTTP/JSON implementation. Its RoundTripper chain
//     stamps a request id, attaches the stored credential as the
//     Authorization header, optionally runs requests through a circuit
//     breaker, and publishes every 401 to OnUnauthorized subscribers.
//
// # Error Handling
//
// Conditions are exposed as sentinels matched with errors.Is: ErrNetwork,
// ErrValidation, ErrUnauthorized, ErrInvalidCredentials, ErrEmailNotVerified,
// ErrRateLimited. Typed errors (NetworkError, ValidationError, AuthError,
// EmailNotVerifiedError) carry the detail; UserMessage renders any of them.
//
// Nothing in this package retries.
package client
