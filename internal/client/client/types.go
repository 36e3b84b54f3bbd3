package client

import (
	"context"
)

// TokenSource yields the current credential, "" when there is none.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// UnauthorizedHandler is notified for every 401 response.
type UnauthorizedHandler func(ctx context.Context)

// LoginResponse is the body of a successful auth/login call.
type LoginResponse struct {
	Key string `json:"key"`
}

// VerifyEmailResponse is the body of a successful auth/verify-email call.
// Key may be empty.
type VerifyEmailResponse struct {
	Detail string `json:"detail"`
	Key    string `json:"key,omitempty"`
}

// DetailResponse is the acknowledgment shape used by most endpoints.
type DetailResponse struct {
	Detail string `json:"detail"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password1 string `json:"password1"`
}

type verifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type passwordResetConfirmRequest struct {
	UID         string `json:"uid"`
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// loginRejection is the 403 body for unverified accounts.
type loginRejection struct {
	EmailNotVerified bool   `json:"email_not_verified"`
	Email            string `json:"email"`
	Detail           string `json:"detail"`
}

const nonFieldErrors = "non_field_errors"
