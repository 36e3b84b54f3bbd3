package client

import (
	"context"

	"github.com/dmitrijs2005/ticketdesk/internal/client/models"
)

// Client is the identity backend contract used by the session service and
// the CLI.
type Client interface {
	Login(ctx context.Context, email, password string) (*LoginResponse, error)
	Register(ctx context.Context, name, email, password string) error
	Logout(ctx context.Context) error
	GetUser(ctx context.Context) (*models.User, error)
	VerifyEmail(ctx context.Context, email, code string) (*VerifyEmailResponse, error)
	ResendVerification(ctx context.Context, email string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, uid, token, newPassword string) error
	CompleteOnboarding(ctx context.Context) error
	GetMyCompany(ctx context.Context) (*models.Company, error)
	UpdateMyCompany(ctx context.Context, upd models.CompanyUpdate) (*models.Company, error)
	Ping(ctx context.Context) error

	// OnUnauthorized subscribes h to 401 responses of any call. Handlers run
	// in subscription order. The returned func unsubscribes.
	OnUnauthorized(h UnauthorizedHandler) (unsubscribe func())
}
