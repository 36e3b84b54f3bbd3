// Package services contains the application services of the ticketdesk
// client. SessionService owns the session: the credential, the user behind
// it and the loading gate the route guard waits on.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/ticketdesk/internal/client/client"
	"github.com/dmitrijs2005/ticketdesk/internal/client/models"
	"github.com/dmitrijs2005/ticketdesk/internal/logging"
)

// CredentialStore is the persistent half of the session. SessionService is
// its only writer.
type CredentialStore interface {
	Token(ctx context.Context) (string, error)
	SetToken(ctx context.Context, token string) error
	User(ctx context.Context) (*models.User, error)
	SetUser(ctx context.Context, u *models.User) error
	PendingEmail(ctx context.Context) (string, error)
	SetPendingEmail(ctx context.Context, email string) error
	Clear(ctx context.Context) error
}

// SessionService holds the session state of one process.
//
// Contract:
//   - Initialize runs once; Ready is closed when it is done. Until then
//     Snapshot reports Loading.
//   - Login and SetAuthToken persist the credential before the user is
//     fetched with it.
//   - Logout and Invalidate always clear the local session.
//   - Every 401 seen by the client invalidates the session; the service
//     subscribes itself on construction.
type SessionService struct {
	client client.Client
	store  CredentialStore
	log    logging.Logger

	initOnce sync.Once
	initErr  error
	ready    chan struct{}
	unsub    func()

	mu          sync.RWMutex
	credential  models.Credential
	user        *models.User
	initialized bool
	busy        int
}

// NewSessionService binds a session to the backend client and the store,
// and subscribes Invalidate to the client's 401 events.
func NewSessionService(c client.Client, store CredentialStore, log logging.Logger) *SessionService {
	if log == nil {
		log = logging.Nop()
	}
	s := &SessionService{
		client: c,
		store:  store,
		log:    log,
		ready:  make(chan struct{}),
	}
	s.unsub = c.OnUnauthorized(s.Invalidate)
	return s
}

// Close unsubscribes from the client's 401 events.
func (s *SessionService) Close() {
	if s.unsub != nil {
		s.unsub()
	}
}

// Ready is closed once Initialize has finished.
func (s *SessionService) Ready() <-chan struct{} {
	return s.ready
}

// Snapshot returns a copy of the current session.
func (s *SessionService) Snapshot() models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := models.Session{
		Credential: s.credential,
		Loading:    !s.initialized || s.busy > 0,
	}
	if s.user != nil {
		u := *s.user
		out.User = &u
	}
	return out
}

// Initialize resumes the session from the store. A stored credential is
// checked by fetching the user: a 401 clears everything, any other failure
// keeps the credential and falls back to the cached user. Only the first
// call does work; later calls return its result.
func (s *SessionService) Initialize(ctx context.Context) error {
	s.initOnce.Do(func() {
		defer func() {
			s.mu.Lock()
			s.initialized = true
			s.mu.Unlock()
			close(s.ready)
		}()
		s.initErr = s.resume(ctx)
	})
	return s.initErr
}

func (s *SessionService) resume(ctx context.Context) error {
	token, err := s.store.Token(ctx)
	if err != nil {
		return fmt.Errorf("read stored credential: %w", err)
	}
	if token == "" {
		s.log.Debug(ctx, "no stored credential")
		return nil
	}

	cached, err := s.store.User(ctx)
	if err != nil {
		s.log.Warn(ctx, "cached user unreadable", "err", err)
		cached = nil
	}

	s.mu.Lock()
	s.credential = models.Credential(token)
	s.user = cached
	s.mu.Unlock()

	u, err := s.client.GetUser(ctx)
	switch {
	case err == nil:
		return s.adoptUser(ctx, models.Credential(token), u)
	case errors.Is(err, client.ErrUnauthorized):
		s.log.Info(ctx, "stored credential rejected")
		return s.clearLocal(ctx)
	default:
		s.log.Warn(ctx, "user refresh failed, using cached session", "err", err, "cached", cached != nil)
		return nil
	}
}

// adoptUser stores u if the session still holds token.
func (s *SessionService) adoptUser(ctx context.Context, token models.Credential, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.credential != token {
		return nil
	}
	if err := s.store.SetUser(ctx, u); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	s.user = u
	return nil
}

func (s *SessionService) begin() func() {
	s.mu.Lock()
	s.busy++
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.busy--
		s.mu.Unlock()
	}
}

// Login exchanges email and password for a credential and loads the user.
// The backend response is returned as is. An unverified address is
// recorded as the pending email before the error is returned.
func (s *SessionService) Login(ctx context.Context, email, password string) (*client.LoginResponse, error) {
	if err := validateLogin(email, password); err != nil {
		return nil, err
	}

	defer s.begin()()

	resp, err := s.client.Login(ctx, email, password)
	if err != nil {
		var ene *client.EmailNotVerifiedError
		if errors.As(err, &ene) {
			pending := ene.Email
			if pending == "" {
				pending = email
			}
			if serr := s.store.SetPendingEmail(ctx, pending); serr != nil {
				s.log.Warn(ctx, "save pending email", "err", serr)
			}
		}
		return nil, err
	}

	if err := s.establish(ctx, resp.Key); err != nil {
		return resp, err
	}
	s.log.Info(ctx, "logged in", "email", email)
	return resp, nil
}

// Register creates the account. No session is established; the address
// becomes the pending email for the verification step.
func (s *SessionService) Register(ctx context.Context, name, email, password string) error {
	if err := validateRegister(name, email, password); err != nil {
		return err
	}
	if err := s.client.Register(ctx, name, email, password); err != nil {
		return err
	}
	if err := s.store.SetPendingEmail(ctx, email); err != nil {
		return fmt.Errorf("save pending email: %w", err)
	}
	return nil
}

// SetAuthToken adopts a credential issued outside of Login, e.g. by the
// verify-email call.
func (s *SessionService) SetAuthToken(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("empty credential")
	}
	defer s.begin()()
	return s.establish(ctx, token)
}

// establish persists token, then fetches the user with it.
func (s *SessionService) establish(ctx context.Context, token string) error {
	cred := models.Credential(token)

	s.mu.Lock()
	if err := s.store.SetToken(ctx, token); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("save credential: %w", err)
	}
	s.credential = cred
	s.user = nil
	s.mu.Unlock()

	u, err := s.client.GetUser(ctx)
	if err != nil {
		return fmt.Errorf("fetch user: %w", err)
	}
	return s.adoptUser(ctx, cred, u)
}

// RefreshUser re-fetches the user, leaving the credential alone.
func (s *SessionService) RefreshUser(ctx context.Context) error {
	s.mu.RLock()
	cred := s.credential
	s.mu.RUnlock()
	if cred == "" {
		return client.ErrUnauthorized
	}

	u, err := s.client.GetUser(ctx)
	if err != nil {
		return fmt.Errorf("refresh user: %w", err)
	}
	return s.adoptUser(ctx, cred, u)
}

// VerifyEmail submits a verification code. On success the pending email
// is dropped; adopting a returned key is up to the caller.
func (s *SessionService) VerifyEmail(ctx context.Context, email, code string) (*client.VerifyEmailResponse, error) {
	defer s.begin()()

	resp, err := s.client.VerifyEmail(ctx, email, code)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetPendingEmail(ctx, ""); err != nil {
		s.log.Warn(ctx, "drop pending email", "err", err)
	}
	return resp, nil
}

func (s *SessionService) ResendVerification(ctx context.Context, email string) error {
	return s.client.ResendVerification(ctx, email)
}

// PendingEmail is the address left by registration or a refused login.
func (s *SessionService) PendingEmail(ctx context.Context) (string, error) {
	return s.store.PendingEmail(ctx)
}

// CompleteOnboarding saves the company, marks onboarding complete and
// reloads the user so the new flag is seen. Each step runs only if the
// previous one succeeded.
func (s *SessionService) CompleteOnboarding(ctx context.Context, upd models.CompanyUpdate) error {
	if err := validateCompany(upd); err != nil {
		return err
	}
	if upd.Name != "" || upd.LogoPath != "" {
		if _, err := s.client.UpdateMyCompany(ctx, upd); err != nil {
			return fmt.Errorf("update company: %w", err)
		}
	}
	if err := s.client.CompleteOnboarding(ctx); err != nil {
		return fmt.Errorf("complete onboarding: %w", err)
	}
	return s.RefreshUser(ctx)
}

func (s *SessionService) MyCompany(ctx context.Context) (*models.Company, error) {
	return s.client.GetMyCompany(ctx)
}

func (s *SessionService) RequestPasswordReset(ctx context.Context, email string) error {
	if err := validateEmail(email); err != nil {
		return err
	}
	return s.client.RequestPasswordReset(ctx, email)
}

func (s *SessionService) ConfirmPasswordReset(ctx context.Context, uid, token, newPassword string) error {
	if err := validateResetConfirm(uid, token, newPassword); err != nil {
		return err
	}
	return s.client.ConfirmPasswordReset(ctx, uid, token, newPassword)
}

// Ping reports whether the backend is reachable.
func (s *SessionService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Logout tells the backend, then clears the local session whatever the
// backend said. The backend error, if any, is returned after cleanup.
func (s *SessionService) Logout(ctx context.Context) (err error) {
	defer func() {
		if cerr := s.clearLocal(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if !s.Snapshot().Authenticated() {
		return nil
	}
	if err := s.client.Logout(ctx); err != nil {
		s.log.Warn(ctx, "backend logout failed", "err", err)
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Invalidate drops the session. It is the 401 handler and safe to call
// any number of times, concurrently.
func (s *SessionService) Invalidate(ctx context.Context) {
	if s.Snapshot().Authenticated() {
		s.log.Info(ctx, "session invalidated")
	}
	if err := s.clearLocal(ctx); err != nil {
		s.log.Error(ctx, "clear session", "err", err)
	}
}

func (s *SessionService) clearLocal(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.credential = ""
	s.user = nil
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear credential store: %w", err)
	}
	return nil
}
