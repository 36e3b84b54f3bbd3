package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dmitrijs2005/ticketdesk/internal/client/client"
	"github.com/dmitrijs2005/ticketdesk/internal/client/guard"
	"github.com/dmitrijs2005/ticketdesk/internal/client/models"
	"github.com/dmitrijs2005/ticketdesk/internal/client/repositories"
	"github.com/dmitrijs2005/ticketdesk/internal/client/repositories/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- fake client ----

// fakeClient implements client.Client. A call whose configured error is
// client.ErrUnauthorized notifies subscribers first, like the transport.
type fakeClient struct {
	mu       sync.Mutex
	handlers []client.UnauthorizedHandler
	calls    []string

	LoginRet    *client.LoginResponse
	LoginErr    error
	RegisterErr error
	LogoutErr   error
	UserRet     *models.User
	UserErr     error
	VerifyRet   *client.VerifyEmailResponse
	VerifyErr   error
	ResendErr   error
	ResetErr    error
	ConfirmErr  error
	CompleteErr error
	CompanyRet  *models.Company
	CompanyErr  error
	UpdateErr   error
	PingErr     error

	// OnComplete runs inside CompleteOnboarding (server-side flag flip).
	OnComplete func()

	// tokenAtGetUser records what the store held when GetUser ran.
	tokens         client.TokenSource
	tokenAtGetUser []string

	LastUpdate models.CompanyUpdate
}

func (f *fakeClient) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeClient) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeClient) result(ctx context.Context, err error) error {
	if errors.Is(err, client.ErrUnauthorized) {
		f.mu.Lock()
		hs := append([]client.UnauthorizedHandler(nil), f.handlers...)
		f.mu.Unlock()
		for _, h := range hs {
			h(ctx)
		}
	}
	return err
}

func (f *fakeClient) OnUnauthorized(h client.UnauthorizedHandler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, h)
	i := len(f.handlers) - 1
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.handlers[i] = func(context.Context) {}
	}
}

func (f *fakeClient) Login(ctx context.Context, email, password string) (*client.LoginResponse, error) {
	f.record("login")
	if err := f.result(ctx, f.LoginErr); err != nil {
		return nil, err
	}
	return f.LoginRet, nil
}

func (f *fakeClient) Register(ctx context.Context, name, email, password string) error {
	f.record("register")
	return f.result(ctx, f.RegisterErr)
}

func (f *fakeClient) Logout(ctx context.Context) error {
	f.record("logout")
	return f.result(ctx, f.LogoutErr)
}

func (f *fakeClient) GetUser(ctx context.Context) (*models.User, error) {
	f.record("get_user")
	if f.tokens != nil {
		tok, _ := f.tokens.Token(ctx)
		f.tokenAtGetUser = append(f.tokenAtGetUser, tok)
	}
	if err := f.result(ctx, f.UserErr); err != nil {
		return nil, err
	}
	u := *f.UserRet
	return &u, nil
}

func (f *fakeClient) VerifyEmail(ctx context.Context, email, code string) (*client.VerifyEmailResponse, error) {
	f.record("verify_email")
	if err := f.result(ctx, f.VerifyErr); err != nil {
		return nil, err
	}
	return f.VerifyRet, nil
}

func (f *fakeClient) ResendVerification(ctx context.Context, email string) error {
	f.record("resend")
	return f.result(ctx, f.ResendErr)
}

func (f *fakeClient) RequestPasswordReset(ctx context.Context, email string) error {
	f.record("password_reset")
	return f.result(ctx, f.ResetErr)
}

func (f *fakeClient) ConfirmPasswordReset(ctx context.Context, uid, token, newPassword string) error {
	f.record("password_reset_confirm")
	return f.result(ctx, f.ConfirmErr)
}

func (f *fakeClient) CompleteOnboarding(ctx context.Context) error {
	f.record("complete_onboarding")
	if err := f.result(ctx, f.CompleteErr); err != nil {
		return err
	}
	if f.OnComplete != nil {
		f.OnComplete()
	}
	return nil
}

func (f *fakeClient) GetMyCompany(ctx context.Context) (*models.Company, error) {
	f.record("get_company")
	return f.CompanyRet, f.result(ctx, f.CompanyErr)
}

func (f *fakeClient) UpdateMyCompany(ctx context.Context, upd models.CompanyUpdate) (*models.Company, error) {
	f.record("update_company")
	f.LastUpdate = upd
	if err := f.result(ctx, f.UpdateErr); err != nil {
		return nil, err
	}
	return &models.Company{ID: 1, Name: upd.Name}, nil
}

func (f *fakeClient) Ping(ctx context.Context) error {
	f.record("ping")
	return f.result(ctx, f.PingErr)
}

// ---- helpers ----

func newStore(t *testing.T) *credentials.Store {
	t.Helper()
	db, err := repositories.InitDatabase(context.Background(), filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return credentials.NewStore(db)
}

func newService(t *testing.T, fc *fakeClient) (*SessionService, *credentials.Store) {
	t.Helper()
	store := newStore(t)
	fc.tokens = store
	s := NewSessionService(fc, store, nil)
	t.Cleanup(s.Close)
	return s, store
}

func storedToken(t *testing.T, store *credentials.Store) string {
	t.Helper()
	tok, err := store.Token(context.Background())
	require.NoError(t, err)
	return tok
}

func unauthorized() error {
	return fmt.Errorf("GET auth/user/: %w", client.ErrUnauthorized)
}

var netErr = &client.NetworkError{Op: "GET auth/user/", Err: errors.New("connection refused")}

func decide(s *SessionService, path string) guard.Decision {
	return guard.Decide(guard.Match(path).Class, guard.StateOf(s.Snapshot()))
}

// ---- Initialize ----

func TestInitialize_LoadingUntilReady(t *testing.T) {
	s, _ := newService(t, &fakeClient{})

	assert.True(t, s.Snapshot().Loading)
	select {
	case <-s.Ready():
		t.Fatal("ready before Initialize")
	default:
	}

	require.NoError(t, s.Initialize(context.Background()))
	<-s.Ready()
	assert.False(t, s.Snapshot().Loading)
}

func TestInitialize_NoStoredCredential(t *testing.T) {
	fc := &fakeClient{}
	s, _ := newService(t, fc)

	require.NoError(t, s.Initialize(context.Background()))
	assert.Empty(t, fc.Calls())
	assert.Equal(t, guard.Decision{Outcome: guard.Redirect, Target: guard.PathLogin}, decide(s, "/dashboard"))
}

func TestInitialize_RunsOnce(t *testing.T) {
	fc := &fakeClient{UserRet: &models.User{ID: 1}}
	s, store := newService(t, fc)
	require.NoError(t, store.SetToken(context.Background(), "tok"))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Initialize(context.Background())
		}()
	}
	wg.Wait()
	assert.Equal(t, []string{"get_user"}, fc.Calls())
}

func TestInitialize_StoredCredentialNotOnboarded(t *testing.T) {
	fc := &fakeClient{UserRet: &models.User{ID: 7, Email: "a@example.org", IsOnboarded: false}}
	s, store := newService(t, fc)
	require.NoError(t, store.SetToken(context.Background(), "tok"))

	require.NoError(t, s.Initialize(context.Background()))

	snap := s.Snapshot()
	assert.Equal(t, models.Credential("tok"), snap.Credential)
	assert.Equal(t, int64(7), snap.User.ID)

	assert.Equal(t, guard.Decision{Outcome: guard.Redirect, Target: guard.PathOnboarding}, decide(s, "/dashboard"))
	assert.Equal(t, guard.Decision{Outcome: guard.Render}, decide(s, "/onboarding"))

	cached, err := store.User(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snap.User, cached)
}

func TestInitialize_RejectedCredentialIsCleared(t *testing.T) {
	fc := &fakeClient{UserErr: unauthorized()}
	s, store := newService(t, fc)
	ctx := context.Background()
	require.NoError(t, store.SetToken(ctx, "stale"))
	require.NoError(t, store.SetUser(ctx, &models.User{ID: 1}))
	require.NoError(t, store.SetPendingEmail(ctx, "a@example.org"))

	require.NoError(t, s.Initialize(ctx))

	snap := s.Snapshot()
	assert.False(t, snap.Authenticated())
	assert.Nil(t, snap.User)
	assert.False(t, snap.Loading)
	assert.Empty(t, storedToken(t, store))
	pending, err := store.PendingEmail(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestInitialize_NetworkFailureKeepsCachedSession(t *testing.T) {
	fc := &fakeClient{UserErr: netErr}
	s, store := newService(t, fc)
	ctx := context.Background()
	require.NoError(t, store.SetToken(ctx, "tok"))
	require.NoError(t, store.SetUser(ctx, &models.User{ID: 2, IsOnboarded: true}))

	require.NoError(t, s.Initialize(ctx))

	snap := s.Snapshot()
	assert.Equal(t, models.Credential("tok"), snap.Credential)
	require.NotNil(t, snap.User)
	assert.True(t, snap.User.IsOnboarded)
	assert.False(t, snap.Loading)
	assert.Equal(t, "tok", storedToken(t, store))
}

// ---- Login / Register ----

func TestLogin_StoresCredentialBeforeFetchingUser(t *testing.T) {
	fc := &fakeClient{
		LoginRet: &client.LoginResponse{Key: "tok123"},
		UserRet:  &models.User{ID: 3, Email: "a@example.org"},
	}
	s, store := newService(t, fc)
	require.NoError(t, s.Initialize(context.Background()))

	resp, err := s.Login(context.Background(), "a@example.org", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok123", resp.Key)

	assert.Equal(t, []string{"login", "get_user"}, fc.Calls())
	assert.Equal(t, []string{"tok123"}, fc.tokenAtGetUser)
	assert.Equal(t, "tok123", storedToken(t, store))

	snap := s.Snapshot()
	assert.Equal(t, models.Credential("tok123"), snap.Credential)
	assert.Equal(t, int64(3), snap.User.ID)
	assert.False(t, snap.Loading)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	fc := &fakeClient{LoginErr: &client.AuthError{Detail: "Unable to log in with provided credentials."}}
	s, store := newService(t, fc)
	require.NoError(t, s.Initialize(context.Background()))

	_, err := s.Login(context.Background(), "a@example.org", "bad")
	require.ErrorIs(t, err, client.ErrInvalidCredentials)
	assert.Equal(t, []string{"login"}, fc.Calls())
	assert.Empty(t, storedToken(t, store))
	assert.False(t, s.Snapshot().Loading)
}

func TestLogin_EmailNotVerifiedRecordsPendingEmail(t *testing.T) {
	fc := &fakeClient{LoginErr: &client.EmailNotVerifiedError{Email: "a@example.org"}}
	s, _ := newService(t, fc)

	_, err := s.Login(context.Background(), "A@example.org", "secret")
	require.ErrorIs(t, err, client.ErrEmailNotVerified)

	pending, err := s.PendingEmail(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a@example.org", pending)
}

func TestLogin_ClientSideValidation(t *testing.T) {
	fc := &fakeClient{}
	s, _ := newService(t, fc)

	_, err := s.Login(context.Background(), "not-an-email", "")
	require.ErrorIs(t, err, client.ErrValidation)

	var ve *client.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "email")
	assert.Contains(t, ve.Fields, "password")
	assert.Empty(t, fc.Calls())
}

func TestRegister_NoSessionAndPendingEmail(t *testing.T) {
	fc := &fakeClient{}
	s, store := newService(t, fc)
	require.NoError(t, s.Initialize(context.Background()))

	require.NoError(t, s.Register(context.Background(), "Ann", "a@example.org", "secret123"))

	assert.False(t, s.Snapshot().Authenticated())
	assert.Empty(t, storedToken(t, store))
	pending, err := store.PendingEmail(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a@example.org", pending)
}

func TestRegister_FieldErrorsPropagate(t *testing.T) {
	fc := &fakeClient{RegisterErr: &client.ValidationError{
		Status: 400,
		Fields: map[string][]string{"email": {"A user with this email already exists."}},
	}}
	s, store := newService(t, fc)

	err := s.Register(context.Background(), "Ann", "a@example.org", "secret123")
	var ve *client.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"A user with this email already exists."}, ve.Fields["email"])

	pending, err := store.PendingEmail(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRegister_MissingName(t *testing.T) {
	fc := &fakeClient{}
	s, _ := newService(t, fc)

	err := s.Register(context.Background(), "", "a@example.org", "secret123")
	var ve *client.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"name"}, keysOf(ve.Fields))
	assert.Empty(t, fc.Calls())
}

func keysOf(m map[string][]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// ---- SetAuthToken / verification ----

func TestSetAuthToken_VerifiedUserGoesToOnboarding(t *testing.T) {
	fc := &fakeClient{
		VerifyRet: &client.VerifyEmailResponse{Detail: "Email verified successfully.", Key: "tok123"},
		UserRet:   &models.User{ID: 5, Email: "a@example.org"},
	}
	s, store := newService(t, fc)
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))
	require.NoError(t, store.SetPendingEmail(ctx, "a@example.org"))

	resp, err := s.VerifyEmail(ctx, "a@example.org", "123456")
	require.NoError(t, err)
	require.NoError(t, s.SetAuthToken(ctx, resp.Key))

	assert.Equal(t, "tok123", storedToken(t, store))
	assert.Equal(t, []string{"verify_email", "get_user"}, fc.Calls())
	assert.Equal(t, guard.Decision{Outcome: guard.Redirect, Target: guard.PathOnboarding}, decide(s, "/verify-email"))

	pending, err := store.PendingEmail(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSetAuthToken_Empty(t *testing.T) {
	s, _ := newService(t, &fakeClient{})
	require.Error(t, s.SetAuthToken(context.Background(), ""))
}

func TestVerifyEmail_FailureKeepsPendingEmail(t *testing.T) {
	fc := &fakeClient{VerifyErr: &client.ValidationError{Status: 400, Detail: "Invalid or expired verification code."}}
	s, store := newService(t, fc)
	ctx := context.Background()
	require.NoError(t, store.SetPendingEmail(ctx, "a@example.org"))

	_, err := s.VerifyEmail(ctx, "a@example.org", "000000")
	require.ErrorIs(t, err, client.ErrValidation)

	pending, err := store.PendingEmail(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a@example.org", pending)
}

// ---- onboarding ----

func TestCompleteOnboarding_OrderAndRefresh(t *testing.T) {
	fc := &fakeClient{
		LoginRet: &client.LoginResponse{Key: "tok"},
		UserRet:  &models.User{ID: 1},
	}
	fc.OnComplete = func() { fc.UserRet = &models.User{ID: 1, IsOnboarded: true} }
	s, _ := newService(t, fc)
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))
	_, err := s.Login(ctx, "a@example.org", "secret")
	require.NoError(t, err)
	assert.Equal(t, guard.Decision{Outcome: guard.Render}, decide(s, "/onboarding"))

	require.NoError(t, s.CompleteOnboarding(ctx, models.CompanyUpdate{Name: "Acme"}))

	assert.Equal(t, []string{"login", "get_user", "update_company", "complete_onboarding", "get_user"}, fc.Calls())
	assert.Equal(t, "Acme", fc.LastUpdate.Name)
	assert.True(t, s.Snapshot().Onboarded())
	assert.Equal(t, guard.Decision{Outcome: guard.Redirect, Target: guard.PathDashboard}, decide(s, "/onboarding"))
}

func TestCompleteOnboarding_CompanyFailureStops(t *testing.T) {
	fc := &fakeClient{
		LoginRet:  &client.LoginResponse{Key: "tok"},
		UserRet:   &models.User{ID: 1},
		UpdateErr: &client.ValidationError{Status: 400, Fields: map[string][]string{"logo": {"Upload a valid image."}}},
	}
	s, _ := newService(t, fc)
	ctx := context.Background()
	_, err := s.Login(ctx, "a@example.org", "secret")
	require.NoError(t, err)

	err = s.CompleteOnboarding(ctx, models.CompanyUpdate{Name: "Acme", LogoPath: "/tmp/logo.txt"})
	require.ErrorIs(t, err, client.ErrValidation)
	assert.NotContains(t, fc.Calls(), "complete_onboarding")
	assert.False(t, s.Snapshot().Onboarded())
}

func TestCompleteOnboarding_WithoutCompanyChanges(t *testing.T) {
	fc := &fakeClient{LoginRet: &client.LoginResponse{Key: "tok"}, UserRet: &models.User{ID: 1}}
	s, _ := newService(t, fc)
	ctx := context.Background()
	_, err := s.Login(ctx, "a@example.org", "secret")
	require.NoError(t, err)

	require.NoError(t, s.CompleteOnboarding(ctx, models.CompanyUpdate{}))
	assert.NotContains(t, fc.Calls(), "update_company")
}

func TestRefreshUser_RequiresCredential(t *testing.T) {
	fc := &fakeClient{}
	s, _ := newService(t, fc)
	require.ErrorIs(t, s.RefreshUser(context.Background()), client.ErrUnauthorized)
	assert.Empty(t, fc.Calls())
}

// ---- logout / invalidation ----

func TestLogout_ClearsEvenWhenBackendFails(t *testing.T) {
	fc := &fakeClient{
		LoginRet:  &client.LoginResponse{Key: "tok"},
		UserRet:   &models.User{ID: 1, IsOnboarded: true},
		LogoutErr: netErr,
	}
	s, store := newService(t, fc)
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))
	_, err := s.Login(ctx, "a@example.org", "secret")
	require.NoError(t, err)
	require.Equal(t, "tok", storedToken(t, store))

	err = s.Logout(ctx)
	require.ErrorIs(t, err, client.ErrNetwork)

	assert.Empty(t, storedToken(t, store))
	assert.False(t, s.Snapshot().Authenticated())
	assert.Nil(t, s.Snapshot().User)
	assert.Equal(t, guard.Decision{Outcome: guard.Redirect, Target: guard.PathLogin}, decide(s, "/dashboard"))
}

func TestLogout_Success(t *testing.T) {
	fc := &fakeClient{LoginRet: &client.LoginResponse{Key: "tok"}, UserRet: &models.User{ID: 1}}
	s, store := newService(t, fc)
	ctx := context.Background()
	_, err := s.Login(ctx, "a@example.org", "secret")
	require.NoError(t, err)

	require.NoError(t, s.Logout(ctx))
	assert.Empty(t, storedToken(t, store))
	assert.Contains(t, fc.Calls(), "logout")
}

func TestLogout_AnonymousSkipsBackend(t *testing.T) {
	fc := &fakeClient{}
	s, _ := newService(t, fc)
	require.NoError(t, s.Logout(context.Background()))
	assert.Empty(t, fc.Calls())
}

func TestUnauthorizedResponseClearsSession(t *testing.T) {
	fc := &fakeClient{LoginRet: &client.LoginResponse{Key: "tok"}, UserRet: &models.User{ID: 1, IsOnboarded: true}}
	s, store := newService(t, fc)
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))
	_, err := s.Login(ctx, "a@example.org", "secret")
	require.NoError(t, err)

	fc.CompanyErr = fmt.Errorf("GET companies/my/: %w", client.ErrUnauthorized)
	_, err = s.MyCompany(ctx)
	require.ErrorIs(t, err, client.ErrUnauthorized)

	assert.False(t, s.Snapshot().Authenticated())
	assert.Empty(t, storedToken(t, store))
}

func TestInvalidate_IdempotentAndConcurrent(t *testing.T) {
	fc := &fakeClient{LoginRet: &client.LoginResponse{Key: "tok"}, UserRet: &models.User{ID: 1}}
	s, store := newService(t, fc)
	ctx := context.Background()
	_, err := s.Login(ctx, "a@example.org", "secret")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Invalidate(ctx)
		}()
	}
	wg.Wait()
	s.Invalidate(ctx)

	assert.False(t, s.Snapshot().Authenticated())
	assert.Nil(t, s.Snapshot().User)
	assert.Empty(t, storedToken(t, store))
}

func TestClose_Unsubscribes(t *testing.T) {
	fc := &fakeClient{LoginRet: &client.LoginResponse{Key: "tok"}, UserRet: &models.User{ID: 1}}
	s, _ := newService(t, fc)
	ctx := context.Background()
	_, err := s.Login(ctx, "a@example.org", "secret")
	require.NoError(t, err)

	s.Close()
	fc.PingErr = unauthorized()
	require.Error(t, s.Ping(ctx))
	assert.True(t, s.Snapshot().Authenticated())
}

// ---- password reset ----

func TestPasswordReset(t *testing.T) {
	fc := &fakeClient{}
	s, _ := newService(t, fc)
	ctx := context.Background()

	require.NoError(t, s.RequestPasswordReset(ctx, "a@example.org"))
	require.ErrorIs(t, s.RequestPasswordReset(ctx, "nope"), client.ErrValidation)

	err := s.ConfirmPasswordReset(ctx, "MQ", "abc", "short")
	var ve *client.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"new_password"}, keysOf(ve.Fields))

	require.NoError(t, s.ConfirmPasswordReset(ctx, "MQ", "abc", "longenough"))
	assert.Equal(t, []string{"password_reset", "password_reset_confirm"}, fc.Calls())
}
