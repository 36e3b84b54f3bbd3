package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/ticketdesk/internal/client/models"
	"github.com/dmitrijs2005/ticketdesk/internal/logging"
	"github.com/sony/gobreaker"
)

// Endpoint paths, relative to the API prefix.
const (
	pathLogin                = "auth/login/"
	pathRegistration         = "auth/registration/"
	pathLogout               = "auth/logout/"
	pathUser                 = "auth/user/"
	pathVerifyEmail          = "auth/verify-email/"
	pathResendVerification   = "auth/resend-verification/"
	pathPasswordReset        = "auth/password/reset/"
	pathPasswordResetConfirm = "auth/password/reset/confirm/"
	pathCompleteOnboarding   = "auth/complete-onboarding/"
	pathMyCompany            = "companies/my/"
	pathHealth               = "health/"
)

// BreakerSettings tunes the circuit breaker in front of the backend.
// MaxFailures == 0 disables it.
type BreakerSettings struct {
	MaxFailures uint32
	Interval    time.Duration
	Timeout     time.Duration
}

type options struct {
	timeout   time.Duration
	scheme    string
	breaker   BreakerSettings
	transport http.RoundTripper
	logger    logging.Logger
}

// Option customizes NewHTTPClient.
type Option func(*options)

// WithTimeout bounds every call. Defaults to 10s.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithAuthScheme sets the Authorization scheme. Defaults to "Token".
func WithAuthScheme(s string) Option {
	return func(o *options) { o.scheme = s }
}

// WithBreaker enables the circuit breaker.
func WithBreaker(s BreakerSettings) Option {
	return func(o *options) { o.breaker = s }
}

// WithTransport replaces the base RoundTripper (tests, proxies).
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// HTTPClient talks to the identity backend over HTTP/JSON.
type HTTPClient struct {
	baseURL *url.URL
	http    *http.Client
	events  *notifier
	log     logging.Logger
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient builds a client for the API rooted at endpoint
// (e.g. "http://127.0.0.1:8000/api/"). tokens is read on every request.
func NewHTTPClient(endpoint string, tokens TokenSource, opts ...Option) (*HTTPClient, error) {
	o := options{
		timeout:   10 * time.Second,
		scheme:    "Token",
		transport: http.DefaultTransport,
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "http://" + endpoint
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}

	events := &notifier{}

	rt := o.transport
	if o.breaker.MaxFailures > 0 {
		maxFailures := o.breaker.MaxFailures
		log := o.logger
		rt = &breakerTransport{
			next: rt,
			cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:        "identity-backend",
				MaxRequests: 1,
				Interval:    o.breaker.Interval,
				Timeout:     o.breaker.Timeout,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= maxFailures
				},
				OnStateChange: func(name string, from, to gobreaker.State) {
					log.Warn(context.Background(), "circuit breaker state", "name", name, "from", from.String(), "to", to.String())
				},
			}),
		}
	}
	rt = &authTransport{next: rt, tokens: tokens, scheme: o.scheme}
	rt = &unauthorizedTransport{next: rt, events: events}

	return &HTTPClient{
		baseURL: base,
		http:    &http.Client{Transport: rt, Timeout: o.timeout},
		events:  events,
		log:     o.logger,
	}, nil
}

// BaseURL returns the API root the client was built with.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL.String()
}

func (c *HTTPClient) OnUnauthorized(h UnauthorizedHandler) func() {
	return c.events.subscribe(h)
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var out LoginResponse
	err := c.postJSON(ctx, pathLogin, loginRequest{Email: email, Password: password}, &out)
	if err == nil {
		return &out, nil
	}

	var se *statusError
	if !errors.As(err, &se) {
		return nil, err
	}

	switch se.status {
	case http.StatusForbidden:
		var rej loginRejection
		if json.Unmarshal(se.body, &rej) == nil && rej.EmailNotVerified {
			return nil, &EmailNotVerifiedError{Email: rej.Email, Detail: rej.Detail}
		}
	case http.StatusBadRequest:
		if ve := decodeValidation(se.status, se.body); ve.OnlyNonField() {
			return nil, &AuthError{Detail: ve.Message()}
		}
	}
	return nil, se.toError()
}

func (c *HTTPClient) Register(ctx context.Context, name, email, password string) error {
	return c.postJSON(ctx, pathRegistration, registerRequest{Name: name, Email: email, Password1: password}, nil)
}

func (c *HTTPClient) Logout(ctx context.Context) error {
	return c.postJSON(ctx, pathLogout, nil, nil)
}

func (c *HTTPClient) GetUser(ctx context.Context) (*models.User, error) {
	var u models.User
	if err := c.do(ctx, http.MethodGet, pathUser, nil, "", &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *HTTPClient) VerifyEmail(ctx context.Context, email, code string) (*VerifyEmailResponse, error) {
	var out VerifyEmailResponse
	if err := c.postJSON(ctx, pathVerifyEmail, verifyEmailRequest{Email: email, Code: code}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ResendVerification(ctx context.Context, email string) error {
	return c.postJSON(ctx, pathResendVerification, emailRequest{Email: email}, nil)
}

func (c *HTTPClient) RequestPasswordReset(ctx context.Context, email string) error {
	return c.postJSON(ctx, pathPasswordReset, emailRequest{Email: email}, nil)
}

func (c *HTTPClient) ConfirmPasswordReset(ctx context.Context, uid, token, newPassword string) error {
	return c.postJSON(ctx, pathPasswordResetConfirm, passwordResetConfirmRequest{UID: uid, Token: token, NewPassword: newPassword}, nil)
}

func (c *HTTPClient) CompleteOnboarding(ctx context.Context) error {
	return c.postJSON(ctx, pathCompleteOnboarding, nil, nil)
}

func (c *HTTPClient) GetMyCompany(ctx context.Context) (*models.Company, error) {
	var out models.Company
	if err := c.do(ctx, http.MethodGet, pathMyCompany, nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateMyCompany sends a multipart PATCH with the name and, when
// upd.LogoPath is set, the logo file.
func (c *HTTPClient) UpdateMyCompany(ctx context.Context, upd models.CompanyUpdate) (*models.Company, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if upd.Name != "" {
		if err := mw.WriteField("name", upd.Name); err != nil {
			return nil, err
		}
	}
	if upd.LogoPath != "" {
		f, err := os.Open(upd.LogoPath)
		if err != nil {
			return nil, fmt.Errorf("open logo: %w", err)
		}
		defer f.Close()

		part, err := mw.CreateFormFile("logo", filepath.Base(upd.LogoPath))
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(part, f); err != nil {
			return nil, fmt.Errorf("read logo: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out models.Company
	if err := c.do(ctx, http.MethodPatch, pathMyCompany, &buf, mw.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ping checks backend liveness.
func (c *HTTPClient) Ping(ctx context.Context) error {
	var out healthResponse
	if err := c.do(ctx, http.MethodGet, pathHealth, nil, "", &out); err != nil {
		return err
	}
	if out.Status != "ok" {
		return &NetworkError{Op: "GET " + pathHealth, Err: fmt.Errorf("status %q", out.Status)}
	}
	return nil
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	return c.do(ctx, http.MethodPost, path, body, contentType, out)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	op := method + " " + path

	u, err := c.baseURL.Parse(path)
	if err != nil {
		return fmt.Errorf("build url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn(ctx, "request failed", "op", op, "err", err)
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.log.Debug(ctx, "request", "op", op, "status", resp.StatusCode, "elapsed", time.Since(start))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return &statusError{op: op, status: resp.StatusCode, body: data}
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

// statusError is the raw failed response; toError classifies it.
type statusError struct {
	op     string
	status int
	body   []byte
}

func (e *statusError) Error() string {
	return e.toError().Error()
}

func (e *statusError) Unwrap() error {
	return e.toError()
}

func (e *statusError) toError() error {
	switch {
	case e.status == http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", e.op, ErrUnauthorized)
	case e.status >= http.StatusInternalServerError:
		return &NetworkError{Op: e.op, Err: fmt.Errorf("status %d", e.status)}
	default:
		return decodeValidation(e.status, e.body)
	}
}

// decodeValidation reads the backend error shapes: {"detail": "..."} and
// {"field": ["msg", ...]} / {"field": "msg"}.
func decodeValidation(status int, body []byte) *ValidationError {
	ve := &ValidationError{Status: status, Fields: map[string][]string{}}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return ve
	}

	for k, v := range raw {
		var one string
		if json.Unmarshal(v, &one) == nil {
			if k == "detail" {
				ve.Detail = one
			} else {
				ve.Fields[k] = []string{one}
			}
			continue
		}
		var many []string
		if json.Unmarshal(v, &many) == nil && len(many) > 0 {
			ve.Fields[k] = many
		}
	}
	return ve
}
