// Package verification drives the email-code challenge: code entry and
// submission, resend with a cooldown, and the handoff of an issued
// credential to the session.
package verification

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/ticketdesk/internal/client/client"
	"github.com/dmitrijs2005/ticketdesk/internal/logging"
	validation "github.com/go-ozzo/ozzo-validation"
)

// CodeLength is the number of digits in a verification code.
const CodeLength = 6

// DefaultCooldown is the wait between two resend requests.
const DefaultCooldown = 60 * time.Second

var (
	// ErrNoEmail: neither a query parameter nor a pending marker names the
	// address to verify. Callers send the user to registration.
	ErrNoEmail = errors.New("no email to verify")

	// ErrInFlight: a submit or resend is already running; the call was dropped.
	ErrInFlight = errors.New("verification request in flight")

	// ErrClosed: the controller was closed.
	ErrClosed = errors.New("verification closed")
)

var codePattern = regexp.MustCompile(`^[0-9]{6}$`)

// Status of the challenge.
type Status int

const (
	Idle Status = iota
	Submitting
	Error
	Success
	// SuccessNoCredential: the address is verified but no credential was
	// issued. The user has to log in explicitly.
	SuccessNoCredential
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case Error:
		return "error"
	case Success:
		return "success"
	case SuccessNoCredential:
		return "success-no-credential"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Session is what the controller needs from the session service.
type Session interface {
	VerifyEmail(ctx context.Context, email, code string) (*client.VerifyEmailResponse, error)
	ResendVerification(ctx context.Context, email string) error
	SetAuthToken(ctx context.Context, token string) error
}

// State is a copy of the challenge for rendering.
type State struct {
	Email     string
	Code      string
	Status    Status
	Message   string
	Cooldown  int
	Resending bool
}

// Outcome tells the caller where to go after a successful submit.
type Outcome struct {
	Status   Status
	Redirect string
}

// Controller owns one challenge. It is safe for concurrent use; Close it
// when the challenge is left.
type Controller struct {
	sess     Session
	sched    Scheduler
	log      logging.Logger
	cooldown time.Duration
	tick     time.Duration

	mu         sync.Mutex
	email      string
	code       string
	status     Status
	message    string
	remaining  int
	resending  bool
	cancelTick func()
	closed     bool
}

type Option func(*Controller)

// WithCooldown overrides DefaultCooldown. It is rounded down to whole ticks.
func WithCooldown(d time.Duration) Option {
	return func(c *Controller) { c.cooldown = d }
}

// WithScheduler replaces the ticker (tests).
func WithScheduler(s Scheduler) Option {
	return func(c *Controller) { c.sched = s }
}

func WithLogger(l logging.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// Resolve picks the address to verify: the query parameter first, then
// the pending marker left by registration or a refused login.
func Resolve(queryEmail, pendingEmail string) (string, error) {
	if e := strings.TrimSpace(queryEmail); e != "" {
		return e, nil
	}
	if e := strings.TrimSpace(pendingEmail); e != "" {
		return e, nil
	}
	return "", ErrNoEmail
}

// New starts a challenge for email.
func New(sess Session, email string, opts ...Option) (*Controller, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrNoEmail
	}
	c := &Controller{
		sess:     sess,
		sched:    TickerScheduler{},
		log:      logging.Nop(),
		cooldown: DefaultCooldown,
		tick:     time.Second,
		email:    email,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetCode stores the digits of raw, at most CodeLength of them, and
// returns what was kept.
func (c *Controller) SetCode(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if b.Len() == CodeLength {
			break
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.code = b.String()
	return c.code
}

func validateCode(code string) error {
	err := validation.Validate(code,
		validation.Required.Error("Enter the 6-digit code."),
		validation.Match(codePattern).Error("The code must be exactly 6 digits."),
	)
	if err != nil {
		return &client.ValidationError{
			Detail: err.Error(),
			Fields: map[string][]string{"code": {err.Error()}},
		}
	}
	return nil
}

// SubmitCode verifies code. Input that is not exactly six digits is
// rejected without calling the backend.
func (c *Controller) SubmitCode(ctx context.Context, code string) (Outcome, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Outcome{}, ErrClosed
	}
	if c.status == Submitting || c.resending {
		c.mu.Unlock()
		return Outcome{}, ErrInFlight
	}
	if err := validateCode(code); err != nil {
		c.status = Error
		c.message = client.UserMessage(err)
		c.mu.Unlock()
		return Outcome{Status: Error}, err
	}
	c.code = code
	c.status = Submitting
	c.message = ""
	email := c.email
	c.mu.Unlock()

	resp, err := c.sess.VerifyEmail(ctx, email, code)
	if err == nil && resp.Key != "" {
		err = c.sess.SetAuthToken(ctx, resp.Key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var out Outcome
	switch {
	case err != nil:
		out = Outcome{Status: Error}
	case resp.Key != "":
		out = Outcome{Status: Success, Redirect: "/onboarding"}
	default:
		out = Outcome{Status: SuccessNoCredential, Redirect: "/login"}
	}

	if c.closed {
		return out, err
	}

	c.status = out.Status
	switch {
	case err != nil:
		c.message = client.UserMessage(err)
		c.log.Info(ctx, "verification failed", "email", email, "err", err)
	case out.Status == SuccessNoCredential:
		c.message = "Email verified. Please log in."
		c.stopTickLocked()
	default:
		c.message = resp.Detail
		c.stopTickLocked()
	}
	return out, err
}

// Resend asks for a new code. While the cooldown runs it returns
// client.ErrRateLimited without calling the backend.
func (c *Controller) Resend(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.status == Submitting || c.resending {
		c.mu.Unlock()
		return ErrInFlight
	}
	if c.remaining > 0 {
		c.mu.Unlock()
		return client.ErrRateLimited
	}
	c.resending = true
	email := c.email
	c.mu.Unlock()

	err := c.sess.ResendVerification(ctx, email)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.resending = false
	if c.closed {
		return err
	}
	if err != nil {
		c.message = client.UserMessage(err)
		return err
	}

	c.message = "A new code has been sent to " + email + "."
	c.remaining = int(c.cooldown / c.tick)
	if c.remaining > 0 {
		c.stopTickLocked()
		c.cancelTick = c.sched.Every(c.tick, c.onTick)
	}
	return nil
}

func (c *Controller) onTick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.remaining == 0 {
		return
	}
	c.remaining--
	if c.remaining == 0 {
		c.stopTickLocked()
	}
}

func (c *Controller) stopTickLocked() {
	if c.cancelTick != nil {
		c.cancelTick()
		c.cancelTick = nil
	}
}

// Cooldown returns the seconds left before Resend is allowed again.
func (c *Controller) Cooldown() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Controller) Email() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.email
}

func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Email:     c.email,
		Code:      c.code,
		Status:    c.status,
		Message:   c.message,
		Cooldown:  c.remaining,
		Resending: c.resending,
	}
}

// Close stops the cooldown tick. The controller is unusable afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.stopTickLocked()
}
