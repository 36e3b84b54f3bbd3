package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/ticketdesk/internal/client/client"
	"github.com/dmitrijs2005/ticketdesk/internal/client/guard"
	"github.com/dmitrijs2005/ticketdesk/internal/client/models"
	"github.com/dmitrijs2005/ticketdesk/internal/client/verification"
	"github.com/dmitrijs2005/ticketdesk/internal/logging"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// Session is the part of the session service the CLI drives.
type Session interface {
	verification.Session

	Ready() <-chan struct{}
	Snapshot() models.Session
	PendingEmail(ctx context.Context) (string, error)

	Login(ctx context.Context, email, password string) (*client.LoginResponse, error)
	Register(ctx context.Context, name, email, password string) error
	Logout(ctx context.Context) error
	CompleteOnboarding(ctx context.Context, upd models.CompanyUpdate) error
	MyCompany(ctx context.Context) (*models.Company, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, uid, token, newPassword string) error
	Ping(ctx context.Context) error
}

// App is the interactive client: a router over the guard plus one handler
// per screen.
type App struct {
	sess   Session
	reader *bufio.Reader
	out    io.Writer
	log    logging.Logger

	resendCooldown time.Duration
	scheduler      verification.Scheduler

	mu       sync.Mutex
	current  guard.Route
	redirect string
	mode     Mode
	verify   *verification.Controller
}

type Option func(*App)

func WithIO(in io.Reader, out io.Writer) Option {
	return func(a *App) {
		a.reader = bufio.NewReader(in)
		a.out = out
	}
}

func WithLogger(l logging.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithResendCooldown is passed on to every verification challenge.
func WithResendCooldown(d time.Duration) Option {
	return func(a *App) { a.resendCooldown = d }
}

func WithScheduler(s verification.Scheduler) Option {
	return func(a *App) { a.scheduler = s }
}

func NewApp(sess Session, opts ...Option) *App {
	a := &App{
		sess:           sess,
		reader:         bufio.NewReader(os.Stdin),
		out:            os.Stdout,
		log:            logging.Nop(),
		resendCooldown: verification.DefaultCooldown,
		scheduler:      verification.TickerScheduler{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run shows start, then serves the REPL until the input ends or the user
// quits. The online watcher runs for as long as Run does.
func (a *App) Run(ctx context.Context, start string, onlineCheck time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.closeChallenge()

	fmt.Fprintln(a.out, "Welcome to ticketdesk (type 'help' for commands)")

	if _, err := a.Navigate(ctx, start); err != nil {
		return err
	}

	if onlineCheck > 0 {
		go a.StartOnlineStatusWatcher(ctx, onlineCheck)
	}

	runREPL(ctx, a, a.status, a.reader, a.out)
	return nil
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode != mode {
		a.mode = mode
		a.log.Info(context.Background(), "connectivity changed", "mode", string(mode))
	}
}

func (a *App) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// StartOnlineStatusWatcher probes the backend every interval until ctx is
// done and keeps Mode up to date.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) checkOnline(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := a.sess.Ping(pctx); err != nil {
		a.setMode(ModeOffline)
		return
	}
	a.setMode(ModeOnline)
}

// status is the prompt decoration: route, user and connectivity.
func (a *App) status() string {
	snap := a.sess.Snapshot()

	a.mu.Lock()
	path, mode := a.current.Path, a.mode
	a.mu.Unlock()

	s := path
	if snap.User != nil {
		s += " " + snap.User.Email
	}
	if mode != "" {
		s += " " + string(mode)
	}
	return s
}
