package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/ticketdesk/internal/client/client"
	"github.com/dmitrijs2005/ticketdesk/internal/client/guard"
	"github.com/dmitrijs2005/ticketdesk/internal/client/verification"
)

const maxRedirects = 4

var errRedirectLoop = errors.New("redirect loop")

// OnUnauthorized is subscribed to the client's 401 events after the
// session. It only records the forced redirect; Settle performs it.
func (a *App) OnUnauthorized(context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.redirect = guard.PathLogin
}

// Current returns the route on screen.
func (a *App) Current() guard.Route {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Decide is what the guard says about raw right now, without navigating.
func (a *App) Decide(ctx context.Context, raw string) (guard.Route, guard.Decision, error) {
	select {
	case <-a.sess.Ready():
	case <-ctx.Done():
		return guard.Route{}, guard.Decision{}, ctx.Err()
	}
	r := guard.Match(raw)
	return r, guard.Decide(r.Class, guard.StateOf(a.sess.Snapshot())), nil
}

// Navigate follows the guard from raw until a route renders, then shows
// it. Nothing is decided before the session finished initializing.
func (a *App) Navigate(ctx context.Context, raw string) (guard.Route, error) {
	for i := 0; i < maxRedirects; i++ {
		r, d, err := a.Decide(ctx, raw)
		if err != nil {
			return a.Current(), err
		}

		switch d.Outcome {
		case guard.Render:
			return a.enter(ctx, r)
		case guard.Redirect:
			a.log.Debug(ctx, "redirect", "from", r.Path, "to", d.Target)
			raw = d.Target
		default:
			fmt.Fprintln(a.out, "Loading...")
			return a.Current(), nil
		}
	}
	return a.Current(), fmt.Errorf("%w at %s", errRedirectLoop, raw)
}

// Settle re-applies the guard after a command: a forced redirect from a
// 401 goes first, otherwise the current route is re-checked against the
// new session state.
func (a *App) Settle(ctx context.Context) error {
	a.mu.Lock()
	target := a.redirect
	a.redirect = ""
	cur := a.current
	a.mu.Unlock()

	if target != "" {
		fmt.Fprintln(a.out, client.UserMessage(client.ErrUnauthorized))
		_, err := a.Navigate(ctx, target)
		return err
	}

	_, d, err := a.Decide(ctx, rawOf(cur))
	if err != nil || d.Outcome != guard.Redirect {
		return err
	}
	_, err = a.Navigate(ctx, d.Target)
	return err
}

func rawOf(r guard.Route) string {
	if len(r.Query) == 0 {
		return r.Path
	}
	return r.Path + "?" + r.Query.Encode()
}

// enter makes r the current route and runs its on-show logic.
func (a *App) enter(ctx context.Context, r guard.Route) (guard.Route, error) {
	if r.Name != guard.RouteVerifyEmail {
		a.closeChallenge()
	}

	a.mu.Lock()
	a.current = r
	a.mu.Unlock()

	switch r.Name {
	case guard.RouteVerifyEmail:
		pending, err := a.sess.PendingEmail(ctx)
		if err != nil {
			a.log.Warn(ctx, "read pending email", "err", err)
		}
		email, err := verification.Resolve(r.Query.Get("email"), pending)
		if errors.Is(err, verification.ErrNoEmail) {
			fmt.Fprintln(a.out, "No email address to verify. Please register first.")
			return a.Navigate(ctx, "/register")
		}
		if err := a.openChallenge(email); err != nil {
			return r, err
		}
		fmt.Fprintf(a.out, "Enter the 6-digit code sent to %s.\n", email)
	case guard.RouteDashboard:
		a.showDashboard(ctx)
	}

	if hint := screenHints[r.Name]; hint != "" {
		fmt.Fprintln(a.out, hint)
	}
	return r, nil
}

func (a *App) openChallenge(email string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.verify != nil && a.verify.Email() == email {
		return nil
	}
	if a.verify != nil {
		a.verify.Close()
	}
	v, err := verification.New(a.sess, email,
		verification.WithCooldown(a.resendCooldown),
		verification.WithScheduler(a.scheduler),
		verification.WithLogger(a.log),
	)
	if err != nil {
		return err
	}
	a.verify = v
	return nil
}

func (a *App) challenge() *verification.Controller {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.verify
}

func (a *App) closeChallenge() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.verify != nil {
		a.verify.Close()
		a.verify = nil
	}
}

var screenHints = map[string]string{
	guard.RouteLogin:          "Commands: login, register, forgot",
	guard.RouteRegister:       "Commands: register, login",
	guard.RouteVerifyEmail:    "Commands: verify [code], resend",
	guard.RouteForgotPassword: "Commands: forgot, login",
	guard.RouteResetPassword:  "Commands: confirm",
	guard.RouteOnboarding:     "Commands: onboard, logout",
	guard.RouteDashboard:      "Commands: company, whoami, logout",
}
