package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/dmitrijs2005/ticketdesk/internal/client/client"
	"github.com/dmitrijs2005/ticketdesk/internal/client/guard"
	"github.com/dmitrijs2005/ticketdesk/internal/client/models"
	"github.com/dmitrijs2005/ticketdesk/internal/client/verification"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// at makes sure the route named name is on screen, navigating to path if
// needed. It reports false when the guard sent the user elsewhere.
func (a *App) at(ctx context.Context, name, path string) bool {
	if a.Current().Name == name {
		return true
	}
	r, err := a.Navigate(ctx, path)
	if err != nil {
		a.fail(ctx, err)
		return false
	}
	if r.Name != name {
		fmt.Fprintf(a.out, "Not available from %s.\n", r.Path)
		return false
	}
	return true
}

func (a *App) fail(ctx context.Context, err error) {
	a.log.Debug(ctx, "command failed", "err", err)
	fmt.Fprintln(a.out, "Error:", client.UserMessage(err))
}

func (a *App) prompt(label string) (string, error) {
	return getSimpleText(a.reader, label, a.out)
}

func (a *App) password(label string) (string, error) {
	pw, err := getPassword(a.reader, label, a.out)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

// Go navigates to an arbitrary path.
func (a *App) Go(ctx context.Context, path string) error {
	_, err := a.Navigate(ctx, path)
	return err
}

func (a *App) Login(ctx context.Context) error {
	if !a.at(ctx, guard.RouteLogin, guard.PathLogin) {
		return nil
	}
	email, err := a.prompt("Enter email")
	if err != nil {
		return err
	}
	password, err := a.password("Enter password: ")
	if err != nil {
		return err
	}

	_, err = a.sess.Login(ctx, email, password)

	var ene *client.EmailNotVerifiedError
	switch {
	case errors.As(err, &ene):
		fmt.Fprintln(a.out, client.UserMessage(err))
		return a.Go(ctx, "/verify-email?email="+url.QueryEscape(ene.Email))
	case err != nil:
		a.fail(ctx, err)
		return err
	}

	fmt.Fprintln(a.out, "Login successful.")
	return a.Go(ctx, guard.PathDashboard)
}

func (a *App) Register(ctx context.Context) error {
	if !a.at(ctx, guard.RouteRegister, "/register") {
		return nil
	}
	name, err := a.prompt("Enter your name")
	if err != nil {
		return err
	}
	email, err := a.prompt("Enter email")
	if err != nil {
		return err
	}
	password, err := a.password("Enter password: ")
	if err != nil {
		return err
	}

	if err := a.sess.Register(ctx, name, email, password); err != nil {
		a.fail(ctx, err)
		return err
	}

	fmt.Fprintln(a.out, "Registration successful. Check your inbox for the verification code.")
	return a.Go(ctx, "/verify-email?email="+url.QueryEscape(email))
}

// Verify submits code, prompting for it when empty.
func (a *App) Verify(ctx context.Context, code string) error {
	if !a.at(ctx, guard.RouteVerifyEmail, "/verify-email") {
		return nil
	}
	v := a.challenge()
	if v == nil {
		return nil
	}

	if code == "" {
		var err error
		if code, err = a.prompt("Enter the 6-digit code"); err != nil {
			return err
		}
	}
	code = v.SetCode(code)

	out, err := v.SubmitCode(ctx, code)
	switch {
	case errors.Is(err, verification.ErrInFlight):
		return nil
	case err != nil:
		fmt.Fprintln(a.out, "Error:", v.Snapshot().Message)
		return err
	}

	if out.Status == verification.SuccessNoCredential {
		fmt.Fprintln(a.out, v.Snapshot().Message)
	} else {
		fmt.Fprintln(a.out, "Email verified.")
	}
	return a.Go(ctx, out.Redirect)
}

func (a *App) Resend(ctx context.Context) error {
	if !a.at(ctx, guard.RouteVerifyEmail, "/verify-email") {
		return nil
	}
	v := a.challenge()
	if v == nil {
		return nil
	}

	err := v.Resend(ctx)
	switch {
	case errors.Is(err, client.ErrRateLimited):
		fmt.Fprintf(a.out, "Please wait %ds before requesting another code.\n", v.Cooldown())
		return nil
	case errors.Is(err, verification.ErrInFlight):
		return nil
	case err != nil:
		fmt.Fprintln(a.out, "Error:", v.Snapshot().Message)
		return err
	}
	fmt.Fprintln(a.out, v.Snapshot().Message)
	return nil
}

func (a *App) ForgotPassword(ctx context.Context) error {
	if !a.at(ctx, guard.RouteForgotPassword, "/forgot-password") {
		return nil
	}
	email, err := a.prompt("Enter the email of your account")
	if err != nil {
		return err
	}
	if err := a.sess.RequestPasswordReset(ctx, email); err != nil {
		a.fail(ctx, err)
		return err
	}
	fmt.Fprintln(a.out, "If the account exists, a reset link is on its way.")
	return nil
}

// ConfirmReset sets a new password. The reset link has to be opened first
// (go /reset-password/<uid>/<token>) since it carries uid and token.
func (a *App) ConfirmReset(ctx context.Context) error {
	r := a.Current()
	if r.Name != guard.RouteResetPassword {
		fmt.Fprintln(a.out, "Open your reset link first: go /reset-password/<uid>/<token>")
		return nil
	}
	pw, err := a.password("Enter new password: ")
	if err != nil {
		return err
	}
	again, err := a.password("Repeat new password: ")
	if err != nil {
		return err
	}
	if pw != again {
		fmt.Fprintln(a.out, "Passwords do not match.")
		return nil
	}

	if err := a.sess.ConfirmPasswordReset(ctx, r.Params["uid"], r.Params["token"], pw); err != nil {
		a.fail(ctx, err)
		return err
	}
	fmt.Fprintln(a.out, "Password changed. You can log in now.")
	return a.Go(ctx, guard.PathLogin)
}

func (a *App) Onboard(ctx context.Context) error {
	if !a.at(ctx, guard.RouteOnboarding, guard.PathOnboarding) {
		return nil
	}
	name, err := a.prompt("Company name")
	if err != nil {
		return err
	}
	logo, err := a.prompt("Path to a logo image (empty to skip)")
	if err != nil {
		return err
	}

	if err := a.sess.CompleteOnboarding(ctx, models.CompanyUpdate{Name: name, LogoPath: logo}); err != nil {
		a.fail(ctx, err)
		return err
	}
	fmt.Fprintln(a.out, "Onboarding complete.")
	return a.Go(ctx, guard.PathDashboard)
}

func (a *App) Company(ctx context.Context) error {
	if !a.at(ctx, guard.RouteDashboard, guard.PathDashboard) {
		return nil
	}
	co, err := a.sess.MyCompany(ctx)
	if err != nil {
		a.fail(ctx, err)
		return err
	}
	return Render(a.out, co, FormatYAML)
}

func (a *App) showDashboard(ctx context.Context) {
	snap := a.sess.Snapshot()
	if snap.User != nil {
		name := snap.User.Name
		if name == "" {
			name = snap.User.Email
		}
		fmt.Fprintf(a.out, "Dashboard. Welcome, %s!\n", name)
	}
	co, err := a.sess.MyCompany(ctx)
	if err != nil {
		a.log.Warn(ctx, "load company", "err", err)
		return
	}
	fmt.Fprintf(a.out, "Company: %s\n", co.Name)
}

func (a *App) Whoami(ctx context.Context) error {
	pending, err := a.sess.PendingEmail(ctx)
	if err != nil {
		return err
	}
	return Render(a.out, NewWhoami(a.sess.Snapshot(), pending), FormatYAML)
}

func (a *App) Logout(ctx context.Context) error {
	err := a.sess.Logout(ctx)
	if err != nil {
		a.log.Warn(ctx, "logout", "err", err)
	}
	fmt.Fprintln(a.out, "Logged out.")
	return a.Go(ctx, guard.PathLogin)
}
