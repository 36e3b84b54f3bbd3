package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/ticketdesk/internal/client/guard"
)

// execIface is the command surface the REPL needs. App satisfies it; tests
// provide a lightweight stub.
type execIface interface {
	Current() guard.Route
	Go(ctx context.Context, path string) error
	Settle(ctx context.Context) error

	Login(ctx context.Context) error
	Register(ctx context.Context) error
	Verify(ctx context.Context, code string) error
	Resend(ctx context.Context) error
	ForgotPassword(ctx context.Context) error
	ConfirmReset(ctx context.Context) error
	Onboard(ctx context.Context) error
	Company(ctx context.Context) error
	Whoami(ctx context.Context) error
	Logout(ctx context.Context) error
}

// runREPL reads one command per line from reader and dispatches it to a.
//
// Commands:
//
//	help                 commands of the current screen
//	go <path>            navigate, e.g. go /reset-password/<uid>/<token>
//	login | register | forgot
//	verify [code] | resend
//	confirm              set a new password from a reset link
//	onboard | company | whoami | logout
//	exit | quit
//
// After every command the guard is re-applied, so a 401 or a logout lands
// the user on /login. Handler errors are already reported by the handlers.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader, w io.Writer) {
	for {
		fmt.Fprintf(w, "td %s> ", statusFn())
		line, err := readLine(reader)
		if err != nil {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			hint := screenHints[a.Current().Name]
			if hint != "" {
				fmt.Fprintln(w, hint)
			}
			fmt.Fprintln(w, "Always available: go <path>, whoami, logout, exit")

		case "go":
			if len(args) == 0 {
				fmt.Fprintln(w, "Usage: go <path>")
				continue
			}
			_ = a.Go(ctx, args[0])

		case "login":
			_ = a.Login(ctx)

		case "register":
			_ = a.Register(ctx)

		case "verify":
			code := ""
			if len(args) > 0 {
				code = strings.Join(args, "")
			}
			_ = a.Verify(ctx, code)

		case "resend":
			_ = a.Resend(ctx)

		case "forgot":
			_ = a.ForgotPassword(ctx)

		case "confirm":
			_ = a.ConfirmReset(ctx)

		case "onboard":
			_ = a.Onboard(ctx)

		case "company":
			_ = a.Company(ctx)

		case "whoami":
			_ = a.Whoami(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "exit", "quit":
			fmt.Fprintln(w, "Bye!")
			return

		default:
			fmt.Fprintln(w, "Unknown command:", cmd)
		}

		_ = a.Settle(ctx)
	}
}
