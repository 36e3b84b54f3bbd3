package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	shell "github.com/dmitrijs2005/ticketdesk/internal/client/cli"
	"github.com/dmitrijs2005/ticketdesk/internal/client/client"
	"github.com/dmitrijs2005/ticketdesk/internal/client/guard"
)

func REPLCommand() *cli.Command {
	return &cli.Command{
		Name:  "repl",
		Usage: "Interactive session (default)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "start",
				Usage: "route shown first",
				Value: guard.PathDashboard,
			},
		},
		Action: runREPL,
	}
}

func runREPL(c *cli.Context) error {
	rt, err := setup(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	app := shell.NewApp(rt.sess,
		shell.WithIO(c.App.Reader, c.App.Writer),
		shell.WithLogger(rt.log.With("component", "cli")),
		shell.WithResendCooldown(rt.cfg.ResendCooldown),
	)
	unsub := rt.api.OnUnauthorized(app.OnUnauthorized)
	defer unsub()

	// The router waits on the session's ready gate.
	initDone := make(chan struct{})
	go func() {
		defer close(initDone)
		rt.initialize(c.Context)
	}()
	defer func() { <-initDone }()

	start := c.String("start")
	if start == "" {
		start = guard.PathDashboard
	}
	return app.Run(c.Context, start, rt.cfg.OnlineCheckInterval)
}

func WhoamiCommand() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Show the local session",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output format: json, yaml",
				Value:   shell.FormatYAML,
			},
		},
		Action: func(c *cli.Context) error {
			rt, err := setup(c)
			if err != nil {
				return err
			}
			defer rt.Close()
			rt.initialize(c.Context)

			pending, err := rt.sess.PendingEmail(c.Context)
			if err != nil {
				return err
			}
			return shell.Render(c.App.Writer, shell.NewWhoami(rt.sess.Snapshot(), pending), c.String("output"))
		},
	}
}

func RouteCommand() *cli.Command {
	return &cli.Command{
		Name:      "route",
		Usage:     "Print what the route guard decides for a path",
		ArgsUsage: "<path>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("usage: %s route <path>", c.App.Name)
			}
			rt, err := setup(c)
			if err != nil {
				return err
			}
			defer rt.Close()
			rt.initialize(c.Context)

			r := guard.Match(c.Args().First())
			d := guard.Decide(r.Class, guard.StateOf(rt.sess.Snapshot()))
			fmt.Fprintf(c.App.Writer, "%s (%s): %s\n", r.Path, r.Class, d)
			return nil
		},
	}
}

func LogoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Log out and clear the local session",
		Action: func(c *cli.Context) error {
			rt, err := setup(c)
			if err != nil {
				return err
			}
			defer rt.Close()
			rt.initialize(c.Context)

			if err := rt.sess.Logout(c.Context); err != nil {
				fmt.Fprintln(c.App.ErrWriter, "warning:", client.UserMessage(err))
			}
			fmt.Fprintln(c.App.Writer, "Logged out.")
			return nil
		},
	}
}
