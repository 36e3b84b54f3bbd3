// Package command defines the ticketdesk command line: global flags,
// the interactive REPL (default) and one-shot commands.
package command

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dmitrijs2005/ticketdesk/internal/client/client"
	"github.com/dmitrijs2005/ticketdesk/internal/client/config"
	"github.com/dmitrijs2005/ticketdesk/internal/client/repositories"
	"github.com/dmitrijs2005/ticketdesk/internal/client/repositories/credentials"
	"github.com/dmitrijs2005/ticketdesk/internal/client/services"
	"github.com/dmitrijs2005/ticketdesk/internal/filex"
	"github.com/dmitrijs2005/ticketdesk/internal/logging"
)

// Build information, set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "ticketdesk",
		Usage:   "ticketdesk command-line client",
		Version: fmt.Sprintf("%s (commit: %s)", Version, Commit),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			REPLCommand(),
			WhoamiCommand(),
			RouteCommand(),
			LogoutCommand(),
		},
		Action: runREPL,
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML config file",
			EnvVars: []string{"TICKETDESK_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "env-file",
			Usage: ".env file loaded before the environment is read",
			Value: ".env",
		},
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"a"},
			Usage:   "API root of the backend (e.g. http://127.0.0.1:8000/api/)",
		},
		&cli.StringFlag{
			Name:  "db",
			Usage: "SQLite file holding the local session",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "debug, info, warn or error",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "text or json",
		},
		&cli.StringFlag{
			Name:  "log-backend",
			Usage: "slog or zap",
		},
	}
}

// flagKeys maps global flags to config keys.
var flagKeys = map[string]string{
	"server":      "server_endpoint_addr",
	"db":          "database_path",
	"log-level":   "log.level",
	"log-format":  "log.format",
	"log-backend": "log.backend",
}

// overrides collects the explicitly set flags only, so unset flags never
// shadow the file or the environment.
func overrides(c *cli.Context) map[string]any {
	out := map[string]any{}
	for flag, key := range flagKeys {
		if c.IsSet(flag) {
			out[key] = c.String(flag)
		}
	}
	return out
}

// runtime is the wired client: config, logger, local store, transport and
// session.
type runtime struct {
	cfg  *config.Config
	log  logging.Logger
	db   *sql.DB
	api  *client.HTTPClient
	sess *services.SessionService
}

func setup(c *cli.Context) (*runtime, error) {
	cfg, err := config.Load(config.Sources{
		DotEnv:    c.String("env-file"),
		File:      c.String("config"),
		Overrides: overrides(c),
	})
	if err != nil {
		return nil, err
	}

	log, err := logging.New(logging.Options{
		Backend: cfg.Log.Backend,
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  c.App.ErrWriter,
	})
	if err != nil {
		return nil, err
	}

	if _, err := filex.EnsureParentDir(cfg.DatabasePath); err != nil {
		return nil, err
	}
	db, err := repositories.InitDatabase(c.Context, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open local database: %w", err)
	}

	store := credentials.NewStore(db)
	api, err := client.NewHTTPClient(cfg.ServerEndpointAddr, store,
		client.WithTimeout(cfg.RequestTimeout),
		client.WithAuthScheme(cfg.AuthScheme),
		client.WithBreaker(client.BreakerSettings{
			MaxFailures: cfg.Breaker.MaxFailures,
			Interval:    cfg.Breaker.Interval,
			Timeout:     cfg.Breaker.Timeout,
		}),
		client.WithLogger(log.With("component", "transport")),
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	// Subscribes to 401 events before anything else can.
	sess := services.NewSessionService(api, store, log.With("component", "session"))

	log.Debug(c.Context, "client ready", "endpoint", api.BaseURL(), "database", cfg.DatabasePath)
	return &runtime{cfg: cfg, log: log, db: db, api: api, sess: sess}, nil
}

// initialize resumes the stored session, bounded by the request timeout.
func (r *runtime) initialize(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout+time.Second)
	defer cancel()
	if err := r.sess.Initialize(ctx); err != nil {
		r.log.Error(ctx, "resume session", "err", err)
	}
}

func (r *runtime) Close() {
	r.sess.Close()
	if err := r.db.Close(); err != nil {
		r.log.Warn(context.Background(), "close database", "err", err)
	}
	if s, ok := r.log.(interface{ Sync() error }); ok {
		_ = s.Sync()
	}
}
