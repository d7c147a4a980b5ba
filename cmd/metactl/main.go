package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/Guizzs26/go-meta-sync/internal/app"
	"github.com/Guizzs26/go-meta-sync/internal/auth"
	"github.com/Guizzs26/go-meta-sync/internal/config"
	"github.com/Guizzs26/go-meta-sync/internal/db"
	"github.com/Guizzs26/go-meta-sync/internal/models"
	"github.com/Guizzs26/go-meta-sync/internal/processor"
	"github.com/Guizzs26/go-meta-sync/internal/service"
	"github.com/Guizzs26/go-meta-sync/internal/session"
	"github.com/Guizzs26/go-meta-sync/pkg/infra"
	"github.com/urfave/cli/v3"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:  "metactl",
		Usage: "Operator CLI for the meta sync service",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log at debug level to stderr"},
		},
		Commands: []*cli.Command{
			migrateCommand(),
			syncCommand(),
			metaCommand(),
			userCommand(),
			sessionCommand(),
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		log.Fatal(err)
	}
}

type env struct {
	cfg    *config.Config
	logger *slog.Logger
}

func setup(c *cli.Command) env {
	cfg := config.Load()
	level := "WARN"
	if c.Root().Bool("verbose") {
		level = "DEBUG"
	}
	return env{cfg: cfg, logger: infra.NewWriterLogger(os.Stderr, level, cfg.LogFormat)}
}

func (e env) postgres(ctx context.Context) (*db.PostgresRepository, error) {
	return db.NewPostgresRepository(ctx, e.cfg.DatabaseURL, e.logger)
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the database schema",
		Action: func(ctx context.Context, c *cli.Command) error {
			e := setup(c)
			repo, err := e.postgres(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			if err := repo.RunMigrations(ctx); err != nil {
				return err
			}
			fmt.Println("schema up to date")
			return nil
		},
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Run one reconciliation pass now",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "domain", Usage: "branch, customer or region (default: all)"},
			&cli.StringFlag{Name: "date", Usage: "YYYY-MM-DD (default: today in SYNC_TIMEZONE)"},
			&cli.BoolFlag{Name: "dry-run", Usage: "merge into memory instead of Postgres"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			e := setup(c)

			var store processor.Store
			if c.Bool("dry-run") {
				store = db.NewMemoryStore().
					WithUnique("branches", "organization_id", "org_id").
					WithUnique("customers", "customer_number", "bill_to_site_use_id").
					WithUnique("regions", "region_code")
			} else {
				repo, err := e.postgres(ctx)
				if err != nil {
					return err
				}
				defer repo.Close()
				store = repo
			}

			rt := app.NewRuntime(e.cfg, store, e.logger, nil)
			defer rt.Close()

			date := c.String("date")
			if date == "" {
				loc, err := time.LoadLocation(e.cfg.SyncTimezone)
				if err != nil {
					return err
				}
				date = time.Now().In(loc).Format(time.DateOnly)
			}

			syncers := rt.Syncers()
			if d := c.String("domain"); d != "" {
				s, err := rt.Syncer(d)
				if err != nil {
					return err
				}
				syncers = []service.Syncer{s}
			}

			outcomes := make([]service.Outcome, 0, len(syncers))
			failed := false
			for _, s := range syncers {
				out := s.Sync(ctx, date)
				failed = failed || !out.Status
				outcomes = append(outcomes, out)
			}
			if err := printJSON(outcomes); err != nil {
				return err
			}
			if failed {
				return cli.Exit("one or more domains failed to sync", 2)
			}
			return nil
		},
	}
}

func metaCommand() *cli.Command {
	domainFlag := &cli.StringFlag{Name: "domain", Required: true, Usage: "branch, customer or region"}

	withReader := func(ctx context.Context, c *cli.Command, fn func(app.Reader) error) error {
		e := setup(c)
		rt := app.NewRuntime(e.cfg, db.NewMemoryStore(), e.logger, nil)
		defer rt.Close()

		r, err := rt.Reader(c.String("domain"))
		if err != nil {
			return err
		}
		return fn(r)
	}

	return &cli.Command{
		Name:  "meta",
		Usage: "Query the remote meta service",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List one page of remote records",
				Flags: []cli.Flag{
					domainFlag,
					&cli.IntFlag{Name: "page", Value: 1},
					&cli.IntFlag{Name: "limit", Value: 10},
					&cli.StringFlag{Name: "search"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withReader(ctx, c, func(r app.Reader) error {
						page, limit := int(c.Int("page")), int(c.Int("limit"))
						return printJSON(r.List(ctx, models.PaginationParams{Page: &page, Limit: &limit, Search: c.String("search")}))
					})
				},
			},
			{
				Name:  "get",
				Usage: "Fetch one remote record by id",
				Flags: []cli.Flag{domainFlag, &cli.Int64Flag{Name: "id", Required: true}},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withReader(ctx, c, func(r app.Reader) error {
						return printJSON(r.ByID(ctx, c.Int64("id")))
					})
				},
			},
			{
				Name:  "invalidate",
				Usage: "Drop the remote cache for one record, or for all records when --id is omitted",
				Flags: []cli.Flag{domainFlag, &cli.Int64Flag{Name: "id"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withReader(ctx, c, func(r app.Reader) error {
						var id *int64
						if c.IsSet("id") {
							v := c.Int64("id")
							id = &v
						}
						return printJSON(r.InvalidateCache(ctx, id))
					})
				},
			},
		},
	}
}

func userCommand() *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Manage login users",
		Commands: []*cli.Command{
			{
				Name:  "seed",
				Usage: "Create the bootstrap administrator if missing",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Value: "superadmin@example.com"},
					&cli.StringFlag{Name: "password", Sources: cli.EnvVars("SEED_ADMIN_PASSWORD"), Required: true},
					&cli.Int64Flag{Name: "role-id", Value: 1},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					e := setup(c)
					repo, err := e.postgres(ctx)
					if err != nil {
						return err
					}
					defer repo.Close()

					hash, err := auth.HashPassword(c.String("password"))
					if err != nil {
						return err
					}
					id, created, err := repo.EnsureUser(ctx, c.String("email"), hash, c.Int64("role-id"), "seeder")
					if err != nil {
						return err
					}
					return printJSON(map[string]any{"id": id, "created": created, "email": c.String("email")})
				},
			},
		},
	}
}

func sessionCommand() *cli.Command {
	withAuth := func(ctx context.Context, c *cli.Command, fn func(*auth.Service, *session.Store) error) error {
		e := setup(c)
		repo, err := e.postgres(ctx)
		if err != nil {
			return err
		}
		defer repo.Close()

		rdb := app.NewRedisClient(e.cfg)
		defer rdb.Close()

		store := session.NewStore(session.NewRedisCache(rdb), e.cfg.SessionTTL, e.logger)
		return fn(app.NewAuthService(e.cfg, repo, rdb, e.logger), store)
	}

	return &cli.Command{
		Name:  "session",
		Usage: "Inspect and manage login sessions",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Log in and print the issued tokens",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
					&cli.StringFlag{Name: "device", Value: "metactl"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withAuth(ctx, c, func(svc *auth.Service, _ *session.Store) error {
						res, err := svc.Login(ctx, auth.Credentials{
							Email:      c.String("email"),
							Password:   c.String("password"),
							DeviceInfo: c.String("device"),
						})
						if err != nil {
							return err
						}
						return printJSON(res)
					})
				},
			},
			{
				Name:  "validate",
				Usage: "Check whether a token is the user's current session",
				Flags: []cli.Flag{&cli.StringFlag{Name: "token", Required: true}},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withAuth(ctx, c, func(_ *auth.Service, store *session.Store) error {
						rec, err := store.Lookup(ctx, c.String("token"))
						if errors.Is(err, session.ErrSessionMissing) || errors.Is(err, session.ErrSessionMismatch) {
							_ = printJSON(map[string]any{"valid": false, "reason": err.Error()})
							return cli.Exit("", 1)
						}
						if err != nil {
							return err
						}
						return printJSON(map[string]any{"valid": true, "session": rec})
					})
				},
			},
			{
				Name:  "logout",
				Usage: "Revoke a session",
				Flags: []cli.Flag{&cli.StringFlag{Name: "token", Required: true}},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withAuth(ctx, c, func(svc *auth.Service, _ *session.Store) error {
						return svc.Logout(ctx, c.String("token"))
					})
				},
			},
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
