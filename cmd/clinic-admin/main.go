package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pedsclinic/clinicadmin/internal/config"
	"github.com/pedsclinic/clinicadmin/internal/domain/diagnosis"
	"github.com/pedsclinic/clinicadmin/internal/domain/lab"
	"github.com/pedsclinic/clinicadmin/internal/domain/scheduling"
	"github.com/pedsclinic/clinicadmin/internal/platform/apiclient"
	"github.com/pedsclinic/clinicadmin/internal/platform/audit"
	"github.com/pedsclinic/clinicadmin/internal/platform/auth"
	"github.com/pedsclinic/clinicadmin/internal/platform/db"
	"github.com/pedsclinic/clinicadmin/internal/platform/render"
	"github.com/pedsclinic/clinicadmin/migrations"
)

const version = "0.1.0"

// app is everything a command needs once configuration has been loaded.
// Tests build one by hand and skip load.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	session *auth.Session
	client  *apiclient.Client
	journal audit.Store
	pool    *pgxpool.Pool

	labSvc   *lab.Service
	diagSvc  *diagnosis.Service
	schedSvc *scheduling.Service

	out    io.Writer
	output string
}

func main() {
	a := &app{out: os.Stdout}
	if err := newRootCmd(a).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "clinic-admin",
		Short:        "Administrative console for the pediatric clinic backend",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetOut(a.out)
			if a.client != nil {
				return nil
			}
			return a.load(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	root.PersistentFlags().StringVarP(&a.output, "output", "o", "table", "Output format: table, json or yaml")

	root.AddCommand(serveCmd(a))
	root.AddCommand(migrateCmd(a))
	root.AddCommand(loginCmd(a))
	root.AddCommand(logoutCmd(a))
	root.AddCommand(whoamiCmd(a))
	root.AddCommand(auditCmd(a))
	root.AddCommand(labCmd(a))
	root.AddCommand(diagnosisCmd(a))
	root.AddCommand(treatmentCmd(a))
	root.AddCommand(attachmentCmd(a))
	root.AddCommand(scheduleCmd(a))
	return root
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func (a *app) load(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = newLogger(cfg.Env)

	access, refresh := cfg.AccessToken, cfg.RefreshToken
	if access == "" && refresh == "" {
		pair, err := auth.LoadCredentials(cfg.CredentialsFile)
		if err != nil {
			a.logger.Warn().Err(err).Str("path", cfg.CredentialsFile).Msg("ignoring unreadable credentials file")
		}
		access, refresh = pair.Access, pair.Refresh
	}
	a.session = auth.NewSession(access, refresh)
	a.client = apiclient.New(cfg.APIBaseURL, a.session,
		apiclient.WithTimeout(cfg.RequestTimeout()),
		apiclient.WithLogger(a.logger),
	)

	a.journal = audit.NewMemoryStore(0)
	if cfg.AuditPersistent() {
		if ctx == nil {
			ctx = context.Background()
		}
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return fmt.Errorf("connect audit database: %w", err)
		}
		a.pool = pool
		a.journal = audit.NewPGStore(pool)
	}

	a.wire()
	return nil
}

// wire builds the domain services on top of a.client.
func (a *app) wire() {
	a.labSvc = lab.NewRESTService(a.client)
	a.diagSvc = diagnosis.NewRESTService(a.client)
	a.schedSvc = scheduling.NewRESTService(a.client)
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

func (a *app) format() (render.Format, error) {
	return render.ParseFormat(a.output)
}

// print writes v in the selected output format.
func (a *app) print(v any, build func() render.Table) error {
	f, err := a.format()
	if err != nil {
		return err
	}
	return render.Write(a.out, f, v, build)
}

// record journals one mutating CLI call. A failing journal is logged and
// never fails the command.
func (a *app) record(ctx context.Context, method, resource string, id int64, action string, callErr error) {
	if a.journal == nil {
		return
	}
	entry := audit.Entry{
		Source:   audit.SourceCLI,
		Method:   method,
		Resource: resource,
		Action:   action,
	}
	if id > 0 {
		entry.ResourceID = strconv.FormatInt(id, 10)
	}
	if a.session != nil {
		if u := a.session.User(); u != nil {
			entry.UserID = strconv.FormatInt(u.UserID, 10)
			entry.Role = u.Role
		}
	}
	if callErr != nil {
		entry.Error = callErr.Error()
		entry.StatusCode = apiclient.HTTPStatus(callErr)
	}
	if err := a.journal.Record(ctx, entry); err != nil {
		a.logger.Error().Err(err).Str("resource", resource).Msg("failed to record audit entry")
	}
}

func (a *app) persistTokens(pair auth.TokenPair) error {
	if a.cfg == nil || a.cfg.CredentialsFile == "" {
		return nil
	}
	return auth.SaveCredentials(a.cfg.CredentialsFile, pair)
}

func migrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the audit journal schema",
	}

	var schema string
	var target int

	migrator := func() (*db.Migrator, error) {
		if a.pool == nil {
			return nil, errors.New("DATABASE_URL is not set; the audit journal is kept in memory")
		}
		return db.NewMigrator(a.pool, migrations.FS, schema), nil
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := migrator()
			if err != nil {
				return err
			}
			a.logger.Info().Str("schema", m.Schema()).Msg("running migrations")
			count, err := m.UpTo(cmd.Context(), target)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(a.out, "Applied %d migration(s) to schema %s.\n", count, m.Schema())
			return nil
		},
	}
	upCmd.Flags().IntVar(&target, "target", 0, "Stop after this version (0 applies all)")
	cmd.AddCommand(upCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := migrator()
			if err != nil {
				return err
			}
			statuses, err := m.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			return a.print(statuses, func() render.Table {
				t := render.Table{Title: "Migrations (" + m.Schema() + ")", Headers: []string{"VERSION", "NAME", "STATUS", "APPLIED AT"}}
				for _, s := range statuses {
					status, at := "pending", ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							at = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					t.AddRow(strconv.Itoa(s.Version), s.Name, status, render.Dash(at))
				}
				return t
			})
		},
	})

	cmd.PersistentFlags().StringVar(&schema, "schema", db.DefaultSchema, "Schema that holds the audit journal")
	return cmd
}

func loginCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the backend and store the tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("CLINIC_ADMIN_PASSWORD")
			}
			claims, err := a.session.Login(cmd.Context(), a.client, email, password)
			a.record(cmd.Context(), "POST", "auth", 0, "login", err)
			if err != nil {
				return err
			}
			if err := a.persistTokens(a.session.Tokens()); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Logged in as %s (%s).\n", render.Dash(claims.Email), render.Dash(claims.Role))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (or CLINIC_ADMIN_PASSWORD)")
	return cmd
}

func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			a.session.Logout()
			if err := a.persistTokens(auth.TokenPair{}); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Logged out.")
			return nil
		},
	}
}

func whoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the user of the stored access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			u := a.session.User()
			if u == nil {
				return apiclient.ErrMissingToken
			}
			return a.print(u, func() render.Table {
				t := render.Table{Headers: []string{"USER ID", "USERNAME", "EMAIL", "ROLE", "EXPIRES"}}
				expires := ""
				if u.ExpiresAt != nil {
					expires = u.ExpiresAt.Time.Format(time.RFC3339)
				}
				t.AddRow(strconv.FormatInt(u.UserID, 10), render.Dash(u.Username), render.Dash(u.Email), render.Dash(u.Role), render.Dash(expires))
				return t
			})
		},
	}
}

var errNoAuditHistory = errors.New("audit history needs DATABASE_URL: the in-memory journal is empty in a new process")

func auditCmd(a *app) *cobra.Command {
	var f audit.Filter
	var outcome, since string
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List journaled console and CLI actions",
		Long: "List journaled console and CLI actions. History is kept in PostgreSQL when " +
			"DATABASE_URL is set; without it each process journals to memory and nothing " +
			"survives between CLI runs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, inMemory := a.journal.(*audit.MemoryStore); inMemory {
				return errNoAuditHistory
			}
			f.Outcome = audit.Outcome(outcome)
			if since != "" {
				t, err := time.Parse(time.RFC3339, since)
				if err != nil {
					return fmt.Errorf("--since must be an RFC3339 timestamp: %w", err)
				}
				f.Since = t
			}
			entries, err := a.journal.List(cmd.Context(), f)
			if err != nil {
				return err
			}
			return a.print(entries, func() render.Table {
				t := render.Table{Headers: []string{"TIME", "SOURCE", "USER", "METHOD", "RESOURCE", "ID", "ACTION", "OUTCOME", "ERROR"}}
				for _, e := range entries {
					t.AddRow(e.Time.Format(time.RFC3339), e.Source, render.Dash(e.UserID), e.Method, e.Resource,
						render.Dash(e.ResourceID), render.Dash(e.Action), string(e.Outcome), render.Dash(e.Error))
				}
				return t
			})
		},
	}
	cmd.Flags().StringVar(&f.UserID, "user", "", "Only entries of this user id")
	cmd.Flags().StringVar(&f.Resource, "resource", "", "Only entries for this resource")
	cmd.Flags().StringVar(&outcome, "outcome", "", "success or failure")
	cmd.Flags().StringVar(&since, "since", "", "Only entries at or after this RFC3339 time")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "Maximum entries")
	return cmd
}
