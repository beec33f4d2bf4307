// Package main is the entrypoint for the sevarctl operations CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sevarahealth/sevara/internal/db"
	"github.com/sevarahealth/sevara/internal/models"
	"github.com/sevarahealth/sevara/internal/reminders"
	"github.com/sevarahealth/sevara/internal/templates"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sevarctl",
		Short: "Sevara operations CLI",
		Long: `sevarctl manages a Sevara deployment: database migrations,
agreement template publishing, and agreement reporting.

Commands that touch the database read DATABASE_URL or accept --db.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newMigrateCmd(),
		newTemplateCmd(),
		newStatsCmd(),
		newRemindCmd(),
	)

	return rootCmd
}

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger()
}

// connect opens a small connection pool for one-shot CLI work.
func connect(ctx context.Context, dbURL string, logger zerolog.Logger) (*db.DB, error) {
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, fmt.Errorf("database URL required: use --db flag or set DATABASE_URL")
	}

	cfg := db.DefaultConfig(dbURL)
	cfg.MaxConns = 5
	cfg.MinConns = 1

	return db.New(ctx, cfg, logger)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sevarctl %s\n", Version)
			fmt.Printf("  Commit:     %s\n", Commit)
			fmt.Printf("  Built:      %s\n", BuildDate)
			fmt.Printf("  Go version: %s\n", runtime.Version())
			fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	var (
		dbURL   string
		showVer bool
		list    bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			if list {
				migrations, err := db.GetMigrations()
				if err != nil {
					return fmt.Errorf("list migrations: %w", err)
				}
				fmt.Println("Available migrations:")
				for _, m := range migrations {
					fmt.Printf("  %03d: %s\n", m.Version, m.Name)
				}
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			database, err := connect(ctx, dbURL, logger)
			if err != nil {
				return err
			}
			defer database.Close()

			if showVer {
				version, err := database.CurrentVersion(ctx)
				if err != nil {
					return fmt.Errorf("get schema version: %w", err)
				}
				fmt.Printf("Current schema version: %d\n", version)
				return nil
			}

			logger.Info().Msg("running database migrations")
			if err := database.Migrate(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			version, err := database.CurrentVersion(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("could not get current version")
			} else {
				logger.Info().Int("version", version).Msg("migrations complete")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbURL, "db", "", "Database URL (or set DATABASE_URL env var)")
	cmd.Flags().BoolVar(&showVer, "version", false, "Show current schema version")
	cmd.Flags().BoolVar(&list, "list", false, "List all migrations")

	return cmd
}

func newTemplateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage agreement templates",
	}

	cmd.AddCommand(
		newTemplateListCmd(),
		newTemplateSeedCmd(),
		newTemplatePublishCmd(),
	)

	return cmd
}

func newTemplateListCmd() *cobra.Command {
	var dbURL string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the built-in templates and the latest published version",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			builtIn, err := templates.LoadBuiltIn()
			if err != nil {
				return fmt.Errorf("load built-in templates: %w", err)
			}
			fmt.Println("Built-in templates:")
			for _, t := range builtIn {
				fmt.Printf("  v%d: %s <%s>\n", t.Version, t.VendorLegalName, t.VendorContactEmail)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			database, err := connect(ctx, dbURL, logger)
			if err != nil {
				// Listing built-ins works without a database
				fmt.Println("\n(no database connection; latest published version unknown)")
				return nil
			}
			defer database.Close()

			latest, err := database.GetLatestTemplate(ctx)
			if errors.Is(err, db.ErrNotFound) {
				fmt.Println("\nNo template published yet")
				return nil
			}
			if err != nil {
				return fmt.Errorf("get latest template: %w", err)
			}
			fmt.Printf("\nLatest published: v%d (published %s)\n",
				latest.Version, latest.PublishedAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&dbURL, "db", "", "Database URL (or set DATABASE_URL env var)")

	return cmd
}

func newTemplateSeedCmd() *cobra.Command {
	var dbURL string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Publish any built-in templates missing from the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			database, err := connect(ctx, dbURL, logger)
			if err != nil {
				return err
			}
			defer database.Close()

			return templates.Seed(ctx, database, logger)
		},
	}

	cmd.Flags().StringVar(&dbURL, "db", "", "Database URL (or set DATABASE_URL env var)")

	return cmd
}

func newTemplatePublishCmd() *cobra.Command {
	var dbURL string

	cmd := &cobra.Command{
		Use:   "publish <template.yaml>",
		Short: "Publish a new template version from a YAML file",
		Long: `Publish a new agreement template version from a YAML file.

The file uses the same shape as the built-in seeds:

  version: 2
  vendor_legal_name: "Sevara Health, Inc."
  vendor_contact_email: "legal@sevarahealth.com"
  body: |
    BUSINESS ASSOCIATE AGREEMENT
    ...

Published versions are immutable; re-publishing an existing version fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read template file: %w", err)
			}

			var seed templates.SeedTemplateYAML
			if err := yaml.Unmarshal(raw, &seed); err != nil {
				return fmt.Errorf("parse template file: %w", err)
			}
			if seed.Version <= 0 {
				return fmt.Errorf("template version must be positive, got %d", seed.Version)
			}
			if strings.TrimSpace(seed.Body) == "" {
				return fmt.Errorf("template body must not be empty")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			database, err := connect(ctx, dbURL, logger)
			if err != nil {
				return err
			}
			defer database.Close()

			t := &models.Template{
				Version:            seed.Version,
				BodyText:           seed.Body,
				VendorLegalName:    seed.VendorLegalName,
				VendorContactEmail: seed.VendorContactEmail,
			}
			if err := database.PublishTemplate(ctx, t); err != nil {
				return fmt.Errorf("publish template v%d: %w", seed.Version, err)
			}

			logger.Info().Int("version", seed.Version).Msg("template published")
			return nil
		},
	}

	cmd.Flags().StringVar(&dbURL, "db", "", "Database URL (or set DATABASE_URL env var)")

	return cmd
}

func newStatsCmd() *cobra.Command {
	var dbURL string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print agreement counts by status across all organizations",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			database, err := connect(ctx, dbURL, logger)
			if err != nil {
				return err
			}
			defer database.Close()

			stats, err := database.GetAgreementStats(ctx)
			if err != nil {
				return fmt.Errorf("get agreement stats: %w", err)
			}

			fmt.Printf("Organizations: %d\n", stats.TotalOrgs)
			fmt.Printf("  not_started:               %d\n", stats.NotStarted)
			fmt.Printf("  awaiting_org_signature:    %d\n", stats.AwaitingOrgSignature)
			fmt.Printf("  awaiting_vendor_signature: %d\n", stats.AwaitingVendorSignature)
			fmt.Printf("  executed:                  %d\n", stats.Executed)
			fmt.Printf("  voided:                    %d\n", stats.Voided)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbURL, "db", "", "Database URL (or set DATABASE_URL env var)")

	return cmd
}

func newRemindCmd() *cobra.Command {
	var (
		dbURL    string
		staleAge time.Duration
	)

	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Run one stale-signature reminder sweep immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			database, err := connect(ctx, dbURL, logger)
			if err != nil {
				return err
			}
			defer database.Close()

			reminders.NewScheduler(database, staleAge, logger).RunNow()
			return nil
		},
	}

	cmd.Flags().StringVar(&dbURL, "db", "", "Database URL (or set DATABASE_URL env var)")
	cmd.Flags().DurationVar(&staleAge, "stale-age", 72*time.Hour, "Age after which a pending signature counts as stale")

	return cmd
}
