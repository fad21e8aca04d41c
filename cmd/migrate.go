package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/pagecraft/pagecraft/pkg/config"
	"github.com/pagecraft/pagecraft/pkg/db"
	"github.com/pagecraft/pagecraft/pkg/storage"
)

// MigrateCommand creates the migrate command with subcommands
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Run database and content migrations",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "status",
				Usage: "Show migration status without applying migrations",
				Value: false,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "legacy",
				Usage: "Convert a page's legacy element-click content into blocks",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "page",
						Usage:    "Page path to migrate (e.g. /eyecare)",
						Required: true,
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return migrateLegacy(c.String("config"), c.String("page"))
				},
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return runMigrations(c.String("config"), c.Bool("status"))
		},
	}
}

// runMigrations applies (or reports) the embedded schema migrations
func runMigrations(configPath string, statusOnly bool) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Open applies pending migrations; a status check needs the raw handle
	// before anything runs, so it goes through the manager directly.
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Printf("Warning: failed to close store: %v\n", err)
		}
	}()

	manager := db.NewManager(store.DB())
	status, err := manager.Status()
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}

	fmt.Printf("Applied migrations: %d\n", len(status.Applied))
	for _, m := range status.Applied {
		applied := ""
		if m.AppliedAt != nil {
			applied = m.AppliedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("  %03d %-24s %s\n", m.Version, m.Name, applied)
	}

	if len(status.Pending) == 0 {
		fmt.Println("Database schema is up to date")
		return nil
	}

	fmt.Printf("Pending migrations: %d\n", len(status.Pending))
	for _, m := range status.Pending {
		fmt.Printf("  %03d %s\n", m.Version, m.Name)
	}

	if statusOnly {
		return nil
	}

	if err := manager.ApplyPending(); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	fmt.Println("All migrations completed successfully")
	return nil
}

// migrateLegacy converts one page's legacy content items to blocks
func migrateLegacy(configPath, pagePath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Printf("Warning: failed to close store: %v\n", err)
		}
	}()

	migrated, err := store.MigrateLegacyItems(pagePath)
	if errors.Is(err, storage.ErrPageNotFound) {
		fmt.Printf("No legacy content found for %s\n", pagePath)
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrating %s: %w", pagePath, err)
	}

	fmt.Printf("Migrated %d legacy items on %s into blocks\n", migrated, pagePath)
	return nil
}
