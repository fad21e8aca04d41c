package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/pagecraft/pagecraft/pkg/config"
	"github.com/pagecraft/pagecraft/pkg/storage"
)

// OptimizeCommand creates the optimize command with subcommands
func OptimizeCommand() *cli.Command {
	return &cli.Command{
		Name:  "optimize",
		Usage: "Database optimization and maintenance commands",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Optimize the search index and query planner statistics",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withStore(c.String("config"), func(store *storage.Store) error {
						if err := store.Optimize(); err != nil {
							return fmt.Errorf("optimizing: %w", err)
						}
						fmt.Println("Optimization complete")
						return nil
					})
				},
			},
			{
				Name:  "vacuum",
				Usage: "Run VACUUM to defragment the database",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withStore(c.String("config"), func(store *storage.Store) error {
						if err := store.Vacuum(); err != nil {
							return fmt.Errorf("vacuuming: %w", err)
						}
						fmt.Println("Vacuum complete")
						return nil
					})
				},
			},
			{
				Name:  "checkpoint",
				Usage: "Checkpoint the WAL into the main database file",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withStore(c.String("config"), func(store *storage.Store) error {
						if err := store.WALCheckpoint(); err != nil {
							return fmt.Errorf("checkpointing: %w", err)
						}
						fmt.Println("Checkpoint complete")
						return nil
					})
				},
			},
		},
	}
}

// withStore opens the store for a maintenance action and closes it after.
func withStore(configPath string, fn func(*storage.Store) error) error {
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

	return fn(store)
}
