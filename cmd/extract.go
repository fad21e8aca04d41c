package cmd

import (
	"context"
	"fmt"

	"github.com/pagecraft/pagecraft/pkg/config"
	"github.com/urfave/cli/v3"
)

// ExtractCommand creates the extract command
func ExtractCommand() *cli.Command {
	return &cli.Command{
		Name:  "extract",
		Usage: "Extract page content into the block store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "page",
				Usage: "Page path to extract (e.g. /eyecare); defaults to all configured pages",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return extractPages(ctx, c.String("config"), c.String("page"))
		},
	}
}

func extractPages(ctx context.Context, configPath, pagePath string) error {
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

	ex, closeEngine, err := newExtractor(cfg, store, nil)
	if err != nil {
		return err
	}
	if closeEngine != nil {
		defer func() {
			if err := closeEngine(); err != nil {
				fmt.Printf("Warning: failed to close browser engine: %v\n", err)
			}
		}()
	}

	pages := cfg.ListPages()
	if pagePath != "" {
		pages = []string{pagePath}
	}
	if len(pages) == 0 {
		return fmt.Errorf("no pages configured and no --page given")
	}

	for _, p := range pages {
		extracted, err := ex.ExtractPage(ctx, p)
		if err != nil {
			return fmt.Errorf("extracting %s: %w", p, err)
		}
		if !extracted {
			fmt.Printf("Skipped %s (excluded)\n", p)
			continue
		}

		blocks, err := store.FetchPageBlocks(p)
		if err != nil {
			return fmt.Errorf("fetching blocks for %s: %w", p, err)
		}
		pageVersion, err := store.PageVersion(p)
		if err != nil {
			return fmt.Errorf("fetching version for %s: %w", p, err)
		}
		fmt.Printf("Extracted %s: %d blocks (version %d)\n", p, len(blocks), pageVersion)
	}

	return nil
}
