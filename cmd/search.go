package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/pagecraft/pagecraft/pkg/config"
	"github.com/pagecraft/pagecraft/pkg/search"
)

// SearchCommand creates the search command
func SearchCommand() *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Search block content",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "query",
				Usage:    "Search query",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "page",
				Usage: "Limit the search to one page path",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of results",
				Value: 10,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return searchBlocks(c.String("config"), c.String("query"), c.String("page"), c.Int("limit"))
		},
	}
}

func searchBlocks(configPath, query, pagePath string, limit int) error {
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

	params := search.Params{Query: query, Limit: limit}
	if pagePath != "" {
		params.PageFilters = []string{pagePath}
	}

	results, err := search.NewService(store).Search(params)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}

	if results.TotalCount == 0 {
		fmt.Println("No results found")
		return nil
	}

	for page, blocks := range results.Results {
		fmt.Println(pageStyle.Render(fmt.Sprintf("%s (%d results)", page, len(blocks))))
		for _, b := range blocks {
			fmt.Println(blockStyle.Render(renderBlock(b)))
		}
	}
	fmt.Printf("Total: %d results\n", results.TotalCount)
	if results.HasMore {
		fmt.Println(metaStyle.Render("More results available; raise --limit to see them."))
	}
	return nil
}
