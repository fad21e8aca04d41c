package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/pagecraft/pagecraft/pkg/config"
	"github.com/pagecraft/pagecraft/pkg/core"
)

// Define styles using lipgloss
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			Background(lipgloss.Color("235")).
			Padding(0, 1).
			Margin(0, 0, 1, 0)

	pageStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))

	blockStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1).
			Margin(0, 0, 1, 2)

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	noDataStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true).
			Margin(1, 0)
)

var titleCaser = cases.Title(language.English)

// PagesCommand creates the pages command with subcommands
func PagesCommand() *cli.Command {
	return &cli.Command{
		Name:  "pages",
		Usage: "Inspect managed pages and their blocks",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List pages with versions and block counts",
				Action: func(ctx context.Context, c *cli.Command) error {
					return listPages(c.String("config"))
				},
			},
			{
				Name:  "show",
				Usage: "Show the block list for one page",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "page",
						Usage:    "Page path (e.g. /eyecare)",
						Required: true,
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return showPage(c.String("config"), c.String("page"))
				},
			},
		},
	}
}

func listPages(configPath string) error {
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

	pages, err := store.ListPages()
	if err != nil {
		return fmt.Errorf("listing pages: %w", err)
	}

	fmt.Println(titleStyle.Render("Managed Pages"))
	if len(pages) == 0 {
		fmt.Println(noDataStyle.Render("No pages stored yet. Run 'pagecraft extract' first."))
		return nil
	}

	for _, p := range pages {
		fmt.Printf("%s  %s\n",
			pageStyle.Render(p.PagePath),
			metaStyle.Render(fmt.Sprintf("v%d, %d blocks, updated %s",
				p.Version, p.BlockCount, formatTime(p.UpdatedAt))))
	}
	return nil
}

func showPage(configPath, pagePath string) error {
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

	blocks, err := store.FetchPageBlocks(pagePath)
	if err != nil {
		return fmt.Errorf("fetching blocks for %s: %w", pagePath, err)
	}
	pageVersion, err := store.PageVersion(pagePath)
	if err != nil {
		return fmt.Errorf("fetching version for %s: %w", pagePath, err)
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("%s (version %d)", pagePath, pageVersion)))
	if len(blocks) == 0 {
		fmt.Println(noDataStyle.Render("No blocks stored for this page."))
		return nil
	}

	for _, b := range blocks {
		fmt.Println(blockStyle.Render(renderBlock(b)))
	}
	return nil
}

// renderBlock formats one block for terminal display.
func renderBlock(b core.Block) string {
	var sb strings.Builder
	sb.WriteString(pageStyle.Render(titleCaser.String(string(b.Type))))

	switch b.Type {
	case core.BlockHeading:
		sb.WriteString(fmt.Sprintf(" (h%d)", core.IntProp(b.Properties, "level", 1)))
		sb.WriteString("\n" + b.Text())
	case core.BlockParagraph:
		sb.WriteString("\n" + b.Text())
	case core.BlockImage:
		sb.WriteString("\n" + core.StringProp(b.Properties, "src"))
		if alt := b.Text(); alt != "" {
			sb.WriteString("\n" + metaStyle.Render("alt: "+alt))
		}
	case core.BlockButton:
		sb.WriteString("\n" + b.Text())
		sb.WriteString("\n" + metaStyle.Render(core.StringProp(b.Properties, "href")))
	}

	sb.WriteString("\n" + metaStyle.Render(fmt.Sprintf("#%d  %s", b.OrderIndex, b.ID)))
	return sb.String()
}
