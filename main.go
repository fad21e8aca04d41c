package main

import (
	"context"
	"log"
	"os"

	"github.com/pagecraft/pagecraft/cmd"
	"github.com/pagecraft/pagecraft/pkg/config"
	"github.com/urfave/cli/v3"
)

func main() {
	app := &cli.Command{
		Name:  "pagecraft",
		Usage: "Content extraction, storage and visual editing for marketing sites",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
				Value: false,
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Configuration file path",
				Value: getDefaultConfigPathOrExit(),
			},
		},
		Commands: []*cli.Command{
			cmd.InitCommand(),
			cmd.ServeCommand(),
			cmd.ExtractCommand(),
			cmd.PagesCommand(),
			cmd.SearchCommand(),
			cmd.WatchCommand(),
			cmd.StatsCommand(),
			cmd.MigrateCommand(),
			cmd.OptimizeCommand(),
			cmd.VersionCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func getDefaultConfigPathOrExit() string {
	path, err := config.GetDefaultConfigPath()
	if err != nil {
		log.Fatalf("Failed to get default config path: %v", err)
	}
	return path
}
