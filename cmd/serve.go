package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/urfave/cli/v3"

	"github.com/pagecraft/pagecraft/pkg/api"
	"github.com/pagecraft/pagecraft/pkg/config"
	"github.com/pagecraft/pagecraft/pkg/editor"
	pclog "github.com/pagecraft/pagecraft/pkg/log"
	"github.com/pagecraft/pagecraft/pkg/realtime"
	"github.com/pagecraft/pagecraft/pkg/scheduler"
	"github.com/pagecraft/pagecraft/pkg/uploads"
)

// ServeCommand creates the serve command
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the content API and re-extraction scheduler",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-scheduler",
				Usage: "Serve the API without periodic re-extraction",
				Value: false,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Bool("debug") {
				pclog.SetGlobalDebug(true)
			}
			return serve(ctx, c.String("config"), c.Bool("no-scheduler"))
		},
	}
}

// serve runs the API server, the realtime hub and the page scheduler until
// interrupted. SIGHUP or a config file change reloads the managed page set.
func serve(ctx context.Context, configPath string, noScheduler bool) error {
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

	hub := realtime.NewHub(cfg.EventBufferSize)

	uploadStore, err := uploads.New(cfg.UploadsDir(), cfg.PublicBaseURL)
	if err != nil {
		return fmt.Errorf("creating upload store: %w", err)
	}

	ex, closeEngine, err := newExtractor(cfg, store, hub)
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

	sessions := editor.NewManager(store, hub)
	defer sessions.Close()

	sched := scheduler.New(scheduler.Config{
		OptimizeInterval: cfg.OptimizeInterval.Duration,
	}, ex, store)
	for _, pagePath := range cfg.ListPages() {
		sched.AddPageWithInterval(pagePath, cfg.GetPageInterval(pagePath))
	}

	server := api.NewServer(api.Options{
		Store:       store,
		Hub:         hub,
		Extractor:   ex,
		Uploads:     uploadStore,
		Sessions:    sessions,
		SiteBaseURL: cfg.SiteBaseURL,
		LogoURL:     cfg.LogoURL,
	})
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: api.CorsMiddleware(mux),
	}

	serveCtx, serveCancel := context.WithCancel(ctx)
	defer serveCancel()

	if !noScheduler && len(cfg.ListPages()) > 0 {
		if err := sched.Start(serveCtx); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
		defer sched.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("API listening on http://%s", cfg.ListenAddr())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	fmt.Println("Serving. Press Ctrl+C to stop, send SIGHUP to reload, or modify the config file for automatic reload.")

	// Watch the config file so page changes apply without a restart.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("Warning: failed to create config file watcher: %v", err)
	} else {
		defer func() {
			if err := watcher.Close(); err != nil {
				log.Printf("Warning: failed to close config file watcher: %v", err)
			}
		}()
		if err := watcher.Add(configPath); err != nil {
			log.Printf("Warning: failed to watch config file %s: %v", configPath, err)
		} else {
			log.Printf("Watching config file for changes: %s", configPath)
		}
	}

	shutdown := func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}

	for {
		select {
		case err := <-errCh:
			return fmt.Errorf("http server: %w", err)
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				log.Println("Received SIGHUP, reloading configuration...")
				if next, err := reloadPages(configPath, cfg, sched); err != nil {
					log.Printf("Failed to reload configuration: %v", err)
				} else {
					cfg = next
					log.Println("Configuration reloaded successfully")
				}
			case syscall.SIGINT, syscall.SIGTERM:
				fmt.Println("\nShutting down...")
				serveCancel()
				return shutdown()
			}
		case event, ok := <-watcher.Events:
			if !ok {
				continue
			}
			// Editors often replace the file atomically, so rename and
			// remove count as changes too.
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				log.Printf("Config file changed: %s (event: %s), reloading...", event.Name, event.Op.String())

				if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
					time.Sleep(200 * time.Millisecond)
					if _, err := os.Stat(configPath); os.IsNotExist(err) {
						log.Printf("Config file was removed and not replaced, skipping reload")
						continue
					}
					if err := watcher.Add(configPath); err != nil {
						log.Printf("Warning: failed to re-watch config file: %v", err)
					}
				} else {
					time.Sleep(100 * time.Millisecond)
				}

				if next, err := reloadPages(configPath, cfg, sched); err != nil {
					log.Printf("Failed to reload configuration after file change: %v", err)
				} else {
					cfg = next
					log.Println("Configuration reloaded successfully after file change")
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				continue
			}
			log.Printf("Config file watcher error: %v", err)
		case <-ctx.Done():
			serveCancel()
			return shutdown()
		}
	}
}

// reloadPages swaps the scheduler's page set for the one in the config file.
// Listen address and engine changes still need a restart.
func reloadPages(configPath string, current *config.Config, sched *scheduler.Scheduler) (*config.Config, error) {
	next, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading new config: %w", err)
	}

	for _, pagePath := range current.ListPages() {
		sched.RemovePage(pagePath)
	}
	for _, pagePath := range next.ListPages() {
		sched.AddPageWithInterval(pagePath, next.GetPageInterval(pagePath))
	}

	log.Printf("Reload complete: %d pages scheduled", len(next.ListPages()))
	return next, nil
}
