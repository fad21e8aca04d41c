package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v3"

	"github.com/pagecraft/pagecraft/pkg/config"
)

// WatchCommand creates a CLI command that tails the server's websocket event
// feed and writes NDJSON page events to stdout.
//
// Typical usage:
//
//	pagecraft watch
//	pagecraft watch --page /eyecare
//	pagecraft watch | jq -r 'select(.action=="replace") | .page_path'
//
// The command auto-reconnects with exponential backoff when the server is
// not yet up or the connection drops. It exits only on context cancellation
// or, with --no-retry, on the first connection error.
func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Stream realtime page events (NDJSON) from the server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "page",
				Usage: "Only events for this page path",
			},
			&cli.StringFlag{
				Name:  "server",
				Usage: "Server base URL (overrides the configured listen address)",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print JSON instead of raw single-line",
				Value: false,
			},
			&cli.BoolFlag{
				Name:  "no-retry",
				Usage: "Do not retry on failures; exit on first connection error",
				Value: false,
			},
			&cli.DurationFlag{
				Name:  "initial-backoff",
				Usage: "Initial reconnect backoff",
				Value: 1 * time.Second,
			},
			&cli.DurationFlag{
				Name:  "max-backoff",
				Usage: "Maximum reconnect backoff",
				Value: 30 * time.Second,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			base := c.String("server")
			if base == "" {
				cfg, err := config.LoadConfig(c.String("config"))
				if err != nil {
					return fmt.Errorf("loading config: %w", err)
				}
				base = "http://" + cfg.ListenAddr()
			}

			feedURL, err := eventFeedURL(base, c.String("page"))
			if err != nil {
				return err
			}

			opts := watchOptions{
				feedURL:        feedURL,
				pretty:         c.Bool("pretty"),
				noRetry:        c.Bool("no-retry"),
				initialBackoff: c.Duration("initial-backoff"),
				maxBackoff:     c.Duration("max-backoff"),
			}
			return tailEvents(ctx, opts)
		},
	}
}

type watchOptions struct {
	feedURL        string
	pretty         bool
	noRetry        bool
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// eventFeedURL turns an http(s) base URL into the ws(s) feed endpoint.
func eventFeedURL(base, pagePath string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing server url %s: %w", base, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}
	u.Path = "/api/events/ws"
	if pagePath != "" {
		u.RawQuery = url.Values{"page": {pagePath}}.Encode()
	}
	return u.String(), nil
}

func tailEvents(ctx context.Context, opts watchOptions) error {
	if opts.initialBackoff <= 0 {
		opts.initialBackoff = time.Second
	}
	if opts.maxBackoff < opts.initialBackoff {
		opts.maxBackoff = 30 * time.Second
	}

	fmt.Fprintf(os.Stderr, "Watch: connecting to %s\n", opts.feedURL)

	backoff := opts.initialBackoff
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := streamEvents(ctx, opts)
		if err == nil || ctx.Err() != nil {
			return nil
		}

		if opts.noRetry {
			return err
		}

		fmt.Fprintf(os.Stderr, "Watch: connection lost (%v), retrying in %v\n", err, backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil
		}
		backoff *= 2
		if backoff > opts.maxBackoff {
			backoff = opts.maxBackoff
		}
	}
}

// streamEvents runs one websocket session, printing each event frame.
func streamEvents(ctx context.Context, opts watchOptions) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, opts.feedURL, nil)
	if err != nil {
		return fmt.Errorf("dialing: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close connection: %v\n", err)
		}
	}()

	// Close the connection when the context is cancelled so ReadMessage
	// unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading: %w", err)
		}

		var frame struct {
			Type  string          `json:"type"`
			Event json.RawMessage `json:"event"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			fmt.Fprintf(os.Stderr, "Watch: skipping malformed frame: %v\n", err)
			continue
		}
		if frame.Type != "event" {
			continue
		}

		out := []byte(frame.Event)
		if opts.pretty {
			var buf map[string]any
			if err := json.Unmarshal(frame.Event, &buf); err == nil {
				if pretty, err := json.MarshalIndent(buf, "", "  "); err == nil {
					out = pretty
				}
			}
		}
		fmt.Println(string(out))
	}
}
