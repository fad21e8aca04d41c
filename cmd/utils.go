package cmd

import (
	"fmt"

	"github.com/pagecraft/pagecraft/pkg/config"
	"github.com/pagecraft/pagecraft/pkg/extractor"
	"github.com/pagecraft/pagecraft/pkg/realtime"
	"github.com/pagecraft/pagecraft/pkg/storage"
)

// openStore opens the block store at the configured location.
func openStore(cfg *config.Config) (*storage.Store, error) {
	store, err := storage.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("opening store at %s: %w", cfg.DBPath(), err)
	}
	store.SetRevisionRetention(cfg.RevisionRetention())
	return store, nil
}

// extractorOptions maps the config's extract section onto extractor options.
func extractorOptions(cfg *config.Config) extractor.Options {
	return extractor.Options{
		Headings:     cfg.Extract.IncludeHeadings(),
		Paragraphs:   cfg.Extract.IncludeParagraphs(),
		Lists:        cfg.Extract.IncludeLists(),
		Links:        cfg.Extract.IncludeLinks(),
		Images:       cfg.Extract.IncludeImages(),
		ExcludePaths: cfg.Extract.ExcludeList(),
		WaitTime:     cfg.Extract.WaitTime.Duration,
	}
}

// newEngine builds the configured rendering engine. The caller owns the
// returned closer (nil for the static engine).
func newEngine(cfg *config.Config) (extractor.Engine, func() error, error) {
	switch cfg.Extract.Engine {
	case "", "static":
		return extractor.NewStaticEngine(), nil, nil
	case "browser":
		engine := extractor.NewBrowserEngine()
		return engine, engine.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown extract engine %q", cfg.Extract.Engine)
	}
}

// newExtractor wires a full extractor from config. hub may be nil.
func newExtractor(cfg *config.Config, store *storage.Store, hub *realtime.Hub) (*extractor.Extractor, func() error, error) {
	if cfg.SiteBaseURL == "" {
		return nil, nil, fmt.Errorf("site_base_url is not configured")
	}
	engine, closer, err := newEngine(cfg)
	if err != nil {
		return nil, nil, err
	}
	ex := extractor.New(store, hub, engine, cfg.SiteBaseURL, extractorOptions(cfg))
	return ex, closer, nil
}
