package extractor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pagecraft/pagecraft/pkg/core"
	"github.com/pagecraft/pagecraft/pkg/log"
	"github.com/pagecraft/pagecraft/pkg/realtime"
	"github.com/pagecraft/pagecraft/pkg/storage"
)

// Package extractor snapshots a rendered page into the canonical block list.
// It is the one-time (or scheduled) population path for the block store: the
// site's public pages are the source, the store becomes the editable truth.

// Options controls which element categories are collected and which pages
// are skipped entirely.
type Options struct {
	Headings   bool
	Paragraphs bool
	Lists      bool
	Links      bool
	Images     bool

	// ExcludePaths lists substrings; a page path containing any of them is
	// never extracted.
	ExcludePaths []string

	// WaitTime gives client-rendered content time to settle before the
	// browser engine scans the DOM. The static engine ignores it.
	WaitTime time.Duration
}

// DefaultOptions enables every category and skips the admin and appointment
// surfaces.
func DefaultOptions() Options {
	return Options{
		Headings:     true,
		Paragraphs:   true,
		Lists:        true,
		Links:        true,
		Images:       true,
		ExcludePaths: []string{"admin", "appointment"},
	}
}

// Excluded reports whether a page path matches any configured exclusion.
func (o Options) Excluded(pagePath string) bool {
	for _, sub := range o.ExcludePaths {
		if sub != "" && strings.Contains(pagePath, sub) {
			return true
		}
	}
	return false
}

// Element is one visible page element as reported by an engine. Engines
// apply the visibility filter (hidden, zero-area, unloaded images) before
// emitting; conversion to blocks is purely mechanical from here.
type Element struct {
	Kind  string   // heading, paragraph, list, link, image
	Text  string   // heading/paragraph/link text
	Level int      // heading level 1..6
	Items []string // list items
	Href  string   // resolved link target
	Src   string   // resolved image source
	Alt   string   // image alt text
}

// Engine renders a page and reports its visible elements in document order.
type Engine interface {
	Render(ctx context.Context, pageURL string, wait time.Duration) ([]Element, error)
}

// Extractor wires an engine to the block store and the realtime hub.
type Extractor struct {
	store   *storage.Store
	hub     *realtime.Hub
	engine  Engine
	baseURL string
	opts    Options
	logger  *log.Logger
}

// New creates an extractor. baseURL is the site origin the page paths are
// resolved against (e.g. "https://clinic.example"). hub may be nil.
func New(store *storage.Store, hub *realtime.Hub, engine Engine, baseURL string, opts Options) *Extractor {
	return &Extractor{
		store:   store,
		hub:     hub,
		engine:  engine,
		baseURL: strings.TrimRight(baseURL, "/"),
		opts:    opts,
		logger:  log.ForComponent("extractor"),
	}
}

// ExtractPage snapshots one page and replaces its stored block list in a
// single transaction. Returns (false, nil) without touching the store when
// the page path is excluded.
func (e *Extractor) ExtractPage(ctx context.Context, pagePath string) (bool, error) {
	if e.opts.Excluded(pagePath) {
		e.logger.Debugf("skipping excluded page %s", pagePath)
		return false, nil
	}

	elements, err := e.engine.Render(ctx, e.baseURL+pagePath, e.opts.WaitTime)
	if err != nil {
		return false, fmt.Errorf("rendering %s: %w", pagePath, err)
	}

	blocks := BlocksFromElements(pagePath, elements, e.opts)

	version, err := e.store.ReplacePageBlocks(pagePath, blocks, -1)
	if err != nil {
		return false, fmt.Errorf("storing extracted blocks for %s: %w", pagePath, err)
	}

	e.logger.Infof("extracted %s: %d blocks (version %d)", pagePath, len(blocks), version)

	if e.hub != nil {
		e.hub.Publish(realtime.PageEvent{
			Action:     realtime.ActionReplace,
			PagePath:   pagePath,
			Version:    version,
			BlockCount: len(blocks),
		})
	}

	return true, nil
}

// BlocksFromElements converts engine output to blocks, honoring the
// category switches and assigning section names, positional names and
// order indexes in document encounter order.
func BlocksFromElements(pagePath string, elements []Element, opts Options) []core.Block {
	var blocks []core.Block
	counts := make(map[string]int)

	appendBlock := func(section string, t core.BlockType, props map[string]any) {
		counts[section]++
		props["section"] = section
		props["name"] = fmt.Sprintf("%s-%d", section, counts[section])
		b := core.NewBlock(pagePath, t, props)
		b.OrderIndex = len(blocks)
		blocks = append(blocks, b)
	}

	for _, el := range elements {
		switch el.Kind {
		case core.SectionHeading:
			if !opts.Headings || el.Text == "" {
				continue
			}
			appendBlock(core.SectionHeading, core.BlockHeading, map[string]any{
				"text":  el.Text,
				"level": core.ClampHeadingLevel(el.Level),
			})
		case core.SectionParagraph:
			if !opts.Paragraphs || el.Text == "" {
				continue
			}
			appendBlock(core.SectionParagraph, core.BlockParagraph, map[string]any{
				"text": el.Text,
			})
		case core.SectionList:
			if !opts.Lists || len(el.Items) == 0 {
				continue
			}
			appendBlock(core.SectionList, core.BlockParagraph, map[string]any{
				"text": strings.Join(el.Items, "\n"),
			})
		case core.SectionLink:
			if !opts.Links || el.Text == "" || el.Href == "" {
				continue
			}
			appendBlock(core.SectionLink, core.BlockButton, map[string]any{
				"label": el.Text,
				"href":  el.Href,
			})
		case core.SectionImage:
			if !opts.Images || el.Src == "" {
				continue
			}
			appendBlock(core.SectionImage, core.BlockImage, map[string]any{
				"src": el.Src,
				"alt": el.Alt,
			})
		}
	}

	return blocks
}
