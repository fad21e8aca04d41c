package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserEngine renders pages in headless Chrome, so client-rendered
// content, computed styles and the image box model are all observable. This
// is the engine to use against script-heavy sites; WaitTime gives late
// hydration a chance to settle before the scan.
type BrowserEngine struct {
	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// NewBrowserEngine returns an engine that launches Chrome lazily on first
// Render. Call Close when done to shut the browser down.
func NewBrowserEngine() *BrowserEngine {
	return &BrowserEngine{}
}

func (e *BrowserEngine) connect() (*rod.Browser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.browser != nil {
		return e.browser, nil
	}

	l := launcher.New().Headless(true)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}

	e.launcher = l
	e.browser = browser
	return browser, nil
}

// Close shuts down the browser and its launcher.
func (e *BrowserEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.browser != nil {
		if err := e.browser.Close(); err != nil {
			return fmt.Errorf("closing browser: %w", err)
		}
		e.browser = nil
	}
	if e.launcher != nil {
		e.launcher.Cleanup()
		e.launcher = nil
	}
	return nil
}

// Render implements Engine.
func (e *BrowserEngine) Render(ctx context.Context, pageURL string, wait time.Duration) ([]Element, error) {
	browser, err := e.connect()
	if err != nil {
		return nil, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: pageURL})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", pageURL, err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			fmt.Printf("Warning: failed to close page: %v\n", err)
		}
	}()

	page = page.Context(ctx)
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("waiting for %s to load: %w", pageURL, err)
	}

	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	res, err := page.Eval(collectScript)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", pageURL, err)
	}

	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("reading scan result: %w", err)
	}

	var found []struct {
		Kind  string   `json:"kind"`
		Text  string   `json:"text"`
		Level int      `json:"level"`
		Items []string `json:"items"`
		Href  string   `json:"href"`
		Src   string   `json:"src"`
		Alt   string   `json:"alt"`
	}
	if err := json.Unmarshal(raw, &found); err != nil {
		return nil, fmt.Errorf("decoding scan result: %w", err)
	}

	elements := make([]Element, 0, len(found))
	for _, f := range found {
		elements = append(elements, Element{
			Kind:  f.Kind,
			Text:  f.Text,
			Level: f.Level,
			Items: f.Items,
			Href:  f.Href,
			Src:   f.Src,
			Alt:   f.Alt,
		})
	}
	return elements, nil
}

// collectScript walks the live DOM in document order and reports visible
// content elements. Visibility uses computed styles and the box model;
// images must have finished loading with a non-zero natural width.
const collectScript = `() => {
	const visible = (el) => {
		const style = window.getComputedStyle(el);
		if (style.display === 'none' || style.visibility === 'hidden') return false;
		if (parseFloat(style.opacity) === 0) return false;
		const rect = el.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0;
	};
	const clean = (s) => (s || '').replace(/\s+/g, ' ').trim();
	const out = [];
	const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_ELEMENT);
	const consumed = new Set();
	for (let el = walker.nextNode(); el; el = walker.nextNode()) {
		if (consumed.has(el) || el.closest('script,style,noscript,template')) continue;
		let inConsumed = false;
		for (const c of consumed) { if (c.contains(el)) { inConsumed = true; break; } }
		const tag = el.tagName.toLowerCase();
		if (/^h[1-6]$/.test(tag)) {
			if (inConsumed || !visible(el)) continue;
			const text = clean(el.textContent);
			if (text) out.push({kind: 'heading', text, level: parseInt(tag[1], 10)});
			consumed.add(el);
		} else if (tag === 'p') {
			if (inConsumed || !visible(el)) continue;
			const text = clean(el.textContent);
			if (text) out.push({kind: 'paragraph', text});
			consumed.add(el);
		} else if (tag === 'ul' || tag === 'ol') {
			if (inConsumed || !visible(el)) continue;
			const items = Array.from(el.querySelectorAll('li'))
				.filter(visible).map(li => clean(li.textContent)).filter(Boolean);
			if (items.length) out.push({kind: 'list', items});
			consumed.add(el);
		} else if (tag === 'a') {
			if (!visible(el) || el.closest('nav,header,footer')) continue;
			const text = clean(el.textContent);
			if (text && el.href) out.push({kind: 'link', text, href: el.href});
		} else if (tag === 'img') {
			if (!visible(el)) continue;
			if (!el.complete || el.naturalWidth === 0) continue;
			if (el.src) out.push({kind: 'image', src: el.src, alt: clean(el.alt)});
		}
	}
	return out;
}`
