package extractor

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// StaticEngine fetches a page over HTTP and scans the parsed document. It
// sees exactly what the server sent: no scripts run, so WaitTime is ignored
// and visibility is judged from the hidden attribute and inline styles.
// Suitable for server-rendered sites and for tests.
type StaticEngine struct {
	Client *http.Client
}

// NewStaticEngine returns a static engine with a 30 second HTTP timeout.
func NewStaticEngine() *StaticEngine {
	return &StaticEngine{Client: &http.Client{Timeout: 30 * time.Second}}
}

// Render implements Engine.
func (e *StaticEngine) Render(ctx context.Context, pageURL string, _ time.Duration) ([]Element, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", pageURL, err)
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			fmt.Printf("Warning: failed to close response body: %v\n", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: unexpected status %d", pageURL, resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", pageURL, err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parsing page url %s: %w", pageURL, err)
	}

	w := &domWalker{base: base}
	w.walk(doc, false, false)
	return w.elements, nil
}

// domWalker collects elements in document encounter order.
type domWalker struct {
	base     *url.URL
	elements []Element
}

// walk descends the tree. inChrome marks nav/header/footer subtrees (links
// there are navigation, not content). textOnly suppresses heading/paragraph
// capture inside an element whose text was already consumed.
func (w *domWalker) walk(n *html.Node, inChrome, textOnly bool) {
	if n.Type == html.ElementNode {
		if isInvisible(n) {
			return
		}

		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Template:
			return
		case atom.Nav, atom.Header, atom.Footer:
			inChrome = true
		case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
			if !textOnly {
				if text := normalizeSpace(textContent(n)); text != "" {
					w.elements = append(w.elements, Element{
						Kind:  "heading",
						Text:  text,
						Level: int(n.Data[1] - '0'),
					})
				}
			}
			return
		case atom.P:
			if !textOnly {
				if text := normalizeSpace(textContent(n)); text != "" {
					w.elements = append(w.elements, Element{Kind: "paragraph", Text: text})
				}
			}
			textOnly = true // still descend for links and images
		case atom.Ul, atom.Ol:
			if !textOnly {
				if items := listItems(n); len(items) > 0 {
					w.elements = append(w.elements, Element{Kind: "list", Items: items})
				}
			}
			textOnly = true
		case atom.A:
			if !inChrome {
				text := normalizeSpace(textContent(n))
				href := w.resolve(attrValue(n, "href"))
				if text != "" && href != "" {
					w.elements = append(w.elements, Element{Kind: "link", Text: text, Href: href})
				}
			}
			textOnly = true
		case atom.Img:
			if src := w.resolve(attrValue(n, "src")); src != "" {
				w.elements = append(w.elements, Element{
					Kind: "image",
					Src:  src,
					Alt:  normalizeSpace(attrValue(n, "alt")),
				})
			}
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c, inChrome, textOnly)
	}
}

func (w *domWalker) resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "javascript:") {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return w.base.ResolveReference(u).String()
}

// isInvisible applies the visibility filter to what static markup can show:
// the hidden attribute, inline display/visibility/opacity, and explicit
// zero dimensions.
func isInvisible(n *html.Node) bool {
	for _, a := range n.Attr {
		switch a.Key {
		case "hidden":
			return true
		case "style":
			if styleHides(a.Val) {
				return true
			}
		case "width", "height":
			if strings.TrimSpace(a.Val) == "0" {
				return true
			}
		}
	}
	return false
}

func styleHides(style string) bool {
	for _, decl := range strings.Split(style, ";") {
		parts := strings.SplitN(decl, ":", 2)
		if len(parts) != 2 {
			continue
		}
		prop := strings.TrimSpace(strings.ToLower(parts[0]))
		val := strings.TrimSpace(strings.ToLower(parts[1]))
		switch prop {
		case "display":
			if val == "none" {
				return true
			}
		case "visibility":
			if val == "hidden" {
				return true
			}
		case "opacity":
			if val == "0" || val == "0.0" || val == "0%" {
				return true
			}
		}
	}
	return false
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			return
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style:
				return
			}
			if isInvisible(n) {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return sb.String()
}

func listItems(n *html.Node) []string {
	var items []string
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if isInvisible(n) {
				return
			}
			if n.DataAtom == atom.Li {
				if text := normalizeSpace(textContent(n)); text != "" {
					items = append(items, text)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return items
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
