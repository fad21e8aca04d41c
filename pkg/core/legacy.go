package core

import (
	"encoding/json"
	"time"
)

// LegacyContentItem is the older per-element content record, keyed by
// (PagePath, Selector). It predates the block model and survives as a
// migration source and as the storage target of the element-click editing
// surface. Nothing reconciles legacy items with blocks automatically; the
// migrate command converts them explicitly.
type LegacyContentItem struct {
	ID         string         `json:"id"`
	PagePath   string         `json:"page_path"`
	Selector   string         `json:"selector"`
	Section    string         `json:"section"`
	Name       string         `json:"name"`
	Content    string         `json:"content"`
	ImageURL   string         `json:"image_url,omitempty"`
	Styles     map[string]any `json:"styles,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	OrderIndex int            `json:"order_index"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Legacy section names produced by the extractor and the element-click path.
const (
	SectionHeading   = "heading"
	SectionParagraph = "paragraph"
	SectionList      = "list"
	SectionLink      = "link"
	SectionImage     = "image"
)

// DecodeBag parses a JSON property/style bag stored as text. Older rows
// sometimes hold malformed JSON or a bare string; those decode to an empty
// bag instead of failing the page load.
func DecodeBag(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var bag map[string]any
	if err := json.Unmarshal([]byte(raw), &bag); err != nil || bag == nil {
		return map[string]any{}
	}
	return bag
}

// ToBlock converts a legacy item to its canonical block form. Sections that
// have no block equivalent report ok=false and are skipped by migration.
func (it LegacyContentItem) ToBlock() (Block, bool) {
	var b Block
	switch it.Section {
	case SectionHeading:
		b = NewBlock(it.PagePath, BlockHeading, map[string]any{
			"text":  it.Content,
			"level": ClampHeadingLevel(IntProp(it.Properties, "level", 2)),
		})
	case SectionParagraph, SectionList:
		b = NewBlock(it.PagePath, BlockParagraph, map[string]any{
			"text": it.Content,
		})
	case SectionImage:
		b = NewBlock(it.PagePath, BlockImage, map[string]any{
			"src": it.ImageURL,
			"alt": it.Content,
		})
	case SectionLink:
		b = NewBlock(it.PagePath, BlockButton, map[string]any{
			"label": it.Content,
			"href":  StringProp(it.Properties, "href"),
		})
	default:
		return Block{}, false
	}
	b.OrderIndex = it.OrderIndex
	return b, true
}
