package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Block is the canonical unit of page content: a typed, ordered element of
// one page's editable region. The set of blocks sharing a PagePath fully
// determines that page's rendered content. Blocks form a flat ordered list
// per page; they never reference each other.
//
// The Properties bag is free-form but its meaningful keys depend on Type:
//
//	heading:   text, level (1..6)
//	paragraph: text
//	image:     src, alt
//	button:    label, href
type Block struct {
	ID         string         `json:"id"`
	PagePath   string         `json:"page_path"`
	Type       BlockType      `json:"type"`
	Properties map[string]any `json:"properties"`
	OrderIndex int            `json:"order_index"`
	CreatedAt  time.Time      `json:"created_at"`
}

// BlockType identifies which property keys of a block are meaningful.
type BlockType string

const (
	BlockHeading   BlockType = "heading"
	BlockParagraph BlockType = "paragraph"
	BlockImage     BlockType = "image"
	BlockButton    BlockType = "button"
)

// BlockTypes lists every valid block type.
func BlockTypes() []BlockType {
	return []BlockType{BlockHeading, BlockParagraph, BlockImage, BlockButton}
}

// Valid reports whether t is a member of the closed block type set.
func (t BlockType) Valid() bool {
	switch t {
	case BlockHeading, BlockParagraph, BlockImage, BlockButton:
		return true
	}
	return false
}

// NewBlock creates a block with a fresh id and a non-nil properties bag.
func NewBlock(pagePath string, t BlockType, properties map[string]any) Block {
	if properties == nil {
		properties = make(map[string]any)
	}
	return Block{
		ID:         uuid.NewString(),
		PagePath:   pagePath,
		Type:       t,
		Properties: properties,
		CreatedAt:  time.Now().UTC(),
	}
}

// Validate checks the invariants a block must satisfy before it is persisted.
func (b Block) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("block has empty id")
	}
	if b.PagePath == "" || !strings.HasPrefix(b.PagePath, "/") {
		return fmt.Errorf("block %s: page path %q must start with '/'", b.ID, b.PagePath)
	}
	if !b.Type.Valid() {
		return fmt.Errorf("block %s: unknown type %q", b.ID, b.Type)
	}
	return nil
}

// Text returns the searchable text for this block, derived from the
// type-relevant property keys. Used for full-text indexing.
func (b Block) Text() string {
	switch b.Type {
	case BlockHeading, BlockParagraph:
		return StringProp(b.Properties, "text")
	case BlockImage:
		return StringProp(b.Properties, "alt")
	case BlockButton:
		return StringProp(b.Properties, "label")
	}
	return ""
}

// StringProp extracts a string property, tolerating missing keys and
// non-string values.
func StringProp(props map[string]any, key string) string {
	if props == nil {
		return ""
	}
	if v, ok := props[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// IntProp extracts an integer property. JSON round-trips store numbers as
// float64, so both forms are accepted.
func IntProp(props map[string]any, key string, fallback int) int {
	if props == nil {
		return fallback
	}
	switch v := props[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

// ClampHeadingLevel forces a heading level into the valid 1..6 range.
func ClampHeadingLevel(level int) int {
	if level < 1 {
		return 1
	}
	if level > 6 {
		return 6
	}
	return level
}
