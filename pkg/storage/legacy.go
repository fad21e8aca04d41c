package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pagecraft/pagecraft/pkg/core"
)

// SaveLegacyItem upserts an element-click content record keyed by
// (page path, selector).
func (s *Store) SaveLegacyItem(item core.LegacyContentItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.PagePath == "" || item.Selector == "" {
		return fmt.Errorf("legacy item requires page path and selector")
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	stylesJSON, err := json.Marshal(item.Styles)
	if err != nil {
		return fmt.Errorf("marshaling styles: %w", err)
	}
	propsJSON, err := json.Marshal(item.Properties)
	if err != nil {
		return fmt.Errorf("marshaling properties: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO legacy_content (id, page_path, selector, section, name, content, image_url, styles, properties, order_idx, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (page_path, selector) DO UPDATE SET
			section = excluded.section,
			name = excluded.name,
			content = excluded.content,
			image_url = excluded.image_url,
			styles = excluded.styles,
			properties = excluded.properties,
			order_idx = excluded.order_idx`,
		item.ID, item.PagePath, item.Selector, item.Section, item.Name, item.Content,
		item.ImageURL, string(stylesJSON), string(propsJSON), item.OrderIndex, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting legacy item %s %s: %w", item.PagePath, item.Selector, err)
	}

	return nil
}

// FetchLegacyItems returns the legacy records for a page in extraction
// order. Style and property bags stored as malformed JSON decode to empty
// bags rather than failing the read.
func (s *Store) FetchLegacyItems(pagePath string) ([]core.LegacyContentItem, error) {
	rows, err := s.db.Query(`
		SELECT id, page_path, selector, section, name, content, image_url, styles, properties, order_idx, created_at
		FROM legacy_content
		WHERE page_path = ?
		ORDER BY order_idx`, pagePath)
	if err != nil {
		return nil, fmt.Errorf("querying legacy items for %s: %w", pagePath, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			fmt.Printf("Warning: failed to close rows: %v\n", err)
		}
	}()

	items := []core.LegacyContentItem{}
	for rows.Next() {
		var it core.LegacyContentItem
		var stylesRaw, propsRaw string
		if err := rows.Scan(&it.ID, &it.PagePath, &it.Selector, &it.Section, &it.Name,
			&it.Content, &it.ImageURL, &stylesRaw, &propsRaw, &it.OrderIndex, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning legacy row: %w", err)
		}
		it.Styles = core.DecodeBag(stylesRaw)
		it.Properties = core.DecodeBag(propsRaw)
		items = append(items, it)
	}

	return items, rows.Err()
}

// DeleteLegacyItems removes all legacy records for a page.
func (s *Store) DeleteLegacyItems(pagePath string) error {
	if _, err := s.db.Exec("DELETE FROM legacy_content WHERE page_path = ?", pagePath); err != nil {
		return fmt.Errorf("deleting legacy items for %s: %w", pagePath, err)
	}
	return nil
}

// MigrateLegacyItems converts a page's legacy records into blocks and
// replaces the page's block list with them. Sections without a block
// equivalent are skipped. Returns how many blocks were produced.
func (s *Store) MigrateLegacyItems(pagePath string) (int, error) {
	items, err := s.FetchLegacyItems(pagePath)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, fmt.Errorf("migrating %s: %w", pagePath, ErrPageNotFound)
	}

	var blocks []core.Block
	for _, item := range items {
		if block, ok := item.ToBlock(); ok {
			blocks = append(blocks, block)
		}
	}

	if _, err := s.ReplacePageBlocks(pagePath, blocks, -1); err != nil {
		return 0, err
	}

	return len(blocks), nil
}
