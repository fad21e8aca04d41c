package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/google/uuid"
	"github.com/pagecraft/pagecraft/pkg/core"
	"github.com/pagecraft/pagecraft/pkg/db"
)

var (
	// ErrStaleVersion is returned when a replace carries a base version that
	// no longer matches the stored page version. The caller's edit was based
	// on content another session has since replaced.
	ErrStaleVersion = errors.New("page version is stale")

	// ErrPageNotFound is returned for operations on a page with no blocks
	// and no version row.
	ErrPageNotFound = errors.New("page not found")
)

// Store provides typed CRUD over the block model, scoped by page path.
// All multi-row mutations run inside a single transaction: a replace either
// lands completely or leaves the previous block list untouched.
type Store struct {
	db           *sql.DB
	revisionKeep int
}

// Open opens (and migrates) the pagecraft database at dbPath.
func Open(dbPath string) (*Store, error) {
	sqlDB, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 30000",
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = memory",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
	}

	if err := db.Initialize(sqlDB); err != nil {
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return &Store{db: sqlDB, revisionKeep: 20}, nil
}

// SetRevisionRetention sets how many replace snapshots are kept per page.
// Zero disables snapshots entirely.
func (s *Store) SetRevisionRetention(n int) {
	s.revisionKeep = n
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying handle for migrations and maintenance commands.
func (s *Store) DB() *sql.DB {
	return s.db
}

// FetchPageBlocks returns the ordered block list for a page. A page with no
// blocks yields an empty slice, not an error.
func (s *Store) FetchPageBlocks(pagePath string) ([]core.Block, error) {
	rows, err := s.db.Query(`
		SELECT id, page_path, type, properties, order_idx, created_at
		FROM blocks
		WHERE page_path = ?
		ORDER BY order_idx`, pagePath)
	if err != nil {
		return nil, fmt.Errorf("querying blocks for %s: %w", pagePath, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			fmt.Printf("Warning: failed to close rows: %v\n", err)
		}
	}()

	blocks := []core.Block{}
	for rows.Next() {
		block, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}

	return blocks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlock(row rowScanner) (core.Block, error) {
	var b core.Block
	var blockType, propsJSON string
	var createdAt time.Time

	if err := row.Scan(&b.ID, &b.PagePath, &blockType, &propsJSON, &b.OrderIndex, &createdAt); err != nil {
		return core.Block{}, fmt.Errorf("scanning block row: %w", err)
	}

	var props map[string]any
	if err := json.Unmarshal([]byte(propsJSON), &props); err != nil {
		return core.Block{}, fmt.Errorf("unmarshaling properties for block %s: %w", b.ID, err)
	}

	b.Type = core.BlockType(blockType)
	b.Properties = props
	b.CreatedAt = createdAt
	return b, nil
}

// ReplacePageBlocks replaces the full block list for a page in one
// transaction and bumps the page version. The previous list is archived as a
// revision before it is deleted.
//
// baseVersion implements optimistic concurrency: a replace whose baseVersion
// does not match the stored version fails with ErrStaleVersion and changes
// nothing. Pass a negative baseVersion to skip the check (bulk extraction).
//
// Returns the new page version.
func (s *Store) ReplacePageBlocks(pagePath string, blocks []core.Block, baseVersion int64) (int64, error) {
	for i := range blocks {
		if blocks[i].ID == "" {
			blocks[i].ID = uuid.NewString()
		}
		if blocks[i].CreatedAt.IsZero() {
			blocks[i].CreatedAt = time.Now().UTC()
		}
		blocks[i].PagePath = pagePath
		blocks[i].OrderIndex = i
		if err := blocks[i].Validate(); err != nil {
			return 0, fmt.Errorf("validating block %d: %w", i, err)
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				fmt.Printf("Warning: failed to rollback transaction: %v\n", err)
			}
		}
	}()

	var current int64
	err = tx.QueryRow("SELECT version FROM pages WHERE page_path = ?", pagePath).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("reading page version: %w", err)
	}

	if baseVersion >= 0 && baseVersion != current {
		return 0, fmt.Errorf("replacing blocks for %s (base %d, current %d): %w",
			pagePath, baseVersion, current, ErrStaleVersion)
	}

	if err := s.archivePageTx(tx, pagePath, current); err != nil {
		return 0, err
	}

	if _, err := tx.Exec(`
		DELETE FROM blocks_fts
		WHERE rowid IN (SELECT rowid FROM blocks WHERE page_path = ?)`, pagePath); err != nil {
		return 0, fmt.Errorf("clearing search index for %s: %w", pagePath, err)
	}
	if _, err := tx.Exec("DELETE FROM blocks WHERE page_path = ?", pagePath); err != nil {
		return 0, fmt.Errorf("deleting blocks for %s: %w", pagePath, err)
	}

	if err := insertBlocksTx(tx, blocks); err != nil {
		return 0, err
	}

	next := current + 1
	if _, err := tx.Exec(`
		INSERT INTO pages (page_path, version, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (page_path) DO UPDATE SET version = excluded.version, updated_at = excluded.updated_at`,
		pagePath, next, time.Now().UTC()); err != nil {
		return 0, fmt.Errorf("bumping version for %s: %w", pagePath, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing replace for %s: %w", pagePath, err)
	}
	committed = true
	return next, nil
}

func insertBlocksTx(tx *sql.Tx, blocks []core.Block) error {
	if len(blocks) == 0 {
		return nil
	}

	stmt, err := tx.Prepare(`
		INSERT INTO blocks (id, page_path, type, properties, order_idx, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			fmt.Printf("Warning: failed to close statement: %v\n", err)
		}
	}()

	ftsStmt, err := tx.Prepare(`
		INSERT INTO blocks_fts (rowid, text, page_path, type)
		VALUES ((SELECT rowid FROM blocks WHERE id = ?), ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing FTS insert: %w", err)
	}
	defer func() {
		if err := ftsStmt.Close(); err != nil {
			fmt.Printf("Warning: failed to close FTS statement: %v\n", err)
		}
	}()

	for _, b := range blocks {
		propsJSON, err := json.Marshal(b.Properties)
		if err != nil {
			return fmt.Errorf("marshaling properties for block %s: %w", b.ID, err)
		}
		if _, err := stmt.Exec(b.ID, b.PagePath, string(b.Type), string(propsJSON), b.OrderIndex, b.CreatedAt); err != nil {
			return fmt.Errorf("inserting block %s: %w", b.ID, err)
		}
		if _, err := ftsStmt.Exec(b.ID, b.Text(), b.PagePath, string(b.Type)); err != nil {
			return fmt.Errorf("indexing block %s: %w", b.ID, err)
		}
	}

	return nil
}

// SaveBlock upserts a single block by id without touching sibling ordering.
// The page version is bumped so editor saves based on the previous version
// fail their stale check instead of silently overwriting the edit.
//
// Returns the new page version.
func (s *Store) SaveBlock(b core.Block) (int64, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	if err := b.Validate(); err != nil {
		return 0, fmt.Errorf("validating block: %w", err)
	}

	propsJSON, err := json.Marshal(b.Properties)
	if err != nil {
		return 0, fmt.Errorf("marshaling properties for block %s: %w", b.ID, err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				fmt.Printf("Warning: failed to rollback transaction: %v\n", err)
			}
		}
	}()

	if _, err := tx.Exec(`
		INSERT INTO blocks (id, page_path, type, properties, order_idx, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			page_path = excluded.page_path,
			type = excluded.type,
			properties = excluded.properties,
			order_idx = excluded.order_idx`,
		b.ID, b.PagePath, string(b.Type), string(propsJSON), b.OrderIndex, b.CreatedAt); err != nil {
		return 0, fmt.Errorf("upserting block %s: %w", b.ID, err)
	}

	if _, err := tx.Exec(`
		DELETE FROM blocks_fts
		WHERE rowid IN (SELECT rowid FROM blocks WHERE id = ?)`, b.ID); err != nil {
		return 0, fmt.Errorf("clearing search index for block %s: %w", b.ID, err)
	}
	if _, err := tx.Exec(`
		INSERT INTO blocks_fts (rowid, text, page_path, type)
		VALUES ((SELECT rowid FROM blocks WHERE id = ?), ?, ?, ?)`,
		b.ID, b.Text(), b.PagePath, string(b.Type)); err != nil {
		return 0, fmt.Errorf("indexing block %s: %w", b.ID, err)
	}

	next, err := bumpPageVersionTx(tx, b.PagePath)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing block %s: %w", b.ID, err)
	}
	committed = true
	return next, nil
}

// bumpPageVersionTx advances a page's version inside tx and returns the new
// value.
func bumpPageVersionTx(tx *sql.Tx, pagePath string) (int64, error) {
	var current int64
	err := tx.QueryRow("SELECT version FROM pages WHERE page_path = ?", pagePath).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("reading page version: %w", err)
	}

	next := current + 1
	if _, err := tx.Exec(`
		INSERT INTO pages (page_path, version, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (page_path) DO UPDATE SET version = excluded.version, updated_at = excluded.updated_at`,
		pagePath, next, time.Now().UTC()); err != nil {
		return 0, fmt.Errorf("bumping version for %s: %w", pagePath, err)
	}
	return next, nil
}

// GetBlock fetches one block by id. The bool reports whether it exists.
func (s *Store) GetBlock(id string) (core.Block, bool, error) {
	row := s.db.QueryRow(`
		SELECT id, page_path, type, properties, order_idx, created_at
		FROM blocks WHERE id = ?`, id)
	b, err := scanBlock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Block{}, false, nil
	}
	if err != nil {
		return core.Block{}, false, fmt.Errorf("fetching block %s: %w", id, err)
	}
	return b, true, nil
}

// DeleteBlock removes one block by id and bumps its page version, so open
// editor drafts notice the change on save. Deleting an unknown id is a no-op
// returning version zero.
func (s *Store) DeleteBlock(id string) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				fmt.Printf("Warning: failed to rollback transaction: %v\n", err)
			}
		}
	}()

	var pagePath string
	err = tx.QueryRow("SELECT page_path FROM blocks WHERE id = ?", id).Scan(&pagePath)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("fetching page for block %s: %w", id, err)
	}

	if _, err := tx.Exec(`
		DELETE FROM blocks_fts
		WHERE rowid IN (SELECT rowid FROM blocks WHERE id = ?)`, id); err != nil {
		return 0, fmt.Errorf("clearing search index for block %s: %w", id, err)
	}
	if _, err := tx.Exec("DELETE FROM blocks WHERE id = ?", id); err != nil {
		return 0, fmt.Errorf("deleting block %s: %w", id, err)
	}

	next, err := bumpPageVersionTx(tx, pagePath)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing delete of %s: %w", id, err)
	}
	committed = true
	return next, nil
}

// DeletePageBlocks clears a page's block list entirely. The page row and its
// version survive so concurrent editors still see a consistent version chain.
func (s *Store) DeletePageBlocks(pagePath string) error {
	_, err := s.ReplacePageBlocks(pagePath, nil, -1)
	if err != nil {
		return fmt.Errorf("clearing page %s: %w", pagePath, err)
	}
	return nil
}

// PageVersion returns the current version for a page, zero when the page has
// never been written.
func (s *Store) PageVersion(pagePath string) (int64, error) {
	var version int64
	err := s.db.QueryRow("SELECT version FROM pages WHERE page_path = ?", pagePath).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading version for %s: %w", pagePath, err)
	}
	return version, nil
}

// PageInfo summarizes one page for listings.
type PageInfo struct {
	PagePath   string    `json:"page_path"`
	Version    int64     `json:"version"`
	BlockCount int       `json:"block_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ListPages returns every known page with its version and block count,
// ordered by page path.
func (s *Store) ListPages() ([]PageInfo, error) {
	rows, err := s.db.Query(`
		SELECT p.page_path, p.version, p.updated_at,
		       (SELECT COUNT(*) FROM blocks b WHERE b.page_path = p.page_path)
		FROM pages p
		ORDER BY p.page_path`)
	if err != nil {
		return nil, fmt.Errorf("querying pages: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			fmt.Printf("Warning: failed to close rows: %v\n", err)
		}
	}()

	var pages []PageInfo
	for rows.Next() {
		var p PageInfo
		if err := rows.Scan(&p.PagePath, &p.Version, &p.UpdatedAt, &p.BlockCount); err != nil {
			return nil, fmt.Errorf("scanning page row: %w", err)
		}
		pages = append(pages, p)
	}

	return pages, rows.Err()
}

// SearchBlocks runs a full-text query across all pages' block text.
func (s *Store) SearchBlocks(query string, limit int) ([]core.Block, error) {
	if limit <= 0 {
		limit = 30
	}

	rows, err := s.db.Query(`
		SELECT b.id, b.page_path, b.type, b.properties, b.order_idx, b.created_at
		FROM blocks b
		JOIN blocks_fts fts ON b.rowid = fts.rowid
		WHERE blocks_fts MATCH ?
		ORDER BY bm25(blocks_fts), b.page_path, b.order_idx
		LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("searching blocks: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			fmt.Printf("Warning: failed to close rows: %v\n", err)
		}
	}()

	var blocks []core.Block
	for rows.Next() {
		block, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}

	return blocks, rows.Err()
}

// Stats returns row counts for the admin stats command.
func (s *Store) Stats() (map[string]any, error) {
	stats := make(map[string]any)

	counts := map[string]string{
		"total_blocks":   "SELECT COUNT(*) FROM blocks",
		"total_pages":    "SELECT COUNT(*) FROM pages",
		"legacy_items":   "SELECT COUNT(*) FROM legacy_content",
		"revisions_kept": "SELECT COUNT(*) FROM revisions",
	}
	for key, query := range counts {
		var n int
		if err := s.db.QueryRow(query).Scan(&n); err != nil {
			return nil, fmt.Errorf("counting %s: %w", key, err)
		}
		stats[key] = n
	}

	return stats, nil
}

// Optimize runs SQLite's query planner optimization.
func (s *Store) Optimize() error {
	_, err := s.db.Exec("PRAGMA optimize")
	return err
}

// Vacuum rebuilds the database file.
func (s *Store) Vacuum() error {
	_, err := s.db.Exec("VACUUM")
	return err
}

// WALCheckpoint truncates the write-ahead log.
func (s *Store) WALCheckpoint() error {
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}
