package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/pagecraft/pagecraft/pkg/core"
)

// Revision is a zstd-compressed snapshot of a page's block list, archived
// just before a replace deletes it. Revisions close the data-loss window of
// the old delete-then-insert flow: a bad replace can always be undone.
type Revision struct {
	ID         int64     `json:"id"`
	PagePath   string    `json:"page_path"`
	Version    int64     `json:"version"`
	BlockCount int       `json:"block_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// archivePageTx snapshots the page's current blocks inside the replace
// transaction. Pages with no blocks produce no revision.
func (s *Store) archivePageTx(tx *sql.Tx, pagePath string, version int64) error {
	if s.revisionKeep <= 0 {
		return nil
	}

	rows, err := tx.Query(`
		SELECT id, page_path, type, properties, order_idx, created_at
		FROM blocks
		WHERE page_path = ?
		ORDER BY order_idx`, pagePath)
	if err != nil {
		return fmt.Errorf("reading blocks to archive for %s: %w", pagePath, err)
	}

	var blocks []core.Block
	for rows.Next() {
		block, err := scanBlock(rows)
		if err != nil {
			if cerr := rows.Close(); cerr != nil {
				fmt.Printf("Warning: failed to close rows: %v\n", cerr)
			}
			return err
		}
		blocks = append(blocks, block)
	}
	if cerr := rows.Close(); cerr != nil {
		fmt.Printf("Warning: failed to close rows: %v\n", cerr)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading blocks to archive for %s: %w", pagePath, err)
	}

	if len(blocks) == 0 {
		return nil
	}

	snapshot, err := encodeSnapshot(blocks)
	if err != nil {
		return fmt.Errorf("encoding snapshot for %s: %w", pagePath, err)
	}

	if _, err := tx.Exec(`
		INSERT INTO revisions (page_path, version, block_count, snapshot, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		pagePath, version, len(blocks), snapshot, time.Now().UTC()); err != nil {
		return fmt.Errorf("archiving revision for %s: %w", pagePath, err)
	}

	if _, err := tx.Exec(`
		DELETE FROM revisions
		WHERE page_path = ? AND id NOT IN (
			SELECT id FROM revisions WHERE page_path = ? ORDER BY id DESC LIMIT ?
		)`, pagePath, pagePath, s.revisionKeep); err != nil {
		return fmt.Errorf("pruning revisions for %s: %w", pagePath, err)
	}

	return nil
}

func encodeSnapshot(blocks []core.Block) ([]byte, error) {
	raw, err := json.Marshal(blocks)
	if err != nil {
		return nil, fmt.Errorf("marshaling blocks: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd writer: %w", err)
	}
	defer func() {
		if err := enc.Close(); err != nil {
			fmt.Printf("Warning: failed to close zstd writer: %v\n", err)
		}
	}()

	return enc.EncodeAll(raw, nil), nil
}

func decodeSnapshot(snapshot []byte) ([]core.Block, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(snapshot, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing snapshot: %w", err)
	}

	var blocks []core.Block
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return blocks, nil
}

// PageRevisions lists archived revisions for a page, newest first.
func (s *Store) PageRevisions(pagePath string, limit int) ([]Revision, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT id, page_path, version, block_count, created_at
		FROM revisions
		WHERE page_path = ?
		ORDER BY id DESC
		LIMIT ?`, pagePath, limit)
	if err != nil {
		return nil, fmt.Errorf("querying revisions for %s: %w", pagePath, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			fmt.Printf("Warning: failed to close rows: %v\n", err)
		}
	}()

	var revisions []Revision
	for rows.Next() {
		var r Revision
		if err := rows.Scan(&r.ID, &r.PagePath, &r.Version, &r.BlockCount, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning revision row: %w", err)
		}
		revisions = append(revisions, r)
	}

	return revisions, rows.Err()
}

// RevisionBlocks decodes the block list stored in a revision.
func (s *Store) RevisionBlocks(id int64) ([]core.Block, error) {
	var snapshot []byte
	err := s.db.QueryRow("SELECT snapshot FROM revisions WHERE id = ?", id).Scan(&snapshot)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("revision %d: %w", id, ErrPageNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading revision %d: %w", id, err)
	}
	return decodeSnapshot(snapshot)
}

// RestoreRevision replaces the page's current blocks with the snapshot from
// the given revision. The replace itself archives the current state first,
// so a restore can also be undone. Returns the new page version.
func (s *Store) RestoreRevision(pagePath string, id int64) (int64, error) {
	blocks, err := s.RevisionBlocks(id)
	if err != nil {
		return 0, err
	}
	for i := range blocks {
		if blocks[i].PagePath != pagePath {
			return 0, fmt.Errorf("revision %d does not belong to %s", id, pagePath)
		}
	}
	return s.ReplacePageBlocks(pagePath, blocks, -1)
}
