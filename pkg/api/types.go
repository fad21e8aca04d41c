package api

import (
	"time"

	"github.com/pagecraft/pagecraft/pkg/core"
	"github.com/pagecraft/pagecraft/pkg/storage"
)

type ListPagesResponse struct {
	Pages []storage.PageInfo `json:"pages"`
	Count int                `json:"count"`
}

type PageBlocksResponse struct {
	Page    string       `json:"page"`
	Version int64        `json:"version"`
	Blocks  []core.Block `json:"blocks"`
	Count   int          `json:"count"`
}

// ReplaceBlocksRequest replaces a page's block list. BaseVersion carries the
// version the client last saw; a mismatch answers 409.
type ReplaceBlocksRequest struct {
	BaseVersion int64        `json:"base_version"`
	Blocks      []core.Block `json:"blocks"`
}

type ReplaceBlocksResponse struct {
	Page    string `json:"page"`
	Version int64  `json:"version"`
	Count   int    `json:"count"`
}

type ExtractResponse struct {
	Page      string `json:"page"`
	Extracted bool   `json:"extracted"`
	Version   int64  `json:"version"`
	Count     int    `json:"count"`
}

type RevisionsResponse struct {
	Page      string             `json:"page"`
	Revisions []storage.Revision `json:"revisions"`
	Count     int                `json:"count"`
}

type RestoreRequest struct {
	Page       string `json:"page"`
	RevisionID int64  `json:"revision_id"`
}

type LegacyItemsResponse struct {
	Page  string                   `json:"page"`
	Items []core.LegacyContentItem `json:"items"`
	Count int                      `json:"count"`
}

type MigrateLegacyResponse struct {
	Page     string `json:"page"`
	Migrated int    `json:"migrated"`
	Version  int64  `json:"version"`
}

type EditorSessionResponse struct {
	Page       string       `json:"page"`
	State      string       `json:"state"`
	Version    int64        `json:"version"`
	PreviewKey string       `json:"preview_key"`
	Blocks     []core.Block `json:"blocks"`
	Draft      []core.Block `json:"draft,omitempty"`
}

// EditorDraftRequest updates a session's draft before saving.
type EditorDraftRequest struct {
	Blocks []core.Block `json:"blocks"`
}

type UploadResponse struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
	URL    string `json:"url"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}
