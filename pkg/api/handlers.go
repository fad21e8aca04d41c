package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pagecraft/pagecraft/pkg/core"
	"github.com/pagecraft/pagecraft/pkg/editor"
	"github.com/pagecraft/pagecraft/pkg/realtime"
	"github.com/pagecraft/pagecraft/pkg/search"
	"github.com/pagecraft/pagecraft/pkg/storage"
	"github.com/pagecraft/pagecraft/pkg/version"
)

// pageParam reads and validates the ?page= query parameter.
func pageParam(r *http.Request) (string, error) {
	page := r.URL.Query().Get("page")
	if page == "" {
		return "", fmt.Errorf("query parameter 'page' is required")
	}
	if page[0] != '/' {
		return "", fmt.Errorf("page path must start with '/'")
	}
	return page, nil
}

func (s *Server) HandleListPages(w http.ResponseWriter, r *http.Request) {
	pages, err := s.store.ListPages()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to list pages", err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, ListPagesResponse{
		Pages: pages,
		Count: len(pages),
	})
}

func (s *Server) HandlePageBlocks(w http.ResponseWriter, r *http.Request) {
	page, err := pageParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid page", err.Error())
		return
	}

	blocks, err := s.store.FetchPageBlocks(page)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to fetch blocks", err.Error())
		return
	}
	pageVersion, err := s.store.PageVersion(page)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to fetch version", err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, PageBlocksResponse{
		Page:    page,
		Version: pageVersion,
		Blocks:  blocks,
		Count:   len(blocks),
	})
}

func (s *Server) HandleReplacePageBlocks(w http.ResponseWriter, r *http.Request) {
	page, err := pageParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid page", err.Error())
		return
	}

	var req ReplaceBlocksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid body", err.Error())
		return
	}

	newVersion, err := s.store.ReplacePageBlocks(page, req.Blocks, req.BaseVersion)
	if errors.Is(err, storage.ErrStaleVersion) {
		s.writeError(w, http.StatusConflict, "Stale version", err.Error())
		return
	}
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Failed to replace blocks", err.Error())
		return
	}

	s.publish(realtime.ActionReplace, page, newVersion, "", len(req.Blocks))
	s.writeJSON(w, http.StatusOK, ReplaceBlocksResponse{
		Page:    page,
		Version: newVersion,
		Count:   len(req.Blocks),
	})
}

func (s *Server) HandleSaveBlock(w http.ResponseWriter, r *http.Request) {
	var block core.Block
	if err := json.NewDecoder(r.Body).Decode(&block); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid body", err.Error())
		return
	}

	if block.ID == "" {
		created := core.NewBlock(block.PagePath, block.Type, block.Properties)
		created.OrderIndex = block.OrderIndex
		block = created
	}
	if block.CreatedAt.IsZero() {
		block.CreatedAt = time.Now().UTC()
	}
	if err := block.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid block", err.Error())
		return
	}

	pageVersion, err := s.store.SaveBlock(block)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to save block", err.Error())
		return
	}

	s.publish(realtime.ActionUpdate, block.PagePath, pageVersion, block.ID, 1)
	s.writeJSON(w, http.StatusOK, block)
}

func (s *Server) HandleDeleteBlock(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "Invalid path", "Block id is required")
		return
	}

	block, exists, err := s.store.GetBlock(id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to fetch block", err.Error())
		return
	}
	if !exists {
		s.writeError(w, http.StatusNotFound, "Block not found",
			fmt.Sprintf("Block '%s' does not exist", id))
		return
	}

	pageVersion, err := s.store.DeleteBlock(id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to delete block", err.Error())
		return
	}

	s.publish(realtime.ActionDelete, block.PagePath, pageVersion, id, 1)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HandleExtractPage(w http.ResponseWriter, r *http.Request) {
	if s.extractor == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Extractor unavailable",
			"No extraction engine is configured")
		return
	}

	page, err := pageParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid page", err.Error())
		return
	}

	extracted, err := s.extractor.ExtractPage(r.Context(), page)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "Extraction failed", err.Error())
		return
	}

	pageVersion, err := s.store.PageVersion(page)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to fetch version", err.Error())
		return
	}
	blocks, err := s.store.FetchPageBlocks(page)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to fetch blocks", err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, ExtractResponse{
		Page:      page,
		Extracted: extracted,
		Version:   pageVersion,
		Count:     len(blocks),
	})
}

func (s *Server) HandlePageRevisions(w http.ResponseWriter, r *http.Request) {
	page, err := pageParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid page", err.Error())
		return
	}

	revisions, err := s.store.PageRevisions(page, 50)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to list revisions", err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, RevisionsResponse{
		Page:      page,
		Revisions: revisions,
		Count:     len(revisions),
	})
}

func (s *Server) HandleRestoreRevision(w http.ResponseWriter, r *http.Request) {
	var req RestoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid body", err.Error())
		return
	}
	if req.Page == "" || req.RevisionID == 0 {
		s.writeError(w, http.StatusBadRequest, "Invalid body",
			"Fields 'page' and 'revision_id' are required")
		return
	}

	newVersion, err := s.store.RestoreRevision(req.Page, req.RevisionID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Restore failed", err.Error())
		return
	}

	blocks, err := s.store.FetchPageBlocks(req.Page)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to fetch blocks", err.Error())
		return
	}

	s.publish(realtime.ActionReplace, req.Page, newVersion, "", len(blocks))
	s.writeJSON(w, http.StatusOK, ReplaceBlocksResponse{
		Page:    req.Page,
		Version: newVersion,
		Count:   len(blocks),
	})
}

func (s *Server) HandleListLegacyItems(w http.ResponseWriter, r *http.Request) {
	page, err := pageParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid page", err.Error())
		return
	}

	items, err := s.store.FetchLegacyItems(page)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to fetch legacy items", err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, LegacyItemsResponse{
		Page:  page,
		Items: items,
		Count: len(items),
	})
}

func (s *Server) HandleSaveLegacyItem(w http.ResponseWriter, r *http.Request) {
	var item core.LegacyContentItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid body", err.Error())
		return
	}
	if item.PagePath == "" || item.Selector == "" {
		s.writeError(w, http.StatusBadRequest, "Invalid item",
			"Fields 'page_path' and 'selector' are required")
		return
	}

	if err := s.store.SaveLegacyItem(item); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to save legacy item", err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, item)
}

func (s *Server) HandleMigrateLegacyItems(w http.ResponseWriter, r *http.Request) {
	page, err := pageParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid page", err.Error())
		return
	}

	migrated, err := s.store.MigrateLegacyItems(page)
	if errors.Is(err, storage.ErrPageNotFound) {
		s.writeError(w, http.StatusNotFound, "No legacy content",
			fmt.Sprintf("Page '%s' has no legacy items", page))
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Migration failed", err.Error())
		return
	}

	pageVersion, err := s.store.PageVersion(page)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to fetch version", err.Error())
		return
	}

	s.publish(realtime.ActionReplace, page, pageVersion, "", migrated)
	s.writeJSON(w, http.StatusOK, MigrateLegacyResponse{
		Page:     page,
		Migrated: migrated,
		Version:  pageVersion,
	})
}

func (s *Server) editorSession(w http.ResponseWriter, r *http.Request, open bool) *editor.Session {
	if s.sessions == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Editor unavailable",
			"No editor session manager is configured")
		return nil
	}

	page, err := pageParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid page", err.Error())
		return nil
	}

	if open {
		session, err := s.sessions.Open(page)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "Failed to open session", err.Error())
			return nil
		}
		return session
	}

	session := s.sessions.Get(page)
	if session == nil {
		s.writeError(w, http.StatusNotFound, "No session",
			fmt.Sprintf("No editor session open for '%s'", page))
	}
	return session
}

func (s *Server) writeSession(w http.ResponseWriter, session *editor.Session) {
	s.writeJSON(w, http.StatusOK, EditorSessionResponse{
		Page:       session.PagePath(),
		State:      string(session.State()),
		Version:    session.Version(),
		PreviewKey: session.PreviewKey(),
		Blocks:     session.Blocks(),
		Draft:      session.Draft(),
	})
}

func (s *Server) HandleEditorOpen(w http.ResponseWriter, r *http.Request) {
	if session := s.editorSession(w, r, true); session != nil {
		s.writeSession(w, session)
	}
}

func (s *Server) HandleEditorSession(w http.ResponseWriter, r *http.Request) {
	if session := s.editorSession(w, r, false); session != nil {
		s.writeSession(w, session)
	}
}

func (s *Server) HandleEditorEdit(w http.ResponseWriter, r *http.Request) {
	session := s.editorSession(w, r, false)
	if session == nil {
		return
	}
	if err := session.Edit(); err != nil {
		s.writeError(w, http.StatusConflict, "Invalid transition", err.Error())
		return
	}
	s.writeSession(w, session)
}

func (s *Server) HandleEditorSave(w http.ResponseWriter, r *http.Request) {
	session := s.editorSession(w, r, false)
	if session == nil {
		return
	}

	// The body is optional; an absent draft saves the session's current one.
	var req EditorDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "Invalid body", err.Error())
		return
	}
	if req.Blocks != nil {
		if err := session.SetDraft(req.Blocks); err != nil {
			s.writeError(w, http.StatusConflict, "Invalid transition", err.Error())
			return
		}
	}

	err := session.Save()
	if errors.Is(err, storage.ErrStaleVersion) {
		s.writeError(w, http.StatusConflict, "Stale version", err.Error())
		return
	}
	if errors.Is(err, editor.ErrNotEditing) {
		s.writeError(w, http.StatusConflict, "Invalid transition", err.Error())
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Save failed", err.Error())
		return
	}
	s.writeSession(w, session)
}

func (s *Server) HandleEditorCancel(w http.ResponseWriter, r *http.Request) {
	session := s.editorSession(w, r, false)
	if session == nil {
		return
	}
	if err := session.Cancel(); err != nil {
		s.writeError(w, http.StatusConflict, "Invalid transition", err.Error())
		return
	}
	s.writeSession(w, session)
}

func (s *Server) HandleSearch(w http.ResponseWriter, r *http.Request) {
	params := search.ParseParams(r.URL.Query())
	if params.Query == "" {
		s.writeError(w, http.StatusBadRequest, "Missing query parameter",
			"Query parameter 'q' is required")
		return
	}

	results, err := search.NewService(s.store).Search(params)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Search failed", err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if s.uploads == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Uploads unavailable",
			"No upload store is configured")
		return
	}

	bucket := r.PathValue("bucket")
	if bucket == "" {
		s.writeError(w, http.StatusBadRequest, "Invalid path", "Bucket is required")
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid multipart body", err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Missing file", "Form field 'file' is required")
		return
	}
	defer func() {
		if err := file.Close(); err != nil {
			s.logger.Warnf("closing upload: %v", err)
		}
	}()

	stored, err := s.uploads.Upload(bucket, header.Filename, file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Upload failed", err.Error())
		return
	}

	s.writeJSON(w, http.StatusCreated, UploadResponse{
		Bucket: bucket,
		Name:   stored,
		URL:    s.uploads.PublicURL(bucket, stored),
	})
}

func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to get stats", err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}

// HandlePreview redirects to the public page, carrying the session's
// cache-busting key so the browser refetches instead of serving a cached
// render.
func (s *Server) HandlePreview(w http.ResponseWriter, r *http.Request) {
	page, err := pageParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid page", err.Error())
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" && s.sessions != nil {
		if session := s.sessions.Get(page); session != nil {
			key = session.PreviewKey()
		}
	}

	target := s.siteBaseURL + page
	if key != "" {
		target += "?pk=" + url.QueryEscape(key)
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   version.APIVersion(),
	}

	s.writeJSON(w, http.StatusOK, health)
}
