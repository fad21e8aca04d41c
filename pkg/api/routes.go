package api

import (
	"net/http"
)

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	// Block store
	mux.HandleFunc("GET /api/pages", s.HandleListPages)
	mux.HandleFunc("GET /api/pages/blocks", s.HandlePageBlocks)
	mux.HandleFunc("PUT /api/pages/blocks", s.HandleReplacePageBlocks)
	mux.HandleFunc("POST /api/blocks", s.HandleSaveBlock)
	mux.HandleFunc("DELETE /api/blocks/{id}", s.HandleDeleteBlock)

	// Extraction and history
	mux.HandleFunc("POST /api/pages/extract", s.HandleExtractPage)
	mux.HandleFunc("GET /api/pages/revisions", s.HandlePageRevisions)
	mux.HandleFunc("POST /api/pages/restore", s.HandleRestoreRevision)

	// Legacy element-click content
	mux.HandleFunc("GET /api/legacy", s.HandleListLegacyItems)
	mux.HandleFunc("POST /api/legacy", s.HandleSaveLegacyItem)
	mux.HandleFunc("POST /api/legacy/migrate", s.HandleMigrateLegacyItems)

	// Editor sessions
	mux.HandleFunc("POST /api/editor/open", s.HandleEditorOpen)
	mux.HandleFunc("GET /api/editor/session", s.HandleEditorSession)
	mux.HandleFunc("POST /api/editor/edit", s.HandleEditorEdit)
	mux.HandleFunc("POST /api/editor/save", s.HandleEditorSave)
	mux.HandleFunc("POST /api/editor/cancel", s.HandleEditorCancel)

	// Search, events, uploads
	mux.HandleFunc("GET /api/search", s.HandleSearch)
	mux.HandleFunc("GET /api/events/ws", s.HandleEventsWS)
	mux.HandleFunc("POST /api/uploads/{bucket}", s.HandleUpload)
	mux.HandleFunc("GET /api/stats", s.HandleStats)

	// Admin shell, preview and assets
	mux.HandleFunc("GET /health", s.HandleHealth)
	mux.HandleFunc("GET /preview", s.HandlePreview)
	mux.HandleFunc("GET /{$}", s.HandleAdminShell)
	if s.uploads != nil {
		mux.Handle("GET /uploads/",
			http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.uploads.Root()))))
	}
}
