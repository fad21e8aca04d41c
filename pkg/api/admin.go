package api

import (
	_ "embed"
	"net/http"
	"strings"
)

//go:embed assets/admin.html
var adminShell string

// HandleAdminShell serves the embedded single-page admin UI. It previews
// pages in an iframe and talks to the JSON API and the event feed directly.
func (s *Server) HandleAdminShell(w http.ResponseWriter, r *http.Request) {
	page := strings.Replace(adminShell, "{{LOGO_URL}}", s.logoURL, 1)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(page)); err != nil {
		s.logger.Warnf("writing admin shell: %v", err)
	}
}
