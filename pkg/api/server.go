package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pagecraft/pagecraft/pkg/editor"
	"github.com/pagecraft/pagecraft/pkg/log"
	"github.com/pagecraft/pagecraft/pkg/realtime"
	"github.com/pagecraft/pagecraft/pkg/storage"
	"github.com/pagecraft/pagecraft/pkg/uploads"
)

// PageExtractor runs one extraction pass for a page.
type PageExtractor interface {
	ExtractPage(ctx context.Context, pagePath string) (bool, error)
}

// Options bundles the server's collaborators. Hub, Extractor and Uploads
// may be nil; the matching endpoints then answer 503.
type Options struct {
	Store     *storage.Store
	Hub       *realtime.Hub
	Extractor PageExtractor
	Uploads   *uploads.Store
	Sessions  *editor.Manager

	// SiteBaseURL is the public site origin previews redirect to.
	SiteBaseURL string
	// LogoURL is handed to the admin shell.
	LogoURL string
}

// Server is the JSON API over the block store plus the websocket event feed
// and the embedded admin shell.
type Server struct {
	store     *storage.Store
	hub       *realtime.Hub
	extractor PageExtractor
	uploads   *uploads.Store
	sessions  *editor.Manager

	siteBaseURL string
	logoURL     string
	logger      *log.Logger
}

// NewServer creates an API server.
func NewServer(opts Options) *Server {
	return &Server{
		store:       opts.Store,
		hub:         opts.Hub,
		extractor:   opts.Extractor,
		uploads:     opts.Uploads,
		sessions:    opts.Sessions,
		siteBaseURL: opts.SiteBaseURL,
		logoURL:     opts.LogoURL,
		logger:      log.ForComponent("api"),
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Errorf("encoding JSON response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, error, message string) {
	response := ErrorResponse{
		Error:   error,
		Message: message,
	}
	s.writeJSON(w, status, response)
}

// publish sends a page event when a hub is attached.
func (s *Server) publish(action realtime.Action, pagePath string, version int64, blockID string, blockCount int) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(realtime.PageEvent{
		Action:     action,
		PagePath:   pagePath,
		Version:    version,
		BlockID:    blockID,
		BlockCount: blockCount,
		OccurredAt: time.Now().UTC(),
	})
}

// CorsMiddleware allows the editor bundle served from the site origin to
// call the API directly.
func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
