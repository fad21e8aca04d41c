package editor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pagecraft/pagecraft/pkg/core"
	"github.com/pagecraft/pagecraft/pkg/log"
	"github.com/pagecraft/pagecraft/pkg/realtime"
	"github.com/pagecraft/pagecraft/pkg/storage"
)

// State names a phase of an editing session.
type State string

const (
	// StateLoading covers the initial fetch and every refetch between
	// transitions. The preview surface shows a spinner here.
	StateLoading State = "loading"
	// StatePreview shows the published block list, read only.
	StatePreview State = "preview"
	// StateEditing holds a draft copy of the list plus the version it was
	// branched from.
	StateEditing State = "editing"
)

var (
	// ErrNotPreview rejects Edit outside the preview state.
	ErrNotPreview = errors.New("session is not previewing")
	// ErrNotEditing rejects Save and Cancel outside the editing state.
	ErrNotEditing = errors.New("session is not editing")
)

// changeDebounce is the window in which only the first change notification
// of a burst triggers a refetch.
const changeDebounce = time.Second

// Session is one operator's editing surface for one page. It mirrors the
// published block list, tracks a draft while editing, and listens to the
// realtime hub so outside changes show up without a manual reload.
//
// Every transition that lands back in preview rotates the cache-busting
// preview key, forcing the embedded preview to remount with fresh content.
type Session struct {
	store    *storage.Store
	hub      *realtime.Hub
	pagePath string
	logger   *log.Logger

	mu          sync.Mutex
	state       State
	blocks      []core.Block
	version     int64
	draft       []core.Block
	baseVersion int64
	previewKey  string
	lastChange  time.Time

	subID     uint64
	closeOnce sync.Once
	stop      chan struct{}
	stopped   chan struct{}

	now func() time.Time
}

// NewSession opens a session for pagePath, performs the initial fetch and
// subscribes to the hub (which may be nil). The returned session is in the
// preview state. Callers must Close it.
func NewSession(store *storage.Store, hub *realtime.Hub, pagePath string) (*Session, error) {
	s := &Session{
		store:      store,
		hub:        hub,
		pagePath:   pagePath,
		logger:     log.ForComponent("editor"),
		state:      StateLoading,
		previewKey: uuid.NewString(),
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
		now:        time.Now,
	}

	if err := s.refresh(); err != nil {
		return nil, fmt.Errorf("loading page %s: %w", pagePath, err)
	}

	s.mu.Lock()
	s.state = StatePreview
	s.mu.Unlock()

	if hub != nil {
		id, ch := hub.Subscribe(pagePath)
		s.subID = id
		go s.watch(ch)
	} else {
		close(s.stopped)
	}

	return s, nil
}

// Close unsubscribes from the hub and stops the watcher.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		if s.hub != nil {
			s.hub.Unsubscribe(s.subID)
		}
	})
	<-s.stopped
}

func (s *Session) watch(ch <-chan realtime.PageEvent) {
	defer close(s.stopped)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
			s.handleChange()
		case <-s.stop:
			return
		}
	}
}

// handleChange refetches on the first notification of a burst and drops the
// rest of the burst.
func (s *Session) handleChange() {
	s.mu.Lock()
	now := s.now()
	if now.Sub(s.lastChange) < changeDebounce {
		s.mu.Unlock()
		return
	}
	s.lastChange = now
	s.mu.Unlock()

	if err := s.refresh(); err != nil {
		s.logger.Errorf("refreshing %s after change: %v", s.pagePath, err)
	}
}

// refresh reloads the published blocks and version from the store.
func (s *Session) refresh() error {
	blocks, err := s.store.FetchPageBlocks(s.pagePath)
	if err != nil {
		return fmt.Errorf("fetching blocks for %s: %w", s.pagePath, err)
	}
	version, err := s.store.PageVersion(s.pagePath)
	if err != nil {
		return fmt.Errorf("fetching version for %s: %w", s.pagePath, err)
	}

	s.mu.Lock()
	s.blocks = blocks
	s.version = version
	s.mu.Unlock()
	return nil
}

// Edit branches a draft from the published list and enters the editing
// state. The draft carries the version it was branched from so a concurrent
// writer is detected at save time.
func (s *Session) Edit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePreview {
		return fmt.Errorf("entering edit on %s: %w", s.pagePath, ErrNotPreview)
	}

	s.draft = cloneBlocks(s.blocks)
	s.baseVersion = s.version
	s.state = StateEditing
	s.previewKey = uuid.NewString()
	return nil
}

// SetDraft replaces the working copy. Only valid while editing.
func (s *Session) SetDraft(blocks []core.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateEditing {
		return fmt.Errorf("updating draft on %s: %w", s.pagePath, ErrNotEditing)
	}
	s.draft = cloneBlocks(blocks)
	return nil
}

// Save persists the draft with an optimistic-concurrency check, publishes
// the change and returns to preview. When another writer got there first the
// session stays in editing and the error unwraps to storage.ErrStaleVersion,
// so the operator decides what happens to the draft.
func (s *Session) Save() error {
	s.mu.Lock()
	if s.state != StateEditing {
		s.mu.Unlock()
		return fmt.Errorf("saving %s: %w", s.pagePath, ErrNotEditing)
	}
	draft := cloneBlocks(s.draft)
	base := s.baseVersion
	s.state = StateLoading
	s.mu.Unlock()

	version, err := s.store.ReplacePageBlocks(s.pagePath, draft, base)
	if err != nil {
		s.mu.Lock()
		s.state = StateEditing
		s.mu.Unlock()
		return fmt.Errorf("saving %s: %w", s.pagePath, err)
	}

	if s.hub != nil {
		s.hub.Publish(realtime.PageEvent{
			Action:     realtime.ActionReplace,
			PagePath:   s.pagePath,
			Version:    version,
			BlockCount: len(draft),
		})
	}

	if err := s.refresh(); err != nil {
		s.logger.Errorf("refreshing %s after save: %v", s.pagePath, err)
	}

	s.mu.Lock()
	s.draft = nil
	s.state = StatePreview
	s.previewKey = uuid.NewString()
	// The publish above echoes back through our own subscription; the
	// refetch already happened, so start the debounce window now.
	s.lastChange = s.now()
	s.mu.Unlock()

	s.logger.Debugf("saved %s at version %d", s.pagePath, version)
	return nil
}

// Cancel discards the draft, refetches and returns to preview.
func (s *Session) Cancel() error {
	s.mu.Lock()
	if s.state != StateEditing {
		s.mu.Unlock()
		return fmt.Errorf("cancelling %s: %w", s.pagePath, ErrNotEditing)
	}
	s.state = StateLoading
	s.mu.Unlock()

	if err := s.refresh(); err != nil {
		s.logger.Errorf("refreshing %s after cancel: %v", s.pagePath, err)
	}

	s.mu.Lock()
	s.draft = nil
	s.state = StatePreview
	s.previewKey = uuid.NewString()
	s.mu.Unlock()
	return nil
}

// PagePath returns the page this session edits.
func (s *Session) PagePath() string {
	return s.pagePath
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PreviewKey returns the current cache-busting key for the preview iframe.
func (s *Session) PreviewKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previewKey
}

// Version returns the published page version the session last saw.
func (s *Session) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Blocks returns a copy of the published block list.
func (s *Session) Blocks() []core.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneBlocks(s.blocks)
}

// Draft returns a copy of the working list, nil outside editing.
func (s *Session) Draft() []core.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateEditing {
		return nil
	}
	return cloneBlocks(s.draft)
}

func cloneBlocks(blocks []core.Block) []core.Block {
	out := make([]core.Block, len(blocks))
	copy(out, blocks)
	for i := range out {
		props := make(map[string]any, len(blocks[i].Properties))
		for k, v := range blocks[i].Properties {
			props[k] = v
		}
		out[i].Properties = props
	}
	return out
}
