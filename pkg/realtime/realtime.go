package realtime

// Package realtime provides a lightweight in-process publish/subscribe hub
// that fans page change events out to multiple listeners (editor sessions,
// WebSocket feeds). Every open editor for a page subscribes with that page's
// path; a save from any session notifies the rest, which re-fetch and stay
// eventually consistent.
//
// Design notes:
//   - Best-effort fan-out: a listener whose buffer is full drops the event
//     (never backpressures the writer that just persisted).
//   - No persistence or replay; the store is the source of truth and a
//     listener that missed events catches up on its next fetch.

import (
	"sync"
	"time"
)

// Action identifies what happened to a page's block list.
type Action string

const (
	ActionInsert  Action = "insert"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionReplace Action = "replace"
)

// PageEvent describes a committed change to one page's block list.
type PageEvent struct {
	Action     Action    `json:"action"`
	PagePath   string    `json:"page_path"`
	Version    int64     `json:"version,omitempty"`
	BlockID    string    `json:"block_id,omitempty"`
	BlockCount int       `json:"block_count,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type listener struct {
	pagePath string // empty means all pages
	ch       chan PageEvent
}

// Hub is a concurrency-safe fan-out dispatcher for page events.
type Hub struct {
	mu        sync.RWMutex
	listeners map[uint64]listener
	nextID    uint64
	bufSize   int
}

// NewHub constructs a hub with the given per-listener buffer size.
// If bufSize <= 0, a default of 32 is used.
func NewHub(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = 32
	}
	return &Hub{
		listeners: make(map[uint64]listener),
		bufSize:   bufSize,
	}
}

// Subscribe registers a listener for events on one page. An empty pagePath
// receives events for every page. Callers must Unsubscribe(id) when done.
func (h *Hub) Subscribe(pagePath string) (uint64, <-chan PageEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan PageEvent, h.bufSize)
	h.listeners[id] = listener{pagePath: pagePath, ch: ch}
	return id, ch
}

// Unsubscribe removes a listener and closes its channel. Safe to call with
// unknown ids.
func (h *Hub) Unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if l, ok := h.listeners[id]; ok {
		delete(h.listeners, id)
		close(l.ch)
	}
}

// Publish delivers an event to every matching listener (best effort).
func (h *Hub) Publish(event PageEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, l := range h.listeners {
		if l.pagePath != "" && l.pagePath != event.PagePath {
			continue
		}
		select {
		case l.ch <- event:
		default:
			// Drop for slow listener.
		}
	}
}

// Size returns the current number of active listeners.
func (h *Hub) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}
