package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pagecraft/pagecraft/pkg/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The admin shell may be served from the site origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsInitMessage is the first frame on every event feed connection.
type wsInitMessage struct {
	Type       string `json:"type"`
	PageFilter string `json:"page_filter,omitempty"`
}

// wsEventMessage wraps a page event for the feed.
type wsEventMessage struct {
	Type  string             `json:"type"`
	Event realtime.PageEvent `json:"event"`
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// HandleEventsWS streams page events over a websocket. An optional ?page=
// filter limits the feed to one page. The first frame is an init message,
// every following frame carries one event.
func (s *Server) HandleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Events unavailable",
			"No realtime hub is configured")
		return
	}

	pageFilter := r.URL.Query().Get("page")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("websocket upgrade failed: %v", err)
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			s.logger.Debugf("closing websocket: %v", err)
		}
	}()

	id, events := s.hub.Subscribe(pageFilter)
	defer s.hub.Unsubscribe(id)

	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return
	}
	if err := conn.WriteJSON(wsInitMessage{Type: "init", PageFilter: pageFilter}); err != nil {
		s.logger.Debugf("writing init message: %v", err)
		return
	}

	// Reader goroutine: surfaces client disconnects and discards frames.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
			if err := conn.WriteJSON(wsEventMessage{Type: "event", Event: ev}); err != nil {
				s.logger.Debugf("writing event: %v", err)
				return
			}
		case <-ping.C:
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
