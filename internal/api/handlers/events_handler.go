package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/cache"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/logger"
)

const eventWriteTimeout = 5 * time.Second

// EventsHandler pushes completed sync events to connected dashboards over
// a websocket so the UI refreshes without polling.
type EventsHandler struct {
	mu          sync.Mutex
	subscribers map[chan cache.SyncEvent]struct{}
}

func NewEventsHandler() *EventsHandler {
	return &EventsHandler{subscribers: make(map[chan cache.SyncEvent]struct{})}
}

// Broadcast fans one event out to every connected client. A slow client
// drops events rather than blocking the sync path.
func (h *EventsHandler) Broadcast(evt cache.SyncEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (h *EventsHandler) subscribe() chan cache.SyncEvent {
	ch := make(chan cache.SyncEvent, 8)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *EventsHandler) unsubscribe(ch chan cache.SyncEvent) {
	h.mu.Lock()
	delete(h.subscribers, ch)
	h.mu.Unlock()
}

// Stream upgrades the request and forwards sync events until the client
// disconnects.
func (h *EventsHandler) Stream(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		logger.WithComponent("events").Debugf("websocket accept failed: %v", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	// CloseRead rejects client frames and cancels the context on
	// disconnect; this stream is strictly server-to-client.
	ctx := conn.CloseRead(c.Request.Context())
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case evt := <-ch:
			if err := writeEvent(ctx, conn, evt); err != nil {
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt cache.SyncEvent) error {
	writeCtx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, evt)
}
