package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/curvebond/curvegate/internal/pkg/logger"
	"github.com/curvebond/curvegate/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const pingPeriod = 15 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type EventsHandler struct {
	journal *service.EventJournal
}

func NewEventsHandler(journal *service.EventJournal) *EventsHandler {
	return &EventsHandler{journal: journal}
}

func (h *EventsHandler) List(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	events, err := h.journal.List(c.Request.Context(), limit)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// Stream pushes journal entries over a websocket as they happen. Slow readers
// miss events rather than backing up the journal.
func (h *EventsHandler) Stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err.Error())
		return
	}
	defer conn.Close()

	id, events := h.journal.Subscribe()
	defer h.journal.Unsubscribe(id)

	// If we receive no data (or pong) within pingPeriod plus a buffer, we
	// assume the peer is gone.
	readTimeout := pingPeriod + 10*time.Second
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	// Reader goroutine: drain control frames and detect disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
