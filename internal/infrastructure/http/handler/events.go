package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/apascualco/maestro/internal/application"
)

// EventsHandler streams orchestration events over SSE. An optional ?types=
// query holds a comma-separated allowlist of event types.
type EventsHandler struct {
	bus    *application.EventBus
	buffer int
}

func NewEventsHandler(bus *application.EventBus) *EventsHandler {
	return &EventsHandler{bus: bus, buffer: 64}
}

func (h *EventsHandler) Stream(c *gin.Context) {
	filter := parseTypeFilter(c.Query("types"))

	events, unsubscribe := h.bus.Subscribe(h.buffer)
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if filter != nil && !filter[ev.Type] {
				continue
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ev.Type, payload)
			c.Writer.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func parseTypeFilter(raw string) map[string]bool {
	if raw == "" {
		return nil
	}
	filter := make(map[string]bool)
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			filter[t] = true
		}
	}
	return filter
}
