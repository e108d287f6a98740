package notification

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/deadloked8999/exeltest/internal/logger"
)

func writeSSE(w http.ResponseWriter, flusher http.Flusher, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// ServeSSE streams userID's events until the client goes away.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request, userID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events, cancel := h.Subscribe(userID)
	defer cancel()
	log := logger.Module("notification").WithField("user_id", userID)
	log.Debug("sse connected")
	defer log.Debug("sse disconnected")

	if err := writeSSE(w, flusher, Event{Type: EventConnected, Time: time.Now()}); err != nil {
		return
	}
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSE(w, flusher, ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := writeSSE(w, flusher, Event{Type: EventPing, Time: time.Now()}); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
