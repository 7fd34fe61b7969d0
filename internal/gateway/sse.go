package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/stewardhq/steward/pkg/models"
)

// sseWriter frames turn events as Server-Sent Events and flushes each frame
// immediately so clients see deltas as they happen.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEWriter prepares the response for event streaming. Returns an error if
// the underlying writer cannot flush incrementally.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher}, nil
}

// WriteEvent ships one event frame: event type, sequence as the frame id, and
// the JSON body on the data line.
func (s *sseWriter) WriteEvent(event models.TurnEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\nid: %d\ndata: %s\n\n", event.Type, event.Sequence, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
