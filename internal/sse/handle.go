package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// HTTPHandle writes events to a text/event-stream response.
type HTTPHandle struct {
	mu        sync.Mutex
	w         io.Writer
	flusher   http.Flusher
	eventID   int64
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewHTTPHandle wraps an SSE response. w must implement http.Flusher.
func NewHTTPHandle(w http.ResponseWriter) (*HTTPHandle, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &HTTPHandle{
		w:       w,
		flusher: flusher,
		done:    make(chan struct{}),
	}, nil
}

// Send writes one event frame and flushes it.
func (h *HTTPHandle) Send(event string, data any) error {
	payload, err := encodePayload(data)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	h.eventID++
	if err := writeSSEWithID(h.w, h.eventID, event, payload); err != nil {
		return err
	}
	h.flusher.Flush()
	return nil
}

// writeRetry sends the reconnection hint. Called before the handle is shared.
func (h *HTTPHandle) writeRetry(ms int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := fmt.Fprintf(h.w, "retry: %d\n\n", ms); err != nil {
		return err
	}
	h.flusher.Flush()
	return nil
}

// Close marks the handle closed. The HTTP handler owning the response returns
// once Done fires, which ends the stream.
func (h *HTTPHandle) Close() error {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()
		close(h.done)
	})
	return nil
}

// Done is closed after Close.
func (h *HTTPHandle) Done() <-chan struct{} {
	return h.done
}

func encodePayload(data any) (string, error) {
	switch v := data.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("marshal event payload: %w", err)
		}
		return string(b), nil
	}
}

// writeSSEWithID writes a frame. Multi-line payloads become multiple data
// lines so newlines inside streamed tokens survive the transport.
func writeSSEWithID(w io.Writer, id int64, event, data string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "id: %d\nevent: %s\n", id, event)
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}
