package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tdaniel1925/easemail-redux-sub002/internal/activity"
	"github.com/tdaniel1925/easemail-redux-sub002/internal/auth"
)

// handleStream serves the live activity feed over Server-Sent Events.
//
// Resume: the standard Last-Event-ID header wins, with a resume_after query
// parameter as a fallback for clients that cannot set headers. Either one,
// including an explicit 0, requests replay of all newer persisted events
// before live delivery begins. Without a cursor only new events flow.
//
// Every event frame carries the store id in the SSE id field, so browser
// EventSource reconnects resume automatically. A terminal stream.closed
// frame explains server-initiated closes before the connection ends.
func (c *ActivityController) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	scope, ok := auth.ScopeFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing scope")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	q := r.URL.Query()
	opts := activity.SubscribeOptions{
		Types:  parseTypes(q.Get("types")),
		Filter: q.Get("filter"),
	}
	if lastID := r.Header.Get("Last-Event-ID"); lastID != "" {
		opts.Replay = true
		opts.ResumeAfter = parseUint(lastID)
	} else if q.Has("resume_after") {
		opts.Replay = true
		opts.ResumeAfter = parseUint(q.Get("resume_after"))
	}

	sub, err := c.svc.Subscribe(r.Context(), scope, opts)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer c.svc.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.Duration(c.cfg.Stream.KeepAliveMs) * time.Millisecond
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			writeStreamClosed(w, sub.Reason())
			flusher.Flush()
			return
		case rec := <-sub.Events():
			if err := writeSSEEvent(w, rec); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprintf(w, ":keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes one event frame: id, event name, JSON data.
func writeSSEEvent(w http.ResponseWriter, rec activity.EventRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", rec.ID, rec.Type, data)
	return err
}

// writeStreamClosed writes the terminal frame for server-initiated closes.
func writeStreamClosed(w http.ResponseWriter, reason activity.CloseReason) {
	_, _ = fmt.Fprintf(w, "event:stream.closed\ndata:{\"reason\":%q}\n\n", string(reason))
}
