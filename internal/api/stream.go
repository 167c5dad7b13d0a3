package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/aristath/docforge/internal/events"
)

// StreamTask handles GET /api/task/{id}/stream. It pushes the task projection as
// server-sent events every interval and on every event of the task, and ends
// once the task reaches a terminal status.
func (h *Handler) StreamTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	var wake <-chan events.Event
	if h.bus != nil {
		ch, unsubscribe := h.bus.Subscribe(events.TopicTask, 64)
		defer unsubscribe()
		wake = ch
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		st, ok := h.tasks.Get(id)
		if !ok {
			writeEvent(w, errorResponse{Error: "task not found"})
			flusher.Flush()
			return
		}
		if err := writeEvent(w, st.Project()); err != nil {
			return
		}
		flusher.Flush()

		if st.Status.Terminal() {
			return
		}
		if !waitForChange(r, id, ticker.C, &wake) {
			return
		}
	}
}

// waitForChange blocks until the next tick or an event of task id. It returns
// false when the client has gone away.
func waitForChange(r *http.Request, id string, tick <-chan time.Time, wake *<-chan events.Event) bool {
	for {
		select {
		case <-r.Context().Done():
			return false
		case <-tick:
			return true
		case ev, ok := <-*wake:
			if !ok {
				*wake = nil
				continue
			}
			if ev.TaskID() == id {
				return true
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
