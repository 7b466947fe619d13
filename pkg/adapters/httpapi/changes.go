package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aretw0/humus/pkg/core"
)

type changeEvent struct {
	Seq     uint64         `json:"seq"`
	ID      string         `json:"id"`
	Rev     string         `json:"rev"`
	Type    core.EventType `json:"type"`
	Deleted bool           `json:"deleted,omitempty"`
	Time    int64          `json:"time"`
}

// handleChanges streams committed changes as server-sent events until the
// client goes away.
func (a *api) handleChanges(w http.ResponseWriter, r *http.Request) {
	watchable, ok := a.store.(core.Watchable)
	if !ok {
		a.writeError(w, r, errors.New("store does not support watching"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		a.writeError(w, r, errors.New("streaming unsupported"))
		return
	}

	ctx := r.Context()
	events, err := watchable.Watch(ctx, r.URL.Query().Get("pattern"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(changeEvent{
				Seq:     e.Seq,
				ID:      e.ID,
				Rev:     e.Rev.String(),
				Type:    e.Type,
				Deleted: e.Type == core.EventDelete,
				Time:    e.Timestamp,
			})
			if err != nil {
				a.logger.Error("failed to encode change", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: change\ndata: %s\n\n", e.Seq, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
