package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"pollhub.org/internal/auth"
	"pollhub.org/internal/obs"
)

// handleStream serves audit events as Server-Sent Events to moderators.
// The optional "type" query narrows events by type prefix, e.g. "moderation.".
func (a *API) handleStream(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFromContext(r.Context())
	d := auth.Authorize(actor, auth.ActionModerateComment, nil)
	obs.RecordDecision(string(auth.ActionModerateComment), d.Allowed, d.Reason)
	if err := d.Err(); err != nil {
		a.handleError(w, r, err)
		return
	}
	if a.deps.Events == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := a.deps.Events.Subscribe(r.Context(), r.URL.Query().Get("type"))

	_, _ = w.Write([]byte(": stream started\n\n"))
	if err := rc.Flush(); err != nil {
		a.log.WithError(err).Warn("streaming unsupported by response writer")
		return
	}

	for event := range ch {
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("event: " + event.Type + "\ndata: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
