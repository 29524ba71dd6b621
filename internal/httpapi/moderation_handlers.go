package httpapi

import (
	"net/http"

	"pollhub.org/internal/auth"
	"pollhub.org/internal/moderation"
)

type moderateRequest struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

// moderate applies approve, hide or delete to a poll or comment.
func (a *API) moderate(kind moderation.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req moderateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		action, err := moderation.ParseAction(req.Action)
		if err != nil {
			a.handleError(w, r, err)
			return
		}
		res, err := a.deps.Moderation.Transition(r.Context(), auth.ActorFromContext(r.Context()), kind, r.PathValue("id"), action, req.Reason)
		if err != nil {
			a.handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"resource": res,
			"state":    res.State(),
		})
	}
}

func (a *API) handleQueue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind := moderation.KindPoll
	if raw := q.Get("kind"); raw != "" {
		k, err := moderation.ParseKind(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		kind = k
	}
	limit, err := parseIntParam("limit", q.Get("limit"), 50, 1, 50)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	items, err := a.deps.Moderation.Queue(r.Context(), auth.ActorFromContext(r.Context()), kind, limit)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	if items == nil {
		items = []moderation.Resource{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "items": items})
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := a.deps.Moderation.Stats(r.Context(), auth.ActorFromContext(r.Context()))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
