package httpapi

import (
	"net/http"

	"pollhub.org/internal/auth"
)

type castVoteRequest struct {
	OptionID string `json:"option_id"`
}

func (a *API) handleCastVote(w http.ResponseWriter, r *http.Request) {
	var req castVoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	v, err := a.deps.Votes.Cast(r.Context(), auth.ActorFromContext(r.Context()), r.PathValue("id"), req.OptionID)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}
