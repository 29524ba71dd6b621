package httpapi

import (
	"net/http"

	"pollhub.org/internal/auth"
)

type changeRoleRequest struct {
	Role string `json:"role"`
}

type suspendRequest struct {
	Reason string `json:"reason"`
}

func (a *API) rbac(w http.ResponseWriter, r *http.Request) (*auth.RBACService, bool) {
	if a.deps.RBAC == nil {
		writeError(w, r, http.StatusServiceUnavailable, "identity administration unavailable")
		return nil, false
	}
	return a.deps.RBAC, true
}

func (a *API) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	svc, ok := a.rbac(w, r)
	if !ok {
		return
	}
	var req changeRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	p, err := svc.ChangeRole(r.Context(), auth.ActorFromContext(r.Context()), r.PathValue("id"), role)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleSuspend(w http.ResponseWriter, r *http.Request) {
	svc, ok := a.rbac(w, r)
	if !ok {
		return
	}
	var req suspendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := svc.Suspend(r.Context(), auth.ActorFromContext(r.Context()), r.PathValue("id"), req.Reason)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleUnsuspend(w http.ResponseWriter, r *http.Request) {
	svc, ok := a.rbac(w, r)
	if !ok {
		return
	}
	p, err := svc.Unsuspend(r.Context(), auth.ActorFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleListIdentities(w http.ResponseWriter, r *http.Request) {
	svc, ok := a.rbac(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	limit, err := parseIntParam("limit", q.Get("limit"), 50, 1, 200)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := parseIntParam("offset", q.Get("offset"), 0, 0, 1_000_000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	profiles, err := svc.List(r.Context(), auth.ActorFromContext(r.Context()), limit, offset)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"identities": profiles, "limit": limit, "offset": offset})
}

func (a *API) handleIdentityStats(w http.ResponseWriter, r *http.Request) {
	svc, ok := a.rbac(w, r)
	if !ok {
		return
	}
	stats, err := svc.Stats(r.Context(), auth.ActorFromContext(r.Context()))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
