package httpapi

import (
	"net/http"

	"pollhub.org/internal/auth"
	"pollhub.org/internal/comments"
)

type createCommentRequest struct {
	Content     string  `json:"content"`
	ParentID    *string `json:"parent_id,omitempty"`
	AuthorName  string  `json:"author_name,omitempty"`
	AuthorEmail string  `json:"author_email,omitempty"`
}

type updateCommentRequest struct {
	Content string `json:"content"`
}

func (a *API) handleListComments(w http.ResponseWriter, r *http.Request) {
	list, err := a.deps.Comments.ListVisible(r.Context(), r.PathValue("id"), auth.ActorFromContext(r.Context()))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	if list == nil {
		list = []comments.Comment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": list, "count": len(list)})
}

// handleCreateComment posts as the resolved caller when there is one and as a
// guest otherwise; guests must supply a name and an email address.
func (a *API) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	var req createCommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	author := comments.Author{
		Kind:        comments.AuthorGuest,
		DisplayName: req.AuthorName,
		Contact:     req.AuthorEmail,
	}
	if actor := auth.ActorFromContext(r.Context()); actor != nil {
		author = comments.Author{Kind: comments.AuthorRegistered, IdentityID: actor.IdentityID}
		if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
			author.DisplayName = claims.Name
		}
	}
	c, err := a.deps.Comments.Create(r.Context(), comments.NewComment{
		PollID:   r.PathValue("id"),
		ParentID: req.ParentID,
		Content:  req.Content,
		Author:   author,
	})
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) handleUpdateComment(w http.ResponseWriter, r *http.Request) {
	var req updateCommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, err := a.deps.Comments.Update(r.Context(), auth.ActorFromContext(r.Context()), r.PathValue("id"), req.Content)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Comments.Delete(r.Context(), auth.ActorFromContext(r.Context()), r.PathValue("id")); err != nil {
		a.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
