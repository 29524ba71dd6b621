package moderation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"pollhub.org/internal/auth"
)

var (
	ErrNotFound      = errors.New("moderation: resource not found")
	ErrInvalidAction = errors.New("moderation: invalid action")
)

// Kind names a moderatable resource type.
type Kind string

const (
	KindPoll    Kind = "poll"
	KindComment Kind = "comment"
)

// ParseKind accepts "poll"/"polls" and "comment"/"comments".
func ParseKind(raw string) (Kind, error) {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), "s") {
	case string(KindPoll):
		return KindPoll, nil
	case string(KindComment):
		return KindComment, nil
	}
	return "", fmt.Errorf("%w: unknown resource kind %q", ErrInvalidAction, raw)
}

// ModerateAction is the authorization action that governs transitions on k.
func (k Kind) ModerateAction() auth.Action {
	if k == KindComment {
		return auth.ActionModerateComment
	}
	return auth.ActionModeratePoll
}

// State is the derived lifecycle position of a resource.
type State string

const (
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateHidden   State = "hidden"
	StateDeleted  State = "deleted"
)

// Status holds the moderation columns shared by polls and comments. Only the
// latest transition is retained.
type Status struct {
	Approved    bool       `json:"is_approved"`
	Hidden      bool       `json:"is_hidden"`
	ModeratedBy *string    `json:"moderated_by,omitempty"`
	ModeratedAt *time.Time `json:"moderated_at,omitempty"`
	Reason      *string    `json:"moderation_reason,omitempty"`
}

// Visible is the public visibility predicate.
func (s Status) Visible() bool { return s.Approved && !s.Hidden }

// InitialStatus is the status given to a freshly created resource.
func InitialStatus(p Policy) Status {
	return Status{Approved: p.AutoApprove}
}

// Resource is a poll or comment reduced to the facts moderation needs.
type Resource struct {
	ID        string     `json:"id"`
	Kind      Kind       `json:"kind"`
	OwnerID   string     `json:"owner_id,omitempty"`
	Title     string     `json:"title,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	Status
}

// State derives the lifecycle state from the stored flags.
func (r Resource) State() State {
	switch {
	case r.DeletedAt != nil:
		return StateDeleted
	case r.Hidden:
		return StateHidden
	case r.Approved:
		return StateApproved
	default:
		return StatePending
	}
}

// Visible reports public visibility; deleted resources are never visible.
func (r Resource) Visible() bool {
	return r.DeletedAt == nil && r.Status.Visible()
}

// AuthResource returns the ownership fact used by auth.Authorize.
func (r Resource) AuthResource() *auth.Resource {
	return &auth.Resource{ID: r.ID, Kind: string(r.Kind), OwnerID: r.OwnerID}
}

// Action is a moderation transition.
type Action string

const (
	ActionApprove Action = "approve"
	ActionHide    Action = "hide"
	ActionDelete  Action = "delete"
)

// ParseAction validates a transition name.
func ParseAction(raw string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(raw))); a {
	case ActionApprove, ActionHide, ActionDelete:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, raw)
	}
}

// Apply computes the result of action on r. It does not check authorization.
// Every transition overwrites the audit stamp, including no-op re-approvals.
func Apply(r Resource, action Action, actorID string, at time.Time, reason string) (Resource, error) {
	if r.DeletedAt != nil {
		return Resource{}, fmt.Errorf("%w: %s %s is deleted", ErrNotFound, r.Kind, r.ID)
	}
	switch action {
	case ActionApprove:
		r.Approved, r.Hidden = true, false
	case ActionHide:
		r.Approved, r.Hidden = false, true
	case ActionDelete:
		ts := at
		r.DeletedAt = &ts
	default:
		return Resource{}, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	by := actorID
	stamp := at
	r.ModeratedBy = &by
	r.ModeratedAt = &stamp
	r.Reason = nil
	if reason = strings.TrimSpace(reason); reason != "" {
		r.Reason = &reason
	}
	return r, nil
}
