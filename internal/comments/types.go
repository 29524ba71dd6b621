package comments

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"pollhub.org/internal/auth"
	"pollhub.org/internal/moderation"
)

const (
	// MaxDepth is the deepest allowed reply level; top-level comments are 0.
	MaxDepth         = 5
	DefaultMaxLength = 2000
	maxDisplayName   = 100
)

var (
	ErrInvalidInput    = errors.New("comments: invalid input")
	ErrNotFound        = errors.New("comments: not found")
	ErrPollUnavailable = errors.New("comments: poll not available")
)

// ValidationError is a rejected input with the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// AuthorKind tells registered and guest authors apart.
type AuthorKind string

const (
	AuthorRegistered AuthorKind = "registered"
	AuthorGuest      AuthorKind = "guest"
)

// Author identifies who wrote a comment. Guests have no IdentityID.
type Author struct {
	Kind        AuthorKind `json:"author_kind"`
	IdentityID  string     `json:"author_identity_id,omitempty"`
	DisplayName string     `json:"author_display_name"`
	Contact     string     `json:"author_contact,omitempty"`
}

// Comment is a threaded, moderatable comment on a poll.
type Comment struct {
	ID        string     `json:"id"`
	PollID    string     `json:"poll_id"`
	ParentID  *string    `json:"parent_id,omitempty"`
	Depth     int        `json:"depth"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	DeletedAt *time.Time `json:"-"`
	Author
	moderation.Status
}

// Visible reports public visibility.
func (c Comment) Visible() bool {
	return c.DeletedAt == nil && c.Status.Visible()
}

// AuthResource is the ownership fact for edit and delete checks. Guest
// comments have no owner, so only the any-scoped permission reaches them.
func (c Comment) AuthResource() *auth.Resource {
	owner := ""
	if c.Kind == AuthorRegistered {
		owner = c.IdentityID
	}
	return &auth.Resource{ID: c.ID, Kind: string(moderation.KindComment), OwnerID: owner}
}

// NewComment is the input of Service.Create.
type NewComment struct {
	PollID   string
	ParentID *string
	Content  string
	Author   Author
}

// OrphanPolicy decides what happens to replies whose ancestor was deleted.
type OrphanPolicy string

const (
	// OrphanKeep leaves replies listed with a dangling parent id.
	OrphanKeep OrphanPolicy = "keep"
	// OrphanHide drops replies below a deleted ancestor for non-moderators.
	OrphanHide OrphanPolicy = "hide"
)

func ParseOrphanPolicy(raw string) (OrphanPolicy, error) {
	switch p := OrphanPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "", OrphanKeep:
		return OrphanKeep, nil
	case OrphanHide:
		return OrphanHide, nil
	default:
		return "", fmt.Errorf("unknown orphan policy %q", raw)
	}
}
