package moderation

import (
	"context"
	"time"
)

// Filter selects resources for listing. Deleted resources are never listed.
type Filter struct {
	// NeedsReview keeps resources that are not approved or are hidden.
	NeedsReview bool
	// Moderated keeps resources that carry a moderation stamp.
	Moderated bool
	Limit     int
}

// Store is the storage collaborator. FetchResource returns ErrNotFound for
// missing and deleted resources alike.
type Store interface {
	FetchResource(ctx context.Context, kind Kind, id string) (Resource, error)
	UpdateModeration(ctx context.Context, kind Kind, id string, status Status, deletedAt *time.Time) error
	ListResources(ctx context.Context, kind Kind, f Filter) ([]Resource, error)
	CountResources(ctx context.Context, kind Kind, f Filter) (int, error)
}
