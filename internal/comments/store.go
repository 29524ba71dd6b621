package comments

import (
	"context"
	"time"

	"pollhub.org/internal/auth"
	"pollhub.org/internal/moderation"
)

// Store is the comment storage collaborator. Deleted comments are invisible
// to every read: FetchComment returns ErrNotFound and FetchCommentsForPoll
// leaves them out.
type Store interface {
	FetchComment(ctx context.Context, id string) (Comment, error)
	FetchCommentsForPoll(ctx context.Context, pollID string) ([]Comment, error)
	InsertComment(ctx context.Context, c Comment) (Comment, error)
	UpdateContent(ctx context.Context, id, content string, at time.Time) (Comment, error)
	DeleteComment(ctx context.Context, id string, at time.Time) error
}

// PollLookup resolves the poll a comment is attached to.
type PollLookup interface {
	FetchResource(ctx context.Context, kind moderation.Kind, id string) (moderation.Resource, error)
}

// ProfileResolver resolves a registered author's profile.
type ProfileResolver interface {
	ResolveActor(ctx context.Context, identityID string) (auth.Profile, error)
}
