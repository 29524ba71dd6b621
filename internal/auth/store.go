package auth

import "context"

// ProfileStore fetches profiles. Implementations return ErrNotFound when the
// identity has no profile and ErrCircularPolicy when the backing store's own
// policy evaluation recursed.
type ProfileStore interface {
	FetchProfile(ctx context.Context, identityID string) (Profile, error)
}

// ProfileWriter persists role and suspension changes.
type ProfileWriter interface {
	UpdateRole(ctx context.Context, identityID string, role Role) (Profile, error)
	SetSuspension(ctx context.Context, identityID string, s Suspension) (Profile, error)
}

// ProfileDirectory lists and counts profiles for administrators. Listings
// are newest first.
type ProfileDirectory interface {
	ListProfiles(ctx context.Context, limit, offset int) ([]Profile, error)
	CountProfiles(ctx context.Context) (ProfileCounts, error)
}

// ContentCounter reports totals of live polls, comments and votes.
type ContentCounter interface {
	CountContent(ctx context.Context) (ContentTotals, error)
}

// ProfileStoreFunc adapts a function to ProfileStore.
type ProfileStoreFunc func(ctx context.Context, identityID string) (Profile, error)

func (f ProfileStoreFunc) FetchProfile(ctx context.Context, identityID string) (Profile, error) {
	return f(ctx, identityID)
}
