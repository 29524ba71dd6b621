package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"pollhub.org/internal/auth"
	"pollhub.org/internal/comments"
	"pollhub.org/internal/ids"
	"pollhub.org/internal/moderation"
	"pollhub.org/internal/votes"
)

var (
	_ auth.ProfileStore     = (*Store)(nil)
	_ auth.ProfileWriter    = (*Store)(nil)
	_ auth.ProfileDirectory = (*Store)(nil)
	_ auth.ContentCounter   = (*Store)(nil)
	_ moderation.Store      = (*Store)(nil)
	_ comments.Store        = (*Store)(nil)
	_ votes.Store           = (*Store)(nil)
	_ comments.PollLookup   = (*Store)(nil)
	_ votes.PollLookup      = (*Store)(nil)
)

// Store keeps profiles, polls, comments and votes in process memory.
// It backs local runs without a database and the HTTP tests.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]auth.Profile
	polls    map[string]*poll
	comments map[string]*comments.Comment
	votes    map[string]map[string]votes.Vote // poll -> identity -> vote
	now      func() time.Time
}

type poll struct {
	res     moderation.Resource
	options map[string]string // option id -> label
}

// New creates an empty store.
func New() *Store {
	return &Store{
		profiles: make(map[string]auth.Profile),
		polls:    make(map[string]*poll),
		comments: make(map[string]*comments.Comment),
		votes:    make(map[string]map[string]votes.Vote),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// PutProfile inserts or replaces a profile.
func (s *Store) PutProfile(p auth.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.profiles[p.IdentityID] = p
}

// CreatePoll adds a poll owned by ownerID with the given option labels and
// returns it together with the option ids in label order.
func (s *Store) CreatePoll(ownerID, title string, status moderation.Status, labels ...string) (moderation.Resource, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := moderation.Resource{
		ID:        ids.New(),
		Kind:      moderation.KindPoll,
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: s.now(),
		Status:    status,
	}
	p := &poll{res: res, options: make(map[string]string, len(labels))}
	optionIDs := make([]string, 0, len(labels))
	for _, label := range labels {
		id := ids.New()
		p.options[id] = label
		optionIDs = append(optionIDs, id)
	}
	s.polls[res.ID] = p
	return res, optionIDs
}

func (s *Store) FetchProfile(_ context.Context, identityID string) (auth.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[identityID]
	if !ok {
		return auth.Profile{}, auth.ErrNotFound
	}
	return p, nil
}

func (s *Store) UpdateRole(_ context.Context, identityID string, role auth.Role) (auth.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[identityID]
	if !ok {
		return auth.Profile{}, auth.ErrNotFound
	}
	p.Role = role
	now := s.now()
	p.UpdatedAt = &now
	s.profiles[identityID] = p
	return p, nil
}

func (s *Store) SetSuspension(_ context.Context, identityID string, sus auth.Suspension) (auth.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[identityID]
	if !ok {
		return auth.Profile{}, auth.ErrNotFound
	}
	p.IsActive = sus.At == nil
	p.SuspendedAt, p.SuspendedBy, p.SuspensionReason = sus.At, sus.By, sus.Reason
	now := s.now()
	p.UpdatedAt = &now
	s.profiles[identityID] = p
	return p, nil
}

func (s *Store) ListProfiles(_ context.Context, limit, offset int) ([]auth.Profile, error) {
	s.mu.RLock()
	all := make([]auth.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		all = append(all, p)
	}
	s.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].IdentityID < all[j].IdentityID
	})
	if offset >= len(all) {
		return []auth.Profile{}, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) CountProfiles(context.Context) (auth.ProfileCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var c auth.ProfileCounts
	for _, p := range s.profiles {
		c.Total++
		if p.IsActive {
			c.Active++
		} else {
			c.Suspended++
		}
		if p.Role == auth.RoleAdministrator {
			c.Administrators++
		}
	}
	return c, nil
}

func (s *Store) CountContent(context.Context) (auth.ContentTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var t auth.ContentTotals
	for _, p := range s.polls {
		if p.res.DeletedAt == nil {
			t.Polls++
		}
	}
	for _, c := range s.comments {
		if c.DeletedAt == nil {
			t.Comments++
		}
	}
	for _, byIdentity := range s.votes {
		t.Votes += len(byIdentity)
	}
	return t, nil
}

func (s *Store) FetchResource(_ context.Context, kind moderation.Kind, id string) (moderation.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.resource(kind, id)
	if !ok {
		return moderation.Resource{}, moderation.ErrNotFound
	}
	return res, nil
}

// resource must be called with s.mu held.
func (s *Store) resource(kind moderation.Kind, id string) (moderation.Resource, bool) {
	switch kind {
	case moderation.KindPoll:
		p, ok := s.polls[id]
		if !ok || p.res.DeletedAt != nil {
			return moderation.Resource{}, false
		}
		return p.res, true
	case moderation.KindComment:
		c, ok := s.comments[id]
		if !ok || c.DeletedAt != nil {
			return moderation.Resource{}, false
		}
		return commentResource(*c), true
	default:
		return moderation.Resource{}, false
	}
}

func commentResource(c comments.Comment) moderation.Resource {
	title := c.Content
	if r := []rune(title); len(r) > 80 {
		title = string(r[:80])
	}
	return moderation.Resource{
		ID:        c.ID,
		Kind:      moderation.KindComment,
		OwnerID:   c.IdentityID,
		Title:     title,
		CreatedAt: c.CreatedAt,
		Status:    c.Status,
	}
}

func (s *Store) UpdateModeration(_ context.Context, kind moderation.Kind, id string, st moderation.Status, deletedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case moderation.KindPoll:
		p, ok := s.polls[id]
		if !ok || p.res.DeletedAt != nil {
			return moderation.ErrNotFound
		}
		p.res.Status = st
		if deletedAt != nil {
			p.res.DeletedAt = deletedAt
		}
	case moderation.KindComment:
		c, ok := s.comments[id]
		if !ok || c.DeletedAt != nil {
			return moderation.ErrNotFound
		}
		c.Status = st
		if deletedAt != nil {
			c.DeletedAt = deletedAt
		}
	default:
		return moderation.ErrNotFound
	}
	return nil
}

func (s *Store) ListResources(_ context.Context, kind moderation.Kind, f moderation.Filter) ([]moderation.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.matching(kind, f)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) CountResources(_ context.Context, kind moderation.Kind, f moderation.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matching(kind, f)), nil
}

func (s *Store) matching(kind moderation.Kind, f moderation.Filter) []moderation.Resource {
	var all []moderation.Resource
	switch kind {
	case moderation.KindPoll:
		for id := range s.polls {
			if r, ok := s.resource(kind, id); ok {
				all = append(all, r)
			}
		}
	case moderation.KindComment:
		for id := range s.comments {
			if r, ok := s.resource(kind, id); ok {
				all = append(all, r)
			}
		}
	}
	out := all[:0]
	for _, r := range all {
		if f.NeedsReview && r.Visible() {
			continue
		}
		if f.Moderated && r.ModeratedAt == nil {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (s *Store) FetchComment(_ context.Context, id string) (comments.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.comments[id]
	if !ok || c.DeletedAt != nil {
		return comments.Comment{}, comments.ErrNotFound
	}
	return *c, nil
}

func (s *Store) FetchCommentsForPoll(_ context.Context, pollID string) ([]comments.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []comments.Comment
	for _, c := range s.comments {
		if c.PollID == pollID && c.DeletedAt == nil {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) InsertComment(_ context.Context, c comments.Comment) (comments.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.polls[c.PollID]; !ok {
		return comments.Comment{}, comments.ErrPollUnavailable
	}
	if c.ParentID != nil {
		if _, ok := s.comments[*c.ParentID]; !ok {
			return comments.Comment{}, comments.ErrNotFound
		}
	}
	stored := c
	s.comments[c.ID] = &stored
	return c, nil
}

func (s *Store) UpdateContent(_ context.Context, id, content string, at time.Time) (comments.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[id]
	if !ok || c.DeletedAt != nil {
		return comments.Comment{}, comments.ErrNotFound
	}
	c.Content = content
	c.UpdatedAt = &at
	return *c, nil
}

func (s *Store) DeleteComment(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[id]
	if !ok || c.DeletedAt != nil {
		return comments.ErrNotFound
	}
	c.DeletedAt = &at
	return nil
}

func (s *Store) HasVoted(_ context.Context, pollID, identityID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.votes[pollID][identityID]
	return ok, nil
}

func (s *Store) OptionInPoll(_ context.Context, pollID, optionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.polls[pollID]
	if !ok {
		return false, nil
	}
	_, ok = p.options[optionID]
	return ok, nil
}

// InsertVote enforces one vote per identity and poll, like the
// (poll_id, user_id) unique constraint.
func (s *Store) InsertVote(_ context.Context, v votes.Vote) (votes.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.polls[v.PollID]
	if !ok {
		return votes.Vote{}, votes.ErrPollUnavailable
	}
	if _, ok := p.options[v.OptionID]; !ok {
		return votes.Vote{}, votes.ErrOptionNotInPoll
	}
	byIdentity := s.votes[v.PollID]
	if byIdentity == nil {
		byIdentity = make(map[string]votes.Vote)
		s.votes[v.PollID] = byIdentity
	}
	if _, dup := byIdentity[v.IdentityID]; dup {
		return votes.Vote{}, votes.ErrAlreadyVoted
	}
	byIdentity[v.IdentityID] = v
	return v, nil
}

// Tally returns vote counts per option id.
func (s *Store) Tally(pollID string) map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int)
	for _, v := range s.votes[pollID] {
		out[v.OptionID]++
	}
	return out
}
