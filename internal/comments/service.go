package comments

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/sirupsen/logrus"

	"pollhub.org/internal/audit"
	"pollhub.org/internal/auth"
	"pollhub.org/internal/ids"
	"pollhub.org/internal/moderation"
	"pollhub.org/internal/obs"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Service implements comment creation, listing and owner-level mutations.
type Service struct {
	store     Store
	polls     PollLookup
	profiles  ProfileResolver
	policy    moderation.Policy
	orphans   OrphanPolicy
	maxLength int
	sanitizer *bluemonday.Policy
	sink      audit.Sink
	now       func() time.Time
	log       logrus.FieldLogger
}

// Option configures a Service.
type Option func(*Service) error

func WithModerationPolicy(p moderation.Policy) Option {
	return func(s *Service) error {
		s.policy = p
		return nil
	}
}

func WithOrphanPolicy(p OrphanPolicy) Option {
	return func(s *Service) error {
		if p != OrphanKeep && p != OrphanHide {
			return fmt.Errorf("unknown orphan policy %q", p)
		}
		s.orphans = p
		return nil
	}
}

func WithMaxLength(n int) Option {
	return func(s *Service) error {
		if n <= 0 {
			return errors.New("max length must be positive")
		}
		s.maxLength = n
		return nil
	}
}

func WithSink(sink audit.Sink) Option {
	return func(s *Service) error {
		if sink == nil {
			return errors.New("audit sink is nil")
		}
		s.sink = sink
		return nil
	}
}

func WithClock(fn func() time.Time) Option {
	return func(s *Service) error {
		if fn == nil {
			return errors.New("clock function is nil")
		}
		s.now = fn
		return nil
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		s.log = l
		return nil
	}
}

func NewService(store Store, polls PollLookup, profiles ProfileResolver, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("comment store is required")
	}
	if polls == nil {
		return nil, errors.New("poll lookup is required")
	}
	if profiles == nil {
		return nil, errors.New("profile resolver is required")
	}
	s := &Service{
		store:     store,
		polls:     polls,
		profiles:  profiles,
		policy:    moderation.DefaultPolicy(),
		orphans:   OrphanKeep,
		maxLength: DefaultMaxLength,
		sanitizer: bluemonday.StrictPolicy(),
		sink:      audit.Discard,
		now:       time.Now,
		log:       obs.Logger(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Create validates and stores a new comment. Every rejection happens before
// the store is written to.
func (s *Service) Create(ctx context.Context, in NewComment) (Comment, error) {
	content, err := s.cleanContent(in.Content)
	if err != nil {
		return Comment{}, err
	}
	author, err := s.checkAuthor(ctx, in.Author)
	if err != nil {
		return Comment{}, err
	}

	pollID := strings.TrimSpace(in.PollID)
	if pollID == "" {
		return Comment{}, invalid("poll_id", "is required")
	}
	poll, err := s.polls.FetchResource(ctx, moderation.KindPoll, pollID)
	switch {
	case errors.Is(err, moderation.ErrNotFound):
		return Comment{}, fmt.Errorf("%w: poll %s not found", ErrPollUnavailable, pollID)
	case err != nil:
		return Comment{}, fmt.Errorf("fetch poll: %w", err)
	case !poll.Visible():
		return Comment{}, fmt.Errorf("%w: poll %s is not published", ErrPollUnavailable, pollID)
	}

	c := Comment{PollID: pollID, Content: content, Author: author}
	if in.ParentID != nil && strings.TrimSpace(*in.ParentID) != "" {
		parentID := strings.TrimSpace(*in.ParentID)
		parent, err := s.store.FetchComment(ctx, parentID)
		switch {
		case errors.Is(err, ErrNotFound):
			return Comment{}, invalid("parent_id", "parent comment not found")
		case err != nil:
			return Comment{}, fmt.Errorf("fetch parent: %w", err)
		case parent.PollID != pollID:
			return Comment{}, invalid("parent_id", "parent comment belongs to another poll")
		case parent.Depth >= MaxDepth:
			return Comment{}, invalid("parent_id", "maximum reply depth reached")
		}
		c.ParentID = &parentID
		c.Depth = parent.Depth + 1
	}

	now := s.now().UTC()
	c.ID = ids.NewAt(now)
	c.CreatedAt = now
	c.Status = moderation.InitialStatus(s.policy)

	stored, err := s.store.InsertComment(ctx, c)
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	s.record(ctx, audit.Event{
		Type:         audit.EventCommentCreated,
		OccurredAt:   now,
		ActorID:      author.IdentityID,
		ResourceKind: string(moderation.KindComment),
		ResourceID:   stored.ID,
		Metadata:     map[string]any{"poll_id": pollID, "depth": stored.Depth, "author_kind": string(author.Kind)},
	})
	return stored, nil
}

// ListVisible returns the comments of a poll that actor may see. Anonymous
// callers pass a nil actor. Comments of a deleted poll are never returned.
func (s *Service) ListVisible(ctx context.Context, pollID string, actor *auth.Profile) ([]Comment, error) {
	pollID = strings.TrimSpace(pollID)
	if _, err := s.polls.FetchResource(ctx, moderation.KindPoll, pollID); err != nil {
		if errors.Is(err, moderation.ErrNotFound) {
			return []Comment{}, nil
		}
		return nil, fmt.Errorf("fetch poll: %w", err)
	}
	all, err := s.store.FetchCommentsForPoll(ctx, pollID)
	if err != nil {
		return nil, fmt.Errorf("fetch comments: %w", err)
	}
	moderator := auth.Authorize(actor, auth.ActionModerateComment, nil).Allowed

	var orphaned map[string]bool
	if s.orphans == OrphanHide && !moderator {
		orphaned = findOrphans(all)
	}

	out := make([]Comment, 0, len(all))
	for _, c := range all {
		if c.DeletedAt != nil || c.PollID != pollID {
			continue
		}
		own := actor != nil && c.IdentityID != "" && c.IdentityID == actor.IdentityID
		if !(c.Visible() || moderator || own) {
			continue
		}
		if orphaned[c.ID] {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// CountVisible counts publicly visible comments on a poll.
func (s *Service) CountVisible(ctx context.Context, pollID string) (int, error) {
	visible, err := s.ListVisible(ctx, pollID, nil)
	if err != nil {
		return 0, err
	}
	return len(visible), nil
}

// Update replaces the content of a comment the actor may edit.
func (s *Service) Update(ctx context.Context, actor *auth.Profile, id, content string) (Comment, error) {
	c, err := s.store.FetchComment(ctx, strings.TrimSpace(id))
	if err != nil {
		return Comment{}, err
	}
	if err := s.authorize(ctx, actor, auth.ActionEdit, c); err != nil {
		return Comment{}, err
	}
	cleaned, err := s.cleanContent(content)
	if err != nil {
		return Comment{}, err
	}
	now := s.now().UTC()
	updated, err := s.store.UpdateContent(ctx, c.ID, cleaned, now)
	if err != nil {
		return Comment{}, fmt.Errorf("update comment: %w", err)
	}
	s.record(ctx, audit.Event{
		Type:         audit.EventCommentUpdated,
		OccurredAt:   now,
		ActorID:      actor.IdentityID,
		ResourceKind: string(moderation.KindComment),
		ResourceID:   c.ID,
	})
	return updated, nil
}

// Delete tombstones a comment the actor may delete. Replies are not touched;
// the orphan policy governs how they are listed.
func (s *Service) Delete(ctx context.Context, actor *auth.Profile, id string) error {
	c, err := s.store.FetchComment(ctx, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, actor, auth.ActionDelete, c); err != nil {
		return err
	}
	now := s.now().UTC()
	if err := s.store.DeleteComment(ctx, c.ID, now); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	s.record(ctx, audit.Event{
		Type:         audit.EventCommentDeleted,
		OccurredAt:   now,
		ActorID:      actor.IdentityID,
		ResourceKind: string(moderation.KindComment),
		ResourceID:   c.ID,
	})
	return nil
}

func (s *Service) authorize(ctx context.Context, actor *auth.Profile, action auth.Action, c Comment) error {
	d := auth.Authorize(actor, action, c.AuthResource())
	obs.RecordDecision(string(action), d.Allowed, d.Reason)
	if d.Allowed {
		return nil
	}
	s.record(ctx, audit.Event{
		Type:         audit.EventAccessDenied,
		ActorID:      actorID(actor),
		ResourceKind: string(moderation.KindComment),
		ResourceID:   c.ID,
		Outcome:      string(action),
		Reason:       d.Reason,
	})
	return d.Err()
}

func (s *Service) cleanContent(raw string) (string, error) {
	if !utf8.ValidString(raw) {
		return "", invalid("content", "must be valid UTF-8")
	}
	cleaned := s.plainText(raw)
	if cleaned == "" {
		if strings.TrimSpace(raw) == "" {
			return "", invalid("content", "must not be empty")
		}
		return "", invalid("content", "must contain text")
	}
	if utf8.RuneCountInString(cleaned) > s.maxLength {
		return "", invalid("content", fmt.Sprintf("must be at most %d characters", s.maxLength))
	}
	return cleaned, nil
}

// plainText strips markup and returns the remaining text unescaped, so that
// stored content is what the author typed minus any tags.
func (s *Service) plainText(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(raw)))
}

func (s *Service) checkAuthor(ctx context.Context, a Author) (Author, error) {
	switch a.Kind {
	case AuthorGuest:
		a.IdentityID = ""
		a.DisplayName = s.plainText(a.DisplayName)
		a.Contact = strings.TrimSpace(a.Contact)
		if a.DisplayName == "" {
			return Author{}, invalid("author_display_name", "is required for guests")
		}
		if utf8.RuneCountInString(a.DisplayName) > maxDisplayName {
			return Author{}, invalid("author_display_name", "is too long")
		}
		if !emailPattern.MatchString(a.Contact) {
			return Author{}, invalid("author_contact", "must be a valid email address")
		}
		return a, nil
	case AuthorRegistered:
		a.IdentityID = strings.TrimSpace(a.IdentityID)
		if a.IdentityID == "" {
			return Author{}, invalid("author_identity_id", "is required")
		}
		p, err := s.profiles.ResolveActor(ctx, a.IdentityID)
		if err != nil {
			if errors.Is(err, auth.ErrNotFound) {
				return Author{}, invalid("author_identity_id", "does not resolve to an active profile")
			}
			return Author{}, fmt.Errorf("resolve author: %w", err)
		}
		if !p.IsActive {
			return Author{}, invalid("author_identity_id", "does not resolve to an active profile")
		}
		a.DisplayName = s.plainText(a.DisplayName)
		if a.DisplayName == "" {
			a.DisplayName = "Anonymous"
		}
		return a, nil
	default:
		return Author{}, invalid("author_kind", "must be registered or guest")
	}
}

func (s *Service) record(ctx context.Context, e audit.Event) {
	if err := s.sink.Record(ctx, e); err != nil {
		s.log.WithError(err).WithField("event", e.Type).Warn("audit record failed")
	}
}

// findOrphans marks every comment whose ancestor chain reaches a parent id
// that is not among the live comments.
func findOrphans(all []Comment) map[string]bool {
	byID := make(map[string]Comment, len(all))
	for _, c := range all {
		if c.DeletedAt == nil {
			byID[c.ID] = c
		}
	}
	out := make(map[string]bool)
	for _, c := range byID {
		cur := c
		for steps := 0; cur.ParentID != nil && steps <= MaxDepth; steps++ {
			parent, ok := byID[*cur.ParentID]
			if !ok {
				out[c.ID] = true
				break
			}
			cur = parent
		}
	}
	return out
}

func actorID(p *auth.Profile) string {
	if p == nil {
		return ""
	}
	return p.IdentityID
}
