package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"pollhub.org/internal/audit"
	"pollhub.org/internal/auth"
	"pollhub.org/internal/obs"
)

// Policy holds the configurable moderation decisions.
type Policy struct {
	// AutoApprove makes new resources publicly visible on creation.
	AutoApprove bool
	// AllowSelfModeration lets a moderator approve or hide their own content.
	AllowSelfModeration bool
}

// DefaultPolicy matches the historical behaviour: auto-approval and no
// self-moderation restriction.
func DefaultPolicy() Policy {
	return Policy{AutoApprove: true, AllowSelfModeration: true}
}

const defaultQueueLimit = 50

// Stats summarises the moderation backlog.
type Stats struct {
	PendingPolls      int `json:"pending_polls"`
	PendingComments   int `json:"pending_comments"`
	ModeratedPolls    int `json:"moderated_polls"`
	ModeratedComments int `json:"moderated_comments"`
}

// Service applies moderation transitions.
type Service struct {
	store  Store
	policy Policy
	sink   audit.Sink
	now    func() time.Time
	log    logrus.FieldLogger
}

// Option configures a Service.
type Option func(*Service) error

func WithPolicy(p Policy) Option {
	return func(s *Service) error {
		s.policy = p
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

func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("moderation store is required")
	}
	s := &Service{
		store:  store,
		policy: DefaultPolicy(),
		sink:   audit.Discard,
		now:    time.Now,
		log:    obs.Logger(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Policy returns the active policy.
func (s *Service) Policy() Policy { return s.policy }

// Transition applies action to the resource on behalf of actor. A denial
// returns an error wrapping auth.ErrForbidden and leaves storage untouched.
func (s *Service) Transition(ctx context.Context, actor *auth.Profile, kind Kind, id string, action Action, reason string) (Resource, error) {
	if _, err := ParseAction(string(action)); err != nil {
		return Resource{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Resource{}, fmt.Errorf("%w: id is required", ErrNotFound)
	}
	decision := auth.Authorize(actor, kind.ModerateAction(), nil)
	if !decision.Allowed {
		return Resource{}, s.deny(ctx, actor, kind, id, action, decision)
	}
	res, err := s.store.FetchResource(ctx, kind, id)
	if err != nil {
		return Resource{}, err
	}
	if !s.policy.AllowSelfModeration && action != ActionDelete && res.OwnerID == actor.IdentityID {
		return Resource{}, s.deny(ctx, actor, kind, id, action, auth.Deny(decision.Action, auth.ReasonSelfModeration))
	}
	return s.apply(ctx, actor, res, action, reason)
}

func (s *Service) deny(ctx context.Context, actor *auth.Profile, kind Kind, id string, action Action, d auth.Decision) error {
	obs.RecordDecision(string(d.Action), false, d.Reason)
	s.record(ctx, audit.Event{
		Type:         audit.EventAccessDenied,
		ActorID:      actorID(actor),
		ResourceKind: string(kind),
		ResourceID:   id,
		Outcome:      string(action),
		Reason:       d.Reason,
	})
	return d.Err()
}

func (s *Service) apply(ctx context.Context, actor *auth.Profile, res Resource, action Action, reason string) (Resource, error) {
	obs.RecordDecision(string(res.Kind.ModerateAction()), true, "")
	next, err := Apply(res, action, actor.IdentityID, s.now().UTC(), reason)
	if err != nil {
		return Resource{}, err
	}
	if err := s.store.UpdateModeration(ctx, next.Kind, next.ID, next.Status, next.DeletedAt); err != nil {
		return Resource{}, fmt.Errorf("update moderation: %w", err)
	}
	obs.RecordTransition(string(next.Kind), string(action))
	e := audit.Event{
		Type:         audit.EventModeration,
		OccurredAt:   *next.ModeratedAt,
		ActorID:      actor.IdentityID,
		ResourceKind: string(next.Kind),
		ResourceID:   next.ID,
		Outcome:      string(action),
		Metadata:     map[string]any{"from": string(res.State()), "to": string(next.State())},
	}
	if next.Reason != nil {
		e.Reason = *next.Reason
	}
	s.record(ctx, e)
	return next, nil
}

// Queue lists resources of kind awaiting review, newest first.
func (s *Service) Queue(ctx context.Context, actor *auth.Profile, kind Kind, limit int) ([]Resource, error) {
	if err := auth.Authorize(actor, kind.ModerateAction(), nil).Err(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > defaultQueueLimit {
		limit = defaultQueueLimit
	}
	return s.store.ListResources(ctx, kind, Filter{NeedsReview: true, Limit: limit})
}

// Stats reports backlog sizes; it requires the poll moderation permission.
func (s *Service) Stats(ctx context.Context, actor *auth.Profile) (Stats, error) {
	if err := auth.Authorize(actor, auth.ActionModeratePoll, nil).Err(); err != nil {
		return Stats{}, err
	}
	var (
		st  Stats
		err error
	)
	if st.PendingPolls, err = s.store.CountResources(ctx, KindPoll, Filter{NeedsReview: true}); err != nil {
		return Stats{}, err
	}
	if st.PendingComments, err = s.store.CountResources(ctx, KindComment, Filter{NeedsReview: true}); err != nil {
		return Stats{}, err
	}
	if st.ModeratedPolls, err = s.store.CountResources(ctx, KindPoll, Filter{Moderated: true}); err != nil {
		return Stats{}, err
	}
	if st.ModeratedComments, err = s.store.CountResources(ctx, KindComment, Filter{Moderated: true}); err != nil {
		return Stats{}, err
	}
	return st, nil
}

func (s *Service) record(ctx context.Context, e audit.Event) {
	if err := s.sink.Record(ctx, e); err != nil {
		s.log.WithError(err).WithField("event", e.Type).Warn("audit record failed")
	}
}

func actorID(p *auth.Profile) string {
	if p == nil {
		return ""
	}
	return p.IdentityID
}
