package votes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"pollhub.org/internal/audit"
	"pollhub.org/internal/auth"
	"pollhub.org/internal/ids"
	"pollhub.org/internal/moderation"
	"pollhub.org/internal/obs"
)

var (
	ErrAlreadyVoted     = errors.New("votes: already voted")
	ErrPollUnavailable  = errors.New("votes: poll not available")
	ErrOptionNotInPoll  = errors.New("votes: option does not belong to poll")
	ErrInvalidArguments = errors.New("votes: invalid arguments")
)

// Vote is one identity's choice on a poll.
type Vote struct {
	ID         string    `json:"id"`
	PollID     string    `json:"poll_id"`
	OptionID   string    `json:"option_id"`
	IdentityID string    `json:"identity_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists votes. InsertVote must report a uniqueness violation on
// (poll, identity) as ErrAlreadyVoted.
type Store interface {
	HasVoted(ctx context.Context, pollID, identityID string) (bool, error)
	OptionInPoll(ctx context.Context, pollID, optionID string) (bool, error)
	InsertVote(ctx context.Context, v Vote) (Vote, error)
}

// PollLookup resolves the poll being voted on.
type PollLookup interface {
	FetchResource(ctx context.Context, kind moderation.Kind, id string) (moderation.Resource, error)
}

// Service casts votes.
type Service struct {
	store Store
	polls PollLookup
	sink  audit.Sink
	now   func() time.Time
	log   logrus.FieldLogger
}

// Option configures a Service.
type Option func(*Service) error

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

func NewService(store Store, polls PollLookup, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("vote store is required")
	}
	if polls == nil {
		return nil, errors.New("poll lookup is required")
	}
	s := &Service{store: store, polls: polls, sink: audit.Discard, now: time.Now, log: obs.Logger()}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Cast records actor's vote for optionID on pollID.
//
// The HasVoted check gives a friendly early answer; two concurrent casts can
// both pass it, so the storage constraint is what actually guarantees one
// vote per identity.
func (s *Service) Cast(ctx context.Context, actor *auth.Profile, pollID, optionID string) (Vote, error) {
	d := auth.Authorize(actor, auth.ActionVote, nil)
	obs.RecordDecision(string(auth.ActionVote), d.Allowed, d.Reason)
	if err := d.Err(); err != nil {
		return Vote{}, err
	}
	pollID, optionID = strings.TrimSpace(pollID), strings.TrimSpace(optionID)
	if pollID == "" || optionID == "" {
		return Vote{}, fmt.Errorf("%w: poll_id and option_id are required", ErrInvalidArguments)
	}

	poll, err := s.polls.FetchResource(ctx, moderation.KindPoll, pollID)
	switch {
	case errors.Is(err, moderation.ErrNotFound):
		return Vote{}, fmt.Errorf("%w: poll %s not found", ErrPollUnavailable, pollID)
	case err != nil:
		return Vote{}, fmt.Errorf("fetch poll: %w", err)
	case !poll.Visible():
		return Vote{}, fmt.Errorf("%w: poll %s is not published", ErrPollUnavailable, pollID)
	}

	ok, err := s.store.OptionInPoll(ctx, pollID, optionID)
	if err != nil {
		return Vote{}, fmt.Errorf("check option: %w", err)
	}
	if !ok {
		return Vote{}, ErrOptionNotInPoll
	}

	voted, err := s.store.HasVoted(ctx, pollID, actor.IdentityID)
	if err != nil {
		return Vote{}, fmt.Errorf("check vote: %w", err)
	}
	if voted {
		return Vote{}, ErrAlreadyVoted
	}

	now := s.now().UTC()
	v, err := s.store.InsertVote(ctx, Vote{
		ID:         ids.NewAt(now),
		PollID:     pollID,
		OptionID:   optionID,
		IdentityID: actor.IdentityID,
		CreatedAt:  now,
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyVoted) {
			return Vote{}, ErrAlreadyVoted
		}
		return Vote{}, fmt.Errorf("insert vote: %w", err)
	}
	if err := s.sink.Record(ctx, audit.Event{
		Type:         audit.EventVoteCast,
		OccurredAt:   now,
		ActorID:      actor.IdentityID,
		ResourceKind: string(moderation.KindPoll),
		ResourceID:   pollID,
		Metadata:     map[string]any{"option_id": optionID},
	}); err != nil {
		s.log.WithError(err).Warn("audit record failed")
	}
	return v, nil
}
