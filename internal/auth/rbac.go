package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pollhub.org/internal/audit"
)

// RBACService performs role changes and suspensions on profiles.
type RBACService struct {
	gate      *Gate
	writer    ProfileWriter
	directory ProfileDirectory
	content   ContentCounter
	sink      audit.Sink
	now       func() time.Time
}

// RBACOption configures an RBACService.
type RBACOption func(*RBACService) error

// WithAuditSink records every mutation in sink.
func WithAuditSink(sink audit.Sink) RBACOption {
	return func(s *RBACService) error {
		if sink == nil {
			return errors.New("audit sink is nil")
		}
		s.sink = sink
		return nil
	}
}

// WithDirectory enables List and the profile part of Stats.
func WithDirectory(d ProfileDirectory) RBACOption {
	return func(s *RBACService) error {
		if d == nil {
			return errors.New("profile directory is nil")
		}
		s.directory = d
		return nil
	}
}

// WithContentCounter adds content totals to Stats.
func WithContentCounter(c ContentCounter) RBACOption {
	return func(s *RBACService) error {
		if c == nil {
			return errors.New("content counter is nil")
		}
		s.content = c
		return nil
	}
}

// WithRBACClock overrides the time source.
func WithRBACClock(fn func() time.Time) RBACOption {
	return func(s *RBACService) error {
		if fn == nil {
			return errors.New("clock function is nil")
		}
		s.now = fn
		return nil
	}
}

func NewRBACService(gate *Gate, writer ProfileWriter, opts ...RBACOption) (*RBACService, error) {
	if gate == nil {
		return nil, errors.New("profile gate is required")
	}
	if writer == nil {
		return nil, errors.New("profile writer is required")
	}
	s := &RBACService{gate: gate, writer: writer, sink: audit.Discard, now: time.Now}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ChangeRole assigns role to the target identity.
func (s *RBACService) ChangeRole(ctx context.Context, actor *Profile, targetID string, role Role) (Profile, error) {
	if err := Authorize(actor, ActionManageIdentities, nil).Err(); err != nil {
		return Profile{}, err
	}
	if !role.Valid() {
		return Profile{}, fmt.Errorf("%w: unsupported role %q", ErrInvalidInput, role)
	}
	target, err := s.gate.LookupProfile(ctx, targetID)
	if err != nil {
		return Profile{}, err
	}
	updated, err := s.writer.UpdateRole(ctx, target.IdentityID, role)
	if err != nil {
		return Profile{}, err
	}
	s.record(ctx, audit.Event{
		Type:       audit.EventRoleChanged,
		ActorID:    actor.IdentityID,
		ResourceID: target.IdentityID,
		Outcome:    string(role),
		Metadata:   map[string]any{"previous_role": string(target.Role)},
	})
	return updated, nil
}

// Suspend deactivates the target identity. Actors cannot suspend themselves.
func (s *RBACService) Suspend(ctx context.Context, actor *Profile, targetID, reason string) (Profile, error) {
	if err := Authorize(actor, ActionSuspendIdentities, nil).Err(); err != nil {
		return Profile{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Profile{}, fmt.Errorf("%w: suspension reason is required", ErrInvalidInput)
	}
	target, err := s.gate.LookupProfile(ctx, targetID)
	if err != nil {
		return Profile{}, err
	}
	if target.IdentityID == actor.IdentityID {
		return Profile{}, fmt.Errorf("%w: cannot suspend yourself", ErrInvalidInput)
	}
	at := s.now().UTC()
	by := actor.IdentityID
	updated, err := s.writer.SetSuspension(ctx, target.IdentityID, Suspension{At: &at, By: &by, Reason: &reason})
	if err != nil {
		return Profile{}, err
	}
	s.record(ctx, audit.Event{
		Type:       audit.EventSuspended,
		OccurredAt: at,
		ActorID:    actor.IdentityID,
		ResourceID: target.IdentityID,
		Reason:     reason,
	})
	return updated, nil
}

// Unsuspend reactivates the target identity and clears the suspension stamp.
func (s *RBACService) Unsuspend(ctx context.Context, actor *Profile, targetID string) (Profile, error) {
	if err := Authorize(actor, ActionSuspendIdentities, nil).Err(); err != nil {
		return Profile{}, err
	}
	target, err := s.gate.LookupProfile(ctx, targetID)
	if err != nil {
		return Profile{}, err
	}
	updated, err := s.writer.SetSuspension(ctx, target.IdentityID, Suspension{})
	if err != nil {
		return Profile{}, err
	}
	s.record(ctx, audit.Event{
		Type:       audit.EventUnsuspended,
		ActorID:    actor.IdentityID,
		ResourceID: target.IdentityID,
	})
	return updated, nil
}

const maxListLimit = 200

// List returns profiles newest first. It requires manage-identities.
func (s *RBACService) List(ctx context.Context, actor *Profile, limit, offset int) ([]Profile, error) {
	if err := Authorize(actor, ActionManageIdentities, nil).Err(); err != nil {
		return nil, err
	}
	if s.directory == nil {
		return nil, ErrUnavailable
	}
	if limit <= 0 || limit > maxListLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidInput, maxListLimit)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", ErrInvalidInput)
	}
	return s.directory.ListProfiles(ctx, limit, offset)
}

// Stats counts profiles by state and, when a content counter is configured,
// live polls, comments and votes. It requires view-analytics.
func (s *RBACService) Stats(ctx context.Context, actor *Profile) (IdentityStats, error) {
	if err := Authorize(actor, ActionViewAnalytics, nil).Err(); err != nil {
		return IdentityStats{}, err
	}
	if s.directory == nil {
		return IdentityStats{}, ErrUnavailable
	}
	var (
		out IdentityStats
		err error
	)
	if out.ProfileCounts, err = s.directory.CountProfiles(ctx); err != nil {
		return IdentityStats{}, fmt.Errorf("count profiles: %w", err)
	}
	if s.content != nil {
		if out.ContentTotals, err = s.content.CountContent(ctx); err != nil {
			return IdentityStats{}, fmt.Errorf("count content: %w", err)
		}
	}
	return out, nil
}

func (s *RBACService) record(ctx context.Context, e audit.Event) {
	e.ResourceKind = "identity"
	if e.OccurredAt.IsZero() {
		e.OccurredAt = s.now().UTC()
	}
	if err := s.sink.Record(ctx, e); err != nil {
		s.gate.log.WithError(err).WithField("event", e.Type).Warn("audit record failed")
	}
}
