package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"pollhub.org/internal/obs"
)

// Gate resolves identities to profiles. It tries the standard store first;
// the privileged store is consulted only when the standard store failed with
// ErrCircularPolicy while resolving the caller's own identity.
type Gate struct {
	standard   ProfileStore
	privileged ProfileStore
	log        logrus.FieldLogger
}

// GateOption configures a Gate.
type GateOption func(*Gate) error

// WithPrivilegedStore enables the policy-bypassing fallback.
func WithPrivilegedStore(store ProfileStore) GateOption {
	return func(g *Gate) error {
		if store == nil {
			return errors.New("privileged store is nil")
		}
		g.privileged = store
		return nil
	}
}

// WithGateLogger overrides the logger used for fallback events.
func WithGateLogger(l logrus.FieldLogger) GateOption {
	return func(g *Gate) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		g.log = l
		return nil
	}
}

// NewGate builds a gate over the standard profile store.
func NewGate(standard ProfileStore, opts ...GateOption) (*Gate, error) {
	if standard == nil {
		return nil, errors.New("profile store is required")
	}
	g := &Gate{standard: standard, log: obs.Logger()}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// ResolveCaller resolves the identity recorded in ctx. Callers without an
// identity get ErrNotFound.
func (g *Gate) ResolveCaller(ctx context.Context) (Profile, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return Profile{}, ErrNotFound
	}
	return g.ResolveActor(ctx, id)
}

// ResolveActor fetches the profile for identityID. ErrNotFound means the
// caller must be treated as unauthenticated; this includes a circular policy
// failure that could not be recovered. Other storage errors are returned
// wrapped.
func (g *Gate) ResolveActor(ctx context.Context, identityID string) (Profile, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return Profile{}, ErrNotFound
	}
	p, err := g.standard.FetchProfile(ctx, identityID)
	if err == nil {
		return p, nil
	}
	if errors.Is(err, ErrNotFound) {
		return Profile{}, ErrNotFound
	}
	if !errors.Is(err, ErrCircularPolicy) {
		return Profile{}, fmt.Errorf("fetch profile: %w", err)
	}

	entry := g.log.WithField("identity_id", identityID)
	caller, _ := IdentityFromContext(ctx)
	switch {
	case caller != identityID:
		entry.Warn("circular policy on foreign profile lookup; fallback refused")
		obs.RecordFallback("refused")
		return Profile{}, ErrNotFound
	case g.privileged == nil:
		entry.Warn("circular policy on profile lookup; no privileged store configured")
		obs.RecordFallback("unconfigured")
		return Profile{}, ErrNotFound
	}

	p, err = g.privileged.FetchProfile(ctx, identityID)
	if err != nil {
		entry.WithError(err).Warn("privileged profile lookup failed")
		obs.RecordFallback("failed")
		return Profile{}, ErrNotFound
	}
	entry.Info("profile resolved through privileged store")
	obs.RecordFallback("recovered")
	return p, nil
}

// LookupProfile fetches another identity's profile, e.g. the target of an
// administrative action. It never uses the privileged store.
func (g *Gate) LookupProfile(ctx context.Context, identityID string) (Profile, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return Profile{}, fmt.Errorf("%w: identity_id is required", ErrInvalidInput)
	}
	p, err := g.standard.FetchProfile(ctx, identityID)
	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, ErrNotFound):
		return Profile{}, ErrNotFound
	default:
		return Profile{}, fmt.Errorf("fetch profile: %w", err)
	}
}

// EffectivePermissions is the only place the ban rule is applied: a missing
// or inactive profile carries no permissions whatever its role. A profile
// whose active flag disagrees with its suspension stamp counts as inactive.
func EffectivePermissions(p *Profile) PermissionSet {
	if p == nil || !p.IsActive || !p.Consistent() {
		return PermissionSet{}
	}
	return PermissionsFor(p.Role)
}
