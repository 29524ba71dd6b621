package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"pollhub.org/internal/audit"
)

type memoryProfiles struct {
	stubProfiles
}

func newMemoryProfiles(profiles ...*Profile) *memoryProfiles {
	m := &memoryProfiles{stubProfiles{profiles: map[string]Profile{}}}
	for _, p := range profiles {
		m.profiles[p.IdentityID] = *p
	}
	return m
}

func (m *memoryProfiles) UpdateRole(_ context.Context, id string, role Role) (Profile, error) {
	p, ok := m.profiles[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	p.Role = role
	m.profiles[id] = p
	return p, nil
}

func (m *memoryProfiles) SetSuspension(_ context.Context, id string, s Suspension) (Profile, error) {
	p, ok := m.profiles[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	p.SuspendedAt, p.SuspendedBy, p.SuspensionReason = s.At, s.By, s.Reason
	p.IsActive = s.At == nil
	m.profiles[id] = p
	return p, nil
}

func newTestRBAC(t *testing.T, store *memoryProfiles) (*RBACService, *audit.RingSink) {
	t.Helper()
	ring, err := audit.NewRingSink(16)
	if err != nil {
		t.Fatalf("NewRingSink: %v", err)
	}
	fixed := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	svc, err := NewRBACService(newTestGate(t, store, nil), store,
		WithAuditSink(ring), WithRBACClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("NewRBACService: %v", err)
	}
	return svc, ring
}

func TestChangeRole(t *testing.T) {
	admin := activeProfile("admin", RoleAdministrator)
	member := activeProfile("m1", RoleMember)
	store := newMemoryProfiles(admin, member)
	svc, ring := newTestRBAC(t, store)
	ctx := context.Background()

	updated, err := svc.ChangeRole(ctx, admin, "m1", RoleAdministrator)
	if err != nil {
		t.Fatalf("ChangeRole: %v", err)
	}
	if updated.Role != RoleAdministrator {
		t.Fatalf("role not updated: %+v", updated)
	}
	events := ring.Recent(audit.Filter{Type: audit.EventRoleChanged})
	if len(events) != 1 || events[0].ResourceID != "m1" || events[0].Metadata["previous_role"] != "user" {
		t.Fatalf("unexpected audit events %+v", events)
	}

	if _, err := svc.ChangeRole(ctx, member, "admin", RoleMember); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for member, got %v", err)
	}
	if _, err := svc.ChangeRole(ctx, admin, "m1", Role("root")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.ChangeRole(ctx, admin, "ghost", RoleMember); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSuspendAndUnsuspend(t *testing.T) {
	admin := activeProfile("admin", RoleAdministrator)
	store := newMemoryProfiles(admin, activeProfile("m1", RoleMember))
	svc, ring := newTestRBAC(t, store)
	ctx := context.Background()

	p, err := svc.Suspend(ctx, admin, "m1", "spam")
	if err != nil {
		t.Fatalf("Suspend: %v", err)
	}
	if p.IsActive || p.SuspendedAt == nil || *p.SuspendedBy != "admin" || *p.SuspensionReason != "spam" {
		t.Fatalf("unexpected suspended profile %+v", p)
	}
	if !p.Consistent() {
		t.Fatal("suspended profile violates active/suspended invariant")
	}
	if len(EffectivePermissions(&p)) != 0 {
		t.Fatal("suspended profile kept permissions")
	}

	p, err = svc.Unsuspend(ctx, admin, "m1")
	if err != nil {
		t.Fatalf("Unsuspend: %v", err)
	}
	if !p.IsActive || p.SuspendedAt != nil || p.SuspendedBy != nil || p.SuspensionReason != nil {
		t.Fatalf("suspension not cleared: %+v", p)
	}
	if got := len(ring.Recent(audit.Filter{ResourceID: "m1"})); got != 2 {
		t.Fatalf("expected 2 audit events, got %d", got)
	}
}

func TestSuspendRules(t *testing.T) {
	admin := activeProfile("admin", RoleAdministrator)
	member := activeProfile("m1", RoleMember)
	store := newMemoryProfiles(admin, member)
	svc, _ := newTestRBAC(t, store)
	ctx := context.Background()

	if _, err := svc.Suspend(ctx, admin, "admin", "oops"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected self-suspension rejection, got %v", err)
	}
	if _, err := svc.Suspend(ctx, admin, "m1", "  "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected reason required, got %v", err)
	}
	if _, err := svc.Suspend(ctx, member, "admin", "revenge"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Unsuspend(ctx, nil, "m1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for anonymous, got %v", err)
	}
}

type fixedDirectory struct {
	profiles []Profile
	counts   ProfileCounts
	gotLimit int
}

func (d *fixedDirectory) ListProfiles(_ context.Context, limit, offset int) ([]Profile, error) {
	d.gotLimit = limit
	if offset >= len(d.profiles) {
		return nil, nil
	}
	return d.profiles[offset:], nil
}

func (d *fixedDirectory) CountProfiles(context.Context) (ProfileCounts, error) {
	return d.counts, nil
}

type fixedContent ContentTotals

func (c fixedContent) CountContent(context.Context) (ContentTotals, error) {
	return ContentTotals(c), nil
}

func TestListAndStats(t *testing.T) {
	admin := activeProfile("root", RoleAdministrator)
	member := activeProfile("m", RoleMember)
	store := newMemoryProfiles(admin, member)
	dir := &fixedDirectory{
		profiles: []Profile{*member, *admin},
		counts:   ProfileCounts{Total: 2, Active: 2, Administrators: 1},
	}
	svc, err := NewRBACService(newTestGate(t, store, nil), store,
		WithDirectory(dir), WithContentCounter(fixedContent{Polls: 3, Comments: 4, Votes: 5}))
	if err != nil {
		t.Fatalf("NewRBACService: %v", err)
	}
	ctx := context.Background()

	if _, err := svc.List(ctx, member, 10, 0); !errors.Is(err, ErrForbidden) {
		t.Fatalf("member listing should be forbidden, got %v", err)
	}
	if _, err := svc.List(ctx, admin, 0, 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid limit, got %v", err)
	}
	if _, err := svc.List(ctx, admin, 10, -1); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid offset, got %v", err)
	}
	got, err := svc.List(ctx, admin, 10, 0)
	if err != nil || len(got) != 2 || dir.gotLimit != 10 {
		t.Fatalf("List = %+v, %v (limit %d)", got, err, dir.gotLimit)
	}

	if _, err := svc.Stats(ctx, member); !errors.Is(err, ErrForbidden) {
		t.Fatalf("member stats should be forbidden, got %v", err)
	}
	stats, err := svc.Stats(ctx, admin)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := IdentityStats{ProfileCounts: dir.counts, ContentTotals: ContentTotals{Polls: 3, Comments: 4, Votes: 5}}
	if stats != want {
		t.Fatalf("Stats = %+v, want %+v", stats, want)
	}

	bare, err := NewRBACService(newTestGate(t, store, nil), store)
	if err != nil {
		t.Fatalf("NewRBACService: %v", err)
	}
	if _, err := bare.List(ctx, admin, 10, 0); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable without a directory, got %v", err)
	}
}
