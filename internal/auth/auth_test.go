package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTokenIssueAndParse(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	m, err := NewTokenManager("s3cret", WithIssuer("test-issuer"), WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	token, expires, err := m.Issue("user-42", "Ada", "ada@example.com", 30*time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !expires.Equal(now.Add(30 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", expires)
	}
	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "user-42" || claims.Issuer != "test-issuer" || claims.Name != "Ada" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("expected jti")
	}
}

func TestTokenParseRejects(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	clock := now
	m, _ := NewTokenManager("s3cret", WithClock(func() time.Time { return clock }))
	token, _, err := m.Issue("user-1", "", "", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	other, _ := NewTokenManager("different", WithClock(func() time.Time { return clock }))
	if _, err := other.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected signature failure, got %v", err)
	}
	foreign, _ := NewTokenManager("s3cret", WithIssuer("elsewhere"), WithClock(func() time.Time { return clock }))
	if _, err := foreign.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected issuer failure, got %v", err)
	}

	clock = now.Add(2 * time.Minute)
	if _, err := m.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expiry failure, got %v", err)
	}
	if _, err := m.Parse("   "); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected empty token failure, got %v", err)
	}
}

func TestTokenManagerValidation(t *testing.T) {
	if _, err := NewTokenManager(" "); err == nil {
		t.Fatal("expected error for empty secret")
	}
	m, _ := NewTokenManager("x")
	if _, _, err := m.Issue("", "", "", time.Minute); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, _, err := m.Issue("u", "", "", 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if _, ok := IdentityFromContext(ctx); ok {
		t.Fatal("unexpected identity")
	}
	if ActorFromContext(ctx) != nil {
		t.Fatal("unexpected actor")
	}
	ctx = ContextWithIdentity(ctx, " user-7 ")
	id, ok := IdentityFromContext(ctx)
	if !ok || id != "user-7" {
		t.Fatalf("unexpected identity %q %v", id, ok)
	}
	ctx = ContextWithActor(ctx, *activeProfile("user-7", RoleMember))
	actor := ActorFromContext(ctx)
	if actor == nil || actor.IdentityID != "user-7" {
		t.Fatalf("unexpected actor %+v", actor)
	}
	actor.Role = RoleAdministrator
	if ActorFromContext(ctx).Role != RoleMember {
		t.Fatal("actor from context must be a copy")
	}
	if ContextWithIdentity(context.Background(), "") != context.Background() {
		t.Fatal("empty identity should not change context")
	}
}
