package auth

import (
	"context"
	"strings"
)

type identityContextKey struct{}
type actorContextKey struct{}
type claimsContextKey struct{}

// ContextWithIdentity records the authenticated caller's identity id. The
// profile gate only falls back to privileged lookups for this id.
func ContextWithIdentity(ctx context.Context, identityID string) context.Context {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return ctx
	}
	return context.WithValue(ctx, identityContextKey{}, identityID)
}

// IdentityFromContext returns the authenticated caller's identity id.
func IdentityFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(identityContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// ContextWithActor attaches the resolved profile of the caller.
func ContextWithActor(ctx context.Context, actor Profile) context.Context {
	return context.WithValue(ctx, actorContextKey{}, &actor)
}

// ActorFromContext returns the resolved caller profile or nil for anonymous
// callers.
func ActorFromContext(ctx context.Context) *Profile {
	if ctx == nil {
		return nil
	}
	v, ok := ctx.Value(actorContextKey{}).(*Profile)
	if !ok || v == nil {
		return nil
	}
	cp := *v
	return &cp
}

// ContextWithClaims stores the verified token claims.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	if claims == nil {
		return ctx
	}
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext returns the verified token claims if present.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(claimsContextKey{}).(*Claims)
	return v, ok && v != nil
}
