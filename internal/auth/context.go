package auth

import "context"

type principalContextKey struct{}
type tokenContextKey struct{}

// ContextWithPrincipal attaches the authenticated caller to the context.
// The bearer middleware sets it once per request; handlers and the audit
// trail read it back.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated caller, if any. Requests on
// public paths (webhooks, health probes) carry no principal.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}

// ActorID returns the authenticated user's id, or "" for anonymous callers.
// It is the value recorded in created_by columns and audit events.
func ActorID(ctx context.Context) string {
	principal, ok := PrincipalFromContext(ctx)
	if !ok || principal.User == nil {
		return ""
	}
	return principal.User.ID
}

// ContextWithToken stores the raw bearer token so downstream calls can
// forward the caller's credentials.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the bearer token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
