// Package auth resolves the caller's identity from bearer credentials and
// carries it through the request context.
package auth

import (
	"context"
	"net/http"
	"strings"
)

// Principal is the authenticated caller. Identity is the key under which
// conversations are stored; APIKey is the token that authenticated it.
type Principal struct {
	Identity string
	APIKey   string
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok && p != nil
}

// IdentityFrom returns the caller's identity, or "" for anonymous requests.
func IdentityFrom(ctx context.Context) string {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return ""
	}
	return p.Identity
}

func ParseBearer(r *http.Request) (string, bool) {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if authz == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authz, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}
