package authctx

import (
	"context"
)

type ctxKey string

const (
	principalKey ctxKey = "principal"
	slotKey      ctxKey = "principal-slot"
)

// Principal is the verified caller of a request.
type Principal struct {
	UID    string
	Email  string
	Name   string
	Claims map[string]any
}

type slot struct {
	p *Principal
}

// WithSlot reserves a place for the principal so middleware running outside
// authentication can still read who the caller was once the handler returns.
func WithSlot(ctx context.Context) context.Context {
	return context.WithValue(ctx, slotKey, &slot{})
}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	if s, ok := ctx.Value(slotKey).(*slot); ok {
		s.p = p
	}
	return context.WithValue(ctx, principalKey, p)
}

func From(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	if !ok {
		if s, found := ctx.Value(slotKey).(*slot); found {
			p, ok = s.p, true
		}
	}
	return p, ok && p != nil && p.UID != ""
}

// UID is the caller's uid, or "" outside an authenticated request.
func UID(ctx context.Context) string {
	if p, ok := From(ctx); ok {
		return p.UID
	}
	return ""
}
