package auth

import (
	"context"

	"quizdesk-service/internal/domain"
)

type ctxKey string

const ctxKeyPrincipal ctxKey = "principal"

func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

// PrincipalFrom returns the caller attached by Middleware, or the zero principal.
func PrincipalFrom(ctx context.Context) domain.Principal {
	if v := ctx.Value(ctxKeyPrincipal); v != nil {
		if p, ok := v.(domain.Principal); ok {
			return p
		}
	}
	return domain.Principal{}
}
