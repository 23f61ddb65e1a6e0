package api

import (
	"context"
	"net/http"

	"github.com/kalambet/stepup/internal/auth"
)

type principalKey struct{}

// RequireScope authenticates the bearer JWT and requires scope. The
// principal is stored on the request context.
func RequireScope(v *auth.Verifier, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.ExtractToken(r.Header.Get("Authorization"))
			if err != nil {
				writeError(w, err)
				return
			}
			p, err := v.Verify(token, scope)
			if err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
		})
	}
}

func principalFrom(ctx context.Context) auth.Principal {
	p, _ := ctx.Value(principalKey{}).(auth.Principal)
	return p
}
