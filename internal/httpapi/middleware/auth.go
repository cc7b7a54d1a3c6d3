package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// TokenParser resolves an access token to the account it was issued for.
type TokenParser interface {
	Parse(raw string) (domain.AccountID, error)
}

type accountKey struct{}

// WithAccount stores the authenticated account id in ctx.
func WithAccount(ctx context.Context, id domain.AccountID) context.Context {
	return context.WithValue(ctx, accountKey{}, id)
}

// AccountID returns the id stored by RequireUser.
func AccountID(ctx context.Context) (domain.AccountID, bool) {
	id, ok := ctx.Value(accountKey{}).(domain.AccountID)
	return id, ok && id != ""
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// RequireUser rejects requests without a valid bearer token.
func RequireUser(p TokenParser) func(http.Handler) http.Handler {
	return require(p, false)
}

// RequireUserQuery also accepts the token as ?token=, for clients that
// cannot set headers (browser websockets).
func RequireUserQuery(p TokenParser) func(http.Handler) http.Handler {
	return require(p, true)
}

func require(p TokenParser, allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearer(r)
			if raw == "" && allowQuery {
				raw = r.URL.Query().Get("token")
			}
			if raw == "" {
				unauthorized(w, "Not authenticated")
				return
			}
			id, err := p.Parse(raw)
			if err != nil {
				unauthorized(w, "Could not validate credentials")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), id)))
		})
	}
}

func unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"detail":"` + detail + `"}`))
}
