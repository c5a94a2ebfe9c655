// Package auth gates mutating requests behind the shared admin secret.
package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/digitaldrywood/opsboard/internal/apperr"
)

// Header carries the admin secret on mutating requests.
const Header = "x-admin-pass"

type Guard struct {
	secret string
}

func NewGuard(secret string) *Guard {
	return &Guard{secret: secret}
}

// Check fails with an unauthorized error unless presented equals the
// configured secret. An unconfigured secret rejects everything.
func (g *Guard) Check(presented string) error {
	if g == nil || g.secret == "" || presented == "" {
		return apperr.Unauthorized("unauthorized")
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(g.secret)) != 1 {
		return apperr.Unauthorized("unauthorized")
	}
	return nil
}

// Require wraps next so it only runs for requests carrying the secret.
// onDenied writes the rejection.
func (g *Guard) Require(onDenied func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := g.Check(r.Header.Get(Header)); err != nil {
				onDenied(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
