package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/fazaproducts/storefront/internal/platform/requestctx"
)

const (
	sessionCookieName = requestctx.SessionCookie
	sessionMaxAge     = 30 * 24 * time.Hour
)

// SessionMiddleware assigns each shopper a random session id kept in a cookie and stores it on
// the request context. Cookies that are not UUIDs are replaced.
func SessionMiddleware(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if c, err := r.Cookie(sessionCookieName); err == nil {
				if parsed, err := uuid.Parse(c.Value); err == nil {
					id = parsed.String()
				}
			}
			if id == "" {
				id = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     sessionCookieName,
					Value:    id,
					Path:     "/",
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
					MaxAge:   int(sessionMaxAge / time.Second),
				})
			}
			next.ServeHTTP(w, r.WithContext(requestctx.WithSession(r.Context(), id)))
		})
	}
}
