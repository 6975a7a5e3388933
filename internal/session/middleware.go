package session

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type CookieOptions struct {
	Name   string
	TTL    time.Duration
	Secure bool
}

// Middleware loads the visitor's session (creating one when the cookie is
// missing, unknown or expired) and stores it in the request context. Handlers
// persist their changes explicitly through Store.Save.
func Middleware(store Store, opts CookieOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var sess *Session
			if cookie, err := r.Cookie(opts.Name); err == nil && cookie.Value != "" {
				loaded, err := store.Get(ctx, cookie.Value)
				switch {
				case err == nil:
					sess = loaded
				case errors.Is(err, ErrSessionNotFound):
					log.Debug().Str("session_id", cookie.Value).Msg("session: cookie references unknown session, starting a new one")
				default:
					log.Error().Err(err).Str("session_id", cookie.Value).Msg("session: failed to load session")
					http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
					return
				}
			}

			if sess == nil {
				created, err := New()
				if err != nil {
					log.Error().Err(err).Msg("session: failed to create session")
					http.Error(w, "failed to create session", http.StatusInternalServerError)
					return
				}
				sess = created
			}

			http.SetCookie(w, &http.Cookie{
				Name:     opts.Name,
				Value:    sess.ID,
				Path:     "/",
				MaxAge:   int(opts.TTL.Seconds()),
				HttpOnly: true,
				Secure:   opts.Secure,
				SameSite: http.SameSiteLaxMode,
			})

			next.ServeHTTP(w, r.WithContext(WithSession(ctx, sess)))
		})
	}
}
