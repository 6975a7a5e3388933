package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/cart"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/customer"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/session"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			event := log.Info()
			if ww.Status() >= http.StatusInternalServerError {
				event = log.Error()
			}
			event.
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		}()

		next.ServeHTTP(ww, r)
	})
}

// bindIdentity copies the identity asserted by the gateway onto the session.
// Signing in restores the user's saved cart into an empty session cart;
// signing out or switching users drops the session cart.
func bindIdentity(sessions session.Store, customers customer.Repository, carts cart.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sess := session.FromContext(ctx)
			if sess == nil {
				respondWithError(w, http.StatusInternalServerError, "Session missing")
				return
			}

			userID := uuid.Nil
			if raw := r.Header.Get(HeaderUserID); raw != "" {
				parsed, err := uuid.FromString(raw)
				if err != nil {
					respondWithError(w, http.StatusBadRequest, "Invalid user identity")
					return
				}
				userID = parsed
			}
			role := session.RoleCustomer
			if userID != uuid.Nil && r.Header.Get(HeaderUserRole) == session.RoleAdmin {
				role = session.RoleAdmin
			}

			if userID == sess.UserID && (userID == uuid.Nil || role == sess.Role) {
				next.ServeHTTP(w, r)
				return
			}

			if sess.Authenticated() && userID != sess.UserID {
				log.Info().Stringer("user_id", sess.UserID).Str("session_id", sess.ID).Msg("handler: identity left session, dropping session cart")
				clear(sess.Cart)
			}

			signingIn := userID != uuid.Nil && userID != sess.UserID
			sess.UserID = userID
			sess.Role = ""
			if userID != uuid.Nil {
				sess.Role = role
				if err := customers.Ensure(ctx, userID, role); err != nil {
					log.Error().Err(err).Stringer("user_id", userID).Msg("handler: failed to record customer")
					respondWithError(w, http.StatusServiceUnavailable, "Customer store unavailable")
					return
				}
			}

			if signingIn {
				if err := carts.Restore(ctx, sess.CartContext()); err != nil {
					log.Warn().Err(err).Stringer("user_id", userID).Msg("handler: failed to restore saved cart")
				}
			}

			if !saveSession(w, r, sessions, sess) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := session.FromContext(r.Context())
		if sess == nil || !sess.Authenticated() {
			respondWithError(w, http.StatusUnauthorized, "Please sign in to continue")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := session.FromContext(r.Context())
		if sess == nil || !sess.Authenticated() {
			respondWithError(w, http.StatusUnauthorized, "Please sign in to continue")
			return
		}
		if !sess.IsAdmin() {
			respondWithError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
