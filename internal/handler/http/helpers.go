package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/catalog"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/checkout"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/customer"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/order"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/session"
)

type ValidationErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("handler: failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("handler: failed to write JSON response")
	}
}

func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, customer.ErrCustomerNotFound):
		return http.StatusNotFound
	case errors.Is(err, checkout.ErrAuthenticationRequired):
		return http.StatusUnauthorized
	case errors.Is(err, order.ErrInvalidStatusTransition),
		errors.Is(err, order.ErrInvalidPaymentTransition),
		errors.Is(err, order.ErrInsufficientStock),
		errors.Is(err, order.ErrDuplicateOrderNumber):
		return http.StatusConflict
	case errors.Is(err, order.ErrUnknownStatus),
		errors.Is(err, order.ErrUnknownPaymentStatus),
		errors.Is(err, checkout.ErrInvalidPaymentMethod),
		errors.Is(err, checkout.ErrEmptyCart):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// formatValidationErrors keys messages by the field's form name.
func formatValidationErrors(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		var msg string
		switch fe.Tag() {
		case "required":
			msg = "This field is required."
		case "max":
			msg = fmt.Sprintf("Must be at most %s characters.", fe.Param())
		case "min":
			msg = fmt.Sprintf("Must be at least %s characters.", fe.Param())
		case "oneof":
			msg = fmt.Sprintf("Must be one of: %s.", fe.Param())
		default:
			msg = fmt.Sprintf("Failed the %q check.", fe.Tag())
		}
		details[fe.Field()] = msg
	}
	return details
}

// saveSession persists the request session and reports whether the handler
// may continue writing a response.
func saveSession(w http.ResponseWriter, r *http.Request, store session.Store, sess *session.Session) bool {
	if err := store.Save(r.Context(), sess); err != nil {
		log.Error().Err(err).Str("session_id", sess.ID).Msg("handler: failed to save session")
		respondWithError(w, http.StatusServiceUnavailable, "Session store unavailable")
		return false
	}
	return true
}

// redirectWithFlash stores a flash message and answers 303 to location.
func redirectWithFlash(w http.ResponseWriter, r *http.Request, store session.Store, sess *session.Session, category, message, location string) {
	if message != "" {
		sess.AddFlash(category, message)
	}
	if !saveSession(w, r, store, sess) {
		return
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

// safeReferer returns the referring path when it points back at this host.
func safeReferer(r *http.Request, fallback string) string {
	ref := r.Referer()
	if ref == "" {
		return fallback
	}
	u, err := url.Parse(ref)
	if err != nil || (u.Host != "" && u.Host != r.Host) || !strings.HasPrefix(u.Path, "/") {
		return fallback
	}
	if u.RawQuery != "" {
		return u.Path + "?" + u.RawQuery
	}
	return u.Path
}
