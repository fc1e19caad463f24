package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/bete/backend/internal/logging"
	"github.com/bete/backend/internal/middleware"
	"github.com/bete/backend/internal/models"
	"github.com/bete/backend/internal/services"
)

const (
	storeTimeout = 10 * time.Second
	maxJSONBody  = 1 << 20
)

type validatable interface {
	Validate() map[string]string
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Warn().Err(err).Msg("write response")
	}
}

func writeError(w http.ResponseWriter, status int, tag string) {
	writeJSON(w, status, models.NewErrorResponse(tag))
}

// decodeJSON reads the body into dst and runs its validation. It writes the
// error response and returns false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst validatable) bool {
	if !decodeBody(w, r, dst) {
		return false
	}
	return validateRequest(w, dst)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, models.ErrTagBadRequest)
		return false
	}
	return true
}

func validateRequest(w http.ResponseWriter, req validatable) bool {
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errs))
		return false
	}
	return true
}

// requireUser returns the authenticated user id, or writes 401.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, models.ErrTagMissingAuth)
		return "", false
	}
	return userID, true
}

var errorTable = []struct {
	err    error
	status int
	tag    string
}{
	{services.ErrInvalidCredentials, http.StatusUnauthorized, models.ErrTagInvalidCredentials},
	{services.ErrEmailExists, http.StatusConflict, models.ErrTagUserExists},
	{services.ErrForbidden, http.StatusForbidden, models.ErrTagForbidden},
	{services.ErrNotParticipant, http.StatusForbidden, models.ErrTagNotParticipant},
	{services.ErrAlreadyFavorited, http.StatusConflict, models.ErrTagAlreadyFavorited},
	{services.ErrFavoriteNotFound, http.StatusNotFound, models.ErrTagFavoriteNotFound},
	{services.ErrFavoriteBadInput, http.StatusBadRequest, models.ErrTagBadRequest},
	{services.ErrChatWithSelf, http.StatusBadRequest, models.ErrTagChatWithSelf},
	{services.ErrRentalEnded, http.StatusConflict, models.ErrTagRentalEnded},
	{services.ErrRentalNoTenant, http.StatusConflict, models.ErrTagNoTenant},
	{services.ErrInviteUsed, http.StatusConflict, models.ErrTagInviteUsed},
	{services.ErrOwnInvite, http.StatusBadRequest, models.ErrTagOwnInvite},
	{services.ErrInvalidDueDate, http.StatusBadRequest, models.ErrTagInvalidDueDate},
	{services.ErrInvalidImage, http.StatusBadRequest, models.ErrTagInvalidImage},
	{services.ErrImageRejected, http.StatusUnprocessableEntity, models.ErrTagImageRejected},
	{services.ErrMailerNotConfigured, http.StatusServiceUnavailable, models.ErrTagMailerNotConfigured},
	{services.ErrUserNotFound, http.StatusNotFound, models.ErrTagNotFound},
	{services.ErrPropertyNotFound, http.StatusNotFound, models.ErrTagNotFound},
	{services.ErrFavoritePropertyGone, http.StatusNotFound, models.ErrTagNotFound},
	{services.ErrChatNotFound, http.StatusNotFound, models.ErrTagNotFound},
	{services.ErrRentalNotFound, http.StatusNotFound, models.ErrTagNotFound},
	{services.ErrInviteNotFound, http.StatusNotFound, models.ErrTagNotFound},
	{services.ErrReminderNotFound, http.StatusNotFound, models.ErrTagNotFound},
	{services.ErrDeviceNotFound, http.StatusNotFound, models.ErrTagNotFound},
	{services.ErrImageNotFound, http.StatusNotFound, models.ErrTagNotFound},
}

// writeServiceError maps a service error to its status and tag. Anything
// unknown is logged and reported as internal_error.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			writeError(w, e.status, e.tag)
			return
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		logging.Warn().Err(err).Str("path", r.URL.Path).Msg("store timeout")
	} else {
		logging.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, http.StatusInternalServerError, models.ErrTagInternal)
}
