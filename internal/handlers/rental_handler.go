package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bete/backend/internal/logging"
	"github.com/bete/backend/internal/models"
	"github.com/bete/backend/internal/services"
)

type RentalHandler struct {
	rentalService *services.RentalService
	userService   *services.UserService
	properties    services.PropertyLookup
	mailer        services.InviteMailer
}

// NewRentalHandler wires the rental endpoints. mailer may be nil; invites are
// then only returned to the owner.
func NewRentalHandler(rentalService *services.RentalService, userService *services.UserService, properties services.PropertyLookup, mailer services.InviteMailer) *RentalHandler {
	return &RentalHandler{
		rentalService: rentalService,
		userService:   userService,
		properties:    properties,
		mailer:        mailer,
	}
}

func (h *RentalHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req models.CreateRentalRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	rental, err := h.rentalService.Create(ctx, userID, &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(rental))
}

// Mine lists rentals for ?role=renter (default) or ?role=owner.
func (h *RentalHandler) Mine(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	role := r.URL.Query().Get("role")
	switch role {
	case "":
		role = models.RentalRoleRenter
	case models.RentalRoleRenter, models.RentalRoleOwner:
	default:
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(map[string]string{"role": "role must be one of: renter, owner"}))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	rentals, err := h.rentalService.Mine(ctx, userID, role)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(rentals))
}

func (h *RentalHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	rental, err := h.rentalService.Get(ctx, userID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(rental))
}

func (h *RentalHandler) End(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	rental, err := h.rentalService.End(ctx, userID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(rental))
}

// Pay records a payment. An empty body pays the rent amount.
func (h *RentalHandler) Pay(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req models.PayRentalRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	payment, rental, err := h.rentalService.Pay(ctx, userID, chi.URLParam(r, "id"), &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(models.PayRentalResponse{
		Payment: *payment,
		Rental:  *rental,
	}))
}

func (h *RentalHandler) Payments(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	payments, err := h.rentalService.Payments(ctx, userID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(payments))
}

func (h *RentalHandler) AddReminder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req models.CreateRentalReminderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	rem, err := h.rentalService.AddReminder(ctx, userID, chi.URLParam(r, "id"), &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(rem))
}

func (h *RentalHandler) Reminders(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	rems, err := h.rentalService.Reminders(ctx, userID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(rems))
}

// Remind pushes the current status to the other party now.
func (h *RentalHandler) Remind(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	devices, err := h.rentalService.Remind(ctx, userID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]int{"devices": devices}))
}

// CreateInvite issues a code and emails it when an invitee address is given
// and a mailer is configured. A failed email does not fail the request.
func (h *RentalHandler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req models.CreateInviteRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}
	rentalID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	invite, err := h.rentalService.CreateInvite(ctx, userID, rentalID, &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := models.InviteResponse{RentalInvite: *invite}
	if invite.InviteeEmail != "" && h.mailer != nil {
		err := h.mailer.SendInviteEmail(ctx, h.inviteEmail(ctx, userID, rentalID, invite))
		switch {
		case err == nil:
			resp.EmailSent = true
		case errors.Is(err, services.ErrMailerNotConfigured):
			logging.Debug().Str("rental_id", rentalID).Msg("invite email skipped, no mailer")
		default:
			logging.Warn().Err(err).Str("rental_id", rentalID).Msg("invite email failed")
		}
	}

	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(resp))
}

func (h *RentalHandler) inviteEmail(ctx context.Context, userID, rentalID string, invite *models.RentalInvite) services.InviteEmail {
	mail := services.InviteEmail{To: invite.InviteeEmail, Code: invite.Code}
	if owner, err := h.userService.GetByID(ctx, userID); err == nil {
		mail.InviterName = owner.Name
	}
	if rental, err := h.rentalService.Get(ctx, userID, rentalID); err == nil {
		if p, err := h.properties.GetByID(ctx, rental.PropertyID); err == nil {
			mail.PropertyTitle = p.Title
		}
	}
	return mail
}

func (h *RentalHandler) Invites(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	invites, err := h.rentalService.Invites(ctx, userID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(invites))
}

func (h *RentalHandler) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	rental, err := h.rentalService.AcceptInvite(ctx, userID, chi.URLParam(r, "code"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(rental))
}
