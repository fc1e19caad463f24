package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/bete/backend/internal/models"
	"github.com/bete/backend/internal/services"
)

const accountDeleteTimeout = 30 * time.Second

type AccountHandler struct {
	accountService *services.AccountService
}

func NewAccountHandler(accountService *services.AccountService) *AccountHandler {
	return &AccountHandler{accountService: accountService}
}

// DeleteMe removes the caller's account and everything it owns.
func (h *AccountHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), accountDeleteTimeout)
	defer cancel()

	res, err := h.accountService.DeleteAccount(ctx, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(res))
}
