package handlers

import (
	"context"
	"net"
	"net/http"

	"github.com/bete/backend/internal/logging"
	"github.com/bete/backend/internal/models"
	"github.com/bete/backend/internal/services"
)

type AuthHandler struct {
	userService *services.UserService
	tokens      *services.TokenIssuer
	recaptcha   *services.RecaptchaVerifier
}

// NewAuthHandler wires signup and login. recaptcha may be nil, which turns
// the signup check off.
func NewAuthHandler(userService *services.UserService, tokens *services.TokenIssuer, recaptcha *services.RecaptchaVerifier) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		tokens:      tokens,
		recaptcha:   recaptcha,
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	if h.recaptcha.Enabled() {
		verdict, err := h.recaptcha.Verify(ctx, req.RecaptchaToken, clientIP(r))
		if err != nil {
			logging.Warn().Err(err).Msg("recaptcha verify failed")
			writeError(w, http.StatusBadGateway, models.ErrTagCaptchaFailed)
			return
		}
		if !verdict.OK {
			logging.Info().Str("reason", verdict.Reason).Str("email", req.Email).Msg("signup captcha rejected")
			writeError(w, http.StatusBadRequest, models.ErrTagCaptchaFailed)
			return
		}
	}

	user, err := h.userService.Register(ctx, &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.respondWithToken(w, r, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	user, err := h.userService.Login(ctx, &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.respondWithToken(w, r, http.StatusOK, user)
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, r *http.Request, status int, user *models.User) {
	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, status, models.NewSuccessResponse(models.AuthResponse{
		Token: token,
		User:  *user,
	}))
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
