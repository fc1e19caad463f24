package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bete/backend/internal/models"
	"github.com/bete/backend/internal/services"
)

// MessageBroadcaster relays a stored message to live sockets joined to its chat.
type MessageBroadcaster interface {
	BroadcastMessage(msg *models.Message)
}

type ChatHandler struct {
	chatService services.ChatService
	userService *services.UserService
	relay       MessageBroadcaster
}

// NewChatHandler wires the REST chat endpoints. relay may be nil.
func NewChatHandler(chatService services.ChatService, userService *services.UserService, relay MessageBroadcaster) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		userService: userService,
		relay:       relay,
	}
}

// Open finds or creates the chat with another user.
func (h *ChatHandler) Open(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req models.CreateChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.OtherUserID = strings.TrimSpace(req.OtherUserID)

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	if req.OtherUserID != userID {
		if _, err := h.userService.GetByID(ctx, req.OtherUserID); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}

	chat, err := h.chatService.Open(ctx, userID, &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(chat))
}

func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	chats, err := h.chatService.List(ctx, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	ids := make([]string, 0, len(chats))
	for _, c := range chats {
		ids = append(ids, c.OtherParticipant(userID))
	}
	users, err := h.userService.GetMany(ctx, ids)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	for i := range chats {
		chats[i].OtherUser = users[chats[i].OtherParticipant(userID)]
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(chats))
}

// Messages pages backwards with ?before=<RFC3339>&limit=n.
func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	var before *time.Time
	if raw := q.Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(map[string]string{"before": "before must be an RFC3339 timestamp"}))
			return
		}
		before = &t
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	msgs, err := h.chatService.Messages(ctx, userID, chi.URLParam(r, "id"), limit, before)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(msgs))
}

func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req models.SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	msg, err := h.chatService.Send(ctx, userID, chi.URLParam(r, "id"), req.Content)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if h.relay != nil {
		h.relay.BroadcastMessage(msg)
	}

	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(msg))
}

func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	if err := h.chatService.MarkRead(ctx, userID, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]bool{"read": true}))
}
