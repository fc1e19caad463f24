// Package websocket relays chat messages to connected clients. Clients join
// chat rooms, messages sent over a socket are persisted and then fanned out to
// every socket joined to that chat. Delivery is fire-and-forget.
package websocket

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/bete/backend/internal/logging"
	"github.com/bete/backend/internal/metrics"
	"github.com/bete/backend/internal/middleware"
	"github.com/bete/backend/internal/models"
	"github.com/bete/backend/internal/services"
)

// Event names on the wire.
const (
	EventJoin    = "chat:join"
	EventJoined  = "chat:joined"
	EventSend    = "message:send"
	EventMessage = "message:new"
	EventError   = "error"
)

// Envelope is one frame in either direction.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

const registerWait = 5 * time.Second

type outgoing struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type joinPayload struct {
	ChatID string `json:"chatId"`
}

type sendPayload struct {
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
}

type errorPayload struct {
	Error  string `json:"error"`
	ChatID string `json:"chatId,omitempty"`
}

// ChatStore is the part of the chat service the relay needs.
type ChatStore interface {
	Get(ctx context.Context, userID, chatID string) (*models.Chat, error)
	Send(ctx context.Context, userID, chatID, content string) (*models.Message, error)
}

// Hub owns connected clients and chat room membership. Serve must be running
// for clients to register.
type Hub struct {
	chats    ChatStore
	tokens   middleware.TokenParser
	upgrader websocket.Upgrader

	register chan *Client

	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
}

// NewHub creates a hub. An empty allowedOrigins list, or one containing "*",
// accepts any origin; native clients send none.
func NewHub(chats ChatStore, tokens middleware.TokenParser, allowedOrigins []string) *Hub {
	h := &Hub{
		chats:    chats,
		tokens:   tokens,
		register: make(chan *Client),
		clients:  make(map[*Client]struct{}),
		rooms:    make(map[string]map[*Client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[strings.TrimRight(origin, "/")]
	}
}

// Serve processes registrations until ctx is done, then closes every client.
// It implements suture.Service.
func (h *Hub) Serve(ctx context.Context) error {
	logging.Info().Msg("chat hub started")
	for {
		select {
		case <-ctx.Done():
			n := h.closeAll()
			logging.Info().Int("clients_closed", n).Msg("chat hub stopped")
			return ctx.Err()
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WSConnections.Inc()
			logging.Debug().Str("user_id", c.userID).Int("total_clients", total).Msg("chat client connected")
		}
	}
}

func (h *Hub) String() string {
	return "chat-hub"
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS authenticates the bearer token (Authorization header or token
// query parameter) and upgrades the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if header := r.Header.Get("Authorization"); header != "" {
		if t, ok := middleware.BearerToken(header); ok {
			token = t
		}
	}
	if token == "" {
		http.Error(w, models.ErrTagMissingAuth, http.StatusUnauthorized)
		return
	}
	userID, err := h.tokens.Parse(token)
	if err != nil {
		http.Error(w, models.ErrTagInvalidToken, http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newClient(h, conn, userID)
	select {
	case h.register <- c:
	case <-time.After(registerWait):
		logging.Warn().Msg("chat hub not running, closing socket")
		_ = conn.Close()
		return
	}
	c.start()
}

// BroadcastMessage sends message:new to every client joined to the chat.
// Clients with a full buffer miss the message.
func (h *Hub) BroadcastMessage(msg *models.Message) {
	frame, err := json.Marshal(outgoing{Event: EventMessage, Data: msg})
	if err != nil {
		logging.Error().Err(err).Msg("encode chat message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[msg.ChatID] {
		select {
		case c.send <- frame:
			metrics.WSMessages.WithLabelValues(EventMessage, "delivered").Inc()
		default:
			metrics.WSMessages.WithLabelValues(EventMessage, "dropped").Inc()
			logging.Warn().Str("user_id", c.userID).Str("chat_id", msg.ChatID).Msg("send buffer full, dropping message")
		}
	}
}

func (h *Hub) join(c *Client, chatID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	room, ok := h.rooms[chatID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[chatID] = room
	}
	room[c] = struct{}{}
	c.rooms[chatID] = struct{}{}
	return true
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		h.detach(c)
	}
	h.mu.Unlock()
	if ok {
		metrics.WSConnections.Dec()
		logging.Debug().Str("user_id", c.userID).Msg("chat client disconnected")
	}
}

// detach drops c from the client set and its rooms and closes its send
// channel. Callers hold mu.
func (h *Hub) detach(c *Client) {
	for chatID := range c.rooms {
		if room, ok := h.rooms[chatID]; ok {
			delete(room, c)
			if len(room) == 0 {
				delete(h.rooms, chatID)
			}
		}
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) closeAll() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.clients)
	for c := range h.clients {
		h.detach(c)
		metrics.WSConnections.Dec()
	}
	return n
}

// handle dispatches one inbound frame.
func (h *Hub) handle(ctx context.Context, c *Client, env Envelope) {
	switch env.Event {
	case EventJoin:
		var p joinPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || strings.TrimSpace(p.ChatID) == "" {
			c.reply(EventError, errorPayload{Error: models.ErrTagBadRequest})
			return
		}
		if _, err := h.chats.Get(ctx, c.userID, p.ChatID); err != nil {
			c.reply(EventError, errorPayload{Error: errorTag(err), ChatID: p.ChatID})
			metrics.WSMessages.WithLabelValues(EventJoin, "denied").Inc()
			return
		}
		if h.join(c, p.ChatID) {
			c.reply(EventJoined, joinPayload{ChatID: p.ChatID})
			metrics.WSMessages.WithLabelValues(EventJoin, "ok").Inc()
		}

	case EventSend:
		var p sendPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || strings.TrimSpace(p.ChatID) == "" {
			c.reply(EventError, errorPayload{Error: models.ErrTagBadRequest})
			return
		}
		req := models.SendMessageRequest{Content: p.Content}
		if errs := req.Validate(); len(errs) > 0 {
			c.reply(EventError, errorPayload{Error: models.ErrTagValidation, ChatID: p.ChatID})
			return
		}
		msg, err := h.chats.Send(ctx, c.userID, p.ChatID, p.Content)
		if err != nil {
			c.reply(EventError, errorPayload{Error: errorTag(err), ChatID: p.ChatID})
			metrics.WSMessages.WithLabelValues(EventSend, "error").Inc()
			return
		}
		metrics.WSMessages.WithLabelValues(EventSend, "ok").Inc()
		h.BroadcastMessage(msg)

	default:
		c.reply(EventError, errorPayload{Error: models.ErrTagBadRequest})
	}
}

func errorTag(err error) string {
	switch {
	case errors.Is(err, services.ErrNotParticipant):
		return models.ErrTagNotParticipant
	case errors.Is(err, services.ErrChatNotFound):
		return models.ErrTagNotFound
	default:
		logging.Error().Err(err).Msg("chat relay store error")
		return models.ErrTagInternal
	}
}
