package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bete/backend/internal/models"
	"github.com/bete/backend/internal/services"
)

type staticTokens map[string]string

func (s staticTokens) Parse(token string) (string, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return "", errors.New("bad token")
}

type memChats struct {
	mu    sync.Mutex
	chats map[string]*models.Chat
	seq   int
}

func (m *memChats) Get(_ context.Context, userID, chatID string) (*models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[chatID]
	if !ok {
		return nil, services.ErrChatNotFound
	}
	if !c.HasParticipant(userID) {
		return nil, services.ErrNotParticipant
	}
	return c, nil
}

func (m *memChats) Send(ctx context.Context, userID, chatID, content string) (*models.Message, error) {
	if _, err := m.Get(ctx, userID, chatID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return &models.Message{
		ID:        fmt.Sprintf("msg-%d", m.seq),
		ChatID:    chatID,
		SenderID:  userID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}, nil
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	chats := &memChats{chats: map[string]*models.Chat{
		"chat-1": {ID: "chat-1", UserAID: "alice", UserBID: "bob"},
	}}
	hub := NewHub(chats, staticTokens{"ta": "alice", "tb": "bob", "tc": "carol"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Serve(ctx)
		close(done)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, token string, viaHeader bool) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{}
	if viaHeader {
		header.Set("Authorization", "Bearer "+token)
	} else {
		url += "?token=" + token
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	b, err := json.Marshal(Envelope{Event: event, Data: raw})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, b))
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, b, err := conn.ReadMessage()
	require.NoError(t, err)
	var f frame
	require.NoError(t, json.Unmarshal(b, &f))
	return f
}

func TestHub_FanOutOnlyToJoinedSockets(t *testing.T) {
	_, srv := startHub(t)

	alice := dial(t, srv, "ta", false)
	bob := dial(t, srv, "tb", true)
	carol := dial(t, srv, "tc", false)

	send(t, alice, EventJoin, joinPayload{ChatID: "chat-1"})
	assert.Equal(t, EventJoined, read(t, alice).Event)
	send(t, bob, EventJoin, joinPayload{ChatID: "chat-1"})
	assert.Equal(t, EventJoined, read(t, bob).Event)

	send(t, carol, EventJoin, joinPayload{ChatID: "chat-1"})
	f := read(t, carol)
	assert.Equal(t, EventError, f.Event)
	assert.Contains(t, string(f.Data), models.ErrTagNotParticipant)

	send(t, alice, EventSend, sendPayload{ChatID: "chat-1", Content: "selam"})
	for _, conn := range []*websocket.Conn{alice, bob} {
		f := read(t, conn)
		require.Equal(t, EventMessage, f.Event)
		var msg models.Message
		require.NoError(t, json.Unmarshal(f.Data, &msg))
		assert.Equal(t, "selam", msg.Content)
		assert.Equal(t, "alice", msg.SenderID)
		assert.Equal(t, "chat-1", msg.ChatID)
	}

	require.NoError(t, carol.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := carol.ReadMessage()
	assert.Error(t, err, "carol never joined the room")
}

func TestHub_RejectsBadFrames(t *testing.T) {
	_, srv := startHub(t)
	alice := dial(t, srv, "ta", true)

	send(t, alice, EventSend, sendPayload{ChatID: "chat-1", Content: ""})
	f := read(t, alice)
	assert.Equal(t, EventError, f.Event)
	assert.Contains(t, string(f.Data), models.ErrTagValidation)

	send(t, alice, EventJoin, joinPayload{ChatID: "missing"})
	f = read(t, alice)
	assert.Contains(t, string(f.Data), models.ErrTagNotFound)

	send(t, alice, "typing", map[string]string{})
	f = read(t, alice)
	assert.Contains(t, string(f.Data), models.ErrTagBadRequest)
}

func TestHub_RequiresToken(t *testing.T) {
	_, srv := startHub(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url+"?token=nope", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHub_FullBufferDropsMessage(t *testing.T) {
	hub := NewHub(&memChats{}, staticTokens{}, nil)
	c := newClient(hub, nil, "alice")
	hub.clients[c] = struct{}{}
	require.True(t, hub.join(c, "chat-1"))

	for i := 0; i < sendBuffer; i++ {
		hub.BroadcastMessage(&models.Message{ChatID: "chat-1", Content: "x"})
	}
	done := make(chan struct{})
	go func() {
		hub.BroadcastMessage(&models.Message{ChatID: "chat-1", Content: "overflow"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full client")
	}
	assert.Len(t, c.send, sendBuffer)

	hub.remove(c)
	assert.Equal(t, 0, hub.ClientCount())
	assert.Empty(t, hub.rooms)
}

func TestOriginChecker(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://evil.example")

	assert.True(t, originChecker(nil)(req))
	assert.True(t, originChecker([]string{"*"})(req))
	assert.False(t, originChecker([]string{"https://bete.app"})(req))

	req.Header.Set("Origin", "https://bete.app/")
	assert.True(t, originChecker([]string{"https://bete.app"})(req))
}
