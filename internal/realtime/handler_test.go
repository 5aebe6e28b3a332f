package realtime

import (
	"context"
	"encoding/json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"io"
	"marketplace-api/internal/auth"
	"marketplace-api/internal/conversation"
	"marketplace-api/internal/storage"
	"marketplace-api/internal/storage/memstore"
	tt "marketplace-api/internal/testing"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeAuth struct {
	mu    sync.RWMutex
	users map[string]storage.User
}

func (f *fakeAuth) add(u storage.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
}

func (f *fakeAuth) Authenticate(_ context.Context, token string) (storage.User, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	switch token {
	case "expired":
		return storage.User{}, auth.ErrTokenExpired
	case "ghost":
		return storage.User{}, auth.ErrUnknownUser
	}
	u, ok := f.users[token]
	if !ok {
		return storage.User{}, auth.ErrTokenInvalid
	}
	return u, nil
}

type env struct {
	srv   *httptest.Server
	hub   *Hub
	chats *conversation.Service
	store *memstore.Store
	auth  *fakeAuth
}

func bootstrap(t *testing.T) *env {
	t.Helper()

	logger := zap.NewNop().Sugar()
	e := &env{
		hub:   NewHub(),
		store: memstore.New(),
		auth:  &fakeAuth{users: map[string]storage.User{}},
	}
	e.chats = conversation.NewService(logger, e.store)
	e.srv = httptest.NewServer(NewHandler(logger, e.auth, e.chats, e.hub))
	t.Cleanup(e.srv.Close)
	return e
}

// user creates a user whose access token is its id
func (e *env) user(t *testing.T) storage.User {
	t.Helper()
	id := tt.NewIdentity()
	u := storage.User{Name: id.Name, Email: id.Email, Password: "hash"}
	require.NoError(t, e.store.CreateUser(context.Background(), &u))
	e.auth.add(u)
	return u
}

func (e *env) url() string {
	return "ws" + strings.TrimPrefix(e.srv.URL, "http")
}

func (e *env) dial(t *testing.T, u storage.User) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+u.ID)
	conn, _, err := websocket.DefaultDialer.Dial(e.url(), header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool {
		return e.hub.Connections(u.ID) > 0
	}, time.Second, 10*time.Millisecond)

	return conn
}

func refusal(t *testing.T, url string) (int, string) {
	t.Helper()

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(b, &body))
	return resp.StatusCode, body.Message
}

func TestHandshakeRefusals(t *testing.T) {
	t.Parallel()
	e := bootstrap(t)

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{name: "no token", query: "", want: "Unauthorized request"},
		{name: "expired token", query: "?token=expired", want: "jwt expired"},
		{name: "invalid token", query: "?token=garbage", want: "Invalid token"},
		{name: "unknown user", query: "?token=ghost", want: "Invalid token"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			status, msg := refusal(t, e.url()+tc.query)
			require.Equal(t, http.StatusUnauthorized, status)
			require.Equal(t, tc.want, msg)
		})
	}
}

func TestHandshakeQueryToken(t *testing.T) {
	t.Parallel()
	e := bootstrap(t)
	u := e.user(t)

	conn, _, err := websocket.DefaultDialer.Dial(e.url()+"?token="+u.ID, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return e.hub.Connections(u.ID) == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool {
		return e.hub.Connections(u.ID) == 0
	}, time.Second, 10*time.Millisecond)
}

func send(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func receive(t *testing.T, conn *websocket.Conn) inbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, b, err := conn.ReadMessage()
	require.NoError(t, err)

	var in inbound
	require.NoError(t, json.Unmarshal(b, &in))
	return in
}

func chatNew(conversationID, to, text, userID string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"event": EventChatNew,
		"data": map[string]interface{}{
			"conversationId": conversationID,
			"to":             to,
			"message": map[string]interface{}{
				"id":   "client-1",
				"time": "2001-01-01T00:00:00Z",
				"text": text,
				"user": map[string]string{"id": userID},
			},
		},
	})
	return string(b)
}

func TestChatDelivery(t *testing.T) {
	t.Parallel()
	e := bootstrap(t)
	ctx := context.Background()

	u1, u2, u3 := e.user(t), e.user(t), e.user(t)
	c, err := e.chats.GetOrCreate(ctx, u1.ID, u2.ID)
	require.NoError(t, err)

	conn1 := e.dial(t, u1)
	conn2 := e.dial(t, u2)

	// the asserted sender and time are ignored
	send(t, conn1, chatNew(c, u2.ID, "hello", u3.ID))

	in := receive(t, conn2)
	require.Equal(t, EventChatMessage, in.Event)

	var msg ChatMessage
	require.NoError(t, json.Unmarshal(in.Data, &msg))
	require.Equal(t, c, msg.ConversationID)
	require.Equal(t, u1.Profile(), msg.From)
	require.Equal(t, u1.Profile(), msg.Message.User)
	require.Equal(t, "hello", msg.Message.Text)
	require.NotEqual(t, "client-1", msg.Message.ID)
	require.NotEqual(t, 2001, msg.Message.Time.Year())

	view, err := e.chats.Fetch(ctx, c, u2.ID, storage.Page{})
	require.NoError(t, err)
	require.Len(t, view.Chats, 1)
	require.Equal(t, msg.Message.ID, view.Chats[0].ID)
	require.Equal(t, u1.ID, view.Chats[0].Sender.ID)
	require.False(t, view.Chats[0].Viewed)
}

func TestChatNotDeliveredToSender(t *testing.T) {
	t.Parallel()
	e := bootstrap(t)
	ctx := context.Background()

	u1, u2 := e.user(t), e.user(t)
	c, err := e.chats.GetOrCreate(ctx, u1.ID, u2.ID)
	require.NoError(t, err)

	conn1 := e.dial(t, u1)
	conn2 := e.dial(t, u2)

	send(t, conn1, chatNew(c, u2.ID, "first", u1.ID))
	send(t, conn2, chatNew(c, u1.ID, "reply", u2.ID))

	in := receive(t, conn1)
	var msg ChatMessage
	require.NoError(t, json.Unmarshal(in.Data, &msg))
	require.Equal(t, "reply", msg.Message.Text)

	in = receive(t, conn2)
	require.NoError(t, json.Unmarshal(in.Data, &msg))
	require.Equal(t, "first", msg.Message.Text)
}

func TestChatOrderPerConnection(t *testing.T) {
	t.Parallel()
	e := bootstrap(t)
	ctx := context.Background()

	u1, u2 := e.user(t), e.user(t)
	c, err := e.chats.GetOrCreate(ctx, u1.ID, u2.ID)
	require.NoError(t, err)

	conn1 := e.dial(t, u1)
	conn2 := e.dial(t, u2)

	texts := []string{"one", "two", "three", "four"}
	for _, text := range texts {
		send(t, conn1, chatNew(c, u2.ID, text, u1.ID))
	}
	for _, text := range texts {
		var msg ChatMessage
		require.NoError(t, json.Unmarshal(receive(t, conn2).Data, &msg))
		require.Equal(t, text, msg.Message.Text)
	}
}

func TestChatErrors(t *testing.T) {
	t.Parallel()
	e := bootstrap(t)
	ctx := context.Background()

	u1, u2, u3 := e.user(t), e.user(t), e.user(t)
	c, err := e.chats.GetOrCreate(ctx, u1.ID, u2.ID)
	require.NoError(t, err)

	conn3 := e.dial(t, u3)

	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{name: "malformed", payload: `{"event":`, want: "Malformed JSON"},
		{name: "unknown event", payload: `{"event":"chat:delete","data":{}}`, want: "Unknown event"},
		{name: "not a participant", payload: chatNew(c, u1.ID, "intrusion", u1.ID), want: "Conversation details not found"},
		{name: "invalid conversation", payload: chatNew("nope", u1.ID, "hi", u3.ID), want: "Invalid conversation ID"},
		{name: "empty message", payload: chatNew(c, u1.ID, "  ", u3.ID), want: "Message cannot be empty"},
	}

	for _, tc := range tests {
		send(t, conn3, tc.payload)
		in := receive(t, conn3)
		require.Equal(t, EventChatError, in.Event, tc.name)

		var chatErr ChatError
		require.NoError(t, json.Unmarshal(in.Data, &chatErr))
		require.Equal(t, tc.want, chatErr.Message, tc.name)
	}

	view, err := e.chats.Fetch(ctx, c, u1.ID, storage.Page{})
	require.NoError(t, err)
	require.Empty(t, view.Chats)
}

func TestPublishOffline(t *testing.T) {
	t.Parallel()

	n, err := Publish(NewHub(), "c1", conversation.Appended{Recipient: "nobody"})
	require.NoError(t, err)
	require.Zero(t, n)
}
