package ws_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchs-nexus/nexus-portal/config"
	"github.com/jchs-nexus/nexus-portal/internal/model"
	"github.com/jchs-nexus/nexus-portal/internal/service"
	"github.com/jchs-nexus/nexus-portal/internal/testutil"
	"github.com/jchs-nexus/nexus-portal/internal/ws"
)

type frame struct {
	Type     string              `json:"type"`
	TempID   string              `json:"temp_id"`
	ID       string              `json:"id"`
	Error    string              `json:"error"`
	Message  *model.ChatMessage  `json:"message"`
	Messages []model.ChatMessage `json:"messages"`
}

type fixture struct {
	hub    *ws.Hub
	chat   *service.ChatService
	server *httptest.Server
	users  map[string]*model.User
}

// newFixture 直接按 ?user= 取会话，跳过 token 校验
func newFixture(t *testing.T) *fixture {
	store := testutil.NewStore(t)
	f := &fixture{
		hub:   ws.NewHub(),
		chat:  service.NewChatService(store, config.ChatConfig{}),
		users: map[string]*model.User{},
	}
	for _, name := range []string{"alice", "bob"} {
		f.users[name] = testutil.SeedUser(t, store, testutil.UserOpts{Username: name, Subscribed: true})
	}
	up := ws.NewUpgrader(nil)
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := f.users[r.URL.Query().Get("user")]
		sess := &service.Session{User: u, Role: model.RoleUser, SubscriptionActive: true}
		ws.Serve(r.Context(), up, f.hub, f.chat, sess, service.GlobalRoom, 0, w, r)
	}))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = f.hub.Shutdown(ctx)
		f.server.Close()
	})
	return f
}

func (f *fixture) dial(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var fr frame
	require.NoError(t, conn.ReadJSON(&fr))
	return fr
}

func TestClient_MessageReachesOtherSessionOnce(t *testing.T) {
	f := newFixture(t)
	alice := f.dial(t, "alice")
	bob := f.dial(t, "bob")

	assert.Equal(t, service.EventSnapshot, read(t, alice).Type)
	assert.Equal(t, service.EventSnapshot, read(t, bob).Type)

	require.NoError(t, alice.WriteJSON(map[string]string{"type": "send", "content": "hello", "temp_id": "t1"}))

	// alice 收到 ack 和自己的消息，顺序不定
	var ack, echo frame
	for i := 0; i < 2; i++ {
		fr := read(t, alice)
		switch fr.Type {
		case "ack":
			ack = fr
		case service.EventMessage:
			echo = fr
		}
	}
	assert.Equal(t, "t1", ack.TempID)
	require.NotNil(t, echo.Message)
	assert.Equal(t, ack.ID, echo.Message.ID)

	got := read(t, bob)
	assert.Equal(t, service.EventMessage, got.Type)
	require.NotNil(t, got.Message)
	assert.Equal(t, "hello", got.Message.Content)
	assert.Equal(t, "alice", got.Message.AuthorName)

	// 不会重复投递
	require.NoError(t, bob.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, _, err := bob.ReadMessage()
	assert.Error(t, err)
}

func TestClient_RejectsInvalidContent(t *testing.T) {
	f := newFixture(t)
	alice := f.dial(t, "alice")
	read(t, alice)

	require.NoError(t, alice.WriteJSON(map[string]string{"type": "send", "content": strings.Repeat("x", 501), "temp_id": "long"}))
	fr := read(t, alice)
	assert.Equal(t, "error", fr.Type)
	assert.Equal(t, "long", fr.TempID)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, "invalid_json", read(t, alice).Error)

	require.NoError(t, alice.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, "pong", read(t, alice).Type)

	history, err := f.chat.History(context.Background(), f.users["alice"].ID, service.GlobalRoom, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestHub_TracksConnections(t *testing.T) {
	f := newFixture(t)
	a := f.dial(t, "alice")
	read(t, a)
	b := f.dial(t, "bob")
	read(t, b)
	testutil.Eventually(t, func() bool { return f.hub.Connections() == 2 }, "two connections")

	require.NoError(t, a.Close())
	testutil.Eventually(t, func() bool { return f.hub.Connections() == 1 }, "one connection left")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.hub.Shutdown(ctx))
	assert.Equal(t, 0, f.hub.Connections())
}
