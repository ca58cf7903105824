package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/metrics"
)

type testEnv struct {
	service *chat.Service
	hub     *Hub
	server  *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	service := chat.NewService(chat.WithMetrics(m))
	hub := NewHub(service, zap.NewNop())
	cfg := NewConfig()

	srv := httptest.NewUnstartedServer(nil)
	cfg.AllowedOrigins = []string{"http://" + srv.Listener.Addr().String()}
	handlers := NewHandlers(cfg, hub, service, zap.NewNop())
	srv.Config.Handler = SetupRoutes(handlers, m.Handler())
	srv.Start()

	t.Cleanup(func() {
		_ = hub.Shutdown(2 * time.Second)
		srv.Close()
	})
	return &testEnv{service: service, hub: hub, server: srv}
}

func (e *testEnv) dial(t *testing.T, user, room string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ChatRoom/" + user + "/" + room
	header := http.Header{}
	header.Set("Origin", e.server.URL)
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) chat.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg chat.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func getResult(t *testing.T, url string) (int, Result) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var result Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return resp.StatusCode, result
}

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Equal(t, "RoomChat server is running!", rec.Body.String())
}

func TestTestPageHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	TestPageHandler(rec, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))

	assert.Equal(t, "text/html", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "/ChatRoom/")
}

// TestRoomQueries covers the online count and history endpoints, including
// their error envelopes.
func TestRoomQueries(t *testing.T) {
	env := newTestEnv(t)
	base := env.server.URL + "/RoomInformation/"

	status, result := getResult(t, base+"getOnlineCount?roomName=lobby")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, Result{Code: 200, Msg: "success", Data: float64(0)}, result)

	status, result = getResult(t, base+"getChatHistory?roomName=lobby")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "[]", result.Data)

	status, result = getResult(t, base+"getOnlineCount")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 400, result.Code)

	status, _ = getResult(t, base+"getChatHistory?roomName=%20")
	assert.Equal(t, http.StatusBadRequest, status)

	resp, err := http.Post(base+"getOnlineCount?roomName=lobby", "application/json", http.NoBody)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestWebSocketRejectsBadRequests(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Post(env.server.URL+"/ChatRoom/alice/lobby", "text/plain", http.NoBody)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Get(env.server.URL + "/ChatRoom/alice/lobby")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "plain GET is not an upgrade")

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ChatRoom/alice/lobby"
	header := http.Header{}
	header.Set("Origin", "http://evil.example.com")
	_, resp, err = websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, env.hub.ClientCount())
}

// TestWebSocketRoomRoundTrip joins two users to a room over real sockets and
// checks join, relay, query and quit behavior end to end.
func TestWebSocketRoomRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	alice := env.dial(t, "alice", "lobby")
	msg := readMessage(t, alice)
	assert.Equal(t, chat.TypeJoin, msg.Type)
	assert.Equal(t, "alice", msg.Sender)

	bob := env.dial(t, "bob", "lobby")
	assert.Equal(t, "bob", readMessage(t, bob).Sender)
	assert.Equal(t, "bob", readMessage(t, alice).Sender)

	require.NoError(t, alice.WriteJSON(chat.Message{Room: "lobby", Sender: "alice", Body: "hello", Type: chat.TypeChat}))
	assert.Equal(t, "hello", readMessage(t, bob).Body)
	assert.Equal(t, "hello", readMessage(t, alice).Body)

	_, result := getResult(t, env.server.URL+"/RoomInformation/getOnlineCount?roomName=lobby")
	assert.Equal(t, float64(2), result.Data)

	_, result = getResult(t, env.server.URL+"/RoomInformation/getChatHistory?roomName=lobby")
	var history []chat.Message
	require.NoError(t, json.Unmarshal([]byte(result.Data.(string)), &history))
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Body)

	require.NoError(t, alice.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	quit := readMessage(t, bob)
	assert.Equal(t, chat.TypeQuit, quit.Type)
	assert.Equal(t, "alice", quit.Sender)

	assert.Eventually(t, func() bool {
		return env.service.OnlineCount("lobby") == 1 && env.hub.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMetricsRoute(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
}
