// Package testhelpers provides common utilities for the RoomChat integration tests.
//
// It assembles a complete relay (room service, hub, routes) behind an
// httptest server and offers helpers for dialing rooms and exchanging
// messages so the test files stay focused on behavior.
package testhelpers

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/metrics"
	"github.com/Tyrowin/roomchat/internal/server"
)

// DefaultTimeout bounds every read performed by the helpers.
const DefaultTimeout = 2 * time.Second

// Stack is a running relay.
type Stack struct {
	Config  *server.Config
	Service *chat.Service
	Metrics *metrics.Metrics
	Hub     *server.Hub
	Server  *httptest.Server
}

// NewStack starts a relay on a random local port. The server's own origin is
// allowed; customize may adjust the rest of the configuration before start.
// Everything is torn down when the test ends.
func NewStack(t *testing.T, customize func(cfg *server.Config)) *Stack {
	t.Helper()

	logger := zaptest.NewLogger(t)
	m := metrics.New(prometheus.NewRegistry())

	srv := httptest.NewUnstartedServer(nil)
	cfg := server.NewConfig()
	cfg.AllowedOrigins = append([]string{"http://" + srv.Listener.Addr().String()}, cfg.AllowedOrigins...)
	if customize != nil {
		customize(cfg)
	}

	service := chat.NewService(
		chat.WithLogger(logger.Named("chat")),
		chat.WithMetrics(m),
		chat.WithHistorySize(cfg.HistorySize),
		chat.WithHistoryReplay(cfg.HistoryReplay),
	)
	hub := server.NewHub(service, logger.Named("hub"))
	handlers := server.NewHandlers(cfg, hub, service, logger.Named("http"))
	srv.Config.Handler = server.SetupRoutes(handlers, m.Handler())
	srv.Start()

	t.Cleanup(func() {
		_ = hub.Shutdown(DefaultTimeout)
		srv.Close()
	})

	return &Stack{Config: cfg, Service: service, Metrics: m, Hub: hub, Server: srv}
}

// RoomURL returns the websocket URL for user in room.
func (s *Stack) RoomURL(user, room string) string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http") + "/ChatRoom/" + user + "/" + room
}

// Dial joins room as user with the stack's own origin. It fails the test on error.
func (s *Stack) Dial(t *testing.T, user, room string) *websocket.Conn {
	t.Helper()
	conn, err := ConnectWebSocket(s.RoomURL(user, room), s.Server.URL)
	require.NoError(t, err, "dial %s/%s", user, room)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// Join dials room as user and consumes the user's own join notification.
func (s *Stack) Join(t *testing.T, user, room string) *websocket.Conn {
	t.Helper()
	conn := s.Dial(t, user, room)
	msg := ReadMessage(t, conn)
	require.Equal(t, chat.TypeJoin, msg.Type)
	require.Equal(t, user, msg.Sender)
	return conn
}

// ConnectWebSocket opens a websocket to url sending origin as the Origin header.
func ConnectWebSocket(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// SendChat sends a chat message from user to room.
func SendChat(t *testing.T, conn *websocket.Conn, room, user, body string) {
	t.Helper()
	msg := chat.Message{Room: room, Sender: user, Body: body, Type: chat.TypeChat}
	require.NoError(t, conn.WriteJSON(msg))
}

// ReadMessage reads one message, failing the test if none arrives in time.
func ReadMessage(t *testing.T, conn *websocket.Conn) chat.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(DefaultTimeout)))
	var msg chat.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// ReadUntil reads messages until one of type typ arrives and returns it.
func ReadUntil(t *testing.T, conn *websocket.Conn, typ chat.MessageType) chat.Message {
	t.Helper()
	for {
		if msg := ReadMessage(t, conn); msg.Type == typ {
			return msg
		}
	}
}

// ExpectNoMessage fails the test if conn receives anything within timeout.
func ExpectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, payload, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no message, got %s", payload)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	t.Fatalf("unexpected error while waiting for absence of message: %v", err)
}

// CloseWebSocket sends a normal close frame and closes the connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// MakeRequest creates and executes an HTTP request, returning the response.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}
