// Package server exposes HTTP handlers, including WebSocket upgrades, room
// queries, health checks, and the built-in test page.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Result is the JSON envelope returned by the room query endpoints.
type Result struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

// Handlers serves the relay's HTTP surface.
type Handlers struct {
	cfg      *Config
	hub      *Hub
	rooms    RoomQuerier
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandlers wires the HTTP handlers to hub for connections and rooms for queries.
func NewHandlers(cfg *Config, hub *Hub, rooms RoomQuerier, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := newOriginPolicy(cfg.AllowedOrigins, logger)
	return &Handlers{
		cfg:   cfg,
		hub:   hub,
		rooms: rooms,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.checkOrigin,
		},
		logger: logger,
	}
}

// WebSocket upgrades GET /ChatRoom/{userName}/{roomName} and registers the
// connection with the hub, which joins it to the room.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	user := strings.TrimSpace(r.PathValue("userName"))
	room := strings.TrimSpace(r.PathValue("roomName"))
	if user == "" || room == "" {
		http.Error(w, "user name and room name are required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Info("websocket upgrade failed", zap.String("addr", r.RemoteAddr), zap.Error(err))
		return
	}

	client := NewClient(conn, h.cfg, user, room, r.RemoteAddr, h.logger)
	if err := h.hub.Register(client); err != nil {
		h.logger.Warn("client rejected", zap.String("addr", r.RemoteAddr), zap.Error(err))
		_ = conn.Close()
	}
}

// OnlineCount serves GET /RoomInformation/getOnlineCount?roomName=.
func (h *Handlers) OnlineCount(w http.ResponseWriter, r *http.Request) {
	room, ok := h.roomParam(w, r)
	if !ok {
		return
	}
	h.writeResult(w, http.StatusOK, Result{Code: http.StatusOK, Msg: "success", Data: h.rooms.OnlineCount(room)})
}

// ChatHistory serves GET /RoomInformation/getChatHistory?roomName=. The data
// field carries the history as a JSON-encoded string, which is what the web
// client parses.
func (h *Handlers) ChatHistory(w http.ResponseWriter, r *http.Request) {
	room, ok := h.roomParam(w, r)
	if !ok {
		return
	}
	history, err := h.rooms.ChatHistoryJSON(room)
	if err != nil {
		h.logger.Error("encode chat history", zap.String("room", room), zap.Error(err))
		h.writeResult(w, http.StatusInternalServerError, Result{Code: http.StatusInternalServerError, Msg: "internal error"})
		return
	}
	h.writeResult(w, http.StatusOK, Result{Code: http.StatusOK, Msg: "success", Data: string(history)})
}

func (h *Handlers) roomParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodGet {
		h.writeResult(w, http.StatusMethodNotAllowed, Result{Code: http.StatusMethodNotAllowed, Msg: "method not allowed"})
		return "", false
	}
	room := strings.TrimSpace(r.URL.Query().Get("roomName"))
	if room == "" {
		h.writeResult(w, http.StatusBadRequest, Result{Code: http.StatusBadRequest, Msg: "roomName is required"})
		return "", false
	}
	return room, true
}

func (h *Handlers) writeResult(w http.ResponseWriter, status int, result Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.logger.Warn("write query response", zap.Error(err))
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "RoomChat server is running!")
}

// TestPageHandler serves an HTML page for joining a room and chatting from a browser.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprint(w, testPage)
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>RoomChat Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { width: 160px; padding: 5px; margin-right: 10px; }
        #messageInput { width: 300px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>RoomChat Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="userInput" placeholder="User name">
        <input type="text" id="roomInput" placeholder="Room" value="lobby">
        <button id="connectButton" onclick="toggleConnection()">Join</button>
    </div>
    <div style="margin-top: 10px">
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <div id="messages"></div>

    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');
        const userInput = document.getElementById('userInput');
        const roomInput = document.getElementById('roomInput');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');

        function addLine(text, color) {
            const line = document.createElement('div');
            line.style.margin = '5px 0';
            line.style.color = color;
            line.textContent = text;
            messagesDiv.appendChild(line);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function render(msg) {
            switch (msg.type) {
            case 'user_join':
                addLine('[' + msg.time + '] ' + msg.userName + ' joined ' + msg.roomName, 'gray');
                break;
            case 'user_quit':
                addLine('[' + msg.time + '] ' + msg.userName + ' left ' + msg.roomName, 'gray');
                break;
            case 'chat_history':
                JSON.parse(msg.message).forEach(render);
                break;
            default:
                addLine((msg.customName || msg.userName || 'server') + ': ' + (msg.message || ''), 'green');
            }
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            messageInput.disabled = !connected;
            sendButton.disabled = !connected;
            connectButton.textContent = connected ? 'Leave' : 'Join';
        }

        function connect() {
            const user = encodeURIComponent(userInput.value.trim());
            const room = encodeURIComponent(roomInput.value.trim());
            if (!user || !room) {
                return;
            }
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ChatRoom/' + user + '/' + room);
            ws.onopen = function() { updateStatus(true); };
            ws.onmessage = function(event) { render(JSON.parse(event.data)); };
            ws.onclose = function() { addLine('Connection closed', 'gray'); updateStatus(false); ws = null; };
            ws.onerror = function() { addLine('Connection error', 'red'); };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function sendMessage() {
            const text = messageInput.value.trim();
            if (text && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({
                    roomName: roomInput.value.trim(),
                    userName: userInput.value.trim(),
                    message: text,
                    type: 'chat_message'
                }));
                messageInput.value = '';
            }
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
