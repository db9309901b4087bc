package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketHandler upgrades GET /ws/{room_id}?token=... after verifying the
// token. Authentication failures are answered with 401 before any upgrade
// or subscription happens.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	roomID, err := parseRoomID(r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	identity, err := s.gate.Verify(r.URL.Query().Get("token"))
	if err != nil {
		s.log.Info().Err(err).Int64("room_id", roomID).Str("remote_addr", r.RemoteAddr).Msg("WebSocket authentication failed")
		writeError(w, s.log, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	session := NewSession(conn, identity, roomID, s.registry, s.messages, SessionOptions{
		MaxMessageSize: s.cfg.MaxMessageSize,
		RateLimit:      s.cfg.RateLimit,
	}, s.log)

	if err := s.hub.Start(session); err != nil {
		s.log.Warn().Err(err).Msg("rejecting session")
		session.closeWith(websocket.CloseGoingAway, "server shutting down")
		session.closeConn()
	}
}

func parseRoomID(r *http.Request) (int64, error) {
	roomID, err := strconv.ParseInt(r.PathValue("room_id"), 10, 64)
	if err != nil {
		return 0, errBadRoomID
	}
	return roomID, nil
}

// HealthHandler reports registry counters and backing service reachability.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	stats := s.registry.Stats()
	health := HealthStatus{
		Status:      "ok",
		Rooms:       stats.Rooms,
		Subscribers: stats.Subscribers,
		Sessions:    s.hub.Count(),
		Database:    pingStatus(ctx, s.database),
		Cache:       pingStatus(ctx, s.cache),
	}

	status := http.StatusOK
	if health.Database == "down" {
		health.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func pingStatus(ctx context.Context, p Pinger) string {
	if p == nil {
		return "disabled"
	}
	if err := p.Ping(ctx); err != nil {
		return "down"
	}
	return "up"
}

// RootHandler is a plain-text liveness probe.
func (s *Server) RootHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "roomchat server is running!")
}

// TestPageHandler serves an HTML page for trying rooms from a browser.
func (s *Server) TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		s.log.Warn().Err(err).Msg("error writing HTML response")
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>roomchat WebSocket Test</title>
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
        input[type="text"] { padding: 5px; margin-right: 10px; }
        #token { width: 420px; }
        #room { width: 60px; }
        #messageInput { width: 300px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>roomchat WebSocket Test</h1>

    <div>
        <input type="text" id="token" placeholder="JWT from /auth/login">
        <input type="text" id="room" value="1">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <div id="messages"></div>

    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');

        function addLine(text, color) {
            const el = document.createElement('div');
            el.style.margin = '5px 0';
            el.style.color = color;
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            messageInput.disabled = !connected;
            sendButton.disabled = !connected;
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function connect() {
            const room = document.getElementById('room').value.trim();
            const token = encodeURIComponent(document.getElementById('token').value.trim());
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws/' + room + '?token=' + token);

            ws.onopen = function() {
                addLine('Joined room ' + room, 'gray');
                updateStatus(true);
            };
            ws.onmessage = function(event) {
                try {
                    const msg = JSON.parse(event.data);
                    addLine(msg.sender + ': ' + msg.content, 'green');
                } catch (e) {
                    addLine(event.data, 'green');
                }
            };
            ws.onclose = function(event) {
                addLine('Connection closed' + (event.reason ? ' (' + event.reason + ')' : ''), 'gray');
                updateStatus(false);
                ws = null;
            };
            ws.onerror = function() {
                addLine('Connection error', 'red');
            };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function sendMessage() {
            const content = messageInput.value.trim();
            if (content && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({type: 'message', content: content}));
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
