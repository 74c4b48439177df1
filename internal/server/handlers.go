// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     checkOrigin,
}

// WebSocketHandler handles WebSocket upgrade requests and manages client
// connections. It validates that the request uses the GET method, upgrades
// the HTTP connection to WebSocket, creates a new Client instance linked to
// the active broker, and registers it with the hub.
func WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithField("error", err).Warn("WebSocket upgrade failed")
		return
	}

	client := NewClient(conn, hub, r.RemoteAddr)

	// Register the client with the hub; the hub will launch the pump goroutines.
	client.hub.register <- client
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "FileSync relay is running!")
}

// TestPageHandler serves an HTML page for exercising the relay protocol
// from a browser: login, presence list, connection requests, and sending a
// small file to a peer.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>FileSync Relay Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #log {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { padding: 5px; margin-right: 10px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
    </style>
</head>
<body>
    <h1>FileSync Relay Test</h1>

    <div>
        <input type="text" id="username" placeholder="Username">
        <input type="text" id="token" placeholder="Token">
        <button onclick="login()">Login</button>
    </div>
    <div>
        <input type="text" id="peer" placeholder="Peer username">
        <button onclick="requestConnection()">Request connection</button>
        <input type="file" id="fileInput">
        <button onclick="sendFile()">Send file</button>
    </div>

    <div id="log"></div>

    <script>
        let ws = null;
        let me = '';
        const log = document.getElementById('log');

        function addLine(text) {
            const line = document.createElement('div');
            line.textContent = text;
            log.appendChild(line);
            log.scrollTop = log.scrollHeight;
        }

        function ensureSocket(onOpen) {
            if (ws && ws.readyState === WebSocket.OPEN) { onOpen(); return; }
            ws = new WebSocket('ws://' + location.host + '/ws');
            ws.onopen = onOpen;
            ws.onclose = function() { addLine('Connection closed'); ws = null; };
            ws.onmessage = function(event) {
                const frame = JSON.parse(event.data);
                if (frame.type === 'userList') {
                    addLine('Online: ' + frame.users.join(', '));
                } else if (frame.type === 'connectionRequest') {
                    addLine(frame.from + ' wants to connect');
                    ws.send(JSON.stringify({type: 'connectionResponse', from: me, to: frame.from, accepted: true}));
                } else if (frame.type === 'file') {
                    addLine('File from ' + frame.from + ': ' + frame.fileName);
                    ws.send(JSON.stringify({type: 'downloadNotification', from: me, to: frame.from,
                        messageId: frame.messageId, downloadedTime: new Date().toISOString()}));
                } else {
                    addLine(event.data);
                }
            };
        }

        function login() {
            me = document.getElementById('username').value.trim();
            const token = document.getElementById('token').value.trim();
            ensureSocket(function() {
                ws.send(JSON.stringify({type: 'login', username: me, token: token}));
            });
        }

        function requestConnection() {
            const peer = document.getElementById('peer').value.trim();
            ws.send(JSON.stringify({type: 'connectionRequest', from: me, to: peer}));
        }

        function sendFile() {
            const peer = document.getElementById('peer').value.trim();
            const file = document.getElementById('fileInput').files[0];
            if (!file) { addLine('No file selected'); return; }
            const reader = new FileReader();
            reader.onload = function() {
                ws.send(JSON.stringify({
                    type: 'file',
                    from: me,
                    to: peer,
                    fileName: file.name,
                    fileSize: file.size,
                    fileContent: reader.result,
                    sentTime: new Date().toISOString(),
                    messageId: Date.now().toString()
                }));
            };
            reader.readAsDataURL(file);
        }
    </script>
</body>
</html>`
	if _, err := fmt.Fprint(w, html); err != nil {
		logrus.WithField("error", err).Warn("Error writing HTML response")
	}
}
