// Package testhelpers provides common utilities and helper functions for
// testing the FileSync relay.
//
// This package contains reusable test utilities that are shared across unit
// and integration tests. It provides functions for creating test servers,
// making HTTP requests, speaking the relay frame protocol, and asserting
// response properties to reduce code duplication in test files.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// CreateTestServer creates a test HTTP server with the given handler.
// It returns a running httptest.Server that should be closed after use.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// AssertStatusCode checks if the HTTP response has the expected status code.
// It fails the test with a descriptive error message if the status codes don't match.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
// It fails the test with a descriptive error message if the content types don't match.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// ConnectWebSocket creates a WebSocket connection to the specified URL.
// It returns the connection or an error if connection fails.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	// Set a proper origin header for testing
	headers := http.Header{}
	headers.Set("Origin", "http://localhost:8080")

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// SendFrame marshals and sends a protocol frame over the WebSocket connection.
func SendFrame(conn *websocket.Conn, frame map[string]any) error {
	return conn.WriteJSON(frame)
}

// ReadFrame reads one protocol frame from the connection, waiting up to timeout.
func ReadFrame(conn *websocket.Conn, timeout time.Duration) (map[string]any, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	var frame map[string]any
	if err := conn.ReadJSON(&frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// WaitForFrameType reads frames until one of the given type arrives,
// failing the test if none shows up within the timeout.
func WaitForFrameType(t *testing.T, conn *websocket.Conn, frameType string, timeout time.Duration) map[string]any {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("No %q frame received within %v", frameType, timeout)
		}
		frame, err := ReadFrame(conn, remaining)
		if err != nil {
			t.Fatalf("Failed reading while waiting for %q frame: %v", frameType, err)
		}
		if frame["type"] == frameType {
			return frame
		}
	}
}

// Login sends a login frame and waits for the resulting userList frame,
// confirming the session is registered.
func Login(t *testing.T, conn *websocket.Conn, username, token string) {
	t.Helper()

	if err := SendFrame(conn, map[string]any{
		"type":     "login",
		"username": username,
		"token":    token,
	}); err != nil {
		t.Fatalf("Failed to send login frame for %s: %v", username, err)
	}
	WaitForFrameType(t, conn, "userList", 2*time.Second)
}

// UserNames extracts the users array from a userList frame.
func UserNames(t *testing.T, frame map[string]any) []string {
	t.Helper()

	raw, ok := frame["users"].([]any)
	if !ok {
		t.Fatalf("Frame has no users array: %v", frame)
	}
	users := make([]string, 0, len(raw))
	for _, u := range raw {
		name, ok := u.(string)
		if !ok {
			t.Fatalf("User entry is not a string: %v", u)
		}
		users = append(users, name)
	}
	return users
}

// SmallPNGDataURL returns a data-URL payload small enough for any test
// message-size limit, declared as image/png.
func SmallPNGDataURL() string {
	return "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8z8BQDwAEhQGAhKmMIQAAAABJRU5ErkJggg=="
}

// CreateJSONFrame creates a JSON-encoded frame with the given fields.
func CreateJSONFrame(frame map[string]any) ([]byte, error) {
	return json.Marshal(frame)
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
