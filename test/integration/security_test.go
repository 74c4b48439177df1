// Package integration contains security-focused integration tests.
//
// These tests verify that the security constraints are properly enforced,
// including origin validation, frame size limits, and rate limiting.
package integration

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Nedlloyd1990/filesync-pro/internal/server"
	"github.com/Nedlloyd1990/filesync-pro/test/testhelpers"
	"github.com/gorilla/websocket"
)

// TestOriginValidationEdgeCases tests various edge cases for origin validation.
func TestOriginValidationEdgeCases(t *testing.T) {
	server.StartHub()

	mux := server.SetupRoutes()
	testServer := httptest.NewServer(mux)
	defer testServer.Close()
	installTestBroker(t)

	wsURL := buildWebSocketURL(t, testServer.URL)

	t.Run("Missing Origin header", func(t *testing.T) {
		configureServerForTest(t, testServer.URL, func(cfg *server.Config) {
			cfg.AllowedOrigins = []string{testServer.URL}
		})

		header := http.Header{}
		// No Origin header set
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
		if err == nil {
			_ = conn.Close()
			_ = resp.Body.Close()
			t.Fatal("Expected connection to fail with missing origin")
		}
		if resp != nil {
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode != http.StatusForbidden {
				t.Errorf("Expected status %d, got %d", http.StatusForbidden, resp.StatusCode)
			}
		}
	})

	t.Run("Empty Origin header", func(t *testing.T) {
		configureServerForTest(t, testServer.URL, func(cfg *server.Config) {
			cfg.AllowedOrigins = []string{testServer.URL}
		})

		header := http.Header{}
		header.Set("Origin", "")
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
		if err == nil {
			_ = conn.Close()
			_ = resp.Body.Close()
			t.Fatal("Expected connection to fail with empty origin")
		}
		if resp != nil {
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode != http.StatusForbidden {
				t.Errorf("Expected status %d, got %d", http.StatusForbidden, resp.StatusCode)
			}
		}
	})

	t.Run("Malformed Origin URL", func(t *testing.T) {
		configureServerForTest(t, testServer.URL, func(cfg *server.Config) {
			cfg.AllowedOrigins = []string{testServer.URL}
		})

		malformedOrigins := []string{
			"not-a-url",
			"://missing-scheme",
			"http://",
			"ftp://unsupported-scheme.com",
			"javascript:alert(1)",
		}

		for _, origin := range malformedOrigins {
			header := http.Header{}
			header.Set("Origin", origin)
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
			if err == nil {
				_ = conn.Close()
				_ = resp.Body.Close()
				t.Errorf("Expected connection to fail with malformed origin %q", origin)
			}
			if resp != nil {
				_ = resp.Body.Close()
			}
		}
	})

	t.Run("Case sensitivity in origin matching", func(t *testing.T) {
		configureServerForTest(t, testServer.URL, func(cfg *server.Config) {
			cfg.AllowedOrigins = []string{"http://example.com"}
		})

		// These should all be normalized to lowercase and match
		caseVariations := []string{
			"http://EXAMPLE.COM",
			"http://Example.Com",
			"HTTP://example.com",
		}

		for _, origin := range caseVariations {
			header := http.Header{}
			header.Set("Origin", origin)
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
			if err != nil {
				t.Errorf("Expected origin %q to be allowed (case-insensitive): %v", origin, err)
			} else {
				_ = conn.Close()
			}
			if resp != nil {
				_ = resp.Body.Close()
			}
		}
	})

	t.Run("Wildcard origin configuration", func(t *testing.T) {
		configureServerForTest(t, testServer.URL, func(cfg *server.Config) {
			cfg.AllowedOrigins = []string{"*"}
		})

		// Any origin should be allowed
		testOrigins := []string{
			"http://example.com",
			"https://another.com",
			"http://localhost:3000",
		}

		for _, origin := range testOrigins {
			header := http.Header{}
			header.Set("Origin", origin)
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
			if err != nil {
				t.Errorf("Expected origin %q to be allowed with wildcard: %v", origin, err)
			} else {
				_ = conn.Close()
			}
			if resp != nil {
				_ = resp.Body.Close()
			}
		}
	})

	t.Run("Origin with different port", func(t *testing.T) {
		configureServerForTest(t, testServer.URL, func(cfg *server.Config) {
			cfg.AllowedOrigins = []string{"http://localhost:8080"}
		})

		// Same host but different port should be rejected
		header := http.Header{}
		header.Set("Origin", "http://localhost:9090")
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
		if err == nil {
			_ = conn.Close()
			_ = resp.Body.Close()
			t.Fatal("Expected connection to fail with different port")
		}
		if resp != nil {
			_ = resp.Body.Close()
		}
	})

	t.Run("Origin with path component ignored", func(t *testing.T) {
		configureServerForTest(t, testServer.URL, func(cfg *server.Config) {
			cfg.AllowedOrigins = []string{"http://example.com"}
		})

		// Path in origin should be ignored during normalization
		header := http.Header{}
		header.Set("Origin", "http://example.com/some/path")
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
		if err != nil {
			t.Errorf("Expected origin with path to be allowed: %v", err)
		} else {
			_ = conn.Close()
		}
		if resp != nil {
			_ = resp.Body.Close()
		}
	})

	t.Run("HTTP vs HTTPS scheme difference", func(t *testing.T) {
		configureServerForTest(t, testServer.URL, func(cfg *server.Config) {
			cfg.AllowedOrigins = []string{"http://example.com"}
		})

		// HTTPS should not match HTTP
		header := http.Header{}
		header.Set("Origin", "https://example.com")
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
		if err == nil {
			_ = conn.Close()
			_ = resp.Body.Close()
			t.Fatal("Expected HTTPS origin to be rejected when only HTTP is allowed")
		}
		if resp != nil {
			_ = resp.Body.Close()
		}
	})
}

// TestFrameSizeLimit verifies that frames over the configured maximum close
// the offending connection without disturbing other clients.
func TestFrameSizeLimit(t *testing.T) {
	server.StartHub()

	mux := server.SetupRoutes()
	testServer := httptest.NewServer(mux)
	defer testServer.Close()
	installTestBroker(t)

	wsURL := buildWebSocketURL(t, testServer.URL)

	t.Run("Oversized frame closes sender", func(t *testing.T) {
		const limit int64 = 512
		configureServerForTest(t, testServer.URL, func(cfg *server.Config) {
			cfg.MaxMessageSize = limit
		})

		alice, aliceResp, err := websocket.DefaultDialer.Dial(wsURL, newOriginHeader(testServer.URL))
		if err != nil {
			t.Fatalf("Failed to connect alice: %v", err)
		}
		defer func() { _ = alice.Close() }()
		defer func() { _ = aliceResp.Body.Close() }()
		testhelpers.Login(t, alice, "alice", "alice-token")

		bob, bobResp, err := websocket.DefaultDialer.Dial(wsURL, newOriginHeader(testServer.URL))
		if err != nil {
			t.Fatalf("Failed to connect bob: %v", err)
		}
		defer func() { _ = bob.Close() }()
		defer func() { _ = bobResp.Body.Close() }()
		testhelpers.Login(t, bob, "bob", "bob-token")
		testhelpers.WaitForFrameType(t, alice, "userList", 2*time.Second)

		oversized := map[string]any{
			"type": "connectionRequest", "from": "alice", "to": "bob",
			"padding": strings.Repeat("A", int(limit)*2),
		}
		if err := testhelpers.SendFrame(alice, oversized); err != nil {
			t.Logf("Send error (may be expected): %v", err)
		}

		expectNoMessage(t, bob, 300*time.Millisecond)

		// The sender's connection should be closed.
		if err := alice.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			t.Logf("Set deadline error: %v", err)
		}
		if _, _, readErr := alice.ReadMessage(); readErr == nil {
			t.Error("Expected sender connection to be closed after oversized frame")
		}
	})

	t.Run("Frame within limit is relayed", func(t *testing.T) {
		configureServerForTest(t, testServer.URL, func(cfg *server.Config) {
			cfg.MaxMessageSize = 4096
		})

		alice, aliceResp, err := websocket.DefaultDialer.Dial(wsURL, newOriginHeader(testServer.URL))
		if err != nil {
			t.Fatalf("Failed to connect alice: %v", err)
		}
		defer func() { _ = alice.Close() }()
		defer func() { _ = aliceResp.Body.Close() }()
		testhelpers.Login(t, alice, "alice", "alice-token")

		bob, bobResp, err := websocket.DefaultDialer.Dial(wsURL, newOriginHeader(testServer.URL))
		if err != nil {
			t.Fatalf("Failed to connect bob: %v", err)
		}
		defer func() { _ = bob.Close() }()
		defer func() { _ = bobResp.Body.Close() }()
		testhelpers.Login(t, bob, "bob", "bob-token")

		if err := testhelpers.SendFrame(alice, map[string]any{
			"type": "connectionRequest", "from": "alice", "to": "bob",
		}); err != nil {
			t.Fatalf("Failed to send request: %v", err)
		}

		frame := testhelpers.WaitForFrameType(t, bob, "connectionRequest", 2*time.Second)
		if frame["from"] != "alice" {
			t.Errorf("Expected request from alice, got %v", frame["from"])
		}
	})
}

// TestRateLimitEnforcement verifies that frames beyond the configured burst
// are discarded while the connection stays open.
func TestRateLimitEnforcement(t *testing.T) {
	server.StartHub()

	mux := server.SetupRoutes()
	testServer := httptest.NewServer(mux)
	defer testServer.Close()
	installTestBroker(t)

	wsURL := buildWebSocketURL(t, testServer.URL)

	configureServerForTest(t, testServer.URL, func(cfg *server.Config) {
		// Burst covers the login frame plus three requests.
		cfg.RateLimit = server.RateLimitConfig{
			Burst:          4,
			RefillInterval: time.Hour,
		}
	})

	alice, aliceResp, err := websocket.DefaultDialer.Dial(wsURL, newOriginHeader(testServer.URL))
	if err != nil {
		t.Fatalf("Failed to connect alice: %v", err)
	}
	defer func() { _ = alice.Close() }()
	defer func() { _ = aliceResp.Body.Close() }()
	testhelpers.Login(t, alice, "alice", "alice-token")

	bob, bobResp, err := websocket.DefaultDialer.Dial(wsURL, newOriginHeader(testServer.URL))
	if err != nil {
		t.Fatalf("Failed to connect bob: %v", err)
	}
	defer func() { _ = bob.Close() }()
	defer func() { _ = bobResp.Body.Close() }()
	testhelpers.Login(t, bob, "bob", "bob-token")
	testhelpers.WaitForFrameType(t, alice, "userList", 2*time.Second)

	request := map[string]any{"type": "connectionRequest", "from": "alice", "to": "bob"}
	for i := 0; i < 3; i++ {
		if err := testhelpers.SendFrame(alice, request); err != nil {
			t.Fatalf("Failed to send request %d: %v", i, err)
		}
		testhelpers.WaitForFrameType(t, bob, "connectionRequest", 2*time.Second)
	}

	// The fourth request exceeds the burst and is dropped server-side.
	if err := testhelpers.SendFrame(alice, request); err != nil {
		t.Logf("Send error: %v", err)
	}
	expectNoMessage(t, bob, 300*time.Millisecond)

	// The connection itself survives rate limiting.
	if err := alice.WriteMessage(websocket.PingMessage, nil); err != nil {
		t.Errorf("Expected connection to stay open after rate limiting: %v", err)
	}
}
