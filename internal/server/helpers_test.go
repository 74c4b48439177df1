package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
)

// fakeChannel is a channel implementation capturing every queued payload.
type fakeChannel struct {
	mu     sync.Mutex
	frames [][]byte
	reject bool
}

func (f *fakeChannel) Send(payload []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject {
		return false
	}
	f.frames = append(f.frames, payload)
	return true
}

func (f *fakeChannel) sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.frames...)
}

func (f *fakeChannel) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

func (f *fakeChannel) decoded(t *testing.T) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, raw := range f.sent() {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatalf("captured frame is not JSON: %v", err)
		}
		out = append(out, m)
	}
	return out
}

// failingStore errors on every call, for store-failure paths.
type failingStore struct{}

func (failingStore) AddEdge(context.Context, string, string) error {
	return fmt.Errorf("%w: backend unavailable", ErrStoreFailure)
}

func (failingStore) ConnectionsOf(context.Context, string) ([]string, error) {
	return nil, fmt.Errorf("%w: backend unavailable", ErrStoreFailure)
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

// newTestBroker wires a broker with two known tokens and a fresh memory store.
func newTestBroker() (*Broker, *MemoryConnectionStore) {
	store := NewMemoryConnectionStore()
	identity := NewStaticTokenIdentity(map[string]string{
		"alice-token": "alice",
		"bob-token":   "bob",
		"carol-token": "carol",
	})
	return NewBroker(identity, store), store
}

// loginAs runs the login handshake for a fake channel and drains the
// resulting presence frames from every provided channel.
func loginAs(t *testing.T, b *Broker, username string, ch *fakeChannel, drain ...*fakeChannel) *Conn {
	t.Helper()
	cn := b.NewConn(ch, "test:"+username)
	cn.HandleFrame(context.Background(), mustMarshal(t, map[string]any{
		"type":     "login",
		"username": username,
		"token":    username + "-token",
	}))
	if cn.Username() != username {
		t.Fatalf("login as %s failed, bound username %q", username, cn.Username())
	}
	ch.reset()
	for _, d := range drain {
		d.reset()
	}
	return cn
}
