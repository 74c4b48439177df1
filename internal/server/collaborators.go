// Package server declares the two collaborator interfaces the broker
// depends on, plus in-memory reference implementations used by the default
// wiring and by tests. Signup, password hashing, and token issuance live
// outside this process; the broker only ever verifies a credential and
// reads or writes the symmetric connection relation.
package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// IdentityService verifies a credential and returns the stable username it
// belongs to. Failures wrap ErrAuthFailure.
type IdentityService interface {
	Verify(ctx context.Context, token string) (string, error)
}

// ConnectionStore persists the symmetric is-connected relation between two
// usernames. AddEdge must be idempotent set-add semantics and record both
// directions as one unit; failures wrap ErrStoreFailure.
type ConnectionStore interface {
	AddEdge(ctx context.Context, a, b string) error
	ConnectionsOf(ctx context.Context, username string) ([]string, error)
}

// StaticTokenIdentity is an IdentityService backed by a fixed token to
// username map, seeded from configuration. It stands in for the external
// login service in the default wiring and in tests.
type StaticTokenIdentity struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// NewStaticTokenIdentity creates an identity service from the given token
// map. A nil map yields a service that rejects every credential.
func NewStaticTokenIdentity(tokens map[string]string) *StaticTokenIdentity {
	copied := make(map[string]string, len(tokens))
	for token, username := range tokens {
		copied[token] = username
	}
	return &StaticTokenIdentity{tokens: copied}
}

// Register adds or replaces a token binding.
func (s *StaticTokenIdentity) Register(token, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = username
}

// Verify resolves a token to its username.
func (s *StaticTokenIdentity) Verify(_ context.Context, token string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	username, ok := s.tokens[token]
	if !ok || username == "" {
		return "", fmt.Errorf("%w: unknown token", ErrAuthFailure)
	}
	return username, nil
}

// MemoryConnectionStore is a ConnectionStore holding the connection graph
// in a mutex-guarded adjacency set. State is process-lifetime only.
type MemoryConnectionStore struct {
	mu    sync.RWMutex
	edges map[string]map[string]struct{}
}

// NewMemoryConnectionStore creates an empty in-memory connection store.
func NewMemoryConnectionStore() *MemoryConnectionStore {
	return &MemoryConnectionStore{edges: make(map[string]map[string]struct{})}
}

// AddEdge records the symmetric edge between a and b. Re-adding an existing
// edge is a no-op.
func (m *MemoryConnectionStore) AddEdge(_ context.Context, a, b string) error {
	if a == "" || b == "" {
		return fmt.Errorf("%w: edge endpoints must be non-empty", ErrStoreFailure)
	}
	if a == b {
		return fmt.Errorf("%w: cannot connect %q to itself", ErrStoreFailure, a)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.addDirected(a, b)
	m.addDirected(b, a)
	return nil
}

func (m *MemoryConnectionStore) addDirected(from, to string) {
	peers, ok := m.edges[from]
	if !ok {
		peers = make(map[string]struct{})
		m.edges[from] = peers
	}
	peers[to] = struct{}{}
}

// ConnectionsOf returns the sorted set of usernames connected to username.
func (m *MemoryConnectionStore) ConnectionsOf(_ context.Context, username string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	peers := make([]string, 0, len(m.edges[username]))
	for peer := range m.edges[username] {
		peers = append(peers, peer)
	}
	sort.Strings(peers)
	return peers, nil
}
