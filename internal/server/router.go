// Package server routes inbound frames: parse, required-field gate,
// authentication gate, then dispatch to pairing, relay, or session
// handling. Malformed and unrecognized frames are dropped and logged;
// nothing but an authentication failure is ever reported back to the
// sender.
package server

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Broker ties the session registry, presence notifier, pairing, and relay
// together behind a single frame entry point. It owns no transport; the
// websocket layer hands it raw frames and a send primitive per connection.
type Broker struct {
	registry *Registry
	presence *presenceNotifier
	identity IdentityService
	store    ConnectionStore
}

// NewBroker wires a broker around the given collaborators.
func NewBroker(identity IdentityService, store ConnectionStore) *Broker {
	registry := NewRegistry()
	return &Broker{
		registry: registry,
		presence: &presenceNotifier{registry: registry, store: store},
		identity: identity,
		store:    store,
	}
}

// Registry exposes the broker's session registry, primarily for tests and
// shutdown diagnostics.
func (b *Broker) Registry() *Registry {
	return b.registry
}

var (
	brokerMu     sync.RWMutex
	activeBroker = NewBroker(NewStaticTokenIdentity(nil), NewMemoryConnectionStore())
)

// SetBroker replaces the broker used for new connections. Passing nil
// resets to the default wiring (empty static identity, in-memory store),
// which rejects every login until tokens are seeded.
func SetBroker(b *Broker) {
	if b == nil {
		b = NewBroker(NewStaticTokenIdentity(nil), NewMemoryConnectionStore())
	}
	brokerMu.Lock()
	activeBroker = b
	brokerMu.Unlock()
}

func currentBroker() *Broker {
	brokerMu.RLock()
	defer brokerMu.RUnlock()
	return activeBroker
}

// Conn is the broker-side state of one websocket connection: its send
// primitive and, once the login handshake succeeds, its session. The
// session field is touched only from the connection's read goroutine, so
// it needs no lock.
type Conn struct {
	broker  *Broker
	ch      channel
	remote  string
	session *Session
}

// NewConn registers a transport connection with the broker. The connection
// is anonymous until a login frame passes identity verification.
func (b *Broker) NewConn(ch channel, remote string) *Conn {
	return &Conn{broker: b, ch: ch, remote: remote}
}

// Username returns the authenticated username bound to this connection, or
// the empty string before login.
func (cn *Conn) Username() string {
	if cn.session == nil {
		return ""
	}
	return cn.session.Username
}

// Disconnect eagerly unregisters the connection's session, if it is still
// the current one for its username, and pushes one presence update. No
// in-flight relay is rolled back.
func (cn *Conn) Disconnect(ctx context.Context) {
	if cn.session == nil {
		return
	}
	if cn.broker.registry.Unbind(cn.session) {
		logrus.WithFields(logrus.Fields{
			"username": cn.session.Username,
			"session":  cn.session.ID,
		}).Info("Session unregistered")
		cn.broker.presence.refresh(ctx)
	}
	cn.session = nil
}

// HandleFrame is the single entry point for inbound frames on a
// connection. No error here is fatal: a malformed frame or a failed store
// call never terminates the channel or the broker.
func (cn *Conn) HandleFrame(ctx context.Context, raw []byte) {
	b := cn.broker

	f, err := ParseFrame(raw)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"remote": cn.remote,
			"error":  err,
		}).Info("Dropping unparseable frame")
		return
	}

	if err := f.Validate(); err != nil {
		logrus.WithFields(logrus.Fields{
			"remote": cn.remote,
			"type":   f.Type,
			"error":  err,
		}).Info("Dropping invalid frame")
		return
	}

	if f.Type == TypeLogin {
		cn.handleLogin(ctx, f)
		return
	}

	if cn.session == nil {
		logrus.WithFields(logrus.Fields{
			"remote": cn.remote,
			"type":   f.Type,
		}).Info("Dropping frame from unauthenticated connection")
		return
	}

	if f.From != cn.session.Username {
		logrus.WithFields(logrus.Fields{
			"remote":   cn.remote,
			"type":     f.Type,
			"from":     f.From,
			"username": cn.session.Username,
		}).Warn("Dropping frame with mismatched sender")
		return
	}

	switch f.Type {
	case TypeConnectionRequest:
		b.handleConnectionRequest(ctx, f, raw)
	case TypeConnectionResponse:
		b.handleConnectionResponse(ctx, f, raw)
	case TypeFile:
		b.handleFile(ctx, f, raw)
	case TypeDownloadNotification:
		b.handleDownloadNotification(ctx, f, raw)
	}
}

// handleLogin verifies the credential, binds the session under the
// canonical username the identity service returns, and triggers a
// presence refresh. Authentication failure is the one error replied to
// the client, as an authError frame.
func (cn *Conn) handleLogin(ctx context.Context, f *Frame) {
	b := cn.broker

	username, err := b.identity.Verify(ctx, f.Token)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"remote":   cn.remote,
			"username": f.Username,
			"error":    err,
		}).Info("Login rejected")
		cn.ch.Send(marshalAuthError("invalid or expired token"))
		return
	}

	if f.Username != username {
		logrus.WithFields(logrus.Fields{
			"remote":    cn.remote,
			"claimed":   f.Username,
			"canonical": username,
		}).Warn("Login username differs from token identity; using canonical")
	}

	// A re-login on the same channel releases the old binding first.
	if cn.session != nil {
		b.registry.Unbind(cn.session)
	}
	cn.session = b.registry.Bind(username, cn.ch)

	logrus.WithFields(logrus.Fields{
		"remote":   cn.remote,
		"username": username,
		"session":  cn.session.ID,
	}).Info("Session registered")

	b.presence.refresh(ctx)
}
