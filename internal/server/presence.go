// Package server computes and pushes per-recipient presence updates
// whenever the session registry changes.
package server

import (
	"context"

	"github.com/sirupsen/logrus"
)

// presenceNotifier fans a userList frame out to every registered session.
// Each recipient gets its own view: online users minus the recipient minus
// the recipient's already-established connections, so only new candidates
// surface. A later push fully replaces the visible set; there is no
// diffing and no ordering guarantee between recipients.
type presenceNotifier struct {
	registry *Registry
	store    ConnectionStore
}

// refresh recomputes and pushes the visible peer set for every currently
// registered user. Failed sends are logged and otherwise ignored; the
// session's own channel teardown handles cleanup.
func (p *presenceNotifier) refresh(ctx context.Context) {
	online := p.registry.Online()

	for _, s := range p.registry.snapshot() {
		visible := p.visibleTo(ctx, s.Username, online)
		if !s.Send(marshalUserList(visible)) {
			logrus.WithFields(logrus.Fields{
				"username": s.Username,
				"session":  s.ID,
			}).Debug("Presence update not delivered")
		}
	}
}

// visibleTo filters the online list for one recipient. If the store read
// fails the connection filter degrades to empty and the recipient sees
// every other online user; that beats suppressing the update entirely.
func (p *presenceNotifier) visibleTo(ctx context.Context, username string, online []string) []string {
	connected := make(map[string]struct{})
	peers, err := p.store.ConnectionsOf(ctx, username)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"username": username,
			"error":    err,
		}).Warn("Connection store read failed; sending unfiltered presence")
	} else {
		for _, peer := range peers {
			connected[peer] = struct{}{}
		}
	}

	visible := make([]string, 0, len(online))
	for _, candidate := range online {
		if candidate == username {
			continue
		}
		if _, isConnected := connected[candidate]; isConnected {
			continue
		}
		visible = append(visible, candidate)
	}
	return visible
}
