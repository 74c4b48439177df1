// Package server drives the two-party pairing handshake: a connection
// request forwarded to its target, and a response that may persist the
// symmetric connection edge before being forwarded to the original
// requester. The broker holds no state between request and response; a
// pending request exists only as the in-flight frame.
package server

import (
	"context"

	"github.com/sirupsen/logrus"
)

// handleConnectionRequest forwards the request frame verbatim to the
// target's channel. An offline target means the request is dropped and
// logged; the requester is not notified.
func (b *Broker) handleConnectionRequest(_ context.Context, f *Frame, raw []byte) {
	target, ok := b.registry.Lookup(f.To)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"from":  f.From,
			"to":    f.To,
			"error": ErrUnknownRecipient,
		}).Info("Dropping connection request")
		return
	}

	if !target.Send(raw) {
		logrus.WithFields(logrus.Fields{
			"from": f.From,
			"to":   f.To,
		}).Warn("Connection request not delivered")
		return
	}

	logrus.WithFields(logrus.Fields{
		"from": f.From,
		"to":   f.To,
	}).Info("Connection request forwarded")
}

// handleConnectionResponse persists the edge when the target accepted,
// then forwards the response frame verbatim to the original requester.
// The forward happens regardless of store outcome: delivery is never
// gated on storage latency or success, and a failed write just means the
// edge is considered absent. Duplicate responses are harmless because the
// store uses set-add semantics.
func (b *Broker) handleConnectionResponse(ctx context.Context, f *Frame, raw []byte) {
	accepted := f.Accepted != nil && *f.Accepted

	if accepted {
		if err := b.store.AddEdge(ctx, f.From, f.To); err != nil {
			logrus.WithFields(logrus.Fields{
				"from":  f.From,
				"to":    f.To,
				"error": err,
			}).Error("Failed to persist connection edge")
		} else {
			logrus.WithFields(logrus.Fields{
				"from": f.From,
				"to":   f.To,
			}).Info("Connection established")
			// Both peers drop out of each other's candidate list right away.
			b.presence.refresh(ctx)
		}
	}

	requester, ok := b.registry.Lookup(f.To)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"from":     f.From,
			"to":       f.To,
			"accepted": accepted,
			"error":    ErrUnknownRecipient,
		}).Info("Dropping connection response")
		return
	}

	if !requester.Send(raw) {
		logrus.WithFields(logrus.Fields{
			"from": f.From,
			"to":   f.To,
		}).Warn("Connection response not delivered")
	}
}
