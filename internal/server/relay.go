// Package server relays file-transfer payloads and download
// acknowledgements between two paired, currently-connected users. The
// relay performs no chunking, no persistence, and no store-and-forward: a
// disconnected recipient permanently loses the in-flight payload.
package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// contentTypeOf extracts the declared MIME type from a data-URL encoded
// fileContent value ("data:<mime>;base64,<payload>").
func contentTypeOf(fileContent string) (string, bool) {
	const prefix = "data:"
	if !strings.HasPrefix(fileContent, prefix) {
		return "", false
	}
	rest := fileContent[len(prefix):]
	end := strings.IndexAny(rest, ";,")
	if end <= 0 {
		return "", false
	}
	return strings.ToLower(strings.TrimSpace(rest[:end])), true
}

// validateFilePayload gates a file frame on the configured content-type
// allow-list and size ceiling before any forwarding happens.
func validateFilePayload(f *Frame) error {
	contentType, ok := contentTypeOf(f.FileContent)
	if !ok {
		return fmt.Errorf("%w: fileContent is not a data URL", ErrPayloadRejected)
	}
	if !isFileTypeAllowed(contentType) {
		return fmt.Errorf("%w: content type %q not allowed", ErrPayloadRejected, contentType)
	}
	if maxSize := currentConfig().MaxFileSize; f.FileSize > maxSize {
		return fmt.Errorf("%w: declared size %d exceeds ceiling %d", ErrPayloadRejected, f.FileSize, maxSize)
	}
	return nil
}

// handleFile validates the payload and then forwards it twice: to the
// recipient's channel and back to the sender's channel as a delivery echo,
// so the sending client can confirm the relay without a separate ack
// round-trip. Both sends carry the identical raw frame, messageId included.
func (b *Broker) handleFile(_ context.Context, f *Frame, raw []byte) {
	if err := validateFilePayload(f); err != nil {
		logrus.WithFields(logrus.Fields{
			"from":       f.From,
			"to":         f.To,
			"message_id": f.MessageID,
			"file_name":  f.FileName,
			"error":      err,
		}).Info("Dropping file frame")
		return
	}

	fields := logrus.Fields{
		"from":       f.From,
		"to":         f.To,
		"message_id": f.MessageID,
		"file_name":  f.FileName,
		"file_size":  f.FileSize,
	}

	if recipient, ok := b.registry.Lookup(f.To); ok {
		if !recipient.Send(raw) {
			logrus.WithFields(fields).Warn("File frame not delivered to recipient")
		}
	} else {
		logrus.WithFields(fields).Info("File recipient offline; payload lost")
	}

	if sender, ok := b.registry.Lookup(f.From); ok {
		if !sender.Send(raw) {
			logrus.WithFields(fields).Warn("File echo not delivered to sender")
		}
	}

	logrus.WithFields(fields).Info("File frame relayed")
}

// handleDownloadNotification forwards the acknowledgement verbatim to the
// original sender of the file, if connected.
func (b *Broker) handleDownloadNotification(_ context.Context, f *Frame, raw []byte) {
	target, ok := b.registry.Lookup(f.To)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"from":       f.From,
			"to":         f.To,
			"message_id": f.MessageID,
			"error":      ErrUnknownRecipient,
		}).Info("Dropping download notification")
		return
	}

	if !target.Send(raw) {
		logrus.WithFields(logrus.Fields{
			"from":       f.From,
			"to":         f.To,
			"message_id": f.MessageID,
		}).Warn("Download notification not delivered")
	}
}
