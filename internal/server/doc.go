// Package server implements the FileSync presence and relay broker: it
// tracks which named users hold an active WebSocket session, mediates the
// two-party connection handshake, and relays file-transfer payloads and
// download acknowledgements between paired users.
//
// The implementation is organized into specialized files for configuration,
// the session registry, presence, pairing, the relay engine, frame routing,
// hub management, clients, and HTTP handlers to keep the codebase
// maintainable and testable as the project grows.
package server
