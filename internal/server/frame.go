// Package server defines the JSON frame format exchanged between clients
// and the broker, plus the per-type required-field contracts.
package server

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Frame type discriminants. These are the canonical names; a handful of
// legacy aliases are accepted on input and normalized during parsing.
const (
	TypeLogin                = "login"
	TypeConnectionRequest    = "connectionRequest"
	TypeConnectionResponse   = "connectionResponse"
	TypeFile                 = "file"
	TypeDownloadNotification = "downloadNotification"
	TypeUserList             = "userList"
	TypeAuthError            = "authError"
)

var frameAliases = map[string]string{
	"auth":              TypeLogin,
	"requestConnection": TypeConnectionRequest,
	"fileTransfer":      TypeFile,
	"fileDownloaded":    TypeDownloadNotification,
}

// Frame is the tagged JSON object carried over a session channel. One
// struct covers every inbound type; Validate enforces which fields must be
// present for a given type. Inbound frames are forwarded as raw bytes, so
// unknown extra fields survive the relay untouched.
type Frame struct {
	Type           string `json:"type"`
	Username       string `json:"username,omitempty"`
	Token          string `json:"token,omitempty"`
	From           string `json:"from,omitempty"`
	To             string `json:"to,omitempty"`
	Accepted       *bool  `json:"accepted,omitempty"`
	FileName       string `json:"fileName,omitempty"`
	FileSize       int64  `json:"fileSize,omitempty"`
	FileContent    string `json:"fileContent,omitempty"`
	SentTime       string `json:"sentTime,omitempty"`
	MessageID      string `json:"messageId,omitempty"`
	DownloadedTime string `json:"downloadedTime,omitempty"`
}

// ParseFrame decodes a raw frame and normalizes legacy type aliases.
func ParseFrame(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if canonical, ok := frameAliases[f.Type]; ok {
		f.Type = canonical
	}
	return &f, nil
}

// Validate checks the required-field contract for the frame's type. A
// recognized type with missing fields and an unrecognized type are both
// malformed; the router drops either without replying.
func (f *Frame) Validate() error {
	switch f.Type {
	case TypeLogin:
		return f.require(map[string]bool{
			"username": f.Username != "",
			"token":    f.Token != "",
		})
	case TypeConnectionRequest:
		return f.require(map[string]bool{
			"from": f.From != "",
			"to":   f.To != "",
		})
	case TypeConnectionResponse:
		return f.require(map[string]bool{
			"from":     f.From != "",
			"to":       f.To != "",
			"accepted": f.Accepted != nil,
		})
	case TypeFile:
		return f.require(map[string]bool{
			"from":        f.From != "",
			"to":          f.To != "",
			"fileName":    f.FileName != "",
			"fileSize":    f.FileSize > 0,
			"fileContent": f.FileContent != "",
			"sentTime":    f.SentTime != "",
			"messageId":   f.MessageID != "",
		})
	case TypeDownloadNotification:
		return f.require(map[string]bool{
			"from":           f.From != "",
			"to":             f.To != "",
			"messageId":      f.MessageID != "",
			"downloadedTime": f.DownloadedTime != "",
		})
	default:
		return fmt.Errorf("%w: unrecognized type %q", ErrMalformedFrame, f.Type)
	}
}

func (f *Frame) require(fields map[string]bool) error {
	var missing []string
	for name, present := range fields {
		if !present {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s frame missing %s", ErrMalformedFrame, f.Type, strings.Join(missing, ", "))
}

type userListFrame struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

type authErrorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// marshalUserList builds the server-to-client presence frame. Users is
// always emitted, as an empty array when nobody is visible.
func marshalUserList(users []string) []byte {
	if users == nil {
		users = []string{}
	}
	payload, err := json.Marshal(userListFrame{Type: TypeUserList, Users: users})
	if err != nil {
		// A slice of strings cannot fail to marshal.
		panic(err)
	}
	return payload
}

func marshalAuthError(message string) []byte {
	payload, err := json.Marshal(authErrorFrame{Type: TypeAuthError, Error: message})
	if err != nil {
		panic(err)
	}
	return payload
}
