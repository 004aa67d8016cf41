package domain

import (
	"strings"
	"time"
)

type AttachmentKind string

const (
	AttachmentPhoto    AttachmentKind = "photo"
	AttachmentDocument AttachmentKind = "document"
)

// Attachment is a media item carried by an incoming message.
type Attachment struct {
	ID       string         `json:"id"`
	Kind     AttachmentKind `json:"kind"`
	FileName string         `json:"file_name,omitempty"`
	MIMEType string         `json:"mime_type,omitempty"`
	Data     []byte         `json:"data,omitempty"`
}

// IncomingMessage is produced by the transport and consumed once by a collector.
type IncomingMessage struct {
	Sender      ActorID
	RawText     string
	Attachments []Attachment
	ReceivedAt  time.Time
}

// Normalized is the output of the text normalization step.
type Normalized struct {
	Text     string
	Fields   map[string]string
	NotFound bool
}

// ParsedMessage pairs an incoming message with its normalized form.
type ParsedMessage struct {
	IncomingMessage
	Normalized
}

// Identifier fields that tie a reply to a specific query.
var IdentifierFields = []string{"dni", "ruc"}

// MatchesKey reports whether the message belongs to a query with the given
// correlation key. Messages carrying an identifier must carry exactly that key;
// messages without one must mention it in their raw text or be a not-found reply.
func (m ParsedMessage) MatchesKey(key string) bool {
	if key == "" {
		return true
	}
	seen := false
	for _, f := range IdentifierFields {
		v, ok := m.Fields[f]
		if !ok {
			continue
		}
		seen = true
		if v == key {
			return true
		}
	}
	if seen {
		return false
	}
	return m.NotFound || strings.Contains(m.RawText, key)
}
