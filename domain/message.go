package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
	TypeVoice MessageType = "voice"
	TypeVideo MessageType = "video"
	TypeFile  MessageType = "file"
)

func (t MessageType) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeVoice, TypeVideo, TypeFile:
		return true
	}
	return false
}

// SealedMessage is an immutable ciphertext envelope belonging to exactly one
// conversation. Ciphertext, WrappedKeys and Nonce are opaque hex blobs and
// never change after creation; the row is destroyed only by explicit
// deletion, which cascades delivery records and attachments.
type SealedMessage struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	Ciphertext     string
	// WrappedKeys holds the per-message session key wrapped once per
	// recipient, keyed by identity id. Every member active at send time has
	// an entry and can therefore decrypt.
	WrappedKeys map[string]string
	Nonce       string
	Type        MessageType
	CreatedAt   time.Time
}

// DecryptedMessage is the read-path projection returned to an authorized
// member. It exists only in memory.
type DecryptedMessage struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	Content        string
	Type           MessageType
	Attachments    []Attachment
	CreatedAt      time.Time
	// IsRead reflects the viewer's own read record, not anyone else's.
	IsRead bool
}

// MessageReceipt is what the send path returns. It deliberately carries no
// plaintext and no key material.
type MessageReceipt struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	CreatedAt      time.Time
}
