package domain

import (
	"time"

	"github.com/google/uuid"
)

// Attachment holds an opaque storage locator plus metadata for a file
// attached to a message. The core never inspects stored attachment bytes
// and does not encrypt them.
type Attachment struct {
	ID        uuid.UUID
	MessageID uuid.UUID
	Locator   string
	MimeType  string
	Size      int64
	Name      string
	CreatedAt time.Time
}
