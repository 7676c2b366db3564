package domain

import (
	"time"

	"github.com/google/uuid"
)

type ConversationKind string

const (
	// KindDirect is a two-party conversation. Its membership is fixed at
	// creation and it can never be renamed.
	KindDirect ConversationKind = "direct"
	// KindGroup has a creator who manages membership and the name.
	KindGroup ConversationKind = "group"
	// KindSelfNotes has exactly one member, the owner.
	KindSelfNotes ConversationKind = "self"
)

type Conversation struct {
	ID        uuid.UUID
	Kind      ConversationKind
	Name      string
	CreatorID uuid.UUID
	CreatedAt time.Time
}

func (c Conversation) IsDirect() bool    { return c.Kind == KindDirect }
func (c Conversation) IsGroup() bool     { return c.Kind == KindGroup }
func (c Conversation) IsSelfNotes() bool { return c.Kind == KindSelfNotes }

func (c Conversation) IsCreator(id uuid.UUID) bool { return c.CreatorID == id }

// Membership links an identity to a conversation. Membership is a set: at
// most one row per (conversation, identity). Active=false is a soft removal
// that keeps history readable for the remaining members.
type Membership struct {
	ConversationID uuid.UUID
	IdentityID     uuid.UUID
	Active         bool
	JoinedAt       time.Time
}
