package domain

import "github.com/google/uuid"

// Commands are the explicit, tagged request shapes accepted by the service
// layer. They are validated at the boundary before any authorization or
// crypto work happens.

type SendMessageCommand struct {
	SenderID       uuid.UUID   `validate:"required"`
	ConversationID uuid.UUID   `validate:"required"`
	Content        string      `validate:"required"`
	Type           MessageType `validate:"required,oneof=text image voice video file"`
}

type ReadMessageCommand struct {
	RequesterID uuid.UUID `validate:"required"`
	MessageID   uuid.UUID `validate:"required"`
}

type ListHistoryCommand struct {
	RequesterID    uuid.UUID `validate:"required"`
	ConversationID uuid.UUID `validate:"required"`
}

type DeleteMessageCommand struct {
	RequesterID uuid.UUID `validate:"required"`
	MessageID   uuid.UUID `validate:"required"`
}

type CreateGroupCommand struct {
	CreatorID uuid.UUID   `validate:"required"`
	Name      string      `validate:"required,min=1,max=255"`
	MemberIDs []uuid.UUID `validate:"required,min=1"`
}

type AddAttachmentCommand struct {
	RequesterID uuid.UUID `validate:"required"`
	MessageID   uuid.UUID `validate:"required"`
	Name        string    `validate:"required,max=255"`
	Content     []byte    `validate:"required"`
}
