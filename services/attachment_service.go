//go:generate go run go.uber.org/mock/mockgen -source=attachment_service.go -destination=../mocks/mock_blob_store.go -package=mocks
package services

import (
	"log/slog"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"messenger/domain"
	"messenger/errors"
	"messenger/repositories"
)

// BlobStore is the external attachment storage collaborator. The core hands
// bytes over and keeps only the opaque locator; it never reads them back.
type BlobStore interface {
	Put(name string, content []byte) (locator string, err error)
	Delete(locator string) error
}

type AttachmentService struct {
	guard       *MembershipGuard
	messages    repositories.IMessageRepository
	attachments repositories.IAttachmentRepository
	blobs       BlobStore
	log         *slog.Logger
	maxSize     int64
}

func NewAttachmentService(
	guard *MembershipGuard,
	messages repositories.IMessageRepository,
	attachments repositories.IAttachmentRepository,
	blobs BlobStore,
	log *slog.Logger,
	maxSize int64,
) *AttachmentService {
	return &AttachmentService{
		guard:       guard,
		messages:    messages,
		attachments: attachments,
		blobs:       blobs,
		log:         log,
		maxSize:     maxSize,
	}
}

// AddAttachment stores the bytes through the blob store and persists the
// metadata row. The MIME type is sniffed from the content, not trusted from
// the caller. Attachments are not encrypted by this core.
func (s *AttachmentService) AddAttachment(cmd domain.AddAttachmentCommand) (domain.Attachment, error) {
	if err := validateCommand(cmd); err != nil {
		return domain.Attachment{}, err
	}
	if s.maxSize > 0 && int64(len(cmd.Content)) > s.maxSize {
		return domain.Attachment{}, errors.ErrContentTooLarge
	}

	msg, err := s.messages.GetMessage(cmd.MessageID)
	if err != nil {
		return domain.Attachment{}, err
	}
	if err := s.guard.RequireMember(msg.ConversationID, cmd.RequesterID); err != nil {
		return domain.Attachment{}, err
	}

	locator, err := s.blobs.Put(cmd.Name, cmd.Content)
	if err != nil {
		return domain.Attachment{}, err
	}

	att := domain.Attachment{
		ID:        uuid.New(),
		MessageID: msg.ID,
		Locator:   locator,
		MimeType:  mimetype.Detect(cmd.Content).String(),
		Size:      int64(len(cmd.Content)),
		Name:      cmd.Name,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.attachments.AddAttachment(att); err != nil {
		return domain.Attachment{}, err
	}

	s.log.Info("attachment added",
		"attachment_id", att.ID,
		"message_id", msg.ID,
		"mime", att.MimeType,
		"size", att.Size,
	)
	return att, nil
}

// DeleteAttachment removes an attachment. Only the author of the owning
// message may delete it; other members see ErrNotAuthor, outsiders see
// AccessDenied from the membership check.
func (s *AttachmentService) DeleteAttachment(requester, attachmentID uuid.UUID) error {
	att, err := s.attachments.GetAttachment(attachmentID)
	if err != nil {
		return err
	}
	msg, err := s.messages.GetMessage(att.MessageID)
	if err != nil {
		return err
	}
	if err := s.guard.RequireMember(msg.ConversationID, requester); err != nil {
		return err
	}
	if msg.SenderID != requester {
		return errors.ErrNotAuthor
	}

	if err := s.attachments.DeleteAttachment(att.ID); err != nil {
		return err
	}
	if err := s.blobs.Delete(att.Locator); err != nil {
		// The metadata row is already gone; losing the blob delete only
		// leaks storage, not data access.
		s.log.Warn("blob delete failed", "attachment_id", att.ID, "error", err)
	}
	return nil
}
