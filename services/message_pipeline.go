//go:generate go run go.uber.org/mock/mockgen -source=message_pipeline.go -destination=../mocks/mock_message_pipeline.go -package=mocks
package services

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"messenger/crypto"
	"messenger/domain"
	msgerrors "messenger/errors"
	"messenger/moderation"
	"messenger/observability"
	"messenger/repositories"
)

type IMessagePipeline interface {
	Send(cmd domain.SendMessageCommand) (domain.MessageReceipt, error)
	Read(cmd domain.ReadMessageCommand) (domain.DecryptedMessage, error)
	ListHistory(cmd domain.ListHistoryCommand) ([]domain.DecryptedMessage, error)
	DeleteMessage(cmd domain.DeleteMessageCommand) error
}

// MessagePipeline orchestrates the encrypted message flow. Send runs
// plaintext -> seal -> persist; Read runs fetch -> authorize -> open ->
// mark. Plaintext exists only inside a single call, never in storage or
// logs.
type MessagePipeline struct {
	guard         *MembershipGuard
	conversations repositories.IConversationRepository
	messages      repositories.IMessageRepository
	delivery      repositories.IDeliveryRepository
	attachments   repositories.IAttachmentRepository
	identities    IdentityDirectory
	engine        crypto.Engine
	moderator     *moderation.Moderator
	metrics       *observability.Metrics
	log           *slog.Logger

	maxContentLength int
}

func NewMessagePipeline(
	guard *MembershipGuard,
	conversations repositories.IConversationRepository,
	messages repositories.IMessageRepository,
	delivery repositories.IDeliveryRepository,
	attachments repositories.IAttachmentRepository,
	identities IdentityDirectory,
	engine crypto.Engine,
	moderator *moderation.Moderator,
	metrics *observability.Metrics,
	log *slog.Logger,
	maxContentLength int,
) *MessagePipeline {
	return &MessagePipeline{
		guard:            guard,
		conversations:    conversations,
		messages:         messages,
		delivery:         delivery,
		attachments:      attachments,
		identities:       identities,
		engine:           engine,
		moderator:        moderator,
		metrics:          metrics,
		log:              log,
		maxContentLength: maxContentLength,
	}
}

// Send encrypts the content for every active member of the conversation and
// persists the sealed envelope atomically. The receipt never echoes the
// plaintext or any key material.
func (p *MessagePipeline) Send(cmd domain.SendMessageCommand) (domain.MessageReceipt, error) {
	if err := validateCommand(cmd); err != nil {
		return domain.MessageReceipt{}, err
	}
	if p.maxContentLength > 0 && len(cmd.Content) > p.maxContentLength {
		return domain.MessageReceipt{}, fmt.Errorf("%w: %v", msgerrors.ErrValidationFailed, msgerrors.ErrContentTooLarge)
	}

	if err := p.guard.RequireMember(cmd.ConversationID, cmd.SenderID); err != nil {
		p.noteAccessDenied(err)
		return domain.MessageReceipt{}, err
	}
	conv, err := p.conversations.GetConversation(cmd.ConversationID)
	if err != nil {
		return domain.MessageReceipt{}, err
	}

	content := cmd.Content
	if p.moderator != nil {
		content = p.moderator.Censor(content)
	}

	members, err := p.conversations.ListActiveMembers(conv.ID)
	if err != nil {
		return domain.MessageReceipt{}, err
	}
	recipients := make(map[string]*rsa.PublicKey, len(members))
	for _, m := range members {
		pub, err := p.identities.PublicKey(m.IdentityID)
		if err != nil {
			return domain.MessageReceipt{}, fmt.Errorf("resolve recipient key: %w", err)
		}
		recipients[m.IdentityID.String()] = pub
	}

	env, err := p.engine.Seal([]byte(content), recipients)
	if err != nil {
		return domain.MessageReceipt{}, err
	}

	msg := domain.SealedMessage{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		SenderID:       cmd.SenderID,
		Ciphertext:     env.Ciphertext,
		WrappedKeys:    env.WrappedKeys,
		Nonce:          env.Nonce,
		Type:           cmd.Type,
		CreatedAt:      time.Now().UTC(),
	}
	if err := p.messages.StoreMessage(msg); err != nil {
		return domain.MessageReceipt{}, err
	}

	p.metrics.IncrSealed()
	p.log.Info("message sealed",
		"message_id", msg.ID,
		"conversation_id", conv.ID,
		"recipients", len(recipients),
		"type", msg.Type,
	)
	return domain.MessageReceipt{
		ID:             msg.ID,
		ConversationID: conv.ID,
		CreatedAt:      msg.CreatedAt,
	}, nil
}

// Read authorizes the requester, decrypts the single message and lazily
// upserts the requester's read record. Authorization always precedes the
// decrypt attempt, so a non-member never triggers crypto work.
func (p *MessagePipeline) Read(cmd domain.ReadMessageCommand) (domain.DecryptedMessage, error) {
	if err := validateCommand(cmd); err != nil {
		return domain.DecryptedMessage{}, err
	}

	msg, err := p.messages.GetMessage(cmd.MessageID)
	if err != nil {
		return domain.DecryptedMessage{}, err
	}
	if err := p.guard.RequireMember(msg.ConversationID, cmd.RequesterID); err != nil {
		p.noteAccessDenied(err)
		return domain.DecryptedMessage{}, err
	}

	priv, err := p.privateKey(cmd.RequesterID)
	if err != nil {
		return domain.DecryptedMessage{}, err
	}
	plaintext, err := p.open(msg, cmd.RequesterID, priv)
	if err != nil {
		return domain.DecryptedMessage{}, err
	}

	if cmd.RequesterID != msg.SenderID {
		read, err := p.delivery.IsRead(msg.ID, cmd.RequesterID)
		if err != nil {
			return domain.DecryptedMessage{}, err
		}
		if !read {
			if err := p.delivery.MarkRead(msg.ID, cmd.RequesterID, time.Now().UTC()); err != nil {
				return domain.DecryptedMessage{}, err
			}
			p.metrics.IncrReadMarks()
		}
	}

	return p.project(msg, cmd.RequesterID, plaintext)
}

// ListHistory returns the requester's decryptable view of a conversation in
// chronological order. A message that fails to decrypt is dropped from the
// result, never an error for the whole listing; every successfully
// decrypted foreign message is marked delivered to the requester.
func (p *MessagePipeline) ListHistory(cmd domain.ListHistoryCommand) ([]domain.DecryptedMessage, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	if err := p.guard.RequireMember(cmd.ConversationID, cmd.RequesterID); err != nil {
		p.noteAccessDenied(err)
		return nil, err
	}
	if _, err := p.conversations.GetConversation(cmd.ConversationID); err != nil {
		return nil, err
	}

	msgs, err := p.messages.ListMessages(cmd.ConversationID)
	if err != nil {
		return nil, err
	}

	priv, err := p.privateKey(cmd.RequesterID)
	if err != nil {
		return nil, err
	}

	history := make([]domain.DecryptedMessage, 0, len(msgs))
	for _, msg := range msgs {
		plaintext, err := p.open(msg, cmd.RequesterID, priv)
		if err != nil {
			// One undecryptable message must not block the rest of the
			// history. Logged without any envelope contents.
			p.log.Warn("skipping undecryptable message",
				"message_id", msg.ID,
				"conversation_id", msg.ConversationID,
			)
			continue
		}

		if msg.SenderID != cmd.RequesterID {
			if err := p.delivery.MarkDelivered(msg.ID, cmd.RequesterID, time.Now().UTC()); err != nil {
				return nil, err
			}
			p.metrics.IncrDeliveryMarks()
		}

		decrypted, err := p.project(msg, cmd.RequesterID, plaintext)
		if err != nil {
			return nil, err
		}
		history = append(history, decrypted)
	}
	return history, nil
}

// DeleteMessage destroys a message together with its delivery records and
// attachments. Only the author may delete their own message.
func (p *MessagePipeline) DeleteMessage(cmd domain.DeleteMessageCommand) error {
	if err := validateCommand(cmd); err != nil {
		return err
	}

	msg, err := p.messages.GetMessage(cmd.MessageID)
	if err != nil {
		return err
	}
	if err := p.guard.RequireMember(msg.ConversationID, cmd.RequesterID); err != nil {
		p.noteAccessDenied(err)
		return err
	}
	if msg.SenderID != cmd.RequesterID {
		return msgerrors.ErrNotAuthor
	}

	if err := p.messages.DeleteMessage(msg.ID); err != nil {
		return err
	}
	p.log.Info("message deleted", "message_id", msg.ID, "conversation_id", msg.ConversationID)
	return nil
}

// privateKey resolves the requester's own key from the identity directory.
// Any failure, including a keystore one, surfaces as the generic
// DecryptionFailed so unwrap problems stay indistinguishable from key ones.
func (p *MessagePipeline) privateKey(requester uuid.UUID) (*rsa.PrivateKey, error) {
	priv, err := p.identities.PrivateKey(requester, requester)
	if err != nil {
		p.metrics.IncrDecryptFailures()
		return nil, msgerrors.ErrDecryptionFailed
	}
	return priv, nil
}

// open unwraps and decrypts one message for the requester. The requester's
// membership has already been established by the caller.
func (p *MessagePipeline) open(msg domain.SealedMessage, requester uuid.UUID, priv *rsa.PrivateKey) ([]byte, error) {
	plaintext, err := p.engine.Open(crypto.Envelope{
		Ciphertext:  msg.Ciphertext,
		Nonce:       msg.Nonce,
		WrappedKeys: msg.WrappedKeys,
	}, requester.String(), priv)
	if err != nil {
		p.metrics.IncrDecryptFailures()
		return nil, msgerrors.ErrDecryptionFailed
	}
	p.metrics.IncrOpened()
	return plaintext, nil
}

func (p *MessagePipeline) project(msg domain.SealedMessage, viewer uuid.UUID, plaintext []byte) (domain.DecryptedMessage, error) {
	atts, err := p.attachments.ListByMessage(msg.ID)
	if err != nil {
		return domain.DecryptedMessage{}, err
	}
	isRead, err := p.delivery.IsRead(msg.ID, viewer)
	if err != nil {
		return domain.DecryptedMessage{}, err
	}
	return domain.DecryptedMessage{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        string(plaintext),
		Type:           msg.Type,
		Attachments:    atts,
		CreatedAt:      msg.CreatedAt,
		IsRead:         isRead,
	}, nil
}

func (p *MessagePipeline) noteAccessDenied(err error) {
	if errors.Is(err, msgerrors.ErrAccessDenied) {
		p.metrics.IncrAccessDenials()
	}
}
