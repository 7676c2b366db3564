package services

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"messenger/domain"
	"messenger/errors"
	"messenger/repositories"
)

type IChatService interface {
	GetOrCreateDirect(a, b uuid.UUID) (domain.Conversation, error)
	CreateGroup(cmd domain.CreateGroupCommand) (domain.Conversation, error)
	GetOrCreateSelfNotes(owner uuid.UUID) (domain.Conversation, error)
	AddMember(requester, convID, identityID uuid.UUID) error
	RemoveMember(requester, convID, identityID uuid.UUID) error
	Rename(requester, convID uuid.UUID, name string) error
	Leave(requester, convID uuid.UUID) error
}

// ChatService manages conversation lifecycle and membership. Group
// management is creator-only; direct conversations are immutable after
// creation.
type ChatService struct {
	conversations repositories.IConversationRepository
	identities    IdentityDirectory
	log           *slog.Logger
}

func NewChatService(conversations repositories.IConversationRepository, identities IdentityDirectory, log *slog.Logger) *ChatService {
	return &ChatService{conversations: conversations, identities: identities, log: log}
}

// GetOrCreateDirect is idempotent and convergent: both participants, even
// calling concurrently, end up with the same conversation.
func (s *ChatService) GetOrCreateDirect(a, b uuid.UUID) (domain.Conversation, error) {
	for _, id := range []uuid.UUID{a, b} {
		if _, err := s.identities.Identity(id); err != nil {
			return domain.Conversation{}, err
		}
	}
	return s.conversations.GetOrCreateDirect(a, b)
}

func (s *ChatService) CreateGroup(cmd domain.CreateGroupCommand) (domain.Conversation, error) {
	if err := validateCommand(cmd); err != nil {
		return domain.Conversation{}, err
	}
	memberIDs := lo.Uniq(cmd.MemberIDs)
	for _, id := range memberIDs {
		if _, err := s.identities.Identity(id); err != nil {
			return domain.Conversation{}, err
		}
	}
	conv, err := s.conversations.CreateGroup(cmd.CreatorID, cmd.Name, memberIDs)
	if err != nil {
		return domain.Conversation{}, err
	}
	s.log.Info("group created", "conversation_id", conv.ID, "members", len(memberIDs)+1)
	return conv, nil
}

func (s *ChatService) GetOrCreateSelfNotes(owner uuid.UUID) (domain.Conversation, error) {
	if _, err := s.identities.Identity(owner); err != nil {
		return domain.Conversation{}, err
	}
	return s.conversations.GetOrCreateSelfNotes(owner)
}

// AddMember attaches an identity to a group, reactivating a soft-removed
// membership if one exists. Creator only; never allowed on direct chats.
func (s *ChatService) AddMember(requester, convID, identityID uuid.UUID) error {
	conv, err := s.requireGroupCreator(requester, convID)
	if err != nil {
		return err
	}
	if _, err := s.identities.Identity(identityID); err != nil {
		return err
	}
	return s.conversations.UpsertMembership(domain.Membership{
		ConversationID: conv.ID,
		IdentityID:     identityID,
		Active:         true,
		JoinedAt:       time.Now().UTC(),
	})
}

// RemoveMember soft-removes a membership so the member loses access without
// the conversation losing history.
func (s *ChatService) RemoveMember(requester, convID, identityID uuid.UUID) error {
	conv, err := s.requireGroupCreator(requester, convID)
	if err != nil {
		return err
	}
	m, err := s.conversations.GetMembership(conv.ID, identityID)
	if err != nil {
		return err
	}
	m.Active = false
	return s.conversations.UpsertMembership(m)
}

func (s *ChatService) Rename(requester, convID uuid.UUID, name string) error {
	conv, err := s.requireGroupCreator(requester, convID)
	if err != nil {
		return err
	}
	return s.conversations.Rename(conv.ID, name)
}

// Leave soft-removes the requester's own membership. Self-notes cannot be
// left.
func (s *ChatService) Leave(requester, convID uuid.UUID) error {
	conv, err := s.conversations.GetConversation(convID)
	if err != nil {
		return err
	}
	if conv.IsSelfNotes() {
		return errors.ErrSelfNotesLeave
	}
	m, err := s.conversations.GetMembership(convID, requester)
	if err != nil {
		return err
	}
	m.Active = false
	return s.conversations.UpsertMembership(m)
}

// requireGroupCreator gates the membership-management operations: the
// conversation must be a group and the requester its creator. Membership is
// checked first so outsiders only ever see AccessDenied.
func (s *ChatService) requireGroupCreator(requester, convID uuid.UUID) (domain.Conversation, error) {
	m, err := s.conversations.GetMembership(convID, requester)
	if err != nil {
		return domain.Conversation{}, err
	}
	if !m.Active {
		return domain.Conversation{}, errors.ErrAccessDenied
	}
	conv, err := s.conversations.GetConversation(convID)
	if err != nil {
		return domain.Conversation{}, err
	}
	if !conv.IsGroup() {
		return domain.Conversation{}, errors.ErrDirectImmutable
	}
	if !conv.IsCreator(requester) {
		return domain.Conversation{}, errors.ErrNotCreator
	}
	return conv, nil
}
