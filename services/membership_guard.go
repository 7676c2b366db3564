package services

import (
	"errors"

	"github.com/google/uuid"

	msgerrors "messenger/errors"
	"messenger/repositories"
)

// MembershipGuard answers the single question both the send and read paths
// depend on: is this principal an active member of this conversation. It is
// never bypassed, and it runs before any decryption is attempted so
// non-members never cause (or time) crypto work.
type MembershipGuard struct {
	conversations repositories.IConversationRepository
}

func NewMembershipGuard(conversations repositories.IConversationRepository) *MembershipGuard {
	return &MembershipGuard{conversations: conversations}
}

func (g *MembershipGuard) IsActiveMember(convID, identityID uuid.UUID) (bool, error) {
	m, err := g.conversations.GetMembership(convID, identityID)
	if errors.Is(err, msgerrors.ErrAccessDenied) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return m.Active, nil
}

// RequireMember returns ErrAccessDenied unless the identity is an active
// member. The same error covers "no row" and "soft-removed", and it never
// reveals whether the conversation exists.
func (g *MembershipGuard) RequireMember(convID, identityID uuid.UUID) error {
	active, err := g.IsActiveMember(convID, identityID)
	if err != nil {
		return err
	}
	if !active {
		return msgerrors.ErrAccessDenied
	}
	return nil
}
