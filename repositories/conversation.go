//go:generate go run go.uber.org/mock/mockgen -source=conversation.go -destination=../mocks/mock_conversation_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"messenger/domain"
	"messenger/errors"
)

type IConversationRepository interface {
	GetOrCreateDirect(a, b uuid.UUID) (domain.Conversation, error)
	CreateGroup(creator uuid.UUID, name string, memberIDs []uuid.UUID) (domain.Conversation, error)
	GetOrCreateSelfNotes(owner uuid.UUID) (domain.Conversation, error)
	GetConversation(id uuid.UUID) (domain.Conversation, error)
	GetMembership(convID, identityID uuid.UUID) (domain.Membership, error)
	ListActiveMembers(convID uuid.UUID) ([]domain.Membership, error)
	UpsertMembership(m domain.Membership) error
	Rename(convID uuid.UUID, name string) error
}

type ConversationRepository struct {
	db *badger.DB
}

func NewConversationRepository(db *badger.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// GetOrCreateDirect finds the direct conversation for the unordered pair
// (a, b), creating it atomically if absent. Both participants map to the
// same `direct:` key, and the whole find-or-create runs in one serializable
// transaction, so two concurrent calls converge on a single conversation:
// the losing transaction conflicts, retries, and finds the pointer.
func (r *ConversationRepository) GetOrCreateDirect(a, b uuid.UUID) (domain.Conversation, error) {
	if a == b {
		return domain.Conversation{}, fmt.Errorf("direct conversation needs two distinct members")
	}

	var conv domain.Conversation
	err := update(r.db, func(txn *badger.Txn) error {
		pairKey := directKey(a, b)
		item, err := txn.Get(pairKey)
		if err == nil {
			var existingID uuid.UUID
			if err := item.Value(func(val []byte) error {
				parsed, err := uuid.Parse(string(val))
				if err != nil {
					return err
				}
				existingID = parsed
				return nil
			}); err != nil {
				return err
			}
			conv, err = getConversationTxn(txn, existingID)
			return err
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		now := time.Now().UTC()
		conv = domain.Conversation{
			ID:        uuid.New(),
			Kind:      domain.KindDirect,
			CreatedAt: now,
		}
		if err := putConversationTxn(txn, conv); err != nil {
			return err
		}
		if err := txn.Set(pairKey, []byte(conv.ID.String())); err != nil {
			return err
		}
		for _, id := range []uuid.UUID{a, b} {
			if err := putMembershipTxn(txn, domain.Membership{
				ConversationID: conv.ID,
				IdentityID:     id,
				Active:         true,
				JoinedAt:       now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

// CreateGroup creates a group conversation. The creator is always attached
// and the member set is deduplicated; everything lands in one transaction.
func (r *ConversationRepository) CreateGroup(creator uuid.UUID, name string, memberIDs []uuid.UUID) (domain.Conversation, error) {
	now := time.Now().UTC()
	conv := domain.Conversation{
		ID:        uuid.New(),
		Kind:      domain.KindGroup,
		Name:      name,
		CreatorID: creator,
		CreatedAt: now,
	}

	members := map[uuid.UUID]struct{}{creator: {}}
	for _, id := range memberIDs {
		members[id] = struct{}{}
	}

	err := update(r.db, func(txn *badger.Txn) error {
		if err := putConversationTxn(txn, conv); err != nil {
			return err
		}
		for id := range members {
			if err := putMembershipTxn(txn, domain.Membership{
				ConversationID: conv.ID,
				IdentityID:     id,
				Active:         true,
				JoinedAt:       now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

// GetOrCreateSelfNotes returns the owner's single self-notes conversation,
// creating it on first use. Uniqueness is guaranteed the same way as for
// direct pairs, through the `selfnotes:` pointer key.
func (r *ConversationRepository) GetOrCreateSelfNotes(owner uuid.UUID) (domain.Conversation, error) {
	var conv domain.Conversation
	err := update(r.db, func(txn *badger.Txn) error {
		ownerKey := selfNotesKey(owner)
		item, err := txn.Get(ownerKey)
		if err == nil {
			var existingID uuid.UUID
			if err := item.Value(func(val []byte) error {
				parsed, err := uuid.Parse(string(val))
				if err != nil {
					return err
				}
				existingID = parsed
				return nil
			}); err != nil {
				return err
			}
			conv, err = getConversationTxn(txn, existingID)
			return err
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		now := time.Now().UTC()
		conv = domain.Conversation{
			ID:        uuid.New(),
			Kind:      domain.KindSelfNotes,
			CreatorID: owner,
			CreatedAt: now,
		}
		if err := putConversationTxn(txn, conv); err != nil {
			return err
		}
		if err := txn.Set(ownerKey, []byte(conv.ID.String())); err != nil {
			return err
		}
		return putMembershipTxn(txn, domain.Membership{
			ConversationID: conv.ID,
			IdentityID:     owner,
			Active:         true,
			JoinedAt:       now,
		})
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

func (r *ConversationRepository) GetConversation(id uuid.UUID) (domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		conv, err = getConversationTxn(txn, id)
		return err
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

func (r *ConversationRepository) GetMembership(convID, identityID uuid.UUID) (domain.Membership, error) {
	var m domain.Membership
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(memberKey(convID, identityID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &m)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Membership{}, errors.ErrAccessDenied
	}
	if err != nil {
		return domain.Membership{}, err
	}
	return m, nil
}

func (r *ConversationRepository) ListActiveMembers(convID uuid.UUID) ([]domain.Membership, error) {
	var members []domain.Membership
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := memberPrefix(convID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var m domain.Membership
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				return err
			}
			if m.Active {
				members = append(members, m)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

// UpsertMembership writes the membership row for (conversation, identity).
// The key is the pair itself, so the set invariant holds by construction
// and re-adding a soft-removed member just flips Active back on.
func (r *ConversationRepository) UpsertMembership(m domain.Membership) error {
	return update(r.db, func(txn *badger.Txn) error {
		return putMembershipTxn(txn, m)
	})
}

func (r *ConversationRepository) Rename(convID uuid.UUID, name string) error {
	return update(r.db, func(txn *badger.Txn) error {
		conv, err := getConversationTxn(txn, convID)
		if err != nil {
			return err
		}
		conv.Name = name
		return putConversationTxn(txn, conv)
	})
}

func getConversationTxn(txn *badger.Txn, id uuid.UUID) (domain.Conversation, error) {
	item, err := txn.Get(conversationKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Conversation{}, errors.ErrConversationNotFound
	}
	if err != nil {
		return domain.Conversation{}, err
	}
	var conv domain.Conversation
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &conv)
	}); err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

func putConversationTxn(txn *badger.Txn, conv domain.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	return txn.Set(conversationKey(conv.ID), data)
}

func putMembershipTxn(txn *badger.Txn, m domain.Membership) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal membership: %w", err)
	}
	return txn.Set(memberKey(m.ConversationID, m.IdentityID), data)
}
