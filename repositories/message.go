//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"messenger/domain"
	"messenger/errors"
)

type IMessageRepository interface {
	StoreMessage(msg domain.SealedMessage) error
	GetMessage(id uuid.UUID) (domain.SealedMessage, error)
	ListMessages(convID uuid.UUID) ([]domain.SealedMessage, error)
	DeleteMessage(id uuid.UUID) error
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log}
}

// StoreMessage persists a sealed message in a single transaction: the
// chronologically-sorted primary row and the msgref pointer either both
// land or neither does. Rows are insert-only; nothing ever updates them.
func (r *MessageRepository) StoreMessage(msg domain.SealedMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	primary := messageKey(msg.ConversationID, msg.CreatedAt, msg.ID)
	return update(r.db, func(txn *badger.Txn) error {
		if err := txn.Set(primary, data); err != nil {
			return err
		}
		return txn.Set(messageRefKey(msg.ID), primary)
	})
}

func (r *MessageRepository) GetMessage(id uuid.UUID) (domain.SealedMessage, error) {
	var msg domain.SealedMessage
	err := r.db.View(func(txn *badger.Txn) error {
		primary, err := resolveMessageKey(txn, id)
		if err != nil {
			return err
		}
		item, err := txn.Get(primary)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &msg)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.SealedMessage{}, errors.ErrMessageNotFound
	}
	if err != nil {
		return domain.SealedMessage{}, err
	}
	return msg, nil
}

// ListMessages returns every message of a conversation in chronological
// ascending order. The padded-timestamp key makes the prefix scan come out
// already sorted.
func (r *MessageRepository) ListMessages(convID uuid.UUID) ([]domain.SealedMessage, error) {
	var msgs []domain.SealedMessage
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := messagePrefix(convID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var msg domain.SealedMessage
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				return err
			}
			msgs = append(msgs, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// DeleteMessage removes the message row, its msgref pointer, all delivery
// records and all attachment rows in one transaction, so a half-deleted
// message can never be observed.
func (r *MessageRepository) DeleteMessage(id uuid.UUID) error {
	err := update(r.db, func(txn *badger.Txn) error {
		primary, err := resolveMessageKey(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(primary); err != nil {
			return err
		}
		if err := txn.Delete(messageRefKey(id)); err != nil {
			return err
		}
		if err := deletePrefixTxn(txn, deliveryPrefix(id)); err != nil {
			return err
		}
		return deleteAttachmentsTxn(txn, id)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return errors.ErrMessageNotFound
	}
	return err
}

func resolveMessageKey(txn *badger.Txn, id uuid.UUID) ([]byte, error) {
	item, err := txn.Get(messageRefKey(id))
	if err != nil {
		return nil, err
	}
	var primary []byte
	if err := item.Value(func(val []byte) error {
		primary = append([]byte(nil), val...)
		return nil
	}); err != nil {
		return nil, err
	}
	return primary, nil
}

func deletePrefixTxn(txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}
