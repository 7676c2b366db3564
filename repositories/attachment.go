//go:generate go run go.uber.org/mock/mockgen -source=attachment.go -destination=../mocks/mock_attachment_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"messenger/domain"
	"messenger/errors"
)

type IAttachmentRepository interface {
	AddAttachment(att domain.Attachment) error
	GetAttachment(id uuid.UUID) (domain.Attachment, error)
	ListByMessage(messageID uuid.UUID) ([]domain.Attachment, error)
	DeleteAttachment(id uuid.UUID) error
}

type AttachmentRepository struct {
	db *badger.DB
}

func NewAttachmentRepository(db *badger.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

func (r *AttachmentRepository) AddAttachment(att domain.Attachment) error {
	data, err := json.Marshal(att)
	if err != nil {
		return fmt.Errorf("marshal attachment: %w", err)
	}
	primary := attachmentKey(att.MessageID, att.ID)
	return update(r.db, func(txn *badger.Txn) error {
		if err := txn.Set(primary, data); err != nil {
			return err
		}
		return txn.Set(attachmentRefKey(att.ID), primary)
	})
}

func (r *AttachmentRepository) GetAttachment(id uuid.UUID) (domain.Attachment, error) {
	var att domain.Attachment
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(attachmentRefKey(id))
		if err != nil {
			return err
		}
		var primary []byte
		if err := item.Value(func(val []byte) error {
			primary = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return err
		}
		item, err = txn.Get(primary)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &att)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Attachment{}, errors.ErrAttachmentNotFound
	}
	if err != nil {
		return domain.Attachment{}, err
	}
	return att, nil
}

func (r *AttachmentRepository) ListByMessage(messageID uuid.UUID) ([]domain.Attachment, error) {
	var atts []domain.Attachment
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := attachmentPrefix(messageID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var att domain.Attachment
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &att)
			}); err != nil {
				return err
			}
			atts = append(atts, att)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return atts, nil
}

func (r *AttachmentRepository) DeleteAttachment(id uuid.UUID) error {
	err := update(r.db, func(txn *badger.Txn) error {
		item, err := txn.Get(attachmentRefKey(id))
		if err != nil {
			return err
		}
		var primary []byte
		if err := item.Value(func(val []byte) error {
			primary = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return err
		}
		if err := txn.Delete(primary); err != nil {
			return err
		}
		return txn.Delete(attachmentRefKey(id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return errors.ErrAttachmentNotFound
	}
	return err
}

// deleteAttachmentsTxn is used by the message cascade delete. It clears the
// attachment rows and their ref pointers inside the caller's transaction.
func deleteAttachmentsTxn(txn *badger.Txn, messageID uuid.UUID) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	it := txn.NewIterator(opts)
	defer it.Close()

	var primaries [][]byte
	var refs [][]byte
	prefix := attachmentPrefix(messageID)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var att domain.Attachment
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &att)
		}); err != nil {
			return err
		}
		primaries = append(primaries, it.Item().KeyCopy(nil))
		refs = append(refs, attachmentRefKey(att.ID))
	}
	for i := range primaries {
		if err := txn.Delete(primaries[i]); err != nil {
			return err
		}
		if err := txn.Delete(refs[i]); err != nil {
			return err
		}
	}
	return nil
}
