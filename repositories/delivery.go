//go:generate go run go.uber.org/mock/mockgen -source=delivery.go -destination=../mocks/mock_delivery_repository.go -package=mocks
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

type IDeliveryRepository interface {
	MarkDelivered(messageID, recipientID uuid.UUID, at time.Time) error
	MarkRead(messageID, recipientID uuid.UUID, at time.Time) error
	GetRecord(messageID, recipientID uuid.UUID) (domain.DeliveryRecord, bool, error)
	IsRead(messageID, recipientID uuid.UUID) (bool, error)
}

// DeliveryRepository upserts per-(message, recipient) delivery state. The
// badger key is the pair itself, so there can never be two rows, and the
// read-modify-write runs under a serializable transaction with conflict
// retry, so concurrent marks neither duplicate nor lose updates.
type DeliveryRepository struct {
	db *badger.DB
}

func NewDeliveryRepository(db *badger.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

// MarkDelivered stamps deliveredAt if it is not set yet. Idempotent:
// calling it again leaves the first timestamp untouched.
func (r *DeliveryRepository) MarkDelivered(messageID, recipientID uuid.UUID, at time.Time) error {
	return r.upsert(messageID, recipientID, func(rec *domain.DeliveryRecord) {
		if rec.DeliveredAt == nil {
			t := at
			rec.DeliveredAt = &t
		}
	})
}

// MarkRead stamps readAt if not set, and deliveredAt along with it when no
// delivery was recorded before — a read implies the message arrived.
// Idempotent the same way as MarkDelivered.
func (r *DeliveryRepository) MarkRead(messageID, recipientID uuid.UUID, at time.Time) error {
	return r.upsert(messageID, recipientID, func(rec *domain.DeliveryRecord) {
		if rec.ReadAt == nil {
			t := at
			rec.ReadAt = &t
		}
		if rec.DeliveredAt == nil {
			t := at
			rec.DeliveredAt = &t
		}
	})
}

func (r *DeliveryRepository) upsert(messageID, recipientID uuid.UUID, mutate func(*domain.DeliveryRecord)) error {
	key := deliveryKey(messageID, recipientID)
	return update(r.db, func(txn *badger.Txn) error {
		rec := domain.DeliveryRecord{MessageID: messageID, RecipientID: recipientID}
		item, err := txn.Get(key)
		switch err {
		case nil:
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
		case badger.ErrKeyNotFound:
			// first event creates the record lazily
		default:
			return err
		}

		mutate(&rec)

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal delivery record: %w", err)
		}
		return txn.Set(key, data)
	})
}

func (r *DeliveryRepository) GetRecord(messageID, recipientID uuid.UUID) (domain.DeliveryRecord, bool, error) {
	var rec domain.DeliveryRecord
	found := false
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(deliveryKey(messageID, recipientID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return domain.DeliveryRecord{}, false, err
	}
	return rec, found, nil
}

func (r *DeliveryRepository) IsRead(messageID, recipientID uuid.UUID) (bool, error) {
	rec, found, err := r.GetRecord(messageID, recipientID)
	if err != nil {
		return false, err
	}
	return found && rec.IsRead(), nil
}
