//go:generate go run go.uber.org/mock/mockgen -source=identity.go -destination=../mocks/mock_identity_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"messenger/crypto"
	"messenger/domain"
	"messenger/errors"
)

type IIdentityRepository interface {
	CreateIdentity(record IdentityRecord) error
	GetIdentity(id uuid.UUID) (IdentityRecord, error)
}

// IdentityRecord is the stored form of an identity. The private key only
// ever appears sealed (see crypto.Keystore).
type IdentityRecord struct {
	ID               uuid.UUID
	Username         string
	PublicKeyPEM     string
	SealedPrivateKey crypto.SealedKey
	CreatedAt        time.Time
}

func (r IdentityRecord) Identity() domain.Identity {
	return domain.Identity{
		ID:           r.ID,
		Username:     r.Username,
		PublicKeyPEM: r.PublicKeyPEM,
		CreatedAt:    r.CreatedAt,
	}
}

type IdentityRepository struct {
	db *badger.DB
}

func NewIdentityRepository(db *badger.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

func (r *IdentityRepository) CreateIdentity(record IdentityRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}
	return update(r.db, func(txn *badger.Txn) error {
		return txn.Set(identityKey(record.ID), data)
	})
}

func (r *IdentityRepository) GetIdentity(id uuid.UUID) (IdentityRecord, error) {
	var record IdentityRecord
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(identityKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return IdentityRecord{}, errors.ErrIdentityNotFound
	}
	if err != nil {
		return IdentityRecord{}, err
	}
	return record, nil
}
