//go:generate go run go.uber.org/mock/mockgen -source=identity_service.go -destination=../mocks/mock_identity_directory.go -package=mocks
package services

import (
	"crypto/rsa"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"messenger/crypto"
	"messenger/domain"
	"messenger/errors"
	"messenger/repositories"
)

// IdentityDirectory is the lookup contract the pipeline depends on: public
// keys are shareable, the private key is only handed out to the identity
// itself.
type IdentityDirectory interface {
	Identity(id uuid.UUID) (domain.Identity, error)
	PublicKey(id uuid.UUID) (*rsa.PublicKey, error)
	PrivateKey(id, requester uuid.UUID) (*rsa.PrivateKey, error)
}

type IdentityService struct {
	repo     repositories.IIdentityRepository
	keystore *crypto.Keystore
	keyBits  int
	log      *slog.Logger
}

func NewIdentityService(repo repositories.IIdentityRepository, keystore *crypto.Keystore, keyBits int, log *slog.Logger) *IdentityService {
	if keyBits == 0 {
		keyBits = crypto.DefaultKeyBits
	}
	return &IdentityService{repo: repo, keystore: keystore, keyBits: keyBits, log: log}
}

// CreateIdentity registers a new identity and generates its one key pair.
// The private key goes straight into the keystore sealed; it is never
// persisted or logged in the clear.
func (s *IdentityService) CreateIdentity(username string) (domain.Identity, error) {
	key, err := crypto.GenerateKeyPair(s.keyBits)
	if err != nil {
		return domain.Identity{}, err
	}

	publicPEM, err := crypto.EncodePublicKey(&key.PublicKey)
	if err != nil {
		return domain.Identity{}, err
	}
	sealed, err := s.keystore.SealPrivateKey(crypto.EncodePrivateKey(key))
	if err != nil {
		return domain.Identity{}, fmt.Errorf("seal private key: %w", err)
	}

	record := repositories.IdentityRecord{
		ID:               uuid.New(),
		Username:         username,
		PublicKeyPEM:     publicPEM,
		SealedPrivateKey: sealed,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.repo.CreateIdentity(record); err != nil {
		return domain.Identity{}, err
	}

	s.log.Info("identity created", "identity_id", record.ID, "username", username)
	return record.Identity(), nil
}

func (s *IdentityService) Identity(id uuid.UUID) (domain.Identity, error) {
	record, err := s.repo.GetIdentity(id)
	if err != nil {
		return domain.Identity{}, err
	}
	return record.Identity(), nil
}

func (s *IdentityService) PublicKey(id uuid.UUID) (*rsa.PublicKey, error) {
	record, err := s.repo.GetIdentity(id)
	if err != nil {
		return nil, err
	}
	return crypto.DecodePublicKey(record.PublicKeyPEM)
}

// PrivateKey unseals and returns the identity's private key, but only when
// the requester is the identity itself.
func (s *IdentityService) PrivateKey(id, requester uuid.UUID) (*rsa.PrivateKey, error) {
	if id != requester {
		return nil, errors.ErrAccessDenied
	}
	record, err := s.repo.GetIdentity(id)
	if err != nil {
		return nil, err
	}
	pemStr, err := s.keystore.OpenPrivateKey(record.SealedPrivateKey)
	if err != nil {
		return nil, err
	}
	return crypto.DecodePrivateKey(pemStr)
}
