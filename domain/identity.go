// Package domain contains core concepts of the messenger.
// This file defines Identity entities and related invariants.
// No storage, crypto, or transport logic should be added here.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Identity is a principal able to join conversations and exchange messages.
// Every identity holds exactly one key pair, generated once at creation and
// never rotated. The private key never leaves the keystore unsealed except
// for the identity itself.
type Identity struct {
	ID           uuid.UUID
	Username     string
	PublicKeyPEM string
	CreatedAt    time.Time
}
