package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryRecord tracks per-recipient delivery and read state. At most one
// record exists per (message, recipient) pair; both timestamps are monotonic
// flags set at most once. Records are created lazily by the first delivery
// or read event, never by message creation.
type DeliveryRecord struct {
	MessageID   uuid.UUID
	RecipientID uuid.UUID
	DeliveredAt *time.Time
	ReadAt      *time.Time
}

func (d DeliveryRecord) IsDelivered() bool { return d.DeliveredAt != nil }
func (d DeliveryRecord) IsRead() bool      { return d.ReadAt != nil }
