// Package repositories persists the messenger state in BadgerDB.
//
// Key design follows the chronological-prefix convention:
//
//	identity:{id}                        identity record
//	conv:{id}                            conversation record
//	member:{convID}:{identityID}         membership row (set semantics)
//	direct:{loID}:{hiID}                 direct-pair uniqueness pointer
//	selfnotes:{ownerID}                  self-notes uniqueness pointer
//	msg:{convID}:{unixnano:%019d}:{id}   sealed message, sorts by time
//	msgref:{id}                          message id -> primary key
//	read:{messageID}:{recipientID}       delivery record (natural unique pair)
//	att:{messageID}:{attachmentID}       attachment row
//	attref:{attachmentID}                attachment id -> primary key
//
// The 19-digit zero padding keeps lexicographic order equal to
// chronological order; the trailing UUID disambiguates same-nanosecond
// messages.
package repositories

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

func identityKey(id uuid.UUID) []byte { return []byte("identity:" + id.String()) }

func conversationKey(id uuid.UUID) []byte { return []byte("conv:" + id.String()) }

func memberKey(convID, identityID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("member:%s:%s", convID, identityID))
}

func memberPrefix(convID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("member:%s:", convID))
}

// directKey orders the pair so both participants derive the same key. That
// single key is the serialization point making concurrent get-or-create
// calls converge on one conversation.
func directKey(a, b uuid.UUID) []byte {
	lo, hi := a.String(), b.String()
	if hi < lo {
		lo, hi = hi, lo
	}
	return []byte(fmt.Sprintf("direct:%s:%s", lo, hi))
}

func selfNotesKey(owner uuid.UUID) []byte { return []byte("selfnotes:" + owner.String()) }

func messageKey(convID uuid.UUID, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", convID, at.UnixNano(), id))
}

func messagePrefix(convID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:", convID))
}

func messageRefKey(id uuid.UUID) []byte { return []byte("msgref:" + id.String()) }

func deliveryKey(messageID, recipientID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("read:%s:%s", messageID, recipientID))
}

func deliveryPrefix(messageID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("read:%s:", messageID))
}

func attachmentKey(messageID, attachmentID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("att:%s:%s", messageID, attachmentID))
}

func attachmentPrefix(messageID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("att:%s:", messageID))
}

func attachmentRefKey(attachmentID uuid.UUID) []byte {
	return []byte("attref:" + attachmentID.String())
}

// update retries a read-modify-write transaction when Badger's serializable
// snapshot isolation detects a conflict. Concurrent upserts on the same key
// (two read() calls racing to mark Read, both sides of a direct chat
// creating it at once) resolve here instead of producing duplicates.
func update(db *badger.DB, fn func(txn *badger.Txn) error) error {
	for {
		err := db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
}
