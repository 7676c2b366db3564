package errors

import (
	stderrors "errors"
	"fmt"
)

// Is re-exports the standard matcher so callers of this package do not
// need a second errors import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

var (
	// ErrAccessDenied is returned whenever the principal is not an active
	// member of the conversation in question. It is deliberately returned
	// before any NotFound so non-members cannot probe for existence.
	ErrAccessDenied = fmt.Errorf("access denied")

	ErrConversationNotFound = fmt.Errorf("conversation not found")
	ErrMessageNotFound      = fmt.Errorf("message not found")
	ErrIdentityNotFound     = fmt.Errorf("identity not found")
	ErrAttachmentNotFound   = fmt.Errorf("attachment not found")

	// ErrDecryptionFailed covers key-unwrap failures, tag verification
	// failures and malformed ciphertext alike. Callers must not be able to
	// tell which, so no variant errors exist.
	ErrDecryptionFailed = fmt.Errorf("decryption failed")

	ErrValidationFailed = fmt.Errorf("validation failed")

	// ErrDirectImmutable guards direct conversations against renames and
	// membership edits.
	ErrDirectImmutable = fmt.Errorf("direct conversation cannot be modified")

	ErrNotCreator      = fmt.Errorf("only the conversation creator may do this")
	ErrNotAuthor       = fmt.Errorf("only the message author may do this")
	ErrSelfNotesLeave  = fmt.Errorf("self-notes conversation cannot be left")
	ErrContentTooLarge = fmt.Errorf("content exceeds the configured limit")
)
