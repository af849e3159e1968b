package mailvault

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is() checks
var (
	// ErrClientClosed is returned when operations are attempted on a closed client.
	ErrClientClosed = errors.New("client has been closed")

	// ErrNoPublicKeys is returned when a recipient's key bundle carries
	// neither an RSA key nor a PQ key pair.
	ErrNoPublicKeys = errors.New("recipient has no usable public keys")

	// ErrQueueClosed is returned when a write-back is submitted after the
	// session key update queue has been stopped.
	ErrQueueClosed = errors.New("session key update queue is closed")
)

// ProgrammingError reports a model or invariant violation, such as a null
// value for a required encrypted field. It is never recoverable and must not
// be retried: the type model and the data disagree.
type ProgrammingError struct {
	Message string
}

func (e *ProgrammingError) Error() string {
	return "programming error: " + e.Message
}

// NewProgrammingError creates a ProgrammingError with a formatted message.
func NewProgrammingError(format string, args ...any) *ProgrammingError {
	return &ProgrammingError{Message: fmt.Sprintf(format, args...)}
}

// SessionKeyNotFoundError is returned when no key-distribution path yields a
// session key for an entity. It is distinct from a nil session key, which
// means the entity is legitimately unencrypted.
type SessionKeyNotFoundError struct {
	Message string
}

func (e *SessionKeyNotFoundError) Error() string {
	return "session key not found: " + e.Message
}

// NewSessionKeyNotFoundError creates a SessionKeyNotFoundError with a
// formatted message.
func NewSessionKeyNotFoundError(format string, args ...any) *SessionKeyNotFoundError {
	return &SessionKeyNotFoundError{Message: fmt.Sprintf(format, args...)}
}

// OutOfSyncError is returned when the local index watermark is older than the
// server's event retention window. The local index cannot catch up and must
// be discarded and rebuilt by the caller. It is fatal to the index session
// only, never to the rest of the client.
type OutOfSyncError struct {
	Message string
}

func (e *OutOfSyncError) Error() string {
	return "out of sync: " + e.Message
}

// MembershipRemovedError is returned when a group membership required for
// indexing was removed while the client was offline. It disables the
// dependent indexing subsystem but is non-fatal to the rest of the index.
type MembershipRemovedError struct {
	GroupID string
}

func (e *MembershipRemovedError) Error() string {
	return fmt.Sprintf("membership removed for group %s", e.GroupID)
}

// NotAuthorizedError is returned by collaborator services when the user has
// no access to a resource, e.g. a group's event batch list. The indexer
// swallows it at group granularity.
type NotAuthorizedError struct {
	Message string
}

func (e *NotAuthorizedError) Error() string {
	return "not authorized: " + e.Message
}

// NotFoundError is returned by collaborator services when an entity or
// public key does not exist.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return "not found: " + e.Message
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsNotAuthorized reports whether err is a NotAuthorizedError.
func IsNotAuthorized(err error) bool {
	var na *NotAuthorizedError
	return errors.As(err, &na)
}
