package session

import "context"

// Store is the single writer of persisted session documents.
//
// CompareAndSet must be atomic: it succeeds only when the stored version
// equals expectedVersion, and on success the stored document carries
// expectedVersion+1. Losers receive ErrVersionConflict.
type Store interface {
	// Get loads a session document, or ErrNotFound.
	Get(ctx context.Context, orgID, sessionID string) (*Session, error)

	// Create inserts a new document. If a document already exists for the
	// key, ErrVersionConflict is returned (a concurrent first turn won).
	Create(ctx context.Context, s *Session) error

	// CompareAndSet replaces the stored document if and only if its version
	// equals expectedVersion. On success s.Version is set to
	// expectedVersion+1.
	CompareAndSet(ctx context.Context, s *Session, expectedVersion int64) error
}
