package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store with the same compare-and-swap semantics
// as the DynamoDB implementation. Used in development and tests.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]*Session
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*Session)}
}

func memKey(orgID, sessionID string) string {
	return orgID + "|" + sessionID
}

// Get loads a session document.
func (m *MemoryStore) Get(ctx context.Context, orgID, sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[memKey(orgID, sessionID)]
	if !ok {
		return nil, ErrNotFound
	}
	return doc.Clone(), nil
}

// Create inserts a new document.
func (m *MemoryStore) Create(ctx context.Context, doc *Session) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := memKey(doc.OrgID, doc.SessionID)
	if _, exists := m.docs[key]; exists {
		return ErrVersionConflict
	}
	doc.Version = 1
	doc.LastUpdated = time.Now().UTC()
	m.docs[key] = doc.Clone()
	return nil
}

// CompareAndSet replaces the stored document when versions match.
func (m *MemoryStore) CompareAndSet(ctx context.Context, doc *Session, expectedVersion int64) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := memKey(doc.OrgID, doc.SessionID)
	stored, ok := m.docs[key]
	if !ok || stored.Version != expectedVersion {
		return ErrVersionConflict
	}
	doc.Version = expectedVersion + 1
	doc.LastUpdated = time.Now().UTC()
	m.docs[key] = doc.Clone()
	return nil
}
