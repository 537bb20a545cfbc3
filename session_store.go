package mqttd

import (
	"errors"
	"sync"
	"time"
)

// ErrSessionNotFound is returned by SessionStore.Get for unknown identities.
var ErrSessionNotFound = errors.New("mqttd: session not found")

// SessionRecord is the persistable snapshot of a session: enough to resume
// subscriptions after a reconnect or a broker restart. In-flight packet
// identifiers are connection-scoped and deliberately not persisted.
type SessionRecord struct {
	Identity       string
	ExpiryInterval uint32
	Subscriptions  []Subscription
	DisconnectedAt time.Time
}

// Expired reports whether the record's expiry interval has elapsed since
// disconnect.
func (r SessionRecord) Expired(now time.Time) bool {
	if r.ExpiryInterval == SessionExpiryNever || r.DisconnectedAt.IsZero() {
		return false
	}
	return now.Sub(r.DisconnectedAt) >= time.Duration(r.ExpiryInterval)*time.Second
}

// SessionStore persists session records. The SessionManager writes through
// on every subscription change and disconnect, and reads on an admit miss.
type SessionStore interface {
	// Put creates or replaces a record.
	Put(record SessionRecord) error

	// Get retrieves a record by identity, or ErrSessionNotFound.
	Get(identity string) (SessionRecord, error)

	// Delete removes a record. Deleting an absent record is not an error.
	Delete(identity string) error

	// List returns all records.
	List() ([]SessionRecord, error)

	// Close releases any underlying resources.
	Close() error
}

// MemorySessionStore is the default in-process SessionStore.
type MemorySessionStore struct {
	mu      sync.RWMutex
	records map[string]SessionRecord
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		records: make(map[string]SessionRecord),
	}
}

// Put creates or replaces a record.
func (s *MemorySessionStore) Put(record SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Identity] = record
	return nil
}

// Get retrieves a record by identity.
func (s *MemorySessionStore) Get(identity string) (SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[identity]
	if !ok {
		return SessionRecord{}, ErrSessionNotFound
	}
	return record, nil
}

// Delete removes a record.
func (s *MemorySessionStore) Delete(identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, identity)
	return nil
}

// List returns all records.
func (s *MemorySessionStore) List() ([]SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]SessionRecord, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}
	return records, nil
}

// Close is a no-op for the memory store.
func (s *MemorySessionStore) Close() error {
	return nil
}
