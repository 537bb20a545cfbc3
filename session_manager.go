package mqttd

import (
	"sync"
	"time"
)

const defaultTopicAliasMax = 16

// AdmitRequest carries the session-relevant CONNECT parameters.
type AdmitRequest struct {
	// Identity is the client identifier, never empty.
	Identity string

	// CleanStart discards any prior session state.
	CleanStart bool

	// ExpiryInterval is the requested session expiry in seconds.
	ExpiryInterval uint32

	// InboundAliasMax is the topic alias maximum the server announced.
	InboundAliasMax uint16

	// OutboundAliasMax is the topic alias maximum the client announced.
	OutboundAliasMax uint16

	// Conn is the connection to bind.
	Conn *ClientConn
}

// AdmitResult is the outcome of binding a connection to a session.
type AdmitResult struct {
	// Session is the bound session, created or resumed.
	Session *Session

	// Generation is the binding generation the connection must present on
	// detach.
	Generation uint64

	// SessionPresent is the CONNACK session-present flag: true only when
	// an unexpired session was resumed without clean start.
	SessionPresent bool

	// Evicted is the connection that previously held the identity, or
	// nil. The caller must notify and close it.
	Evicted *ClientConn
}

// SessionManager owns the identity → session table. It enforces the
// one-active-connection-per-identity invariant: concurrent Admit calls for
// one identity serialize inside the manager's critical section, so exactly
// one connection wins the binding and the loser is returned for eviction.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	subs   *SubscriptionManager
	store  SessionStore
	logger Logger
}

// NewSessionManager creates a session manager writing through to store.
func NewSessionManager(subs *SubscriptionManager, store SessionStore, logger Logger) *SessionManager {
	if store == nil {
		store = NewMemorySessionStore()
	}
	if logger == nil {
		logger = NewNoOpLogger()
	}
	return &SessionManager{
		sessions: make(map[string]*Session),
		subs:     subs,
		store:    store,
		logger:   logger,
	}
}

// Admit creates, resumes or replaces the session for an identity and binds
// the connection to it. The takeover path — find the live binding,
// supersede it, bind the winner — is one critical section per identity.
func (m *SessionManager) Admit(req AdmitRequest) AdmitResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	identity := req.Identity
	session := m.sessions[identity]

	if session == nil {
		// Detached sessions may only exist in the store after a restart.
		if record, err := m.store.Get(identity); err == nil && !record.Expired(time.Now()) {
			session = m.restoreLocked(record)
		}
	} else if session.expired(time.Now()) {
		m.removeLocked(session)
		session = nil
	}

	sessionPresent := false
	var evicted *ClientConn

	switch {
	case session == nil:
		session = newSession(identity, req.ExpiryInterval)
		m.sessions[identity] = session

	case req.CleanStart:
		// Discard prior state wholesale; the old connection, if any, is
		// still evicted from the fresh binding below.
		evicted = session.Conn()
		m.removeLocked(session)
		session = newSession(identity, req.ExpiryInterval)
		m.sessions[identity] = session

	default:
		sessionPresent = true
	}

	bindEvicted, generation := session.bind(req.Conn, req.ExpiryInterval, req.InboundAliasMax, req.OutboundAliasMax)
	if bindEvicted != nil {
		evicted = bindEvicted
	}

	if evicted != nil {
		m.logger.Info("session taken over", LogFields{
			LogFieldClientID: identity,
		})
	}

	m.persistLocked(session)

	return AdmitResult{
		Session:        session,
		Generation:     generation,
		SessionPresent: sessionPresent,
		Evicted:        evicted,
	}
}

// Detach releases a connection's binding. A stale generation (the session
// was taken over after this connection was superseded) is ignored. The
// session itself survives if its expiry interval is nonzero; otherwise it
// is removed immediately.
func (m *SessionManager) Detach(session *Session, generation uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !session.detach(generation) {
		return
	}

	if session.ExpiryInterval() == 0 {
		m.removeLocked(session)
		return
	}

	m.persistLocked(session)
}

// UpdateExpiry replaces a session's expiry interval and persists it. Used
// when a v5.0 DISCONNECT revises the interval from CONNECT.
func (m *SessionManager) UpdateExpiry(session *Session, interval uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session.setExpiryInterval(interval)
	m.persistLocked(session)
}

// Get returns the live session for an identity, or nil.
func (m *SessionManager) Get(identity string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[identity]
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Drop administratively removes a session regardless of expiry, evicting
// its connection if one is bound. Returns the evicted connection, or nil.
func (m *SessionManager) Drop(identity string) *ClientConn {
	m.mu.Lock()
	defer m.mu.Unlock()

	session := m.sessions[identity]
	if session == nil {
		_ = m.store.Delete(identity)
		return nil
	}

	evicted := session.Conn()
	m.removeLocked(session)
	return evicted
}

// SubscriptionChanged persists the session after its subscriptions moved.
func (m *SessionManager) SubscriptionChanged(session *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persistLocked(session)
}

// SweepExpired removes detached sessions whose expiry interval elapsed.
// Returns the number removed.
func (m *SessionManager) SweepExpired(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, session := range m.sessions {
		if session.expired(now) {
			m.removeLocked(session)
			removed++
		}
	}

	// Records without a live session are left over from a restart.
	if records, err := m.store.List(); err == nil {
		for _, record := range records {
			if m.sessions[record.Identity] == nil && record.Expired(now) {
				_ = m.store.Delete(record.Identity)
				removed++
			}
		}
	}

	return removed
}

// restoreLocked rebuilds a live session from a persisted record, putting
// its subscriptions back into the topic index.
func (m *SessionManager) restoreLocked(record SessionRecord) *Session {
	session := newSession(record.Identity, record.ExpiryInterval)
	session.disconnectedAt = record.DisconnectedAt

	for _, sub := range record.Subscriptions {
		if err := m.subs.Subscribe(record.Identity, sub); err != nil {
			m.logger.Warn("dropping unrestorable subscription", LogFields{
				LogFieldClientID: record.Identity,
				LogFieldTopic:    sub.TopicFilter,
				LogFieldError:    err,
			})
		}
	}

	m.sessions[record.Identity] = session
	return session
}

func (m *SessionManager) removeLocked(session *Session) {
	identity := session.Identity()
	m.subs.UnsubscribeAll(identity)
	delete(m.sessions, identity)
	if err := m.store.Delete(identity); err != nil {
		m.logger.Warn("session store delete failed", LogFields{
			LogFieldClientID: identity,
			LogFieldError:    err,
		})
	}
}

func (m *SessionManager) persistLocked(session *Session) {
	record := session.snapshot(m.subs.Subscriptions(session.Identity()))
	if err := m.store.Put(record); err != nil {
		m.logger.Warn("session store put failed", LogFields{
			LogFieldClientID: session.Identity(),
			LogFieldError:    err,
		})
	}
}
