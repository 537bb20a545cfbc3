package mqttd

import (
	"sync"
	"time"
)

// SessionExpiryNever marks a session that is only removed by an explicit
// administrative Drop.
const SessionExpiryNever uint32 = 0xFFFFFFFF

// Session is the server-side state for one client identity: subscriptions,
// in-flight packet identifiers, topic aliases and the binding to the
// currently active connection. It survives individual connections when the
// expiry interval is nonzero.
type Session struct {
	mu sync.Mutex

	identity       string
	expiryInterval uint32
	createdAt      time.Time

	// generation increments on every connection binding. A superseded
	// connection holds a stale generation and its late detach or state
	// writes are ignored.
	generation uint64

	// conn is the active connection, nil while detached.
	conn *ClientConn

	// disconnectedAt is the detach time, zero while a connection is bound.
	disconnectedAt time.Time

	inflight *packetIDAllocator
	aliases  *TopicAliasTable
}

func newSession(identity string, expiryInterval uint32) *Session {
	return &Session{
		identity:       identity,
		expiryInterval: expiryInterval,
		createdAt:      time.Now(),
		inflight:       newPacketIDAllocator(),
		aliases:        NewTopicAliasTable(defaultTopicAliasMax, 0),
	}
}

// Identity returns the client identifier the session is keyed by.
func (s *Session) Identity() string {
	return s.identity
}

// ExpiryInterval returns the session expiry interval in seconds.
func (s *Session) ExpiryInterval() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiryInterval
}

// Generation returns the current connection generation.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Conn returns the bound connection, or nil while detached.
func (s *Session) Conn() *ClientConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Aliases returns the session's topic alias table. The table is replaced
// on every connection binding since aliases are connection-scoped.
func (s *Session) Aliases() *TopicAliasTable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aliases
}

// AllocatePacketID reserves an outbound packet identifier. The identifier
// is unavailable until ReleasePacketID, so it is never reused while the
// delivery is in flight.
func (s *Session) AllocatePacketID() (uint16, error) {
	return s.inflight.Allocate()
}

// ReleasePacketID returns an identifier after its acknowledgment arrived.
func (s *Session) ReleasePacketID(id uint16) bool {
	return s.inflight.Release(id)
}

// InFlight returns the number of unacknowledged outbound identifiers.
func (s *Session) InFlight() int {
	return s.inflight.InFlight()
}

// setExpiryInterval replaces the expiry interval. A v5.0 client may revise
// it in the DISCONNECT packet.
func (s *Session) setExpiryInterval(interval uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiryInterval = interval
}

// bind attaches a connection, superseding any previous one. Returns the
// evicted connection (nil if none) and the new generation.
func (s *Session) bind(conn *ClientConn, expiryInterval uint32, aliasInMax, aliasOutMax uint16) (*ClientConn, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := s.conn
	s.conn = conn
	s.generation++
	s.expiryInterval = expiryInterval
	s.disconnectedAt = time.Time{}
	s.aliases = NewTopicAliasTable(aliasInMax, aliasOutMax)

	return evicted, s.generation
}

// detach releases the connection binding if generation is still current.
// A stale generation means the session was taken over and the old
// connection's detach must not disturb the new binding.
func (s *Session) detach(generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != generation || s.conn == nil {
		return false
	}

	s.conn = nil
	s.disconnectedAt = time.Now()
	return true
}

// expired reports whether the session is detached and its expiry interval
// has elapsed.
func (s *Session) expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil || s.expiryInterval == SessionExpiryNever {
		return false
	}
	if s.disconnectedAt.IsZero() {
		return false
	}
	return now.Sub(s.disconnectedAt) >= time.Duration(s.expiryInterval)*time.Second
}

// snapshot captures the persistable session state.
func (s *Session) snapshot(subs []Subscription) SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SessionRecord{
		Identity:       s.identity,
		ExpiryInterval: s.expiryInterval,
		Subscriptions:  subs,
		DisconnectedAt: s.disconnectedAt,
	}
}
