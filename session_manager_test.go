package mqttd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessionManager() (*SessionManager, *SubscriptionManager, *MemorySessionStore) {
	subs := NewSubscriptionManager()
	store := NewMemorySessionStore()
	return NewSessionManager(subs, store, nil), subs, store
}

func TestAdmitNewSession(t *testing.T) {
	m, _, store := newTestSessionManager()
	conn := &ClientConn{}

	result := m.Admit(AdmitRequest{
		Identity:       "c1",
		CleanStart:     true,
		ExpiryInterval: 300,
		Conn:           conn,
	})

	require.NotNil(t, result.Session)
	assert.False(t, result.SessionPresent)
	assert.Nil(t, result.Evicted)
	assert.Equal(t, uint64(1), result.Generation)
	assert.Equal(t, "c1", result.Session.Identity())
	assert.Equal(t, uint32(300), result.Session.ExpiryInterval())
	assert.Same(t, conn, result.Session.Conn())
	assert.Equal(t, 1, m.Count())

	record, err := store.Get("c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", record.Identity)
}

func TestAdmitResumesDetachedSession(t *testing.T) {
	m, _, _ := newTestSessionManager()

	first := m.Admit(AdmitRequest{Identity: "c1", ExpiryInterval: 300, Conn: &ClientConn{}})
	m.Detach(first.Session, first.Generation)
	require.Nil(t, first.Session.Conn())

	conn2 := &ClientConn{}
	second := m.Admit(AdmitRequest{Identity: "c1", ExpiryInterval: 300, Conn: conn2})

	assert.True(t, second.SessionPresent)
	assert.Nil(t, second.Evicted)
	assert.Same(t, first.Session, second.Session)
	assert.Equal(t, uint64(2), second.Generation)
	assert.Same(t, conn2, second.Session.Conn())
}

func TestAdmitCleanStartDiscardsState(t *testing.T) {
	m, subs, _ := newTestSessionManager()

	first := m.Admit(AdmitRequest{Identity: "c1", ExpiryInterval: 300, Conn: &ClientConn{}})
	require.NoError(t, subs.Subscribe("c1", Subscription{TopicFilter: "a/#", QoS: 1}))
	m.SubscriptionChanged(first.Session)
	m.Detach(first.Session, first.Generation)

	second := m.Admit(AdmitRequest{Identity: "c1", CleanStart: true, ExpiryInterval: 300, Conn: &ClientConn{}})

	assert.False(t, second.SessionPresent)
	assert.NotSame(t, first.Session, second.Session)
	assert.Empty(t, subs.Subscriptions("c1"))
}

func TestAdmitTakeover(t *testing.T) {
	m, _, _ := newTestSessionManager()
	conn1 := &ClientConn{}
	conn2 := &ClientConn{}

	first := m.Admit(AdmitRequest{Identity: "c1", ExpiryInterval: 300, Conn: conn1})
	second := m.Admit(AdmitRequest{Identity: "c1", ExpiryInterval: 300, Conn: conn2})

	assert.Same(t, conn1, second.Evicted)
	assert.True(t, second.SessionPresent)
	assert.Same(t, first.Session, second.Session)
	assert.Equal(t, uint64(2), second.Generation)
	assert.Same(t, conn2, second.Session.Conn())
	assert.Equal(t, 1, m.Count())

	// The superseded connection's detach presents a stale generation and
	// must not disturb the new binding.
	m.Detach(second.Session, first.Generation)
	assert.Same(t, conn2, second.Session.Conn())

	m.Detach(second.Session, second.Generation)
	assert.Nil(t, second.Session.Conn())
}

func TestAdmitTakeoverWithCleanStart(t *testing.T) {
	m, _, _ := newTestSessionManager()
	conn1 := &ClientConn{}

	m.Admit(AdmitRequest{Identity: "c1", ExpiryInterval: 300, Conn: conn1})
	second := m.Admit(AdmitRequest{Identity: "c1", CleanStart: true, ExpiryInterval: 300, Conn: &ClientConn{}})

	// Clean start replaces the session but the old connection still loses it.
	assert.Same(t, conn1, second.Evicted)
	assert.False(t, second.SessionPresent)
}

func TestDetachZeroExpiryRemovesSession(t *testing.T) {
	m, _, store := newTestSessionManager()

	result := m.Admit(AdmitRequest{Identity: "c1", ExpiryInterval: 0, Conn: &ClientConn{}})
	m.Detach(result.Session, result.Generation)

	assert.Equal(t, 0, m.Count())
	_, err := store.Get("c1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDetachPersistsSession(t *testing.T) {
	m, _, store := newTestSessionManager()

	result := m.Admit(AdmitRequest{Identity: "c1", ExpiryInterval: 300, Conn: &ClientConn{}})
	m.Detach(result.Session, result.Generation)

	assert.Equal(t, 1, m.Count())
	record, err := store.Get("c1")
	require.NoError(t, err)
	assert.False(t, record.DisconnectedAt.IsZero())
}

func TestUpdateExpiry(t *testing.T) {
	m, _, store := newTestSessionManager()

	result := m.Admit(AdmitRequest{Identity: "c1", ExpiryInterval: 300, Conn: &ClientConn{}})
	m.UpdateExpiry(result.Session, 5)

	assert.Equal(t, uint32(5), result.Session.ExpiryInterval())
	record, err := store.Get("c1")
	require.NoError(t, err)
	assert.Equal(t, uint32(5), record.ExpiryInterval)
}

func TestSweepExpired(t *testing.T) {
	m, _, store := newTestSessionManager()

	live := m.Admit(AdmitRequest{Identity: "live", ExpiryInterval: 60, Conn: &ClientConn{}})
	_ = live

	gone := m.Admit(AdmitRequest{Identity: "gone", ExpiryInterval: 60, Conn: &ClientConn{}})
	m.Detach(gone.Session, gone.Generation)

	forever := m.Admit(AdmitRequest{Identity: "forever", ExpiryInterval: SessionExpiryNever, Conn: &ClientConn{}})
	m.Detach(forever.Session, forever.Generation)

	removed := m.SweepExpired(time.Now().Add(2 * time.Minute))

	assert.Equal(t, 1, removed)
	assert.Nil(t, m.Get("gone"))
	assert.NotNil(t, m.Get("live"))
	assert.NotNil(t, m.Get("forever"))

	_, err := store.Get("gone")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSweepExpiredOrphanedRecords(t *testing.T) {
	m, _, store := newTestSessionManager()

	// A record without a live session is left over from a restart.
	require.NoError(t, store.Put(SessionRecord{
		Identity:       "stale",
		ExpiryInterval: 10,
		DisconnectedAt: time.Now().Add(-time.Hour),
	}))

	removed := m.SweepExpired(time.Now())
	assert.Equal(t, 1, removed)

	_, err := store.Get("stale")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAdmitRestoresFromStore(t *testing.T) {
	m, subs, store := newTestSessionManager()

	require.NoError(t, store.Put(SessionRecord{
		Identity:       "c1",
		ExpiryInterval: SessionExpiryNever,
		Subscriptions:  []Subscription{{TopicFilter: "a/#", QoS: 1}},
		DisconnectedAt: time.Now().Add(-time.Minute),
	}))

	result := m.Admit(AdmitRequest{Identity: "c1", ExpiryInterval: 300, Conn: &ClientConn{}})

	assert.True(t, result.SessionPresent)
	require.Len(t, subs.Subscriptions("c1"), 1)

	matches := subs.Match("a/b")
	require.Len(t, matches, 1)
	assert.Equal(t, "c1", matches[0].Identity)
}

func TestAdmitIgnoresExpiredStoreRecord(t *testing.T) {
	m, _, store := newTestSessionManager()

	require.NoError(t, store.Put(SessionRecord{
		Identity:       "c1",
		ExpiryInterval: 10,
		DisconnectedAt: time.Now().Add(-time.Hour),
	}))

	result := m.Admit(AdmitRequest{Identity: "c1", ExpiryInterval: 300, Conn: &ClientConn{}})
	assert.False(t, result.SessionPresent)
}

func TestDrop(t *testing.T) {
	m, subs, store := newTestSessionManager()
	conn := &ClientConn{}

	m.Admit(AdmitRequest{Identity: "c1", ExpiryInterval: SessionExpiryNever, Conn: conn})
	require.NoError(t, subs.Subscribe("c1", Subscription{TopicFilter: "a/#"}))

	evicted := m.Drop("c1")

	assert.Same(t, conn, evicted)
	assert.Equal(t, 0, m.Count())
	assert.Empty(t, subs.Subscriptions("c1"))

	_, err := store.Get("c1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.Nil(t, m.Drop("unknown"))
}
