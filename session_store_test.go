package mqttd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSessionStore(t *testing.T, store SessionStore) {
	t.Helper()

	record := SessionRecord{
		Identity:       "c1",
		ExpiryInterval: 300,
		Subscriptions: []Subscription{
			{TopicFilter: "a/#", QoS: 1, NoLocal: true, ID: 7},
		},
		DisconnectedAt: time.Now().Truncate(time.Millisecond),
	}

	t.Run("put and get", func(t *testing.T) {
		require.NoError(t, store.Put(record))

		got, err := store.Get("c1")
		require.NoError(t, err)
		assert.Equal(t, record.Identity, got.Identity)
		assert.Equal(t, record.ExpiryInterval, got.ExpiryInterval)
		require.Len(t, got.Subscriptions, 1)
		assert.Equal(t, record.Subscriptions[0], got.Subscriptions[0])
		assert.WithinDuration(t, record.DisconnectedAt, got.DisconnectedAt, time.Millisecond)
	})

	t.Run("put replaces", func(t *testing.T) {
		updated := record
		updated.ExpiryInterval = 5
		require.NoError(t, store.Put(updated))

		got, err := store.Get("c1")
		require.NoError(t, err)
		assert.Equal(t, uint32(5), got.ExpiryInterval)
	})

	t.Run("get unknown", func(t *testing.T) {
		_, err := store.Get("nobody")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("list", func(t *testing.T) {
		require.NoError(t, store.Put(SessionRecord{Identity: "c2"}))

		records, err := store.List()
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete("c1"))
		_, err := store.Get("c1")
		assert.ErrorIs(t, err, ErrSessionNotFound)

		// Deleting an absent record is not an error.
		require.NoError(t, store.Delete("c1"))
	})
}

func TestMemorySessionStore(t *testing.T) {
	store := NewMemorySessionStore()
	defer store.Close()

	testSessionStore(t, store)
}

func TestBadgerSessionStore(t *testing.T) {
	store, err := NewBadgerSessionStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	testSessionStore(t, store)
}

func TestBadgerSessionStoreReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewBadgerSessionStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Put(SessionRecord{Identity: "c1", ExpiryInterval: SessionExpiryNever}))
	require.NoError(t, store.Close())

	reopened, err := NewBadgerSessionStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get("c1")
	require.NoError(t, err)
	assert.Equal(t, uint32(SessionExpiryNever), got.ExpiryInterval)
}

func TestSessionRecordExpired(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		record  SessionRecord
		expired bool
	}{
		{
			name:    "interval elapsed",
			record:  SessionRecord{ExpiryInterval: 10, DisconnectedAt: now.Add(-time.Minute)},
			expired: true,
		},
		{
			name:    "interval pending",
			record:  SessionRecord{ExpiryInterval: 300, DisconnectedAt: now.Add(-time.Minute)},
			expired: false,
		},
		{
			name:    "never expires",
			record:  SessionRecord{ExpiryInterval: SessionExpiryNever, DisconnectedAt: now.Add(-time.Hour)},
			expired: false,
		},
		{
			name:    "still connected",
			record:  SessionRecord{ExpiryInterval: 10},
			expired: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expired, tt.record.Expired(now))
		})
	}
}
