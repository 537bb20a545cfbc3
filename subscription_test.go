package mqttd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findMatch(t *testing.T, results []MatchResult, identity string) MatchResult {
	t.Helper()
	for _, r := range results {
		if r.Identity == identity {
			return r
		}
	}
	t.Fatalf("no match result for %q", identity)
	return MatchResult{}
}

func TestSubscribeValidatesFilter(t *testing.T) {
	m := NewSubscriptionManager()

	err := m.Subscribe("c1", Subscription{TopicFilter: "a/#/b"})
	assert.ErrorIs(t, err, ErrInvalidTopicFilter)
	assert.Equal(t, 0, m.Count())
}

func TestMatchSingleResultPerIdentity(t *testing.T) {
	m := NewSubscriptionManager()
	require.NoError(t, m.Subscribe("c1", Subscription{TopicFilter: "sport/+", QoS: 0}))
	require.NoError(t, m.Subscribe("c1", Subscription{TopicFilter: "sport/#", QoS: 2}))
	require.NoError(t, m.Subscribe("c2", Subscription{TopicFilter: "sport/tennis", QoS: 1}))

	results := m.Match("sport/tennis")
	require.Len(t, results, 2)

	// Overlapping filters collapse to one delivery at the maximum QoS.
	c1 := findMatch(t, results, "c1")
	assert.Equal(t, byte(2), c1.QoS)

	c2 := findMatch(t, results, "c2")
	assert.Equal(t, byte(1), c2.QoS)
}

func TestResubscribeUpdatesInPlace(t *testing.T) {
	m := NewSubscriptionManager()
	require.NoError(t, m.Subscribe("c1", Subscription{TopicFilter: "a/b", QoS: 0}))
	require.NoError(t, m.Subscribe("c1", Subscription{TopicFilter: "a/b", QoS: 2}))

	assert.Equal(t, 1, m.Count())

	results := m.Match("a/b")
	require.Len(t, results, 1)
	assert.Equal(t, byte(2), results[0].QoS)
}

func TestMatchSubscriptionIdentifiers(t *testing.T) {
	m := NewSubscriptionManager()
	require.NoError(t, m.Subscribe("c1", Subscription{TopicFilter: "a/+", QoS: 1, ID: 3}))
	require.NoError(t, m.Subscribe("c1", Subscription{TopicFilter: "a/#", QoS: 1, ID: 7}))
	require.NoError(t, m.Subscribe("c1", Subscription{TopicFilter: "a/b", QoS: 1}))

	results := m.Match("a/b")
	require.Len(t, results, 1)
	// The filter without an identifier contributes nothing to the union.
	assert.ElementsMatch(t, []uint32{3, 7}, results[0].SubIDs)
}

func TestMatchNoLocalAggregation(t *testing.T) {
	m := NewSubscriptionManager()

	t.Run("all filters request it", func(t *testing.T) {
		require.NoError(t, m.Subscribe("c1", Subscription{TopicFilter: "a/+", NoLocal: true}))
		require.NoError(t, m.Subscribe("c1", Subscription{TopicFilter: "a/b", NoLocal: true}))

		results := m.Match("a/b")
		require.Len(t, results, 1)
		assert.True(t, results[0].NoLocal)
	})

	t.Run("one filter without it wins", func(t *testing.T) {
		require.NoError(t, m.Subscribe("c1", Subscription{TopicFilter: "a/#"}))

		results := m.Match("a/b")
		require.Len(t, results, 1)
		assert.False(t, results[0].NoLocal)
	})
}

func TestUnsubscribe(t *testing.T) {
	m := NewSubscriptionManager()
	require.NoError(t, m.Subscribe("c1", Subscription{TopicFilter: "a/b"}))

	assert.True(t, m.Unsubscribe("c1", "a/b"))
	assert.False(t, m.Unsubscribe("c1", "a/b"))
	assert.False(t, m.Unsubscribe("c1", "never/subscribed"))
	assert.Empty(t, m.Match("a/b"))
}

func TestUnsubscribeAll(t *testing.T) {
	m := NewSubscriptionManager()
	require.NoError(t, m.Subscribe("c1", Subscription{TopicFilter: "a/b"}))
	require.NoError(t, m.Subscribe("c1", Subscription{TopicFilter: "a/+"}))
	require.NoError(t, m.Subscribe("c2", Subscription{TopicFilter: "a/b"}))

	m.UnsubscribeAll("c1")

	assert.Equal(t, 1, m.Count())
	assert.Empty(t, m.Subscriptions("c1"))

	results := m.Match("a/b")
	require.Len(t, results, 1)
	assert.Equal(t, "c2", results[0].Identity)
}

func TestSubscriptionsSnapshot(t *testing.T) {
	m := NewSubscriptionManager()
	require.NoError(t, m.Subscribe("c1", Subscription{TopicFilter: "a/b", QoS: 1, NoLocal: true}))

	subs := m.Subscriptions("c1")
	require.Len(t, subs, 1)
	assert.Equal(t, "a/b", subs[0].TopicFilter)
	assert.Equal(t, byte(1), subs[0].QoS)
	assert.True(t, subs[0].NoLocal)

	assert.Empty(t, m.Subscriptions("unknown"))
}
