package mqttd

import "sync"

// MatchResult is one subscriber's view of a published topic: the maximum
// QoS granted across all of its matching filters and the union of their
// subscription identifiers. NoLocal is set only when every matching filter
// requested it, since any one subscription without the option entitles the
// subscriber to its own publishes.
type MatchResult struct {
	Identity string
	QoS      byte
	SubIDs   []uint32
	NoLocal  bool
}

// SubscriptionManager is the topic index: it maps topic filters to
// subscriber identities through a segment trie and answers wildcard match
// queries. Safe for concurrent use from any connection; a match concurrent
// with an insert or remove may see either ordering but never corruption.
type SubscriptionManager struct {
	mu      sync.RWMutex
	trie    *topicTrie
	byOwner map[string]map[string]Subscription // identity -> filter -> options
}

// NewSubscriptionManager creates an empty subscription manager.
func NewSubscriptionManager() *SubscriptionManager {
	return &SubscriptionManager{
		trie:    newTopicTrie(),
		byOwner: make(map[string]map[string]Subscription),
	}
}

// Subscribe adds or updates a subscription for the identity. A repeated
// subscribe for the same (identity, filter) updates the granted options in
// place without duplicating the subscriber in match results.
func (m *SubscriptionManager) Subscribe(identity string, sub Subscription) error {
	if err := ValidateTopicFilter(sub.TopicFilter); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	owned := m.byOwner[identity]
	if owned == nil {
		owned = make(map[string]Subscription)
		m.byOwner[identity] = owned
	}
	owned[sub.TopicFilter] = sub

	m.trie.insert(sub.TopicFilter, identity, trieLeaf{
		qos:     sub.QoS,
		subID:   sub.ID,
		noLocal: sub.NoLocal,
	})
	return nil
}

// Unsubscribe removes a subscription. Returns false if none existed.
func (m *SubscriptionManager) Unsubscribe(identity, filter string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	owned := m.byOwner[identity]
	if _, ok := owned[filter]; !ok {
		return false
	}

	delete(owned, filter)
	if len(owned) == 0 {
		delete(m.byOwner, identity)
	}

	return m.trie.remove(filter, identity)
}

// UnsubscribeAll removes every subscription owned by the identity.
func (m *SubscriptionManager) UnsubscribeAll(identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for filter := range m.byOwner[identity] {
		m.trie.remove(filter, identity)
	}
	delete(m.byOwner, identity)
}

// Subscriptions returns a copy of the identity's subscriptions.
func (m *SubscriptionManager) Subscriptions(identity string) []Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()

	owned := m.byOwner[identity]
	subs := make([]Subscription, 0, len(owned))
	for _, sub := range owned {
		subs = append(subs, sub)
	}
	return subs
}

// Match returns one result per subscriber identity whose filters match the
// topic name, with the maximum granted QoS and the union of subscription
// identifiers across matching filters.
func (m *SubscriptionManager) Match(topic string) []MatchResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byIdentity := make(map[string]*MatchResult)

	m.trie.match(topic, func(identity string, leaf trieLeaf) {
		result := byIdentity[identity]
		if result == nil {
			result = &MatchResult{Identity: identity, QoS: leaf.qos, NoLocal: leaf.noLocal}
			byIdentity[identity] = result
		} else {
			if leaf.qos > result.QoS {
				result.QoS = leaf.qos
			}
			result.NoLocal = result.NoLocal && leaf.noLocal
		}
		if leaf.subID > 0 {
			result.SubIDs = appendUniqueID(result.SubIDs, leaf.subID)
		}
	})

	results := make([]MatchResult, 0, len(byIdentity))
	for _, result := range byIdentity {
		results = append(results, *result)
	}
	return results
}

// Count returns the total number of subscriptions.
func (m *SubscriptionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, owned := range m.byOwner {
		count += len(owned)
	}
	return count
}

func appendUniqueID(ids []uint32, id uint32) []uint32 {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
