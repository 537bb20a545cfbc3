package mqttd

import (
	"errors"
	"sync"
)

var (
	ErrTopicAliasInvalid = errors.New("mqttd: topic alias out of range")
	ErrTopicAliasUnknown = errors.New("mqttd: topic alias not established")
)

// TopicAliasTable holds the two v5.0 topic alias mappings of a connection:
// inbound (client-assigned alias → topic) and outbound (topic → alias the
// server assigned). Aliases are connection-scoped and die with it.
type TopicAliasTable struct {
	mu          sync.Mutex
	inbound     map[uint16]string
	outbound    map[string]uint16
	inboundMax  uint16
	outboundMax uint16
	nextAlias   uint16
}

// NewTopicAliasTable creates an alias table with the given maximums. A
// maximum of zero disables that direction.
func NewTopicAliasTable(inboundMax, outboundMax uint16) *TopicAliasTable {
	return &TopicAliasTable{
		inbound:     make(map[uint16]string),
		outbound:    make(map[string]uint16),
		inboundMax:  inboundMax,
		outboundMax: outboundMax,
		nextAlias:   1,
	}
}

// SetInbound establishes or replaces an inbound alias mapping.
func (t *TopicAliasTable) SetInbound(alias uint16, topic string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if alias == 0 || (t.inboundMax > 0 && alias > t.inboundMax) {
		return ErrTopicAliasInvalid
	}

	t.inbound[alias] = topic
	return nil
}

// ResolveInbound returns the topic for an established inbound alias.
func (t *TopicAliasTable) ResolveInbound(alias uint16) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	topic, ok := t.inbound[alias]
	if !ok {
		return "", ErrTopicAliasUnknown
	}
	return topic, nil
}

// Outbound returns the alias for a topic, assigning one if capacity
// remains. Returns zero when the topic is sent without an alias.
func (t *TopicAliasTable) Outbound(topic string) uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.outboundMax == 0 {
		return 0
	}

	if alias, ok := t.outbound[topic]; ok {
		return alias
	}

	if t.nextAlias > t.outboundMax {
		return 0
	}

	alias := t.nextAlias
	t.nextAlias++
	t.outbound[topic] = alias
	return alias
}
