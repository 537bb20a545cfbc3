package mqttd

import "sync/atomic"

// Metrics is the broker's administrative counter surface. The surrounding
// application may poll it or serve it over whatever operational interface
// it chooses.
type Metrics struct {
	connectionsAccepted atomic.Uint64
	connectionsActive   atomic.Int64
	takeovers           atomic.Uint64
	messagesReceived    atomic.Uint64
	messagesDelivered   atomic.Uint64
	messagesDropped     atomic.Uint64
	relayPublished      atomic.Uint64
	relayReceived       atomic.Uint64
	malformedPackets    atomic.Uint64
}

// NewMetrics creates a zeroed metrics set.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ConnectionsAccepted returns the total number of accepted connections.
func (m *Metrics) ConnectionsAccepted() uint64 { return m.connectionsAccepted.Load() }

// ConnectionsActive returns the number of currently active connections.
func (m *Metrics) ConnectionsActive() int64 { return m.connectionsActive.Load() }

// Takeovers returns the number of session takeovers.
func (m *Metrics) Takeovers() uint64 { return m.takeovers.Load() }

// MessagesReceived returns the number of PUBLISH packets accepted.
func (m *Metrics) MessagesReceived() uint64 { return m.messagesReceived.Load() }

// MessagesDelivered returns the number of per-subscriber deliveries.
func (m *Metrics) MessagesDelivered() uint64 { return m.messagesDelivered.Load() }

// MessagesDropped returns deliveries skipped because the subscriber's
// connection was absent or refused the write.
func (m *Metrics) MessagesDropped() uint64 { return m.messagesDropped.Load() }

// RelayPublished returns the number of messages forwarded to the relay.
func (m *Metrics) RelayPublished() uint64 { return m.relayPublished.Load() }

// RelayReceived returns the number of messages ingested from the relay.
func (m *Metrics) RelayReceived() uint64 { return m.relayReceived.Load() }

// MalformedPackets returns the number of connections closed for malformed
// input.
func (m *Metrics) MalformedPackets() uint64 { return m.malformedPackets.Load() }

// Healthy reports basic liveness: the broker considers itself healthy when
// its active connection count is non-negative, which only fails on counter
// underflow bugs. Embedders typically combine this with transport checks.
func (m *Metrics) Healthy() bool {
	return m.connectionsActive.Load() >= 0
}
