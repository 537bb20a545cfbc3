package mqttd

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestInProcRelayFanOut(t *testing.T) {
	hub := NewInProcRelayHub()
	a := hub.Join()
	b := hub.Join()
	c := hub.Join()

	var bGot, cGot []*Message
	require.NoError(t, b.Subscribe(func(msg *Message) { bGot = append(bGot, msg) }))
	require.NoError(t, c.Subscribe(func(msg *Message) { cGot = append(cGot, msg) }))

	var aGot []*Message
	require.NoError(t, a.Subscribe(func(msg *Message) { aGot = append(aGot, msg) }))

	require.NoError(t, a.Publish(&Message{Topic: "t", Payload: []byte("x"), QoS: 1}))

	// The publisher never receives its own message back.
	assert.Empty(t, aGot)
	require.Len(t, bGot, 1)
	require.Len(t, cGot, 1)
	assert.Equal(t, "t", bGot[0].Topic)
	assert.Equal(t, []byte("x"), bGot[0].Payload)

	// Each receiver gets its own copy.
	bGot[0].Payload[0] = 'y'
	assert.Equal(t, []byte("x"), cGot[0].Payload)
}

func TestInProcRelayClosed(t *testing.T) {
	hub := NewInProcRelayHub()
	a := hub.Join()
	b := hub.Join()

	var bGot int
	require.NoError(t, b.Subscribe(func(*Message) { bGot++ }))

	require.NoError(t, a.Close())
	assert.ErrorIs(t, a.Publish(&Message{Topic: "t"}), ErrNotConnected)

	// A closed member no longer receives broadcasts.
	require.NoError(t, b.Close())
	require.NoError(t, a.Subscribe(func(*Message) {}))
	assert.Equal(t, 0, bGot)
}

func TestRelayEnvelopeRoundTrip(t *testing.T) {
	msg := &Message{
		Topic:           "meters/7",
		Payload:         []byte{0x01, 0x02},
		QoS:             2,
		Retain:          true,
		PayloadFormat:   1,
		MessageExpiry:   60,
		ContentType:     "application/cbor",
		ResponseTopic:   "meters/7/reply",
		CorrelationData: []byte{0xAA},
		UserProperties:  []StringPair{{Key: "site", Value: "north"}},
	}

	env := newRelayEnvelope("node-1", msg)
	data, err := msgpack.Marshal(&env)
	require.NoError(t, err)

	var decoded relayEnvelope
	require.NoError(t, msgpack.Unmarshal(data, &decoded))

	assert.Equal(t, "node-1", decoded.Origin)

	got := decoded.message()
	assert.Equal(t, msg.Topic, got.Topic)
	assert.Equal(t, msg.Payload, got.Payload)
	assert.Equal(t, msg.QoS, got.QoS)
	assert.Equal(t, msg.Retain, got.Retain)
	assert.Equal(t, msg.PayloadFormat, got.PayloadFormat)
	assert.Equal(t, msg.MessageExpiry, got.MessageExpiry)
	assert.Equal(t, msg.ContentType, got.ContentType)
	assert.Equal(t, msg.ResponseTopic, got.ResponseTopic)
	assert.Equal(t, msg.CorrelationData, got.CorrelationData)
	assert.Equal(t, msg.UserProperties, got.UserProperties)
}

func TestRedisRelayDropsOwnEnvelopes(t *testing.T) {
	relay := NewRedisRelay(&redis.Options{}, "relay", nil)
	defer relay.Close()
	assert.NotEmpty(t, relay.NodeID())

	var got []*Message
	handler := func(msg *Message) { got = append(got, msg) }

	own, err := msgpack.Marshal(&relayEnvelope{Origin: relay.NodeID(), Topic: "t"})
	require.NoError(t, err)
	relay.dispatch(own, handler)
	assert.Empty(t, got)

	remote, err := msgpack.Marshal(&relayEnvelope{Origin: "other-node", Topic: "t"})
	require.NoError(t, err)
	relay.dispatch(remote, handler)
	require.Len(t, got, 1)
	assert.Equal(t, "t", got[0].Topic)

	// Garbage is dropped without reaching the handler.
	relay.dispatch([]byte("not msgpack"), handler)
	assert.Len(t, got, 1)
}
