package mqttd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropertiesRoundTrip(t *testing.T) {
	var p Properties
	p.Set(PropSessionExpiryInterval, uint32(3600))
	p.Set(PropTopicAliasMaximum, uint16(16))
	p.Set(PropContentType, "application/json")
	p.Set(PropCorrelationData, []byte{0x01, 0x02})
	p.Set(PropPayloadFormatIndicator, byte(1))
	p.Add(PropUserProperty, StringPair{Key: "env", Value: "prod"})
	p.Add(PropUserProperty, StringPair{Key: "env", Value: "staging"})

	var buf bytes.Buffer
	_, err := p.Encode(&buf)
	require.NoError(t, err)

	var decoded Properties
	_, err = decoded.Decode(&buf)
	require.NoError(t, err)

	assert.Equal(t, uint32(3600), decoded.GetUint32(PropSessionExpiryInterval))
	assert.Equal(t, uint16(16), decoded.GetUint16(PropTopicAliasMaximum))
	assert.Equal(t, "application/json", decoded.GetString(PropContentType))
	assert.Equal(t, []byte{0x01, 0x02}, decoded.GetBinary(PropCorrelationData))
	assert.Equal(t, byte(1), decoded.GetByte(PropPayloadFormatIndicator))

	pairs := decoded.GetAllStringPairs(PropUserProperty)
	require.Len(t, pairs, 2)
	assert.Equal(t, "prod", pairs[0].Value)
	assert.Equal(t, "staging", pairs[1].Value)
}

func TestPropertiesEmpty(t *testing.T) {
	var p Properties

	var buf bytes.Buffer
	n, err := p.Encode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []byte{0x00}, buf.Bytes())

	var decoded Properties
	n, err = decoded.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, decoded.Len())
}

func TestPropertiesDecodeUnknownID(t *testing.T) {
	// Length 2: unknown identifier 0x7D followed by one byte.
	buf := bytes.NewBuffer([]byte{0x02, 0x7D, 0x00})

	var p Properties
	_, err := p.Decode(buf)
	assert.ErrorIs(t, err, ErrUnknownProperty)
}

func TestPropertiesDecodeDuplicate(t *testing.T) {
	t.Run("non-repeatable property", func(t *testing.T) {
		// Session expiry interval twice.
		buf := bytes.NewBuffer([]byte{
			0x0A,
			0x11, 0x00, 0x00, 0x00, 0x01,
			0x11, 0x00, 0x00, 0x00, 0x02,
		})

		var p Properties
		_, err := p.Decode(buf)
		assert.ErrorIs(t, err, ErrDuplicateProperty)
	})

	t.Run("user property repeats", func(t *testing.T) {
		var p Properties
		p.Add(PropUserProperty, StringPair{Key: "a", Value: "1"})
		p.Add(PropUserProperty, StringPair{Key: "a", Value: "2"})

		var buf bytes.Buffer
		_, err := p.Encode(&buf)
		require.NoError(t, err)

		var decoded Properties
		_, err = decoded.Decode(&buf)
		require.NoError(t, err)
		assert.Len(t, decoded.GetAllStringPairs(PropUserProperty), 2)
	})
}

func TestPropertiesDecodeBoundary(t *testing.T) {
	// Declared length 4 but the session expiry property needs 5 bytes.
	buf := bytes.NewBuffer([]byte{0x04, 0x11, 0x00, 0x00, 0x00, 0x01})

	var p Properties
	_, err := p.Decode(buf)
	assert.ErrorIs(t, err, ErrPropertyBoundary)
}

func TestPropertiesSetReplaces(t *testing.T) {
	var p Properties
	p.Set(PropContentType, "text/plain")
	p.Set(PropContentType, "application/json")

	assert.Equal(t, "application/json", p.GetString(PropContentType))
	assert.Equal(t, 1, p.Len())
}

func TestPropertiesSubscriptionIdentifiers(t *testing.T) {
	var p Properties
	p.Add(PropSubscriptionIdentifier, uint32(1))
	p.Add(PropSubscriptionIdentifier, uint32(268435455))

	var buf bytes.Buffer
	_, err := p.Encode(&buf)
	require.NoError(t, err)

	var decoded Properties
	_, err = decoded.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 268435455}, decoded.GetAllVarInts(PropSubscriptionIdentifier))
}
