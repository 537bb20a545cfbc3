package mqttd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarintRoundTrip(t *testing.T) {
	tests := []struct {
		value uint32
		size  int
	}{
		{0, 1},
		{1, 1},
		{127, 1},
		{128, 2},
		{16383, 2},
		{16384, 3},
		{2097151, 3},
		{2097152, 4},
		{268435455, 4},
	}

	for _, tt := range tests {
		var buf bytes.Buffer

		n, err := encodeVarint(&buf, tt.value)
		require.NoError(t, err)
		assert.Equal(t, tt.size, n)
		assert.Equal(t, tt.size, varintSize(tt.value))

		decoded, n2, err := decodeVarint(&buf)
		require.NoError(t, err)
		assert.Equal(t, tt.value, decoded)
		assert.Equal(t, tt.size, n2)
	}
}

func TestVarintEncodeTooLarge(t *testing.T) {
	var buf bytes.Buffer
	_, err := encodeVarint(&buf, 268435456)
	assert.ErrorIs(t, err, ErrVarintTooLarge)
}

func TestVarintDecodeMalformed(t *testing.T) {
	t.Run("fifth continuation byte", func(t *testing.T) {
		buf := bytes.NewBuffer([]byte{0x80, 0x80, 0x80, 0x80, 0x01})
		_, _, err := decodeVarint(buf)
		assert.ErrorIs(t, err, ErrVarintMalformed)
		assert.ErrorIs(t, err, ErrMalformedPacket)
	})

	t.Run("truncated", func(t *testing.T) {
		buf := bytes.NewBuffer([]byte{0x80})
		_, _, err := decodeVarint(buf)
		assert.Error(t, err)
	})
}

func TestEncodeDecodeString(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "empty", input: ""},
		{name: "ascii", input: "sensors/room1/temp"},
		{name: "utf8", input: "датчик/温度"},
		{name: "max length", input: strings.Repeat("a", 65535)},
		{name: "too long", input: strings.Repeat("a", 65536), wantErr: ErrStringTooLong},
		{name: "embedded null", input: "a\x00b", wantErr: ErrStringContainsNull},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			n, err := encodeString(&buf, tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, 2+len(tt.input), n)

			decoded, n2, err := decodeString(&buf)
			require.NoError(t, err)
			assert.Equal(t, tt.input, decoded)
			assert.Equal(t, 2+len(tt.input), n2)
		})
	}
}

func TestDecodeStringInvalidUTF8(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0x00, 0x02, 0xFF, 0xFE})
	_, _, err := decodeString(buf)
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}

func TestDecodeStringNull(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0x00, 0x03, 'a', 0x00, 'b'})
	_, _, err := decodeString(buf)
	assert.ErrorIs(t, err, ErrStringContainsNull)
}

func TestEncodeDecodeBinary(t *testing.T) {
	var buf bytes.Buffer

	data := []byte{0x00, 0x01, 0xFF, 0xFE}
	n, err := encodeBinary(&buf, data)
	require.NoError(t, err)
	assert.Equal(t, 2+len(data), n)

	decoded, n2, err := decodeBinary(&buf)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
	assert.Equal(t, 2+len(data), n2)
}

func TestEncodeDecodeStringPair(t *testing.T) {
	var buf bytes.Buffer

	pair := StringPair{Key: "region", Value: "eu-west"}
	_, err := encodeStringPair(&buf, pair)
	require.NoError(t, err)

	decoded, _, err := decodeStringPair(&buf)
	require.NoError(t, err)
	assert.Equal(t, pair, decoded)
}

func TestDecodeTruncated(t *testing.T) {
	// Declared length 5, only 2 bytes available.
	buf := bytes.NewBuffer([]byte{0x00, 0x05, 'a', 'b'})
	_, _, err := decodeString(buf)
	assert.ErrorIs(t, err, ErrTruncatedPacket)
}
