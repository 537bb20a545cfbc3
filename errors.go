package mqttd

import (
	"errors"
	"fmt"
)

// Broker error taxonomy. ErrMalformedPacket and ErrProtocolViolation are
// fatal to the connection that raised them; the remaining errors are
// reported through the relevant acknowledgment packet.
var (
	// ErrMalformedPacket indicates bytes that cannot be parsed as the
	// declared control packet. All codec-level errors wrap it.
	ErrMalformedPacket = errors.New("mqttd: malformed packet")

	// ErrProtocolViolation indicates a packet that parsed correctly but is
	// not legal in the connection's current state.
	ErrProtocolViolation = errors.New("mqttd: protocol violation")

	// ErrSessionTakenOver indicates the session was claimed by a newer
	// connection with the same client identifier.
	ErrSessionTakenOver = errors.New("mqttd: session taken over")

	// ErrNotConnected indicates an operation on a closed connection.
	ErrNotConnected = errors.New("mqttd: not connected")

	// ErrServerClosed is returned by Serve after Close.
	ErrServerClosed = errors.New("mqttd: server closed")
)

// Codec errors. Each wraps ErrMalformedPacket so callers can classify with
// a single errors.Is check.
var (
	ErrInvalidPacketType       = fmt.Errorf("%w: invalid packet type", ErrMalformedPacket)
	ErrInvalidPacketFlags      = fmt.Errorf("%w: invalid fixed header flags", ErrMalformedPacket)
	ErrVarintMalformed         = fmt.Errorf("%w: malformed variable byte integer", ErrMalformedPacket)
	ErrVarintTooLarge          = fmt.Errorf("%w: variable byte integer exceeds maximum", ErrMalformedPacket)
	ErrInvalidUTF8             = fmt.Errorf("%w: invalid UTF-8 string", ErrMalformedPacket)
	ErrStringContainsNull      = fmt.Errorf("%w: string contains null character", ErrMalformedPacket)
	ErrUnknownProperty         = fmt.Errorf("%w: unknown property identifier", ErrMalformedPacket)
	ErrDuplicateProperty       = fmt.Errorf("%w: duplicate property", ErrMalformedPacket)
	ErrPropertyBoundary        = fmt.Errorf("%w: property length does not land on a boundary", ErrMalformedPacket)
	ErrPropertiesNotSupported  = fmt.Errorf("%w: properties are not valid on a 3.1.1 connection", ErrMalformedPacket)
	ErrTruncatedPacket         = fmt.Errorf("%w: declared length exceeds available bytes", ErrMalformedPacket)
	ErrTrailingBytes           = fmt.Errorf("%w: trailing bytes after packet body", ErrMalformedPacket)
	ErrPacketTooLarge          = errors.New("mqttd: packet exceeds maximum size")
	ErrStringTooLong           = errors.New("mqttd: string exceeds 65535 bytes")
	ErrBinaryTooLong           = errors.New("mqttd: binary data exceeds 65535 bytes")
	ErrPacketIdentifiersSpent  = errors.New("mqttd: no packet identifier available")
	ErrInvalidTopicName        = errors.New("mqttd: invalid topic name")
	ErrInvalidTopicFilter      = errors.New("mqttd: invalid topic filter")
	ErrInvalidReservedClientID = errors.New("mqttd: empty client identifier requires clean start")
)
