package mqttd

import "errors"

// ProtocolVersion is the MQTT protocol level carried in the CONNECT packet.
type ProtocolVersion byte

const (
	// ProtocolV311 is MQTT 3.1.1 (protocol level 4).
	ProtocolV311 ProtocolVersion = 4

	// ProtocolV50 is MQTT 5.0 (protocol level 5).
	ProtocolV50 ProtocolVersion = 5
)

// ErrUnsupportedVersion is returned for protocol levels other than 4 and 5.
var ErrUnsupportedVersion = errors.New("mqttd: unsupported protocol version")

// String returns the string representation of the protocol version.
func (v ProtocolVersion) String() string {
	switch v {
	case ProtocolV311:
		return "3.1.1"
	case ProtocolV50:
		return "5.0"
	default:
		return "unknown"
	}
}

// Valid returns true for the two supported protocol levels.
func (v ProtocolVersion) Valid() bool {
	return v == ProtocolV311 || v == ProtocolV50
}
