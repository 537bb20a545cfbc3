package mqttd

import (
	"bytes"
	"io"
)

// Packet is the interface implemented by all MQTT control packets.
//
// The protocol version is read once from CONNECT and thereafter supplied by
// the caller for every encode and decode on that connection. ConnectPacket
// ignores the version argument on Decode and reports the wire version
// instead.
type Packet interface {
	// Type returns the packet type.
	Type() PacketType

	// Encode writes the packet, including its fixed header, to w using the
	// wire format of the given protocol version.
	Encode(w io.Writer, version ProtocolVersion) (int, error)

	// Decode reads the packet body from r. The fixed header has already
	// been decoded and r is bounded to the declared remaining length.
	Decode(r io.Reader, header FixedHeader, version ProtocolVersion) (int, error)

	// Validate checks the packet contents against the protocol version.
	Validate(version ProtocolVersion) error
}

// encodeFramed buffers an encoded body and writes fixed header plus body.
// All packet Encode implementations build their variable header and payload
// into a buffer first so the remaining length is exact.
func encodeFramed(w io.Writer, packetType PacketType, flags byte, body []byte) (int, error) {
	header := FixedHeader{
		PacketType:      packetType,
		Flags:           flags,
		RemainingLength: uint32(len(body)),
	}

	n, err := header.Encode(w)
	if err != nil {
		return n, err
	}

	n2, err := w.Write(body)
	return n + n2, err
}

// Message is a routed application message, decoupled from the PUBLISH wire
// representation so the router can deliver one publish at different QoS
// levels and protocol versions per subscriber.
type Message struct {
	// Topic is the topic name the message was published to.
	Topic string

	// Payload is the application payload.
	Payload []byte

	// QoS is the quality of service the message was published with.
	QoS byte

	// Retain is the retain flag as published.
	Retain bool

	// v5.0 publish metadata, ignored when delivering to 3.1.1 subscribers.
	PayloadFormat   byte
	MessageExpiry   uint32
	ContentType     string
	ResponseTopic   string
	CorrelationData []byte
	UserProperties  []StringPair

	// SubscriptionIdentifiers carries the identifiers of the matching
	// subscriptions, set by the router on delivery.
	SubscriptionIdentifiers []uint32
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}

	clone := &Message{
		Topic:         m.Topic,
		QoS:           m.QoS,
		Retain:        m.Retain,
		PayloadFormat: m.PayloadFormat,
		MessageExpiry: m.MessageExpiry,
		ContentType:   m.ContentType,
		ResponseTopic: m.ResponseTopic,
	}

	clone.Payload = append([]byte(nil), m.Payload...)
	clone.CorrelationData = append([]byte(nil), m.CorrelationData...)
	clone.UserProperties = append([]StringPair(nil), m.UserProperties...)
	clone.SubscriptionIdentifiers = append([]uint32(nil), m.SubscriptionIdentifiers...)

	return clone
}

// FromProperties populates the message metadata from PUBLISH properties.
func (m *Message) FromProperties(p *Properties) {
	if p == nil {
		return
	}

	m.PayloadFormat = p.GetByte(PropPayloadFormatIndicator)
	m.MessageExpiry = p.GetUint32(PropMessageExpiryInterval)
	m.ContentType = p.GetString(PropContentType)
	m.ResponseTopic = p.GetString(PropResponseTopic)
	m.CorrelationData = p.GetBinary(PropCorrelationData)
	m.UserProperties = p.GetAllStringPairs(PropUserProperty)
	m.SubscriptionIdentifiers = p.GetAllVarInts(PropSubscriptionIdentifier)
}

// ToProperties converts the message metadata to PUBLISH properties.
func (m *Message) ToProperties() Properties {
	var p Properties

	if m.PayloadFormat != 0 {
		p.Set(PropPayloadFormatIndicator, m.PayloadFormat)
	}
	if m.MessageExpiry != 0 {
		p.Set(PropMessageExpiryInterval, m.MessageExpiry)
	}
	if m.ContentType != "" {
		p.Set(PropContentType, m.ContentType)
	}
	if m.ResponseTopic != "" {
		p.Set(PropResponseTopic, m.ResponseTopic)
	}
	if len(m.CorrelationData) > 0 {
		p.Set(PropCorrelationData, m.CorrelationData)
	}
	for _, up := range m.UserProperties {
		p.Add(PropUserProperty, up)
	}
	for _, id := range m.SubscriptionIdentifiers {
		p.Add(PropSubscriptionIdentifier, id)
	}

	return p
}

// encodeProps writes properties on a v5.0 connection and rejects non-empty
// properties on 3.1.1.
func encodeProps(buf *bytes.Buffer, props *Properties, version ProtocolVersion) (int, error) {
	if version == ProtocolV311 {
		if props.Len() > 0 {
			return 0, ErrPropertiesNotSupported
		}
		return 0, nil
	}
	return props.Encode(buf)
}
