package mqttd

import (
	"bytes"
	"io"
)

// PublishPacket represents an MQTT PUBLISH packet.
type PublishPacket struct {
	// Topic is the topic name. May be empty on v5.0 when a topic alias is
	// used.
	Topic string

	// PacketID is the packet identifier, present only for QoS > 0.
	PacketID uint16

	// Payload is the application payload.
	Payload []byte

	// QoS, Retain and DUP are carried in the fixed header flags.
	QoS    byte
	Retain bool
	DUP    bool

	// Props contains the PUBLISH properties (v5.0 only).
	Props Properties
}

// Type returns the packet type.
func (p *PublishPacket) Type() PacketType {
	return PacketPUBLISH
}

func (p *PublishPacket) flags() byte {
	var h FixedHeader
	h.SetQoS(p.QoS)
	h.SetRetain(p.Retain)
	h.SetDUP(p.DUP)
	return h.Flags
}

// Encode writes the packet to w.
func (p *PublishPacket) Encode(w io.Writer, version ProtocolVersion) (int, error) {
	if err := p.Validate(version); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	if _, err := encodeString(&buf, p.Topic); err != nil {
		return 0, err
	}

	if p.QoS > 0 {
		if _, err := encodeUint16(&buf, p.PacketID); err != nil {
			return 0, err
		}
	}

	if _, err := encodeProps(&buf, &p.Props, version); err != nil {
		return 0, err
	}

	buf.Write(p.Payload)

	return encodeFramed(w, PacketPUBLISH, p.flags(), buf.Bytes())
}

// Decode reads the packet body from r. The payload is whatever remains of
// the declared length after the variable header.
func (p *PublishPacket) Decode(r io.Reader, header FixedHeader, version ProtocolVersion) (int, error) {
	p.QoS = header.QoS()
	p.Retain = header.Retain()
	p.DUP = header.DUP()

	topic, n, err := decodeString(r)
	if err != nil {
		return n, err
	}
	p.Topic = topic

	if p.QoS > 0 {
		var bn int
		p.PacketID, bn, err = decodeUint16(r)
		n += bn
		if err != nil {
			return n, err
		}
	}

	if version == ProtocolV50 {
		pn, err := p.Props.Decode(r)
		n += pn
		if err != nil {
			return n, err
		}
	}

	payloadLen := int(header.RemainingLength) - n
	if payloadLen < 0 {
		return n, ErrTruncatedPacket
	}
	if payloadLen > 0 {
		p.Payload = make([]byte, payloadLen)
		bn, err := io.ReadFull(r, p.Payload)
		n += bn
		if err != nil {
			return n, truncated(err)
		}
	}

	return n, nil
}

// Validate checks the packet contents. An empty topic is only legal on
// v5.0, where a topic alias may stand in for it.
func (p *PublishPacket) Validate(version ProtocolVersion) error {
	if p.QoS > 2 {
		return ErrInvalidPacketFlags
	}
	if p.QoS > 0 && p.PacketID == 0 {
		return ErrProtocolViolation
	}
	if p.Topic == "" {
		if version == ProtocolV311 || !p.Props.Has(PropTopicAlias) {
			return ErrInvalidTopicName
		}
	} else if err := ValidateTopicName(p.Topic); err != nil {
		return err
	}
	if version == ProtocolV311 && p.Props.Len() > 0 {
		return ErrPropertiesNotSupported
	}
	return nil
}

// ToMessage converts the packet to a routable message.
func (p *PublishPacket) ToMessage() *Message {
	msg := &Message{
		Topic:   p.Topic,
		Payload: p.Payload,
		QoS:     p.QoS,
		Retain:  p.Retain,
	}
	msg.FromProperties(&p.Props)
	// Subscription identifiers never flow from publisher to broker.
	msg.SubscriptionIdentifiers = nil
	return msg
}
