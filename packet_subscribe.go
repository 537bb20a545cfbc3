package mqttd

import (
	"bytes"
	"io"
)

// Subscription is a topic filter with its granted options. On 3.1.1 only
// the QoS is on the wire; the remaining options are v5.0 subscription
// option bits.
type Subscription struct {
	// TopicFilter is the subscription pattern, possibly with + or #.
	TopicFilter string

	// QoS is the maximum QoS granted for this subscription.
	QoS byte

	// NoLocal suppresses delivery of the client's own publishes (v5.0).
	NoLocal bool

	// RetainAsPublished preserves the retain flag on delivery (v5.0).
	RetainAsPublished bool

	// RetainHandling controls retained-message replay on subscribe (v5.0).
	RetainHandling byte

	// ID is the numeric subscription identifier (v5.0), zero if absent.
	ID uint32
}

func (s Subscription) optionsByte() byte {
	opts := s.QoS & 0x03
	if s.NoLocal {
		opts |= 0x04
	}
	if s.RetainAsPublished {
		opts |= 0x08
	}
	opts |= (s.RetainHandling & 0x03) << 4
	return opts
}

func subscriptionFromOptions(filter string, opts byte, version ProtocolVersion) (Subscription, error) {
	sub := Subscription{
		TopicFilter: filter,
		QoS:         opts & 0x03,
	}

	if sub.QoS > 2 {
		return sub, ErrInvalidPacketFlags
	}

	if version == ProtocolV311 {
		// Bits 2-7 are reserved on 3.1.1.
		if opts&0xFC != 0 {
			return sub, ErrInvalidPacketFlags
		}
		return sub, nil
	}

	sub.NoLocal = opts&0x04 != 0
	sub.RetainAsPublished = opts&0x08 != 0
	sub.RetainHandling = (opts >> 4) & 0x03
	if sub.RetainHandling > 2 || opts&0xC0 != 0 {
		return sub, ErrInvalidPacketFlags
	}
	return sub, nil
}

// SubscribePacket represents an MQTT SUBSCRIBE packet.
type SubscribePacket struct {
	// PacketID is the packet identifier.
	PacketID uint16

	// Props contains the SUBSCRIBE properties (v5.0 only); a subscription
	// identifier here applies to every filter in the packet.
	Props Properties

	// Subscriptions is the list of requested filters, at least one.
	Subscriptions []Subscription
}

// Type returns the packet type.
func (p *SubscribePacket) Type() PacketType {
	return PacketSUBSCRIBE
}

// Encode writes the packet to w.
func (p *SubscribePacket) Encode(w io.Writer, version ProtocolVersion) (int, error) {
	if err := p.Validate(version); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	if _, err := encodeUint16(&buf, p.PacketID); err != nil {
		return 0, err
	}

	if _, err := encodeProps(&buf, &p.Props, version); err != nil {
		return 0, err
	}

	for _, sub := range p.Subscriptions {
		if _, err := encodeString(&buf, sub.TopicFilter); err != nil {
			return 0, err
		}
		if version == ProtocolV311 {
			buf.WriteByte(sub.QoS & 0x03)
		} else {
			buf.WriteByte(sub.optionsByte())
		}
	}

	return encodeFramed(w, PacketSUBSCRIBE, 0x02, buf.Bytes())
}

// Decode reads the packet body from r.
func (p *SubscribePacket) Decode(r io.Reader, header FixedHeader, version ProtocolVersion) (int, error) {
	id, n, err := decodeUint16(r)
	if err != nil {
		return n, err
	}
	p.PacketID = id

	if version == ProtocolV50 {
		pn, err := p.Props.Decode(r)
		n += pn
		if err != nil {
			return n, err
		}
	}

	subID := p.Props.GetUint32(PropSubscriptionIdentifier)

	p.Subscriptions = nil
	for n < int(header.RemainingLength) {
		filter, fn, err := decodeString(r)
		n += fn
		if err != nil {
			return n, err
		}

		opts, bn, err := decodeByte(r)
		n += bn
		if err != nil {
			return n, err
		}

		sub, err := subscriptionFromOptions(filter, opts, version)
		if err != nil {
			return n, err
		}
		sub.ID = subID
		p.Subscriptions = append(p.Subscriptions, sub)
	}

	if len(p.Subscriptions) == 0 {
		return n, ErrProtocolViolation
	}

	return n, nil
}

// Validate checks the packet contents.
func (p *SubscribePacket) Validate(version ProtocolVersion) error {
	if p.PacketID == 0 {
		return ErrProtocolViolation
	}
	if len(p.Subscriptions) == 0 {
		return ErrProtocolViolation
	}
	if version == ProtocolV311 && p.Props.Len() > 0 {
		return ErrPropertiesNotSupported
	}
	for _, sub := range p.Subscriptions {
		if sub.QoS > 2 {
			return ErrInvalidPacketFlags
		}
	}
	return nil
}

// SubackPacket represents an MQTT SUBACK packet with one reason code per
// requested filter, in order.
type SubackPacket struct {
	// PacketID echoes the SUBSCRIBE packet identifier.
	PacketID uint16

	// Props contains the SUBACK properties (v5.0 only).
	Props Properties

	// ReasonCodes holds the per-filter results. On 3.1.1, error codes are
	// collapsed to the single failure return code 0x80.
	ReasonCodes []ReasonCode
}

// Type returns the packet type.
func (p *SubackPacket) Type() PacketType {
	return PacketSUBACK
}

// Encode writes the packet to w.
func (p *SubackPacket) Encode(w io.Writer, version ProtocolVersion) (int, error) {
	if err := p.Validate(version); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	if _, err := encodeUint16(&buf, p.PacketID); err != nil {
		return 0, err
	}

	if _, err := encodeProps(&buf, &p.Props, version); err != nil {
		return 0, err
	}

	for _, code := range p.ReasonCodes {
		if version == ProtocolV311 && code.IsError() {
			buf.WriteByte(0x80)
		} else {
			buf.WriteByte(byte(code))
		}
	}

	return encodeFramed(w, PacketSUBACK, 0, buf.Bytes())
}

// Decode reads the packet body from r.
func (p *SubackPacket) Decode(r io.Reader, header FixedHeader, version ProtocolVersion) (int, error) {
	id, n, err := decodeUint16(r)
	if err != nil {
		return n, err
	}
	p.PacketID = id

	if version == ProtocolV50 {
		pn, err := p.Props.Decode(r)
		n += pn
		if err != nil {
			return n, err
		}
	}

	p.ReasonCodes = nil
	for n < int(header.RemainingLength) {
		code, bn, err := decodeByte(r)
		n += bn
		if err != nil {
			return n, err
		}
		p.ReasonCodes = append(p.ReasonCodes, ReasonCode(code))
	}

	if len(p.ReasonCodes) == 0 {
		return n, ErrProtocolViolation
	}

	return n, nil
}

// Validate checks the packet contents.
func (p *SubackPacket) Validate(version ProtocolVersion) error {
	if p.PacketID == 0 {
		return ErrProtocolViolation
	}
	if len(p.ReasonCodes) == 0 {
		return ErrProtocolViolation
	}
	if version == ProtocolV311 && p.Props.Len() > 0 {
		return ErrPropertiesNotSupported
	}
	return nil
}
