package mqttd

import (
	"bytes"
	"io"
)

// UnsubscribePacket represents an MQTT UNSUBSCRIBE packet.
type UnsubscribePacket struct {
	// PacketID is the packet identifier.
	PacketID uint16

	// Props contains the UNSUBSCRIBE properties (v5.0 only).
	Props Properties

	// TopicFilters is the list of filters to remove, at least one.
	TopicFilters []string
}

// Type returns the packet type.
func (p *UnsubscribePacket) Type() PacketType {
	return PacketUNSUBSCRIBE
}

// Encode writes the packet to w.
func (p *UnsubscribePacket) Encode(w io.Writer, version ProtocolVersion) (int, error) {
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

	for _, filter := range p.TopicFilters {
		if _, err := encodeString(&buf, filter); err != nil {
			return 0, err
		}
	}

	return encodeFramed(w, PacketUNSUBSCRIBE, 0x02, buf.Bytes())
}

// Decode reads the packet body from r.
func (p *UnsubscribePacket) Decode(r io.Reader, header FixedHeader, version ProtocolVersion) (int, error) {
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

	p.TopicFilters = nil
	for n < int(header.RemainingLength) {
		filter, fn, err := decodeString(r)
		n += fn
		if err != nil {
			return n, err
		}
		p.TopicFilters = append(p.TopicFilters, filter)
	}

	if len(p.TopicFilters) == 0 {
		return n, ErrProtocolViolation
	}

	return n, nil
}

// Validate checks the packet contents.
func (p *UnsubscribePacket) Validate(version ProtocolVersion) error {
	if p.PacketID == 0 {
		return ErrProtocolViolation
	}
	if len(p.TopicFilters) == 0 {
		return ErrProtocolViolation
	}
	if version == ProtocolV311 && p.Props.Len() > 0 {
		return ErrPropertiesNotSupported
	}
	return nil
}

// UnsubackPacket represents an MQTT UNSUBACK packet. On 3.1.1 the packet
// carries no reason codes.
type UnsubackPacket struct {
	// PacketID echoes the UNSUBSCRIBE packet identifier.
	PacketID uint16

	// Props contains the UNSUBACK properties (v5.0 only).
	Props Properties

	// ReasonCodes holds the per-filter results (v5.0 only).
	ReasonCodes []ReasonCode
}

// Type returns the packet type.
func (p *UnsubackPacket) Type() PacketType {
	return PacketUNSUBACK
}

// Encode writes the packet to w.
func (p *UnsubackPacket) Encode(w io.Writer, version ProtocolVersion) (int, error) {
	if err := p.Validate(version); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	if _, err := encodeUint16(&buf, p.PacketID); err != nil {
		return 0, err
	}

	if version == ProtocolV50 {
		if _, err := p.Props.Encode(&buf); err != nil {
			return 0, err
		}
		for _, code := range p.ReasonCodes {
			buf.WriteByte(byte(code))
		}
	}

	return encodeFramed(w, PacketUNSUBACK, 0, buf.Bytes())
}

// Decode reads the packet body from r.
func (p *UnsubackPacket) Decode(r io.Reader, header FixedHeader, version ProtocolVersion) (int, error) {
	id, n, err := decodeUint16(r)
	if err != nil {
		return n, err
	}
	p.PacketID = id

	if version == ProtocolV311 {
		return n, nil
	}

	pn, err := p.Props.Decode(r)
	n += pn
	if err != nil {
		return n, err
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

	return n, nil
}

// Validate checks the packet contents.
func (p *UnsubackPacket) Validate(version ProtocolVersion) error {
	if p.PacketID == 0 {
		return ErrProtocolViolation
	}
	if version == ProtocolV311 && (p.Props.Len() > 0 || len(p.ReasonCodes) > 0) {
		return ErrPropertiesNotSupported
	}
	return nil
}
