package mqttd

import (
	"bytes"
	"io"
)

// ackBody is the shared representation of PUBACK, PUBREC, PUBREL and
// PUBCOMP: a packet identifier plus, on v5.0, an optional reason code and
// properties. On 3.1.1 only the packet identifier is on the wire.
type ackBody struct {
	PacketID   uint16
	ReasonCode ReasonCode
	Props      Properties
}

func (a *ackBody) encode(w io.Writer, packetType PacketType, flags byte, version ProtocolVersion) (int, error) {
	var buf bytes.Buffer

	if _, err := encodeUint16(&buf, a.PacketID); err != nil {
		return 0, err
	}

	if version == ProtocolV50 {
		// The 2-byte form implies reason 0x00 with no properties.
		if a.ReasonCode != ReasonSuccess || a.Props.Len() > 0 {
			buf.WriteByte(byte(a.ReasonCode))
			if _, err := a.Props.Encode(&buf); err != nil {
				return 0, err
			}
		}
	} else if a.Props.Len() > 0 {
		return 0, ErrPropertiesNotSupported
	}

	return encodeFramed(w, packetType, flags, buf.Bytes())
}

func (a *ackBody) decode(r io.Reader, header FixedHeader, version ProtocolVersion) (int, error) {
	id, n, err := decodeUint16(r)
	if err != nil {
		return n, err
	}
	a.PacketID = id
	a.ReasonCode = ReasonSuccess

	if version == ProtocolV311 || header.RemainingLength <= 2 {
		return n, nil
	}

	code, bn, err := decodeByte(r)
	n += bn
	if err != nil {
		return n, err
	}
	a.ReasonCode = ReasonCode(code)

	if header.RemainingLength <= 3 {
		return n, nil
	}

	pn, err := a.Props.Decode(r)
	n += pn
	return n, err
}

func (a *ackBody) validate(version ProtocolVersion) error {
	if a.PacketID == 0 {
		return ErrProtocolViolation
	}
	if version == ProtocolV311 && a.Props.Len() > 0 {
		return ErrPropertiesNotSupported
	}
	return nil
}

// PubackPacket acknowledges a QoS 1 PUBLISH.
type PubackPacket struct {
	ackBody
}

// Type returns the packet type.
func (p *PubackPacket) Type() PacketType { return PacketPUBACK }

// Encode writes the packet to w.
func (p *PubackPacket) Encode(w io.Writer, version ProtocolVersion) (int, error) {
	if err := p.Validate(version); err != nil {
		return 0, err
	}
	return p.encode(w, PacketPUBACK, 0, version)
}

// Decode reads the packet body from r.
func (p *PubackPacket) Decode(r io.Reader, header FixedHeader, version ProtocolVersion) (int, error) {
	return p.decode(r, header, version)
}

// Validate checks the packet contents.
func (p *PubackPacket) Validate(version ProtocolVersion) error {
	return p.validate(version)
}

// PubrecPacket is the first acknowledgment of a QoS 2 PUBLISH.
type PubrecPacket struct {
	ackBody
}

// Type returns the packet type.
func (p *PubrecPacket) Type() PacketType { return PacketPUBREC }

// Encode writes the packet to w.
func (p *PubrecPacket) Encode(w io.Writer, version ProtocolVersion) (int, error) {
	if err := p.Validate(version); err != nil {
		return 0, err
	}
	return p.encode(w, PacketPUBREC, 0, version)
}

// Decode reads the packet body from r.
func (p *PubrecPacket) Decode(r io.Reader, header FixedHeader, version ProtocolVersion) (int, error) {
	return p.decode(r, header, version)
}

// Validate checks the packet contents.
func (p *PubrecPacket) Validate(version ProtocolVersion) error {
	return p.validate(version)
}

// PubrelPacket is the second step of the QoS 2 flow. Its fixed header
// flags must be 0x02.
type PubrelPacket struct {
	ackBody
}

// Type returns the packet type.
func (p *PubrelPacket) Type() PacketType { return PacketPUBREL }

// Encode writes the packet to w.
func (p *PubrelPacket) Encode(w io.Writer, version ProtocolVersion) (int, error) {
	if err := p.Validate(version); err != nil {
		return 0, err
	}
	return p.encode(w, PacketPUBREL, 0x02, version)
}

// Decode reads the packet body from r.
func (p *PubrelPacket) Decode(r io.Reader, header FixedHeader, version ProtocolVersion) (int, error) {
	return p.decode(r, header, version)
}

// Validate checks the packet contents.
func (p *PubrelPacket) Validate(version ProtocolVersion) error {
	return p.validate(version)
}

// PubcompPacket completes the QoS 2 flow.
type PubcompPacket struct {
	ackBody
}

// Type returns the packet type.
func (p *PubcompPacket) Type() PacketType { return PacketPUBCOMP }

// Encode writes the packet to w.
func (p *PubcompPacket) Encode(w io.Writer, version ProtocolVersion) (int, error) {
	if err := p.Validate(version); err != nil {
		return 0, err
	}
	return p.encode(w, PacketPUBCOMP, 0, version)
}

// Decode reads the packet body from r.
func (p *PubcompPacket) Decode(r io.Reader, header FixedHeader, version ProtocolVersion) (int, error) {
	return p.decode(r, header, version)
}

// Validate checks the packet contents.
func (p *PubcompPacket) Validate(version ProtocolVersion) error {
	return p.validate(version)
}
