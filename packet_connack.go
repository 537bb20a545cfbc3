package mqttd

import (
	"bytes"
	"io"
)

// ConnackPacket represents an MQTT CONNACK packet. On 3.1.1 the reason code
// is mapped to the legacy connect return code.
type ConnackPacket struct {
	// SessionPresent indicates a session was resumed for the client.
	SessionPresent bool

	// ReasonCode is the connect result.
	ReasonCode ReasonCode

	// Props contains the CONNACK properties (v5.0 only).
	Props Properties
}

// Type returns the packet type.
func (p *ConnackPacket) Type() PacketType {
	return PacketCONNACK
}

// Encode writes the packet to w.
func (p *ConnackPacket) Encode(w io.Writer, version ProtocolVersion) (int, error) {
	if err := p.Validate(version); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	var ackFlags byte
	if p.SessionPresent {
		ackFlags = 0x01
	}
	buf.WriteByte(ackFlags)

	if version == ProtocolV311 {
		buf.WriteByte(v311ReturnCode(p.ReasonCode))
	} else {
		buf.WriteByte(byte(p.ReasonCode))
		if _, err := p.Props.Encode(&buf); err != nil {
			return 0, err
		}
	}

	return encodeFramed(w, PacketCONNACK, 0, buf.Bytes())
}

// Decode reads the packet body from r.
func (p *ConnackPacket) Decode(r io.Reader, _ FixedHeader, version ProtocolVersion) (int, error) {
	ackFlags, n, err := decodeByte(r)
	if err != nil {
		return n, err
	}
	if ackFlags&0xFE != 0 {
		return n, ErrInvalidPacketFlags
	}
	p.SessionPresent = ackFlags&0x01 != 0

	code, bn, err := decodeByte(r)
	n += bn
	if err != nil {
		return n, err
	}

	if version == ProtocolV311 {
		p.ReasonCode = reasonFromV311ReturnCode(code)
		return n, nil
	}

	p.ReasonCode = ReasonCode(code)
	pn, err := p.Props.Decode(r)
	n += pn
	return n, err
}

// Validate checks the packet contents.
func (p *ConnackPacket) Validate(version ProtocolVersion) error {
	if version == ProtocolV311 && p.Props.Len() > 0 {
		return ErrPropertiesNotSupported
	}
	return nil
}
