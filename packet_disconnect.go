package mqttd

import (
	"bytes"
	"io"
)

// DisconnectPacket represents an MQTT DISCONNECT packet. On 3.1.1 it has no
// body; the reason code and properties are v5.0 only.
type DisconnectPacket struct {
	// ReasonCode is the disconnect reason (v5.0 only on the wire).
	ReasonCode ReasonCode

	// Props contains the DISCONNECT properties (v5.0 only).
	Props Properties
}

// Type returns the packet type.
func (p *DisconnectPacket) Type() PacketType {
	return PacketDISCONNECT
}

// Encode writes the packet to w.
func (p *DisconnectPacket) Encode(w io.Writer, version ProtocolVersion) (int, error) {
	if err := p.Validate(version); err != nil {
		return 0, err
	}

	if version == ProtocolV311 {
		return encodeFramed(w, PacketDISCONNECT, 0, nil)
	}

	// The empty body implies reason 0x00 with no properties.
	if p.ReasonCode == ReasonSuccess && p.Props.Len() == 0 {
		return encodeFramed(w, PacketDISCONNECT, 0, nil)
	}

	var buf bytes.Buffer
	buf.WriteByte(byte(p.ReasonCode))
	if _, err := p.Props.Encode(&buf); err != nil {
		return 0, err
	}

	return encodeFramed(w, PacketDISCONNECT, 0, buf.Bytes())
}

// Decode reads the packet body from r.
func (p *DisconnectPacket) Decode(r io.Reader, header FixedHeader, version ProtocolVersion) (int, error) {
	p.ReasonCode = ReasonSuccess

	if version == ProtocolV311 {
		if header.RemainingLength != 0 {
			return 0, ErrTrailingBytes
		}
		return 0, nil
	}

	if header.RemainingLength == 0 {
		return 0, nil
	}

	code, n, err := decodeByte(r)
	if err != nil {
		return n, err
	}
	p.ReasonCode = ReasonCode(code)

	if header.RemainingLength <= 1 {
		return n, nil
	}

	pn, err := p.Props.Decode(r)
	n += pn
	return n, err
}

// Validate checks the packet contents.
func (p *DisconnectPacket) Validate(version ProtocolVersion) error {
	if version == ProtocolV311 && p.Props.Len() > 0 {
		return ErrPropertiesNotSupported
	}
	return nil
}
