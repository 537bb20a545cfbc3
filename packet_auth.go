package mqttd

import (
	"bytes"
	"io"
)

// AuthPacket represents an MQTT v5.0 AUTH packet, used for enhanced
// authentication exchanges. The packet type does not exist in 3.1.1.
type AuthPacket struct {
	// ReasonCode is 0x00 (success), 0x18 (continue) or 0x19 (re-auth).
	ReasonCode ReasonCode

	// Props carries the authentication method and data.
	Props Properties
}

// Type returns the packet type.
func (p *AuthPacket) Type() PacketType {
	return PacketAUTH
}

// Encode writes the packet to w.
func (p *AuthPacket) Encode(w io.Writer, version ProtocolVersion) (int, error) {
	if err := p.Validate(version); err != nil {
		return 0, err
	}

	if p.ReasonCode == ReasonSuccess && p.Props.Len() == 0 {
		return encodeFramed(w, PacketAUTH, 0, nil)
	}

	var buf bytes.Buffer
	buf.WriteByte(byte(p.ReasonCode))
	if _, err := p.Props.Encode(&buf); err != nil {
		return 0, err
	}

	return encodeFramed(w, PacketAUTH, 0, buf.Bytes())
}

// Decode reads the packet body from r.
func (p *AuthPacket) Decode(r io.Reader, header FixedHeader, version ProtocolVersion) (int, error) {
	if version != ProtocolV50 {
		return 0, ErrProtocolViolation
	}

	p.ReasonCode = ReasonSuccess
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
func (p *AuthPacket) Validate(version ProtocolVersion) error {
	if version != ProtocolV50 {
		return ErrProtocolViolation
	}
	switch p.ReasonCode {
	case ReasonSuccess, ReasonContinueAuth, ReasonReAuth:
		return nil
	default:
		return ErrProtocolViolation
	}
}
