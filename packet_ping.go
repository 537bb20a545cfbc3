package mqttd

import "io"

// PingreqPacket represents an MQTT PINGREQ packet. It has no body.
type PingreqPacket struct{}

// Type returns the packet type.
func (p *PingreqPacket) Type() PacketType { return PacketPINGREQ }

// Encode writes the packet to w.
func (p *PingreqPacket) Encode(w io.Writer, _ ProtocolVersion) (int, error) {
	return encodeFramed(w, PacketPINGREQ, 0, nil)
}

// Decode reads the packet body from r.
func (p *PingreqPacket) Decode(_ io.Reader, header FixedHeader, _ ProtocolVersion) (int, error) {
	if header.RemainingLength != 0 {
		return 0, ErrTrailingBytes
	}
	return 0, nil
}

// Validate checks the packet contents.
func (p *PingreqPacket) Validate(_ ProtocolVersion) error { return nil }

// PingrespPacket represents an MQTT PINGRESP packet. It has no body.
type PingrespPacket struct{}

// Type returns the packet type.
func (p *PingrespPacket) Type() PacketType { return PacketPINGRESP }

// Encode writes the packet to w.
func (p *PingrespPacket) Encode(w io.Writer, _ ProtocolVersion) (int, error) {
	return encodeFramed(w, PacketPINGRESP, 0, nil)
}

// Decode reads the packet body from r.
func (p *PingrespPacket) Decode(_ io.Reader, header FixedHeader, _ ProtocolVersion) (int, error) {
	if header.RemainingLength != 0 {
		return 0, ErrTrailingBytes
	}
	return 0, nil
}

// Validate checks the packet contents.
func (p *PingrespPacket) Validate(_ ProtocolVersion) error { return nil }
