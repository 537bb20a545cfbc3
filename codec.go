package mqttd

import "io"

// ReadPacket reads one complete MQTT packet from r.
//
// version is the connection's negotiated protocol version. It may be zero
// only while the connection is awaiting its CONNECT packet; in that state
// any other packet type is a protocol violation.
//
// If maxSize is greater than 0, packets with a larger remaining length
// return ErrPacketTooLarge before the body is read.
func ReadPacket(r io.Reader, version ProtocolVersion, maxSize uint32) (Packet, int, error) {
	var header FixedHeader
	n, err := header.Decode(r)
	if err != nil {
		return nil, n, err
	}

	if err := header.ValidateFlags(); err != nil {
		return nil, n, err
	}

	if maxSize > 0 && header.RemainingLength > maxSize {
		return nil, n, ErrPacketTooLarge
	}

	packet, err := newPacket(header.PacketType)
	if err != nil {
		return nil, n, err
	}

	if header.PacketType != PacketCONNECT && !version.Valid() {
		return nil, n, ErrProtocolViolation
	}

	body := make([]byte, header.RemainingLength)
	if header.RemainingLength > 0 {
		bn, err := io.ReadFull(r, body)
		n += bn
		if err != nil {
			return nil, n, truncated(err)
		}
	}

	reader := newBytesReader(body)
	consumed, err := packet.Decode(reader, header, version)
	if err != nil {
		return nil, n, err
	}
	if consumed != int(header.RemainingLength) {
		return nil, n, ErrTrailingBytes
	}

	return packet, n, nil
}

// WritePacket writes one complete MQTT packet to w using the connection's
// negotiated protocol version. If maxSize is greater than 0, packets that
// encode larger than maxSize return ErrPacketTooLarge without writing.
func WritePacket(w io.Writer, packet Packet, version ProtocolVersion, maxSize uint32) (int, error) {
	if err := packet.Validate(version); err != nil {
		return 0, err
	}

	if maxSize > 0 {
		var buf bytesBuffer
		n, err := packet.Encode(&buf, version)
		if err != nil {
			return 0, err
		}
		if uint32(n) > maxSize {
			return 0, ErrPacketTooLarge
		}
		return w.Write(buf.Bytes())
	}

	return packet.Encode(w, version)
}

func newPacket(packetType PacketType) (Packet, error) {
	switch packetType {
	case PacketCONNECT:
		return &ConnectPacket{}, nil
	case PacketCONNACK:
		return &ConnackPacket{}, nil
	case PacketPUBLISH:
		return &PublishPacket{}, nil
	case PacketPUBACK:
		return &PubackPacket{}, nil
	case PacketPUBREC:
		return &PubrecPacket{}, nil
	case PacketPUBREL:
		return &PubrelPacket{}, nil
	case PacketPUBCOMP:
		return &PubcompPacket{}, nil
	case PacketSUBSCRIBE:
		return &SubscribePacket{}, nil
	case PacketSUBACK:
		return &SubackPacket{}, nil
	case PacketUNSUBSCRIBE:
		return &UnsubscribePacket{}, nil
	case PacketUNSUBACK:
		return &UnsubackPacket{}, nil
	case PacketPINGREQ:
		return &PingreqPacket{}, nil
	case PacketPINGRESP:
		return &PingrespPacket{}, nil
	case PacketDISCONNECT:
		return &DisconnectPacket{}, nil
	case PacketAUTH:
		return &AuthPacket{}, nil
	default:
		return nil, ErrInvalidPacketType
	}
}

// bytesReader wraps a byte slice for the io.Reader interface.
type bytesReader struct {
	data []byte
	pos  int
}

func newBytesReader(data []byte) *bytesReader {
	return &bytesReader{data: data}
}

func (r *bytesReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

// bytesBuffer is a minimal write buffer for size-checked encoding.
type bytesBuffer struct {
	data []byte
}

func (b *bytesBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *bytesBuffer) Bytes() []byte {
	return b.data
}
