package mqttd

import (
	"bytes"
	"io"
)

// CONNECT protocol name for levels 4 and 5.
const protocolName = "MQTT"

// Connect flag bit positions.
const (
	connectFlagCleanStart   = 0x02
	connectFlagWillFlag     = 0x04
	connectFlagWillRetain   = 0x20
	connectFlagPasswordFlag = 0x40
	connectFlagUsernameFlag = 0x80
)

// ConnectPacket represents an MQTT CONNECT packet for either protocol
// version. Will fields are decoded for wire compatibility; this broker does
// not deliver will messages.
type ConnectPacket struct {
	// Version is the protocol level from the variable header. Set by
	// Decode; used by Encode in place of the version argument since the
	// CONNECT packet itself fixes the connection's version.
	Version ProtocolVersion

	// ClientID is the client identifier.
	ClientID string

	// CleanStart requests a fresh session (called Clean Session in 3.1.1).
	CleanStart bool

	// KeepAlive is the keep alive interval in seconds.
	KeepAlive uint16

	// Props contains the CONNECT properties (v5.0 only).
	Props Properties

	// Username and Password are the optional credentials.
	Username string
	Password []byte

	// Will message fields.
	WillFlag    bool
	WillRetain  bool
	WillQoS     byte
	WillTopic   string
	WillPayload []byte
	WillProps   Properties
}

// Type returns the packet type.
func (p *ConnectPacket) Type() PacketType {
	return PacketCONNECT
}

func (p *ConnectPacket) connectFlags() byte {
	var flags byte

	if p.CleanStart {
		flags |= connectFlagCleanStart
	}

	if p.WillFlag {
		flags |= connectFlagWillFlag
		flags |= (p.WillQoS & 0x03) << 3
		if p.WillRetain {
			flags |= connectFlagWillRetain
		}
	}

	if len(p.Password) > 0 {
		flags |= connectFlagPasswordFlag
	}

	if p.Username != "" {
		flags |= connectFlagUsernameFlag
	}

	return flags
}

func (p *ConnectPacket) setConnectFlags(flags byte) error {
	// Reserved bit must be 0.
	if flags&0x01 != 0 {
		return ErrInvalidPacketFlags
	}

	p.CleanStart = flags&connectFlagCleanStart != 0
	p.WillFlag = flags&connectFlagWillFlag != 0
	p.WillQoS = (flags >> 3) & 0x03
	p.WillRetain = flags&connectFlagWillRetain != 0

	if !p.WillFlag && (p.WillQoS != 0 || p.WillRetain) {
		return ErrInvalidPacketFlags
	}

	if p.WillQoS > 2 {
		return ErrInvalidPacketFlags
	}

	return nil
}

// Encode writes the packet to w. The packet's own Version field selects the
// wire format; the version argument is ignored.
func (p *ConnectPacket) Encode(w io.Writer, _ ProtocolVersion) (int, error) {
	version := p.Version
	if version == 0 {
		version = ProtocolV50
	}

	if err := p.Validate(version); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	if _, err := encodeString(&buf, protocolName); err != nil {
		return 0, err
	}
	buf.WriteByte(byte(version))
	buf.WriteByte(p.connectFlags())
	if _, err := encodeUint16(&buf, p.KeepAlive); err != nil {
		return 0, err
	}

	if _, err := encodeProps(&buf, &p.Props, version); err != nil {
		return 0, err
	}

	if _, err := encodeString(&buf, p.ClientID); err != nil {
		return 0, err
	}

	if p.WillFlag {
		if version == ProtocolV50 {
			if _, err := p.WillProps.Encode(&buf); err != nil {
				return 0, err
			}
		}
		if _, err := encodeString(&buf, p.WillTopic); err != nil {
			return 0, err
		}
		if _, err := encodeBinary(&buf, p.WillPayload); err != nil {
			return 0, err
		}
	}

	if p.Username != "" {
		if _, err := encodeString(&buf, p.Username); err != nil {
			return 0, err
		}
	}

	if len(p.Password) > 0 {
		if _, err := encodeBinary(&buf, p.Password); err != nil {
			return 0, err
		}
	}

	return encodeFramed(w, PacketCONNECT, 0, buf.Bytes())
}

// Decode reads the packet body from r. The protocol version is taken from
// the wire, not from the version argument.
func (p *ConnectPacket) Decode(r io.Reader, _ FixedHeader, _ ProtocolVersion) (int, error) {
	name, n, err := decodeString(r)
	if err != nil {
		return n, err
	}
	if name != protocolName {
		return n, ErrUnsupportedVersion
	}

	level, bn, err := decodeByte(r)
	n += bn
	if err != nil {
		return n, err
	}
	p.Version = ProtocolVersion(level)
	if !p.Version.Valid() {
		return n, ErrUnsupportedVersion
	}

	flags, bn, err := decodeByte(r)
	n += bn
	if err != nil {
		return n, err
	}
	if err := p.setConnectFlags(flags); err != nil {
		return n, err
	}
	hasUsername := flags&connectFlagUsernameFlag != 0
	hasPassword := flags&connectFlagPasswordFlag != 0

	p.KeepAlive, bn, err = decodeUint16(r)
	n += bn
	if err != nil {
		return n, err
	}

	if p.Version == ProtocolV50 {
		pn, err := p.Props.Decode(r)
		n += pn
		if err != nil {
			return n, err
		}
	}

	p.ClientID, bn, err = decodeString(r)
	n += bn
	if err != nil {
		return n, err
	}

	if p.WillFlag {
		if p.Version == ProtocolV50 {
			pn, err := p.WillProps.Decode(r)
			n += pn
			if err != nil {
				return n, err
			}
		}
		p.WillTopic, bn, err = decodeString(r)
		n += bn
		if err != nil {
			return n, err
		}
		p.WillPayload, bn, err = decodeBinary(r)
		n += bn
		if err != nil {
			return n, err
		}
	}

	if hasUsername {
		p.Username, bn, err = decodeString(r)
		n += bn
		if err != nil {
			return n, err
		}
	}

	if hasPassword {
		p.Password, bn, err = decodeBinary(r)
		n += bn
		if err != nil {
			return n, err
		}
	}

	return n, nil
}

// Validate checks the packet contents.
func (p *ConnectPacket) Validate(version ProtocolVersion) error {
	if p.WillQoS > 2 {
		return ErrInvalidPacketFlags
	}
	if p.WillFlag {
		if err := ValidateTopicName(p.WillTopic); err != nil {
			return err
		}
	}
	if version == ProtocolV311 && p.Props.Len() > 0 {
		return ErrPropertiesNotSupported
	}
	return nil
}

// SessionExpiryInterval returns the requested session expiry in seconds.
// On 3.1.1, CleanStart=false implies a session that lasts until the server
// discards it, reported here as SessionExpiryNever.
func (p *ConnectPacket) SessionExpiryInterval() uint32 {
	if p.Version == ProtocolV311 {
		if p.CleanStart {
			return 0
		}
		return SessionExpiryNever
	}
	return p.Props.GetUint32(PropSessionExpiryInterval)
}
