package mqttd

import (
	"bytes"
	"io"
)

// PropertyID represents an MQTT v5.0 property identifier.
type PropertyID byte

// Property identifiers as defined in the MQTT v5.0 specification.
const (
	PropPayloadFormatIndicator   PropertyID = 0x01
	PropMessageExpiryInterval    PropertyID = 0x02
	PropContentType              PropertyID = 0x03
	PropResponseTopic            PropertyID = 0x08
	PropCorrelationData          PropertyID = 0x09
	PropSubscriptionIdentifier   PropertyID = 0x0B
	PropSessionExpiryInterval    PropertyID = 0x11
	PropAssignedClientIdentifier PropertyID = 0x12
	PropServerKeepAlive          PropertyID = 0x13
	PropAuthenticationMethod     PropertyID = 0x15
	PropAuthenticationData       PropertyID = 0x16
	PropRequestProblemInfo       PropertyID = 0x17
	PropWillDelayInterval        PropertyID = 0x18
	PropRequestResponseInfo      PropertyID = 0x19
	PropResponseInformation      PropertyID = 0x1A
	PropServerReference          PropertyID = 0x1C
	PropReasonString             PropertyID = 0x1F
	PropReceiveMaximum           PropertyID = 0x21
	PropTopicAliasMaximum        PropertyID = 0x22
	PropTopicAlias               PropertyID = 0x23
	PropMaximumQoS               PropertyID = 0x24
	PropRetainAvailable          PropertyID = 0x25
	PropUserProperty             PropertyID = 0x26
	PropMaximumPacketSize        PropertyID = 0x27
	PropWildcardSubAvailable     PropertyID = 0x28
	PropSubscriptionIDAvailable  PropertyID = 0x29
	PropSharedSubAvailable       PropertyID = 0x2A
)

// PropertyType represents the wire type of a property value.
type PropertyType byte

const (
	PropTypeByte        PropertyType = 0
	PropTypeTwoByteInt  PropertyType = 1
	PropTypeFourByteInt PropertyType = 2
	PropTypeVarInt      PropertyType = 3
	PropTypeString      PropertyType = 4
	PropTypeBinary      PropertyType = 5
	PropTypeStringPair  PropertyType = 6
)

// propertyTypeMap is the static id → wire type table. Decoding an id
// absent from this table is a malformed packet.
var propertyTypeMap = map[PropertyID]PropertyType{
	PropPayloadFormatIndicator:   PropTypeByte,
	PropMessageExpiryInterval:    PropTypeFourByteInt,
	PropContentType:              PropTypeString,
	PropResponseTopic:            PropTypeString,
	PropCorrelationData:          PropTypeBinary,
	PropSubscriptionIdentifier:   PropTypeVarInt,
	PropSessionExpiryInterval:    PropTypeFourByteInt,
	PropAssignedClientIdentifier: PropTypeString,
	PropServerKeepAlive:          PropTypeTwoByteInt,
	PropAuthenticationMethod:     PropTypeString,
	PropAuthenticationData:       PropTypeBinary,
	PropRequestProblemInfo:       PropTypeByte,
	PropWillDelayInterval:        PropTypeFourByteInt,
	PropRequestResponseInfo:      PropTypeByte,
	PropResponseInformation:      PropTypeString,
	PropServerReference:          PropTypeString,
	PropReasonString:             PropTypeString,
	PropReceiveMaximum:           PropTypeTwoByteInt,
	PropTopicAliasMaximum:        PropTypeTwoByteInt,
	PropTopicAlias:               PropTypeTwoByteInt,
	PropMaximumQoS:               PropTypeByte,
	PropRetainAvailable:          PropTypeByte,
	PropUserProperty:             PropTypeStringPair,
	PropMaximumPacketSize:        PropTypeFourByteInt,
	PropWildcardSubAvailable:     PropTypeByte,
	PropSubscriptionIDAvailable:  PropTypeByte,
	PropSharedSubAvailable:       PropTypeByte,
}

// WireType returns the wire type for this property ID.
func (p PropertyID) WireType() (PropertyType, bool) {
	t, ok := propertyTypeMap[p]
	return t, ok
}

// Properties is an ordered collection of MQTT v5.0 properties. Only the
// user property may appear more than once.
type Properties struct {
	props []property
}

type property struct {
	id    PropertyID
	value any
}

// Len returns the number of properties in the collection.
func (p *Properties) Len() int {
	if p == nil {
		return 0
	}
	return len(p.props)
}

// Has returns true if a property with the given ID exists.
func (p *Properties) Has(id PropertyID) bool {
	if p == nil {
		return false
	}
	for _, prop := range p.props {
		if prop.id == id {
			return true
		}
	}
	return false
}

// Set replaces any existing property with the given ID.
func (p *Properties) Set(id PropertyID, value any) {
	for i, prop := range p.props {
		if prop.id == id {
			p.props[i].value = value
			return
		}
	}
	p.props = append(p.props, property{id: id, value: value})
}

// Add appends a property, allowing duplicates. Use for user properties.
func (p *Properties) Add(id PropertyID, value any) {
	p.props = append(p.props, property{id: id, value: value})
}

// Clear removes all properties.
func (p *Properties) Clear() {
	p.props = nil
}

// GetByte returns the byte value for the ID, or zero.
func (p *Properties) GetByte(id PropertyID) byte {
	if v, ok := p.get(id); ok {
		if b, ok := v.(byte); ok {
			return b
		}
	}
	return 0
}

// GetUint16 returns the uint16 value for the ID, or zero.
func (p *Properties) GetUint16(id PropertyID) uint16 {
	if v, ok := p.get(id); ok {
		if u, ok := v.(uint16); ok {
			return u
		}
	}
	return 0
}

// GetUint32 returns the uint32 value for the ID, or zero. Varint
// properties are also stored as uint32.
func (p *Properties) GetUint32(id PropertyID) uint32 {
	if v, ok := p.get(id); ok {
		if u, ok := v.(uint32); ok {
			return u
		}
	}
	return 0
}

// GetString returns the string value for the ID, or empty.
func (p *Properties) GetString(id PropertyID) string {
	if v, ok := p.get(id); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetBinary returns the binary value for the ID, or nil.
func (p *Properties) GetBinary(id PropertyID) []byte {
	if v, ok := p.get(id); ok {
		if b, ok := v.([]byte); ok {
			return b
		}
	}
	return nil
}

// GetAllStringPairs returns every value for a string-pair ID.
func (p *Properties) GetAllStringPairs(id PropertyID) []StringPair {
	if p == nil {
		return nil
	}
	var pairs []StringPair
	for _, prop := range p.props {
		if prop.id == id {
			if pair, ok := prop.value.(StringPair); ok {
				pairs = append(pairs, pair)
			}
		}
	}
	return pairs
}

// GetAllVarInts returns every varint value for the ID.
func (p *Properties) GetAllVarInts(id PropertyID) []uint32 {
	if p == nil {
		return nil
	}
	var values []uint32
	for _, prop := range p.props {
		if prop.id == id {
			if v, ok := prop.value.(uint32); ok {
				values = append(values, v)
			}
		}
	}
	return values
}

func (p *Properties) get(id PropertyID) (any, bool) {
	if p == nil {
		return nil, false
	}
	for _, prop := range p.props {
		if prop.id == id {
			return prop.value, true
		}
	}
	return nil, false
}

// Encode writes the properties length followed by each property to w.
func (p *Properties) Encode(w io.Writer) (int, error) {
	var body bytes.Buffer

	for _, prop := range p.props {
		if _, err := encodeByte(&body, byte(prop.id)); err != nil {
			return 0, err
		}
		if err := encodePropertyValue(&body, prop.id, prop.value); err != nil {
			return 0, err
		}
	}

	n, err := encodeVarint(w, uint32(body.Len()))
	if err != nil {
		return n, err
	}

	n2, err := w.Write(body.Bytes())
	return n + n2, err
}

// Decode reads the properties length and then properties until the
// declared length is exhausted exactly. A property straddling the boundary
// or an unknown identifier is a malformed packet.
func (p *Properties) Decode(r io.Reader) (int, error) {
	length, n, err := decodeVarint(r)
	if err != nil {
		return n, err
	}

	p.props = nil
	seen := make(map[PropertyID]bool)
	consumed := 0

	for consumed < int(length) {
		id, bn, err := decodeByte(r)
		consumed += bn
		if err != nil {
			return n + consumed, err
		}

		propID := PropertyID(id)
		wireType, ok := propID.WireType()
		if !ok {
			return n + consumed, ErrUnknownProperty
		}

		value, vn, err := decodePropertyValue(r, wireType)
		consumed += vn
		if err != nil {
			return n + consumed, err
		}

		// User properties always repeat; subscription identifiers repeat in
		// a delivered PUBLISH, one per matching subscription.
		if propID != PropUserProperty && propID != PropSubscriptionIdentifier {
			if seen[propID] {
				return n + consumed, ErrDuplicateProperty
			}
			seen[propID] = true
		}

		p.props = append(p.props, property{id: propID, value: value})
	}

	if consumed != int(length) {
		return n + consumed, ErrPropertyBoundary
	}

	return n + consumed, nil
}

// Size returns the encoded size including the length prefix.
func (p *Properties) Size() int {
	var body bytes.Buffer
	n, _ := p.Encode(&body)
	return n
}

func encodePropertyValue(w io.Writer, id PropertyID, value any) error {
	wireType, ok := id.WireType()
	if !ok {
		return ErrUnknownProperty
	}

	var err error
	switch wireType {
	case PropTypeByte:
		b, ok := value.(byte)
		if !ok {
			return ErrUnknownProperty
		}
		_, err = encodeByte(w, b)

	case PropTypeTwoByteInt:
		v, ok := value.(uint16)
		if !ok {
			return ErrUnknownProperty
		}
		_, err = encodeUint16(w, v)

	case PropTypeFourByteInt:
		v, ok := value.(uint32)
		if !ok {
			return ErrUnknownProperty
		}
		_, err = encodeUint32(w, v)

	case PropTypeVarInt:
		v, ok := value.(uint32)
		if !ok {
			return ErrUnknownProperty
		}
		_, err = encodeVarint(w, v)

	case PropTypeString:
		s, ok := value.(string)
		if !ok {
			return ErrUnknownProperty
		}
		_, err = encodeString(w, s)

	case PropTypeBinary:
		b, ok := value.([]byte)
		if !ok {
			return ErrUnknownProperty
		}
		_, err = encodeBinary(w, b)

	case PropTypeStringPair:
		pair, ok := value.(StringPair)
		if !ok {
			return ErrUnknownProperty
		}
		_, err = encodeStringPair(w, pair)
	}

	return err
}

func decodePropertyValue(r io.Reader, wireType PropertyType) (any, int, error) {
	switch wireType {
	case PropTypeByte:
		return decodeByteValue(r)
	case PropTypeTwoByteInt:
		v, n, err := decodeUint16(r)
		return v, n, err
	case PropTypeFourByteInt:
		v, n, err := decodeUint32(r)
		return v, n, err
	case PropTypeVarInt:
		v, n, err := decodeVarint(r)
		return v, n, err
	case PropTypeString:
		v, n, err := decodeString(r)
		return v, n, err
	case PropTypeBinary:
		v, n, err := decodeBinary(r)
		return v, n, err
	case PropTypeStringPair:
		v, n, err := decodeStringPair(r)
		return v, n, err
	default:
		return nil, 0, ErrUnknownProperty
	}
}

func decodeByteValue(r io.Reader) (any, int, error) {
	b, n, err := decodeByte(r)
	return b, n, err
}
