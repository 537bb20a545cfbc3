package mqttd

// ReasonCode is an MQTT v5.0 reason code. On a 3.1.1 connection the codec
// maps CONNACK reason codes to the legacy return codes and omits reason
// codes from all other acknowledgments.
type ReasonCode byte

// Reason codes as defined in the MQTT v5.0 specification.
const (
	ReasonSuccess                    ReasonCode = 0x00
	ReasonGrantedQoS1                ReasonCode = 0x01
	ReasonGrantedQoS2                ReasonCode = 0x02
	ReasonNoMatchingSubscribers      ReasonCode = 0x10
	ReasonNoSubscriptionExisted      ReasonCode = 0x11
	ReasonContinueAuth               ReasonCode = 0x18
	ReasonReAuth                     ReasonCode = 0x19
	ReasonUnspecifiedError           ReasonCode = 0x80
	ReasonMalformedPacket            ReasonCode = 0x81
	ReasonProtocolError              ReasonCode = 0x82
	ReasonImplSpecificError          ReasonCode = 0x83
	ReasonUnsupportedProtocolVersion ReasonCode = 0x84
	ReasonClientIDNotValid           ReasonCode = 0x85
	ReasonBadUserNameOrPassword      ReasonCode = 0x86
	ReasonNotAuthorized              ReasonCode = 0x87
	ReasonServerUnavailable          ReasonCode = 0x88
	ReasonServerBusy                 ReasonCode = 0x89
	ReasonServerShuttingDown         ReasonCode = 0x8B
	ReasonKeepAliveTimeout           ReasonCode = 0x8D
	ReasonSessionTakenOver           ReasonCode = 0x8E
	ReasonTopicFilterInvalid         ReasonCode = 0x8F
	ReasonTopicNameInvalid           ReasonCode = 0x90
	ReasonPacketIDInUse              ReasonCode = 0x91
	ReasonPacketIDNotFound           ReasonCode = 0x92
	ReasonTopicAliasInvalid          ReasonCode = 0x94
	ReasonPacketTooLarge             ReasonCode = 0x95
	ReasonMessageRateTooHigh         ReasonCode = 0x96
	ReasonQuotaExceeded              ReasonCode = 0x97
	ReasonAdminAction                ReasonCode = 0x98
	ReasonQoSNotSupported            ReasonCode = 0x9B
	ReasonSharedSubsNotSupported     ReasonCode = 0x9E
	ReasonSubIDsNotSupported         ReasonCode = 0xA1
	ReasonWildcardSubsNotSupported   ReasonCode = 0xA2
)

// IsError returns true for codes at or above 0x80.
func (r ReasonCode) IsError() bool {
	return r >= 0x80
}

// IsSuccess returns true for codes below 0x80.
func (r ReasonCode) IsSuccess() bool {
	return r < 0x80
}

// String returns a short description of the reason code.
func (r ReasonCode) String() string {
	switch r {
	case ReasonSuccess:
		return "success"
	case ReasonGrantedQoS1:
		return "granted QoS 1"
	case ReasonGrantedQoS2:
		return "granted QoS 2"
	case ReasonNoMatchingSubscribers:
		return "no matching subscribers"
	case ReasonNoSubscriptionExisted:
		return "no subscription existed"
	case ReasonUnspecifiedError:
		return "unspecified error"
	case ReasonMalformedPacket:
		return "malformed packet"
	case ReasonProtocolError:
		return "protocol error"
	case ReasonUnsupportedProtocolVersion:
		return "unsupported protocol version"
	case ReasonClientIDNotValid:
		return "client identifier not valid"
	case ReasonBadUserNameOrPassword:
		return "bad user name or password"
	case ReasonNotAuthorized:
		return "not authorized"
	case ReasonServerShuttingDown:
		return "server shutting down"
	case ReasonKeepAliveTimeout:
		return "keep alive timeout"
	case ReasonSessionTakenOver:
		return "session taken over"
	case ReasonTopicFilterInvalid:
		return "topic filter invalid"
	case ReasonTopicNameInvalid:
		return "topic name invalid"
	case ReasonTopicAliasInvalid:
		return "topic alias invalid"
	case ReasonPacketTooLarge:
		return "packet too large"
	case ReasonMessageRateTooHigh:
		return "message rate too high"
	case ReasonQuotaExceeded:
		return "quota exceeded"
	case ReasonAdminAction:
		return "administrative action"
	default:
		return "unknown"
	}
}

// MQTT 3.1.1 CONNACK return codes.
const (
	connackAccepted           byte = 0x00
	connackBadProtocolVersion byte = 0x01
	connackIDRejected         byte = 0x02
	connackServerUnavailable  byte = 0x03
	connackBadCredentials     byte = 0x04
	connackNotAuthorized      byte = 0x05
)

// v311ReturnCode maps a v5.0 CONNACK reason code to the closest 3.1.1
// return code.
func v311ReturnCode(r ReasonCode) byte {
	switch r {
	case ReasonSuccess:
		return connackAccepted
	case ReasonUnsupportedProtocolVersion:
		return connackBadProtocolVersion
	case ReasonClientIDNotValid:
		return connackIDRejected
	case ReasonServerUnavailable, ReasonServerBusy, ReasonServerShuttingDown:
		return connackServerUnavailable
	case ReasonBadUserNameOrPassword:
		return connackBadCredentials
	case ReasonNotAuthorized:
		return connackNotAuthorized
	default:
		return connackServerUnavailable
	}
}

// reasonFromV311ReturnCode maps a 3.1.1 CONNACK return code back to a v5.0
// reason code.
func reasonFromV311ReturnCode(code byte) ReasonCode {
	switch code {
	case connackAccepted:
		return ReasonSuccess
	case connackBadProtocolVersion:
		return ReasonUnsupportedProtocolVersion
	case connackIDRejected:
		return ReasonClientIDNotValid
	case connackServerUnavailable:
		return ReasonServerUnavailable
	case connackBadCredentials:
		return ReasonBadUserNameOrPassword
	case connackNotAuthorized:
		return ReasonNotAuthorized
	default:
		return ReasonUnspecifiedError
	}
}
