package icmp

import "fmt"

// ProtocolNumber is the IANA protocol number for ICMP.
const ProtocolNumber = 1

const (
	// HeaderLen is the fixed ICMP echo header length.
	HeaderLen = 8
	// TimestampLen is the length of the optional send timestamp.
	TimestampLen = 4
	// MaxPayload is the largest payload that fits a single IPv4 datagram
	// together with the IPv4, ICMP and timestamp headers.
	MaxPayload = 65535 - 20 - HeaderLen - TimestampLen
)

// Type is the ICMPv4 message type.
type Type uint8

const (
	TypeEchoReply      Type = 0
	TypeDestUnreach    Type = 3
	TypeSourceQuench   Type = 4
	TypeRedirect       Type = 5
	TypeEchoRequest    Type = 8
	TypeTimeExceeded   Type = 11
	TypeParamProblem   Type = 12
	TypeTimestamp      Type = 13
	TypeTimestampReply Type = 14
)

// String returns a human-readable name for the type.
func (t Type) String() string {
	switch t {
	case TypeEchoReply:
		return "echo-reply"
	case TypeDestUnreach:
		return "destination-unreachable"
	case TypeSourceQuench:
		return "source-quench"
	case TypeRedirect:
		return "redirect"
	case TypeEchoRequest:
		return "echo-request"
	case TypeTimeExceeded:
		return "time-exceeded"
	case TypeParamProblem:
		return "parameter-problem"
	case TypeTimestamp:
		return "timestamp"
	case TypeTimestampReply:
		return "timestamp-reply"
	default:
		return fmt.Sprintf("type-%d", uint8(t))
	}
}

// UnreachableCode is the code of a Destination Unreachable message.
type UnreachableCode uint8

// Destination Unreachable codes (RFC 792, RFC 1122, RFC 1812).
const (
	NetUnreachable UnreachableCode = iota
	HostUnreachable
	ProtocolUnreachable
	PortUnreachable
	FragmentationNeeded
	SourceRouteFailed
	NetUnknown
	HostUnknown
	SourceHostIsolated
	NetProhibited
	HostProhibited
	NetUnreachableForTOS
	HostUnreachableForTOS
	CommunicationProhibited
	HostPrecedenceViolation
	PrecedenceCutoff
)

var unreachableNames = [...]string{
	NetUnreachable:          "net unreachable",
	HostUnreachable:         "host unreachable",
	ProtocolUnreachable:     "protocol unreachable",
	PortUnreachable:         "port unreachable",
	FragmentationNeeded:     "fragmentation needed",
	SourceRouteFailed:       "source route failed",
	NetUnknown:              "destination net unknown",
	HostUnknown:             "destination host unknown",
	SourceHostIsolated:      "source host isolated",
	NetProhibited:           "net administratively prohibited",
	HostProhibited:          "host administratively prohibited",
	NetUnreachableForTOS:    "net unreachable for TOS",
	HostUnreachableForTOS:   "host unreachable for TOS",
	CommunicationProhibited: "communication administratively prohibited",
	HostPrecedenceViolation: "host precedence violation",
	PrecedenceCutoff:        "precedence cutoff in effect",
}

// String returns a human-readable name for the code.
func (c UnreachableCode) String() string {
	if int(c) < len(unreachableNames) {
		return unreachableNames[c]
	}
	return fmt.Sprintf("unreachable code %d", uint8(c))
}

// Time Exceeded codes.
const (
	CodeTTLExceeded        = 0
	CodeReassemblyExceeded = 1
)
