package ping

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/postalsys/muti-ping/internal/icmp"
)

// Status classifies the outcome of a probe.
type Status int

const (
	// StatusSuccess means an Echo Reply was received.
	StatusSuccess Status = iota
	// StatusTimeout means nothing matched within the timeout.
	StatusTimeout
	// StatusUnreachable means a Destination Unreachable message was received.
	StatusUnreachable
	// StatusTTLExpired means a Time Exceeded message was received.
	StatusTTLExpired
	// StatusOtherICMP means another ICMP error quoting the request was received.
	StatusOtherICMP
	// StatusTransportError means the request could not be sent or the
	// channel failed while waiting.
	StatusTransportError

	numStatuses
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusTimeout:
		return "timeout"
	case StatusUnreachable:
		return "unreachable"
	case StatusTTLExpired:
		return "ttl-expired"
	case StatusOtherICMP:
		return "other-icmp"
	case StatusTransportError:
		return "transport-error"
	default:
		return "unknown"
	}
}

// Outcome is the result of a single probe.
type Outcome struct {
	// Seq is the probe number, starting at 1. The wire sequence number is
	// its low 16 bits.
	Seq    int
	Status Status

	// Sent is when the request was handed to the channel. Transmitted is
	// false when that failed.
	Sent        time.Time
	Transmitted bool

	// Matched is when the matching message arrived. Zero when nothing matched.
	Matched time.Time

	RTT    time.Duration
	HasRTT bool

	// Type and Code of the matching message.
	Type icmp.Type
	Code uint8

	// From is the source of the matching message. For error messages this
	// is the router that reported the problem.
	From netip.Addr
	TTL  int

	// Bytes is the echo payload length of a reply, or the message length
	// of an error.
	Bytes int

	// Err holds the transport error for StatusTransportError.
	Err error
}

// UnreachableCode returns the code of a StatusUnreachable outcome.
func (o Outcome) UnreachableCode() icmp.UnreachableCode {
	return icmp.UnreachableCode(o.Code)
}

// String formats the outcome as a single report line.
func (o Outcome) String() string {
	switch o.Status {
	case StatusSuccess:
		return fmt.Sprintf("Reply from %s: seq=%d bytes=%d time=%s TTL=%d",
			o.From, o.Seq, o.Bytes, formatRTT(o.RTT), o.TTL)
	case StatusTimeout:
		return fmt.Sprintf("Request timed out: seq=%d", o.Seq)
	case StatusUnreachable:
		return fmt.Sprintf("Reply from %s: seq=%d destination %s", o.From, o.Seq, o.UnreachableCode())
	case StatusTTLExpired:
		return fmt.Sprintf("Reply from %s: seq=%d TTL expired in transit", o.From, o.Seq)
	case StatusOtherICMP:
		return fmt.Sprintf("Reply from %s: seq=%d %s code %d", o.From, o.Seq, o.Type, o.Code)
	case StatusTransportError:
		return fmt.Sprintf("Transmit failed: seq=%d: %v", o.Seq, o.Err)
	default:
		return fmt.Sprintf("seq=%d %s", o.Seq, o.Status)
	}
}

func formatRTT(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fms", float64(d)/float64(time.Millisecond))
	}
	return d.Round(10 * time.Microsecond).String()
}
