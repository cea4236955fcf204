package icmp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"

	"golang.org/x/net/ipv4"
)

var (
	// ErrTooShort is returned when fewer bytes than an ICMP header remain
	// after the IP header.
	ErrTooShort = errors.New("message shorter than ICMP header")

	// ErrBadIPHeader is returned when the leading IPv4 header cannot be parsed.
	ErrBadIPHeader = errors.New("invalid IPv4 header")

	// ErrTruncatedQuote is returned when an ICMP error message does not carry
	// enough of the offending datagram to identify it.
	ErrTruncatedQuote = errors.New("truncated quoted datagram")

	// ErrUnrelatedQuote is returned when an ICMP error message quotes a
	// datagram that is not an ICMP echo request.
	ErrUnrelatedQuote = errors.New("quoted datagram is not an echo request")
)

// DecodeError describes a received datagram that could not be decoded.
type DecodeError struct {
	Len    int
	Reason error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode ICMP message (%d bytes): %v", e.Len, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Reason
}

// Request is an ICMP Echo Request.
type Request struct {
	ID  uint16
	Seq uint16

	// Timestamp is written after the header when HasTimestamp is set.
	Timestamp    uint32
	HasTimestamp bool

	Payload []byte
}

// Len returns the serialized length of the request.
func (r *Request) Len() int {
	n := HeaderLen + len(r.Payload)
	if r.HasTimestamp {
		n += TimestampLen
	}
	return n
}

// Marshal serializes the request and fills in its checksum.
func (r *Request) Marshal() []byte {
	b := make([]byte, r.Len())
	b[0] = byte(TypeEchoRequest)
	b[1] = 0
	binary.BigEndian.PutUint16(b[4:6], r.ID)
	binary.BigEndian.PutUint16(b[6:8], r.Seq)

	off := HeaderLen
	if r.HasTimestamp {
		binary.BigEndian.PutUint32(b[off:off+TimestampLen], r.Timestamp)
		off += TimestampLen
	}
	copy(b[off:], r.Payload)

	binary.BigEndian.PutUint16(b[2:4], Checksum(b))
	return b
}

// EncodeRequest serializes an Echo Request without a timestamp.
func EncodeRequest(id, seq uint16, payload []byte) []byte {
	r := Request{ID: id, Seq: seq, Payload: payload}
	return r.Marshal()
}

// FillPayload returns size bytes repeating pattern. An empty pattern yields
// zero bytes.
func FillPayload(size int, pattern []byte) []byte {
	b := make([]byte, size)
	if len(pattern) == 0 {
		return b
	}
	for i := range b {
		b[i] = pattern[i%len(pattern)]
	}
	return b
}

// EchoReply is a decoded ICMP message received in response to a request.
//
// For echo replies, ID and Seq come from the message itself. For error
// messages (see Type.Quotes) they come from the quoted echo request and
// OriginalDst holds the destination of the quoted datagram.
type EchoReply struct {
	Type     Type
	Code     uint8
	Checksum uint16
	ID       uint16
	Seq      uint16

	// Timestamp holds the first four bytes of echo data. It is only
	// meaningful when the request carried a timestamp.
	Timestamp    uint32
	HasTimestamp bool

	// Payload is the echo data following the header, timestamp included.
	Payload []byte

	Src         netip.Addr
	OriginalDst netip.Addr
	TTL         int

	// HeaderLen is the number of IP header bytes skipped before the message.
	HeaderLen int
	// Len is the length of the ICMP message.
	Len int
}

// Quotes reports whether messages of this type quote the offending datagram.
func (t Type) Quotes() bool {
	switch t {
	case TypeDestUnreach, TypeSourceQuench, TypeRedirect, TypeTimeExceeded, TypeParamProblem:
		return true
	default:
		return false
	}
}

// IPv4HeaderLen returns the length of the IPv4 header at the start of b as
// encoded in its IHL field.
func IPv4HeaderLen(b []byte) (int, error) {
	h, err := ipv4.ParseHeader(b)
	if err != nil {
		return 0, &DecodeError{Len: len(b), Reason: fmt.Errorf("%w: %v", ErrBadIPHeader, err)}
	}
	if h.Version != ipv4.Version {
		return 0, &DecodeError{Len: len(b), Reason: fmt.Errorf("%w: version %d", ErrBadIPHeader, h.Version)}
	}
	if h.Len < ipv4.HeaderLen {
		return 0, &DecodeError{Len: len(b), Reason: fmt.Errorf("%w: header length %d", ErrBadIPHeader, h.Len)}
	}
	return h.Len, nil
}

// DecodeReply decodes the ICMP message in b after skipping ipHeaderLen bytes.
// The checksum is not verified.
func DecodeReply(b []byte, ipHeaderLen int) (*EchoReply, error) {
	if ipHeaderLen < 0 || ipHeaderLen > len(b) {
		return nil, &DecodeError{Len: len(b), Reason: ErrTooShort}
	}
	m := b[ipHeaderLen:]
	if len(m) < HeaderLen {
		return nil, &DecodeError{Len: len(b), Reason: ErrTooShort}
	}

	r := &EchoReply{
		Type:      Type(m[0]),
		Code:      m[1],
		Checksum:  binary.BigEndian.Uint16(m[2:4]),
		HeaderLen: ipHeaderLen,
		Len:       len(m),
	}

	if r.Type.Quotes() {
		if err := r.decodeQuote(m[HeaderLen:]); err != nil {
			return nil, &DecodeError{Len: len(b), Reason: err}
		}
		return r, nil
	}

	r.ID = binary.BigEndian.Uint16(m[4:6])
	r.Seq = binary.BigEndian.Uint16(m[6:8])
	r.Payload = m[HeaderLen:]
	if len(r.Payload) >= TimestampLen {
		r.Timestamp = binary.BigEndian.Uint32(r.Payload[:TimestampLen])
		r.HasTimestamp = true
	}
	return r, nil
}

// decodeQuote extracts the identifier and sequence of the echo request quoted
// by an ICMP error message. The quote holds the original IPv4 header followed
// by at least the first 8 bytes of its payload.
func (r *EchoReply) decodeQuote(q []byte) error {
	h, err := ipv4.ParseHeader(q)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTruncatedQuote, err)
	}
	if h.Len < ipv4.HeaderLen {
		return fmt.Errorf("%w: quoted header length %d", ErrTruncatedQuote, h.Len)
	}
	if h.Protocol != ProtocolNumber {
		return fmt.Errorf("%w: protocol %d", ErrUnrelatedQuote, h.Protocol)
	}
	inner := q[h.Len:]
	if len(inner) < HeaderLen {
		return ErrTruncatedQuote
	}
	if Type(inner[0]) != TypeEchoRequest {
		return fmt.Errorf("%w: %s", ErrUnrelatedQuote, Type(inner[0]))
	}

	r.ID = binary.BigEndian.Uint16(inner[4:6])
	r.Seq = binary.BigEndian.Uint16(inner[6:8])
	if dst, ok := netip.AddrFromSlice(h.Dst.To4()); ok {
		r.OriginalDst = dst
	}
	return nil
}
