package ping

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/postalsys/muti-ping/internal/icmp"
)

var (
	testDst    = netip.MustParseAddr("192.0.2.1")
	testRouter = netip.MustParseAddr("198.51.100.254")
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// step is one scripted result of Receive.
type step struct {
	data           []byte
	headerIncluded bool
	from           netip.Addr
	ttl            int
	err            error
	after          time.Duration
	// wait holds the datagram back in real time before delivering it.
	wait time.Duration
}

// stubChannel is a scripted icmp.Channel. Every successful Send appends the
// steps returned by respond; Receive pops them in order and otherwise blocks
// until the deadline or cancellation.
type stubChannel struct {
	mu       sync.Mutex
	clock    *fakeClock
	respond  func(req []byte) []step
	sendErr  func(attempt int) error
	bound    uint16
	hasBound bool

	attempts int
	sent     [][]byte
	pending  []step
	closed   int
}

func (c *stubChannel) Send(b []byte, dst netip.Addr) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.attempts++
	if c.sendErr != nil {
		if err := c.sendErr(c.attempts); err != nil {
			return err
		}
	}
	c.sent = append(c.sent, bytes.Clone(b))
	if c.respond != nil {
		c.pending = append(c.pending, c.respond(b)...)
	}
	return nil
}

func (c *stubChannel) Receive(ctx context.Context, deadline time.Time) (icmp.Datagram, error) {
	if err := ctx.Err(); err != nil {
		return icmp.Datagram{}, err
	}

	c.mu.Lock()
	if c.closed > 0 {
		c.mu.Unlock()
		return icmp.Datagram{}, icmp.ErrClosed
	}
	if len(c.pending) > 0 {
		st := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()

		if c.clock != nil {
			c.clock.Advance(st.after)
		}
		if st.wait > 0 {
			time.Sleep(st.wait)
		}
		if st.err != nil {
			return icmp.Datagram{}, st.err
		}
		return icmp.Datagram{
			Data:           st.data,
			HeaderIncluded: st.headerIncluded,
			Src:            st.from,
			TTL:            st.ttl,
			Received:       time.Now(),
		}, nil
	}
	c.mu.Unlock()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return icmp.Datagram{}, ctx.Err()
	case <-timer.C:
		return icmp.Datagram{}, icmp.ErrTimeout
	}
}

func (c *stubChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *stubChannel) BoundIdentifier() (uint16, bool) {
	return c.bound, c.hasBound
}

func (c *stubChannel) sentRequests() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

func (c *stubChannel) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func reqSeq(req []byte) uint16 {
	return binary.BigEndian.Uint16(req[6:8])
}

func reqID(req []byte) uint16 {
	return binary.BigEndian.Uint16(req[4:6])
}

// echoReply turns an encoded request into the matching reply.
func echoReply(req []byte) []byte {
	b := bytes.Clone(req)
	b[0] = byte(icmp.TypeEchoReply)
	b[2], b[3] = 0, 0
	binary.BigEndian.PutUint16(b[2:4], icmp.Checksum(b))
	return b
}

// withIPHeader prepends an IPv4 header carrying options.
func withIPHeader(t *testing.T, src netip.Addr, options, msg []byte) []byte {
	t.Helper()
	h := &ipv4.Header{
		Version:  ipv4.Version,
		Len:      ipv4.HeaderLen + len(options),
		TotalLen: ipv4.HeaderLen + len(options) + len(msg),
		TTL:      57,
		Protocol: icmp.ProtocolNumber,
		Src:      net.IP(src.AsSlice()),
		Dst:      net.IPv4(10, 0, 0, 2),
		Options:  options,
	}
	hb, err := h.Marshal()
	if err != nil {
		t.Fatalf("marshal IPv4 header: %v", err)
	}
	return append(hb, msg...)
}

// errorReply builds an ICMP error message quoting req as sent to dst.
func errorReply(t *testing.T, req []byte, typ icmp.Type, code uint8, dst netip.Addr) []byte {
	t.Helper()
	h := &ipv4.Header{
		Version:  ipv4.Version,
		Len:      ipv4.HeaderLen,
		TotalLen: ipv4.HeaderLen + len(req),
		TTL:      1,
		Protocol: icmp.ProtocolNumber,
		Src:      net.IPv4(10, 0, 0, 2),
		Dst:      net.IP(dst.AsSlice()),
	}
	hb, err := h.Marshal()
	if err != nil {
		t.Fatalf("marshal quoted header: %v", err)
	}

	m := make([]byte, icmp.HeaderLen)
	m[0] = byte(typ)
	m[1] = code
	m = append(m, hb...)
	m = append(m, req[:8]...)
	binary.BigEndian.PutUint16(m[2:4], icmp.Checksum(m))
	return m
}

// replyAll answers every request after delay.
func replyAll(delay time.Duration) func([]byte) []step {
	return func(req []byte) []step {
		return []step{{data: echoReply(req), from: testDst, ttl: 57, after: delay}}
	}
}

func testConfig() Config {
	cfg := DefaultConfig(testDst)
	cfg.Identifier = 0x1234
	cfg.Interval = 0
	cfg.Timeout = time.Second
	cfg.Count = 3
	return cfg
}

func collect(t *testing.T, s *Session) []Outcome {
	t.Helper()
	var out []Outcome
	for o := range s.Probes(context.Background()) {
		out = append(out, o)
	}
	return out
}
