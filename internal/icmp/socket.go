package icmp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

const (
	// maxDatagram is large enough for any IPv4 datagram.
	maxDatagram = 65535

	// sendRetries bounds retries of a send that failed with ENOBUFS.
	sendRetries = 6
)

var (
	// ErrTimeout is returned by Receive when the deadline passes without a
	// datagram.
	ErrTimeout = errors.New("timeout waiting for ICMP message")

	// ErrClosed is returned when the channel has been closed.
	ErrClosed = errors.New("channel closed")

	// ErrNotIPv4 is returned when sending to a non-IPv4 destination.
	ErrNotIPv4 = errors.New("destination is not an IPv4 address")
)

// Datagram is a message received from a Channel.
type Datagram struct {
	// Data holds the received bytes. It starts with the IPv4 header when
	// HeaderIncluded is set.
	Data           []byte
	HeaderIncluded bool

	Src      netip.Addr
	TTL      int
	Received time.Time
}

// Channel sends and receives ICMP messages below the transport layer.
type Channel interface {
	// Send transmits an ICMP message to dst.
	Send(b []byte, dst netip.Addr) error

	// Receive blocks until a datagram arrives, the deadline passes
	// (ErrTimeout) or ctx is done (ctx.Err()).
	Receive(ctx context.Context, deadline time.Time) (Datagram, error)

	// Close releases the underlying socket.
	Close() error
}

// Mode selects the channel implementation.
type Mode string

const (
	// ModeAuto uses a raw channel when privileged and a datagram channel otherwise.
	ModeAuto Mode = "auto"
	// ModeRaw uses a raw "ip4:icmp" socket.
	ModeRaw Mode = "raw"
	// ModeDatagram uses an unprivileged "udp4" ICMP socket.
	ModeDatagram Mode = "datagram"
)

// ParseMode converts a string to a Mode. An empty string selects ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeRaw:
		return ModeRaw, nil
	case ModeDatagram:
		return ModeDatagram, nil
	default:
		return "", fmt.Errorf("invalid channel mode: %s (must be auto, raw, or datagram)", s)
	}
}

// OpenChannel opens a channel of the given mode. ttl is the IPv4 time to live
// of outgoing requests; values <= 0 select DefaultTTL.
func OpenChannel(mode Mode, ttl int) (Channel, error) {
	switch mode {
	case ModeRaw:
		return NewRawChannel(ttl)
	case ModeDatagram:
		return NewDatagramChannel(ttl)
	case ModeAuto, "":
		if Privileged() {
			return NewRawChannel(ttl)
		}
		return NewDatagramChannel(ttl)
	default:
		return nil, fmt.Errorf("invalid channel mode: %s", mode)
	}
}

// RawChannel is a privileged channel over an "ip4:icmp" socket. Outgoing
// messages get an explicit IPv4 header so the TTL can be chosen per channel.
// Received datagrams include the IPv4 header.
type RawChannel struct {
	raw *ipv4.RawConn
	ttl int
	buf []byte

	closeOnce sync.Once
	closeErr  error
}

// NewRawChannel opens a raw ICMP channel.
func NewRawChannel(ttl int) (*RawChannel, error) {
	conn, err := net.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return nil, fmt.Errorf("create raw ICMP socket: %w", err)
	}

	raw, err := ipv4.NewRawConn(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable IP header inclusion: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &RawChannel{
		raw: raw,
		ttl: ttl,
		buf: make([]byte, maxDatagram),
	}, nil
}

// DefaultTTL is the time to live used when none is configured.
const DefaultTTL = 128

// Send transmits b to dst inside a freshly built IPv4 header. The kernel
// fills in the source address, datagram ID and header checksum.
func (c *RawChannel) Send(b []byte, dst netip.Addr) error {
	if !dst.Is4() {
		return fmt.Errorf("%w: %s", ErrNotIPv4, dst)
	}

	h := &ipv4.Header{
		Version:  ipv4.Version,
		Len:      ipv4.HeaderLen,
		TotalLen: ipv4.HeaderLen + len(b),
		TTL:      c.ttl,
		Protocol: ProtocolNumber,
		Dst:      net.IP(dst.AsSlice()),
	}

	return sendWithRetry(func() error {
		return c.raw.WriteTo(h, b, nil)
	})
}

// Receive reads the next datagram, IPv4 header included.
func (c *RawChannel) Receive(ctx context.Context, deadline time.Time) (Datagram, error) {
	if err := ctx.Err(); err != nil {
		return Datagram{}, err
	}

	stop, err := armDeadline(ctx, c.raw, deadline)
	if err != nil {
		return Datagram{}, err
	}
	defer stop()

	h, p, _, err := c.raw.ReadFrom(c.buf)
	if err != nil {
		return Datagram{}, readError(ctx, err)
	}
	received := time.Now()

	n := h.Len + len(p)
	data := make([]byte, n)
	copy(data, c.buf[:n])

	src, _ := netip.AddrFromSlice(h.Src.To4())

	return Datagram{
		Data:           data,
		HeaderIncluded: true,
		Src:            src,
		TTL:            h.TTL,
		Received:       received,
	}, nil
}

// Close closes the socket. It is safe to call more than once.
func (c *RawChannel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.raw.Close()
	})
	return c.closeErr
}

// DatagramChannel is an unprivileged channel over a "udp4" ICMP socket.
// Received datagrams do not include the IPv4 header. ICMP error messages are
// not delivered on this kind of socket.
type DatagramChannel struct {
	conn *icmp.PacketConn
	pc   *ipv4.PacketConn
	buf  []byte

	closeOnce sync.Once
	closeErr  error
}

// NewDatagramChannel opens an unprivileged ICMP channel.
// Uses "udp4" network which allows unprivileged ICMP on Linux when
// net.ipv4.ping_group_range sysctl is properly configured.
func NewDatagramChannel(ttl int) (*DatagramChannel, error) {
	conn, err := icmp.ListenPacket("udp4", "0.0.0.0")
	if err != nil {
		return nil, fmt.Errorf("create ICMP socket: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}

	pc := conn.IPv4PacketConn()
	if err := pc.SetTTL(ttl); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set TTL: %w", err)
	}
	// TTL of received datagrams is best effort; some platforms lack it.
	_ = pc.SetControlMessage(ipv4.FlagTTL, true)

	return &DatagramChannel{
		conn: conn,
		pc:   pc,
		buf:  make([]byte, maxDatagram),
	}, nil
}

// BoundIdentifier returns the echo identifier the kernel writes into every
// request sent on this socket.
func (c *DatagramChannel) BoundIdentifier() (uint16, bool) {
	addr, ok := c.conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return 0, false
	}
	return uint16(addr.Port), true
}

// Send transmits b to dst.
func (c *DatagramChannel) Send(b []byte, dst netip.Addr) error {
	if !dst.Is4() {
		return fmt.Errorf("%w: %s", ErrNotIPv4, dst)
	}

	// For unprivileged ICMP sockets, use UDP address
	addr := &net.UDPAddr{IP: net.IP(dst.AsSlice())}
	return sendWithRetry(func() error {
		_, err := c.conn.WriteTo(b, addr)
		return err
	})
}

// Receive reads the next ICMP message.
func (c *DatagramChannel) Receive(ctx context.Context, deadline time.Time) (Datagram, error) {
	if err := ctx.Err(); err != nil {
		return Datagram{}, err
	}

	stop, err := armDeadline(ctx, c.conn, deadline)
	if err != nil {
		return Datagram{}, err
	}
	defer stop()

	n, cm, peer, err := c.pc.ReadFrom(c.buf)
	if err != nil {
		return Datagram{}, readError(ctx, err)
	}
	received := time.Now()

	data := make([]byte, n)
	copy(data, c.buf[:n])

	d := Datagram{
		Data:     data,
		Received: received,
	}
	if cm != nil {
		d.TTL = cm.TTL
	}

	switch addr := peer.(type) {
	case *net.UDPAddr:
		d.Src, _ = netip.AddrFromSlice(addr.IP.To4())
	case *net.IPAddr:
		d.Src, _ = netip.AddrFromSlice(addr.IP.To4())
	}

	return d, nil
}

// Close closes the socket. It is safe to call more than once.
func (c *DatagramChannel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// armDeadline sets the read deadline and arranges for a pending read to be
// interrupted when ctx is done. The returned func must be called once the
// read has returned.
func armDeadline(ctx context.Context, conn readDeadliner, deadline time.Time) (func() bool, error) {
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	return stop, nil
}

func readError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrTimeout
	}
	if errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return fmt.Errorf("receive ICMP: %w", err)
}

// sendWithRetry retries send a bounded number of times while the kernel
// reports ENOBUFS.
func sendWithRetry(send func() error) error {
	var err error
	for tries := sendRetries; tries > 0; tries-- {
		err = send()
		if err == nil || !isNoBufs(err) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("send ICMP: %w", err)
	}
	return nil
}
