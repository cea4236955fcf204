package ping

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/postalsys/muti-ping/internal/icmp"
)

var (
	// ErrInvalidConfig is returned by Open when the configuration is rejected.
	ErrInvalidConfig = errors.New("invalid session configuration")

	// ErrChannelSetup is returned by Open when the ICMP channel cannot be opened.
	ErrChannelSetup = errors.New("cannot open ICMP channel")

	// ErrAlreadyStarted is returned by Run when the session was already run.
	ErrAlreadyStarted = errors.New("session already started")
)

// Defaults applied by DefaultConfig.
const (
	DefaultPayloadSize = 32
	DefaultTimeout     = 10 * time.Second
	DefaultInterval    = time.Second
	DefaultTTL         = icmp.DefaultTTL
	DefaultPattern     = "abcdefghijklmnopqrstuvw"
)

// Config holds the parameters of an echo session. It is copied by Open and
// not consulted again afterwards.
type Config struct {
	// Destination must be an IPv4 address.
	Destination netip.Addr

	// PayloadSize is the number of pattern bytes after the timestamp.
	PayloadSize int
	Pattern     []byte

	// Identifier is written into every request. Datagram channels replace it
	// with the identifier chosen by the kernel.
	Identifier uint16

	// Timeout bounds the wait for each reply.
	Timeout time.Duration

	// Interval is the minimum time between consecutive sends. Zero sends
	// back to back.
	Interval time.Duration

	// Count is the number of probes. Zero means unbounded.
	Count int

	TTL int

	// Timestamp embeds a 4-byte send timestamp before the payload.
	Timestamp bool

	// VerifyChecksum discards received messages whose checksum is wrong.
	VerifyChecksum bool

	// AllowedCIDRs restricts which destinations can be pinged.
	// Empty list means all destinations are allowed.
	AllowedCIDRs []netip.Prefix

	Mode icmp.Mode
}

// DefaultConfig returns a Config for dst with default settings.
func DefaultConfig(dst netip.Addr) Config {
	return Config{
		Destination: dst,
		PayloadSize: DefaultPayloadSize,
		Pattern:     []byte(DefaultPattern),
		Identifier:  uint16(os.Getpid() & 0xffff),
		Timeout:     DefaultTimeout,
		Interval:    DefaultInterval,
		TTL:         DefaultTTL,
		Timestamp:   true,
		Mode:        icmp.ModeAuto,
	}
}

// ParseDestination parses a dotted-decimal IPv4 address.
func ParseDestination(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: destination %q is not an IPv4 address", ErrInvalidConfig, s)
	}
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%w: destination %q is not an IPv4 address", ErrInvalidConfig, s)
	}
	return addr, nil
}

// ParseCIDRs parses a list of CIDR strings.
func ParseCIDRs(cidrs []string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, cidr := range cidrs {
		p, err := netip.ParsePrefix(strings.TrimSpace(cidr))
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", cidr, err)
		}
		prefixes = append(prefixes, p.Masked())
	}
	return prefixes, nil
}

// IsDestinationAllowed reports whether addr may be pinged.
func (c *Config) IsDestinationAllowed(addr netip.Addr) bool {
	if len(c.AllowedCIDRs) == 0 {
		return true
	}
	for _, p := range c.AllowedCIDRs {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []string

	switch {
	case !c.Destination.IsValid():
		errs = append(errs, "destination is required")
	case !c.Destination.Is4():
		errs = append(errs, fmt.Sprintf("destination %s is not an IPv4 address", c.Destination))
	case !c.IsDestinationAllowed(c.Destination):
		errs = append(errs, fmt.Sprintf("destination %s is not in allowed CIDRs", c.Destination))
	}

	if c.PayloadSize < 0 || c.PayloadSize > icmp.MaxPayload {
		errs = append(errs, fmt.Sprintf("payload size must be between 0 and %d", icmp.MaxPayload))
	}
	if c.Timeout <= 0 {
		errs = append(errs, "timeout must be positive")
	}
	if c.Interval < 0 {
		errs = append(errs, "interval must not be negative")
	}
	if c.Count < 0 {
		errs = append(errs, "count must not be negative")
	}
	if c.TTL < 1 || c.TTL > 255 {
		errs = append(errs, "ttl must be between 1 and 255")
	}
	if _, err := icmp.ParseMode(string(c.Mode)); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}
