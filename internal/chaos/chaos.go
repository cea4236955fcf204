// Package chaos injects faults into ICMP channels to exercise loss, delay
// and corruption handling.
package chaos

import (
	"context"
	"errors"
	"math/rand"
	"net/netip"
	"sync"
	"time"

	"github.com/postalsys/muti-ping/internal/icmp"
)

// ErrInjected is returned by sends that failed because of an injected fault.
var ErrInjected = errors.New("chaos: injected fault")

// FaultType represents the type of fault to inject.
type FaultType int

const (
	// FaultDrop silently discards an outgoing request.
	FaultDrop FaultType = iota
	// FaultDelay holds a received datagram before delivering it.
	FaultDelay
	// FaultCorrupt flips a bit in a received datagram.
	FaultCorrupt
	// FaultSendError makes a send fail with ErrInjected.
	FaultSendError
)

func (t FaultType) String() string {
	switch t {
	case FaultDrop:
		return "drop"
	case FaultDelay:
		return "delay"
	case FaultCorrupt:
		return "corrupt"
	case FaultSendError:
		return "send-error"
	default:
		return "unknown"
	}
}

// FaultConfig configures fault injection behavior.
type FaultConfig struct {
	// Probability is the chance of fault injection (0.0 to 1.0).
	Probability float64

	// Type is the type of fault to inject.
	Type FaultType

	// MinDelay is the minimum delay to add for FaultDelay.
	MinDelay time.Duration

	// MaxDelay is the maximum delay to add for FaultDelay.
	MaxDelay time.Duration
}

// FaultInjector decides which faults to inject.
type FaultInjector struct {
	configs   []FaultConfig
	mu        sync.Mutex
	rng       *rand.Rand
	faultHits map[FaultType]int64
}

// NewFaultInjector creates a new fault injector.
func NewFaultInjector(configs ...FaultConfig) *FaultInjector {
	return &FaultInjector{
		configs:   configs,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		faultHits: make(map[FaultType]int64),
	}
}

// Seed makes subsequent decisions reproducible.
func (f *FaultInjector) Seed(seed int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rng = rand.New(rand.NewSource(seed))
}

// MaybeInject rolls the configured faults of the given types in order and
// returns the first one that fires.
func (f *FaultInjector) MaybeInject(types ...FaultType) (FaultConfig, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, cfg := range f.configs {
		if !matches(cfg.Type, types) {
			continue
		}
		if f.rng.Float64() < cfg.Probability {
			f.faultHits[cfg.Type]++
			return cfg, true
		}
	}
	return FaultConfig{}, false
}

// Delay returns a random delay within the bounds of cfg.
func (f *FaultInjector) Delay(cfg FaultConfig) time.Duration {
	if cfg.MaxDelay <= cfg.MinDelay {
		return cfg.MinDelay
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delta := cfg.MaxDelay - cfg.MinDelay
	return cfg.MinDelay + time.Duration(f.rng.Int63n(int64(delta)))
}

// GetStats returns the number of faults injected per type.
func (f *FaultInjector) GetStats() map[FaultType]int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := make(map[FaultType]int64, len(f.faultHits))
	for k, v := range f.faultHits {
		stats[k] = v
	}
	return stats
}

func matches(t FaultType, types []FaultType) bool {
	if len(types) == 0 {
		return true
	}
	for _, want := range types {
		if t == want {
			return true
		}
	}
	return false
}

// Channel wraps an icmp.Channel and injects faults into its traffic.
type Channel struct {
	inner    icmp.Channel
	injector *FaultInjector
}

// Wrap returns ch with faults from injector applied.
func Wrap(ch icmp.Channel, injector *FaultInjector) *Channel {
	return &Channel{inner: ch, injector: injector}
}

// Send forwards b unless a drop or send error fault fires.
func (c *Channel) Send(b []byte, dst netip.Addr) error {
	if cfg, ok := c.injector.MaybeInject(FaultDrop, FaultSendError); ok {
		if cfg.Type == FaultSendError {
			return ErrInjected
		}
		return nil
	}
	return c.inner.Send(b, dst)
}

// Receive returns the next datagram of the wrapped channel, possibly late or
// corrupted.
func (c *Channel) Receive(ctx context.Context, deadline time.Time) (icmp.Datagram, error) {
	d, err := c.inner.Receive(ctx, deadline)
	if err != nil {
		return d, err
	}

	cfg, ok := c.injector.MaybeInject(FaultDelay, FaultCorrupt)
	if !ok {
		return d, nil
	}

	switch cfg.Type {
	case FaultCorrupt:
		if len(d.Data) > 0 {
			data := append([]byte(nil), d.Data...)
			data[len(data)-1] ^= 0x01
			d.Data = data
		}
	case FaultDelay:
		t := time.NewTimer(c.injector.Delay(cfg))
		defer t.Stop()
		select {
		case <-ctx.Done():
			return icmp.Datagram{}, ctx.Err()
		case <-t.C:
		}
		d.Received = time.Now()
	}
	return d, nil
}

// Close closes the wrapped channel.
func (c *Channel) Close() error {
	return c.inner.Close()
}

// BoundIdentifier reports the identifier of the wrapped channel, if it
// chooses one.
func (c *Channel) BoundIdentifier() (uint16, bool) {
	if b, ok := c.inner.(interface{ BoundIdentifier() (uint16, bool) }); ok {
		return b.BoundIdentifier()
	}
	return 0, false
}
