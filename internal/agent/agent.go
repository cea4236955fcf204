// Package agent runs echo sessions against one or more destinations and
// wires them to the console, metrics and health endpoints.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/postalsys/muti-ping/internal/config"
	"github.com/postalsys/muti-ping/internal/console"
	"github.com/postalsys/muti-ping/internal/health"
	"github.com/postalsys/muti-ping/internal/icmp"
	"github.com/postalsys/muti-ping/internal/logging"
	"github.com/postalsys/muti-ping/internal/metrics"
	"github.com/postalsys/muti-ping/internal/ping"
	"github.com/postalsys/muti-ping/internal/recovery"
)

var (
	// ErrNoDestinations is returned by New when no destination is given.
	ErrNoDestinations = errors.New("no destinations")

	// ErrNoReply is returned by Run when a destination never answered.
	ErrNoReply = errors.New("no reply")
)

// ChannelFactory opens the ICMP channel for one session.
type ChannelFactory func(cfg ping.Config) (icmp.Channel, error)

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

// WithPrinter sets the console printer. The default discards output.
func WithPrinter(p *console.Printer) Option {
	return func(a *Agent) {
		a.printer = p
	}
}

// WithRegistry registers metrics with reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(a *Agent) {
		a.registry = reg
	}
}

// WithChannelFactory replaces the channel each session opens for itself.
func WithChannelFactory(f ChannelFactory) Option {
	return func(a *Agent) {
		a.openChannel = f
	}
}

// Agent pings a fixed set of destinations concurrently.
type Agent struct {
	cfg      *config.Config
	sessions []ping.Config

	logger      *slog.Logger
	printer     *console.Printer
	registry    *prometheus.Registry
	metrics     *metrics.Metrics
	tracker     *health.Tracker
	health      *health.Server
	openChannel ChannelFactory

	running atomic.Bool
}

// New builds a session configuration for each destination. Destinations
// must be dotted-decimal IPv4 addresses.
func New(cfg *config.Config, destinations []string, opts ...Option) (*Agent, error) {
	if len(destinations) == 0 {
		return nil, ErrNoDestinations
	}

	a := &Agent{
		cfg:     cfg,
		logger:  logging.NopLogger(),
		printer: console.New(io.Discard, console.Options{}),
		tracker: health.NewTracker(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(logging.KeyComponent, "agent")

	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
	}
	a.metrics = metrics.NewMetricsWithRegistry(a.registry)

	seen := make(map[netip.Addr]bool, len(destinations))
	for _, d := range destinations {
		addr, err := ping.ParseDestination(d)
		if err != nil {
			return nil, err
		}
		if seen[addr] {
			return nil, fmt.Errorf("%w: duplicate destination %s", ping.ErrInvalidConfig, addr)
		}
		seen[addr] = true

		pc, err := cfg.ToPingConfig(addr.String())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d, err)
		}
		a.sessions = append(a.sessions, pc)
		a.tracker.Add(addr.String())
	}

	if cfg.Metrics.Address != "" {
		hc := health.DefaultServerConfig()
		hc.Address = cfg.Metrics.Address
		hc.Gatherer = a.registry
		a.health = health.NewServer(hc, a.tracker)
	}

	return a, nil
}

// Destinations returns the resolved destination addresses in order.
func (a *Agent) Destinations() []netip.Addr {
	out := make([]netip.Addr, len(a.sessions))
	for i, pc := range a.sessions {
		out[i] = pc.Destination
	}
	return out
}

// Stats returns per-destination statistics.
func (a *Agent) Stats() health.Stats {
	return a.tracker.Stats()
}

// IsRunning returns true while sessions are running.
func (a *Agent) IsRunning() bool {
	return a.running.Load()
}

// Run pings every destination until its count is reached or ctx is done.
// Cancellation is not an error. Run returns ErrNoReply when a destination
// transmitted probes but received no reply.
func (a *Agent) Run(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return ping.ErrAlreadyStarted
	}
	defer a.running.Store(false)

	if a.health != nil {
		if err := a.health.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer a.health.Stop()
		a.logger.Info("metrics server listening", logging.KeyAddress, a.health.Address().String())
	}

	a.tracker.SetRunning(true)
	defer a.tracker.SetRunning(false)

	var g errgroup.Group
	for _, pc := range a.sessions {
		g.Go(recovery.Guard(a.logger, "ping "+pc.Destination.String(), func() error {
			return a.runSession(ctx, pc)
		}))
	}
	err := g.Wait()

	if a.cfg.Metrics.File != "" {
		if werr := a.writeMetricsFile(a.cfg.Metrics.File); werr != nil {
			a.logger.Error("failed to write metrics file",
				logging.KeyError, werr)
			err = errors.Join(err, werr)
		}
	}
	if err != nil {
		return err
	}

	var silent []string
	for _, ss := range a.tracker.Stats().Sessions {
		if ss.Sent > 0 && ss.Received == 0 {
			silent = append(silent, ss.Destination)
		}
	}
	if len(silent) > 0 {
		return fmt.Errorf("%w from %s", ErrNoReply, strings.Join(silent, ", "))
	}
	return nil
}

func (a *Agent) runSession(ctx context.Context, pc ping.Config) error {
	dst := pc.Destination.String()

	opts := []ping.Option{
		ping.WithLogger(a.logger),
		ping.WithMetrics(a.metrics),
	}
	if a.openChannel != nil {
		ch, err := a.openChannel(pc)
		if err != nil {
			err = fmt.Errorf("%w: %w", ping.ErrChannelSetup, err)
			a.printer.Error(dst, err)
			return fmt.Errorf("%s: %w", dst, err)
		}
		opts = append(opts, ping.WithChannel(ch))
	}

	s, err := ping.Open(pc, opts...)
	if err != nil {
		a.printer.Error(dst, err)
		return fmt.Errorf("%s: %w", dst, err)
	}

	a.printer.Header(s.Config(), s.Identifier())

	start := time.Now()
	err = s.Run(ctx, func(o ping.Outcome) {
		a.tracker.Record(dst, o)
		a.printer.Outcome(dst, o)
	})

	st, _ := a.tracker.Statistics(dst)
	a.printer.Summary(dst, st, time.Since(start))

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", dst, err)
	}
	return nil
}

func (a *Agent) writeMetricsFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	if err := metrics.WriteText(f, a.registry); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
