// Package main provides the CLI entry point for muti-ping.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/postalsys/muti-ping/internal/agent"
	"github.com/postalsys/muti-ping/internal/chaos"
	"github.com/postalsys/muti-ping/internal/config"
	"github.com/postalsys/muti-ping/internal/console"
	"github.com/postalsys/muti-ping/internal/icmp"
	"github.com/postalsys/muti-ping/internal/logging"
	"github.com/postalsys/muti-ping/internal/ping"
	"github.com/postalsys/muti-ping/internal/wizard"
)

var (
	// Version is set at build time
	Version = "dev"
)

// exitCoder carries the process exit status of a failed command.
type exitCoder struct {
	code int
	err  error
}

func (e *exitCoder) Error() string { return e.err.Error() }
func (e *exitCoder) Unwrap() error { return e.err }

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		code := 2
		var ec *exitCoder
		if errors.As(err, &ec) {
			code = ec.code
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(code)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "muti-ping",
		Short: "muti-ping - ICMP echo prober",
		Long: `muti-ping sends ICMP Echo Requests to one or more IPv4 hosts and
reports a result for every probe: a reply with its round-trip time, a
timeout, or the ICMP error a router sent back.

Raw sockets need root or CAP_NET_RAW. Without them muti-ping falls back
to unprivileged datagram sockets where the kernel allows it.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(pingCmd())
	rootCmd.AddCommand(wizardCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

// pingFlags holds command line overrides of the profile.
type pingFlags struct {
	configPath  string
	count       int
	interval    time.Duration
	timeout     time.Duration
	size        string
	ttl         int
	identifier  string
	mode        string
	noTimestamp bool
	verify      bool
	metricsAddr string
	metricsFile string
	logLevel    string
	logFormat   string
	logFile     string
	noColor     bool
	interactive bool

	// Fault injection for exercising loss handling against real hosts.
	chaosLoss    float64
	chaosCorrupt float64
	chaosDelay   time.Duration
}

func pingCmd() *cobra.Command {
	var f pingFlags

	cmd := &cobra.Command{
		Use:   "ping [flags] destination...",
		Short: "Ping one or more destinations",
		Long: `Ping sends echo requests to every destination concurrently and prints
one line per probe followed by a statistics summary per destination.

The exit status is 0 when every destination answered at least once, 1
when some destination never answered and 2 on other errors.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &f)
			if err != nil {
				return err
			}
			if f.interactive {
				if err := wizard.New().AskProbeSettings(cfg); err != nil {
					return err
				}
			}

			logger, closeLog := newLogger(cfg)
			defer closeLog()

			printer := console.New(os.Stdout, console.Options{
				Color:           console.ColorEnabled(os.Stdout, f.noColor),
				ShowDestination: len(args) > 1,
			})

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			opts := []agent.Option{
				agent.WithLogger(logger),
				agent.WithPrinter(printer),
			}
			inj := f.faultInjector()
			if inj != nil {
				logger.Warn("fault injection enabled",
					"loss", f.chaosLoss,
					"corrupt", f.chaosCorrupt,
					"delay", f.chaosDelay)
				opts = append(opts, agent.WithChannelFactory(chaosChannels(inj)))
			}

			a, err := agent.New(cfg, args, opts...)
			if err != nil {
				return err
			}

			err = a.Run(ctx)
			if inj != nil {
				logFaultStats(logger, inj)
			}
			if err != nil {
				if errors.Is(err, agent.ErrNoReply) {
					return &exitCoder{code: 1, err: err}
				}
				return err
			}
			return nil
		},
	}

	addPingFlags(cmd, &f)

	return cmd
}

func addPingFlags(cmd *cobra.Command, f *pingFlags) {
	flags := cmd.Flags()
	flags.StringVar(&f.configPath, "config", "", "Path to a YAML profile")
	flags.IntVarP(&f.count, "count", "c", 0, "Stop after this many probes (0 = until interrupted)")
	flags.DurationVarP(&f.interval, "interval", "i", 0, "Minimum time between probes")
	flags.DurationVarP(&f.timeout, "timeout", "W", 0, "Time to wait for each reply")
	flags.StringVarP(&f.size, "size", "s", "", "Payload bytes after the timestamp (e.g. 56, 1KiB)")
	flags.IntVar(&f.ttl, "ttl", 0, "IPv4 time to live of requests")
	flags.StringVar(&f.identifier, "id", "", "Echo identifier (auto or 0-65535)")
	flags.StringVar(&f.mode, "mode", "", "Socket mode: auto, raw or datagram")
	flags.BoolVar(&f.noTimestamp, "no-timestamp", false, "Do not embed a send timestamp in requests")
	flags.BoolVar(&f.verify, "verify-checksum", false, "Discard replies with a bad checksum")
	flags.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve /metrics and /healthz on this address while running")
	flags.StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus text metrics to this file on exit")
	flags.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&f.logFormat, "log-format", "", "Log format: text, json")
	flags.StringVar(&f.logFile, "log-file", "", "Write logs to this rotated file instead of stderr")
	flags.BoolVar(&f.noColor, "no-color", false, "Disable colored output")
	flags.BoolVar(&f.interactive, "interactive", false, "Prompt for count and interval before pinging")

	flags.Float64Var(&f.chaosLoss, "chaos-loss", 0, "Drop this fraction of requests (0.0-1.0)")
	flags.Float64Var(&f.chaosCorrupt, "chaos-corrupt", 0, "Corrupt this fraction of received datagrams (0.0-1.0)")
	flags.DurationVar(&f.chaosDelay, "chaos-delay", 0, "Delay every received datagram by up to this long")
	for _, name := range []string{"chaos-loss", "chaos-corrupt", "chaos-delay"} {
		_ = flags.MarkHidden(name)
	}
}

// faultInjector returns the injector configured by the chaos flags, or nil
// when none is set.
func (f *pingFlags) faultInjector() *chaos.FaultInjector {
	var faults []chaos.FaultConfig
	if f.chaosLoss > 0 {
		faults = append(faults, chaos.FaultConfig{Type: chaos.FaultDrop, Probability: f.chaosLoss})
	}
	if f.chaosCorrupt > 0 {
		faults = append(faults, chaos.FaultConfig{Type: chaos.FaultCorrupt, Probability: f.chaosCorrupt})
	}
	if f.chaosDelay > 0 {
		faults = append(faults, chaos.FaultConfig{Type: chaos.FaultDelay, Probability: 1, MaxDelay: f.chaosDelay})
	}
	if len(faults) == 0 {
		return nil
	}
	return chaos.NewFaultInjector(faults...)
}

// logFaultStats reports how many faults of each type were injected.
func logFaultStats(logger *slog.Logger, inj *chaos.FaultInjector) {
	stats := inj.GetStats()
	attrs := make([]any, 0, 2*len(stats))
	for _, t := range []chaos.FaultType{chaos.FaultDrop, chaos.FaultDelay, chaos.FaultCorrupt, chaos.FaultSendError} {
		attrs = append(attrs, t.String(), stats[t])
	}
	logger.Info("fault injection summary", attrs...)
}

// chaosChannels opens real channels and wraps them with inj.
func chaosChannels(inj *chaos.FaultInjector) agent.ChannelFactory {
	return func(pc ping.Config) (icmp.Channel, error) {
		ch, err := icmp.OpenChannel(pc.Mode, pc.TTL)
		if err != nil {
			return nil, err
		}
		return chaos.Wrap(ch, inj), nil
	}
}

// loadConfig reads the profile, if any, and applies explicitly set flags.
func loadConfig(cmd *cobra.Command, f *pingFlags) (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	changed := cmd.Flags().Changed
	if changed("count") {
		cfg.Ping.Count = f.count
	}
	if changed("interval") {
		cfg.Ping.Interval = f.interval
	}
	if changed("timeout") {
		cfg.Ping.Timeout = f.timeout
	}
	if changed("size") {
		cfg.Ping.PayloadSize = f.size
	}
	if changed("ttl") {
		cfg.Ping.TTL = f.ttl
	}
	if changed("id") {
		cfg.Ping.Identifier = f.identifier
	}
	if changed("mode") {
		cfg.Ping.Mode = f.mode
	}
	if changed("no-timestamp") {
		cfg.Ping.Timestamp = !f.noTimestamp
	}
	if changed("verify-checksum") {
		cfg.Ping.VerifyChecksum = f.verify
	}
	if changed("metrics-addr") {
		cfg.Metrics.Address = f.metricsAddr
	}
	if changed("metrics-file") {
		cfg.Metrics.File = f.metricsFile
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if changed("log-file") {
		cfg.Log.File = f.logFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the logger described by cfg.Log. The returned func
// closes the log file, if one is used.
func newLogger(cfg *config.Config) (*slog.Logger, func()) {
	if cfg.Log.File == "" {
		return logging.NewLogger(cfg.Log.Level, cfg.Log.Format), func() {}
	}

	var w io.WriteCloser = logging.NewFileWriter(logging.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	return logging.NewLoggerWithWriter(cfg.Log.Level, cfg.Log.Format, w), func() { w.Close() }
}

func wizardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wizard",
		Short: "Create a ping profile interactively",
		Long:  "Walk through the probe settings and write them to a YAML profile.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := wizard.New().Run()
			return err
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "muti-ping %s\n", Version)
		},
	}
}
