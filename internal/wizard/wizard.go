// Package wizard provides an interactive wizard that writes a muti-ping
// profile.
package wizard

import (
	"fmt"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/postalsys/muti-ping/internal/config"
)

// Result contains the wizard output.
type Result struct {
	Config     *config.Config
	ConfigPath string
}

// Wizard manages the interactive setup process.
type Wizard struct {
	theme *huh.Theme
}

// New creates a new profile wizard.
func New() *Wizard {
	return &Wizard{
		theme: huh.ThemeDracula(),
	}
}

// answers holds the raw form values before they are turned into a profile.
type answers struct {
	ConfigPath string

	Count       string
	Interval    string
	Timeout     string
	PayloadSize string
	Timestamp   bool

	Mode         string
	TTL          string
	AllowedCIDRs string

	LogLevel       string
	MetricsAddress string
}

func defaultAnswers() answers {
	d := config.Default()
	return answers{
		ConfigPath:  "./muti-ping.yaml",
		Count:       "4",
		Interval:    d.Ping.Interval.String(),
		Timeout:     d.Ping.Timeout.String(),
		PayloadSize: d.Ping.PayloadSize,
		Timestamp:   d.Ping.Timestamp,
		Mode:        d.Ping.Mode,
		TTL:         strconv.Itoa(d.Ping.TTL),
		LogLevel:    d.Log.Level,
	}
}

// Run executes the interactive wizard.
func (w *Wizard) Run() (*Result, error) {
	w.printBanner()

	a := defaultAnswers()

	if err := w.askProfilePath(&a); err != nil {
		return nil, err
	}
	if err := w.askProbes(&a); err != nil {
		return nil, err
	}
	if err := w.askNetwork(&a); err != nil {
		return nil, err
	}
	if err := w.askAdvanced(&a); err != nil {
		return nil, err
	}

	cfg, err := buildConfig(a)
	if err != nil {
		return nil, err
	}

	if err := writeConfig(cfg, a.ConfigPath); err != nil {
		return nil, err
	}

	w.printSummary(a.ConfigPath, cfg)

	return &Result{
		Config:     cfg,
		ConfigPath: a.ConfigPath,
	}, nil
}

func (w *Wizard) printBanner() {
	banner := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("212")).
		Render(`
  __  __       _   _        ____  _
 |  \/  |_   _| |_(_)      |  _ \(_)_ __   __ _
 | |\/| | | | | __| |_____ | |_) | | '_ \ / _' |
 | |  | | |_| | |_| |_____||  __/| | | | | (_| |
 |_|  |_|\__,_|\__|_|      |_|   |_|_| |_|\__, |
                                          |___/
`)

	subtitle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render("  ICMP Echo Probe - Profile Wizard\n")

	fmt.Println(banner)
	fmt.Println(subtitle)
}

func (w *Wizard) askProfilePath(a *answers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Profile").
				Description("The wizard writes a YAML profile for 'muti-ping ping --config'."),

			huh.NewInput().
				Title("Profile Path").
				Description("Where to write the profile").
				Placeholder("./muti-ping.yaml").
				Value(&a.ConfigPath).
				Validate(validateConfigPath),
		),
	).WithTheme(w.theme)

	return form.Run()
}

func (w *Wizard) askProbes(a *answers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Probes").
				Description("How many echo requests to send and how to pace them."),

			huh.NewInput().
				Title("Count").
				Description("Number of probes per destination (0 = until interrupted)").
				Value(&a.Count).
				Validate(validateCount),

			huh.NewInput().
				Title("Interval").
				Description("Minimum time between probes (e.g. 1s, 200ms)").
				Value(&a.Interval).
				Validate(validateInterval),

			huh.NewInput().
				Title("Timeout").
				Description("How long to wait for each reply").
				Value(&a.Timeout).
				Validate(validateTimeout),

			huh.NewInput().
				Title("Payload Size").
				Description("Echo data bytes after the timestamp (e.g. 32, 1KiB)").
				Value(&a.PayloadSize).
				Validate(func(s string) error {
					_, err := config.ParseSize(s)
					return err
				}),

			huh.NewConfirm().
				Title("Embed send timestamp?").
				Description("Measure round-trip time from the echoed timestamp").
				Value(&a.Timestamp),
		),
	).WithTheme(w.theme)

	return form.Run()
}

func (w *Wizard) askNetwork(a *answers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Network").
				Description("Socket type and IPv4 header settings."),

			huh.NewSelect[string]().
				Title("Channel Mode").
				Options(
					huh.NewOption("Auto (raw when privileged)", "auto"),
					huh.NewOption("Raw socket (root or CAP_NET_RAW)", "raw"),
					huh.NewOption("Datagram socket (unprivileged)", "datagram"),
				).
				Value(&a.Mode),

			huh.NewInput().
				Title("TTL").
				Description("IPv4 time to live of outgoing requests (1-255)").
				Value(&a.TTL).
				Validate(validateTTL),

			huh.NewText().
				Title("Allowed Destinations (CIDR)").
				Description("One CIDR per line, empty allows any destination").
				Placeholder("10.0.0.0/8\n192.168.0.0/16").
				Value(&a.AllowedCIDRs).
				Validate(validateCIDRs),
		),
	).WithTheme(w.theme)

	return form.Run()
}

func (w *Wizard) askAdvanced(a *answers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Advanced Options").
				Description("Configure logging and metrics."),

			huh.NewSelect[string]().
				Title("Log Level").
				Options(
					huh.NewOption("Debug (verbose)", "debug"),
					huh.NewOption("Info (recommended)", "info"),
					huh.NewOption("Warning", "warn"),
					huh.NewOption("Error (quiet)", "error"),
				).
				Value(&a.LogLevel),

			huh.NewInput().
				Title("Metrics Address").
				Description("Serve /metrics and /healthz while pinging (empty = disabled)").
				Placeholder("127.0.0.1:9109").
				Value(&a.MetricsAddress).
				Validate(func(s string) error {
					if s == "" {
						return nil
					}
					_, _, err := net.SplitHostPort(s)
					return err
				}),
		),
	).WithTheme(w.theme)

	return form.Run()
}

// AskProbeSettings prompts for the probe count and interval and stores the
// answers in cfg.
func (w *Wizard) AskProbeSettings(cfg *config.Config) error {
	count := strconv.Itoa(cfg.Ping.Count)
	interval := cfg.Ping.Interval.String()

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Count").
				Description("Number of probes per destination (0 = until interrupted)").
				Value(&count).
				Validate(validateCount),

			huh.NewInput().
				Title("Interval").
				Description("Minimum time between probes").
				Value(&interval).
				Validate(validateInterval),
		),
	).WithTheme(w.theme)

	if err := form.Run(); err != nil {
		return err
	}
	return applyProbeSettings(cfg, count, interval)
}

func applyProbeSettings(cfg *config.Config, count, interval string) error {
	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil {
		return fmt.Errorf("invalid count: %w", err)
	}
	d, err := time.ParseDuration(strings.TrimSpace(interval))
	if err != nil {
		return fmt.Errorf("invalid interval: %w", err)
	}

	cfg.Ping.Count = n
	cfg.Ping.Interval = d
	return cfg.Validate()
}

// buildConfig turns form answers into a validated profile.
func buildConfig(a answers) (*config.Config, error) {
	cfg := config.Default()

	count, err := strconv.Atoi(strings.TrimSpace(a.Count))
	if err != nil {
		return nil, fmt.Errorf("invalid count: %w", err)
	}
	interval, err := time.ParseDuration(strings.TrimSpace(a.Interval))
	if err != nil {
		return nil, fmt.Errorf("invalid interval: %w", err)
	}
	timeout, err := time.ParseDuration(strings.TrimSpace(a.Timeout))
	if err != nil {
		return nil, fmt.Errorf("invalid timeout: %w", err)
	}
	ttl, err := strconv.Atoi(strings.TrimSpace(a.TTL))
	if err != nil {
		return nil, fmt.Errorf("invalid TTL: %w", err)
	}

	cfg.Ping.Count = count
	cfg.Ping.Interval = interval
	cfg.Ping.Timeout = timeout
	cfg.Ping.PayloadSize = strings.TrimSpace(a.PayloadSize)
	cfg.Ping.Timestamp = a.Timestamp
	cfg.Ping.Mode = a.Mode
	cfg.Ping.TTL = ttl
	cfg.Ping.AllowedCIDRs = splitLines(a.AllowedCIDRs)

	cfg.Log.Level = a.LogLevel
	cfg.Log.Format = "text"
	cfg.Metrics.Address = strings.TrimSpace(a.MetricsAddress)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func writeConfig(cfg *config.Config, path string) error {
	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := `# muti-ping profile
# Generated by profile wizard

`
	if err := os.WriteFile(path, []byte(header+string(data)), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

func (w *Wizard) printSummary(configPath string, cfg *config.Config) {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("42"))

	divider := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render("─────────────────────────────────────────────────")

	fmt.Println()
	fmt.Println(divider)
	fmt.Println(style.Render("✓ Profile written"))
	fmt.Println(divider)
	fmt.Println()

	fmt.Printf("  Profile:      %s\n", configPath)
	if cfg.Ping.Count == 0 {
		fmt.Printf("  Probes:       until interrupted, every %s\n", cfg.Ping.Interval)
	} else {
		fmt.Printf("  Probes:       %d, every %s\n", cfg.Ping.Count, cfg.Ping.Interval)
	}
	fmt.Printf("  Timeout:      %s\n", cfg.Ping.Timeout)
	fmt.Printf("  Mode:         %s (TTL %d)\n", cfg.Ping.Mode, cfg.Ping.TTL)

	if len(cfg.Ping.AllowedCIDRs) > 0 {
		fmt.Printf("  Allowed:      %s\n", strings.Join(cfg.Ping.AllowedCIDRs, ", "))
	}
	if cfg.Metrics.Address != "" {
		fmt.Printf("  Metrics:      http://%s/metrics\n", cfg.Metrics.Address)
	}

	fmt.Println()
	fmt.Println("  To start pinging:")
	fmt.Printf("    muti-ping ping --config %s <destination>\n", configPath)
	fmt.Println()
}

func validateConfigPath(s string) error {
	if s == "" {
		return fmt.Errorf("profile path is required")
	}
	if !strings.HasSuffix(s, ".yaml") && !strings.HasSuffix(s, ".yml") {
		return fmt.Errorf("profile should have .yaml or .yml extension")
	}
	return nil
}

func validateCount(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("count must be a number")
	}
	if n < 0 {
		return fmt.Errorf("count must not be negative")
	}
	return nil
}

func validateInterval(s string) error {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid duration: %s", s)
	}
	if d < 0 {
		return fmt.Errorf("interval must not be negative")
	}
	return nil
}

func validateTimeout(s string) error {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid duration: %s", s)
	}
	if d <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

func validateTTL(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 || n > 255 {
		return fmt.Errorf("TTL must be between 1 and 255")
	}
	return nil
}

func validateCIDRs(s string) error {
	for _, line := range splitLines(s) {
		if _, err := netip.ParsePrefix(line); err != nil {
			return fmt.Errorf("invalid CIDR: %s", line)
		}
	}
	return nil
}

// splitLines returns the non-empty trimmed lines of s.
func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
