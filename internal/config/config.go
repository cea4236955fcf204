// Package config provides configuration parsing and validation for muti-ping.
package config

import (
	"fmt"
	"net"
	"net/netip"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/postalsys/muti-ping/internal/icmp"
	"github.com/postalsys/muti-ping/internal/ping"
)

// Config represents a complete ping profile.
type Config struct {
	Ping    PingConfig    `yaml:"ping"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// PingConfig contains echo session settings shared by every destination.
type PingConfig struct {
	PayloadSize    string        `yaml:"payload_size"`    // bytes after the timestamp, e.g. "32" or "1KiB"
	Pattern        string        `yaml:"pattern"`         // repeated to fill the payload
	Identifier     string        `yaml:"identifier"`      // "auto" or 0-65535
	Timeout        time.Duration `yaml:"timeout"`         // wait per probe
	Interval       time.Duration `yaml:"interval"`        // minimum time between sends
	Count          int           `yaml:"count"`           // 0 = unbounded
	TTL            int           `yaml:"ttl"`             // IPv4 time to live
	Timestamp      bool          `yaml:"timestamp"`       // embed send timestamp
	VerifyChecksum bool          `yaml:"verify_checksum"` // drop replies with a bad checksum
	Mode           string        `yaml:"mode"`            // auto, raw, datagram
	AllowedCIDRs   []string      `yaml:"allowed_cidrs"`   // empty = any destination
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // text, json
	File       string `yaml:"file"`   // rotate into this file instead of stderr
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// MetricsConfig contains metrics settings.
type MetricsConfig struct {
	Address string `yaml:"address"` // serve /metrics and /healthz here while running
	File    string `yaml:"file"`    // write a text dump here on exit
}

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		Ping: PingConfig{
			PayloadSize: strconv.Itoa(ping.DefaultPayloadSize),
			Pattern:     ping.DefaultPattern,
			Identifier:  "auto",
			Timeout:     ping.DefaultTimeout,
			Interval:    ping.DefaultInterval,
			TTL:         ping.DefaultTTL,
			Timestamp:   true,
			Mode:        string(icmp.ModeAuto),
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses configuration from YAML bytes on top of the defaults.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envVarRegex matches ${VAR} or $VAR patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces environment variable references with their values.
// ${VAR:-default} falls back to default when VAR is unset. Unknown
// references are left untouched.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}

		if idx := strings.Index(name, ":-"); idx != -1 {
			if val, ok := os.LookupEnv(name[:idx]); ok {
				return val
			}
			return name[idx+2:]
		}

		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if size, err := ParseSize(c.Ping.PayloadSize); err != nil {
		errs = append(errs, fmt.Sprintf("ping.payload_size: %v", err))
	} else if size > icmp.MaxPayload {
		errs = append(errs, fmt.Sprintf("ping.payload_size must be at most %d bytes", icmp.MaxPayload))
	}
	if _, _, err := parseIdentifier(c.Ping.Identifier); err != nil {
		errs = append(errs, fmt.Sprintf("ping.identifier: %v", err))
	}
	if c.Ping.Timeout <= 0 {
		errs = append(errs, "ping.timeout must be positive")
	}
	if c.Ping.Interval < 0 {
		errs = append(errs, "ping.interval must not be negative")
	}
	if c.Ping.Count < 0 {
		errs = append(errs, "ping.count must not be negative")
	}
	if c.Ping.TTL < 1 || c.Ping.TTL > 255 {
		errs = append(errs, "ping.ttl must be between 1 and 255")
	}
	if _, err := icmp.ParseMode(c.Ping.Mode); err != nil {
		errs = append(errs, fmt.Sprintf("ping.mode: %v", err))
	}
	for i, cidr := range c.Ping.AllowedCIDRs {
		if !isValidCIDR(cidr) {
			errs = append(errs, fmt.Sprintf("ping.allowed_cidrs[%d]: invalid CIDR: %s", i, cidr))
		}
	}

	if !isValidLogLevel(c.Log.Level) {
		errs = append(errs, fmt.Sprintf("invalid log.level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}
	if !isValidLogFormat(c.Log.Format) {
		errs = append(errs, fmt.Sprintf("invalid log.format: %s (must be text or json)", c.Log.Format))
	}
	if c.Log.File != "" && c.Log.MaxSizeMB < 1 {
		errs = append(errs, "log.max_size_mb must be positive when log.file is set")
	}

	if c.Metrics.Address != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Address); err != nil {
			errs = append(errs, fmt.Sprintf("invalid metrics.address: %s", c.Metrics.Address))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ToPingConfig builds the session configuration for one destination.
func (c *Config) ToPingConfig(destination string) (ping.Config, error) {
	dst, err := ping.ParseDestination(destination)
	if err != nil {
		return ping.Config{}, err
	}

	cfg := ping.DefaultConfig(dst)

	size, err := ParseSize(c.Ping.PayloadSize)
	if err != nil {
		return ping.Config{}, fmt.Errorf("%w: payload size: %v", ping.ErrInvalidConfig, err)
	}
	cfg.PayloadSize = int(size)
	cfg.Pattern = []byte(c.Ping.Pattern)

	if id, ok, err := parseIdentifier(c.Ping.Identifier); err != nil {
		return ping.Config{}, fmt.Errorf("%w: identifier: %v", ping.ErrInvalidConfig, err)
	} else if ok {
		cfg.Identifier = id
	}

	mode, err := icmp.ParseMode(c.Ping.Mode)
	if err != nil {
		return ping.Config{}, fmt.Errorf("%w: %v", ping.ErrInvalidConfig, err)
	}
	cfg.Mode = mode

	cidrs, err := ping.ParseCIDRs(c.Ping.AllowedCIDRs)
	if err != nil {
		return ping.Config{}, fmt.Errorf("%w: %v", ping.ErrInvalidConfig, err)
	}
	cfg.AllowedCIDRs = cidrs

	cfg.Timeout = c.Ping.Timeout
	cfg.Interval = c.Ping.Interval
	cfg.Count = c.Ping.Count
	cfg.TTL = c.Ping.TTL
	cfg.Timestamp = c.Ping.Timestamp
	cfg.VerifyChecksum = c.Ping.VerifyChecksum

	return cfg, cfg.Validate()
}

// ParseSize parses a human-readable size string to bytes.
// Supported formats:
//   - Decimal units: 100B, 1KB (1KB = 1000 bytes)
//   - Binary units: 1KiB (1KiB = 1024 bytes)
//   - Plain number: 56 (interpreted as bytes)
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	bytes, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size format '%s': %w", s, err)
	}
	if bytes > 1<<32 {
		return 0, fmt.Errorf("size '%s' is too large", s)
	}

	return int64(bytes), nil
}

// parseIdentifier returns the configured identifier. ok is false for "auto".
func parseIdentifier(s string) (id uint16, ok bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "auto") {
		return 0, false, nil
	}
	n, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, false, fmt.Errorf("must be auto or a number between 0 and 65535: %s", s)
	}
	return uint16(n), true, nil
}

func isValidLogLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

func isValidLogFormat(format string) bool {
	switch strings.ToLower(format) {
	case "text", "json":
		return true
	}
	return false
}

func isValidCIDR(cidr string) bool {
	_, err := netip.ParsePrefix(strings.TrimSpace(cidr))
	return err == nil
}

// String returns the configuration as YAML.
func (c *Config) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("error marshaling config: %v", err)
	}
	return string(data)
}
