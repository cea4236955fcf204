package ping

import (
	"errors"
	"net/netip"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/postalsys/muti-ping/internal/icmp"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(testDst)

	if cfg.Destination != testDst {
		t.Errorf("Destination = %v, want %v", cfg.Destination, testDst)
	}
	if cfg.PayloadSize != 32 {
		t.Errorf("PayloadSize = %d, want 32", cfg.PayloadSize)
	}
	if string(cfg.Pattern) != "abcdefghijklmnopqrstuvw" {
		t.Errorf("Pattern = %q", cfg.Pattern)
	}
	if cfg.Identifier != uint16(os.Getpid()&0xffff) {
		t.Errorf("Identifier = %d, want pid & 0xffff", cfg.Identifier)
	}
	if cfg.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", cfg.Timeout)
	}
	if cfg.Interval != time.Second {
		t.Errorf("Interval = %v, want 1s", cfg.Interval)
	}
	if cfg.Count != 0 {
		t.Errorf("Count = %d, want 0 (unbounded)", cfg.Count)
	}
	if cfg.TTL != 128 {
		t.Errorf("TTL = %d, want 128", cfg.TTL)
	}
	if !cfg.Timestamp {
		t.Error("Timestamp should be enabled by default")
	}
	if cfg.VerifyChecksum {
		t.Error("VerifyChecksum should be disabled by default")
	}
	if cfg.AllowedCIDRs != nil {
		t.Error("AllowedCIDRs should be nil by default")
	}
	if cfg.Mode != icmp.ModeAuto {
		t.Errorf("Mode = %q, want auto", cfg.Mode)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestParseDestination(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"192.0.2.1", false},
		{"8.8.8.8", false},
		{"0.0.0.0", false},
		{"", true},
		{"256.1.1.1", true},
		{"example.com", true},
		{"2001:db8::1", true},
		{"::ffff:192.0.2.1", true},
		{"192.0.2.1/24", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			addr, err := ParseDestination(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDestination(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error %v does not wrap ErrInvalidConfig", err)
			}
			if err == nil && addr.String() != tt.in {
				t.Errorf("ParseDestination(%q) = %v", tt.in, addr)
			}
		})
	}
}

func TestParseCIDRs(t *testing.T) {
	tests := []struct {
		name    string
		cidrs   []string
		want    int
		wantErr bool
	}{
		{
			name:  "single CIDR",
			cidrs: []string{"10.0.0.0/8"},
			want:  1,
		},
		{
			name:  "multiple CIDRs",
			cidrs: []string{"10.0.0.0/8", "192.168.0.0/16", " 172.16.0.0/12 "},
			want:  3,
		},
		{
			name:  "empty list",
			cidrs: []string{},
			want:  0,
		},
		{
			name:    "invalid CIDR",
			cidrs:   []string{"not-a-cidr"},
			wantErr: true,
		},
		{
			name:    "bare address",
			cidrs:   []string{"10.0.0.1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCIDRs(tt.cidrs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCIDRs() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && len(got) != tt.want {
				t.Errorf("ParseCIDRs() returned %d prefixes, want %d", len(got), tt.want)
			}
		})
	}
}

func TestIsDestinationAllowed(t *testing.T) {
	cidrs, err := ParseCIDRs([]string{"10.1.2.3/8", "192.168.1.0/24"})
	if err != nil {
		t.Fatalf("ParseCIDRs() error = %v", err)
	}

	tests := []struct {
		name  string
		cidrs []netip.Prefix
		addr  string
		want  bool
	}{
		{"no restriction", nil, "8.8.8.8", true},
		{"inside first", cidrs, "10.200.0.1", true},
		{"inside second", cidrs, "192.168.1.77", true},
		{"outside", cidrs, "192.168.2.1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{AllowedCIDRs: tt.cidrs}
			if got := cfg.IsDestinationAllowed(netip.MustParseAddr(tt.addr)); got != tt.want {
				t.Errorf("IsDestinationAllowed(%s) = %v, want %v", tt.addr, got, tt.want)
			}
		})
	}
}

func TestConfigValidate_CollectsErrors(t *testing.T) {
	cfg := DefaultConfig(netip.Addr{})
	cfg.Timeout = 0
	cfg.TTL = 300

	err := cfg.Validate()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Validate() error = %v, want %v", err, ErrInvalidConfig)
	}
	for _, want := range []string{"destination is required", "timeout must be positive", "ttl must be between 1 and 255"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestConfigValidate_Boundaries(t *testing.T) {
	cfg := DefaultConfig(testDst)
	cfg.Interval = 0
	cfg.PayloadSize = 0
	cfg.TTL = 255
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	cfg.PayloadSize = icmp.MaxPayload
	cfg.TTL = 1
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}
