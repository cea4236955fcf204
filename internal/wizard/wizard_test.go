package wizard

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/postalsys/muti-ping/internal/config"
)

func TestNew(t *testing.T) {
	w := New()
	if w == nil {
		t.Fatal("New() returned nil")
	}
	if w.theme == nil {
		t.Error("New() returned wizard without a theme")
	}
}

func TestDefaultAnswersBuild(t *testing.T) {
	cfg, err := buildConfig(defaultAnswers())
	if err != nil {
		t.Fatalf("default answers should build: %v", err)
	}
	if cfg.Ping.Count != 4 {
		t.Errorf("Ping.Count = %d, want 4", cfg.Ping.Count)
	}
	if cfg.Ping.Interval != time.Second {
		t.Errorf("Ping.Interval = %v, want 1s", cfg.Ping.Interval)
	}
	if cfg.Ping.Mode != "auto" {
		t.Errorf("Ping.Mode = %q, want auto", cfg.Ping.Mode)
	}
	if cfg.Metrics.Address != "" {
		t.Errorf("Metrics.Address = %q, want empty", cfg.Metrics.Address)
	}
}

func TestBuildConfig(t *testing.T) {
	a := defaultAnswers()
	a.Count = " 10 "
	a.Interval = "200ms"
	a.Timeout = "2s"
	a.PayloadSize = "1KiB"
	a.Timestamp = false
	a.Mode = "datagram"
	a.TTL = "64"
	a.AllowedCIDRs = "10.0.0.0/8\n\n  192.168.0.0/16  \n"
	a.LogLevel = "debug"
	a.MetricsAddress = "127.0.0.1:9109"

	cfg, err := buildConfig(a)
	if err != nil {
		t.Fatalf("buildConfig failed: %v", err)
	}

	if cfg.Ping.Count != 10 {
		t.Errorf("Ping.Count = %d, want 10", cfg.Ping.Count)
	}
	if cfg.Ping.Interval != 200*time.Millisecond {
		t.Errorf("Ping.Interval = %v, want 200ms", cfg.Ping.Interval)
	}
	if cfg.Ping.Timeout != 2*time.Second {
		t.Errorf("Ping.Timeout = %v, want 2s", cfg.Ping.Timeout)
	}
	if cfg.Ping.PayloadSize != "1KiB" {
		t.Errorf("Ping.PayloadSize = %q, want 1KiB", cfg.Ping.PayloadSize)
	}
	if cfg.Ping.Timestamp {
		t.Error("Ping.Timestamp = true, want false")
	}
	if cfg.Ping.Mode != "datagram" {
		t.Errorf("Ping.Mode = %q, want datagram", cfg.Ping.Mode)
	}
	if cfg.Ping.TTL != 64 {
		t.Errorf("Ping.TTL = %d, want 64", cfg.Ping.TTL)
	}
	if len(cfg.Ping.AllowedCIDRs) != 2 || cfg.Ping.AllowedCIDRs[1] != "192.168.0.0/16" {
		t.Errorf("Ping.AllowedCIDRs = %v", cfg.Ping.AllowedCIDRs)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want text", cfg.Log.Format)
	}
	if cfg.Metrics.Address != "127.0.0.1:9109" {
		t.Errorf("Metrics.Address = %q", cfg.Metrics.Address)
	}
}

func TestBuildConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*answers)
		errMsg string
	}{
		{"bad count", func(a *answers) { a.Count = "many" }, "invalid count"},
		{"bad interval", func(a *answers) { a.Interval = "soon" }, "invalid interval"},
		{"bad timeout", func(a *answers) { a.Timeout = "" }, "invalid timeout"},
		{"bad ttl", func(a *answers) { a.TTL = "x" }, "invalid TTL"},
		{"ttl out of range", func(a *answers) { a.TTL = "300" }, "ping.ttl"},
		{"bad payload", func(a *answers) { a.PayloadSize = "huge" }, "ping.payload_size"},
		{"bad cidr", func(a *answers) { a.AllowedCIDRs = "10.0.0.0/33" }, "allowed_cidrs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := defaultAnswers()
			tt.modify(&a)
			_, err := buildConfig(a)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error %q does not contain %q", err, tt.errMsg)
			}
		})
	}
}

func TestWriteConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "profile.yaml")

	a := defaultAnswers()
	a.Count = "7"
	a.Interval = "500ms"
	a.AllowedCIDRs = "198.51.100.0/24"
	cfg, err := buildConfig(a)
	if err != nil {
		t.Fatalf("buildConfig failed: %v", err)
	}

	if err := writeConfig(cfg, configPath); err != nil {
		t.Fatalf("writeConfig failed: %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}
	if !strings.HasPrefix(string(data), "# muti-ping profile") {
		t.Error("profile missing header comment")
	}

	// The written profile must load back to the same settings.
	loaded, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("config.Load failed: %v", err)
	}
	if loaded.Ping.Count != 7 {
		t.Errorf("Ping.Count = %d, want 7", loaded.Ping.Count)
	}
	if loaded.Ping.Interval != 500*time.Millisecond {
		t.Errorf("Ping.Interval = %v, want 500ms", loaded.Ping.Interval)
	}
	if len(loaded.Ping.AllowedCIDRs) != 1 || loaded.Ping.AllowedCIDRs[0] != "198.51.100.0/24" {
		t.Errorf("Ping.AllowedCIDRs = %v", loaded.Ping.AllowedCIDRs)
	}
}

func TestWriteConfigCreatesDirectory(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "subdir", "nested", "profile.yaml")

	if err := writeConfig(config.Default(), configPath); err != nil {
		t.Fatalf("writeConfig failed: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("profile was not created")
	}
}

func TestValidators(t *testing.T) {
	tests := []struct {
		name    string
		fn      func(string) error
		input   string
		wantErr bool
	}{
		{"path yaml", validateConfigPath, "p.yaml", false},
		{"path yml", validateConfigPath, "dir/p.yml", false},
		{"path empty", validateConfigPath, "", true},
		{"path json", validateConfigPath, "p.json", true},
		{"count zero", validateCount, "0", false},
		{"count negative", validateCount, "-1", true},
		{"count text", validateCount, "four", true},
		{"interval zero", validateInterval, "0s", false},
		{"interval negative", validateInterval, "-1s", true},
		{"interval bare number", validateInterval, "5", true},
		{"timeout positive", validateTimeout, "750ms", false},
		{"timeout zero", validateTimeout, "0s", true},
		{"ttl min", validateTTL, "1", false},
		{"ttl max", validateTTL, "255", false},
		{"ttl zero", validateTTL, "0", true},
		{"ttl high", validateTTL, "256", true},
		{"cidrs empty", validateCIDRs, "", false},
		{"cidrs valid", validateCIDRs, "10.0.0.0/8\n192.0.2.0/24", false},
		{"cidrs invalid", validateCIDRs, "10.0.0.0/8\nnot-a-cidr", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("got error %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSplitLines(t *testing.T) {
	got := splitLines("  a \n\n b\n\t\n")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("splitLines = %q", got)
	}
	if splitLines("") != nil {
		t.Error("splitLines of empty string should be nil")
	}
}

func TestApplyProbeSettings(t *testing.T) {
	cfg := config.Default()
	if err := applyProbeSettings(cfg, " 12 ", "250ms"); err != nil {
		t.Fatalf("applyProbeSettings failed: %v", err)
	}
	if cfg.Ping.Count != 12 {
		t.Errorf("Ping.Count = %d, want 12", cfg.Ping.Count)
	}
	if cfg.Ping.Interval != 250*time.Millisecond {
		t.Errorf("Ping.Interval = %v, want 250ms", cfg.Ping.Interval)
	}

	if err := applyProbeSettings(config.Default(), "x", "1s"); err == nil {
		t.Error("expected error for invalid count")
	}
	if err := applyProbeSettings(config.Default(), "-1", "1s"); err == nil {
		t.Error("expected validation error for negative count")
	}
}
