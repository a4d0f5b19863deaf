package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Hostname != "localhost" {
		t.Errorf("Hostname = %q, want %q", cfg.Hostname, "localhost")
	}
	if cfg.SMTP.Address != ":25" {
		t.Errorf("SMTP.Address = %q, want %q", cfg.SMTP.Address, ":25")
	}
	if cfg.POP3.Address != ":110" {
		t.Errorf("POP3.Address = %q, want %q", cfg.POP3.Address, ":110")
	}
	if cfg.SenderThreads != 5 {
		t.Errorf("SenderThreads = %d, want 5", cfg.SenderThreads)
	}
	if got := cfg.ScanIntervalDuration(); got != time.Second {
		t.Errorf("ScanIntervalDuration = %v, want 1s", got)
	}
	if got := cfg.Timeouts.ConnectionTimeout(); got != 5*time.Minute {
		t.Errorf("ConnectionTimeout = %v, want 5m", got)
	}
	if got := cfg.Timeouts.CommandTimeout(); got != time.Minute {
		t.Errorf("CommandTimeout = %v, want 1m", got)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.SpoolDir = "/var/spool/mailserv"
		cfg.Domains = []DomainConfig{
			{Name: "example.com", Mailboxes: "/var/mail/example.com"},
		}
		return cfg
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "valid", modify: func(c *Config) {}},
		{
			name:    "missing hostname",
			modify:  func(c *Config) { c.Hostname = "" },
			wantErr: "hostname",
		},
		{
			name:    "missing spool dir",
			modify:  func(c *Config) { c.SpoolDir = "" },
			wantErr: "spool_dir",
		},
		{
			name:    "missing smtp address",
			modify:  func(c *Config) { c.SMTP.Address = "" },
			wantErr: "smtp address",
		},
		{
			name:    "missing pop3 address",
			modify:  func(c *Config) { c.POP3.Address = "" },
			wantErr: "pop3 address",
		},
		{
			name:    "zero sender threads",
			modify:  func(c *Config) { c.SenderThreads = 0 },
			wantErr: "sender_threads",
		},
		{
			name:    "bad scan interval",
			modify:  func(c *Config) { c.ScanInterval = "often" },
			wantErr: "scan_interval",
		},
		{
			name:    "domain without mailboxes",
			modify:  func(c *Config) { c.Domains[0].Mailboxes = "" },
			wantErr: "mailboxes",
		},
		{
			name:    "bad connection timeout",
			modify:  func(c *Config) { c.Timeouts.Connection = "forever" },
			wantErr: "connection timeout",
		},
		{
			name: "metrics enabled without address",
			modify: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Address = ""
			},
			wantErr: "metrics address",
		},
		{
			name: "status enabled without address",
			modify: func(c *Config) {
				c.Status.Enabled = true
				c.Status.Address = ""
			},
			wantErr: "status address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate should have failed")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mailserv.toml")
	content := `
[mailserv]
hostname = "mx.example.com"
log_level = "debug"
spool_dir = "/var/spool/mailserv"
scan_interval = "2s"
sender_threads = 3

[[mailserv.domains]]
name = "example.com"
mailboxes = "/var/mail/example.com"

[[mailserv.domains]]
name = "example.org"
mailboxes = "/var/mail/example.org"

[mailserv.smtp]
address = ":2525"

[mailserv.pop3]
address = ":1110"

[mailserv.timeouts]
connection = "2m"
command = "30s"

[mailserv.metrics]
enabled = true
address = ":9100"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Hostname != "mx.example.com" {
		t.Errorf("Hostname = %q", cfg.Hostname)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.ScanInterval != "2s" {
		t.Errorf("ScanInterval = %q", cfg.ScanInterval)
	}
	if cfg.SenderThreads != 3 {
		t.Errorf("SenderThreads = %d", cfg.SenderThreads)
	}
	if len(cfg.Domains) != 2 || cfg.Domains[0].Name != "example.com" || cfg.Domains[1].Name != "example.org" {
		t.Errorf("Domains = %+v", cfg.Domains)
	}
	if cfg.SMTP.Address != ":2525" {
		t.Errorf("SMTP.Address = %q", cfg.SMTP.Address)
	}
	if cfg.POP3.Address != ":1110" {
		t.Errorf("POP3.Address = %q", cfg.POP3.Address)
	}
	if got := cfg.Timeouts.CommandTimeout(); got != 30*time.Second {
		t.Errorf("CommandTimeout = %v", got)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled should be true")
	}
	// Unset fields keep their defaults.
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want default", cfg.Metrics.Path)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Hostname != Default().Hostname {
		t.Errorf("Hostname = %q, want default", cfg.Hostname)
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mailserv.toml")
	if err := os.WriteFile(path, []byte("not toml ["), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load should fail on invalid TOML")
	}
}

func TestApplyFlags(t *testing.T) {
	cfg := Default()
	cfg.SpoolDir = "/file/spool"

	f := &Flags{
		Hostname:      "flag.example.com",
		SpoolDir:      "/flag/spool",
		SenderThreads: 9,
		SMTPListen:    ":26",
	}
	cfg = ApplyFlags(cfg, f)

	if cfg.Hostname != "flag.example.com" {
		t.Errorf("Hostname = %q", cfg.Hostname)
	}
	if cfg.SpoolDir != "/flag/spool" {
		t.Errorf("SpoolDir = %q", cfg.SpoolDir)
	}
	if cfg.SenderThreads != 9 {
		t.Errorf("SenderThreads = %d", cfg.SenderThreads)
	}
	if cfg.SMTP.Address != ":26" {
		t.Errorf("SMTP.Address = %q", cfg.SMTP.Address)
	}
	// Empty flags leave config values alone.
	if cfg.POP3.Address != ":110" {
		t.Errorf("POP3.Address = %q, want unchanged", cfg.POP3.Address)
	}
}
