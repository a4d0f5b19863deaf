// Package config provides configuration management for the mail server.
package config

import (
	"errors"
	"fmt"
	"time"
)

// FileConfig is the top-level wrapper for the configuration file.
type FileConfig struct {
	Mailserv Config `toml:"mailserv"`
}

// Config holds the complete mail server configuration.
type Config struct {
	Hostname string `toml:"hostname"`
	LogLevel string `toml:"log_level"`
	LogFile  string `toml:"log_file"`

	// SpoolDir is the shared spool directory written by SMTP reception and
	// consumed by the dispatcher.
	SpoolDir string `toml:"spool_dir"`

	// ScanInterval is the dispatcher's idle rescan interval.
	ScanInterval string `toml:"scan_interval"`

	// SenderThreads is the number of dispatcher workers.
	SenderThreads int `toml:"sender_threads"`

	// Domains lists the locally hosted domains in lookup order.
	Domains []DomainConfig `toml:"domains"`

	SMTP     ListenerConfig `toml:"smtp"`
	POP3     ListenerConfig `toml:"pop3"`
	Timeouts TimeoutsConfig `toml:"timeouts"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Status   StatusConfig   `toml:"status"`
}

// DomainConfig maps a hosted domain to its mailbox root directory.
type DomainConfig struct {
	Name      string `toml:"name"`
	Mailboxes string `toml:"mailboxes"`
}

// ListenerConfig defines settings for a single listener.
type ListenerConfig struct {
	Address string `toml:"address"`
}

// TimeoutsConfig defines timeout durations.
type TimeoutsConfig struct {
	Connection string `toml:"connection"`
	Command    string `toml:"command"`
}

// MetricsConfig holds configuration for Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Path    string `toml:"path"`
}

// StatusConfig holds configuration for the read-only HTTP status page.
type StatusConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
}

// Default returns a Config with sensible default values.
func Default() Config {
	return Config{
		Hostname:      "localhost",
		LogLevel:      "info",
		ScanInterval:  "1s",
		SenderThreads: 5,
		SMTP: ListenerConfig{
			Address: ":25",
		},
		POP3: ListenerConfig{
			Address: ":110",
		},
		Timeouts: TimeoutsConfig{
			Connection: "5m",
			Command:    "1m",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9100",
			Path:    "/metrics",
		},
		Status: StatusConfig{
			Enabled: false,
			Address: ":8025",
		},
	}
}

// Validate checks that the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c.Hostname == "" {
		return errors.New("hostname is required")
	}

	if c.SpoolDir == "" {
		return errors.New("spool_dir is required")
	}

	if c.SMTP.Address == "" {
		return errors.New("smtp address is required")
	}

	if c.POP3.Address == "" {
		return errors.New("pop3 address is required")
	}

	if c.SenderThreads < 1 {
		return errors.New("sender_threads must be at least 1")
	}

	if c.ScanInterval != "" {
		if _, err := time.ParseDuration(c.ScanInterval); err != nil {
			return fmt.Errorf("invalid scan_interval: %w", err)
		}
	}

	for i, d := range c.Domains {
		if d.Name == "" {
			return fmt.Errorf("domain %d: name is required", i)
		}
		if d.Mailboxes == "" {
			return fmt.Errorf("domain %d: mailboxes is required", i)
		}
	}

	if c.Timeouts.Connection != "" {
		if _, err := time.ParseDuration(c.Timeouts.Connection); err != nil {
			return fmt.Errorf("invalid connection timeout: %w", err)
		}
	}

	if c.Timeouts.Command != "" {
		if _, err := time.ParseDuration(c.Timeouts.Command); err != nil {
			return fmt.Errorf("invalid command timeout: %w", err)
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Address == "" {
			return errors.New("metrics address is required when metrics are enabled")
		}
		if c.Metrics.Path == "" {
			return errors.New("metrics path is required when metrics are enabled")
		}
	}

	if c.Status.Enabled && c.Status.Address == "" {
		return errors.New("status address is required when the status page is enabled")
	}

	return nil
}

// ScanIntervalDuration returns the spool rescan interval as a time.Duration.
// Returns 1 second if not configured or invalid.
func (c *Config) ScanIntervalDuration() time.Duration {
	if c.ScanInterval == "" {
		return time.Second
	}
	d, err := time.ParseDuration(c.ScanInterval)
	if err != nil {
		return time.Second
	}
	return d
}

// ConnectionTimeout returns the connection timeout as a time.Duration.
// Returns 5 minutes if not configured or invalid.
func (c *TimeoutsConfig) ConnectionTimeout() time.Duration {
	if c.Connection == "" {
		return 5 * time.Minute
	}
	d, err := time.ParseDuration(c.Connection)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// CommandTimeout returns the command timeout as a time.Duration.
// Returns 1 minute if not configured or invalid.
func (c *TimeoutsConfig) CommandTimeout() time.Duration {
	if c.Command == "" {
		return 1 * time.Minute
	}
	d, err := time.ParseDuration(c.Command)
	if err != nil {
		return 1 * time.Minute
	}
	return d
}
