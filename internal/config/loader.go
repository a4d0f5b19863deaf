package config

import (
	"flag"
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// Flags holds command-line flag values.
type Flags struct {
	ConfigPath    string
	Hostname      string
	LogLevel      string
	LogFile       string
	SpoolDir      string
	ScanInterval  string
	SenderThreads int
	SMTPListen    string
	POP3Listen    string
}

// ParseFlags parses command-line flags and returns a Flags struct.
func ParseFlags() *Flags {
	f := &Flags{}

	flag.StringVar(&f.ConfigPath, "config", "./mailserv.toml", "Path to configuration file")
	flag.StringVar(&f.Hostname, "hostname", "", "Server hostname")
	flag.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&f.LogFile, "log-file", "", "Log file path (default stderr)")
	flag.StringVar(&f.SpoolDir, "spool-dir", "", "Spool directory")
	flag.StringVar(&f.ScanInterval, "scan-interval", "", "Spool rescan idle interval")
	flag.IntVar(&f.SenderThreads, "sender-threads", 0, "Dispatcher worker count")
	flag.StringVar(&f.SMTPListen, "smtp-listen", "", "SMTP listen address")
	flag.StringVar(&f.POP3Listen, "pop3-listen", "", "POP3 listen address")

	flag.Parse()
	return f
}

// Load parses a TOML configuration file and returns the Config.
// If the file does not exist, returns the default configuration.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig FileConfig
	if err := toml.Unmarshal(data, &fileConfig); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	// Merge file config into defaults
	cfg = mergeConfig(cfg, fileConfig.Mailserv)

	return cfg, nil
}

// ApplyFlags merges command-line flag values into the config.
// Non-zero/non-empty flag values override config file values.
func ApplyFlags(cfg Config, f *Flags) Config {
	if f.Hostname != "" {
		cfg.Hostname = f.Hostname
	}

	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}

	if f.LogFile != "" {
		cfg.LogFile = f.LogFile
	}

	if f.SpoolDir != "" {
		cfg.SpoolDir = f.SpoolDir
	}

	if f.ScanInterval != "" {
		cfg.ScanInterval = f.ScanInterval
	}

	if f.SenderThreads > 0 {
		cfg.SenderThreads = f.SenderThreads
	}

	if f.SMTPListen != "" {
		cfg.SMTP.Address = f.SMTPListen
	}

	if f.POP3Listen != "" {
		cfg.POP3.Address = f.POP3Listen
	}

	return cfg
}

// LoadWithFlags loads configuration from the path specified in flags,
// then applies flag overrides.
func LoadWithFlags(f *Flags) (Config, error) {
	cfg, err := Load(f.ConfigPath)
	if err != nil {
		return cfg, err
	}
	return ApplyFlags(cfg, f), nil
}

// mergeConfig merges non-zero values from src into dst.
func mergeConfig(dst, src Config) Config {
	if src.Hostname != "" {
		dst.Hostname = src.Hostname
	}

	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}

	if src.LogFile != "" {
		dst.LogFile = src.LogFile
	}

	if src.SpoolDir != "" {
		dst.SpoolDir = src.SpoolDir
	}

	if src.ScanInterval != "" {
		dst.ScanInterval = src.ScanInterval
	}

	if src.SenderThreads > 0 {
		dst.SenderThreads = src.SenderThreads
	}

	if len(src.Domains) > 0 {
		dst.Domains = src.Domains
	}

	if src.SMTP.Address != "" {
		dst.SMTP.Address = src.SMTP.Address
	}

	if src.POP3.Address != "" {
		dst.POP3.Address = src.POP3.Address
	}

	if src.Timeouts.Connection != "" {
		dst.Timeouts.Connection = src.Timeouts.Connection
	}

	if src.Timeouts.Command != "" {
		dst.Timeouts.Command = src.Timeouts.Command
	}

	if src.Metrics.Enabled {
		dst.Metrics.Enabled = src.Metrics.Enabled
	}

	if src.Metrics.Address != "" {
		dst.Metrics.Address = src.Metrics.Address
	}

	if src.Metrics.Path != "" {
		dst.Metrics.Path = src.Metrics.Path
	}

	if src.Status.Enabled {
		dst.Status.Enabled = src.Status.Enabled
	}

	if src.Status.Address != "" {
		dst.Status.Address = src.Status.Address
	}

	return dst
}
