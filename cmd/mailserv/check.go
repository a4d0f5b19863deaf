package main

import (
	"fmt"
	"os"

	"github.com/infodancer/mailserv/internal/config"
)

// runCheck loads and validates the configuration without starting anything.
func runCheck() {
	flags := config.ParseFlags()

	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("configuration ok: hostname=%s domains=%d smtp=%s pop3=%s\n",
		cfg.Hostname, len(cfg.Domains), cfg.SMTP.Address, cfg.POP3.Address)
}
