package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/mattjoyce/courier/internal/config"
)

func runConfigNoun(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "Usage: courier config <check|lock> [--config PATH]")
		return 1
	}
	switch args[0] {
	case "check":
		return runConfigCheck(args[1:], stdout, stderr)
	case "lock":
		return runConfigLock(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown config action: %s\n", args[0])
		return 1
	}
}

func runConfigCheck(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("config check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", defaultConfigPath, "Path to config file or directory")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Configuration invalid: %v\n", err)
		return 1
	}

	integrity := "unverified (run 'courier config lock')"
	if cfg.Verified {
		integrity = "verified"
	}
	consumers := 0
	for _, s := range cfg.Sessions {
		consumers += len(s.Consumers)
	}
	fmt.Fprintf(stdout, "Configuration valid: %s\n", cfg.Path)
	fmt.Fprintf(stdout, "  sessions:  %d\n", len(cfg.Sessions))
	fmt.Fprintf(stdout, "  consumers: %d\n", consumers)
	fmt.Fprintf(stdout, "  integrity: %s\n", integrity)
	return 0
}

func runConfigLock(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("config lock", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", defaultConfigPath, "Path to config file or directory")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	path, err := config.Resolve(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to lock config: %v\n", err)
		return 1
	}
	manifest, err := config.GenerateChecksums(path)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to lock config: %v\n", err)
		return 1
	}
	if _, err := config.Load(path); err != nil {
		fmt.Fprintf(stderr, "Locked, but the configuration is invalid: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Locked %s -> %s\n", path, manifest)
	return 0
}
