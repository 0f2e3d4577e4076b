package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/courier/internal/config"
	"github.com/mattjoyce/courier/internal/tui"
)

func runWatch(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", defaultConfigPath, "Path to config file or directory")
	apiURL := fs.String("url", "", "Admin API base URL (default: from config api.listen)")
	apiKey := fs.String("key", os.Getenv("COURIER_API_KEY"), "Bearer token (default: $COURIER_API_KEY, then config)")
	interval := fs.Duration("interval", 2*time.Second, "Poll interval")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	client, err := watchClient(*configPath, *apiURL, *apiKey)
	if err != nil {
		fmt.Fprintf(stderr, "watch: %v\n", err)
		return 1
	}

	if _, err := tea.NewProgram(tui.NewMonitor(client, *interval)).Run(); err != nil {
		fmt.Fprintf(stderr, "watch: %v\n", err)
		return 1
	}
	return 0
}

// watchClient fills whatever the flags left empty from the config file.
func watchClient(configPath, url, key string) (*tui.Client, error) {
	if url == "" || key == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if url == "" {
			url = cfg.API.Listen
		}
		if key == "" {
			key = cfg.API.Auth.APIKey
		}
	}
	if url == "" {
		return nil, fmt.Errorf("no API address: pass --url or set api.listen")
	}
	if key == "" {
		return nil, fmt.Errorf("no API key: pass --key or set api.auth.api_key")
	}
	if !strings.Contains(url, "://") {
		url = "http://" + url
	}
	return &tui.Client{BaseURL: url, APIKey: key}, nil
}
