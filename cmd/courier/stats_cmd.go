package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/mattjoyce/courier/internal/config"
	"github.com/mattjoyce/courier/internal/state"
	"github.com/mattjoyce/courier/internal/storage"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right)
	failStyle   = numberStyle.Foreground(lipgloss.Color("9"))
)

func runStats(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", defaultConfigPath, "Path to config file or directory")
	jsonOut := fs.Bool("json", false, "Output statistics as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer db.Close()

	rows, err := state.NewStore(db).List(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to read statistics: %v\n", err)
		return 1
	}

	if *jsonOut {
		if rows == nil {
			rows = []state.Stats{}
		}
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			fmt.Fprintf(stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, string(data))
		return 0
	}

	if len(rows) == 0 {
		fmt.Fprintln(stdout, "No deliveries recorded yet.")
		return 0
	}
	fmt.Fprintln(stdout, renderStats(rows))
	return 0
}

func renderStats(rows []state.Stats) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("SESSION", "CONSUMER", "DELIVERED", "FAILED", "DROPPED", "UPDATED").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 3 && row >= 0 && row < len(rows) && rows[row].Failed > 0:
				return failStyle
			case col >= 2 && col <= 4:
				return numberStyle
			default:
				return cellStyle
			}
		})

	for _, r := range rows {
		t.Row(
			r.SessionID,
			r.ConsumerID,
			strconv.FormatInt(r.Delivered, 10),
			strconv.FormatInt(r.Failed, 10),
			strconv.FormatInt(r.Dropped, 10),
			r.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
		)
	}
	return t.Render()
}
