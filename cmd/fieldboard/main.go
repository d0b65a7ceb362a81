// cmd/fieldboard/main.go
//
// Entry point for the inspection dashboard. Reviewers run `fieldboard`
// to watch submitted audits come in, read the AI verdicts and, when
// needed, force a session to verified.

package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"fieldproof/internal/config"
	"fieldproof/internal/logbook"
	"fieldproof/internal/tui"
)

func main() {
	home, err := config.HomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving home directory: %v\n", err)
		os.Exit(1)
	}
	if err := config.InitFieldproofDir(home); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing .fieldproof directory: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.New(home)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	lb, err := logbook.Open(cfg.LogPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening logbook: %v\n", err)
		os.Exit(1)
	}
	defer lb.Close()

	p := tea.NewProgram(
		tui.NewBoard(cfg, lb),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		os.Exit(1)
	}
}
