// cmd/fieldproof/main.go
//
// Entry point for the field capture client. An auditor runs
// `fieldproof <case-id>` with the case id from their assignment link;
// the TUI walks them through location verification, the witnessed
// recording and the upload.

package main

import (
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"fieldproof/internal/config"
	"fieldproof/internal/logbook"
	"fieldproof/internal/tui"
)

func main() {
	sessionID := ""
	if len(os.Args) > 1 {
		sessionID = strings.TrimSpace(os.Args[1])
	}
	if sessionID == "" {
		fmt.Fprintln(os.Stderr, "usage: fieldproof <case-id>")
		fmt.Fprintln(os.Stderr, "  The case id comes from your audit assignment link.")
		os.Exit(2)
	}

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
		tui.NewApp(cfg, lb, sessionID),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		os.Exit(1)
	}
}
