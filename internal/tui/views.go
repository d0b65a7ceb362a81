package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"fieldproof/internal/flow"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF"))

	codeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#C0392B")).
			Padding(1, 4).
			MarginTop(1).
			MarginBottom(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA")).
			MarginTop(1)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E67E22"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E74C3C"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))
)

// View renders the screen for the controller's current state.
func (a *App) View() string {
	header := headerStyle.Render("⬡ FIELDPROOF")
	sub := dimStyle.Render(fmt.Sprintf("Audit session %s", a.flow.SessionID()))

	var body string
	switch a.flow.State() {
	case flow.StatePermission:
		body = a.viewPermission()
	case flow.StateValidating:
		body = a.viewValidating()
	case flow.StateBlocked:
		body = a.viewBlocked()
	case flow.StateReady:
		body = a.viewReady()
	case flow.StateRecorded:
		body = a.viewRecorded()
	case flow.StateUploading:
		body = a.viewUploading()
	case flow.StateSubmitted:
		body = a.viewSubmitted()
	}

	sections := []string{header, sub, boxStyle.Width(a.bodyWidth()).Render(body)}
	if panel := a.renderLogPanel(); panel != "" {
		sections = append(sections, panel)
	}
	if a.statusMsg != "" {
		sections = append(sections, warnStyle.Render(a.statusMsg))
	}
	return strings.Join(sections, "\n")
}

func (a *App) bodyWidth() int {
	if a.width <= 0 {
		return 72
	}
	return clamp(a.width-4, 40, 100)
}

func (a *App) viewPermission() string {
	return strings.Join([]string{
		titleStyle.Render("Verifying your location"),
		"",
		fmt.Sprintf("%s Getting a high-accuracy position fix...", a.spinner.View()),
		dimStyle.Render("Fieldproof needs your position to confirm you are at the audit site."),
	}, "\n")
}

func (a *App) viewValidating() string {
	lines := []string{
		titleStyle.Render("Checking site access"),
		"",
	}
	if msg := a.flow.ValidationError(); msg != "" {
		lines = append(lines,
			errStyle.Render("✗ "+msg),
			hintStyle.Render("r → retry"),
		)
	} else {
		lines = append(lines,
			fmt.Sprintf("%s Confirming this session with the audit server...", a.spinner.View()),
			dimStyle.Render(fmt.Sprintf("Position %s", a.flow.Position())),
		)
	}
	return strings.Join(lines, "\n")
}

func (a *App) viewBlocked() string {
	reason := a.flow.BlockReason()
	message := a.flow.BlockMessage()

	var title, hint string
	switch reason {
	case flow.ReasonDenied:
		title = "Location access denied"
		hint = "Location is required to verify presence. q → quit"
	case flow.ReasonTooFar:
		title = "You are not at the audit site"
		hint = "Move to the site and reopen the audit link. q → quit"
	case flow.ReasonLocationError:
		title = "Could not get your position"
		hint = "r → retry    q → quit"
	}

	lines := []string{errStyle.Render("✗ " + title)}
	if message != "" {
		lines = append(lines, "", message)
	}
	lines = append(lines, hintStyle.Render(hint))
	return strings.Join(lines, "\n")
}

func (a *App) viewReady() string {
	code := a.flow.Code()
	if a.recording {
		remaining := int(a.recordRemaining().Seconds())
		return strings.Join([]string{
			titleStyle.Render("● RECORDING"),
			codeStyle.Render(fmt.Sprintf("SAY THE CODE: %s", code)),
			fmt.Sprintf("Recording stops in %ds", remaining),
			hintStyle.Render("s → stop early"),
		}, "\n")
	}
	return strings.Join([]string{
		titleStyle.Render("Ready to record"),
		codeStyle.Render(fmt.Sprintf("YOUR CODE: %s", code)),
		"Hold the camera on the goods and read the code aloud.",
		dimStyle.Render(fmt.Sprintf("The clip runs %ds and uploads for AI review.", int(a.recordLen.Seconds()))),
		hintStyle.Render("enter → start recording"),
	}, "\n")
}

func (a *App) viewRecorded() string {
	art := a.flow.Artifact()
	lines := []string{
		titleStyle.Render("Recording complete"),
		"",
		fmt.Sprintf("Clip: %s (%.1f KB)", art.FileName(), float64(art.Size)/1024),
	}
	if msg := a.flow.UploadError(); msg != "" {
		lines = append(lines, errStyle.Render("✗ "+msg))
	}
	lines = append(lines, hintStyle.Render("u → upload    d → discard and re-record"))
	return strings.Join(lines, "\n")
}

func (a *App) viewUploading() string {
	pct := a.uploader.Progress()
	return strings.Join([]string{
		titleStyle.Render("Uploading for review"),
		"",
		a.progress.ViewAs(pct / 100),
		dimStyle.Render(fmt.Sprintf("%.0f%% · the server may take a few minutes to analyze the clip", pct)),
		hintStyle.Render("c → cancel"),
	}, "\n")
}

func (a *App) viewSubmitted() string {
	res := a.flow.Result()
	lines := []string{
		titleStyle.Render("✓ Audit submitted"),
		"",
		fmt.Sprintf("Video: %s", res.VideoURL),
	}
	if res.ReportID != "" {
		lines = append(lines, fmt.Sprintf("Report: %s", res.ReportID))
	}
	if res.ReportURL != "" {
		lines = append(lines, fmt.Sprintf("Report URL: %s", res.ReportURL))
	}
	lines = append(lines, hintStyle.Render("q → quit"))
	return strings.Join(lines, "\n")
}

func (a *App) renderLogPanel() string {
	lines := a.log.Tail(6)
	if len(lines) == 0 {
		return ""
	}
	name := filepath.Base(a.log.Path())
	head := titleStyle.Render(fmt.Sprintf("LOG · %s", name))
	body := dimStyle.Render(strings.Join(lines, "\n"))
	return boxStyle.Width(a.bodyWidth()).Render(head + "\n" + body)
}
