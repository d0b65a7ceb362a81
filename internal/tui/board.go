// internal/tui/board.go
//
// The inspection dashboard. A read-mostly board over the backend's
// inspection feed with one administrative action: forcing a session to
// verified when the AI verdict is wrong. Force-verify is guarded by an
// explicit confirm step.

package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"fieldproof/internal/backend"
	"fieldproof/internal/config"
	"fieldproof/internal/inspect"
	"fieldproof/internal/logbook"
)

// Board is the inspection dashboard model.
type Board struct {
	cfg  *config.Config
	log  *logbook.Logbook
	feed *inspect.Feed

	recordList list.Model
	records    []inspect.Record
	spinner    spinner.Model

	width     int
	height    int
	listWidth int
	showSide  bool

	refresh    time.Duration
	loading    bool
	confirming string // case id awaiting force-verify confirmation
	errorMsg   string
	statusMsg  string
}

// recordItem wraps a Record for the list display.
type recordItem struct {
	record inspect.Record
}

func (i recordItem) Title() string {
	return fmt.Sprintf("%s · %s", i.record.CaseID, i.record.Verdict())
}

func (i recordItem) Description() string {
	parts := []string{i.record.CreatedAt.Format("2006-01-02 15:04")}
	if i.record.ExporterName != "" {
		parts = append(parts, i.record.ExporterName)
	}
	return strings.Join(parts, " · ")
}

func (i recordItem) FilterValue() string {
	return i.record.CaseID + " " + i.record.ExporterName
}

// Messages produced by asynchronous commands.

type recordsLoadedMsg struct {
	records []inspect.Record
	err     error
}

type refreshTickMsg struct{}

type forceVerifyDoneMsg struct {
	caseID string
	result inspect.ForceVerifyResult
	err    error
}

// NewBoard builds the dashboard over the shared backend client.
func NewBoard(cfg *config.Config, lb *logbook.Logbook) *Board {
	client := backend.NewClient(cfg.File.Backend.BaseURL, cfg.File.Backend.RequestTimeout)

	delegate := list.NewDefaultDelegate()
	delegate.SetHeight(2)
	delegate.SetSpacing(0)
	recordList := list.New([]list.Item{}, delegate, 0, 0)
	recordList.Title = "Submitted Inspections"
	recordList.SetShowStatusBar(false)
	recordList.SetFilteringEnabled(true)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF"))

	return &Board{
		cfg:        cfg,
		log:        lb,
		feed:       inspect.NewFeed(client),
		recordList: recordList,
		spinner:    sp,
		refresh:    cfg.File.Dashboard.RefreshInterval,
	}
}

// Init loads the feed and starts the refresh cycle.
func (b *Board) Init() tea.Cmd {
	b.log.Info("dashboard started, refresh every %s", b.refresh)
	b.loading = true
	return tea.Batch(b.spinner.Tick, b.loadRecords(), b.scheduleRefresh())
}

// Update handles messages for the dashboard.
func (b *Board) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		b.width = msg.Width
		b.height = msg.Height
		availableWidth := msg.Width - 4
		if availableWidth < 20 {
			availableWidth = msg.Width
		}
		b.showSide = msg.Width >= 90
		if b.showSide {
			b.listWidth = int(float64(availableWidth) * 0.45)
			if b.listWidth < 36 {
				b.listWidth = 36
			}
		} else {
			b.listWidth = availableWidth
		}
		listHeight := msg.Height - 8
		if listHeight < 5 {
			listHeight = msg.Height - 2
		}
		b.recordList.SetSize(b.listWidth, listHeight)
		return b, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		b.spinner, cmd = b.spinner.Update(msg)
		return b, cmd

	case recordsLoadedMsg:
		b.loading = false
		if msg.err != nil {
			b.errorMsg = feedMessage(msg.err)
			b.log.Warn("feed refresh failed: %v", msg.err)
			return b, nil
		}
		b.errorMsg = ""
		b.records = msg.records
		items := make([]list.Item, len(msg.records))
		for i, record := range msg.records {
			items[i] = recordItem{record: record}
		}
		b.recordList.SetItems(items)
		b.statusMsg = fmt.Sprintf("%d inspections · updated %s", len(msg.records), time.Now().Format("15:04:05"))
		return b, nil

	case refreshTickMsg:
		// A manual refresh may already be in flight; skip this cycle
		// rather than stack requests.
		cmds := []tea.Cmd{b.scheduleRefresh()}
		if !b.loading {
			b.loading = true
			cmds = append(cmds, b.loadRecords())
		}
		return b, tea.Batch(cmds...)

	case forceVerifyDoneMsg:
		if msg.err != nil {
			b.errorMsg = feedMessage(msg.err)
			b.log.Warn("force-verify %s failed: %v", msg.caseID, msg.err)
			return b, nil
		}
		b.errorMsg = ""
		b.statusMsg = fmt.Sprintf("Forced %s to verified", msg.caseID)
		b.log.Info("force-verify %s: %s", msg.caseID, msg.result.Status)
		b.loading = true
		return b, b.loadRecords()

	case tea.KeyMsg:
		return b.onBoardKey(msg)
	}

	var cmd tea.Cmd
	b.recordList, cmd = b.recordList.Update(msg)
	return b, cmd
}

func (b *Board) onBoardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// A pending confirmation takes over the keyboard.
	if b.confirming != "" {
		switch msg.String() {
		case "y", "Y":
			caseID := b.confirming
			b.confirming = ""
			return b, b.forceVerify(caseID)
		case "n", "N", "esc":
			b.confirming = ""
			b.statusMsg = "Force-verify cancelled"
		}
		return b, nil
	}

	switch msg.String() {
	case "ctrl+c", "q":
		if !b.recordList.SettingFilter() {
			b.log.Info("dashboard closed")
			return b, tea.Quit
		}
	case "r":
		if !b.recordList.SettingFilter() && !b.loading {
			b.loading = true
			return b, b.loadRecords()
		}
	case "v":
		if !b.recordList.SettingFilter() {
			if record := b.selectedRecord(); record != nil {
				b.confirming = record.CaseID
				return b, nil
			}
		}
	}

	var cmd tea.Cmd
	b.recordList, cmd = b.recordList.Update(msg)
	return b, cmd
}

// View renders the dashboard.
func (b *Board) View() string {
	header := headerStyle.Render("⬡ FIELDBOARD")

	content := b.renderBoardContent()
	if b.errorMsg != "" {
		errBlock := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#FF6B6B")).
			Padding(0, 1).
			Render(fmt.Sprintf("⚠ %s", b.errorMsg))
		content = fmt.Sprintf("%s\n\n%s", content, errBlock)
	}
	if b.confirming != "" {
		confirm := warnStyle.Render(fmt.Sprintf("Force %s to verified? This overrides the AI verdict. y/n", b.confirming))
		content = fmt.Sprintf("%s\n\n%s", content, confirm)
	}

	footer := b.statusMsg
	if b.loading {
		footer = fmt.Sprintf("%s refreshing...", b.spinner.View())
	}
	footer = dimStyle.MarginTop(1).Render(footer + "   r refresh · v force-verify · q quit")

	return fmt.Sprintf("%s\n%s\n%s", header, content, footer)
}

func (b *Board) renderBoardContent() string {
	listView := b.recordList.View()
	detail := b.renderRecordDetail()
	if detail == "" {
		return listView
	}
	if b.showSide {
		return lipgloss.JoinHorizontal(lipgloss.Top, listView, detail)
	}
	return fmt.Sprintf("%s\n\n%s", listView, detail)
}

func (b *Board) renderRecordDetail() string {
	record := b.selectedRecord()
	if record == nil {
		return ""
	}
	detailWidth := b.width - b.listWidth - 6
	if !b.showSide {
		detailWidth = b.width - 4
	}
	if detailWidth < 36 {
		detailWidth = 36
	}

	nameStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FFD479"))
	sectionTitle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#5B8DEF")).
		Bold(true)
	bodyStyle := lipgloss.NewStyle().
		Width(detailWidth).
		Padding(0, 1)
	borderStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#555555")).
		Padding(1, 2).
		Width(detailWidth + 4)

	var sections []string
	sections = append(sections, nameStyle.Render(fmt.Sprintf("%s · %s", record.CaseID, verdictLabel(record.Verdict()))))
	sections = append(sections, fmt.Sprintf("Submitted %s at %.5f, %.5f",
		record.CreatedAt.Format("2006-01-02 15:04:05"), record.GPSLat, record.GPSLong))
	if ai := record.AIResult; ai != nil {
		var lines []string
		if ai.LivenessCheck != "" {
			lines = append(lines, "Liveness: "+ai.LivenessCheck)
		}
		if ai.RiskAssessment != "" {
			lines = append(lines, "Risk: "+ai.RiskAssessment)
		}
		if ai.StockAssessment != "" {
			lines = append(lines, "Stock: "+ai.StockAssessment)
		}
		if len(lines) > 0 {
			sections = append(sections, fmt.Sprintf("%s\n%s", sectionTitle.Render("AI Review"), strings.Join(lines, "\n")))
		}
	}
	if record.VideoURL != "" {
		sections = append(sections, fmt.Sprintf("%s\n%s", sectionTitle.Render("Video"), record.VideoURL))
	}
	if record.ReportURL != "" {
		sections = append(sections, fmt.Sprintf("%s\n%s", sectionTitle.Render("Report"), record.ReportURL))
	}

	body := bodyStyle.Render(strings.Join(sections, "\n\n"))
	return borderStyle.Render(body)
}

func verdictLabel(verdict string) string {
	switch verdict {
	case inspect.StatusApproved:
		return "✓ " + verdict
	case inspect.StatusRejected:
		return "✗ " + verdict
	default:
		return verdict
	}
}

func (b *Board) selectedRecord() *inspect.Record {
	item, ok := b.recordList.SelectedItem().(recordItem)
	if !ok {
		return nil
	}
	return &item.record
}

// loadRecords fetches the inspection feed.
func (b *Board) loadRecords() tea.Cmd {
	feed := b.feed
	timeout := b.cfg.File.Backend.RequestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		records, err := feed.List(ctx)
		return recordsLoadedMsg{records: records, err: err}
	}
}

func (b *Board) scheduleRefresh() tea.Cmd {
	return tea.Tick(b.refresh, func(time.Time) tea.Msg {
		return refreshTickMsg{}
	})
}

func (b *Board) forceVerify(caseID string) tea.Cmd {
	feed := b.feed
	timeout := b.cfg.File.Backend.RequestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		result, err := feed.ForceVerify(ctx, caseID)
		return forceVerifyDoneMsg{caseID: caseID, result: result, err: err}
	}
}

func feedMessage(err error) string {
	if be := backend.AsError(err); be != nil {
		return be.UserMessage()
	}
	return err.Error()
}
