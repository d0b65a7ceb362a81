// internal/tui/app.go
//
// The capture client TUI. It follows The Elm Architecture:
//
// 1. Model: the App struct holds all UI state
// 2. Update: reacts to messages and advances the flow controller
// 3. View: renders the screen for the controller's current state
//
// All flow decisions live in internal/flow; this file only dispatches
// asynchronous work and renders the outcome.

package tui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"fieldproof/internal/backend"
	"fieldproof/internal/capture"
	"fieldproof/internal/config"
	"fieldproof/internal/flow"
	"fieldproof/internal/geo"
	"fieldproof/internal/location"
	"fieldproof/internal/logbook"
	"fieldproof/internal/session"
	"fieldproof/internal/upload"
)

const uploadPollInterval = 150 * time.Millisecond

// Messages produced by asynchronous commands.

type locationResultMsg struct {
	fix geo.Position
	err error
}

type validationResultMsg struct {
	decision session.Decision
	err      error
}

type captureReadyMsg struct {
	err error
}

type recordingDoneMsg struct {
	gen      int
	artifact *capture.Artifact
	err      error
}

type recordTickMsg struct {
	gen int
}

type uploadResultMsg struct {
	result *upload.Result
	err    error
}

type uploadProgressTickMsg struct{}

// App is the capture client model.
type App struct {
	cfg       *config.Config
	log       *logbook.Logbook
	flow      *flow.Controller
	gate      *location.Gate
	validator *session.Validator
	capture   *capture.Session
	uploader  *upload.Manager
	provider  location.Provider

	spinner  spinner.Model
	progress progress.Model

	width  int
	height int

	// recording bookkeeping; recordGen invalidates stale timer ticks
	// fired after the recording screen is gone.
	recording   bool
	recordGen   int
	recordStart time.Time
	recordLen   time.Duration
	stopRecord  context.CancelFunc

	uploading bool
	statusMsg string
}

// NewApp wires the full client together for one session identifier.
func NewApp(cfg *config.Config, lb *logbook.Logbook, sessionID string) *App {
	client := backend.NewClient(cfg.File.Backend.BaseURL, cfg.File.Backend.RequestTimeout)
	provider := buildProvider(cfg)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF"))

	return &App{
		cfg:       cfg,
		log:       lb,
		flow:      flow.NewController(sessionID),
		gate:      location.NewGate(provider, location.WithTimeout(cfg.File.Location.Timeout)),
		validator: session.NewValidator(client),
		capture:   capture.NewSession(buildDevice(cfg)),
		uploader:  upload.NewManager(client, upload.WithTimeout(cfg.File.Backend.UploadTimeout)),
		provider:  provider,
		spinner:   sp,
		progress:  progress.New(progress.WithDefaultGradient()),
		recordLen: cfg.RecordDuration(),
	}
}

func buildProvider(cfg *config.Config) location.Provider {
	loc := cfg.File.Location
	if loc.Provider == config.ProviderStatic && loc.Static != nil {
		return &location.StaticProvider{
			Lat:      loc.Static.Lat,
			Long:     loc.Static.Long,
			Accuracy: loc.Static.Accuracy,
		}
	}
	return &location.CommandProvider{Command: loc.Command, Args: loc.Args}
}

func buildDevice(cfg *config.Config) capture.Device {
	return &capture.FFmpegDevice{
		FFmpeg:      cfg.File.Capture.FFmpeg,
		VideoDevice: cfg.File.Capture.VideoDevice,
		AudioDevice: cfg.File.Capture.AudioDevice,
		SpoolDir:    cfg.SpoolDir(),
	}
}

// Init starts the spinner and fires the location request immediately:
// the permission screen is live from the first frame.
func (a *App) Init() tea.Cmd {
	a.log.Info("session %s · flow started via %s", a.flow.SessionID(), a.provider.Describe())
	return tea.Batch(a.spinner.Tick, a.requestLocation())
}

// Update advances the model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.progress.Width = clamp(msg.Width-20, 10, 60)
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case locationResultMsg:
		return a.onLocationResult(msg)

	case validationResultMsg:
		return a.onValidationResult(msg)

	case captureReadyMsg:
		return a.onCaptureReady(msg)

	case recordTickMsg:
		if !a.recording || msg.gen != a.recordGen {
			// Stale timer from a screen we already left.
			return a, nil
		}
		if a.recordRemaining() <= 0 {
			return a, nil
		}
		return a, a.scheduleRecordTick()

	case recordingDoneMsg:
		return a.onRecordingDone(msg)

	case uploadProgressTickMsg:
		if !a.uploading {
			return a, nil
		}
		return a, a.scheduleProgressTick()

	case uploadResultMsg:
		return a.onUploadResult(msg)

	case tea.KeyMsg:
		return a.onKey(msg)
	}
	return a, nil
}

func (a *App) onKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return a, a.quit()
	case "q":
		if a.flow.State() == flow.StateSubmitted || a.flow.State() == flow.StateBlocked {
			return a, a.quit()
		}
	}

	switch a.flow.State() {
	case flow.StateBlocked:
		if msg.String() == "r" && a.flow.BlockReason().Recoverable() {
			if err := a.flow.RetryLocation(); err == nil {
				a.log.Info("location retry requested")
				return a, a.requestLocation()
			}
		}

	case flow.StateValidating:
		if msg.String() == "r" && a.flow.ValidationError() != "" {
			if err := a.flow.RetryValidation(); err == nil {
				a.log.Info("validation retry requested")
				return a, a.validate(a.flow.Position())
			}
		}

	case flow.StateReady:
		switch msg.String() {
		case "enter":
			return a.beginRecording()
		case "s":
			if a.recording && a.stopRecord != nil {
				a.log.Info("recording stopped early by operator")
				a.stopRecord()
			}
		}

	case flow.StateRecorded:
		switch msg.String() {
		case "u":
			return a.beginUpload()
		case "d":
			return a.discardAndRerecord()
		}

	case flow.StateUploading:
		if msg.String() == "esc" || msg.String() == "c" {
			a.log.Info("upload cancel requested")
			a.uploader.Cancel()
		}
	}
	return a, nil
}

// quit releases the camera and timers on the way out: no exit path may
// leave tracks running.
func (a *App) quit() tea.Cmd {
	if a.stopRecord != nil {
		a.stopRecord()
		a.stopRecord = nil
	}
	a.uploader.Cancel()
	a.capture.Release()
	a.log.Info("session %s · client closed in state %s", a.flow.SessionID(), a.flow.State())
	return tea.Quit
}

// --- location ---

func (a *App) requestLocation() tea.Cmd {
	gate := a.gate
	return func() tea.Msg {
		fix, err := gate.Request(context.Background())
		return locationResultMsg{fix: fix, err: err}
	}
}

func (a *App) onLocationResult(msg locationResultMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		var gerr *location.Error
		if errors.As(msg.err, &gerr) && gerr.Cause == location.CauseDenied {
			a.log.Warn("location denied: %v", msg.err)
			_ = a.flow.LocationDenied(gerr.UserMessage())
			return a, nil
		}
		message := "Could not determine your position. Retry."
		if gerr != nil {
			message = gerr.UserMessage()
		}
		a.log.Warn("location error: %v", msg.err)
		_ = a.flow.LocationFailed(message)
		return a, nil
	}

	if msg.fix.Weak() {
		a.log.Warn("weak fix accuracy %.0fm at %s", msg.fix.Accuracy, msg.fix)
	} else {
		a.log.Info("position fix %s", msg.fix)
	}
	dispatch, err := a.flow.LocationGranted(msg.fix)
	if err != nil {
		a.log.Error("flow: %v", err)
		return a, nil
	}
	if !dispatch {
		return a, nil
	}
	return a, a.validate(msg.fix)
}

// --- validation ---

func (a *App) validate(pos geo.Position) tea.Cmd {
	validator := a.validator
	id := a.flow.SessionID()
	return func() tea.Msg {
		d, err := validator.Validate(context.Background(), id, pos)
		return validationResultMsg{decision: d, err: err}
	}
}

func (a *App) onValidationResult(msg validationResultMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		be := backend.AsError(msg.err)
		message := "Could not validate the session. Retry."
		if be != nil {
			message = be.UserMessage()
		}
		a.log.Warn("validation failed: %v", msg.err)
		_ = a.flow.ValidationFailed(message)
		return a, nil
	}
	if !msg.decision.Allowed {
		a.log.Warn("session rejected: %s", msg.decision.Reason)
		_ = a.flow.ValidationRejected(msg.decision.Reason)
		return a, nil
	}
	a.log.Info("session allowed, verification code issued")
	if err := a.flow.ValidationAllowed(msg.decision.VerificationCode); err != nil {
		a.log.Error("flow: %v", err)
	}
	return a, nil
}

// --- recording ---

func (a *App) beginRecording() (tea.Model, tea.Cmd) {
	switch a.capture.State() {
	case capture.StatePreviewing:
		return a, a.startRecording()
	case capture.StateIdle, capture.StateError:
		cap := a.capture
		return a, func() tea.Msg {
			return captureReadyMsg{err: cap.StartCapture(context.Background())}
		}
	}
	return a, nil
}

func (a *App) onCaptureReady(msg captureReadyMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		a.log.Warn("capture: %v", msg.err)
		a.statusMsg = captureMessage(msg.err)
		return a, nil
	}
	a.statusMsg = ""
	return a, a.startRecording()
}

func (a *App) startRecording() tea.Cmd {
	a.recordGen++
	gen := a.recordGen
	a.recording = true
	a.recordStart = time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	a.stopRecord = cancel

	cam := a.capture
	code := a.flow.Code()
	duration := a.recordLen
	a.log.Info("recording started (%ds, code on screen)", int(duration.Seconds()))

	record := func() tea.Msg {
		art, err := cam.StartRecording(ctx, code, duration)
		return recordingDoneMsg{gen: gen, artifact: art, err: err}
	}
	return tea.Batch(record, a.scheduleRecordTick())
}

func (a *App) scheduleRecordTick() tea.Cmd {
	gen := a.recordGen
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return recordTickMsg{gen: gen}
	})
}

func (a *App) recordRemaining() time.Duration {
	remaining := a.recordLen - time.Since(a.recordStart)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (a *App) onRecordingDone(msg recordingDoneMsg) (tea.Model, tea.Cmd) {
	if msg.gen != a.recordGen {
		return a, nil
	}
	a.recording = false
	if a.stopRecord != nil {
		a.stopRecord()
		a.stopRecord = nil
	}

	if msg.err != nil {
		a.log.Warn("recording failed: %v", msg.err)
		a.statusMsg = captureMessage(msg.err)
		return a, nil
	}
	a.log.Info("recording complete (%d bytes)", msg.artifact.Size)
	a.statusMsg = ""
	if err := a.flow.RecordingComplete(msg.artifact); err != nil {
		a.log.Error("flow: %v", err)
	}
	return a, nil
}

func (a *App) discardAndRerecord() (tea.Model, tea.Cmd) {
	if err := a.flow.Rerecord(); err != nil {
		return a, nil
	}
	// A new recording invalidates any pending retry state.
	a.uploader.Reset()
	a.capture.ResetCapture()
	a.log.Info("artifact discarded for re-record")
	return a, nil
}

// --- upload ---

func (a *App) beginUpload() (tea.Model, tea.Cmd) {
	retrying := a.flow.UploadError() != ""
	if err := a.flow.ConfirmUpload(); err != nil {
		a.log.Error("flow: %v", err)
		return a, nil
	}
	a.uploading = true

	uploader := a.uploader
	artifact := a.flow.Artifact()
	id := a.flow.SessionID()
	code := a.flow.Code()

	var send tea.Cmd
	if retrying {
		a.log.Info("upload retry (%d bytes)", artifact.Size)
		send = func() tea.Msg {
			res, err := uploader.Retry(context.Background())
			return uploadResultMsg{result: res, err: err}
		}
	} else {
		a.log.Info("upload started (%d bytes)", artifact.Size)
		send = func() tea.Msg {
			res, err := uploader.Upload(context.Background(), artifact, id, code)
			return uploadResultMsg{result: res, err: err}
		}
	}
	return a, tea.Batch(send, a.scheduleProgressTick())
}

func (a *App) scheduleProgressTick() tea.Cmd {
	return tea.Tick(uploadPollInterval, func(time.Time) tea.Msg {
		return uploadProgressTickMsg{}
	})
}

func (a *App) onUploadResult(msg uploadResultMsg) (tea.Model, tea.Cmd) {
	a.uploading = false
	if msg.err != nil {
		be := backend.AsError(msg.err)
		if be != nil && be.Kind == backend.KindCanceled {
			a.log.Info("upload canceled")
			_ = a.flow.UploadCanceled()
			return a, nil
		}
		message := "Upload failed. Retry."
		if be != nil {
			message = be.UserMessage()
		}
		a.log.Warn("upload failed: %v", msg.err)
		_ = a.flow.UploadFailed(message)
		return a, nil
	}
	a.log.Info("upload succeeded: %s", msg.result.VideoURL)
	if err := a.flow.UploadSucceeded(msg.result); err != nil {
		a.log.Error("flow: %v", err)
	}
	return a, nil
}

func captureMessage(err error) string {
	var ce *capture.Error
	if errors.As(err, &ce) {
		return ce.UserMessage()
	}
	return "Recording failed. Retry."
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
