package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"fieldproof/internal/geo"
)

// Provider yields one fresh position fix per call. Implementations must
// not serve cached reads; the gate enforces freshness on top anyway.
type Provider interface {
	// Current blocks until a fix is available, ctx is done, or the
	// capability is denied/unavailable.
	Current(ctx context.Context) (geo.Position, error)
	// Describe names the provider for the logbook.
	Describe() string
}

// ErrPermissionDenied signals that the operator (or the OS) refused
// location access. This is terminal for the flow.
var ErrPermissionDenied = errors.New("location: permission denied")

// ErrUnavailable signals that no positioning capability exists on this
// host (helper missing, no GPS hardware).
var ErrUnavailable = errors.New("location: position unavailable")

// CommandProvider shells out to a location helper that prints a JSON fix
// on stdout, e.g. termux-location or a gpsd wrapper.
type CommandProvider struct {
	Command string
	Args    []string
}

// commandFix matches the JSON emitted by termux-location and compatible
// helpers.
type commandFix struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

// Current runs the helper once and parses its output.
func (p *CommandProvider) Current(ctx context.Context) (geo.Position, error) {
	cmd := exec.CommandContext(ctx, p.Command, p.Args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return geo.Position{}, ctx.Err()
		}
		lowered := strings.ToLower(string(output))
		switch {
		case strings.Contains(lowered, "denied") || strings.Contains(lowered, "permission"):
			return geo.Position{}, fmt.Errorf("%w: %s", ErrPermissionDenied, firstLine(lowered))
		case errors.Is(err, exec.ErrNotFound):
			return geo.Position{}, fmt.Errorf("%w: helper %q not installed", ErrUnavailable, p.Command)
		}
		return geo.Position{}, fmt.Errorf("location: %s: %w", p.Command, err)
	}

	var fix commandFix
	if err := json.Unmarshal(output, &fix); err != nil {
		return geo.Position{}, fmt.Errorf("location: parse %s output: %w", p.Command, err)
	}
	return geo.Position{
		Lat:       fix.Latitude,
		Long:      fix.Longitude,
		Accuracy:  fix.Accuracy,
		Timestamp: time.Now(),
	}, nil
}

func (p *CommandProvider) Describe() string {
	return fmt.Sprintf("command provider (%s)", p.Command)
}

// StaticProvider returns a fixed position. It exists for kiosk installs
// bolted to a known site; it cannot prove presence, so callers log its
// use as a reduced-trust mode.
type StaticProvider struct {
	Lat      float64
	Long     float64
	Accuracy float64
}

func (p *StaticProvider) Current(_ context.Context) (geo.Position, error) {
	return geo.Position{
		Lat:       p.Lat,
		Long:      p.Long,
		Accuracy:  p.Accuracy,
		Timestamp: time.Now(),
	}, nil
}

func (p *StaticProvider) Describe() string {
	return "static provider (reduced trust)"
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
