// internal/config/config.go
//
// This package handles configuration and the .fieldproof directory
// structure. Every operator machine gets a .fieldproof/ folder in the
// user's home directory (or wherever FIELDPROOF_HOME points).

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// FieldproofDir is the name of the directory we create.
	FieldproofDir = ".fieldproof"

	// Location provider kinds.
	ProviderCommand = "command"
	ProviderStatic  = "static"
)

const (
	defaultRequestTimeout  = 15 * time.Second
	defaultUploadTimeout   = 3 * time.Minute
	defaultLocationTimeout = 10 * time.Second
	defaultRecordSeconds   = 10
	defaultRefreshInterval = 5 * time.Second
)

const defaultConfigYAML = `# fieldproof client configuration
version: 1

backend:
  base_url: http://127.0.0.1:8000
  # request_timeout: 15s
  # upload_timeout: 3m

location:
  # provider is "command" (shell out to a location helper emitting JSON)
  # or "static" (fixed coordinates, reduced-trust kiosk installs only).
  provider: command
  command: termux-location
  args: ["-p", "gps", "-r", "once"]
  # timeout: 10s
  # static:
  #   lat: 19.0760
  #   long: 72.8777
  #   accuracy: 15

capture:
  ffmpeg: ffmpeg
  video_device: /dev/video0
  audio_device: default
  duration_seconds: 10

dashboard:
  refresh_interval: 5s
`

// BackendConfig points the client at the audit backend.
type BackendConfig struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`
	UploadTimeout  time.Duration `yaml:"upload_timeout,omitempty"`
}

// StaticFix is a fixed position for kiosk installs. Using it trades away
// the presence guarantee, so the client logs loudly when it is active.
type StaticFix struct {
	Lat      float64 `yaml:"lat"`
	Long     float64 `yaml:"long"`
	Accuracy float64 `yaml:"accuracy"`
}

// LocationConfig selects and tunes the position provider.
type LocationConfig struct {
	Provider string        `yaml:"provider"`
	Command  string        `yaml:"command,omitempty"`
	Args     []string      `yaml:"args,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
	Static   *StaticFix    `yaml:"static,omitempty"`
}

// CaptureConfig tunes the recording pipeline.
type CaptureConfig struct {
	FFmpeg          string `yaml:"ffmpeg"`
	VideoDevice     string `yaml:"video_device"`
	AudioDevice     string `yaml:"audio_device"`
	DurationSeconds int    `yaml:"duration_seconds"`
}

// DashboardConfig tunes the inspection board.
type DashboardConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval,omitempty"`
}

// FileConfig models .fieldproof/config.yaml.
type FileConfig struct {
	Version   int             `yaml:"version"`
	Backend   BackendConfig   `yaml:"backend"`
	Location  LocationConfig  `yaml:"location"`
	Capture   CaptureConfig   `yaml:"capture"`
	Dashboard DashboardConfig `yaml:"dashboard"`
}

// Config holds the runtime configuration for fieldproof.
type Config struct {
	// HomeDir is the directory containing .fieldproof.
	HomeDir string

	// FieldproofHome is HomeDir/.fieldproof.
	FieldproofHome string

	File FileConfig
}

// InitFieldproofDir creates the .fieldproof directory structure and a
// commented default config if none exists yet.
func InitFieldproofDir(homeDir string) error {
	root := filepath.Join(homeDir, FieldproofDir)
	for _, dir := range []string{
		filepath.Join(root, "logs"),
		filepath.Join(root, "spool"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return ensureDefaultConfig(filepath.Join(root, "config.yaml"))
}

// New loads configuration for the given home directory, applying file
// values over defaults and FIELDPROOF_* environment overrides over both.
func New(homeDir string) (*Config, error) {
	cfg := &Config{
		HomeDir:        homeDir,
		FieldproofHome: filepath.Join(homeDir, FieldproofDir),
		File:           defaultFileConfig(),
	}
	if err := cfg.loadFile(); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	cfg.File.normalize()
	if err := cfg.File.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// HomeDir resolves the directory that holds .fieldproof, honoring the
// FIELDPROOF_HOME override so tests and kiosks can relocate it.
func HomeDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv("FIELDPROOF_HOME")); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home dir: %w", err)
	}
	return home, nil
}

// ConfigPath returns the on-disk location of config.yaml.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.FieldproofHome, "config.yaml")
}

// LogPath returns the logbook location.
func (c *Config) LogPath() string {
	return filepath.Join(c.FieldproofHome, "logs", "fieldproof.log")
}

// SpoolDir returns the scratch directory used during recording.
func (c *Config) SpoolDir() string {
	return filepath.Join(c.FieldproofHome, "spool")
}

// RecordDuration returns the configured recording length.
func (c *Config) RecordDuration() time.Duration {
	return time.Duration(c.File.Capture.DurationSeconds) * time.Second
}

func (c *Config) loadFile() error {
	path := c.ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var parsed FileConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	parsed.applyDefaults()
	c.File = parsed
	return nil
}

func (c *Config) applyEnvOverrides() {
	if url := strings.TrimSpace(os.Getenv("FIELDPROOF_BACKEND_URL")); url != "" {
		c.File.Backend.BaseURL = url
	}
	if provider := strings.TrimSpace(os.Getenv("FIELDPROOF_LOCATION_PROVIDER")); provider != "" {
		c.File.Location.Provider = provider
	}
	if cmd := strings.TrimSpace(os.Getenv("FIELDPROOF_LOCATION_COMMAND")); cmd != "" {
		c.File.Location.Command = cmd
	}
	if secs := strings.TrimSpace(os.Getenv("FIELDPROOF_RECORD_SECONDS")); secs != "" {
		if parsed, err := strconv.Atoi(secs); err == nil && parsed > 0 {
			c.File.Capture.DurationSeconds = parsed
		}
	}
}

func defaultFileConfig() FileConfig {
	fc := FileConfig{}
	fc.applyDefaults()
	return fc
}

func (fc *FileConfig) applyDefaults() {
	if fc.Version == 0 {
		fc.Version = 1
	}
	if fc.Backend.BaseURL == "" {
		fc.Backend.BaseURL = "http://127.0.0.1:8000"
	}
	if fc.Backend.RequestTimeout <= 0 {
		fc.Backend.RequestTimeout = defaultRequestTimeout
	}
	if fc.Backend.UploadTimeout <= 0 {
		fc.Backend.UploadTimeout = defaultUploadTimeout
	}
	if fc.Location.Provider == "" {
		fc.Location.Provider = ProviderCommand
	}
	if fc.Location.Command == "" {
		fc.Location.Command = "termux-location"
	}
	if fc.Location.Timeout <= 0 {
		fc.Location.Timeout = defaultLocationTimeout
	}
	if fc.Capture.FFmpeg == "" {
		fc.Capture.FFmpeg = "ffmpeg"
	}
	if fc.Capture.VideoDevice == "" {
		fc.Capture.VideoDevice = "/dev/video0"
	}
	if fc.Capture.AudioDevice == "" {
		fc.Capture.AudioDevice = "default"
	}
	if fc.Capture.DurationSeconds <= 0 {
		fc.Capture.DurationSeconds = defaultRecordSeconds
	}
	if fc.Dashboard.RefreshInterval <= 0 {
		fc.Dashboard.RefreshInterval = defaultRefreshInterval
	}
}

func (fc *FileConfig) normalize() {
	fc.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(fc.Backend.BaseURL), "/")
	fc.Location.Provider = strings.ToLower(strings.TrimSpace(fc.Location.Provider))
	fc.Location.Command = strings.TrimSpace(fc.Location.Command)
	fc.Capture.FFmpeg = strings.TrimSpace(fc.Capture.FFmpeg)
	fc.Capture.VideoDevice = strings.TrimSpace(fc.Capture.VideoDevice)
	fc.Capture.AudioDevice = strings.TrimSpace(fc.Capture.AudioDevice)
}

func (fc *FileConfig) validate() error {
	if fc.Version < 1 {
		return fmt.Errorf("version must be >= 1")
	}
	if fc.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	switch fc.Location.Provider {
	case ProviderCommand:
		if fc.Location.Command == "" {
			return fmt.Errorf("location.command is required for the command provider")
		}
	case ProviderStatic:
		if fc.Location.Static == nil {
			return fmt.Errorf("location.static is required for the static provider")
		}
	default:
		return fmt.Errorf("location.provider must be %q or %q", ProviderCommand, ProviderStatic)
	}
	if fc.Capture.DurationSeconds <= 0 {
		return fmt.Errorf("capture.duration_seconds must be positive")
	}
	return nil
}

func ensureDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}
