package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/BoothGo/internal/filter"
)

// CameraConfig describes the live video source.
// Type selects a concrete implementation ("webcam" or "mock").
type CameraConfig struct {
	Type     string `yaml:"type"`      // e.g., "webcam"
	DeviceID int    `yaml:"device_id"` // OpenCV device index
	Width    int    `yaml:"width"`     // requested frame width (0 = device default)
	Height   int    `yaml:"height"`    // requested frame height (0 = device default)
}

// BoothConfig holds the capture sequence and rendering parameters.
type BoothConfig struct {
	Shots          int      `yaml:"shots"`            // stills per strip
	Stages         []string `yaml:"stages"`           // countdown tokens
	StageDelayMs   int      `yaml:"stage_delay_ms"`   // time each countdown token is shown
	SettleDelayMs  int      `yaml:"settle_delay_ms"`  // pause after each shot
	RetryDelayMs   int      `yaml:"retry_delay_ms"`   // wait before retrying a not-ready camera
	DefaultFilter  string   `yaml:"default_filter"`   // initial filter selection
	GrainPath      string   `yaml:"grain_path"`       // film-grain texture (PNG/JPEG); empty disables the overlay
	GrainTimeoutMs int      `yaml:"grain_timeout_ms"` // bound on loading the texture
	JPEGQuality    int      `yaml:"jpeg_quality"`     // still quality (1-100)
}

// StripConfig describes the exported photostrip.
type StripConfig struct {
	Width       int     `yaml:"width"`        // strip width in pixels
	Padding     int     `yaml:"padding"`      // frame border
	Gap         int     `yaml:"gap"`          // space between photos
	CaptionSize float64 `yaml:"caption_size"` // caption font size (px)
	JPEGQuality int     `yaml:"jpeg_quality"` // strip quality (1-100)
	OutputDir   string  `yaml:"output_dir"`   // where headless runs write the strip
}

// ButtonConfig is the optional physical shutter button (Raspberry Pi GPIO).
type ButtonConfig struct {
	Enabled    bool `yaml:"enabled"`
	Pin        int  `yaml:"pin"`         // BCM input pin, active LOW with pull-up
	LampPin    int  `yaml:"lamp_pin"`    // BCM output pin lit while shooting. 0 = not used.
	DebounceMs int  `yaml:"debounce_ms"` // press must be stable this long
	PollMs     int  `yaml:"poll_ms"`     // pin sampling period
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// MaxConfigFileBytes bounds the size of a config file Load will read.
const MaxConfigFileBytes = 1 << 20

// Config aggregates all application configuration.
type Config struct {
	Camera   CameraConfig   `yaml:"camera"`
	Booth    BoothConfig    `yaml:"booth"`
	Strip    StripConfig    `yaml:"strip"`
	Button   ButtonConfig   `yaml:"button"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath checks that path names a .yaml file directly inside a
// configs/ directory, without traversal.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	clean := filepath.Clean(path)
	for _, part := range strings.Split(filepath.ToSlash(clean), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not traverse directories", path)
		}
	}
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxConfigFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	// Basic validation
	switch cfg.Camera.Type {
	case "":
		return nil, fmt.Errorf("camera.type is required")
	case "webcam", "mock":
	default:
		return nil, fmt.Errorf("unsupported camera.type: %s", cfg.Camera.Type)
	}
	if cfg.Camera.DeviceID < 0 {
		return nil, fmt.Errorf("camera.device_id must be >= 0, got %d", cfg.Camera.DeviceID)
	}
	if cfg.Camera.Width < 0 || cfg.Camera.Height < 0 {
		return nil, fmt.Errorf("camera width/height must be >= 0")
	}

	// Sequence defaults
	if cfg.Booth.Shots <= 0 {
		cfg.Booth.Shots = 3
	}
	if cfg.Booth.Shots > 10 {
		return nil, fmt.Errorf("booth.shots must be <= 10, got %d", cfg.Booth.Shots)
	}
	if len(cfg.Booth.Stages) == 0 {
		cfg.Booth.Stages = []string{"3..", "2..", "1..", "Smile!"}
	}
	if cfg.Booth.StageDelayMs <= 0 {
		cfg.Booth.StageDelayMs = 1000
	}
	if cfg.Booth.SettleDelayMs <= 0 {
		cfg.Booth.SettleDelayMs = 500
	}
	if cfg.Booth.RetryDelayMs <= 0 {
		cfg.Booth.RetryDelayMs = 100
	}
	if cfg.Booth.DefaultFilter == "" {
		cfg.Booth.DefaultFilter = string(filter.Default)
	}
	id, ok := filter.Parse(cfg.Booth.DefaultFilter)
	if !ok {
		return nil, fmt.Errorf("booth.default_filter: unknown filter %q", cfg.Booth.DefaultFilter)
	}
	cfg.Booth.DefaultFilter = string(id)
	if cfg.Booth.GrainTimeoutMs <= 0 {
		cfg.Booth.GrainTimeoutMs = 2000
	}
	if cfg.Booth.JPEGQuality == 0 {
		cfg.Booth.JPEGQuality = 92
	}
	if cfg.Booth.JPEGQuality < 1 || cfg.Booth.JPEGQuality > 100 {
		return nil, fmt.Errorf("booth.jpeg_quality must be between 1 and 100, got %d", cfg.Booth.JPEGQuality)
	}

	// Strip defaults
	if cfg.Strip.Width <= 0 {
		cfg.Strip.Width = 400
	}
	if cfg.Strip.Padding <= 0 {
		cfg.Strip.Padding = 20
	}
	if cfg.Strip.Gap <= 0 {
		cfg.Strip.Gap = 15
	}
	if cfg.Strip.Width <= 2*cfg.Strip.Padding {
		return nil, fmt.Errorf("strip.width must exceed twice strip.padding")
	}
	if cfg.Strip.CaptionSize <= 0 {
		cfg.Strip.CaptionSize = 22
	}
	if cfg.Strip.JPEGQuality == 0 {
		cfg.Strip.JPEGQuality = 92
	}
	if cfg.Strip.JPEGQuality < 1 || cfg.Strip.JPEGQuality > 100 {
		return nil, fmt.Errorf("strip.jpeg_quality must be between 1 and 100, got %d", cfg.Strip.JPEGQuality)
	}
	if cfg.Strip.OutputDir == "" {
		cfg.Strip.OutputDir = "."
	}

	// Button
	if cfg.Button.Enabled && cfg.Button.Pin <= 0 {
		return nil, fmt.Errorf("button.pin is required when the button is enabled")
	}
	if cfg.Button.DebounceMs <= 0 {
		cfg.Button.DebounceMs = 50
	}
	if cfg.Button.PollMs <= 0 {
		cfg.Button.PollMs = 10
	}

	return &cfg, nil
}

// StageDelay returns how long each countdown token is shown.
func (c *Config) StageDelay() time.Duration {
	return time.Duration(c.Booth.StageDelayMs) * time.Millisecond
}

// SettleDelay returns the pause after each shot.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Booth.SettleDelayMs) * time.Millisecond
}

// RetryDelay returns the wait before retrying a not-ready camera.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Booth.RetryDelayMs) * time.Millisecond
}

// GrainTimeout returns the bound on loading the grain texture.
func (c *Config) GrainTimeout() time.Duration {
	return time.Duration(c.Booth.GrainTimeoutMs) * time.Millisecond
}

// DefaultFilter returns the initial filter selection.
func (c *Config) DefaultFilter() filter.ID {
	return filter.ID(c.Booth.DefaultFilter)
}

// Debounce returns the button debounce interval.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Button.DebounceMs) * time.Millisecond
}

// PollInterval returns the button sampling period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Button.PollMs) * time.Millisecond
}
