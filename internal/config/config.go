package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/menta2k/video-altitude/pkg/camera"
	"github.com/menta2k/video-altitude/pkg/geometry"
	"github.com/menta2k/video-altitude/pkg/validation"
)

// Config holds the application configuration
type Config struct {
	Camera      CameraConfig      `json:"camera"`
	Method      geometry.Method   `json:"method"`
	Validation  ValidationConfig  `json:"validation"`
	Sensitivity SensitivityConfig `json:"sensitivity"`
	Grid        GridConfig        `json:"grid"`
	Frame       FrameConfig       `json:"frame"`
	Vision      VisionConfig      `json:"vision"`
	Output      OutputConfig      `json:"output"`
	Logging     LoggingConfig     `json:"logging"`
	Server      ServerConfig      `json:"server"`
	History     HistoryConfig     `json:"history"`
}

// CameraConfig selects the default camera and adds site-specific profiles
// to the built-in presets.
type CameraConfig struct {
	Default  string                   `json:"default"`
	Profiles []geometry.CameraProfile `json:"profiles,omitempty"`
}

type ValidationConfig struct {
	OutlierSigma float64 `json:"outlier_sigma"`
}

type SensitivityConfig struct {
	PixelErrorPx float64   `json:"pixel_error_px"`
	Grid         []float64 `json:"grid,omitempty"`
}

// GridConfig controls the debug grid and the loupe around the reference
type GridConfig struct {
	DebugGridCM  float64 `json:"debug_grid_cm"`
	LoupePadding float64 `json:"loupe_padding"`
	LoupeZoom    float64 `json:"loupe_zoom"`
}

type FrameConfig struct {
	MinFrameSize int    `json:"min_frame_size"`
	FFmpeg       string `json:"ffmpeg"`
	FFprobe      string `json:"ffprobe"`
}

// VisionConfig selects how the reference object is located. Backend is
// "saliency" (offline), "ollama" or "llamacpp".
type VisionConfig struct {
	Backend     string `json:"backend"`
	URL         string `json:"url,omitempty"`
	Model       string `json:"model"`
	Hint        string `json:"hint,omitempty"`
	SendFormat  string `json:"send_format"`
	SendSize    int    `json:"send_size"`
	SendQuality int    `json:"send_quality"`
}

type OutputConfig struct {
	Dir      string `json:"dir"`
	Format   string `json:"format"`
	Quality  int    `json:"quality"`
	Lossless bool   `json:"lossless"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type ServerConfig struct {
	Addr string `json:"addr"`
	// WatchConfig reloads camera profiles when the config file changes.
	WatchConfig bool `json:"watch_config"`
}

// HistoryConfig controls the SQLite log of estimates
type HistoryConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// Vision backends
const (
	BackendSaliency = "saliency"
	BackendOllama   = "ollama"
	BackendLlamaCpp = "llamacpp"
)

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Camera: CameraConfig{
			Default: camera.DJIMini3Pro,
		},
		Method: geometry.Traditional,
		Validation: ValidationConfig{
			OutlierSigma: validation.DefaultOutlierSigma,
		},
		Sensitivity: SensitivityConfig{
			PixelErrorPx: 1,
		},
		Grid: GridConfig{
			DebugGridCM:  100,
			LoupePadding: 0.5,
			LoupeZoom:    4,
		},
		Frame: FrameConfig{
			MinFrameSize: 100,
			FFmpeg:       "ffmpeg",
			FFprobe:      "ffprobe",
		},
		Vision: VisionConfig{
			Backend:     BackendSaliency,
			Model:       "openbmb/minicpm-v4.5",
			SendFormat:  "jpg",
			SendSize:    1536,
			SendQuality: 85,
		},
		Output: OutputConfig{
			Dir:     "./output",
			Format:  "png",
			Quality: 92,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: ":8088",
		},
		History: HistoryConfig{
			Path: GetHistoryPath(),
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Keys missing from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Registry builds the camera registry: built-in presets followed by the
// profiles from the config file.
func (c *Config) Registry() (*camera.Registry, error) {
	for i, p := range c.Camera.Profiles {
		if _, err := camera.Custom(p.Name, p.FocalLengthMM, p.SensorWidthMM, p.FieldOfViewDeg, p.ImageWidthPx, p.ImageHeightPx); err != nil {
			return nil, fmt.Errorf("camera.profiles[%d] %q: %w", i, p.Name, err)
		}
	}
	profiles := append(camera.DefaultProfiles(), c.Camera.Profiles...)
	reg, err := camera.NewRegistry(profiles...)
	if err != nil {
		return nil, fmt.Errorf("camera.profiles: %w", err)
	}
	return reg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	reg, err := c.Registry()
	if err != nil {
		return err
	}
	if c.Camera.Default != "" {
		if _, err := reg.Lookup(c.Camera.Default); err != nil {
			return fmt.Errorf("camera.default: %w", err)
		}
	}

	if c.Method != geometry.Traditional && c.Method != geometry.FOV {
		return fmt.Errorf("method must be %q or %q", geometry.Traditional, geometry.FOV)
	}

	if c.Validation.OutlierSigma <= 0 {
		return fmt.Errorf("validation.outlier_sigma must be positive")
	}

	if c.Sensitivity.PixelErrorPx <= 0 {
		return fmt.Errorf("sensitivity.pixel_error_px must be positive")
	}

	if c.Grid.DebugGridCM <= 0 {
		return fmt.Errorf("grid.debug_grid_cm must be positive")
	}
	if c.Grid.LoupePadding < 0 || c.Grid.LoupePadding > 5 {
		return fmt.Errorf("grid.loupe_padding must be between 0 and 5")
	}
	if c.Grid.LoupeZoom < 1 {
		return fmt.Errorf("grid.loupe_zoom must be at least 1")
	}

	if c.Frame.MinFrameSize < 1 {
		return fmt.Errorf("frame.min_frame_size must be positive")
	}

	backends := []string{BackendSaliency, BackendOllama, BackendLlamaCpp}
	if !slices.Contains(backends, c.Vision.Backend) {
		return fmt.Errorf("vision.backend must be one of %s", strings.Join(backends, ", "))
	}
	if c.Vision.Backend != BackendSaliency && c.Vision.Model == "" {
		return fmt.Errorf("vision.model is required for the %s backend", c.Vision.Backend)
	}
	if c.Vision.SendSize < 0 {
		return fmt.Errorf("vision.send_size cannot be negative")
	}
	if c.Vision.SendQuality < 1 || c.Vision.SendQuality > 100 {
		return fmt.Errorf("vision.send_quality must be between 1 and 100")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}
	if !slices.Contains([]string{"jpg", "jpeg", "png", "webp"}, strings.ToLower(c.Output.Format)) {
		return fmt.Errorf("output.format must be jpg, png or webp")
	}

	if !slices.Contains([]string{"debug", "info", "warn", "warning", "error"}, strings.ToLower(c.Logging.Level)) {
		return fmt.Errorf("logging.level %q is not recognized", c.Logging.Level)
	}
	if !slices.Contains([]string{"text", "json"}, strings.ToLower(c.Logging.Format)) {
		return fmt.Errorf("logging.format must be text or json")
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr cannot be empty")
	}

	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history.path is required when history is enabled")
	}
	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "video-altitude", "config.json")
}

// GetHistoryPath returns the default estimate history database path
func GetHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./history.db"
	}
	return filepath.Join(home, ".local", "share", "video-altitude", "history.db")
}
