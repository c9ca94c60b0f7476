// Package config provides configuration management for livecheck
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/MrCodeEU/livecheck/internal/compositor"
	"github.com/MrCodeEU/livecheck/internal/liveness"
	"github.com/MrCodeEU/livecheck/internal/quality"
	"github.com/MrCodeEU/livecheck/pkg/models"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. LIVECHECK_COMPOSITOR_ZOOM
const EnvPrefix = "LIVECHECK"

// Config holds all configuration for the application
type Config struct {
	// Inference service settings
	Inference InferenceConfig `mapstructure:"inference" yaml:"inference"`

	// Camera settings
	Camera CameraConfig `mapstructure:"camera" yaml:"camera"`

	// Preview compositing, adjustable at runtime
	Compositor compositor.Params `mapstructure:"compositor" yaml:"compositor"`

	// Quality scoring settings
	Quality quality.Options `mapstructure:"quality" yaml:"quality"`

	// Liveness detector thresholds
	Liveness liveness.Thresholds `mapstructure:"liveness" yaml:"liveness"`

	// HTTP state surface
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Storage settings
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Logging settings
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// InferenceConfig holds inference service configuration
type InferenceConfig struct {
	Address string `mapstructure:"address" yaml:"address"` // gRPC service address (e.g., localhost:50051)
	Timeout int    `mapstructure:"timeout" yaml:"timeout"` // Request timeout in seconds

	models.RetryPolicy `mapstructure:",squash" yaml:",inline"`
}

// CameraConfig holds camera-related configuration
type CameraConfig struct {
	Device      string `mapstructure:"device" yaml:"device"`             // V4L2 device path (e.g., /dev/video0)
	Width       int    `mapstructure:"width" yaml:"width"`               // Capture width
	Height      int    `mapstructure:"height" yaml:"height"`             // Capture height
	FPS         int    `mapstructure:"fps" yaml:"fps"`                   // Frames per second
	PixelFormat string `mapstructure:"pixel_format" yaml:"pixel_format"` // V4L2 pixel format: MJPEG or YUYV
}

// ServerConfig holds the HTTP/WebSocket surface configuration
type ServerConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Address   string `mapstructure:"address" yaml:"address"`     // Listen address (e.g., 127.0.0.1:8080)
	Snapshots int    `mapstructure:"snapshots" yaml:"snapshots"` // Evidence frames kept in memory
}

// StorageConfig holds data storage configuration
type StorageConfig struct {
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"` // SQLite audit log path (empty = disabled)
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"` // Log level: debug, info, warn, error
	File  string `mapstructure:"file" yaml:"file"`   // Log file path (empty = stdout only)
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Inference: InferenceConfig{
			Address:     "localhost:50051",
			Timeout:     5,
			RetryPolicy: models.DefaultRetryPolicy(),
		},
		Camera: CameraConfig{
			Device:      "/dev/video0",
			Width:       1280,
			Height:      720,
			FPS:         30,
			PixelFormat: "MJPEG",
		},
		Compositor: compositor.DefaultParams(),
		Quality:    quality.DefaultOptions(),
		Liveness:   liveness.DefaultThresholds(),
		Server: ServerConfig{
			Enabled:   true,
			Address:   "127.0.0.1:8080",
			Snapshots: 6,
		},
		Storage: StorageConfig{
			DatabasePath: "",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// newViper returns a viper instance seeded with the defaults so every key can be overridden from the environment
func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("error encoding defaults: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}
	return v, nil
}

func setConfigFile(v *viper.Viper, configPath string) {
	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	// Search for config in standard locations
	v.SetConfigName("livecheck")
	v.AddConfigPath("/etc/livecheck/")
	v.AddConfigPath("$HOME/.livecheck")
	v.AddConfigPath(".")
}

// Load loads configuration from file and environment variables.
// Without a path, a missing config file is not an error.
func Load(configPath string) (*Config, error) {
	cfg, _, err := load(configPath)
	return cfg, err
}

func load(configPath string) (*Config, *viper.Viper, error) {
	v, err := newViper()
	if err != nil {
		return nil, nil, err
	}
	setConfigFile(v, configPath)

	// Read config file (optional)
	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return cfg, v, nil
}

// Render encodes the configuration as YAML
func (c *Config) Render() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("error encoding config: %w", err)
	}
	return data, nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := c.Render()
	if err != nil {
		return err
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing config: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate camera settings
	if c.Camera.Device == "" {
		return fmt.Errorf("camera device cannot be empty")
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("invalid camera resolution: %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Camera.FPS <= 0 {
		return fmt.Errorf("camera fps must be positive")
	}
	switch strings.ToUpper(c.Camera.PixelFormat) {
	case "MJPEG", "YUYV":
	default:
		return fmt.Errorf("unsupported pixel format %q", c.Camera.PixelFormat)
	}

	// Validate inference settings
	if c.Inference.Address == "" {
		return fmt.Errorf("inference address cannot be empty")
	}
	if c.Inference.Timeout <= 0 {
		return fmt.Errorf("inference timeout must be positive")
	}
	if c.Inference.Retries < 0 || c.Inference.Delay < 0 || c.Inference.Backoff < 1 {
		return fmt.Errorf("retry policy must have retries >= 0, delay >= 0 and backoff >= 1")
	}

	if err := c.Compositor.Validate(); err != nil {
		return err
	}
	if err := c.Liveness.Validate(); err != nil {
		return fmt.Errorf("invalid liveness thresholds: %w", err)
	}

	if c.Quality.StatsDimension <= 0 || c.Quality.SharpnessDimension <= 0 {
		return fmt.Errorf("quality downsample dimensions must be positive")
	}
	if c.Quality.MaskThreshold == 0 {
		return fmt.Errorf("quality mask threshold must be between 1 and 255")
	}

	if c.Server.Enabled && c.Server.Address == "" {
		return fmt.Errorf("server address cannot be empty when the server is enabled")
	}
	if c.Server.Snapshots < 0 {
		return fmt.Errorf("snapshot count cannot be negative")
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	return nil
}

// NewLogger builds a logger from the logging section. The returned closer
// releases the log file, if any.
func (l LoggingConfig) NewLogger() (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(level)

	if l.File == "" {
		return logger, io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(l.File), 0755); err != nil {
		return nil, nil, fmt.Errorf("error creating log directory: %w", err)
	}
	f, err := os.OpenFile(l.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening log file: %w", err)
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, f))
	return logger, f, nil
}
