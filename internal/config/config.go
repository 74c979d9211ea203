// Package config loads livecam settings from a YAML file, LIVECAM_*
// environment variables and command-line flags using viper.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ayusman/livecam/internal/logger"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Backends accepted by the backend key.
const (
	BackendSim  = "sim"
	BackendV4L2 = "v4l2"
	BackendGoCV = "gocv"
)

// EnvPrefix is prepended to environment overrides, e.g. LIVECAM_CAMERA_INDEX.
const EnvPrefix = "LIVECAM"

// Config is the effective configuration.
type Config struct {
	Backend       string        `json:"backend" yaml:"backend" mapstructure:"backend"`
	CameraIndex   int           `json:"camera_index" yaml:"camera_index" mapstructure:"camera_index"`
	QueueCapacity int           `json:"queue_capacity" yaml:"queue_capacity" mapstructure:"queue_capacity"`
	ArmBuffers    int           `json:"arm_buffers" yaml:"arm_buffers" mapstructure:"arm_buffers"`
	PollInterval  time.Duration `json:"poll_interval" yaml:"poll_interval" mapstructure:"poll_interval"`
	LogLevel      string        `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogPretty     bool          `json:"log_pretty" yaml:"log_pretty" mapstructure:"log_pretty"`
	HTTPAddr      string        `json:"http_addr" yaml:"http_addr" mapstructure:"http_addr"`
	JournalPath   string        `json:"journal_path" yaml:"journal_path" mapstructure:"journal_path"`
	Tray          bool          `json:"tray" yaml:"tray" mapstructure:"tray"`

	Sim  SimConfig  `json:"sim" yaml:"sim" mapstructure:"sim"`
	V4L2 V4L2Config `json:"v4l2" yaml:"v4l2" mapstructure:"v4l2"`
	GoCV GoCVConfig `json:"gocv" yaml:"gocv" mapstructure:"gocv"`
}

// SimConfig configures the simulated backend.
type SimConfig struct {
	Cameras       int           `json:"cameras" yaml:"cameras" mapstructure:"cameras"`
	Width         int           `json:"width" yaml:"width" mapstructure:"width"`
	Height        int           `json:"height" yaml:"height" mapstructure:"height"`
	BitDepth      int           `json:"bit_depth" yaml:"bit_depth" mapstructure:"bit_depth"`
	Color         bool          `json:"color" yaml:"color" mapstructure:"color"`
	FrameInterval time.Duration `json:"frame_interval" yaml:"frame_interval" mapstructure:"frame_interval"`
}

// V4L2Config configures the V4L2 backend.
type V4L2Config struct {
	DeviceGlob string `json:"device_glob" yaml:"device_glob" mapstructure:"device_glob"`
	Width      uint32 `json:"width" yaml:"width" mapstructure:"width"`
	Height     uint32 `json:"height" yaml:"height" mapstructure:"height"`
}

// GoCVConfig configures the OpenCV video capture backend.
type GoCVConfig struct {
	Width      int `json:"width" yaml:"width" mapstructure:"width"`
	Height     int `json:"height" yaml:"height" mapstructure:"height"`
	FPS        int `json:"fps" yaml:"fps" mapstructure:"fps"`
	MaxDevices int `json:"max_devices" yaml:"max_devices" mapstructure:"max_devices"`
}

// Dir returns the default configuration directory, $HOME/.config/livecam.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "livecam"), nil
}

// SetDefaults registers every key with its default value. Keys need a
// default for environment overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	journal := "livecam.db"
	if dir, err := Dir(); err == nil {
		journal = filepath.Join(dir, "journal.db")
	}

	v.SetDefault("backend", BackendSim)
	v.SetDefault("camera_index", 0)
	v.SetDefault("queue_capacity", 2)
	v.SetDefault("arm_buffers", 2)
	v.SetDefault("poll_interval", time.Duration(0))
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", true)
	v.SetDefault("http_addr", "127.0.0.1:8090")
	v.SetDefault("journal_path", journal)
	v.SetDefault("tray", false)

	v.SetDefault("sim.cameras", 1)
	v.SetDefault("sim.width", 640)
	v.SetDefault("sim.height", 480)
	v.SetDefault("sim.bit_depth", 12)
	v.SetDefault("sim.color", false)
	v.SetDefault("sim.frame_interval", 33*time.Millisecond)

	v.SetDefault("v4l2.device_glob", "/dev/video*")
	v.SetDefault("v4l2.width", 0)
	v.SetDefault("v4l2.height", 0)

	v.SetDefault("gocv.width", 640)
	v.SetDefault("gocv.height", 480)
	v.SetDefault("gocv.fps", 30)
	v.SetDefault("gocv.max_devices", 4)
}

// NewViper returns a viper instance with defaults, environment binding and
// the config file location set. An empty configFile searches the default
// directory.
func NewViper(configFile string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := Dir(); err == nil {
			v.AddConfigPath(dir)
		}
	}
	return v
}

// Load reads the config file, if any, and decodes and validates the result.
// A missing default file is not an error; a missing explicit file is.
func Load(v *viper.Viper) (*Config, error) {
	log := logger.WithComponent("config")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		log.Debug().Msg("no config file found, using defaults")
	} else {
		log.Debug().Str("path", v.ConfigFileUsed()).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true, "disabled": true,
}

// Validate rejects values the camera stack cannot use.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSim, BackendV4L2, BackendGoCV:
	default:
		return fmt.Errorf("invalid backend %q (use %s, %s or %s)", c.Backend, BackendSim, BackendV4L2, BackendGoCV)
	}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid log level %q (use debug, info, warn or error)", c.LogLevel)
	}
	if c.CameraIndex < 0 {
		return fmt.Errorf("camera_index must not be negative, got %d", c.CameraIndex)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("queue_capacity must be positive, got %d", c.QueueCapacity)
	}
	if c.ArmBuffers <= 0 {
		return fmt.Errorf("arm_buffers must be positive, got %d", c.ArmBuffers)
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("poll_interval must not be negative, got %v", c.PollInterval)
	}

	if c.Backend == BackendSim {
		if c.Sim.Cameras < 0 {
			return fmt.Errorf("sim.cameras must not be negative, got %d", c.Sim.Cameras)
		}
		if c.Sim.Width < 2 || c.Sim.Height < 2 {
			return fmt.Errorf("sim frame size %dx%d is too small", c.Sim.Width, c.Sim.Height)
		}
		if c.Sim.BitDepth < 8 || c.Sim.BitDepth > 16 {
			return fmt.Errorf("sim.bit_depth must be between 8 and 16, got %d", c.Sim.BitDepth)
		}
	}
	return nil
}

// WriteYAML encodes the configuration as YAML.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
