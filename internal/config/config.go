// Package config loads capture host and viewer settings from defaults, an
// optional YAML file, DEPTHCAM_* environment variables and bound flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/junsooki/DepthCam/internal/capture"
	"github.com/junsooki/DepthCam/internal/orchestrator"
)

const (
	envPrefix  = "DEPTHCAM"
	configName = "depthcam"
)

// Config holds all capture host configuration.
type Config struct {
	Color   DeviceConfig  `mapstructure:"color"`
	Depth   DeviceConfig  `mapstructure:"depth"`
	Capture CaptureConfig `mapstructure:"capture"`
	Display DisplayConfig `mapstructure:"display"`
	Remote  RemoteConfig  `mapstructure:"remote"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
}

// DeviceConfig selects one sensor node.
type DeviceConfig struct {
	Device string `mapstructure:"device"`
	// ForceFormat requests 640x480 YUYV instead of keeping the active format.
	ForceFormat bool `mapstructure:"force_format"`
}

type CaptureConfig struct {
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	// TimeoutPolicy is "fatal" or "skip".
	TimeoutPolicy string `mapstructure:"timeout_policy"`
}

// DisplayConfig controls the local preview window.
type DisplayConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Title   string `mapstructure:"title"`
}

// RemoteConfig controls publishing composites to remote viewers.
type RemoteConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	SignalingURL string `mapstructure:"signaling_url"`
	// HostID is generated when empty.
	HostID  string `mapstructure:"host_id"`
	FPS     int    `mapstructure:"fps"`
	Quality int    `mapstructure:"quality"`
}

type MetricsConfig struct {
	// Addr serves /metrics when non-empty.
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// ViewerConfig holds configuration for the remote viewer.
type ViewerConfig struct {
	SignalingURL string    `mapstructure:"signaling_url"`
	ViewerID     string    `mapstructure:"viewer_id"`
	// HostID selects the host to watch. When empty, the viewer lists the
	// hosts the signaling server knows about instead.
	HostID string    `mapstructure:"host_id"`
	Log    LogConfig `mapstructure:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Color: DeviceConfig{Device: "/dev/video0", ForceFormat: true},
		Depth: DeviceConfig{Device: "/dev/video1", ForceFormat: false},
		Capture: CaptureConfig{
			PollTimeout:   capture.DefaultPollTimeout,
			TimeoutPolicy: string(orchestrator.TimeoutFatal),
		},
		Display: DisplayConfig{Enabled: true, Title: "V4L2 test"},
		Remote: RemoteConfig{
			SignalingURL: "ws://localhost:8080",
			FPS:          15,
			Quality:      70,
		},
		Log: LogConfig{Level: "info"},
	}
}

// New returns a viper instance carrying the defaults, environment binding
// and config file search paths.
func New() *viper.Viper {
	v := viper.New()
	d := Default()

	v.SetDefault("color.device", d.Color.Device)
	v.SetDefault("color.force_format", d.Color.ForceFormat)
	v.SetDefault("depth.device", d.Depth.Device)
	v.SetDefault("depth.force_format", d.Depth.ForceFormat)
	v.SetDefault("capture.poll_timeout", d.Capture.PollTimeout)
	v.SetDefault("capture.timeout_policy", d.Capture.TimeoutPolicy)
	v.SetDefault("display.enabled", d.Display.Enabled)
	v.SetDefault("display.title", d.Display.Title)
	v.SetDefault("remote.enabled", d.Remote.Enabled)
	v.SetDefault("remote.signaling_url", d.Remote.SignalingURL)
	v.SetDefault("remote.host_id", d.Remote.HostID)
	v.SetDefault("remote.fps", d.Remote.FPS)
	v.SetDefault("remote.quality", d.Remote.Quality)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)

	// viewer keys
	v.SetDefault("signaling_url", d.Remote.SignalingURL)
	v.SetDefault("viewer_id", "")
	v.SetDefault("host_id", "")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	for _, path := range []string{".", "$HOME/.depthcam", "/etc/depthcam"} {
		v.AddConfigPath(os.ExpandEnv(path))
	}
	return v
}

// readFile reads file, or searches the config paths when file is empty.
// A missing file is only an error when it was named explicitly.
func readFile(v *viper.Viper, file string) error {
	if file != "" {
		v.SetConfigFile(file)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load reads the capture host configuration and validates it.
func Load(v *viper.Viper, file string) (*Config, error) {
	if err := readFile(v, file); err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Remote.HostID == "" {
		cfg.Remote.HostID = "host-" + RandomID()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadViewer reads the viewer configuration.
func LoadViewer(v *viper.Viper, file string) (*ViewerConfig, error) {
	if err := readFile(v, file); err != nil {
		return nil, err
	}
	var cfg ViewerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.SignalingURL == "" {
		return nil, errors.New("signaling_url is required")
	}
	if cfg.ViewerID == "" {
		cfg.ViewerID = "viewer-" + RandomID()
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Color.Device == "" {
		errs = append(errs, errors.New("color.device is empty"))
	}
	if c.Depth.Device == "" {
		errs = append(errs, errors.New("depth.device is empty"))
	}
	if c.Capture.PollTimeout <= 0 {
		errs = append(errs, fmt.Errorf("capture.poll_timeout must be positive, got %s", c.Capture.PollTimeout))
	}
	if _, err := orchestrator.ParseTimeoutPolicy(c.Capture.TimeoutPolicy); err != nil {
		errs = append(errs, fmt.Errorf("capture.timeout_policy: %w", err))
	}
	if !c.Display.Enabled && !c.Remote.Enabled {
		errs = append(errs, errors.New("display.enabled and remote.enabled are both false"))
	}
	if c.Remote.Enabled {
		if c.Remote.SignalingURL == "" {
			errs = append(errs, errors.New("remote.signaling_url is empty"))
		}
		if c.Remote.FPS < 1 || c.Remote.FPS > 60 {
			errs = append(errs, fmt.Errorf("remote.fps must be 1-60, got %d", c.Remote.FPS))
		}
		if c.Remote.Quality < 1 || c.Remote.Quality > 100 {
			errs = append(errs, fmt.Errorf("remote.quality must be 1-100, got %d", c.Remote.Quality))
		}
	}
	return errors.Join(errs...)
}

// RandomID returns a short random identifier.
func RandomID() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}
