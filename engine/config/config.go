package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/anima-gal/engine/core"
)

const (
	BackendVulkan = "vulkan"
	BackendNull   = "null"
)

type SwapchainConfig struct {
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	VSync  bool   `toml:"vsync"`
}

type ShaderConfig struct {
	Directory string `toml:"directory"`
	HotReload bool   `toml:"hot_reload"`
}

// DeviceConfig drives the creation of a renderer.Device.
type DeviceConfig struct {
	ApplicationName string `toml:"application_name"`
	// Debug turns contract violations (nested brackets, draws without a
	// shader) into panics and enables backend validation.
	Debug          bool   `toml:"debug"`
	Backend        string `toml:"backend"`
	LogLevel       string `toml:"log_level"`
	FramesInFlight int    `toml:"frames_in_flight"`
	FenceTimeoutMS int64  `toml:"fence_timeout_ms"`
	// TableCapacity is the initial capacity of every handle table.
	TableCapacity int `toml:"table_capacity"`

	Swapchain SwapchainConfig `toml:"swapchain"`
	Shaders   ShaderConfig    `toml:"shaders"`
}

func Default() *DeviceConfig {
	return &DeviceConfig{
		ApplicationName: "anima-gal",
		Debug:           false,
		Backend:         BackendVulkan,
		LogLevel:        "info",
		FramesInFlight:  2,
		FenceTimeoutMS:  1000,
		TableCapacity:   64,
		Swapchain: SwapchainConfig{
			Width:  1280,
			Height: 720,
			VSync:  true,
		},
		Shaders: ShaderConfig{
			Directory: "assets/shaders",
			HotReload: false,
		},
	}
}

// Load reads a TOML file on top of the defaults.
func Load(path string) (*DeviceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("failed to read config file `%s`: %w", path, err)
		core.LogError("%s", err)
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*DeviceConfig, error) {
	cfg := Default()
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			err = fmt.Errorf("unknown config fields:\n%s", strict.String())
		} else {
			err = fmt.Errorf("failed to decode config: %w", err)
		}
		core.LogError("%s", err)
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	return cfg, nil
}

func (c *DeviceConfig) Validate() error {
	if c.FramesInFlight < 1 || c.FramesInFlight > 4 {
		return fmt.Errorf("frames_in_flight must be between 1 and 4, got %d", c.FramesInFlight)
	}
	if c.FenceTimeoutMS <= 0 {
		return fmt.Errorf("fence_timeout_ms must be positive, got %d", c.FenceTimeoutMS)
	}
	if c.TableCapacity < 0 {
		return fmt.Errorf("table_capacity must not be negative, got %d", c.TableCapacity)
	}
	switch c.Backend {
	case BackendVulkan, BackendNull:
	default:
		return fmt.Errorf("unknown backend `%s`", c.Backend)
	}
	return nil
}

func (c *DeviceConfig) FenceTimeout() time.Duration {
	return time.Duration(c.FenceTimeoutMS) * time.Millisecond
}

// Marshal encodes the configuration back to TOML.
func (c *DeviceConfig) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}
