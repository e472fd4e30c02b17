// Package config reads the world configuration from TOML.
//
// A file only needs the keys it wants to change; everything else keeps the value from Default.
// Unknown keys are rejected so typos surface at startup.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Carmen-Shannon/oxy-world/engine/event"
	"github.com/Carmen-Shannon/oxy-world/engine/gpu"
	"github.com/pelletier/go-toml/v2"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Assets configures the asset registry.
type Assets struct {
	Root        string `toml:"root"`
	Watch       bool   `toml:"watch"`
	StrictPaths bool   `toml:"strict_paths"`
}

// Events configures the event bus.
type Events struct {
	Capacity int `toml:"capacity"`
}

// Render configures the draw context and GPU backend.
type Render struct {
	ColorFormat   string `toml:"color_format"`
	DepthFormat   string `toml:"depth_format"`
	SyncWorkers   int    `toml:"sync_workers"`
	FallbackGPU   bool   `toml:"fallback_gpu"`
	TickRate      int    `toml:"tick_rate"`
	ProfileFrames bool   `toml:"profile"`
}

// Window configures the optional desktop window.
type Window struct {
	Title  string `toml:"title"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
}

// Log configures the default logger.
type Log struct {
	Level string `toml:"level"`
}

// Config is the full world configuration.
type Config struct {
	Assets Assets `toml:"assets"`
	Events Events `toml:"events"`
	Render Render `toml:"render"`
	Window Window `toml:"window"`
	Log    Log    `toml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Assets: Assets{Root: "assets"},
		Events: Events{Capacity: event.DefaultCapacity},
		Render: Render{
			ColorFormat: "bgra8unorm-srgb",
			DepthFormat: "depth24plus",
			SyncWorkers: 4,
			TickRate:    60,
		},
		Window: Window{Title: "oxy-world", Width: 1280, Height: 720},
		Log:    Log{Level: "info"},
	}
}

// Load reads a TOML file on top of Default. A relative assets root is resolved against the
// directory of the file.
//
// Parameters:
//   - path: the file to read
//
// Returns:
//   - Config: the validated configuration
//   - error: error if the file cannot be read, decoded or validated
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg, err := Decode(bytes.NewReader(data))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	if !filepath.IsAbs(cfg.Assets.Root) {
		cfg.Assets.Root = filepath.Join(filepath.Dir(path), cfg.Assets.Root)
	}
	return cfg, nil
}

// Decode reads TOML from r on top of Default and validates the result.
//
// Parameters:
//   - r: the TOML source
//
// Returns:
//   - Config: the validated configuration
//   - error: a decode error, or ErrInvalid
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	if err := toml.NewDecoder(r).DisallowUnknownFields().Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, fmt.Errorf("config: %s", strict.String())
		}
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and names.
//
// Returns:
//   - error: every problem found, joined and wrapping ErrInvalid
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Assets.Root == "" {
		bad("assets.root is empty")
	}
	if c.Events.Capacity < 1 {
		bad("events.capacity %d is below 1", c.Events.Capacity)
	}
	if _, err := gpu.ParseTextureFormat(c.Render.ColorFormat); err != nil {
		bad("render.color_format: %v", err)
	}
	if _, err := gpu.ParseTextureFormat(c.Render.DepthFormat); err != nil {
		bad("render.depth_format: %v", err)
	}
	if c.Render.SyncWorkers < 1 {
		bad("render.sync_workers %d is below 1", c.Render.SyncWorkers)
	}
	if c.Render.TickRate < 1 {
		bad("render.tick_rate %d is below 1", c.Render.TickRate)
	}
	if c.Window.Width < 1 || c.Window.Height < 1 {
		bad("window size %dx%d", c.Window.Width, c.Window.Height)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		bad("log.level: %v", err)
	}
	return errors.Join(errs...)
}

// Targets returns the render target formats named by the render section.
//
// Returns:
//   - gpu.RenderTargetFormats: the formats
//   - error: error if a format name is unknown
func (r Render) Targets() (gpu.RenderTargetFormats, error) {
	t := gpu.DefaultTargets()
	var err error
	if t.Color, err = gpu.ParseTextureFormat(r.ColorFormat); err != nil {
		return t, err
	}
	if t.Depth, err = gpu.ParseTextureFormat(r.DepthFormat); err != nil {
		return t, err
	}
	return t, nil
}

// SlogLevel parses the level name: debug, info, warn or error.
func (l Log) SlogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(l.Level))
	return level, err
}
