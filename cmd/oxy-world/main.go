// Command oxy-world loads a model into a world and runs its frame loop.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/Carmen-Shannon/oxy-world/engine"
	"github.com/Carmen-Shannon/oxy-world/engine/config"
	"github.com/Carmen-Shannon/oxy-world/engine/scene"
	"github.com/Carmen-Shannon/oxy-world/engine/window"
	"github.com/go-gl/mathgl/mgl32"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "oxy-world:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "TOML configuration file")
	model := flag.String("model", "", "model to load, relative to the asset root")
	headless := flag.Bool("headless", false, "run without a window")
	frames := flag.Int("frames", 0, "stop after this many frames, 0 runs until quit")
	profile := flag.Bool("profile", false, "log frame statistics every second")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	w, err := engine.NewWorld(engine.WithConfig(cfg), engine.WithWorldLogger(logger))
	if err != nil {
		return err
	}
	defer w.Close()

	if *model != "" {
		root, err := w.LoadModel(*model, scene.Root, mgl32.Ident4())
		if err != nil {
			return err
		}
		logger.Info("model loaded", "path", *model, "node", root, "objects", w.Graph().ObjectCount())
	}

	options := []engine.EngineBuilderOption{
		engine.WithWorld(w),
		engine.WithTickRate(float64(cfg.Render.TickRate)),
		engine.WithMaxFrames(*frames),
		engine.WithProfiling(*profile || cfg.Render.ProfileFrames),
		engine.WithLogger(logger),
	}
	if !*headless {
		win, err := window.NewWindow(
			window.WithTitle(cfg.Window.Title),
			window.WithWidth(cfg.Window.Width),
			window.WithHeight(cfg.Window.Height),
			window.WithBus(w.Bus()),
			window.WithLogger(logger),
		)
		if err != nil {
			return err
		}
		defer func() { _ = win.Close() }()
		options = append(options, engine.WithWindow(win))
	}

	e := engine.NewEngine(options...)
	e.Run()
	logger.Info("stopped", "frames", e.Frames())
	return nil
}
