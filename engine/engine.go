// Package engine composes a World and drives it from a fixed-rate frame loop.
package engine

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-world/engine/event"
	"github.com/Carmen-Shannon/oxy-world/engine/profiler"
	"github.com/Carmen-Shannon/oxy-world/engine/window"
)

// engine implements the Engine interface.
// The frame loop runs on its own goroutine, which is the world's frame thread. The window,
// when there is one, owns the calling goroutine.
type engine struct {
	tickRateChannel chan time.Duration

	running atomic.Bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once

	world  World
	window window.Window

	profiler         *profiler.Profiler
	profilingEnabled atomic.Bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)

	maxFrames int
	frames    atomic.Int64

	listener event.ListenerID
	logger   *slog.Logger
}

// Engine drives a World.
type Engine interface {
	// World returns the driven world.
	World() World

	// Window returns the window, or nil when headless.
	Window() window.Window

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the frame rate in frames per second.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called on the frame thread before each Frame.
	// Use it for game logic that edits the scene graph.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// Run starts the frame loop and blocks until Quit, CodeAppQuit, the window closing or the
	// frame limit. With a window, Run must be called from the main goroutine.
	Run()

	// Frames returns the number of frames run so far.
	Frames() int

	// Quit stops the frame loop. Safe to call multiple times.
	Quit()
}

// NewEngine creates an Engine. WithWorld is required.
//
// Parameters:
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		engineTickRate:  time.Second / 60,
		listener:        event.NewListenerID(),
		logger:          slog.Default(),
	}
	for _, opt := range options {
		opt(e)
	}
	if e.world == nil {
		panic("engine: NewEngine requires a world")
	}
	if e.profiler == nil {
		e.profiler = profiler.NewProfiler(profiler.WithLogger(e.logger))
	}
	return e
}

func (e *engine) World() World {
	return e.world
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Frames() int {
	return int(e.frames.Load())
}

func (e *engine) Run() {
	sub, err := e.world.Bus().Subscribe(event.CodeAppQuit, e.listener, func(event.Event) {
		e.signalQuit()
	})
	if err != nil {
		e.logger.Warn("quit event unavailable", "error", err)
	} else {
		defer func() { _ = e.world.Bus().Unsubscribe(sub) }()
	}

	e.running.Store(true)
	e.wg.Add(1)
	go e.handleFrames()

	if e.window != nil {
		e.window.SetUpdateCallback(func() {
			select {
			case <-e.quitChannel:
				_ = e.window.Close()
			default:
			}
		})
		e.window.ProcessMessages()
		e.signalQuit()
	} else {
		<-e.quitChannel
	}
	e.wg.Wait()
	e.running.Store(false)
}

func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

// handleFrames runs the fixed-rate frame loop. A panic in a frame stops the engine instead of
// the process.
func (e *engine) handleFrames() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("frame loop recovered from panic", "panic", r)
			e.signalQuit()
		}
	}()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()
	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
			stats, _ := e.world.Frame()
			n := e.frames.Add(1)

			if e.profilingEnabled.Load() {
				e.profiler.Observe(stats.Draw.Synced, len(stats.Draw.Failed))
				e.profiler.Tick()
			}
			if e.maxFrames > 0 && n >= int64(e.maxFrames) {
				e.signalQuit()
				return
			}
		}
	}
}

func (e *engine) EnableProfiler() {
	e.profilingEnabled.Store(true)
}

func (e *engine) DisableProfiler() {
	e.profilingEnabled.Store(false)
}

// SetTickRate takes effect immediately when the engine is running.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if !e.running.Load() {
		e.engineTickRate = newRate
		return
	}
	// Replace any pending update.
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}
