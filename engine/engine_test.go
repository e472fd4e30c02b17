package engine_test

import (
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-world/engine"
	"github.com/Carmen-Shannon/oxy-world/engine/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngineRequiresWorld(t *testing.T) {
	assert.Panics(t, func() { engine.NewEngine() })
}

func TestRunStopsAtFrameLimit(t *testing.T) {
	w, _, _ := newWorld(t)
	var ticks int
	e := engine.NewEngine(engine.WithWorld(w), engine.WithTickRate(1000), engine.WithMaxFrames(3))
	e.SetTickCallback(func(float32) { ticks++ })

	done := make(chan struct{})
	go func() {
		e.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		e.Quit()
		t.Fatal("engine did not stop at the frame limit")
	}
	assert.Equal(t, 3, e.Frames())
	assert.Equal(t, 3, ticks)
	assert.Nil(t, e.Window())
}

func TestRunStopsOnQuitEvent(t *testing.T) {
	w, _, _ := newWorld(t)
	e := engine.NewEngine(engine.WithWorld(w), engine.WithTickRate(1000), engine.WithMaxFrames(100))
	e.SetTickCallback(func(float32) {
		_ = w.Bus().Publish(event.CodeAppQuit, 0, event.Payload{})
	})

	done := make(chan struct{})
	go func() {
		e.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		e.Quit()
		t.Fatal("engine ignored CodeAppQuit")
	}
	require.GreaterOrEqual(t, e.Frames(), 1)
	assert.Less(t, e.Frames(), 100)
}

func TestQuitIsIdempotent(t *testing.T) {
	w, _, _ := newWorld(t)
	e := engine.NewEngine(engine.WithWorld(w))
	e.Quit()
	assert.NotPanics(t, e.Quit)

	// Run returns immediately once quit was requested.
	e.Run()
	assert.LessOrEqual(t, e.Frames(), 1)
}
