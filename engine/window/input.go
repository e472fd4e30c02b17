package window

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-world/engine/event"
)

// input turns platform callbacks into bus events. It never runs handlers itself; the frame
// thread sees the events on its next Dispatch.
type input struct {
	bus      event.Bus
	listener event.ListenerID
	logger   *slog.Logger

	// Cursor motion is coalesced to one CodeMouseMoved per poll.
	moved        bool
	moveX, moveY int32
}

func newInput(bus event.Bus, logger *slog.Logger) *input {
	return &input{bus: bus, listener: event.NewListenerID(), logger: logger}
}

func (in *input) publish(code event.Code, payload event.Payload) {
	if in.bus == nil {
		return
	}
	if err := in.bus.Publish(code, in.listener, payload); err != nil {
		in.logger.Warn("input event dropped", "code", code, "error", err)
	}
}

func (in *input) key(pressed bool, key, scancode, mods uint32) {
	code := event.CodeKeyReleased
	if pressed {
		code = event.CodeKeyPressed
	}
	in.publish(code, event.U32s([4]uint32{key, scancode, mods, 0}))
}

func (in *input) button(button, action, x, y int32) {
	in.publish(event.CodeMouseButton, event.I32s([4]int32{button, action, x, y}))
}

func (in *input) move(x, y int32) {
	in.moved = true
	in.moveX, in.moveY = x, y
}

func (in *input) scroll(dx, dy float32) {
	in.publish(event.CodeMouseWheel, event.F32s([4]float32{dx, dy, 0, 0}))
}

func (in *input) resize(width, height int) {
	in.publish(event.CodeResized, event.U32s([4]uint32{uint32(width), uint32(height), 0, 0}))
}

func (in *input) quit() {
	in.publish(event.CodeAppQuit, event.Payload{})
}

// flush publishes the coalesced cursor position. Called once per poll.
func (in *input) flush() {
	if !in.moved {
		return
	}
	in.moved = false
	in.publish(event.CodeMouseMoved, event.I32s([4]int32{in.moveX, in.moveY, 0, 0}))
}
