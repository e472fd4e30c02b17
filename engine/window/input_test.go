package window

import (
	"log/slog"
	"testing"

	"github.com/Carmen-Shannon/oxy-world/engine/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(t *testing.T, bus event.Bus, codes ...event.Code) *[]event.Event {
	t.Helper()
	var got []event.Event
	for _, c := range codes {
		_, err := bus.Subscribe(c, 0, func(ev event.Event) { got = append(got, ev) })
		require.NoError(t, err)
	}
	return &got
}

func TestInputPublishesKeysAndButtons(t *testing.T) {
	bus := event.NewBus()
	t.Cleanup(bus.Close)
	got := record(t, bus, event.CodeKeyPressed, event.CodeKeyReleased, event.CodeMouseButton, event.CodeMouseWheel, event.CodeResized)
	in := newInput(bus, slog.Default())

	in.key(true, 65, 30, 1)
	in.key(false, 65, 30, 0)
	in.button(0, 1, 10, 20)
	in.scroll(0, -1)
	in.resize(800, 600)
	assert.Empty(t, *got)

	bus.Dispatch()
	require.Len(t, *got, 5)
	assert.Equal(t, event.CodeKeyPressed, (*got)[0].Code)
	keys, ok := (*got)[0].Payload.U32s()
	require.True(t, ok)
	assert.Equal(t, [4]uint32{65, 30, 1, 0}, keys)
	assert.Equal(t, event.CodeKeyReleased, (*got)[1].Code)

	btn, ok := (*got)[2].Payload.I32s()
	require.True(t, ok)
	assert.Equal(t, [4]int32{0, 1, 10, 20}, btn)

	wheel, ok := (*got)[3].Payload.F32s()
	require.True(t, ok)
	assert.Equal(t, float32(-1), wheel[1])

	size, ok := (*got)[4].Payload.U32s()
	require.True(t, ok)
	assert.Equal(t, [4]uint32{800, 600, 0, 0}, size)
}

func TestInputCoalescesCursorMotion(t *testing.T) {
	bus := event.NewBus()
	t.Cleanup(bus.Close)
	got := record(t, bus, event.CodeMouseMoved)
	in := newInput(bus, slog.Default())

	in.move(1, 1)
	in.move(2, 2)
	in.move(3, 4)
	in.flush()
	in.flush()
	bus.Dispatch()

	require.Len(t, *got, 1)
	pos, ok := (*got)[0].Payload.I32s()
	require.True(t, ok)
	assert.Equal(t, [4]int32{3, 4, 0, 0}, pos)
}

func TestInputWithoutBusIsSilent(t *testing.T) {
	in := newInput(nil, slog.Default())
	assert.NotPanics(t, func() {
		in.key(true, 1, 1, 0)
		in.quit()
	})
}

func TestClampSize(t *testing.T) {
	w := &engineWindow{minWidth: 320, minHeight: 200, maxWidth: 1920, maxHeight: 1080}
	width, height := w.clampSize(100, 5000)
	assert.Equal(t, 320, width)
	assert.Equal(t, 1080, height)
}
