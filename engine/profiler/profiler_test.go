package profiler

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTickLogsOncePerInterval(t *testing.T) {
	var buf bytes.Buffer
	clock := time.Unix(0, 0)
	p := NewProfiler(
		WithInterval(time.Second),
		WithLogger(slog.New(slog.NewTextHandler(&buf, nil))),
		withClock(func() time.Time { return clock }),
	)

	clock = clock.Add(400 * time.Millisecond)
	p.Observe(3, 0)
	assert.False(t, p.Tick())

	clock = clock.Add(600 * time.Millisecond)
	p.Observe(2, 1)
	assert.True(t, p.Tick())
	assert.Contains(t, buf.String(), "fps=2")
	assert.Contains(t, buf.String(), "synced=5")
	assert.Contains(t, buf.String(), "failed=1")

	buf.Reset()
	clock = clock.Add(10 * time.Millisecond)
	assert.False(t, p.Tick())
	assert.Empty(t, buf.String())
}
