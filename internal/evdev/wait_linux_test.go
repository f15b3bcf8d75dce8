//go:build linux

package evdev

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipeSource struct {
	*FakeSource
	r *os.File
}

func (p pipeSource) Fd() int { return int(p.r.Fd()) }

func newPipeSource(t *testing.T, path string) (pipeSource, *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		r.Close()
		w.Close()
	})
	return pipeSource{FakeSource: NewFakeSource(path), r: r}, w
}

func TestWaitTimesOutWithNothingReadable(t *testing.T) {
	a, _ := newPipeSource(t, "a")

	start := time.Now()
	ready, err := Wait([]Source{a}, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, ready)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestWaitReportsReadableInOrder(t *testing.T) {
	a, _ := newPipeSource(t, "a")
	b, wb := newPipeSource(t, "b")
	c, wc := newPipeSource(t, "c")

	_, err := wc.Write([]byte{1})
	require.NoError(t, err)
	_, err = wb.Write([]byte{1})
	require.NoError(t, err)

	ready, err := Wait([]Source{a, b, c}, time.Second)
	require.NoError(t, err)
	require.Len(t, ready, 2)
	assert.Equal(t, "b", ready[0].Path())
	assert.Equal(t, "c", ready[1].Path())
}

func TestWaitTreatsFakesAsReady(t *testing.T) {
	fake := NewFakeSource("fake")
	a, _ := newPipeSource(t, "a")

	start := time.Now()
	ready, err := Wait([]Source{a, fake}, time.Second)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, "fake", ready[0].Path())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
