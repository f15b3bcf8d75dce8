package keyboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferRecordsOnlyPressesWhileCapturing(t *testing.T) {
	clock := newFakeClock()
	b := NewBuffer(2*time.Second, clock.Now)

	assert.False(t, b.RecordIfActive("A", Press, clock.Now()), "capture off")

	b.SetCapture(true)
	assert.False(t, b.RecordIfActive("A", Release, clock.Now()))
	assert.False(t, b.RecordIfActive("A", Autorepeat, clock.Now()))
	assert.True(t, b.RecordIfActive("A", Press, clock.Now()))

	entries := b.Read()
	require.Len(t, entries, 1)
	assert.Equal(t, "A", entries[0].Symbol)
	assert.Equal(t, clock.Now().Add(2*time.Second), entries[0].Expiry)
}

func TestBufferEvictsFromFront(t *testing.T) {
	clock := newFakeClock()
	b := NewBuffer(2*time.Second, clock.Now)
	b.SetCapture(true)

	for _, sym := range []string{"A", "B", "C"} {
		b.RecordIfActive(sym, Press, clock.Now())
		clock.Advance(500 * time.Millisecond)
	}
	// A expires at t=2.0, B at 2.5, C at 3.0; now is t=1.5.

	clock.Advance(500 * time.Millisecond) // t=2.0, expiry equal to now counts as expired
	entries := b.Read()
	require.Len(t, entries, 2)
	assert.Equal(t, "B", entries[0].Symbol)
	assert.Equal(t, "C", entries[1].Symbol)

	clock.Advance(time.Second)
	assert.Empty(t, b.Read())
	assert.Equal(t, 0, b.Len())
}

func TestBufferReadNeverReturnsStaleEntriesAndKeepsOrder(t *testing.T) {
	clock := newFakeClock()
	ttl := 2 * time.Second
	b := NewBuffer(ttl, clock.Now)
	b.SetCapture(true)

	symbols := []string{"Q", "W", "E", "R", "T", "Y"}
	steps := []time.Duration{0, 300, 700, 1200, 200, 900}
	for i, sym := range symbols {
		clock.Advance(steps[i] * time.Millisecond)
		b.RecordIfActive(sym, Press, clock.Now())

		now := clock.Now()
		entries := b.Read()
		for j, e := range entries {
			assert.True(t, e.Expiry.After(now), "entry %s expired", e.Symbol)
			if j > 0 {
				assert.False(t, e.Expiry.Before(entries[j-1].Expiry), "order broken at %d", j)
			}
		}
		require.NotEmpty(t, entries)
		assert.Equal(t, sym, entries[len(entries)-1].Symbol)
	}
}

func TestBufferReadReturnsCopy(t *testing.T) {
	b := NewBuffer(0, nil)
	b.SetCapture(true)
	b.RecordIfActive("A", Press, time.Now())

	entries := b.Read()
	require.Len(t, entries, 1)
	entries[0].Symbol = "changed"
	assert.Equal(t, "A", b.Read()[0].Symbol)
	assert.Equal(t, DefaultKeyTTL, b.TTL())
}
