package metrics

import "time"

// KeyMetrics counts key traffic for one device. A nil *KeyMetrics is valid
// and records nothing.
type KeyMetrics struct {
	EventsTotal       *Counter
	ReservedTotal     *Counter
	DroppedTotal      *Counter
	UnknownKeysTotal  *Counter
	MacroActionsTotal *Counter
	PlaybackDuration  *Histogram
	BufferedKeys      *Gauge
}

// NewKeyMetrics registers the key metrics of device serial in registry,
// or in Default() when registry is nil.
func NewKeyMetrics(registry *Registry, serial string) *KeyMetrics {
	if registry == nil {
		registry = Default()
	}
	labels := Labels{"device": serial}

	return &KeyMetrics{
		EventsTotal: registry.Counter(
			"key_events_total",
			"Key events handled by the key manager",
			labels,
		),
		ReservedTotal: registry.Counter(
			"reserved_key_events_total",
			"Game mode, brightness and macro key events handled on the device",
			labels,
		),
		DroppedTotal: registry.Counter(
			"key_events_dropped_total",
			"Key events dropped because the playback queue was full",
			labels,
		),
		UnknownKeysTotal: registry.Counter(
			"unknown_keys_total",
			"Pressed key codes with no symbol while the ripple buffer was capturing",
			labels,
		),
		MacroActionsTotal: registry.Counter(
			"macro_actions_recorded_total",
			"Actions added to a macro while recording",
			labels,
		),
		PlaybackDuration: registry.Histogram(
			"key_playback_seconds",
			"Time spent playing back one key event",
			labels,
			LatencyBuckets,
		),
		BufferedKeys: registry.Gauge(
			"ripple_buffered_keys",
			"Keys currently held in the ripple buffer",
			labels,
		),
	}
}

// Event counts a handled key event.
func (m *KeyMetrics) Event() {
	if m != nil {
		m.EventsTotal.Inc()
	}
}

// Reserved counts a key handled on the device itself.
func (m *KeyMetrics) Reserved() {
	if m != nil {
		m.ReservedTotal.Inc()
	}
}

// Dropped counts a key event the playback queue refused.
func (m *KeyMetrics) Dropped() {
	if m != nil {
		m.DroppedTotal.Inc()
	}
}

// UnknownKey counts a key with no symbol.
func (m *KeyMetrics) UnknownKey() {
	if m != nil {
		m.UnknownKeysTotal.Inc()
	}
}

// MacroAction counts a recorded macro action.
func (m *KeyMetrics) MacroAction() {
	if m != nil {
		m.MacroActionsTotal.Inc()
	}
}

// Playback records how long one playback took.
func (m *KeyMetrics) Playback(d time.Duration) {
	if m != nil {
		m.PlaybackDuration.ObserveDuration(d)
	}
}

// Buffered sets the ripple buffer size.
func (m *KeyMetrics) Buffered(n int) {
	if m != nil {
		m.BufferedKeys.Set(int64(n))
	}
}
