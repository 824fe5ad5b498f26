package netem

import "time"

// EffectWindow is the per-module on/off duty-cycle controller. The
// probability gate decides entry into the window; once open, every
// direction-matching packet is subject to the effect until the window
// expires. durationMS == 0 keeps a triggered window open until the
// module is disabled or the pipeline stops.
type EffectWindow struct {
	start time.Time
	open  bool
}

// Admit reports whether the effect applies to a packet arriving at now.
// A closed window performs one probability draw; success opens the
// window and admits the packet.
func (w *EffectWindow) Admit(g *Gate, probability float64, durationMS uint64, now time.Time) bool {
	if w.Open(durationMS, now) {
		return true
	}
	if g.Roll(probability) {
		w.start = now
		w.open = true
		return true
	}
	return false
}

// Open reports whether the window is open at now, closing it first if
// its duration has elapsed.
func (w *EffectWindow) Open(durationMS uint64, now time.Time) bool {
	if !w.open {
		return false
	}
	if durationMS > 0 && now.Sub(w.start) >= time.Duration(durationMS)*time.Millisecond {
		w.open = false
		w.start = time.Time{}
	}
	return w.open
}

// Close forces the window shut so the next packet is gated by
// probability again.
func (w *EffectWindow) Close() {
	w.open = false
	w.start = time.Time{}
}

// Start returns the instant the window was last triggered; zero when
// the window is closed.
func (w *EffectWindow) Start() time.Time { return w.start }
