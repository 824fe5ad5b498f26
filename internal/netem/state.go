package netem

import (
	"time"

	"icc.tech/netem-agent/internal/core"
)

// State holds every module's mutable processing state. It is allocated
// fresh when processing starts, persists across dispatch cycles, and is
// discarded on stop. Only the dispatch worker touches it; settings
// updates never reach into State, so buffered packets survive
// unrelated setting tweaks.
type State struct {
	Windows   Windows
	Lag       lagState
	Throttle  throttleState
	Bandwidth bandwidthState
	Reorder   reorderState
	Burst     burstState
}

// Windows holds one effect window per module.
type Windows struct {
	Drop      EffectWindow
	Lag       EffectWindow
	Throttle  EffectWindow
	Duplicate EffectWindow
	Tamper    EffectWindow
	Bandwidth EffectWindow
	Reorder   EffectWindow
	Burst     EffectWindow
}

// NewState returns a fresh processing state with all windows closed and
// all buffers empty.
func NewState() *State {
	return &State{}
}

// timedPacket pairs a buffered packet with its scheduled release time.
type timedPacket struct {
	pkt       *core.PacketData
	releaseAt time.Time
}

type lagState struct {
	// queue is FIFO: the delay is constant within a cycle, so release
	// times are already monotonic in arrival order.
	queue []timedPacket
}

type throttleState struct {
	buf       []*core.PacketData
	lastFlush time.Time
	wasOpen   bool
}

type bandwidthState struct {
	tokens      float64
	lastRefill  time.Time
	queue       []*core.PacketData
	queuedBytes int
}

type reorderState struct {
	queue delayQueue
}

type burstState struct {
	buf            []*core.PacketData
	bufferingStart time.Time
	lastKeepalive  time.Time
	release        []timedPacket
}

// PendingCount returns the number of packets currently held by any
// module buffer or delay queue.
func (s *State) PendingCount() int {
	return len(s.Lag.queue) +
		len(s.Throttle.buf) +
		len(s.Bandwidth.queue) +
		s.Reorder.queue.Len() +
		len(s.Burst.buf) +
		len(s.Burst.release)
}

// Discard throws away every buffered or delayed packet, counts them as
// discarded, and resets all module state and effect windows so a
// subsequent start behaves exactly like a fresh one.
func (s *State) Discard(c *Counters) {
	c.Discarded += uint64(s.PendingCount())
	c.Lag.Pending = 0
	c.Throttle.Buffered = 0
	c.Throttle.Throttling = false
	c.Bandwidth.Queued = 0
	c.Reorder.Pending = 0
	c.Burst.Buffered = 0
	*s = State{}
}
