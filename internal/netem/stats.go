package netem

import "sync"

// Counters is the pipeline's statistics tree. It is written by the
// dispatch worker under the Statistics lock and copied out whole for
// status responses, so slightly stale reads are fine but torn ones are
// not.
type Counters struct {
	Processed uint64 `json:"processed"`
	Forwarded uint64 `json:"forwarded"`
	Discarded uint64 `json:"discarded"` // buffered packets thrown away on stop

	Drop      DropCounters      `json:"drop"`
	Lag       LagCounters       `json:"lag"`
	Throttle  ThrottleCounters  `json:"throttle"`
	Duplicate DuplicateCounters `json:"duplicate"`
	Tamper    TamperCounters    `json:"tamper"`
	Bandwidth BandwidthCounters `json:"bandwidth"`
	Reorder   ReorderCounters   `json:"reorder"`
	Burst     BurstCounters     `json:"burst"`
}

// DropCounters tracks the drop module.
type DropCounters struct {
	Dropped uint64 `json:"dropped"`
}

// LagCounters tracks the lag module.
type LagCounters struct {
	Delayed uint64 `json:"delayed"`
	Pending int    `json:"pending"`
}

// ThrottleCounters tracks the throttle module.
type ThrottleCounters struct {
	Buffered   int    `json:"buffered"`
	Throttling bool   `json:"is_throttling"`
	Released   uint64 `json:"released"`
	Dropped    uint64 `json:"dropped"` // drop-mode flushes plus overflow evictions
}

// DuplicateCounters tracks the duplicate module.
type DuplicateCounters struct {
	Copies uint64 `json:"copies"` // extra copies emitted
}

// TamperCounters tracks the tamper module.
type TamperCounters struct {
	Tampered uint64 `json:"tampered"`
}

// BandwidthCounters tracks the bandwidth module.
type BandwidthCounters struct {
	Queued       int    `json:"queued"`
	Dropped      uint64 `json:"dropped"` // queue overflow evictions
	PassedBytes  uint64 `json:"passed_bytes"`
	RateKbps     EWMA   `json:"rate_kbps"`
	Passthroughs uint64 `json:"passthroughs"` // packets under the size threshold
}

// ReorderCounters tracks the reorder module.
type ReorderCounters struct {
	Reordered uint64 `json:"reordered"`
	Pending   int    `json:"pending"`
	Dropped   uint64 `json:"dropped"` // queue overflow evictions
}

// BurstCounters tracks the burst module.
type BurstCounters struct {
	Buffered   int    `json:"buffered"`
	Released   uint64 `json:"released"`
	Keepalives uint64 `json:"keepalives"`
	Dropped    uint64 `json:"dropped"` // buffer overflow evictions
}

// Statistics guards a Counters tree for concurrent access between the
// dispatch worker and status pollers. The worker takes the write lock
// once per dispatch cycle, not per module.
type Statistics struct {
	mu sync.RWMutex
	c  Counters
}

// With runs fn with exclusive access to the counters.
func (s *Statistics) With(fn func(*Counters)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.c)
}

// Snapshot returns a consistent copy of the counters.
func (s *Statistics) Snapshot() Counters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.c
}

// Reset zeroes all counters.
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c = Counters{}
}
