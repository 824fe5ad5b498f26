package netem

import (
	"container/heap"
	"time"

	"icc.tech/netem-agent/internal/core"
)

// delayQueue is a min-heap of packets keyed by scheduled release time.
// An insertion sequence number breaks ties so equal timestamps release
// in arrival order. Release order is monotonic by release time across
// dispatch cycles, not by cycle arrival.
type delayQueue struct {
	entries delayEntries
	seq     uint64
}

type delayEntry struct {
	timedPacket
	seq uint64
}

type delayEntries []delayEntry

func (h delayEntries) Len() int { return len(h) }

func (h delayEntries) Less(i, j int) bool {
	if h[i].releaseAt.Equal(h[j].releaseAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].releaseAt.Before(h[j].releaseAt)
}

func (h delayEntries) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *delayEntries) Push(x any) { *h = append(*h, x.(delayEntry)) }

func (h *delayEntries) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = delayEntry{}
	*h = old[:n-1]
	return e
}

// Add schedules p for release at the given time.
func (q *delayQueue) Add(p *core.PacketData, at time.Time) {
	q.seq++
	heap.Push(&q.entries, delayEntry{timedPacket: timedPacket{pkt: p, releaseAt: at}, seq: q.seq})
}

// PopDue removes and returns the earliest packet whose release time has
// passed, or nil if none is due.
func (q *delayQueue) PopDue(now time.Time) *core.PacketData {
	if len(q.entries) == 0 || q.entries[0].releaseAt.After(now) {
		return nil
	}
	return heap.Pop(&q.entries).(delayEntry).pkt
}

// PopEarliest removes and returns the earliest packet regardless of its
// release time, or nil if the queue is empty.
func (q *delayQueue) PopEarliest() *core.PacketData {
	if len(q.entries) == 0 {
		return nil
	}
	return heap.Pop(&q.entries).(delayEntry).pkt
}

// Len returns the number of queued packets.
func (q *delayQueue) Len() int { return len(q.entries) }
