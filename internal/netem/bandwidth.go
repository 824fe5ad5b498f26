package netem

import "icc.tech/netem-agent/internal/core"

// bandwidthMinCapacity is the token bucket capacity floor in bytes, so
// very low limits can still pass a full-sized frame.
const bandwidthMinCapacity = 16384

// bandwidthMaxQueueBytes bounds the wait queue; overflow evicts oldest.
const bandwidthMaxQueueBytes = 2 << 20

// processBandwidth paces direction-matching packets through a token
// bucket holding one second of capacity. A packet that cannot be paid
// for waits in an ordered queue and blocks the packets behind it, so
// relative order is preserved. Packets at or under the passthrough
// threshold (bare ACKs, keepalives) bypass pacing entirely so control
// traffic is never starved. With use_wfp set, pacing is delegated to
// the OS-level collaborator and this module only tracks enablement.
func processBandwidth(ctx *Ctx, batch []*core.PacketData) []*core.PacketData {
	o := &ctx.Settings.Bandwidth
	if o.UseWFP || o.LimitKbps <= 0 {
		return batch
	}
	st := &ctx.State.Bandwidth

	capacity := o.LimitKbps * 1024
	if capacity < bandwidthMinCapacity {
		capacity = bandwidthMinCapacity
	}

	// Bucket starts full.
	if st.lastRefill.IsZero() {
		st.tokens = capacity
		st.lastRefill = ctx.Now
	}
	elapsed := ctx.Now.Sub(st.lastRefill).Seconds()
	st.tokens += elapsed * o.LimitKbps * 1024
	if st.tokens > capacity {
		st.tokens = capacity
	}
	st.lastRefill = ctx.Now

	bytesBefore := ctx.C.Bandwidth.PassedBytes

	out := make([]*core.PacketData, 0, len(batch))

	// Pay for waiting packets first, head of queue first.
	for len(st.queue) > 0 && st.tokens >= float64(st.queue[0].Size()) {
		p := st.queue[0]
		st.queue = st.queue[1:]
		st.queuedBytes -= p.Size()
		st.tokens -= float64(p.Size())
		ctx.C.Bandwidth.PassedBytes += uint64(p.Size())
		out = append(out, p)
	}

	for _, p := range batch {
		if !o.Applies(p.Direction.Outbound()) ||
			!ctx.State.Windows.Bandwidth.Admit(ctx.Gate, o.Probability, o.DurationMS, ctx.Now) {
			out = append(out, p)
			continue
		}
		if o.PassthroughThresholdBytes > 0 && p.Size() <= o.PassthroughThresholdBytes {
			ctx.C.Bandwidth.Passthroughs++
			out = append(out, p)
			continue
		}
		if len(st.queue) == 0 && st.tokens >= float64(p.Size()) {
			st.tokens -= float64(p.Size())
			ctx.C.Bandwidth.PassedBytes += uint64(p.Size())
			out = append(out, p)
			continue
		}
		// Blocked behind the queue head; wait in order.
		st.queue = append(st.queue, p)
		st.queuedBytes += p.Size()
		for st.queuedBytes > bandwidthMaxQueueBytes && len(st.queue) > 0 {
			st.queuedBytes -= st.queue[0].Size()
			st.queue = st.queue[1:]
			ctx.C.Bandwidth.Dropped++
		}
	}

	if elapsed > 0 {
		cycleBytes := ctx.C.Bandwidth.PassedBytes - bytesBefore
		ctx.C.Bandwidth.RateKbps.Observe(float64(cycleBytes) / 1024 / elapsed)
	}
	ctx.C.Bandwidth.Queued = len(st.queue)
	return out
}
