package netem

import (
	"time"

	"icc.tech/netem-agent/internal/core"
)

// reorderMaxQueue bounds the delay queue; overflow evicts oldest.
const reorderMaxQueue = 4096

// processReorder assigns each selected packet a random delay in
// [0, max_delay_ms) and releases it once the delay elapses, scrambling
// order relative to undelayed traffic. With reverse set, the draw is
// biased toward the maximum for a more aggressive shuffle.
func processReorder(ctx *Ctx, batch []*core.PacketData) []*core.PacketData {
	o := &ctx.Settings.Reorder
	st := &ctx.State.Reorder

	out := make([]*core.PacketData, 0, len(batch))
	for p := st.queue.PopDue(ctx.Now); p != nil; p = st.queue.PopDue(ctx.Now) {
		out = append(out, p)
	}

	for _, p := range batch {
		if !o.Applies(p.Direction.Outbound()) ||
			!ctx.State.Windows.Reorder.Admit(ctx.Gate, o.Probability, o.DurationMS, ctx.Now) {
			out = append(out, p)
			continue
		}
		r := ctx.Gate.Float64()
		if o.Reverse {
			// Bias toward the maximum delay.
			r = 1 - r*r
		}
		delay := time.Duration(r * float64(o.MaxDelayMS) * float64(time.Millisecond))
		st.queue.Add(p, ctx.Now.Add(delay))
		ctx.C.Reorder.Reordered++
		if st.queue.Len() > reorderMaxQueue {
			st.queue.PopEarliest()
			ctx.C.Reorder.Dropped++
		}
	}

	ctx.C.Reorder.Pending = st.queue.Len()
	return out
}
