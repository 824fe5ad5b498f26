package netem

import (
	"time"

	"icc.tech/netem-agent/internal/core"
)

// processLag delays direction-matching packets by delay_ms. Released
// packets re-enter the batch ahead of this cycle's arrivals so FIFO
// order holds across cycles.
func processLag(ctx *Ctx, batch []*core.PacketData) []*core.PacketData {
	o := &ctx.Settings.Lag
	st := &ctx.State.Lag

	kept := batch[:0]
	for _, p := range batch {
		if o.Applies(p.Direction.Outbound()) &&
			ctx.State.Windows.Lag.Admit(ctx.Gate, o.Probability, o.DurationMS, ctx.Now) {
			st.queue = append(st.queue, timedPacket{
				pkt:       p,
				releaseAt: ctx.Now.Add(time.Duration(o.DelayMS) * time.Millisecond),
			})
			ctx.C.Lag.Delayed++
			continue
		}
		kept = append(kept, p)
	}

	// Release times are monotonic in queue order, so the due prefix is
	// contiguous.
	due := 0
	for due < len(st.queue) && !st.queue[due].releaseAt.After(ctx.Now) {
		due++
	}
	if due > 0 {
		released := make([]*core.PacketData, 0, due+len(kept))
		for _, e := range st.queue[:due] {
			released = append(released, e.pkt)
		}
		st.queue = append(st.queue[:0], st.queue[due:]...)
		kept = append(released, kept...)
	}

	ctx.C.Lag.Pending = len(st.queue)
	return kept
}
