package netem

import "icc.tech/netem-agent/internal/core"

// processDrop discards direction-matching packets while the drop effect
// window is open. Discarding is itself the effect; there is no error
// path.
func processDrop(ctx *Ctx, batch []*core.PacketData) []*core.PacketData {
	o := &ctx.Settings.Drop
	kept := batch[:0]
	for _, p := range batch {
		if o.Applies(p.Direction.Outbound()) &&
			ctx.State.Windows.Drop.Admit(ctx.Gate, o.Probability, o.DurationMS, ctx.Now) {
			ctx.C.Drop.Dropped++
			continue
		}
		kept = append(kept, p)
	}
	return kept
}
