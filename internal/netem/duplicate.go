package netem

import "icc.tech/netem-agent/internal/core"

// processDuplicate forwards each selected packet count times instead of
// once. Copies are bit-identical and sit back-to-back behind the
// original, preserving order between distinct source packets.
func processDuplicate(ctx *Ctx, batch []*core.PacketData) []*core.PacketData {
	o := &ctx.Settings.Duplicate
	if o.Count < 2 {
		return batch
	}

	out := make([]*core.PacketData, 0, len(batch))
	for _, p := range batch {
		out = append(out, p)
		if o.Applies(p.Direction.Outbound()) &&
			ctx.State.Windows.Duplicate.Admit(ctx.Gate, o.Probability, o.DurationMS, ctx.Now) {
			for i := 1; i < o.Count; i++ {
				out = append(out, p.Clone())
				ctx.C.Duplicate.Copies++
			}
		}
	}
	return out
}
