package netem

import (
	"time"

	"icc.tech/netem-agent/internal/core"
)

// processThrottle buffers direction-matching packets while its effect
// window is open and flushes the buffer every throttle_period_ms:
// released in order when drop is false, discarded en masse when drop is
// true. Freeze mode suppresses the periodic flush so the link stays
// stalled for the whole window; the buffer then flushes only when the
// window closes.
func processThrottle(ctx *Ctx, batch []*core.PacketData) []*core.PacketData {
	o := &ctx.Settings.Throttle
	st := &ctx.State.Throttle

	kept := batch[:0]
	for _, p := range batch {
		if o.Applies(p.Direction.Outbound()) &&
			ctx.State.Windows.Throttle.Admit(ctx.Gate, o.Probability, o.DurationMS, ctx.Now) {
			if !st.wasOpen {
				// Window just triggered: start the flush clock here so
				// the first period is a full one.
				st.lastFlush = ctx.Now
				st.wasOpen = true
			}
			if o.MaxBuffer > 0 && len(st.buf) >= o.MaxBuffer {
				st.buf = st.buf[1:]
				ctx.C.Throttle.Dropped++
			}
			st.buf = append(st.buf, p)
			continue
		}
		kept = append(kept, p)
	}

	open := ctx.State.Windows.Throttle.Open(o.DurationMS, ctx.Now)
	ctx.C.Throttle.Throttling = open

	switch {
	case st.wasOpen && !open:
		// Window closed: final flush, also the only flush in freeze mode.
		kept = throttleFlush(ctx, st, o.Drop, kept)
		st.wasOpen = false
	case open && !o.FreezeMode &&
		ctx.Now.Sub(st.lastFlush) >= time.Duration(o.PeriodMS)*time.Millisecond:
		kept = throttleFlush(ctx, st, o.Drop, kept)
		st.lastFlush = ctx.Now
	}

	ctx.C.Throttle.Buffered = len(st.buf)
	return kept
}

// throttleFlush empties the buffer into the batch head (drop=false) or
// the void (drop=true).
func throttleFlush(ctx *Ctx, st *throttleState, drop bool, kept []*core.PacketData) []*core.PacketData {
	if len(st.buf) == 0 {
		return kept
	}
	if drop {
		ctx.C.Throttle.Dropped += uint64(len(st.buf))
	} else {
		ctx.C.Throttle.Released += uint64(len(st.buf))
		kept = append(append([]*core.PacketData{}, st.buf...), kept...)
	}
	st.buf = st.buf[:0]
	return kept
}
