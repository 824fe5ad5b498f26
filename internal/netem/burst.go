package netem

import (
	"time"

	"icc.tech/netem-agent/internal/core"
)

// burstKeepaliveBytes is the size at or under which a packet counts as
// a keepalive during the buffer phase.
const burstKeepaliveBytes = 80

// burstMaxBuffer bounds the withheld-packet buffer; overflow evicts
// oldest. Matters most in manual mode, where the buffer drains only on
// disable.
const burstMaxBuffer = 8192

// processBurst emulates connection stutter in two phases. Buffer phase:
// while the effect window is open, matching packets are withheld for
// buffer_ms (0 = manual mode, hold until the module is disabled);
// keepalive-sized packets may pass at most once per keepalive_ms so the
// connection does not time out. Release phase: the buffer flushes in
// arrival order (reverse = most-recent-first), each packet spaced
// release_delay_us apart.
func processBurst(ctx *Ctx, batch []*core.PacketData) []*core.PacketData {
	o := &ctx.Settings.Burst
	st := &ctx.State.Burst
	w := &ctx.State.Windows.Burst

	out := burstDrainDue(ctx, st, nil)

	for _, p := range batch {
		if !o.Applies(p.Direction.Outbound()) ||
			!w.Admit(ctx.Gate, o.Probability, o.DurationMS, ctx.Now) {
			out = append(out, p)
			continue
		}
		if o.KeepaliveMS > 0 && p.Size() <= burstKeepaliveBytes &&
			ctx.Now.Sub(st.lastKeepalive) >= time.Duration(o.KeepaliveMS)*time.Millisecond {
			st.lastKeepalive = ctx.Now
			ctx.C.Burst.Keepalives++
			out = append(out, p)
			continue
		}
		if len(st.buf) == 0 {
			st.bufferingStart = ctx.Now
		}
		if len(st.buf) >= burstMaxBuffer {
			st.buf = st.buf[1:]
			ctx.C.Burst.Dropped++
		}
		st.buf = append(st.buf, p)
	}

	// Phase end: buffer timer expiry or window close flushes into the
	// paced release queue. Manual mode (buffer_ms == 0) holds until the
	// module is disabled.
	if len(st.buf) > 0 && o.BufferMS > 0 {
		expired := ctx.Now.Sub(st.bufferingStart) >= time.Duration(o.BufferMS)*time.Millisecond
		if expired || !w.Open(o.DurationMS, ctx.Now) {
			burstScheduleRelease(ctx, st, o.Reverse, o.ReleaseDelayUS)
			// Re-entry is gated by probability again.
			w.Close()
			out = burstDrainDue(ctx, st, out)
		}
	}

	ctx.C.Burst.Buffered = len(st.buf) + len(st.release)
	return out
}

// burstFlushDisabled is the registry's special-handling hook: a burst
// buffer left over after the module is switched off flushes immediately
// so held packets are not stranded.
func burstFlushDisabled(ctx *Ctx, batch []*core.PacketData) []*core.PacketData {
	st := &ctx.State.Burst
	if len(st.buf) == 0 && len(st.release) == 0 {
		return batch
	}

	o := &ctx.Settings.Burst
	burstScheduleRelease(ctx, st, o.Reverse, 0)

	released := make([]*core.PacketData, 0, len(st.release))
	for _, e := range st.release {
		released = append(released, e.pkt)
	}
	ctx.C.Burst.Released += uint64(len(released))
	st.release = st.release[:0]
	ctx.State.Windows.Burst.Close()
	ctx.C.Burst.Buffered = 0

	return append(released, batch...)
}

// burstScheduleRelease moves the buffer onto the release queue, spacing
// entries delayUS microseconds apart.
func burstScheduleRelease(ctx *Ctx, st *burstState, reverse bool, delayUS uint64) {
	if reverse {
		for i, j := 0, len(st.buf)-1; i < j; i, j = i+1, j-1 {
			st.buf[i], st.buf[j] = st.buf[j], st.buf[i]
		}
	}
	spacing := time.Duration(delayUS) * time.Microsecond
	at := ctx.Now
	for _, p := range st.buf {
		st.release = append(st.release, timedPacket{pkt: p, releaseAt: at})
		at = at.Add(spacing)
	}
	st.buf = st.buf[:0]
}

// burstDrainDue appends all release-queue packets whose time has come.
// The queue is monotonic by release time, so the due prefix is
// contiguous.
func burstDrainDue(ctx *Ctx, st *burstState, out []*core.PacketData) []*core.PacketData {
	due := 0
	for due < len(st.release) && !st.release[due].releaseAt.After(ctx.Now) {
		due++
	}
	if due == 0 {
		return out
	}
	for _, e := range st.release[:due] {
		out = append(out, e.pkt)
	}
	ctx.C.Burst.Released += uint64(due)
	st.release = append(st.release[:0], st.release[due:]...)
	return out
}
