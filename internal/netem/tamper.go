package netem

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"icc.tech/netem-agent/internal/core"
)

// processTamper corrupts a fraction of each selected packet's
// application payload. Headers are left intact so the packet still
// routes; checksums are rewritten afterwards unless the operator wants
// checksum corruption too.
func processTamper(ctx *Ctx, batch []*core.PacketData) []*core.PacketData {
	o := &ctx.Settings.Tamper
	for _, p := range batch {
		if !o.Applies(p.Direction.Outbound()) ||
			!ctx.State.Windows.Tamper.Admit(ctx.Gate, o.Probability, o.DurationMS, ctx.Now) {
			continue
		}
		off := payloadOffset(p.Data)
		if off < 0 {
			continue
		}
		payload := p.Data[off:]
		n := int(o.Amount * float64(len(payload)))
		if n < 1 {
			n = 1
		}
		for i := 0; i < n; i++ {
			// Flip one random bit so every touched byte really changes.
			payload[ctx.Gate.IntN(len(payload))] ^= 1 << ctx.Gate.IntN(8)
		}
		if o.RecalculateChecksums {
			core.RecalculateChecksums(p.Data)
		}
		ctx.C.Tamper.Tampered++
	}
	return batch
}

// payloadOffset returns the offset of the application payload within
// the raw IP packet, or -1 when the packet carries none.
func payloadOffset(data []byte) int {
	var first gopacket.LayerType
	switch core.IPVersion(data) {
	case 4:
		first = layers.LayerTypeIPv4
	case 6:
		first = layers.LayerTypeIPv6
	default:
		return -1
	}
	pkt := gopacket.NewPacket(data, first, gopacket.NoCopy)
	app := pkt.ApplicationLayer()
	if app == nil || len(app.Payload()) == 0 {
		return -1
	}
	return len(data) - len(app.Payload())
}
