package netem

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icc.tech/netem-agent/internal/config"
	"icc.tech/netem-agent/internal/core"
)

// udpPacket builds an IPv4 UDP packet with valid checksums.
func udpPacket(t *testing.T, payload []byte) []byte {
	t.Helper()
	udpLen := 8 + len(payload)
	pkt := make([]byte, 20+udpLen)
	pkt[0] = 0x45
	binary.BigEndian.PutUint16(pkt[2:4], uint16(len(pkt)))
	pkt[8] = 64
	pkt[9] = 17
	copy(pkt[12:16], []byte{192, 168, 0, 1})
	copy(pkt[16:20], []byte{192, 168, 0, 2})
	binary.BigEndian.PutUint16(pkt[20:22], 40000)
	binary.BigEndian.PutUint16(pkt[22:24], 9000)
	binary.BigEndian.PutUint16(pkt[24:26], uint16(udpLen))
	copy(pkt[28:], payload)
	require.True(t, core.RecalculateChecksums(pkt))
	return pkt
}

func TestTamperCorruptsOnlyPayload(t *testing.T) {
	s := config.DefaultSettings()
	s.Tamper.Enabled = true
	s.Tamper.Probability = 1
	s.Tamper.Amount = 0.5

	st := NewState()
	stats := &Statistics{}
	g := NewGate(1)

	payload := bytes.Repeat([]byte{0xaa}, 64)
	raw := udpPacket(t, payload)
	orig := append([]byte(nil), raw...)

	p := core.NewPacketData(raw, core.DirectionOutbound)
	out := runCycle(t, s, st, stats, g, time.Unix(1000, 0), []*core.PacketData{p})
	require.Len(t, out, 1)

	// IP header intact except its checksum field; addressing untouched.
	assert.Equal(t, orig[:10], out[0].Data[:10])
	assert.Equal(t, orig[12:20], out[0].Data[12:20])
	// UDP ports and length intact.
	assert.Equal(t, orig[20:26], out[0].Data[20:26])
	// Payload corrupted.
	assert.NotEqual(t, orig[28:], out[0].Data[28:])
	assert.Equal(t, uint64(1), stats.Snapshot().Tamper.Tampered)

	// Checksums were recalculated: recomputing changes nothing.
	after := append([]byte(nil), out[0].Data...)
	require.True(t, core.RecalculateChecksums(after))
	assert.Equal(t, out[0].Data, after)
}

func TestTamperSkipsPayloadlessPackets(t *testing.T) {
	s := config.DefaultSettings()
	s.Tamper.Enabled = true
	s.Tamper.Probability = 1
	s.Tamper.Amount = 1

	st := NewState()
	stats := &Statistics{}
	g := NewGate(1)

	raw := udpPacket(t, nil) // headers only
	orig := append([]byte(nil), raw...)
	p := core.NewPacketData(raw, core.DirectionInbound)

	out := runCycle(t, s, st, stats, g, time.Unix(1000, 0), []*core.PacketData{p})
	require.Len(t, out, 1)
	assert.Equal(t, orig, out[0].Data, "a packet without payload must pass untouched")
	assert.Zero(t, stats.Snapshot().Tamper.Tampered)
}
