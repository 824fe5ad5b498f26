package netem

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icc.tech/netem-agent/internal/config"
	"icc.tech/netem-agent/internal/core"
)

func TestLagDelaysAndReleasesInOrder(t *testing.T) {
	s := config.DefaultSettings()
	s.Lag.Enabled = true
	s.Lag.Probability = 1
	s.Lag.DelayMS = 50

	st := NewState()
	stats := &Statistics{}
	g := NewGate(1)
	t0 := time.Unix(1000, 0)

	// Cycle 1: two packets go in, nothing comes out yet.
	out := runCycle(t, s, st, stats, g, t0, []*core.PacketData{
		pkt(1, 100, core.DirectionInbound),
		pkt(2, 100, core.DirectionInbound),
	})
	assert.Empty(t, out)
	assert.Equal(t, 2, stats.Snapshot().Lag.Pending)

	// Cycle at +30ms: still held; a third packet joins the queue.
	out = runCycle(t, s, st, stats, g, t0.Add(30*time.Millisecond), []*core.PacketData{
		pkt(3, 100, core.DirectionInbound),
	})
	assert.Empty(t, out)

	// Cycle at +50ms: the first two are due, the third is not.
	out = runCycle(t, s, st, stats, g, t0.Add(50*time.Millisecond), nil)
	assert.Equal(t, []byte{1, 2}, ids(out))

	// Cycle at +80ms: the third releases.
	out = runCycle(t, s, st, stats, g, t0.Add(80*time.Millisecond), nil)
	assert.Equal(t, []byte{3}, ids(out))
	assert.Zero(t, stats.Snapshot().Lag.Pending)
	assert.Equal(t, uint64(3), stats.Snapshot().Lag.Delayed)
}

func TestLagReleasedPacketsPrecedeNewArrivals(t *testing.T) {
	s := config.DefaultSettings()
	s.Lag.Enabled = true
	s.Lag.Probability = 1
	s.Lag.DelayMS = 10
	// Window closes immediately after the trigger cycle so the follow-up
	// packet passes undelayed.
	s.Lag.DurationMS = 5

	st := NewState()
	stats := &Statistics{}
	g := NewGate(1)
	t0 := time.Unix(1000, 0)

	out := runCycle(t, s, st, stats, g, t0, []*core.PacketData{pkt(1, 100, core.DirectionOutbound)})
	require.Empty(t, out)

	// Force the window shut so packet 2 is gated (probability 1 would
	// reopen it; drop the probability for this cycle).
	s2 := s.Clone()
	s2.Lag.Probability = 0
	out, err := ProcessAllModules(s2, []*core.PacketData{pkt(2, 100, core.DirectionOutbound)}, st, stats, g, t0.Add(10*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, ids(out), "released packet must come out ahead of the same-cycle arrival")
}

func TestLagDirectionScope(t *testing.T) {
	s := config.DefaultSettings()
	s.Lag.Enabled = true
	s.Lag.Probability = 1
	s.Lag.DelayMS = 100
	s.Lag.Inbound = false
	s.Lag.Outbound = true

	st := NewState()
	stats := &Statistics{}
	g := NewGate(1)
	t0 := time.Unix(1000, 0)

	out := runCycle(t, s, st, stats, g, t0, []*core.PacketData{
		pkt(1, 100, core.DirectionInbound),
		pkt(2, 100, core.DirectionOutbound),
	})
	assert.Equal(t, []byte{1}, ids(out), "inbound packet must pass untouched")
	assert.Equal(t, 1, stats.Snapshot().Lag.Pending)
}
