package netem

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icc.tech/netem-agent/internal/config"
	"icc.tech/netem-agent/internal/core"
)

func bandwidthSettings(limitKbps float64) *config.Settings {
	s := config.DefaultSettings()
	s.Bandwidth.Enabled = true
	s.Bandwidth.Probability = 1
	s.Bandwidth.DurationMS = 0
	s.Bandwidth.LimitKbps = limitKbps
	return s
}

func TestBandwidthBurstWithinCapacityNotThrottled(t *testing.T) {
	s := bandwidthSettings(100) // bucket capacity 102400 bytes, starts full
	st := NewState()
	stats := &Statistics{}
	g := NewGate(1)

	var batch []*core.PacketData
	for i := 0; i < 50; i++ {
		batch = append(batch, pkt(byte(i), 1000, core.DirectionOutbound))
	}
	out := runCycle(t, s, st, stats, g, time.Unix(1000, 0), batch)
	assert.Len(t, out, 50, "a burst smaller than the bucket must pass immediately")
	assert.Zero(t, stats.Snapshot().Bandwidth.Queued)
}

func TestBandwidthPassthroughThreshold(t *testing.T) {
	s := bandwidthSettings(1) // tiny limit
	s.Bandwidth.PassthroughThresholdBytes = 80
	st := NewState()
	stats := &Statistics{}
	g := NewGate(1)
	t0 := time.Unix(1000, 0)

	// Exhaust the bucket with big packets, then send small ones.
	var big []*core.PacketData
	for i := 0; i < 40; i++ {
		big = append(big, pkt(byte(i), 1400, core.DirectionOutbound))
	}
	runCycle(t, s, st, stats, g, t0, big)

	for i := 0; i < 100; i++ {
		now := t0.Add(time.Duration(i+1) * 10 * time.Millisecond)
		out, err := ProcessAllModules(s, []*core.PacketData{pkt(200, 60, core.DirectionOutbound)}, st, stats, g, now)
		require.NoError(t, err)
		found := false
		for _, p := range out {
			if p.Data[0] == 200 {
				found = true
			}
		}
		assert.True(t, found, "packets under the threshold must never be delayed")
	}
}

func TestBandwidthSustainedThroughputConvergesToLimit(t *testing.T) {
	const limitKbps = 100 // 102400 bytes/s
	s := bandwidthSettings(limitKbps)
	st := NewState()
	stats := &Statistics{}
	g := NewGate(1)
	t0 := time.Unix(1000, 0)

	var passed uint64
	const cycles = 1000 // 10 simulated seconds at 10ms cycles
	id := byte(0)
	for i := 0; i < cycles; i++ {
		now := t0.Add(time.Duration(i) * 10 * time.Millisecond)
		// Offer ~500 KB/s, five times the limit.
		var batch []*core.PacketData
		for j := 0; j < 5; j++ {
			batch = append(batch, pkt(id, 1000, core.DirectionOutbound))
			id++
		}
		out, err := ProcessAllModules(s, batch, st, stats, g, now)
		require.NoError(t, err)
		passed += uint64(len(out)) * 1000
	}

	// One full initial bucket on top of 10s at the limit.
	expected := float64(limitKbps*1024*10 + limitKbps*1024)
	assert.InEpsilon(t, expected, float64(passed), 0.10,
		"sustained throughput must converge to limit_kbps")
}

func TestBandwidthPreservesOrder(t *testing.T) {
	s := bandwidthSettings(10) // 10240 B/s, capacity floor 16384
	st := NewState()
	stats := &Statistics{}
	g := NewGate(1)
	t0 := time.Unix(1000, 0)

	var sent []byte
	var got []byte
	id := byte(0)
	for i := 0; i < 400; i++ {
		now := t0.Add(time.Duration(i) * 10 * time.Millisecond)
		var batch []*core.PacketData
		if i < 50 {
			batch = append(batch, pkt(id, 1000, core.DirectionOutbound))
			sent = append(sent, id)
			id++
		}
		out, err := ProcessAllModules(s, batch, st, stats, g, now)
		require.NoError(t, err)
		got = append(got, ids(out)...)
	}

	require.NotEmpty(t, got)
	assert.Equal(t, sent[:len(got)], got, "a blocked packet must hold back the packets behind it")
}

func TestBandwidthUseWFPSkipsPacing(t *testing.T) {
	s := bandwidthSettings(0.001)
	s.Bandwidth.UseWFP = true
	st := NewState()
	stats := &Statistics{}
	g := NewGate(1)

	var batch []*core.PacketData
	for i := 0; i < 100; i++ {
		batch = append(batch, pkt(byte(i), 1400, core.DirectionOutbound))
	}
	out := runCycle(t, s, st, stats, g, time.Unix(1000, 0), batch)
	assert.Len(t, out, 100, "use_wfp delegates pacing externally; nothing queues in-pipeline")
	assert.Zero(t, stats.Snapshot().Bandwidth.Queued)
}
