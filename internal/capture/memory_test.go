package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icc.tech/netem-agent/internal/core"
)

func TestMemoryHandleRoundTrip(t *testing.T) {
	h := NewMemoryHandle(4)
	p := core.NewPacketData([]byte{0x45, 1, 2, 3}, core.DirectionInbound)

	require.True(t, h.Feed(p))
	got := <-h.Packets()
	assert.Same(t, p, got)

	require.NoError(t, h.Inject(got))
	assert.Len(t, h.Injected(), 1)
}

func TestMemoryHandleFeedFullBuffer(t *testing.T) {
	h := NewMemoryHandle(1)
	p := core.NewPacketData(nil, core.DirectionInbound)
	assert.True(t, h.Feed(p))
	assert.False(t, h.Feed(p), "full buffer must refuse, not block")
}

func TestMemoryHandleClose(t *testing.T) {
	h := NewMemoryHandle(1)
	require.NoError(t, h.Close())

	p := core.NewPacketData(nil, core.DirectionOutbound)
	assert.False(t, h.Feed(p))
	assert.ErrorIs(t, h.Inject(p), ErrHandleClosed)

	_, open := <-h.Packets()
	assert.False(t, open, "channel must be closed")

	assert.NoError(t, h.Close(), "double close is fine")
}

func TestMemoryHandleInjectErr(t *testing.T) {
	h := NewMemoryHandle(1)
	h.InjectErr = assert.AnError
	p := core.NewPacketData(nil, core.DirectionOutbound)
	assert.ErrorIs(t, h.Inject(p), assert.AnError)
	assert.Empty(t, h.Injected())
}
