package capture

import (
	"errors"
	"sync"

	"icc.tech/netem-agent/internal/core"
)

// ErrHandleClosed is returned by Inject after Close.
var ErrHandleClosed = errors.New("capture handle closed")

// MemoryHandle is an in-process Handle used by tests: packets fed in
// come out of Packets(), injected packets are recorded.
type MemoryHandle struct {
	mu       sync.Mutex
	packets  chan *core.PacketData
	injected []*core.PacketData
	closed   bool

	// InjectErr, when set, makes every Inject call fail. Lets tests
	// exercise the reinjection fallback paths.
	InjectErr error
	// FailFirst makes the next N Inject calls fail with InjectErr (or a
	// generic error), then recover.
	FailFirst int
}

// NewMemoryHandle returns a handle with the given delivery buffer size.
func NewMemoryHandle(buffer int) *MemoryHandle {
	return &MemoryHandle{packets: make(chan *core.PacketData, buffer)}
}

// Feed queues a packet for delivery. It reports false when the buffer
// is full or the handle is closed.
func (m *MemoryHandle) Feed(p *core.PacketData) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	select {
	case m.packets <- p:
		return true
	default:
		return false
	}
}

func (m *MemoryHandle) Packets() <-chan *core.PacketData { return m.packets }

func (m *MemoryHandle) Inject(p *core.PacketData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrHandleClosed
	}
	if m.InjectErr != nil {
		return m.InjectErr
	}
	if m.FailFirst > 0 {
		m.FailFirst--
		return errors.New("injected failure")
	}
	m.injected = append(m.injected, p)
	return nil
}

// Injected returns a copy of everything injected so far.
func (m *MemoryHandle) Injected() []*core.PacketData {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*core.PacketData, len(m.injected))
	copy(out, m.injected)
	return out
}

func (m *MemoryHandle) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.packets)
	return nil
}
