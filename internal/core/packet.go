// Package core defines core packet data structures with zero external dependencies.
package core

import (
	"time"
)

// Direction indicates which way a packet is traveling relative to the host.
type Direction uint8

const (
	// DirectionInbound is traffic arriving at the host (download).
	DirectionInbound Direction = iota
	// DirectionOutbound is traffic leaving the host (upload).
	DirectionOutbound
)

// String returns the lowercase name of the direction.
func (d Direction) String() string {
	if d == DirectionOutbound {
		return "outbound"
	}
	return "inbound"
}

// Outbound reports whether the direction is outbound.
func (d Direction) Outbound() bool { return d == DirectionOutbound }

// PacketData is one in-flight packet. Data is the raw IP datagram (no
// link layer). The packet is owned by whichever queue or dispatch cycle
// currently holds it; it is never shared across goroutines.
type PacketData struct {
	Data        []byte
	Direction   Direction
	ArrivalTime time.Time

	// PacketID carries the substrate's per-packet identifier (for
	// nfqueue, the queue-local packet ID the verdict was issued for).
	PacketID uint32
}

// NewPacketData wraps a raw datagram, recording the current time as the
// arrival time.
func NewPacketData(data []byte, dir Direction) *PacketData {
	return &PacketData{
		Data:        data,
		Direction:   dir,
		ArrivalTime: time.Now(),
	}
}

// Size returns the packet length in bytes.
func (p *PacketData) Size() int { return len(p.Data) }

// Age returns the time elapsed since the packet was captured.
func (p *PacketData) Age() time.Duration { return time.Since(p.ArrivalTime) }

// Clone returns a deep copy of the packet. The copy shares no memory
// with the original.
func (p *PacketData) Clone() *PacketData {
	data := make([]byte, len(p.Data))
	copy(data, p.Data)
	return &PacketData{
		Data:        data,
		Direction:   p.Direction,
		ArrivalTime: p.ArrivalTime,
		PacketID:    p.PacketID,
	}
}

// FlipDirection inverts the packet's direction tag. Used by the
// address-swap reinjection fallback.
func (p *PacketData) FlipDirection() {
	if p.Direction == DirectionOutbound {
		p.Direction = DirectionInbound
	} else {
		p.Direction = DirectionOutbound
	}
}
