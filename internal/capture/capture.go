// Package capture provides the packet interception substrate: a handle
// yielding direction-tagged raw IP packets pulled out of the kernel,
// plus reinjection of the packets the pipeline lets through.
package capture

import "icc.tech/netem-agent/internal/core"

// Handle is one open interception session. Packets delivered on the
// channel have already been removed from the normal network path; every
// surviving packet must be handed back via Inject or it is gone.
type Handle interface {
	// Packets yields intercepted packets. The channel closes when the
	// handle shuts down.
	Packets() <-chan *core.PacketData
	// Inject sends a raw IP packet back into the network.
	Inject(p *core.PacketData) error
	// Close stops interception and releases kernel resources.
	Close() error
}
