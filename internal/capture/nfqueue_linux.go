//go:build linux

package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/florianl/go-nfqueue/v2"

	"icc.tech/netem-agent/internal/core"
)

// nfHookLocalOut and nfHookPostRouting are the netfilter hooks that
// carry locally originated traffic.
const (
	nfHookLocalOut    = 3
	nfHookPostRouting = 4
)

// nfQueueHandle intercepts packets via Linux NFQUEUE. Every packet that
// matches the iptables NFQUEUE rule receives a DROP verdict; ownership
// passes to the pipeline, which reinjects survivors through a raw
// socket. When the delivery channel backs up, packets are ACCEPTed
// unmodified instead of stalling the kernel queue.
type nfQueueHandle struct {
	nf       *nfqueue.Nfqueue
	inj      *injector
	packets  chan *core.PacketData
	cancel   context.CancelFunc
	packetID uint32
}

// Open binds to the given NFQUEUE number and starts delivering packets.
func Open(queueNum uint16) (Handle, error) {
	cfg := nfqueue.Config{
		NfQueue:      queueNum,
		MaxPacketLen: 0xFFFF,
		MaxQueueLen:  1024,
		Copymode:     nfqueue.NfQnlCopyPacket,
		WriteTimeout: 10 * time.Millisecond,
	}

	nf, err := nfqueue.Open(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open nfqueue %d: %w", queueNum, err)
	}

	inj, err := newInjector()
	if err != nil {
		nf.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &nfQueueHandle{
		nf:      nf,
		inj:     inj,
		packets: make(chan *core.PacketData, 4096),
		cancel:  cancel,
	}

	fn := func(a nfqueue.Attribute) int {
		if a.PacketID == nil || a.Payload == nil || len(*a.Payload) == 0 {
			if a.PacketID != nil {
				h.nf.SetVerdict(*a.PacketID, nfqueue.NfAccept)
			}
			return 0
		}

		dir := core.DirectionInbound
		if a.Hook != nil && (*a.Hook == nfHookLocalOut || *a.Hook == nfHookPostRouting) {
			dir = core.DirectionOutbound
		}

		// The callback must not copy lazily: the payload buffer is only
		// valid during the callback.
		data := make([]byte, len(*a.Payload))
		copy(data, *a.Payload)
		p := core.NewPacketData(data, dir)
		h.packetID++
		p.PacketID = h.packetID

		select {
		case h.packets <- p:
			h.nf.SetVerdict(*a.PacketID, nfqueue.NfDrop)
		default:
			// Pipeline overwhelmed; let the packet through untouched.
			h.nf.SetVerdict(*a.PacketID, nfqueue.NfAccept)
		}
		return 0
	}

	errFn := func(e error) int {
		slog.Warn("nfqueue receive error", "error", e)
		return 0
	}

	if err := nf.RegisterWithErrorFunc(ctx, fn, errFn); err != nil {
		cancel()
		inj.close()
		nf.Close()
		return nil, fmt.Errorf("failed to register nfqueue handler: %w", err)
	}

	slog.Info("nfqueue interception started", "queue", queueNum)
	return h, nil
}

func (h *nfQueueHandle) Packets() <-chan *core.PacketData { return h.packets }

func (h *nfQueueHandle) Inject(p *core.PacketData) error {
	return h.inj.inject(p.Data)
}

func (h *nfQueueHandle) Close() error {
	h.cancel()
	h.inj.close()
	err := h.nf.Close()
	close(h.packets)
	return err
}
