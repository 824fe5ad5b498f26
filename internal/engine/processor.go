// Package engine drives the packet manipulation pipeline: it owns the
// run/stop lifecycle, pulls packet batches off the capture substrate,
// threads them through the module registry and reinjects survivors.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"icc.tech/netem-agent/internal/capture"
	"icc.tech/netem-agent/internal/config"
	"icc.tech/netem-agent/internal/core"
	"icc.tech/netem-agent/internal/metrics"
	"icc.tech/netem-agent/internal/netem"
)

// Lifecycle sentinels.
var (
	ErrAlreadyRunning = errors.New("emulation already running")
	ErrNotRunning     = errors.New("emulation not running")
)

// maxBatch bounds how many packets one dispatch cycle drains from the
// capture channel.
const maxBatch = 2048

// Options configures a Processor.
type Options struct {
	// CycleMS is the dispatch polling interval in milliseconds.
	CycleMS uint64
	// Seed fixes the probability gate RNG; 0 = random.
	Seed uint64
	// QueueNum is the NFQUEUE number used by the default handle opener.
	QueueNum uint16
	// OpenHandle overrides how the capture handle is opened. Nil uses
	// NFQUEUE interception.
	OpenHandle func() (capture.Handle, error)
}

// Processor is the pipeline driver. It moves between Idle and Running;
// per-module state exists only while Running and is discarded on stop
// so a restart behaves like a fresh start.
type Processor struct {
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	cycle      time.Duration
	seed       uint64
	openHandle func() (capture.Handle, error)

	// settings and filter are snapshot-swapped: the worker loads one
	// consistent generation per cycle, updates never tear.
	settings atomic.Pointer[config.Settings]
	filter   atomic.Pointer[capture.Filter]

	handle capture.Handle
	state  *netem.State
	gate   *netem.Gate
	stats  *netem.Statistics
}

// New creates an idle processor.
func New(opts Options) *Processor {
	if opts.CycleMS == 0 {
		opts.CycleMS = 10
	}
	open := opts.OpenHandle
	if open == nil {
		queueNum := opts.QueueNum
		open = func() (capture.Handle, error) { return capture.Open(queueNum) }
	}
	return &Processor{
		cycle:      time.Duration(opts.CycleMS) * time.Millisecond,
		seed:       opts.Seed,
		openHandle: open,
		stats:      &netem.Statistics{},
	}
}

// Start validates the settings document, compiles the filter, opens the
// interception handle and spawns the dispatch worker. Configuration
// errors leave the processor idle.
func (p *Processor) Start(s *config.Settings, filterExpr string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrAlreadyRunning
	}
	if err := s.Validate(); err != nil {
		return err
	}
	f, err := capture.CompileFilter(filterExpr)
	if err != nil {
		return err
	}
	handle, err := p.openHandle()
	if err != nil {
		return fmt.Errorf("failed to open capture handle: %w", err)
	}

	p.settings.Store(s.Clone())
	p.filter.Store(f)
	p.handle = handle
	p.state = netem.NewState()
	p.gate = netem.NewGate(p.seed)
	p.stats.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.worker(ctx)

	p.running = true
	metrics.EmulationRunning.Set(1)
	slog.Info("emulation started",
		"modules", netem.EnabledModules(s), "filter", filterExpr)
	return nil
}

// Stop cancels the worker, waits for it to exit, discards every
// buffered packet deterministically and resets all module state.
func (p *Processor) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return ErrNotRunning
	}

	p.cancel()
	<-p.done
	err := p.handle.Close()

	p.stats.With(p.state.Discard)
	p.state = nil
	p.gate = nil
	p.handle = nil
	p.running = false

	metrics.EmulationRunning.Set(0)
	slog.Info("emulation stopped")
	return err
}

// UpdateSettings atomically swaps the live settings snapshot. Module
// state is untouched, so buffered packets survive unrelated tweaks.
func (p *Processor) UpdateSettings(s *config.Settings) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return ErrNotRunning
	}
	if err := s.Validate(); err != nil {
		return err
	}
	p.settings.Store(s.Clone())
	slog.Info("settings updated", "modules", netem.EnabledModules(s))
	return nil
}

// UpdateFilter swaps the compiled capture filter without touching
// module behavior.
func (p *Processor) UpdateFilter(expr string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return ErrNotRunning
	}
	f, err := capture.CompileFilter(expr)
	if err != nil {
		return err
	}
	p.filter.Store(f)
	slog.Info("filter updated", "filter", expr)
	return nil
}

// Status reports the running flag, the active configuration and a
// statistics snapshot.
func (p *Processor) Status() Status {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()

	st := Status{
		Running:    running,
		Statistics: p.stats.Snapshot(),
	}
	if s := p.settings.Load(); s != nil {
		st.Settings = s.Clone()
		st.EnabledModules = netem.EnabledModules(s)
	}
	if f := p.filter.Load(); f != nil {
		st.Filter = f.Expression()
	}
	return st
}

// Status is the observable processor state.
type Status struct {
	Running        bool             `json:"running"`
	Filter         string           `json:"filter"`
	EnabledModules []string         `json:"enabled_modules"`
	Settings       *config.Settings `json:"settings,omitempty"`
	Statistics     netem.Counters   `json:"statistics"`
}

// worker is the dedicated dispatch loop. It must never block
// indefinitely: a stalled worker stalls all intercepted traffic.
func (p *Processor) worker(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.cycle)
	defer ticker.Stop()

	var prev netem.Counters
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			start := time.Now()
			p.runCycle(now)
			metrics.CycleDurationSeconds.Observe(time.Since(start).Seconds())
			prev = p.observe(prev)
		}
	}
}

// runCycle drains one batch, dispatches it and reinjects survivors.
func (p *Processor) runCycle(now time.Time) {
	s := p.settings.Load()
	f := p.filter.Load()

	batch := make([]*core.PacketData, 0, 64)
drain:
	for len(batch) < maxBatch {
		select {
		case pkt, ok := <-p.handle.Packets():
			if !ok {
				break drain
			}
			metrics.PacketsReceivedTotal.WithLabelValues(pkt.Direction.String()).Inc()
			if !f.Match(pkt.Data) {
				// Out of filter scope: hand straight back.
				p.inject(pkt, s)
				continue
			}
			batch = append(batch, pkt)
		default:
			break drain
		}
	}

	out, err := netem.ProcessAllModules(s, batch, p.state, p.stats, p.gate, now)
	if err != nil {
		slog.Warn("dispatch cycle degraded", "error", err)
	}
	for _, pkt := range out {
		p.inject(pkt, s)
	}
}

// inject hands a packet back to the network. On failure the packet is
// lost, unless lag_bypass is set: then the driver swaps src/dst
// addressing, flips the direction and retries exactly once.
func (p *Processor) inject(pkt *core.PacketData, s *config.Settings) {
	err := p.handle.Inject(pkt)
	if err == nil {
		metrics.PacketsInjectedTotal.WithLabelValues(pkt.Direction.String()).Inc()
		return
	}
	metrics.InjectFailuresTotal.Inc()

	if s != nil && s.LagBypass && core.SwapAddresses(pkt.Data) {
		pkt.FlipDirection()
		if err = p.handle.Inject(pkt); err == nil {
			metrics.PacketsInjectedTotal.WithLabelValues(pkt.Direction.String()).Inc()
			return
		}
		metrics.InjectFailuresTotal.Inc()
	}
	slog.Debug("packet lost on reinjection", "error", err, "size", pkt.Size(), "age", pkt.Age())
}

// observe publishes per-cycle statistics deltas and gauges to
// Prometheus and returns the new baseline.
func (p *Processor) observe(prev netem.Counters) netem.Counters {
	c := p.stats.Snapshot()

	metrics.PacketsDroppedTotal.WithLabelValues("drop").Add(float64(c.Drop.Dropped - prev.Drop.Dropped))
	metrics.PacketsDroppedTotal.WithLabelValues("throttle").Add(float64(c.Throttle.Dropped - prev.Throttle.Dropped))
	metrics.PacketsDroppedTotal.WithLabelValues("bandwidth").Add(float64(c.Bandwidth.Dropped - prev.Bandwidth.Dropped))
	metrics.PacketsDroppedTotal.WithLabelValues("reorder").Add(float64(c.Reorder.Dropped - prev.Reorder.Dropped))
	metrics.PacketsDroppedTotal.WithLabelValues("burst").Add(float64(c.Burst.Dropped - prev.Burst.Dropped))
	metrics.PacketsDuplicatedTotal.Add(float64(c.Duplicate.Copies - prev.Duplicate.Copies))

	metrics.PacketsBuffered.WithLabelValues("lag").Set(float64(c.Lag.Pending))
	metrics.PacketsBuffered.WithLabelValues("throttle").Set(float64(c.Throttle.Buffered))
	metrics.PacketsBuffered.WithLabelValues("bandwidth").Set(float64(c.Bandwidth.Queued))
	metrics.PacketsBuffered.WithLabelValues("reorder").Set(float64(c.Reorder.Pending))
	metrics.PacketsBuffered.WithLabelValues("burst").Set(float64(c.Burst.Buffered))

	if c.Throttle.Throttling {
		metrics.ThrottlingActive.Set(1)
	} else {
		metrics.ThrottlingActive.Set(0)
	}
	return c
}
