package netem

import (
	"fmt"
	"log/slog"
	"time"

	"icc.tech/netem-agent/internal/config"
	"icc.tech/netem-agent/internal/core"
)

// Ctx is the per-cycle dispatch context handed to every module. The
// counters pointer is only valid inside the Statistics lock held by
// ProcessAllModules.
type Ctx struct {
	Gate     *Gate
	Now      time.Time
	Settings *config.Settings
	State    *State
	C        *Counters
}

// processFunc transforms the in-flight batch: it may remove packets
// (drop, buffer), add packets (release, duplicate) or mutate them in
// place. Later modules only ever see the batch as left by earlier ones.
type processFunc func(ctx *Ctx, batch []*core.PacketData) []*core.PacketData

// Entry is one row of the module registry.
type Entry struct {
	Name        string
	DisplayName string
	// Order is the processing priority, ascending. Gaps in the
	// numbering let new modules slot in without renumbering.
	Order uint32
	// NeedsSpecialHandling marks modules that keep work to do while
	// disabled (burst must flush its buffer when switched off).
	NeedsSpecialHandling bool

	enabled    func(*config.Settings) bool
	process    processFunc
	onDisabled processFunc
}

// modules is the static registry, sorted by ascending Order. Dropped
// packets are never duplicated, pacing applies to the already-reordered
// stream: the order is the correctness contract.
var modules = []Entry{
	{Name: "drop", DisplayName: "Drop", Order: 10,
		enabled: func(s *config.Settings) bool { return s.Drop.Enabled },
		process: processDrop},
	{Name: "lag", DisplayName: "Lag", Order: 20,
		enabled: func(s *config.Settings) bool { return s.Lag.Enabled },
		process: processLag},
	{Name: "throttle", DisplayName: "Throttle", Order: 30,
		enabled: func(s *config.Settings) bool { return s.Throttle.Enabled },
		process: processThrottle},
	{Name: "duplicate", DisplayName: "Duplicate", Order: 40,
		enabled: func(s *config.Settings) bool { return s.Duplicate.Enabled },
		process: processDuplicate},
	{Name: "tamper", DisplayName: "Tamper", Order: 45,
		enabled: func(s *config.Settings) bool { return s.Tamper.Enabled },
		process: processTamper},
	{Name: "bandwidth", DisplayName: "Bandwidth", Order: 50,
		enabled: func(s *config.Settings) bool { return s.Bandwidth.Enabled },
		process: processBandwidth},
	{Name: "reorder", DisplayName: "Reorder", Order: 60,
		enabled: func(s *config.Settings) bool { return s.Reorder.Enabled },
		process: processReorder},
	{Name: "burst", DisplayName: "Burst", Order: 70, NeedsSpecialHandling: true,
		enabled:    func(s *config.Settings) bool { return s.Burst.Enabled },
		process:    processBurst,
		onDisabled: burstFlushDisabled},
}

// FindModule returns the registry entry for name.
func FindModule(name string) (Entry, bool) {
	for _, e := range modules {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// ModuleNames returns all registry names in processing order.
func ModuleNames() []string {
	names := make([]string, len(modules))
	for i, e := range modules {
		names[i] = e.Name
	}
	return names
}

// IsModuleEnabled reports whether the named module is enabled in s.
// Unknown names report false.
func IsModuleEnabled(s *config.Settings, name string) bool {
	e, ok := FindModule(name)
	if !ok {
		return false
	}
	return e.enabled(s)
}

// EnabledModules returns the names of all enabled modules in
// processing order.
func EnabledModules(s *config.Settings) []string {
	var names []string
	for _, e := range modules {
		if e.enabled(s) {
			names = append(names, e.Name)
		}
	}
	return names
}

// HasAnyEnabled reports whether at least one module is enabled in s.
func HasAnyEnabled(s *config.Settings) bool {
	for _, e := range modules {
		if e.enabled(s) {
			return true
		}
	}
	return false
}

// ProcessAllModules threads one batch of in-flight packets through
// every enabled module in ascending registry order and returns the
// surviving batch. Disabled modules with special handling still get
// their onDisabled hook so leftover buffers drain. A module failure
// aborts the rest of the cycle for this batch; the worker itself never
// goes down.
func ProcessAllModules(s *config.Settings, batch []*core.PacketData, st *State, stats *Statistics, g *Gate, now time.Time) ([]*core.PacketData, error) {
	var err error
	stats.With(func(c *Counters) {
		ctx := &Ctx{Gate: g, Now: now, Settings: s, State: st, C: c}
		c.Processed += uint64(len(batch))
		for i := range modules {
			e := &modules[i]
			switch {
			case e.enabled(s):
				batch, err = runModule(e.Name, e.process, ctx, batch)
			case e.NeedsSpecialHandling && e.onDisabled != nil:
				batch, err = runModule(e.Name, e.onDisabled, ctx, batch)
			default:
				continue
			}
			if err != nil {
				slog.Error("module dispatch failed, skipping remaining modules for this batch",
					"module", e.Name, "error", err)
				break
			}
		}
		c.Forwarded += uint64(len(batch))
	})
	return batch, err
}

// runModule invokes one module, converting a panic into an error so a
// bad batch never takes the dispatch worker down.
func runModule(name string, fn processFunc, ctx *Ctx, batch []*core.PacketData) (out []*core.PacketData, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = batch
			err = fmt.Errorf("module %s: %v", name, r)
		}
	}()
	return fn(ctx, batch), nil
}
