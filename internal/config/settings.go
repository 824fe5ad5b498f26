package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings is the full emulation settings document: one options block per
// packet manipulation module, keyed by module name. The document is
// accepted as a complete snapshot on start/update; keys absent from the
// document keep their registry-driven defaults.
type Settings struct {
	Drop      DropOptions      `json:"drop" yaml:"drop" mapstructure:"drop"`
	Lag       LagOptions       `json:"lag" yaml:"lag" mapstructure:"lag"`
	Throttle  ThrottleOptions  `json:"throttle" yaml:"throttle" mapstructure:"throttle"`
	Duplicate DuplicateOptions `json:"duplicate" yaml:"duplicate" mapstructure:"duplicate"`
	Tamper    TamperOptions    `json:"tamper" yaml:"tamper" mapstructure:"tamper"`
	Bandwidth BandwidthOptions `json:"bandwidth" yaml:"bandwidth" mapstructure:"bandwidth"`
	Reorder   ReorderOptions   `json:"reorder" yaml:"reorder" mapstructure:"reorder"`
	Burst     BurstOptions     `json:"burst" yaml:"burst" mapstructure:"burst"`

	// LagBypass enables the address-swap reinjection fallback: when
	// sending a packet fails, swap src/dst addressing, flip direction
	// and retry once instead of dropping.
	LagBypass bool `json:"lag_bypass" yaml:"lag_bypass" mapstructure:"lag_bypass"`
}

// ModuleCommon holds the options every module shares.
type ModuleCommon struct {
	Enabled     bool    `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Inbound     bool    `json:"inbound" yaml:"inbound" mapstructure:"inbound"`
	Outbound    bool    `json:"outbound" yaml:"outbound" mapstructure:"outbound"`
	Probability float64 `json:"probability" yaml:"probability" mapstructure:"probability"`
	// DurationMS is the effect window length in milliseconds. 0 means
	// the window never auto-closes once triggered.
	DurationMS uint64 `json:"duration_ms" yaml:"duration_ms" mapstructure:"duration_ms"`
}

// Applies reports whether the module covers the given traffic direction.
func (c *ModuleCommon) Applies(outbound bool) bool {
	if outbound {
		return c.Outbound
	}
	return c.Inbound
}

func (c *ModuleCommon) validate(name string) error {
	if c.Probability < 0 || c.Probability > 1 {
		return fmt.Errorf("%s: probability %v not in [0, 1]", name, c.Probability)
	}
	return nil
}

// DropOptions configures random packet loss.
type DropOptions struct {
	ModuleCommon `yaml:",inline" mapstructure:",squash"`
}

// LagOptions configures fixed-delay packet release.
type LagOptions struct {
	ModuleCommon `yaml:",inline" mapstructure:",squash"`
	DelayMS      uint64 `json:"delay_ms" yaml:"delay_ms" mapstructure:"delay_ms"`
}

// ThrottleOptions configures buffer-then-flush throttling.
type ThrottleOptions struct {
	ModuleCommon `yaml:",inline" mapstructure:",squash"`
	// PeriodMS is the interval between periodic buffer flushes.
	PeriodMS uint64 `json:"throttle_period_ms" yaml:"throttle_period_ms" mapstructure:"throttle_period_ms"`
	// Drop discards buffered packets on flush instead of releasing them.
	Drop bool `json:"drop" yaml:"drop" mapstructure:"drop"`
	// FreezeMode suppresses the periodic flush entirely: the buffer is
	// flushed only when the effect window closes, stalling the link for
	// the full window.
	FreezeMode bool `json:"freeze_mode" yaml:"freeze_mode" mapstructure:"freeze_mode"`
	// MaxBuffer caps the buffered packet count; overflow evicts oldest.
	MaxBuffer int `json:"max_buffer" yaml:"max_buffer" mapstructure:"max_buffer"`
}

// DuplicateOptions configures packet duplication.
type DuplicateOptions struct {
	ModuleCommon `yaml:",inline" mapstructure:",squash"`
	// Count is the total number of copies forwarded per selected packet.
	Count int `json:"count" yaml:"count" mapstructure:"count"`
}

// TamperOptions configures payload corruption.
type TamperOptions struct {
	ModuleCommon `yaml:",inline" mapstructure:",squash"`
	// Amount is the fraction of payload bytes corrupted per packet.
	Amount float64 `json:"amount" yaml:"amount" mapstructure:"amount"`
	// RecalculateChecksums rewrites IP/TCP/UDP checksums after
	// corruption so the packet still passes checksum offload; disable
	// to corrupt checksums too.
	RecalculateChecksums bool `json:"recalculate_checksums" yaml:"recalculate_checksums" mapstructure:"recalculate_checksums"`
}

// BandwidthOptions configures token-bucket rate limiting.
type BandwidthOptions struct {
	ModuleCommon `yaml:",inline" mapstructure:",squash"`
	LimitKbps    float64 `json:"limit_kbps" yaml:"limit_kbps" mapstructure:"limit_kbps"`
	// PassthroughThresholdBytes exempts packets at or below this size
	// (ACKs, keepalives) so control traffic is never starved.
	PassthroughThresholdBytes int `json:"passthrough_threshold_bytes" yaml:"passthrough_threshold_bytes" mapstructure:"passthrough_threshold_bytes"`
	// UseWFP delegates pacing to an OS-level collaborator; the
	// in-pipeline token bucket is disabled while set.
	UseWFP bool `json:"use_wfp" yaml:"use_wfp" mapstructure:"use_wfp"`
}

// ReorderOptions configures random-delay packet reordering.
type ReorderOptions struct {
	ModuleCommon `yaml:",inline" mapstructure:",squash"`
	MaxDelayMS   uint64 `json:"max_delay_ms" yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
	// Reverse biases delays toward the maximum instead of a uniform
	// draw, scrambling order more aggressively.
	Reverse bool `json:"reverse" yaml:"reverse" mapstructure:"reverse"`
}

// BurstOptions configures buffer-and-flush burst emulation.
type BurstOptions struct {
	ModuleCommon `yaml:",inline" mapstructure:",squash"`
	// BufferMS is the buffer phase length. 0 means manual mode: hold
	// packets until the module is disabled.
	BufferMS uint64 `json:"buffer_ms" yaml:"buffer_ms" mapstructure:"buffer_ms"`
	// KeepaliveMS lets one keepalive-sized packet through at most this
	// often during the buffer phase. 0 disables keepalives.
	KeepaliveMS uint64 `json:"keepalive_ms" yaml:"keepalive_ms" mapstructure:"keepalive_ms"`
	// ReleaseDelayUS spaces flushed packets this many microseconds
	// apart. 0 releases the whole buffer at once.
	ReleaseDelayUS uint64 `json:"release_delay_us" yaml:"release_delay_us" mapstructure:"release_delay_us"`
	// Reverse flushes most-recent-first instead of FIFO.
	Reverse bool `json:"reverse" yaml:"reverse" mapstructure:"reverse"`
}

// DefaultSettings returns the settings document with every module
// disabled and module-specific fields at their registry defaults.
func DefaultSettings() *Settings {
	common := ModuleCommon{
		Inbound:  true,
		Outbound: true,
	}
	return &Settings{
		Drop: DropOptions{ModuleCommon: common},
		Lag: LagOptions{
			ModuleCommon: common,
			DelayMS:      100,
		},
		Throttle: ThrottleOptions{
			ModuleCommon: common,
			PeriodMS:     30,
			MaxBuffer:    2000,
		},
		Duplicate: DuplicateOptions{
			ModuleCommon: common,
			Count:        2,
		},
		Tamper: TamperOptions{
			ModuleCommon:         common,
			Amount:               0.1,
			RecalculateChecksums: true,
		},
		Bandwidth: BandwidthOptions{
			ModuleCommon:              common,
			PassthroughThresholdBytes: 80,
		},
		Reorder: ReorderOptions{
			ModuleCommon: common,
			MaxDelayMS:   100,
		},
		Burst: BurstOptions{
			ModuleCommon:   common,
			KeepaliveMS:    500,
			ReleaseDelayUS: 500,
		},
	}
}

// LoadSettings reads a YAML settings document, layering it over the
// defaults so absent module keys keep their default values.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}
	return ParseSettings(data)
}

// ParseSettings decodes a YAML (or JSON, being a YAML subset) settings
// document over the defaults and validates the result.
func ParseSettings(data []byte) (*Settings, error) {
	s := DefaultSettings()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings document: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks every module's options for out-of-range values.
// Validation failures are configuration errors: the caller must reject
// the document and keep its prior settings.
func (s *Settings) Validate() error {
	if err := s.Drop.validate("drop"); err != nil {
		return err
	}
	if err := s.Lag.validate("lag"); err != nil {
		return err
	}
	if err := s.Throttle.validate("throttle"); err != nil {
		return err
	}
	if s.Throttle.MaxBuffer < 0 {
		return fmt.Errorf("throttle: max_buffer %d is negative", s.Throttle.MaxBuffer)
	}
	if err := s.Duplicate.validate("duplicate"); err != nil {
		return err
	}
	if s.Duplicate.Count < 0 {
		return fmt.Errorf("duplicate: count %d is negative", s.Duplicate.Count)
	}
	if err := s.Tamper.validate("tamper"); err != nil {
		return err
	}
	if s.Tamper.Amount < 0 || s.Tamper.Amount > 1 {
		return fmt.Errorf("tamper: amount %v not in [0, 1]", s.Tamper.Amount)
	}
	if err := s.Bandwidth.validate("bandwidth"); err != nil {
		return err
	}
	if s.Bandwidth.LimitKbps < 0 {
		return fmt.Errorf("bandwidth: limit_kbps %v is negative", s.Bandwidth.LimitKbps)
	}
	if s.Bandwidth.PassthroughThresholdBytes < 0 {
		return fmt.Errorf("bandwidth: passthrough_threshold_bytes %d is negative",
			s.Bandwidth.PassthroughThresholdBytes)
	}
	if err := s.Reorder.validate("reorder"); err != nil {
		return err
	}
	if err := s.Burst.validate("burst"); err != nil {
		return err
	}
	return nil
}

// Clone returns a deep copy of the settings document. Settings contain
// no reference types, so a value copy suffices.
func (s *Settings) Clone() *Settings {
	c := *s
	return &c
}
