package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettingsAllDisabled(t *testing.T) {
	s := DefaultSettings()

	assert.False(t, s.Drop.Enabled)
	assert.False(t, s.Lag.Enabled)
	assert.False(t, s.Throttle.Enabled)
	assert.False(t, s.Duplicate.Enabled)
	assert.False(t, s.Tamper.Enabled)
	assert.False(t, s.Bandwidth.Enabled)
	assert.False(t, s.Reorder.Enabled)
	assert.False(t, s.Burst.Enabled)

	// Both directions by default, so enabling a module takes effect
	// without extra direction flags.
	assert.True(t, s.Drop.Inbound)
	assert.True(t, s.Drop.Outbound)

	require.NoError(t, s.Validate())
}

func TestParseSettingsLayersOverDefaults(t *testing.T) {
	doc := []byte(`
drop:
  enabled: true
  probability: 0.25
  inbound: false
lag:
  enabled: true
  probability: 1.0
  delay_ms: 250
  duration_ms: 3000
`)
	s, err := ParseSettings(doc)
	require.NoError(t, err)

	assert.True(t, s.Drop.Enabled)
	assert.Equal(t, 0.25, s.Drop.Probability)
	assert.False(t, s.Drop.Inbound)
	assert.True(t, s.Drop.Outbound)

	assert.True(t, s.Lag.Enabled)
	assert.Equal(t, uint64(250), s.Lag.DelayMS)
	assert.Equal(t, uint64(3000), s.Lag.DurationMS)

	// Absent modules keep defaults.
	assert.False(t, s.Throttle.Enabled)
	assert.Equal(t, uint64(30), s.Throttle.PeriodMS)
	assert.Equal(t, 2, s.Duplicate.Count)
}

func TestParseSettingsJSON(t *testing.T) {
	// JSON is a YAML subset; the control plane sends settings as JSON.
	doc := []byte(`{"duplicate": {"enabled": true, "probability": 0.5, "count": 3}}`)
	s, err := ParseSettings(doc)
	require.NoError(t, err)
	assert.True(t, s.Duplicate.Enabled)
	assert.Equal(t, 3, s.Duplicate.Count)
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"probability above one", func(s *Settings) { s.Drop.Probability = 1.5 }},
		{"negative probability", func(s *Settings) { s.Lag.Probability = -0.1 }},
		{"negative duplicate count", func(s *Settings) { s.Duplicate.Count = -1 }},
		{"tamper amount above one", func(s *Settings) { s.Tamper.Amount = 2 }},
		{"negative bandwidth limit", func(s *Settings) { s.Bandwidth.LimitKbps = -10 }},
		{"negative throttle buffer", func(s *Settings) { s.Throttle.MaxBuffer = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := DefaultSettings()
			tc.mutate(s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestAppliesDirection(t *testing.T) {
	c := ModuleCommon{Inbound: true, Outbound: false}
	assert.True(t, c.Applies(false))
	assert.False(t, c.Applies(true))
}

func TestCloneIsIndependent(t *testing.T) {
	s := DefaultSettings()
	c := s.Clone()
	c.Drop.Enabled = true
	c.Drop.Probability = 0.9
	assert.False(t, s.Drop.Enabled)
	assert.Zero(t, s.Drop.Probability)
}
