package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettingsDoc_Empty(t *testing.T) {
	doc, err := loadSettingsDoc("")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestLoadSettingsDoc_ValidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yml")
	content := `
drop:
  enabled: true
  probability: 0.25
lag:
  enabled: true
  probability: 1
  delay_ms: 40
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	doc, err := loadSettingsDoc(path)
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(doc, &decoded))
	assert.Contains(t, decoded, "drop")
	assert.Contains(t, decoded, "lag")
}

func TestLoadSettingsDoc_InvalidDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yml")
	content := `
drop:
  enabled: true
  probability: 3.0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := loadSettingsDoc(path)
	assert.Error(t, err)
}

func TestLoadSettingsDoc_MissingFile(t *testing.T) {
	_, err := loadSettingsDoc("/nonexistent/settings.yml")
	assert.Error(t, err)
}
