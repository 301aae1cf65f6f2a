package tracker

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfigFromReader(bytes.NewBufferString(""))
	require.NoError(t, err)
	assert.Equal(t, uint16(12345), cfg.SerialNumber)
	assert.Equal(t, 434.0, cfg.Radio.FreqMHz)
	assert.Equal(t, 9, cfg.Radio.SpreadingFactor)
	assert.Equal(t, 100, cfg.Humidity.BatchSize)
	assert.False(t, cfg.OverwritePending)
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := LoadConfigFromReader(bytes.NewBufferString(`
SerialNumber = 77
OverwritePending = true

[Radio]
FreqMHz = 868.0

[Humidity]
CRefPF = 181.5
`))
	require.NoError(t, err)
	assert.Equal(t, uint16(77), cfg.SerialNumber)
	assert.True(t, cfg.OverwritePending)
	assert.Equal(t, 868.0, cfg.RadioParams().FreqMHz)
	assert.Equal(t, 62.5, cfg.RadioParams().BandwidthKHz, "unset fields keep their defaults")
	assert.Equal(t, float32(181.5), cfg.HumidityConstants().CRef)
}

func TestLoadConfigRejectsGarbage(t *testing.T) {
	_, err := LoadConfigFromReader(bytes.NewBufferString("= not toml"))
	assert.Error(t, err)
}
