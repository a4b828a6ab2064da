package solicit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigYAML(t *testing.T) {
	cfg, err := LoadConfig([]byte(`
initialWindowSize: 1048576
maxFrameSize: 65536
maxHeaderListSize: 16384
`))
	require.NoError(t, err)
	assert.Equal(t, uint32(1048576), cfg.InitialWindowSize)
	assert.Equal(t, uint32(65536), cfg.MaxFrameSize)
	assert.Equal(t, uint32(16384), cfg.MaxHeaderListSize)
	// Unset fields stay zero; the engine fills protocol defaults.
	assert.Zero(t, cfg.HeaderTableSize)
}

func TestLoadConfigJSON(t *testing.T) {
	cfg, err := LoadConfig([]byte(`{"readBufferSize": 4096}`))
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.ReadBufferSize)
}

func TestLoadConfigInvalid(t *testing.T) {
	_, err := LoadConfig([]byte("initialWindowSize: [not a number"))
	assert.Error(t, err)
}

func TestNilConfigEngine(t *testing.T) {
	var c *Config
	assert.Nil(t, c.engine())
	cfg := &Config{MaxFrameSize: 32768}
	ec := cfg.engine()
	require.NotNil(t, ec)
	assert.Equal(t, uint32(32768), ec.MaxFrameSize)
}
