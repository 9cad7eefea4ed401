package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "nonexistent")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "release", cfg.Mode)
	require.Equal(t, []string{"127.0.0.1"}, cfg.ListenIps)
	require.Equal(t, uint16(40000), cfg.RtcMinPort)
	require.Equal(t, uint16(49999), cfg.RtcMaxPort)
	require.Equal(t, uint32(1000), cfg.StartBitrate)
}
