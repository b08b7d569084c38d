package viper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serverSection struct {
	TCPAddr    string `mapstructure:"tcp_addr"`
	MaxClients int    `mapstructure:"max_clients"`
}

type fileConfig struct {
	Server serverSection `mapstructure:"server"`
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  tcp_addr: \":7000\"\n  max_clients: 3\n"), 0o600))

	c := New()
	require.NoError(t, c.LoadFile(path))

	var cfg fileConfig
	require.NoError(t, c.Unmarshal(&cfg))
	assert.Equal(t, ":7000", cfg.Server.TCPAddr)
	assert.Equal(t, 3, cfg.Server.MaxClients)
	assert.Equal(t, ":7000", c.GetString("server.tcp_addr"))
}

func TestLoadMissingFile(t *testing.T) {
	c := New()
	err := c.LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, IsNotExist(err))
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("CHATTEST_SERVER_TCP_ADDR", ":8000")

	c := New(WithEnvPrefix("CHATTEST"))
	c.SetDefault("server.tcp_addr", ":6969")
	c.SetDefault("server.max_clients", 7)

	var cfg fileConfig
	require.NoError(t, c.Unmarshal(&cfg))
	assert.Equal(t, ":8000", cfg.Server.TCPAddr)
	assert.Equal(t, 7, cfg.Server.MaxClients)
}

func TestUnmarshalKey(t *testing.T) {
	c := New()
	c.Set("server.max_clients", 2)

	var s serverSection
	require.NoError(t, c.UnmarshalKey("server", &s))
	assert.Equal(t, 2, s.MaxClients)
	assert.True(t, c.IsSet("server.max_clients"))
}
