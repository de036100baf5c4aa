package confx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  address: "127.0.0.1:8080"
  readTimeout: 30s
logging:
  enabled: true
  level: debug
`

func TestLoadBytesAndUnpackChild(t *testing.T) {
	cfg, err := LoadBytes([]byte(sampleYAML))
	require.NoError(t, err)

	require.True(t, cfg.Has("server.address"))
	require.True(t, cfg.Enabled("logging"))

	var srv struct {
		Address string `config:"address"`
	}
	require.NoError(t, cfg.UnpackChild("server", &srv))
	require.Equal(t, "127.0.0.1:8080", srv.Address)
}

func TestChildConfig(t *testing.T) {
	cfg, err := LoadBytes([]byte(sampleYAML))
	require.NoError(t, err)

	child, err := cfg.Child("logging")
	require.NoError(t, err)

	var opts struct {
		Level string `config:"level"`
	}
	require.NoError(t, child.Unpack(&opts))
	require.Equal(t, "debug", opts.Level)
}

func TestLoadPathReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	cfg, err := LoadPath(path)
	require.NoError(t, err)
	require.True(t, cfg.Has("server.address"))
}

func TestHasMissingPath(t *testing.T) {
	cfg, err := LoadBytes([]byte(sampleYAML))
	require.NoError(t, err)
	require.False(t, cfg.Has("nonexistent.path"))
}
