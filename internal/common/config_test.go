package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(viper.New())
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8000", cfg.Server.HTTPAddr)
	assert.Equal(t, ":8080", cfg.Server.GRPCAddr)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 4, cfg.Queue.Workers)
	assert.Equal(t, time.Duration(0), cfg.Queue.ProcessTimeout)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, "results.xlsx", cfg.Export.Path)
	assert.Equal(t, "pdftotext", cfg.Extract.Pdftotext)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("DB_URL", "postgres://u:p@localhost:5432/scans")
	t.Setenv("WORKERS", "9")
	t.Setenv("FETCH_TIMEOUT", "5s")

	cfg, err := LoadConfig(viper.New())
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://u:p@localhost:5432/scans", cfg.Store.DSN)
	assert.Equal(t, 9, cfg.Queue.Workers)
	assert.Equal(t, 5*time.Second, cfg.Fetch.Timeout)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resumescan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
queue:
  workers: 2
  process_timeout: 2m
export:
  path: out/scans.xlsx
vocabulary:
  file: vocab.yaml
`), 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := LoadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Queue.Workers)
	assert.Equal(t, 2*time.Minute, cfg.Queue.ProcessTimeout)
	assert.Equal(t, "out/scans.xlsx", cfg.Export.Path)
	assert.Equal(t, "vocab.yaml", cfg.Vocabulary.File)
}

func TestConfigValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := LoadConfig(viper.New())
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Store.Driver = "sqlite"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidInput)

	cfg = base()
	cfg.Store.Driver = "mongo"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Queue.Workers = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Fetch.RateLimit = -1
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Store.Driver = "postgres"
	cfg.Queue.Workers = -2
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "store.dsn")
	assert.Contains(t, err.Error(), "queue.workers")

	cfg = base()
	cfg.Store.Driver = "sqlite"
	cfg.Store.DSN = ":memory:"
	assert.NoError(t, cfg.Validate())
}
