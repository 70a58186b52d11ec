package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 20, cfg.Train.Epochs)
	require.Equal(t, 32, cfg.Train.BatchSize)
	require.Equal(t, 0.2, cfg.Train.ValidationSplit)
	require.Equal(t, "adam", cfg.Train.Optimizer)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.toml")
	content := `
debug = 2

[data]
path = "windows.npz"

[train]
epochs = 5
optimizer = "sgd"
learn_rate = 0.01

[storage]
backend = "local"
root = "/tmp/models"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, cfg.Debug)
	require.Equal(t, "windows.npz", cfg.Data.Path)
	require.Equal(t, 5, cfg.Train.Epochs)
	require.Equal(t, "sgd", cfg.Train.Optimizer)
	require.Equal(t, 0.01, cfg.Train.LearnRate)
	// untouched keys keep their default
	require.Equal(t, 32, cfg.Train.BatchSize)
	require.Equal(t, 6, cfg.Data.WindowSize)
	require.Equal(t, "local", cfg.Storage.Backend)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[train]\nepochs = 0\n"), 0644))
	_, err = Load(path)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("[train\n"), 0644))
	_, err = Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"split":       func(c *Config) { c.Train.ValidationSplit = 1 },
		"dropout":     func(c *Config) { c.Model.Dropout = 1 },
		"batch":       func(c *Config) { c.Train.BatchSize = 0 },
		"lr":          func(c *Config) { c.Train.LearnRate = 0 },
		"lr-nan":      func(c *Config) { c.Train.LearnRate = math.NaN() },
		"split-nan":   func(c *Config) { c.Train.ValidationSplit = math.NaN() },
		"dropout-nan": func(c *Config) { c.Model.Dropout = math.NaN() },
		"classes":     func(c *Config) { c.Model.Classes = 1 },
		"backend":     func(c *Config) { c.Storage.Backend = "ftp" },
		"minio":       func(c *Config) { c.Storage.Backend = "minio" },
	} {
		cfg := Default()
		mutate(&cfg)
		require.Error(t, cfg.Validate(), name)
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.toml")
	cfg := Default()
	cfg.Train.Epochs = 3
	cfg.Storage.Backend = "local"
	require.NoError(t, cfg.Save(path))

	back, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, back)
}
