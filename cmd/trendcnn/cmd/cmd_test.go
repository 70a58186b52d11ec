package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ldsec/trendCNN/config"
	"github.com/ldsec/trendCNN/export"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestApplyOverrides(t *testing.T) {
	v := viper.New()
	v.Set("epochs", 3)
	v.Set("learn-rate", 0.05)
	v.Set("storage", "local")
	v.Set("shuffle", false)

	cfg := config.Default()
	applyOverrides(v, &cfg)
	require.Equal(t, 3, cfg.Train.Epochs)
	require.Equal(t, 0.05, cfg.Train.LearnRate)
	require.Equal(t, "local", cfg.Storage.Backend)
	require.False(t, cfg.Train.Shuffle)
	require.Equal(t, 32, cfg.Train.BatchSize)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trend.toml")
	require.NoError(t, os.WriteFile(path, []byte("[train]\nepochs = 7\nbatch_size = 8\n"), 0644))

	v := viper.New()
	v.Set("config", path)
	v.Set("batch-size", 16)
	cfg, err := loadConfig(v)
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Train.Epochs)
	require.Equal(t, 16, cfg.Train.BatchSize)

	v.Set("validation-split", 1.5)
	_, err = loadConfig(v)
	require.Error(t, err)
}

func TestTrainEvaluatePredict(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Debug = 0
	cfg.Data.Path = filepath.Join(dir, "training_data.npz")
	cfg.Output.ModelFile = filepath.Join(dir, "trend_model.cnn")
	cfg.Output.ExportDir = filepath.Join(dir, "public", "models", "trend-cnn")
	cfg.Output.PlotFile = filepath.Join(dir, "history.png")
	cfg.Train.Epochs = 2
	cfg.Train.Verbose = false
	cfg.Storage.Backend = "local"
	cfg.Storage.Root = filepath.Join(dir, "published")

	require.NoError(t, runGenerate(cfg, 90, 0.1))

	var out bytes.Buffer
	history, err := runTrain(context.Background(), cfg, &out)
	require.NoError(t, err)
	require.Equal(t, 2, history.Len())
	require.Contains(t, out.String(), "Total params: 2803")
	require.FileExists(t, cfg.Output.ModelFile)
	require.FileExists(t, cfg.Output.PlotFile)
	require.FileExists(t, filepath.Join(cfg.Output.ExportDir, export.ModelJSON))
	require.FileExists(t, filepath.Join(cfg.Storage.Root, cfg.Storage.Prefix, export.WeightsShard))

	out.Reset()
	require.NoError(t, runEvaluate(cfg, &out))
	require.Contains(t, out.String(), "accuracy:")
	require.Contains(t, out.String(), "Improving")

	out.Reset()
	require.NoError(t, runPredict(cfg, &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 90)

	cfg.Data.Path = filepath.Join(dir, "missing.npz")
	_, err = runTrain(context.Background(), cfg, &out)
	require.Error(t, err)
}

func TestCrossValidate(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Debug = 0
	cfg.Data.Path = filepath.Join(dir, "training_data.npz")
	cfg.Train.Epochs = 2
	cfg.Train.Verbose = false
	require.NoError(t, runGenerate(cfg, 90, 0.1))

	var out bytes.Buffer
	require.NoError(t, runCrossValidate(context.Background(), cfg, 3, &out))
	require.Contains(t, out.String(), "fold 1/3: train 60, test 30")
	require.Contains(t, out.String(), "fold 3/3: train 60, test 30")
	require.Contains(t, out.String(), "cross-validation accuracy:")

	require.Error(t, runCrossValidate(context.Background(), cfg, 1, &out))
	require.Error(t, runCrossValidate(context.Background(), cfg, 200, &out))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, runCrossValidate(ctx, cfg, 3, &out), context.Canceled)
}

func TestGenerateRejectsEmpty(t *testing.T) {
	require.Error(t, runGenerate(config.Default(), 0, 0.1))
}
