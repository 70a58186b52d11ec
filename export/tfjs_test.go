package export

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ldsec/trendCNN/config"
	"github.com/ldsec/trendCNN/layers"
	"github.com/ldsec/trendCNN/model"
	"github.com/stretchr/testify/require"
)

func TestExportTFJS(t *testing.T) {
	m, err := model.NewTrendCNN(config.Default())
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "public", "models", "trend-cnn")
	require.NoError(t, ExportTFJS(m, dir))

	raw, err := os.ReadFile(filepath.Join(dir, ModelJSON))
	require.NoError(t, err)
	var manifest Manifest
	require.NoError(t, json.Unmarshal(raw, &manifest))
	require.Equal(t, "layers-model", manifest.Format)
	require.Len(t, manifest.ModelTopology.Config.Layers, 7)
	first := manifest.ModelTopology.Config.Layers[0]
	require.Equal(t, "Conv1D", first.ClassName)
	require.Equal(t, []interface{}{nil, 6., 8.}, first.Config["batch_input_shape"])

	require.Len(t, manifest.WeightsManifest, 1)
	weights := manifest.WeightsManifest[0].Weights
	require.Equal(t, "conv1d/kernel", weights[0].Name)
	require.Equal(t, []int{3, 8, 32}, weights[0].Shape)
	require.Equal(t, "batch_normalization/moving_variance", weights[5].Name)

	shard, err := os.ReadFile(filepath.Join(dir, WeightsShard))
	require.NoError(t, err)
	total, _ := m.CountParams()
	require.Len(t, shard, 4*total)

	kernel := m.Layers[0].Params()[0].Value.At(0, 0)
	require.Equal(t, float32(kernel), math.Float32frombits(binary.LittleEndian.Uint32(shard[:4])))
}

func TestExportUnbuilt(t *testing.T) {
	m := model.NewSequential("empty")
	m.Add(&layers.Dense{Units: 2})
	require.ErrorIs(t, ExportTFJS(m, t.TempDir()), model.ErrNotBuilt)
}
