// Package export writes trained models in the TensorFlow.js layers format so
// that the browser can run them.
package export

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/ldsec/trendCNN/layers"
	"github.com/ldsec/trendCNN/model"
	"go.dedis.ch/onet/v3/log"
)

const ModelJSON = "model.json"
const WeightsShard = "group1-shard1of1.bin"

type layerSpec struct {
	ClassName string                 `json:"class_name"`
	Config    map[string]interface{} `json:"config"`
}

type topology struct {
	ClassName string `json:"class_name"`
	Config    struct {
		Name   string      `json:"name"`
		Layers []layerSpec `json:"layers"`
	} `json:"config"`
	KerasVersion string `json:"keras_version"`
	Backend      string `json:"backend"`
}

type weightSpec struct {
	Name  string `json:"name"`
	Shape []int  `json:"shape"`
	Dtype string `json:"dtype"`
}

type weightGroup struct {
	Paths   []string     `json:"paths"`
	Weights []weightSpec `json:"weights"`
}

// Manifest is the content of model.json
type Manifest struct {
	Format          string                 `json:"format"`
	GeneratedBy     string                 `json:"generatedBy"`
	ConvertedBy     *string                `json:"convertedBy"`
	ModelTopology   topology               `json:"modelTopology"`
	WeightsManifest []weightGroup          `json:"weightsManifest"`
	UserDefined     map[string]interface{} `json:"userDefinedMetadata,omitempty"`
}

// ExportTFJS creates dir and writes model.json and one float32 weight shard
func ExportTFJS(m *model.Sequential, dir string) error {
	if m.OutputShape() == nil {
		return model.ErrNotBuilt
	}
	manifest := Manifest{
		Format:      "layers-model",
		GeneratedBy: "trendCNN",
		UserDefined: map[string]interface{}{
			"run_id":     m.Metadata.RunID,
			"created_at": m.Metadata.CreatedAt,
			"classes":    m.Metadata.Classes,
		},
	}
	manifest.ModelTopology.ClassName = "Sequential"
	manifest.ModelTopology.KerasVersion = "tfjs-layers"
	manifest.ModelTopology.Backend = "tensor_flow.js"
	manifest.ModelTopology.Config.Name = m.Name

	group := weightGroup{Paths: []string{WeightsShard}}
	var shard []byte
	for i, l := range m.Layers {
		cfg, err := layerConfig(l.Config())
		if err != nil {
			return err
		}
		entry := layerSpec{ClassName: l.Kind(), Config: cfg}
		if i == 0 {
			entry.Config["batch_input_shape"] = append([]interface{}{nil}, toAny(m.Input)...)
		}
		manifest.ModelTopology.Config.Layers = append(manifest.ModelTopology.Config.Layers, entry)

		for _, p := range l.Params() {
			group.Weights = append(group.Weights, weightSpec{Name: l.Name() + "/" + p.Name, Shape: p.Shape, Dtype: "float32"})
			for _, v := range p.Value.RawMatrix().Data {
				shard = binary.LittleEndian.AppendUint32(shard, math.Float32bits(float32(v)))
			}
		}
	}
	manifest.WeightsManifest = []weightGroup{group}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	js, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, ModelJSON), js, 0644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, WeightsShard), shard, 0644); err != nil {
		return err
	}
	log.Lvlf2("exported %d weight tensors (%d bytes) to %s", len(group.Weights), len(shard), dir)
	return nil
}

// layerConfig maps a layer description to the keras config keys
func layerConfig(c layers.Config) (map[string]interface{}, error) {
	cfg := map[string]interface{}{"name": c.Name, "trainable": true, "dtype": "float32"}
	switch c.Kind {
	case "Conv1D":
		cfg["filters"] = c.Filters
		cfg["kernel_size"] = []int{c.KernelSize}
		cfg["strides"] = []int{1}
		cfg["padding"] = c.Padding
		cfg["activation"] = c.Activation
		cfg["use_bias"] = true
	case "BatchNormalization":
		cfg["axis"] = -1
		cfg["momentum"] = c.Momentum
		cfg["epsilon"] = c.Epsilon
		cfg["center"] = true
		cfg["scale"] = true
	case "Dropout":
		cfg["rate"] = c.Rate
	case "Dense":
		cfg["units"] = c.Units
		cfg["activation"] = c.Activation
		cfg["use_bias"] = true
	case "GlobalAveragePooling1D":
		cfg["data_format"] = "channels_last"
	default:
		return nil, fmt.Errorf("no tfjs mapping for layer kind %q", c.Kind)
	}
	return cfg, nil
}

func toAny(s layers.Shape) []interface{} {
	out := make([]interface{}, len(s))
	for i, d := range s {
		out[i] = d
	}
	return out
}
