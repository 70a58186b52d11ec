package model

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/ldsec/trendCNN/layers"
	"github.com/ldsec/trendCNN/optimizer"
	"github.com/sbinet/npyio"
	"go.dedis.ch/onet/v3/log"
)

const archiveFormat = "trendcnn/1"
const archiveConfig = "config.toml"

// Metadata identifies a trained model
type Metadata struct {
	RunID     string    `toml:"run_id"`
	CreatedAt time.Time `toml:"created_at"`
	Classes   []string  `toml:"classes"`
}

// NewMetadata returns metadata with a fresh run id
func NewMetadata(classes []string) Metadata {
	return Metadata{
		RunID:     uuid.NewString(),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Classes:   append([]string(nil), classes...),
	}
}

type compileConfig struct {
	Optimizer string   `toml:"optimizer"`
	LearnRate float64  `toml:"learn_rate"`
	Momentum  float64  `toml:"momentum,omitempty"`
	Loss      string   `toml:"loss"`
	Metrics   []string `toml:"metrics"`
}

type weightEntry struct {
	Layer string `toml:"layer"`
	Param string `toml:"param"`
	Shape []int  `toml:"shape"`
	File  string `toml:"file"`
}

type archive struct {
	Format   string          `toml:"format"`
	Name     string          `toml:"name"`
	Input    []int           `toml:"input_shape"`
	Metadata Metadata        `toml:"metadata"`
	Compile  *compileConfig  `toml:"compile,omitempty"`
	Layers   []layers.Config `toml:"layers"`
	Weights  []weightEntry   `toml:"weights"`
}

// Save writes the architecture, compile settings, metadata and weights to a
// zip archive. Optimizer state is not saved. The archive is written next to
// path and renamed into place, so a failed save keeps the previous file.
func (m *Sequential) Save(path string) error {
	if !m.built {
		return ErrNotBuilt
	}
	a := archive{Format: archiveFormat, Name: m.Name, Input: m.Input, Metadata: m.Metadata}
	if m.optimizer != nil {
		a.Compile = &compileConfig{Optimizer: m.optimizer.Name(), LearnRate: m.optimizer.LearningRate(), Loss: m.loss.Name(), Metrics: m.metrics}
		if sgd, ok := m.optimizer.(*optimizer.SGD); ok {
			a.Compile.Momentum = sgd.Momentum
		}
	}
	for _, l := range m.Layers {
		a.Layers = append(a.Layers, l.Config())
		for _, p := range l.Params() {
			a.Weights = append(a.Weights, weightEntry{
				Layer: l.Name(), Param: p.Name, Shape: p.Shape,
				File: fmt.Sprintf("weights/%s/%s.npy", l.Name(), p.Name),
			})
		}
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	err = m.writeArchive(f, a)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	log.Lvlf2("model %s saved to %s (%d weight tensors)", m.Metadata.RunID, path, len(a.Weights))
	return nil
}

func (m *Sequential) writeArchive(out io.Writer, a archive) error {
	zw := zip.NewWriter(out)
	w, err := zw.Create(archiveConfig)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(w).Encode(a); err != nil {
		return fmt.Errorf("encoding %s: %w", archiveConfig, err)
	}

	params := m.Params()
	for i, entry := range a.Weights {
		w, err := zw.Create(entry.File)
		if err != nil {
			return err
		}
		if err := npyio.Write(w, params[i].Value.RawMatrix().Data); err != nil {
			return fmt.Errorf("writing %s: %w", entry.File, err)
		}
	}
	return zw.Close()
}

// Load reads an archive written by Save and rebuilds the model
func Load(path string) (*Sequential, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}
	raw, err := readEntry(files, archiveConfig)
	if err != nil {
		return nil, err
	}
	var a archive
	if _, err := toml.Decode(string(raw), &a); err != nil {
		return nil, fmt.Errorf("%s: %w", archiveConfig, err)
	}
	if a.Format != archiveFormat {
		return nil, fmt.Errorf("%s: unsupported archive format %q", path, a.Format)
	}

	m := NewSequential(a.Name)
	m.Metadata = a.Metadata
	for _, c := range a.Layers {
		l, err := layers.FromConfig(c)
		if err != nil {
			return nil, err
		}
		m.Add(l)
	}
	if err := m.Build(a.Input, 0); err != nil {
		return nil, err
	}

	params := make(map[string]*layers.Param)
	for _, l := range m.Layers {
		for _, p := range l.Params() {
			params[l.Name()+"/"+p.Name] = p
		}
	}
	if len(params) != len(a.Weights) {
		return nil, fmt.Errorf("%s: %d weight tensors for %d parameters", path, len(a.Weights), len(params))
	}
	for _, entry := range a.Weights {
		p, ok := params[entry.Layer+"/"+entry.Param]
		if !ok {
			return nil, fmt.Errorf("%s: no parameter %s/%s", path, entry.Layer, entry.Param)
		}
		raw, err := readEntry(files, entry.File)
		if err != nil {
			return nil, err
		}
		var data []float64
		if err := npyio.Read(bytes.NewReader(raw), &data); err != nil {
			return nil, fmt.Errorf("%s: %w", entry.File, err)
		}
		if len(data) != p.Size() {
			return nil, fmt.Errorf("%s: %w: %d values, parameter has %d", entry.File, layers.ErrShape, len(data), p.Size())
		}
		copy(p.Value.RawMatrix().Data, data)
	}

	if a.Compile != nil {
		opt, err := optimizer.New(a.Compile.Optimizer, a.Compile.LearnRate, a.Compile.Momentum)
		if err != nil {
			return nil, err
		}
		if err := m.Compile(opt, a.Compile.Loss, a.Compile.Metrics...); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func readEntry(files map[string]*zip.File, name string) ([]byte, error) {
	f, ok := files[name]
	if !ok {
		return nil, fmt.Errorf("archive has no %s", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}
