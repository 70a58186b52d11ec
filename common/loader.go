package common

import (
	"fmt"

	"github.com/ldsec/trendCNN/utils"
	"gonum.org/v1/gonum/mat"
)

type Loader interface {
	Load() (TrendDataset, error)
}

// NpzLoader reads windows and labels from a NumPy .npz archive
type NpzLoader struct {
	Path     string
	XKey     string
	YKey     string
	Window   int
	Features int
}

// NewNpzLoader returns a loader for the "X" and "y" arrays of path
func NewNpzLoader(path string) NpzLoader {
	return NpzLoader{Path: path, XKey: "X", YKey: "y", Window: WINDOW_SIZE, Features: NFEATURES}
}

func (l NpzLoader) Load() (TrendDataset, error) {
	arrays, err := utils.LoadNpz(l.Path, l.XKey, l.YKey)
	if err != nil {
		return TrendDataset{}, err
	}
	dataset, err := FromArrays(arrays[l.XKey], arrays[l.YKey], l.Window, l.Features)
	if err != nil {
		return TrendDataset{}, fmt.Errorf("%s: %w", l.Path, err)
	}
	return dataset, nil
}

// LoadWindows reads only the windows, for unlabelled files
func (l NpzLoader) LoadWindows() ([]*mat.Dense, error) {
	arrays, err := utils.LoadNpz(l.Path, l.XKey)
	if err != nil {
		return nil, err
	}
	x := arrays[l.XKey]
	n := 0
	if len(x.Shape) > 0 {
		n = x.Shape[0]
	}
	unlabelled := utils.Array{Shape: []int{n}, Data: make([]float64, n)}
	dataset, err := FromArrays(x, unlabelled, l.Window, l.Features)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.Path, err)
	}
	return dataset.X, nil
}

// Save writes the dataset in the layout NpzLoader reads
func (l NpzLoader) Save(dataset TrendDataset) error {
	x, y := dataset.ToArrays()
	return utils.SaveNpz(l.Path, map[string]utils.Array{l.XKey: x, l.YKey: y})
}
