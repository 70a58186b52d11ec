package common

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/ldsec/trendCNN/utils"
	"github.com/montanaflynn/stats"
	"go.dedis.ch/onet/v3/log"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrEmptyDataset is returned when a dataset has no samples
	ErrEmptyDataset = errors.New("empty dataset")
	// ErrShape is returned when windows or labels do not have the expected layout
	ErrShape = errors.New("unexpected dataset shape")
)

// TrendDataset holds windows (WINDOW_SIZE x NFEATURES each) and their trend label
type TrendDataset struct {
	X []*mat.Dense
	Y []float64
}

func (dataset *TrendDataset) Len() int {
	return len(dataset.X)
}

// Validate checks the layout of every window and that labels are class indexes
func (dataset *TrendDataset) Validate(window, features, nclasses int) error {
	if len(dataset.X) == 0 {
		return ErrEmptyDataset
	}
	if len(dataset.X) != len(dataset.Y) {
		return fmt.Errorf("%w: %d windows but %d labels", ErrShape, len(dataset.X), len(dataset.Y))
	}
	for i, x := range dataset.X {
		r, c := x.Dims()
		if r != window || c != features {
			return fmt.Errorf("%w: window %d is %dx%d, expected %dx%d", ErrShape, i, r, c, window, features)
		}
	}
	for i, y := range dataset.Y {
		if y != math.Trunc(y) || y < 0 || y >= float64(nclasses) {
			return fmt.Errorf("%w: label %d is %v, expected a class in [0,%d)", ErrShape, i, y, nclasses)
		}
	}
	return nil
}

// Split keeps the first samples for training and returns the last floor(n*fraction)
// as validation set, before any shuffling. A zero sized validation set is empty.
func (dataset *TrendDataset) Split(fraction float64) (TrendDataset, TrendDataset, error) {
	if !(fraction >= 0 && fraction < 1) {
		return TrendDataset{}, TrendDataset{}, fmt.Errorf("validation split must be in [0,1), got %v", fraction)
	}
	n := dataset.Len()
	nvalid := int(float64(n) * fraction)
	ntrain := n - nvalid
	if ntrain == 0 {
		return TrendDataset{}, TrendDataset{}, fmt.Errorf("%w: validation split %v leaves no training samples", ErrEmptyDataset, fraction)
	}
	train := TrendDataset{X: dataset.X[:ntrain:ntrain], Y: dataset.Y[:ntrain:ntrain]}
	valid := TrendDataset{X: dataset.X[ntrain:], Y: dataset.Y[ntrain:]}
	return train, valid, nil
}

// Partition split dataset's row into n groups, return (trainData, testData)
func (dataset *TrendDataset) Partition(numberOfGroup, testGroup uint) (TrendDataset, TrendDataset, error) {
	if numberOfGroup == 0 {
		return TrendDataset{}, TrendDataset{}, errors.New("number of group is 0")
	}
	// no kfold:
	if numberOfGroup == 1 {
		return *dataset, *dataset, nil
	}
	if numberOfGroup <= testGroup {
		return TrendDataset{}, TrendDataset{}, errors.New("currentGroup is greater than number of group")
	}

	groupSize := uint(len(dataset.X)) / numberOfGroup
	if groupSize == 0 {
		return TrendDataset{}, TrendDataset{}, errors.New("numberOfGroup is greater than number of DataSet's row")
	}

	startTest, endTest := groupSize*testGroup, groupSize*(testGroup+1)

	testData := TrendDataset{
		X: dataset.X[startTest:endTest],
		Y: dataset.Y[startTest:endTest],
	}

	// copy so that the train set never aliases the test rows
	var trainData TrendDataset
	trainData.X = append(append([]*mat.Dense{}, dataset.X[:startTest]...), dataset.X[endTest:]...)
	trainData.Y = append(append([]float64{}, dataset.Y[:startTest]...), dataset.Y[endTest:]...)

	return trainData, testData, nil
}

// Shuffle shuffles the rows inplace
func (dataset *TrendDataset) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(dataset.X), func(i, j int) {
		dataset.X[i], dataset.X[j] = dataset.X[j], dataset.X[i]
		dataset.Y[i], dataset.Y[j] = dataset.Y[j], dataset.Y[i]
	})
}

// Subset returns the rows at the given indexes, sharing the window matrices
func (dataset *TrendDataset) Subset(idx []int) TrendDataset {
	sub := TrendDataset{X: make([]*mat.Dense, len(idx)), Y: make([]float64, len(idx))}
	for i, j := range idx {
		sub.X[i] = dataset.X[j]
		sub.Y[i] = dataset.Y[j]
	}
	return sub
}

// ClassCounts returns the number of samples of every class
func (dataset *TrendDataset) ClassCounts(nclasses int) []int {
	counts := make([]int, nclasses)
	for _, y := range dataset.Y {
		if k := int(y); k >= 0 && k < nclasses {
			counts[k]++
		}
	}
	return counts
}

// FeatureSummary holds descriptive statistics of one feature over all windows and steps
type FeatureSummary struct {
	Feature int
	Mean    float64
	Std     float64
	Min     float64
	Max     float64
}

// Describe computes per feature statistics over every step of every window
func (dataset *TrendDataset) Describe() ([]FeatureSummary, error) {
	if len(dataset.X) == 0 {
		return nil, ErrEmptyDataset
	}
	_, nfeatures := dataset.X[0].Dims()
	out := make([]FeatureSummary, nfeatures)
	for f := range out {
		var values stats.Float64Data
		for _, x := range dataset.X {
			values = append(values, mat.Col(nil, f, x)...)
		}
		s := FeatureSummary{Feature: f}
		var err error
		if s.Mean, err = stats.Mean(values); err != nil {
			return nil, err
		}
		if s.Std, err = stats.StandardDeviation(values); err != nil {
			return nil, err
		}
		if s.Min, err = stats.Min(values); err != nil {
			return nil, err
		}
		if s.Max, err = stats.Max(values); err != nil {
			return nil, err
		}
		out[f] = s
	}
	return out, nil
}

// LogSummary prints the class balance and the feature statistics at debug level 2
func (dataset *TrendDataset) LogSummary(name string) {
	counts := dataset.ClassCounts(NCLASSES)
	log.Lvlf1("%s: %d windows, classes %s=%d %s=%d %s=%d", name, dataset.Len(),
		ClassNames[0], counts[0], ClassNames[1], counts[1], ClassNames[2], counts[2])
	summary, err := dataset.Describe()
	if err != nil {
		return
	}
	for _, s := range summary {
		log.Lvlf2("  feature %d: mean=%.4f std=%.4f min=%.4f max=%.4f", s.Feature, s.Mean, s.Std, s.Min, s.Max)
	}
}

// FromArrays builds a dataset from an X array of shape (n, window, features)
// or (n, window*features) and a label array of shape (n) or (n, 1)
func FromArrays(x, y utils.Array, window, features int) (TrendDataset, error) {
	if len(x.Shape) == 0 || x.Shape[0] == 0 {
		return TrendDataset{}, ErrEmptyDataset
	}
	n := x.Shape[0]
	per := 1
	for _, d := range x.Shape[1:] {
		per *= d
	}
	if per != window*features || (len(x.Shape) == 3 && (x.Shape[1] != window || x.Shape[2] != features)) {
		return TrendDataset{}, fmt.Errorf("%w: X has shape %v, expected (n, %d, %d)", ErrShape, x.Shape, window, features)
	}
	if len(y.Shape) == 0 || y.Shape[0] != n || y.Size() != n {
		return TrendDataset{}, fmt.Errorf("%w: y has shape %v for %d windows", ErrShape, y.Shape, n)
	}

	dataset := TrendDataset{X: make([]*mat.Dense, n), Y: make([]float64, n)}
	for i := 0; i < n; i++ {
		data := make([]float64, per)
		copy(data, x.Data[i*per:(i+1)*per])
		dataset.X[i] = mat.NewDense(window, features, data)
	}
	copy(dataset.Y, y.Data)
	return dataset, nil
}

// ToArrays is the inverse of FromArrays, X is (n, window, features)
func (dataset *TrendDataset) ToArrays() (utils.Array, utils.Array) {
	if len(dataset.X) == 0 {
		return utils.Array{Shape: []int{0}}, utils.Array{Shape: []int{0}}
	}
	r, c := dataset.X[0].Dims()
	x := utils.Array{Shape: []int{len(dataset.X), r, c}, Data: make([]float64, 0, len(dataset.X)*r*c)}
	for _, w := range dataset.X {
		x.Data = append(x.Data, mat.DenseCopyOf(w).RawMatrix().Data...)
	}
	y := utils.Array{Shape: []int{len(dataset.Y)}, Data: append([]float64(nil), dataset.Y...)}
	return x, y
}
