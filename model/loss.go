package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const probEpsilon = 1e-7

// Loss scores a batch of predictions against integer labels and returns the
// gradient w.r.t. the predictions
type Loss interface {
	Name() string
	Compute(pred []*mat.Dense, y []float64) (float64, []*mat.Dense)
}

// NewLoss returns the loss registered under name
func NewLoss(name string) (Loss, error) {
	switch name {
	case "sparse_categorical_crossentropy":
		return SparseCategoricalCrossentropy{}, nil
	}
	return nil, fmt.Errorf("unknown loss %q", name)
}

// SparseCategoricalCrossentropy is the mean negative log probability of the
// true class, probabilities are clipped to [1e-7, 1-1e-7]
type SparseCategoricalCrossentropy struct{}

func (SparseCategoricalCrossentropy) Name() string { return "sparse_categorical_crossentropy" }

func (SparseCategoricalCrossentropy) Compute(pred []*mat.Dense, y []float64) (float64, []*mat.Dense) {
	n := float64(len(pred))
	loss := 0.
	grad := make([]*mat.Dense, len(pred))
	for i, p := range pred {
		_, c := p.Dims()
		label := int(y[i])
		prob := math.Min(math.Max(p.At(0, label), probEpsilon), 1-probEpsilon)
		loss -= math.Log(prob)

		grad[i] = mat.NewDense(1, c, nil)
		grad[i].Set(0, label, -1/(n*prob))
	}
	return loss / n, grad
}

// correct counts the predictions whose argmax is the label
func correct(pred []*mat.Dense, y []float64) int {
	count := 0
	for i, p := range pred {
		best, bestProb := 0, math.Inf(-1)
		for j, v := range p.RawRowView(0) {
			if v > bestProb {
				best, bestProb = j, v
			}
		}
		if best == int(y[i]) {
			count++
		}
	}
	return count
}
