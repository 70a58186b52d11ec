package common

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Synthetic generates n labelled windows whose features drift with a slope
// set by the class: flat for Stable, down for Declining, up for Improving.
// Every feature gets its own offset and noise.
func Synthetic(n, window, features int, noise float64, rng *rand.Rand) TrendDataset {
	dataset := TrendDataset{X: make([]*mat.Dense, n), Y: make([]float64, n)}
	for i := 0; i < n; i++ {
		label := i % NCLASSES
		slope := 0.
		switch label {
		case Declining:
			slope = -1
		case Improving:
			slope = 1
		}
		x := mat.NewDense(window, features, nil)
		for f := 0; f < features; f++ {
			offset := rng.NormFloat64()
			gain := 0.5 + rng.Float64()
			for t := 0; t < window; t++ {
				x.Set(t, f, offset+slope*gain*float64(t)/float64(window)+noise*rng.NormFloat64())
			}
		}
		dataset.X[i] = x
		dataset.Y[i] = float64(label)
	}
	dataset.Shuffle(rng)
	return dataset
}
