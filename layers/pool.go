package layers

import (
	"fmt"
	"math/rand"

	"github.com/ldsec/trendCNN/utils"
	"gonum.org/v1/gonum/mat"
)

// GlobalAvgPool1D averages every channel over the time steps
type GlobalAvgPool1D struct {
	base
	nsteps    int
	nchannels int
}

func (pool *GlobalAvgPool1D) Kind() string { return "GlobalAveragePooling1D" }

func (pool *GlobalAvgPool1D) Build(in Shape, rng *rand.Rand) (Shape, error) {
	if len(in) != 2 {
		return nil, fmt.Errorf("%s: %w: expects (steps, channels), got %v", pool.name, ErrShape, in)
	}
	pool.nsteps, pool.nchannels = in[0], in[1]
	pool.in = in
	pool.out = Shape{pool.nchannels}
	pool.built = true
	return pool.out, nil
}

// Forward pass of the pooling layer, every sample becomes a 1 x nchannels row
func (pool *GlobalAvgPool1D) Forward(input []*mat.Dense, training bool) []*mat.Dense {
	checkBatch(input, pool.in)
	output := make([]*mat.Dense, len(input))
	for i := range input {
		row := make([]float64, pool.nchannels)
		for j := 0; j < pool.nchannels; j++ {
			row[j] = utils.Mean(mat.Col(nil, j, input[i]))
		}
		output[i] = mat.NewDense(1, pool.nchannels, row)
	}
	return output
}

// Backward spreads the error evenly over the steps, the pooling layer has no weights
func (pool *GlobalAvgPool1D) Backward(error []*mat.Dense) []*mat.Dense {
	next_error := make([]*mat.Dense, len(error))
	for i := range error {
		errRow := utils.Scale(1/float64(pool.nsteps), error[i].RawRowView(0))
		next_error[i] = mat.NewDense(pool.nsteps, pool.nchannels, nil)
		for j := 0; j < pool.nsteps; j++ {
			next_error[i].SetRow(j, errRow)
		}
	}
	return next_error
}

func (pool *GlobalAvgPool1D) Params() []*Param { return nil }

func (pool *GlobalAvgPool1D) Config() Config {
	return Config{Kind: pool.Kind(), Name: pool.name}
}
