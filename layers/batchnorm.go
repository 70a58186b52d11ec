package layers

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/ldsec/trendCNN/utils"
	"gonum.org/v1/gonum/mat"
)

// BatchNorm normalizes every channel (last axis) over the batch and the time steps.
// Training uses the batch statistics and updates the moving averages,
// inference uses the moving averages. A zero Momentum replaces the moving
// averages by the statistics of the last batch.
type BatchNorm struct {
	base
	Momentum float64
	Epsilon  float64

	gamma          *Param
	beta           *Param
	movingMean     *Param
	movingVariance *Param

	// cached by the last training forward pass
	xhat   []*mat.Dense
	invStd []float64
}

func (bn *BatchNorm) Kind() string { return "BatchNormalization" }

func (bn *BatchNorm) Build(in Shape, rng *rand.Rand) (Shape, error) {
	if !(bn.Momentum >= 0 && bn.Momentum < 1) {
		return nil, fmt.Errorf("%s: momentum must be in [0,1), got %v", bn.name, bn.Momentum)
	}
	if !(bn.Epsilon > 0) {
		return nil, fmt.Errorf("%s: epsilon must be positive, got %v", bn.name, bn.Epsilon)
	}
	nch := in.Cols()
	bn.gamma = newParam("gamma", []int{nch}, 1, nch, utils.Fill(nch, 1), true)
	bn.beta = newParam("beta", []int{nch}, 1, nch, nil, true)
	bn.movingMean = newParam("moving_mean", []int{nch}, 1, nch, nil, false)
	bn.movingVariance = newParam("moving_variance", []int{nch}, 1, nch, utils.Fill(nch, 1), false)

	bn.in = in
	bn.out = in
	bn.built = true
	return bn.out, nil
}

// moments returns the per channel mean and biased variance of the batch
func (bn *BatchNorm) moments(input []*mat.Dense) ([]float64, []float64) {
	nch := bn.in.Cols()
	mean := make([]float64, nch)
	variance := make([]float64, nch)
	count := 0.
	for _, x := range input {
		r, _ := x.Dims()
		for t := 0; t < r; t++ {
			for c, v := range x.RawRowView(t) {
				mean[c] += v
			}
		}
		count += float64(r)
	}
	for c := range mean {
		mean[c] /= count
	}
	for _, x := range input {
		r, _ := x.Dims()
		for t := 0; t < r; t++ {
			for c, v := range x.RawRowView(t) {
				d := v - mean[c]
				variance[c] += d * d
			}
		}
	}
	for c := range variance {
		variance[c] /= count
	}
	return mean, variance
}

// Forward pass of the BatchNorm layer
func (bn *BatchNorm) Forward(input []*mat.Dense, training bool) []*mat.Dense {
	checkBatch(input, bn.in)
	nch := bn.in.Cols()
	gamma := bn.gamma.Value.RawRowView(0)
	beta := bn.beta.Value.RawRowView(0)

	var mean, variance []float64
	if training {
		mean, variance = bn.moments(input)
		mm := bn.movingMean.Value.RawRowView(0)
		mv := bn.movingVariance.Value.RawRowView(0)
		for c := 0; c < nch; c++ {
			mm[c] = bn.Momentum*mm[c] + (1-bn.Momentum)*mean[c]
			mv[c] = bn.Momentum*mv[c] + (1-bn.Momentum)*variance[c]
		}
	} else {
		mean = bn.movingMean.Value.RawRowView(0)
		variance = bn.movingVariance.Value.RawRowView(0)
	}

	invStd := make([]float64, nch)
	for c := range invStd {
		invStd[c] = 1 / math.Sqrt(variance[c]+bn.Epsilon)
	}

	output := make([]*mat.Dense, len(input))
	xhat := make([]*mat.Dense, len(input))
	for i, x := range input {
		r, _ := x.Dims()
		xhat[i] = mat.NewDense(r, nch, nil)
		output[i] = mat.NewDense(r, nch, nil)
		for t := 0; t < r; t++ {
			src := x.RawRowView(t)
			h := xhat[i].RawRowView(t)
			o := output[i].RawRowView(t)
			for c := 0; c < nch; c++ {
				h[c] = (src[c] - mean[c]) * invStd[c]
				o[c] = gamma[c]*h[c] + beta[c]
			}
		}
	}
	bn.xhat = xhat
	bn.invStd = invStd
	return output
}

// Backward propagation through the batch statistics
func (bn *BatchNorm) Backward(error []*mat.Dense) []*mat.Dense {
	nch := bn.in.Cols()
	gamma := bn.gamma.Value.RawRowView(0)
	dGamma := bn.gamma.Grad.RawRowView(0)
	dBeta := bn.beta.Grad.RawRowView(0)
	for c := 0; c < nch; c++ {
		dGamma[c], dBeta[c] = 0, 0
	}

	// sums over batch and steps of dxhat and dxhat*xhat
	sumD := make([]float64, nch)
	sumDX := make([]float64, nch)
	count := 0.
	for i, e := range error {
		r, _ := e.Dims()
		for t := 0; t < r; t++ {
			g := e.RawRowView(t)
			h := bn.xhat[i].RawRowView(t)
			for c := 0; c < nch; c++ {
				dGamma[c] += g[c] * h[c]
				dBeta[c] += g[c]
				sumD[c] += g[c] * gamma[c]
				sumDX[c] += g[c] * gamma[c] * h[c]
			}
		}
		count += float64(r)
	}

	next_error := make([]*mat.Dense, len(error))
	for i, e := range error {
		r, _ := e.Dims()
		next_error[i] = mat.NewDense(r, nch, nil)
		for t := 0; t < r; t++ {
			g := e.RawRowView(t)
			h := bn.xhat[i].RawRowView(t)
			n := next_error[i].RawRowView(t)
			for c := 0; c < nch; c++ {
				n[c] = bn.invStd[c] / count * (count*g[c]*gamma[c] - sumD[c] - h[c]*sumDX[c])
			}
		}
	}
	return next_error
}

func (bn *BatchNorm) Params() []*Param {
	return []*Param{bn.gamma, bn.beta, bn.movingMean, bn.movingVariance}
}

func (bn *BatchNorm) Config() Config {
	return Config{Kind: bn.Kind(), Name: bn.name, Momentum: bn.Momentum, Epsilon: bn.Epsilon}
}
