package layers

import (
	"fmt"
	"math/rand"

	"github.com/ldsec/trendCNN/utils"
	"gonum.org/v1/gonum/mat"
)

// Dense is a fully connected layer on flat inputs.
// Activation is "relu", "linear" or "softmax"; softmax is applied row-wise.
type Dense struct {
	base
	Units      int
	Activation string

	weights *Param // nin x Units
	bias    *Param // 1 x Units

	last_input *mat.Dense // nsamples x nin
	u          *mat.Dense // nsamples x Units
	output     *mat.Dense

	activation   func(float64) float64
	d_activation func(float64) float64
}

func (dense *Dense) Kind() string { return "Dense" }

func (dense *Dense) Build(in Shape, rng *rand.Rand) (Shape, error) {
	if len(in) != 1 {
		return nil, fmt.Errorf("%s: %w: expects flat input, got %v", dense.name, ErrShape, in)
	}
	if dense.Units <= 0 {
		return nil, fmt.Errorf("%s: units must be positive", dense.name)
	}
	if dense.Activation != "softmax" {
		var err error
		if dense.activation, dense.d_activation, err = activation(dense.Activation); err != nil {
			return nil, fmt.Errorf("%s: %w", dense.name, err)
		}
	}
	nin := in[0]
	dense.weights = newParam("kernel", []int{nin, dense.Units}, nin, dense.Units,
		utils.GlorotUniform(rng, nin*dense.Units, nin, dense.Units), true)
	dense.bias = newParam("bias", []int{dense.Units}, 1, dense.Units, nil, true)

	dense.in = in
	dense.out = Shape{dense.Units}
	dense.built = true
	return dense.out, nil
}

// Forward pass of the Dense layer
func (dense *Dense) Forward(input []*mat.Dense, training bool) []*mat.Dense {
	checkBatch(input, dense.in)
	dense.last_input = utils.StackRows(input)
	nsamples, _ := dense.last_input.Dims()

	dense.u = mat.NewDense(nsamples, dense.Units, nil)
	dense.u.Mul(dense.last_input, dense.weights.Value)
	addRow(dense.u, dense.bias.Value)

	dense.output = mat.NewDense(nsamples, dense.Units, nil)
	if dense.Activation == "softmax" {
		for r := 0; r < nsamples; r++ {
			dense.output.SetRow(r, utils.Softmax(dense.u.RawRowView(r)))
		}
	} else {
		dense.output.Apply(utils.ToApply(dense.activation), dense.u)
	}
	return utils.SplitRows(dense.output)
}

// Backward performs backpropagation of the Dense layer given the loss/error,
// returns the next error
func (dense *Dense) Backward(error []*mat.Dense) []*mat.Dense {
	grad := utils.StackRows(error)
	nsamples, _ := grad.Dims()

	delta := mat.NewDense(nsamples, dense.Units, nil)
	if dense.Activation == "softmax" {
		// softmax jacobian: dz_j = p_j * (g_j - sum_k g_k p_k)
		for r := 0; r < nsamples; r++ {
			p := dense.output.RawRowView(r)
			g := grad.RawRowView(r)
			dot := 0.
			for k := range p {
				dot += g[k] * p[k]
			}
			d := delta.RawRowView(r)
			for j := range p {
				d[j] = p[j] * (g[j] - dot)
			}
		}
	} else {
		delta.Apply(utils.ToApply(dense.d_activation), dense.u)
		delta.MulElem(delta, grad)
	}

	dense.weights.Grad.Mul(dense.last_input.T(), delta)
	dense.bias.Grad.Zero()
	addColSums(dense.bias.Grad, delta)

	_, nin := dense.last_input.Dims()
	next_error := mat.NewDense(nsamples, nin, nil)
	next_error.Mul(delta, dense.weights.Value.T())
	return utils.SplitRows(next_error)
}

func (dense *Dense) Params() []*Param {
	return []*Param{dense.weights, dense.bias}
}

func (dense *Dense) Config() Config {
	return Config{Kind: dense.Kind(), Name: dense.name, Units: dense.Units, Activation: dense.Activation}
}
