package layers

import (
	"fmt"
	"math/rand"

	"github.com/ldsec/trendCNN/utils"
	"gonum.org/v1/gonum/mat"
)

// Conv1D is a 1D convolution along the time axis, stride 1.
// The kernel (KernelSize, in, Filters) is stored as a (KernelSize*in) x Filters
// matrix so that a forward pass is one product with the unrolled input windows.
type Conv1D struct {
	base
	Filters    int
	KernelSize int
	Padding    string // "same" or "valid"
	Activation string

	kernel *Param
	bias   *Param

	padLeft      int
	activation   func(float64) float64
	d_activation func(float64) float64

	last_patches []*mat.Dense // nsamples x (outSteps x KernelSize*in)
	u            []*mat.Dense // pre-activation
}

func (conv *Conv1D) Kind() string { return "Conv1D" }

func (conv *Conv1D) Build(in Shape, rng *rand.Rand) (Shape, error) {
	if len(in) != 2 {
		return nil, fmt.Errorf("%s: %w: expects (steps, channels), got %v", conv.name, ErrShape, in)
	}
	if conv.Filters <= 0 || conv.KernelSize <= 0 {
		return nil, fmt.Errorf("%s: filters and kernel size must be positive", conv.name)
	}
	if conv.Padding == "" {
		conv.Padding = "valid"
	}
	steps, nch := in[0], in[1]
	outSteps := steps
	switch conv.Padding {
	case "same":
		conv.padLeft = (conv.KernelSize - 1) / 2
	case "valid":
		conv.padLeft = 0
		outSteps = steps - conv.KernelSize + 1
	default:
		return nil, fmt.Errorf("%s: unknown padding %q", conv.name, conv.Padding)
	}
	if outSteps <= 0 {
		return nil, fmt.Errorf("%s: %w: kernel %d larger than %d steps", conv.name, ErrShape, conv.KernelSize, steps)
	}
	var err error
	if conv.activation, conv.d_activation, err = activation(conv.Activation); err != nil {
		return nil, fmt.Errorf("%s: %w", conv.name, err)
	}

	rows := conv.KernelSize * nch
	conv.kernel = newParam("kernel", []int{conv.KernelSize, nch, conv.Filters}, rows, conv.Filters,
		utils.GlorotUniform(rng, rows*conv.Filters, rows, conv.KernelSize*conv.Filters), true)
	conv.bias = newParam("bias", []int{conv.Filters}, 1, conv.Filters, nil, true)

	conv.in = in
	conv.out = Shape{outSteps, conv.Filters}
	conv.built = true
	return conv.out, nil
}

// patches unrolls the receptive fields of x: row t holds x[t-padLeft : t-padLeft+k], zero padded
func (conv *Conv1D) patches(x *mat.Dense) *mat.Dense {
	steps, nch := conv.in[0], conv.in[1]
	outSteps := conv.out[0]
	p := mat.NewDense(outSteps, conv.KernelSize*nch, nil)
	for t := 0; t < outSteps; t++ {
		row := p.RawRowView(t)
		for j := 0; j < conv.KernelSize; j++ {
			src := t + j - conv.padLeft
			if src < 0 || src >= steps {
				continue
			}
			copy(row[j*nch:(j+1)*nch], x.RawRowView(src))
		}
	}
	return p
}

// Forward computes a forward pass of the Conv1D layer
func (conv *Conv1D) Forward(input []*mat.Dense, training bool) []*mat.Dense {
	checkBatch(input, conv.in)
	conv.last_patches = make([]*mat.Dense, len(input))
	conv.u = make([]*mat.Dense, len(input))

	output := make([]*mat.Dense, len(input))
	for i := range input {
		conv.last_patches[i] = conv.patches(input[i])
		conv.u[i] = mat.NewDense(conv.out[0], conv.Filters, nil)
		conv.u[i].Mul(conv.last_patches[i], conv.kernel.Value)
		addRow(conv.u[i], conv.bias.Value)

		output[i] = mat.NewDense(conv.out[0], conv.Filters, nil)
		output[i].Apply(utils.ToApply(conv.activation), conv.u[i])
	}
	return output
}

// Backward computes the kernel and bias gradients and the error for the previous layer
func (conv *Conv1D) Backward(error []*mat.Dense) []*mat.Dense {
	steps, nch := conv.in[0], conv.in[1]
	conv.kernel.Grad.Zero()
	conv.bias.Grad.Zero()

	temp := mat.NewDense(conv.KernelSize*nch, conv.Filters, nil)
	dPatches := mat.NewDense(conv.out[0], conv.KernelSize*nch, nil)
	next_error := make([]*mat.Dense, len(error))
	for i := range error {
		delta := mat.NewDense(conv.out[0], conv.Filters, nil)
		delta.Apply(utils.ToApply(conv.d_activation), conv.u[i])
		delta.MulElem(delta, error[i])

		temp.Mul(conv.last_patches[i].T(), delta)
		conv.kernel.Grad.Add(conv.kernel.Grad, temp)
		addColSums(conv.bias.Grad, delta)

		// fold the patch gradients back onto the input steps
		dPatches.Mul(delta, conv.kernel.Value.T())
		next_error[i] = mat.NewDense(steps, nch, nil)
		for t := 0; t < conv.out[0]; t++ {
			row := dPatches.RawRowView(t)
			for j := 0; j < conv.KernelSize; j++ {
				dst := t + j - conv.padLeft
				if dst < 0 || dst >= steps {
					continue
				}
				e := next_error[i].RawRowView(dst)
				for c := 0; c < nch; c++ {
					e[c] += row[j*nch+c]
				}
			}
		}
	}
	return next_error
}

func (conv *Conv1D) Params() []*Param {
	return []*Param{conv.kernel, conv.bias}
}

func (conv *Conv1D) Config() Config {
	return Config{Kind: conv.Kind(), Name: conv.name, Filters: conv.Filters, KernelSize: conv.KernelSize,
		Padding: conv.Padding, Activation: conv.Activation}
}
