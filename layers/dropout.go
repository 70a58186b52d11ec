package layers

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Dropout zeroes a fraction Rate of the inputs during training and scales the
// kept ones by 1/(1-Rate). It is the identity at inference.
type Dropout struct {
	base
	Rate float64

	rng   *rand.Rand
	masks []*mat.Dense
}

func (d *Dropout) Kind() string { return "Dropout" }

func (d *Dropout) Build(in Shape, rng *rand.Rand) (Shape, error) {
	if !(d.Rate >= 0 && d.Rate < 1) {
		return nil, fmt.Errorf("%s: rate must be in [0,1), got %v", d.name, d.Rate)
	}
	d.rng = rng
	d.in = in
	d.out = in
	d.built = true
	return d.out, nil
}

func (d *Dropout) Forward(input []*mat.Dense, training bool) []*mat.Dense {
	checkBatch(input, d.in)
	if !training || d.Rate == 0 {
		d.masks = nil
		return input
	}
	scale := 1 / (1 - d.Rate)
	d.masks = make([]*mat.Dense, len(input))
	output := make([]*mat.Dense, len(input))
	for i, x := range input {
		r, c := x.Dims()
		d.masks[i] = mat.NewDense(r, c, nil)
		d.masks[i].Apply(func(_, _ int, _ float64) float64 {
			if d.rng.Float64() < d.Rate {
				return 0
			}
			return scale
		}, d.masks[i])
		output[i] = mat.NewDense(r, c, nil)
		output[i].MulElem(x, d.masks[i])
	}
	return output
}

func (d *Dropout) Backward(error []*mat.Dense) []*mat.Dense {
	if d.masks == nil {
		return error
	}
	next_error := make([]*mat.Dense, len(error))
	for i, e := range error {
		r, c := e.Dims()
		next_error[i] = mat.NewDense(r, c, nil)
		next_error[i].MulElem(e, d.masks[i])
	}
	return next_error
}

func (d *Dropout) Params() []*Param { return nil }

func (d *Dropout) Config() Config {
	return Config{Kind: d.Kind(), Name: d.name, Rate: d.Rate}
}
