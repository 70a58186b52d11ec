package utils

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// ********************************** SLICE MANIPULATION **********************************

// Random generate a random floating point number between a and b
func Random(rng *rand.Rand, a, b float64) float64 {
	return (b-a)*rng.Float64() + a
}

func Max(a []float64) float64 {
	max := a[0]
	for i := range a {
		if a[i] > max {
			max = a[i]
		}
	}
	return max
}

// Argmax returns the index of the largest value, the first one on ties
func Argmax(a []float64) int {
	best := 0
	for i := range a {
		if a[i] > a[best] {
			best = i
		}
	}
	return best
}

// Scale scale every element of a by k
func Scale(k float64, a []float64) []float64 {
	c := make([]float64, len(a))
	for i := range c {
		c[i] = k * a[i]
	}
	return c
}

// Fill returns slice of given length filled with value
func Fill(length int, value float64) []float64 {
	c := make([]float64, length)
	for i := range c {
		c[i] = value
	}
	return c
}

func Mean(a []float64) float64 {
	c := 0.
	for i := range a {
		c = c + a[i]
	}
	return c / float64(len(a))
}

// ********************************** WEIGHTS INITIALIZATION **********************************

// GlorotUniform draws from U(-limit, limit), limit = sqrt(6 / (fanIn + fanOut))
func GlorotUniform(rng *rand.Rand, length int, fanIn, fanOut int) []float64 {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	a := make([]float64, length)
	for i := range a {
		a[i] = Random(rng, -limit, limit)
	}
	return a
}

// ********************************** ACTIVATION FUNCTIONS **********************************

// Relu is the rectifier function: max(0,x)
func Relu(x float64) float64 {
	return math.Max(0, x)
}

// ReluD is the derivative of the Relu function, taken as 0 at x == 0
func ReluD(x float64) float64 {
	if x > 0 {
		return 1.0
	}
	return 0.0
}

// identity
func Id(x float64) float64 {
	return x
}

// One returns 1, the derivative of the identity
func One(x float64) float64 {
	return 1
}

// Softmax activation function, shifted by the max for numerical stability
func Softmax(x []float64) []float64 {
	out := make([]float64, len(x))
	var sum float64
	max := Max(x)
	for i, y := range x {
		out[i] = math.Exp(y - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// make function float -> float into function to apply to matrix (int, int, float -> float)
func ToApply(f func(float64) float64) func(i, j int, v float64) float64 {
	fPrime := func(i, j int, v float64) float64 {
		return f(v)
	}
	return fPrime
}

// StackRows stacks 1 x n row matrices into a single len(rows) x n matrix
func StackRows(rows []*mat.Dense) *mat.Dense {
	_, c := rows[0].Dims()
	out := mat.NewDense(len(rows), c, nil)
	for i, r := range rows {
		out.SetRow(i, r.RawRowView(0))
	}
	return out
}

// SplitRows splits a matrix into one 1 x n matrix per row
func SplitRows(m *mat.Dense) []*mat.Dense {
	r, c := m.Dims()
	out := make([]*mat.Dense, r)
	for i := range out {
		row := make([]float64, c)
		copy(row, m.RawRowView(i))
		out[i] = mat.NewDense(1, c, row)
	}
	return out
}
