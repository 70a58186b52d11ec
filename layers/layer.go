package layers

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/ldsec/trendCNN/utils"
	"gonum.org/v1/gonum/mat"
)

// ErrShape is returned when a layer is built or fed with an incompatible shape
var ErrShape = errors.New("incompatible shape")

// Shape is the per-sample shape of a tensor, without the batch dimension.
// Sequences are {steps, channels}, flat vectors are {units}.
type Shape []int

func (s Shape) String() string {
	dims := []string{"None"}
	for _, d := range s {
		dims = append(dims, fmt.Sprint(d))
	}
	return "(" + strings.Join(dims, ", ") + ")"
}

// Rows and Cols give the matrix layout of one sample of this shape
func (s Shape) Rows() int {
	if len(s) == 1 {
		return 1
	}
	return s[0]
}

func (s Shape) Cols() int {
	return s[len(s)-1]
}

// Param is a weight tensor of a layer, stored as a matrix.
// Grad is nil for non-trainable parameters.
type Param struct {
	Name      string
	Shape     []int
	Value     *mat.Dense
	Grad      *mat.Dense
	Trainable bool
}

// Size is the number of scalars of the parameter
func (p *Param) Size() int {
	r, c := p.Value.Dims()
	return r * c
}

func newParam(name string, shape []int, r, c int, init []float64, trainable bool) *Param {
	p := &Param{Name: name, Shape: shape, Value: mat.NewDense(r, c, init), Trainable: trainable}
	if trainable {
		p.Grad = mat.NewDense(r, c, nil)
	}
	return p
}

// Config is the serializable description of a layer
type Config struct {
	Kind       string  `toml:"kind" json:"class_name"`
	Name       string  `toml:"name" json:"name"`
	Filters    int     `toml:"filters,omitempty" json:"filters,omitempty"`
	KernelSize int     `toml:"kernel_size,omitempty" json:"kernel_size,omitempty"`
	Padding    string  `toml:"padding,omitempty" json:"padding,omitempty"`
	Units      int     `toml:"units,omitempty" json:"units,omitempty"`
	Activation string  `toml:"activation,omitempty" json:"activation,omitempty"`
	Rate       float64 `toml:"rate,omitempty" json:"rate,omitempty"`
	Momentum   float64 `toml:"momentum,omitempty" json:"momentum,omitempty"`
	Epsilon    float64 `toml:"epsilon,omitempty" json:"epsilon,omitempty"`
}

// Layer is one stage of a sequential network. A batch is a slice of
// per-sample matrices laid out as Shape.Rows() x Shape.Cols().
type Layer interface {
	Name() string
	SetName(name string)
	Kind() string
	// Build allocates the parameters for the given input shape and returns the output shape
	Build(in Shape, rng *rand.Rand) (Shape, error)
	OutputShape() Shape
	Forward(input []*mat.Dense, training bool) []*mat.Dense
	// Backward takes the loss gradient w.r.t. the last output, stores the
	// parameter gradients and returns the gradient w.r.t. the last input
	Backward(grad []*mat.Dense) []*mat.Dense
	Params() []*Param
	Config() Config
}

// base holds the bookkeeping shared by all layers
type base struct {
	name  string
	in    Shape
	out   Shape
	built bool
}

func (b *base) Name() string        { return b.name }
func (b *base) SetName(name string) { b.name = name }
func (b *base) OutputShape() Shape  { return b.out }

// FromConfig instantiates an unbuilt layer from its description
func FromConfig(c Config) (Layer, error) {
	var l Layer
	switch c.Kind {
	case "Conv1D":
		l = &Conv1D{Filters: c.Filters, KernelSize: c.KernelSize, Padding: c.Padding, Activation: c.Activation}
	case "BatchNormalization":
		l = &BatchNorm{Momentum: c.Momentum, Epsilon: c.Epsilon}
	case "Dropout":
		l = &Dropout{Rate: c.Rate}
	case "GlobalAveragePooling1D":
		l = &GlobalAvgPool1D{}
	case "Dense":
		l = &Dense{Units: c.Units, Activation: c.Activation}
	default:
		return nil, fmt.Errorf("unknown layer kind %q", c.Kind)
	}
	l.SetName(c.Name)
	return l, nil
}

// activation returns an element-wise activation and its derivative
func activation(name string) (func(float64) float64, func(float64) float64, error) {
	switch name {
	case "relu":
		return utils.Relu, utils.ReluD, nil
	case "linear", "":
		return utils.Id, utils.One, nil
	}
	return nil, nil, fmt.Errorf("unknown activation %q", name)
}

// addRow adds the 1 x c row vector to every row of m
func addRow(m *mat.Dense, row *mat.Dense) {
	r, _ := m.Dims()
	b := row.RawRowView(0)
	for i := 0; i < r; i++ {
		v := m.RawRowView(i)
		for j := range v {
			v[j] += b[j]
		}
	}
}

// addColSums adds the column sums of m to the 1 x c row vector dst
func addColSums(dst *mat.Dense, m *mat.Dense) {
	r, _ := m.Dims()
	d := dst.RawRowView(0)
	for i := 0; i < r; i++ {
		for j, v := range m.RawRowView(i) {
			d[j] += v
		}
	}
}

func checkBatch(input []*mat.Dense, s Shape) {
	for _, x := range input {
		r, c := x.Dims()
		if r != s.Rows() || c != s.Cols() {
			panic(fmt.Errorf("%w: sample is %dx%d, layer expects %v", ErrShape, r, c, s))
		}
	}
}
