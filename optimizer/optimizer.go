// Package optimizer holds the weight update rules applied after every batch.
package optimizer

import (
	"fmt"
	"math"
	"strings"

	"github.com/ldsec/trendCNN/layers"
	"gonum.org/v1/gonum/mat"
)

// Optimizer updates trainable parameters in place from their gradients
type Optimizer interface {
	Name() string
	LearningRate() float64
	Update(params []*layers.Param)
}

// New returns the optimizer registered under name ("adam" or "sgd")
func New(name string, learnRate, momentum float64) (Optimizer, error) {
	if !(learnRate > 0) {
		return nil, fmt.Errorf("learning rate must be positive, got %v", learnRate)
	}
	switch strings.ToLower(name) {
	case "adam":
		return NewAdam(learnRate), nil
	case "sgd":
		if !(momentum >= 0 && momentum < 1) {
			return nil, fmt.Errorf("momentum must be in [0,1), got %v", momentum)
		}
		return &SGD{LearnRate: learnRate, Momentum: momentum}, nil
	}
	return nil, fmt.Errorf("unknown optimizer %q", name)
}

// Adam with bias correction folded into the step size
type Adam struct {
	LearnRate float64
	Beta1     float64
	Beta2     float64
	Epsilon   float64

	iterations int
	m, v       map[*layers.Param]*mat.Dense
}

// NewAdam returns Adam with the usual defaults (0.9, 0.999, 1e-7)
func NewAdam(learnRate float64) *Adam {
	return &Adam{LearnRate: learnRate, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-7}
}

func (a *Adam) Name() string          { return "adam" }
func (a *Adam) LearningRate() float64 { return a.LearnRate }
func (a *Adam) Iterations() int       { return a.iterations }

func (a *Adam) Update(params []*layers.Param) {
	if a.m == nil {
		a.m = make(map[*layers.Param]*mat.Dense)
		a.v = make(map[*layers.Param]*mat.Dense)
	}
	a.iterations++
	t := float64(a.iterations)
	lr := a.LearnRate * math.Sqrt(1-math.Pow(a.Beta2, t)) / (1 - math.Pow(a.Beta1, t))

	for _, p := range params {
		if !p.Trainable {
			continue
		}
		r, c := p.Value.Dims()
		m, ok := a.m[p]
		if !ok {
			m = mat.NewDense(r, c, nil)
			a.m[p] = m
			a.v[p] = mat.NewDense(r, c, nil)
		}
		v := a.v[p]
		for i := 0; i < r; i++ {
			w := p.Value.RawRowView(i)
			g := p.Grad.RawRowView(i)
			mi := m.RawRowView(i)
			vi := v.RawRowView(i)
			for j := range w {
				mi[j] = a.Beta1*mi[j] + (1-a.Beta1)*g[j]
				vi[j] = a.Beta2*vi[j] + (1-a.Beta2)*g[j]*g[j]
				w[j] -= lr * mi[j] / (math.Sqrt(vi[j]) + a.Epsilon)
			}
		}
	}
}

// SGD is gradient descent with optional momentum: vt = momentum*vt + lr*g ; w -= vt
type SGD struct {
	LearnRate float64
	Momentum  float64

	vt map[*layers.Param]*mat.Dense
}

func (s *SGD) Name() string          { return "sgd" }
func (s *SGD) LearningRate() float64 { return s.LearnRate }

func (s *SGD) Update(params []*layers.Param) {
	if s.vt == nil {
		s.vt = make(map[*layers.Param]*mat.Dense)
	}
	for _, p := range params {
		if !p.Trainable {
			continue
		}
		scaledDW := mat.NewDense(p.Grad.RawMatrix().Rows, p.Grad.RawMatrix().Cols, nil)
		scaledDW.Scale(s.LearnRate, p.Grad)
		if s.Momentum > 0 {
			vt, ok := s.vt[p]
			if !ok {
				s.vt[p] = scaledDW
				vt = scaledDW
			} else {
				vt.Scale(s.Momentum, vt)
				vt.Add(vt, scaledDW)
			}
			p.Value.Sub(p.Value, vt)
		} else {
			p.Value.Sub(p.Value, scaledDW)
		}
	}
}
