package layers

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const eps = 1e-6

func randBatch(rng *rand.Rand, n int, s Shape) []*mat.Dense {
	batch := make([]*mat.Dense, n)
	for i := range batch {
		data := make([]float64, s.Rows()*s.Cols())
		for j := range data {
			data[j] = rng.NormFloat64()
		}
		batch[i] = mat.NewDense(s.Rows(), s.Cols(), data)
	}
	return batch
}

// weightedSum is the scalar loss sum(out .* r) used for the gradient checks
func weightedSum(out, r []*mat.Dense) float64 {
	s := 0.
	for i := range out {
		s += mat.Sum(mulElem(out[i], r[i]))
	}
	return s
}

func mulElem(a, b *mat.Dense) *mat.Dense {
	var m mat.Dense
	m.MulElem(a, b)
	return &m
}

func cloneBatch(b []*mat.Dense) []*mat.Dense {
	out := make([]*mat.Dense, len(b))
	for i := range b {
		out[i] = mat.DenseCopyOf(b[i])
	}
	return out
}

// checkGradients compares the analytic gradients of l against central differences
func checkGradients(t *testing.T, l Layer, in Shape, n int) {
	rng := rand.New(rand.NewSource(42))
	out, err := l.Build(in, rng)
	require.NoError(t, err)

	x := randBatch(rng, n, in)
	r := randBatch(rng, n, out)

	l.Forward(x, true)
	dx := l.Backward(cloneBatch(r))

	loss := func() float64 { return weightedSum(l.Forward(x, true), r) }

	for i := range x {
		rows, cols := x[i].Dims()
		for a := 0; a < rows; a++ {
			for b := 0; b < cols; b++ {
				v := x[i].At(a, b)
				x[i].Set(a, b, v+eps)
				plus := loss()
				x[i].Set(a, b, v-eps)
				minus := loss()
				x[i].Set(a, b, v)
				require.InDelta(t, (plus-minus)/(2*eps), dx[i].At(a, b), 1e-5, "input grad %d (%d,%d)", i, a, b)
			}
		}
	}

	for _, p := range l.Params() {
		if !p.Trainable {
			continue
		}
		rows, cols := p.Value.Dims()
		for a := 0; a < rows; a++ {
			for b := 0; b < cols; b++ {
				v := p.Value.At(a, b)
				p.Value.Set(a, b, v+eps)
				plus := loss()
				p.Value.Set(a, b, v-eps)
				minus := loss()
				p.Value.Set(a, b, v)
				require.InDelta(t, (plus-minus)/(2*eps), p.Grad.At(a, b), 1e-5, "%s grad (%d,%d)", p.Name, a, b)
			}
		}
	}
}

func TestConv1DGradients(t *testing.T) {
	checkGradients(t, &Conv1D{Filters: 4, KernelSize: 3, Padding: "same", Activation: "relu"}, Shape{6, 3}, 2)
	checkGradients(t, &Conv1D{Filters: 2, KernelSize: 3, Padding: "valid"}, Shape{5, 2}, 2)
}

func TestConv1DSamePadding(t *testing.T) {
	conv := &Conv1D{Filters: 1, KernelSize: 3, Padding: "same"}
	out, err := conv.Build(Shape{4, 1}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Equal(t, Shape{4, 1}, out)

	// moving sum filter
	conv.kernel.Value = mat.NewDense(3, 1, []float64{1, 1, 1})
	y := conv.Forward([]*mat.Dense{mat.NewDense(4, 1, []float64{1, 2, 3, 4})}, false)
	require.Equal(t, []float64{3, 6, 9, 7}, mat.Col(nil, 0, y[0]))
}

func TestConv1DBuildErrors(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	_, err := (&Conv1D{Filters: 1, KernelSize: 5, Padding: "valid"}).Build(Shape{3, 1}, rng)
	require.ErrorIs(t, err, ErrShape)
	_, err = (&Conv1D{Filters: 1, KernelSize: 3, Padding: "causal"}).Build(Shape{3, 1}, rng)
	require.Error(t, err)
	_, err = (&Conv1D{Filters: 1, KernelSize: 3}).Build(Shape{3}, rng)
	require.ErrorIs(t, err, ErrShape)
}

func TestDenseGradients(t *testing.T) {
	checkGradients(t, &Dense{Units: 4, Activation: "relu"}, Shape{5}, 3)
	checkGradients(t, &Dense{Units: 3, Activation: "softmax"}, Shape{4}, 3)
}

func TestDenseSoftmaxRows(t *testing.T) {
	dense := &Dense{Units: 3, Activation: "softmax"}
	rng := rand.New(rand.NewSource(3))
	_, err := dense.Build(Shape{4}, rng)
	require.NoError(t, err)
	for _, row := range dense.Forward(randBatch(rng, 5, Shape{4}), false) {
		require.InDelta(t, 1, mat.Sum(row), 1e-12)
	}
}

func TestPoolGradients(t *testing.T) {
	checkGradients(t, &GlobalAvgPool1D{}, Shape{6, 4}, 2)
}

func TestPoolForward(t *testing.T) {
	pool := &GlobalAvgPool1D{}
	out, err := pool.Build(Shape{2, 2}, nil)
	require.NoError(t, err)
	require.Equal(t, Shape{2}, out)
	y := pool.Forward([]*mat.Dense{mat.NewDense(2, 2, []float64{1, 2, 3, 6})}, false)
	require.Equal(t, []float64{2, 4}, y[0].RawRowView(0))
}

func TestBatchNormGradients(t *testing.T) {
	checkGradients(t, &BatchNorm{Momentum: 0.99, Epsilon: 1e-3}, Shape{6, 3}, 4)
}

func TestBatchNormStatistics(t *testing.T) {
	bn := &BatchNorm{Momentum: 0.5, Epsilon: 1e-3}
	rng := rand.New(rand.NewSource(5))
	_, err := bn.Build(Shape{6, 2}, rng)
	require.NoError(t, err)

	x := randBatch(rng, 8, Shape{6, 2})
	y := bn.Forward(x, true)

	// training output is normalized per channel
	for c := 0; c < 2; c++ {
		var vals []float64
		for _, s := range y {
			vals = append(vals, mat.Col(nil, c, s)...)
		}
		mean, sq := 0., 0.
		for _, v := range vals {
			mean += v
		}
		mean /= float64(len(vals))
		for _, v := range vals {
			sq += (v - mean) * (v - mean)
		}
		require.InDelta(t, 0, mean, 1e-9)
		require.InDelta(t, 1, sq/float64(len(vals)), 1e-2)
	}

	// moving statistics moved half way from their initial values
	mean, variance := bn.moments(x)
	require.InDelta(t, 0.5*mean[0], bn.movingMean.Value.At(0, 0), 1e-12)
	require.InDelta(t, 0.5+0.5*variance[1], bn.movingVariance.Value.At(0, 1), 1e-12)

	// inference uses the moving statistics
	yInf := bn.Forward(x, false)
	expected := (x[0].At(0, 0) - bn.movingMean.Value.At(0, 0)) / math.Sqrt(bn.movingVariance.Value.At(0, 0)+bn.Epsilon)
	require.InDelta(t, expected, yInf[0].At(0, 0), 1e-12)
}

func TestDropout(t *testing.T) {
	d := &Dropout{Rate: 0.5}
	rng := rand.New(rand.NewSource(7))
	_, err := d.Build(Shape{6, 32}, rng)
	require.NoError(t, err)

	x := []*mat.Dense{mat.NewDense(6, 32, nil)}
	x[0].Apply(func(_, _ int, _ float64) float64 { return 1 }, x[0])

	// inference is the identity
	require.True(t, mat.Equal(x[0], d.Forward(x, false)[0]))

	y := d.Forward(x, true)
	zeros := 0
	r, c := y[0].Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := y[0].At(i, j)
			require.True(t, v == 0 || v == 2)
			if v == 0 {
				zeros++
			}
		}
	}
	require.True(t, zeros > 48 && zeros < 144, "dropped %d of 192", zeros)

	// the gradient flows only through kept units
	g := d.Backward(x)
	require.True(t, mat.Equal(y[0], g[0]))

	_, err = (&Dropout{Rate: 1}).Build(Shape{1}, rng)
	require.Error(t, err)
	_, err = (&Dropout{Rate: math.NaN()}).Build(Shape{1}, rng)
	require.Error(t, err)
}

func TestBatchNormZeroMomentum(t *testing.T) {
	bn := &BatchNorm{Momentum: 0, Epsilon: 1e-3}
	bn.SetName("bn")
	back, err := FromConfig(bn.Config())
	require.NoError(t, err)
	require.Equal(t, 0., back.(*BatchNorm).Momentum)

	rng := rand.New(rand.NewSource(6))
	_, err = back.Build(Shape{6, 2}, rng)
	require.NoError(t, err)
	x := randBatch(rng, 4, Shape{6, 2})
	back.Forward(x, true)
	restored := back.(*BatchNorm)
	mean, variance := restored.moments(x)
	require.InDelta(t, mean[1], restored.movingMean.Value.At(0, 1), 1e-12)
	require.InDelta(t, variance[0], restored.movingVariance.Value.At(0, 0), 1e-12)

	for _, bad := range []*BatchNorm{
		{Momentum: 1, Epsilon: 1e-3},
		{Momentum: math.NaN(), Epsilon: 1e-3},
		{Momentum: 0.99},
	} {
		_, err := bad.Build(Shape{6, 2}, rng)
		require.Error(t, err)
	}
}

func TestFromConfig(t *testing.T) {
	for _, l := range []Layer{
		&Conv1D{Filters: 32, KernelSize: 3, Padding: "same", Activation: "relu"},
		&BatchNorm{Momentum: 0.99, Epsilon: 1e-3},
		&Dropout{Rate: 0.2},
		&GlobalAvgPool1D{},
		&Dense{Units: 3, Activation: "softmax"},
	} {
		l.SetName("x")
		back, err := FromConfig(l.Config())
		require.NoError(t, err)
		require.Equal(t, l.Config(), back.Config())
	}
	_, err := FromConfig(Config{Kind: "LSTM"})
	require.Error(t, err)
}

func TestShapeString(t *testing.T) {
	require.Equal(t, "(None, 6, 32)", Shape{6, 32}.String())
	require.Equal(t, "(None, 3)", Shape{3}.String())
}
