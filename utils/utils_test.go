package utils

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/sbinet/npyio/npz"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSoftmax(t *testing.T) {
	out := Softmax([]float64{1, 2, 3})
	sum := 0.
	for _, v := range out {
		sum += v
	}
	require.InDelta(t, 1, sum, 1e-12)
	require.True(t, out[2] > out[1] && out[1] > out[0])

	// large logits must not overflow
	out = Softmax([]float64{1000, 1000})
	require.InDelta(t, 0.5, out[0], 1e-12)
	require.False(t, math.IsNaN(out[1]))
}

func TestArgmax(t *testing.T) {
	require.Equal(t, 2, Argmax([]float64{0.1, 0.2, 0.7}))
	require.Equal(t, 0, Argmax([]float64{0.5, 0.5, 0}))
}

func TestGlorotUniform(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	limit := math.Sqrt(6. / float64(24+32))
	w := GlorotUniform(rng, 1000, 24, 32)
	require.Len(t, w, 1000)
	for _, v := range w {
		require.True(t, v >= -limit && v < limit)
	}
}

func TestRelu(t *testing.T) {
	require.Equal(t, 0., Relu(-2))
	require.Equal(t, 3., Relu(3))
	require.Equal(t, 0., ReluD(0))
	require.Equal(t, 1., ReluD(0.1))
}

func TestStackSplitRows(t *testing.T) {
	rows := []*mat.Dense{
		mat.NewDense(1, 2, []float64{1, 2}),
		mat.NewDense(1, 2, []float64{3, 4}),
	}
	m := StackRows(rows)
	require.Equal(t, 3., m.At(1, 0))
	back := SplitRows(m)
	require.Len(t, back, 2)
	require.True(t, mat.Equal(rows[1], back[1]))
}

func TestNpzRoundTrip(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "data.npz")
	x := Array{Shape: []int{2, 3, 2}, Data: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}}
	y := Array{Shape: []int{2}, Data: []float64{1, 2}}
	require.NoError(t, SaveNpz(fname, map[string]Array{"X": x, "y": y}))

	arrays, err := LoadNpz(fname, "X", "y")
	require.NoError(t, err)
	// trailing dimensions are flattened
	require.Equal(t, []int{2, 6}, arrays["X"].Shape)
	require.Equal(t, x.Data, arrays["X"].Data)
	require.Equal(t, y.Data, arrays["y"].Data)

	_, err = LoadNpz(fname, "missing")
	require.Error(t, err)
}

func TestSaveNpzShapeMismatch(t *testing.T) {
	for _, a := range []Array{
		{Shape: []int{2, 2}, Data: []float64{1}},
		{Shape: []int{0, 48}},
		{Data: []float64{1}},
	} {
		err := SaveNpz(filepath.Join(t.TempDir(), "bad.npz"), map[string]Array{"X": a})
		require.Error(t, err, "shape %v", a.Shape)
	}
}

func TestLoadNpzNumpyDtypes(t *testing.T) {
	// numpy writes float32 windows and int64 labels by default
	fname := filepath.Join(t.TempDir(), "numpy.npz")
	windows := make([]float32, 2*48)
	for i := range windows {
		windows[i] = float32(i) / 4
	}
	require.NoError(t, npz.Write(fname, map[string]interface{}{
		"X.npy": windows,
		"y.npy": []int64{2, 1},
		"w.npy": []int32{-3},
		"m.npy": []uint8{255},
	}))

	arrays, err := LoadNpz(fname, "X", "y", "w", "m")
	require.NoError(t, err)
	require.Equal(t, []int{96}, arrays["X"].Shape)
	require.Equal(t, 23.75, arrays["X"].Data[95])
	require.Equal(t, []float64{2, 1}, arrays["y"].Data)
	require.Equal(t, []float64{-3}, arrays["w"].Data)
	require.Equal(t, []float64{255}, arrays["m"].Data)
}

func TestPlotCurves(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "loss.png")
	err := PlotCurves("loss", "loss", []Curve{
		{Name: "loss", Values: []float64{1, 0.8, 0.6}},
		{Name: "val_loss", Values: []float64{1.1, 0.9, 0.8}},
	}, fname)
	require.NoError(t, err)
	require.FileExists(t, fname)

	require.Error(t, PlotCurves("empty", "loss", nil, fname))
}
