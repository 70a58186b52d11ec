package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestClassifyAndAccuracy(t *testing.T) {
	scores := mat.NewDense(4, 3, []float64{
		0.8, 0.1, 0.1,
		0.2, 0.7, 0.1,
		0.1, 0.1, 0.8,
		0.4, 0.5, 0.1,
	})
	c := Classify(scores)
	require.Equal(t, []float64{0, 1, 2, 1}, c)
	require.InDelta(t, 0.75, ComputeAccuracy(c, []float64{0, 1, 2, 0}), 1e-12)
	require.Equal(t, 0., ComputeAccuracy(nil, nil))
}

func TestConfusionMatrix(t *testing.T) {
	c := []float64{0, 1, 2, 1, 0}
	y := []float64{0, 1, 2, 0, 2}
	cm := ConfusionMatrix(c, y, 3)
	require.Equal(t, [][]int{{1, 1, 0}, {0, 1, 0}, {1, 0, 1}}, cm)

	s := FormatConfusion(cm, []string{"Stable", "Declining", "Improving"})
	require.Contains(t, s, "Declining")
}

func TestPrecisionRecall(t *testing.T) {
	c := []float64{0, 1, 2, 1, 0}
	y := []float64{0, 1, 2, 0, 2}

	// micro averages equal the accuracy for single-label problems
	p, r := ComputePrecisionRecall(c, y, 3, true)
	require.InDelta(t, 0.6, p, 1e-12)
	require.InDelta(t, 0.6, r, 1e-12)

	// per class precision: 1/2, 1/2, 1/1 ; recall: 1/2, 1/1, 1/2
	p, r = ComputePrecisionRecall(c, y, 3, false)
	require.InDelta(t, 2./3, p, 1e-12)
	require.InDelta(t, 2./3, r, 1e-12)

	require.InDelta(t, 2./3, FScore(p, r), 1e-12)
	require.Equal(t, 0., FScore(0, 0))
}

func TestPrecisionRecallMissingClass(t *testing.T) {
	p, r := ComputePrecisionRecall([]float64{0, 0}, []float64{0, 0}, 3, false)
	require.InDelta(t, 1./3, p, 1e-12)
	require.InDelta(t, 1./3, r, 1e-12)
}
