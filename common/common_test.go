package common

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/ldsec/trendCNN/utils"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func smallDataset(n int) TrendDataset {
	return Synthetic(n, WINDOW_SIZE, NFEATURES, 0.1, rand.New(rand.NewSource(1)))
}

func TestValidate(t *testing.T) {
	ds := smallDataset(9)
	require.NoError(t, ds.Validate(WINDOW_SIZE, NFEATURES, NCLASSES))

	empty := TrendDataset{}
	require.ErrorIs(t, empty.Validate(WINDOW_SIZE, NFEATURES, NCLASSES), ErrEmptyDataset)

	short := TrendDataset{X: ds.X, Y: ds.Y[:3]}
	require.ErrorIs(t, short.Validate(WINDOW_SIZE, NFEATURES, NCLASSES), ErrShape)

	bad := TrendDataset{X: []*mat.Dense{mat.NewDense(5, 8, nil)}, Y: []float64{0}}
	require.ErrorIs(t, bad.Validate(WINDOW_SIZE, NFEATURES, NCLASSES), ErrShape)

	for _, y := range []float64{3, -1, 0.5, 1e20, math.Inf(1), math.Inf(-1), math.NaN()} {
		lbl := TrendDataset{X: ds.X[:1], Y: []float64{y}}
		require.ErrorIs(t, lbl.Validate(WINDOW_SIZE, NFEATURES, NCLASSES), ErrShape, "label %v", y)
	}
}

func TestSplit(t *testing.T) {
	ds := smallDataset(10)
	train, valid, err := ds.Split(0.2)
	require.NoError(t, err)
	require.Equal(t, 8, train.Len())
	require.Equal(t, 2, valid.Len())
	// the validation set is the tail of the data
	require.Same(t, ds.X[8], valid.X[0])
	require.Same(t, ds.X[0], train.X[0])

	// floor(4*0.2) == 0: no validation
	ds = smallDataset(4)
	train, valid, err = ds.Split(0.2)
	require.NoError(t, err)
	require.Equal(t, 4, train.Len())
	require.Equal(t, 0, valid.Len())

	_, _, err = ds.Split(1)
	require.Error(t, err)
	_, _, err = ds.Split(-0.1)
	require.Error(t, err)
	_, _, err = ds.Split(math.NaN())
	require.Error(t, err)

	one := smallDataset(1)
	train, _, err = one.Split(0.5)
	require.NoError(t, err)
	require.Equal(t, 1, train.Len())
}

func TestPartition(t *testing.T) {
	ds := smallDataset(9)
	train, test, err := ds.Partition(3, 1)
	require.NoError(t, err)
	require.Equal(t, 6, train.Len())
	require.Equal(t, 3, test.Len())
	require.Same(t, ds.X[3], test.X[0])
	require.Same(t, ds.X[6], train.X[3])

	_, _, err = ds.Partition(0, 0)
	require.Error(t, err)
	_, _, err = ds.Partition(3, 3)
	require.Error(t, err)
	_, _, err = ds.Partition(20, 0)
	require.Error(t, err)

	all, same, err := ds.Partition(1, 0)
	require.NoError(t, err)
	require.Equal(t, all.Len(), same.Len())
}

func TestShuffleKeepsPairs(t *testing.T) {
	ds := smallDataset(30)
	label := make(map[*mat.Dense]float64)
	for i := range ds.X {
		label[ds.X[i]] = ds.Y[i]
	}
	ds.Shuffle(rand.New(rand.NewSource(9)))
	for i := range ds.X {
		require.Equal(t, label[ds.X[i]], ds.Y[i])
	}
}

func TestClassCountsAndDescribe(t *testing.T) {
	ds := smallDataset(30)
	require.Equal(t, []int{10, 10, 10}, ds.ClassCounts(NCLASSES))

	summary, err := ds.Describe()
	require.NoError(t, err)
	require.Len(t, summary, NFEATURES)
	for _, s := range summary {
		require.True(t, s.Min <= s.Mean && s.Mean <= s.Max)
		require.True(t, s.Std > 0)
	}

	empty := TrendDataset{}
	_, err = empty.Describe()
	require.ErrorIs(t, err, ErrEmptyDataset)
}

func TestFromArrays(t *testing.T) {
	data := make([]float64, 2*WINDOW_SIZE*NFEATURES)
	for i := range data {
		data[i] = float64(i)
	}
	y := utils.Array{Shape: []int{2, 1}, Data: []float64{0, 2}}

	flat, err := FromArrays(utils.Array{Shape: []int{2, 48}, Data: data}, y, WINDOW_SIZE, NFEATURES)
	require.NoError(t, err)
	cube, err := FromArrays(utils.Array{Shape: []int{2, 6, 8}, Data: data}, y, WINDOW_SIZE, NFEATURES)
	require.NoError(t, err)
	require.True(t, mat.Equal(flat.X[1], cube.X[1]))
	// row major: step 1 of window 1 starts at 48 + 8
	require.Equal(t, 56., cube.X[1].At(1, 0))

	_, err = FromArrays(utils.Array{Shape: []int{2, 8, 6}, Data: data}, y, WINDOW_SIZE, NFEATURES)
	require.ErrorIs(t, err, ErrShape)
	_, err = FromArrays(utils.Array{Shape: []int{2, 48}, Data: data}, utils.Array{Shape: []int{3}, Data: []float64{0, 1, 2}}, WINDOW_SIZE, NFEATURES)
	require.ErrorIs(t, err, ErrShape)
	_, err = FromArrays(utils.Array{Shape: []int{0, 6, 8}}, y, WINDOW_SIZE, NFEATURES)
	require.ErrorIs(t, err, ErrEmptyDataset)
}

func TestNpzLoaderRoundTrip(t *testing.T) {
	ds := smallDataset(12)
	loader := NewNpzLoader(filepath.Join(t.TempDir(), DATA_FILE))
	require.NoError(t, loader.Save(ds))

	back, err := loader.Load()
	require.NoError(t, err)
	require.Equal(t, ds.Y, back.Y)
	for i := range ds.X {
		require.True(t, mat.Equal(ds.X[i], back.X[i]))
	}

	windows, err := loader.LoadWindows()
	require.NoError(t, err)
	require.Len(t, windows, 12)
	require.True(t, mat.Equal(ds.X[4], windows[4]))

	_, err = NewNpzLoader(filepath.Join(t.TempDir(), "missing.npz")).Load()
	require.Error(t, err)
}

func TestClassName(t *testing.T) {
	require.Equal(t, "Declining", ClassName(Declining))
	require.Equal(t, "unknown", ClassName(7))
}
