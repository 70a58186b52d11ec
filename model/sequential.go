// Package model assembles layers into a trainable sequential network.
package model

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/ldsec/trendCNN/common"
	"github.com/ldsec/trendCNN/config"
	"github.com/ldsec/trendCNN/layers"
	"github.com/ldsec/trendCNN/optimizer"
	"github.com/ldsec/trendCNN/utils"
	libunlynx "github.com/ldsec/unlynx/lib"
	"go.dedis.ch/onet/v3/log"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotBuilt is returned when a model is used before Build
	ErrNotBuilt = errors.New("model is not built")
	// ErrNotCompiled is returned when Fit or Evaluate run before Compile
	ErrNotCompiled = errors.New("model is not compiled")
)

// Sequential is a stack of layers where each layer feeds the next
type Sequential struct {
	Name     string
	Layers   []layers.Layer
	Input    layers.Shape
	Metadata Metadata

	optimizer optimizer.Optimizer
	loss      Loss
	metrics   []string
	rng       *rand.Rand
	built     bool
}

// NewSequential returns an empty model
func NewSequential(name string) *Sequential {
	return &Sequential{Name: name, Metadata: NewMetadata(common.ClassNames)}
}

// NewTrendCNN builds the trend classifier described by cfg:
// Conv1D(relu) -> BatchNorm -> Dropout -> Conv1D(relu) -> GlobalAvgPool1D ->
// Dense(relu) -> Dense(softmax)
func NewTrendCNN(cfg config.Config) (*Sequential, error) {
	mc := cfg.Model
	m := NewSequential("trend_cnn")
	m.Add(&layers.Conv1D{Filters: mc.Filters1, KernelSize: mc.KernelSize, Padding: "same", Activation: "relu"})
	m.Add(&layers.BatchNorm{Momentum: common.BN_MOMENTUM, Epsilon: common.BN_EPSILON})
	m.Add(&layers.Dropout{Rate: mc.Dropout})
	m.Add(&layers.Conv1D{Filters: mc.Filters2, KernelSize: mc.KernelSize, Padding: "same", Activation: "relu"})
	m.Add(&layers.GlobalAvgPool1D{})
	m.Add(&layers.Dense{Units: mc.Hidden, Activation: "relu"})
	m.Add(&layers.Dense{Units: mc.Classes, Activation: "softmax"})

	if mc.Classes != len(common.ClassNames) {
		classes := make([]string, mc.Classes)
		for i := range classes {
			classes[i] = fmt.Sprintf("class_%d", i)
		}
		m.Metadata.Classes = classes
	}
	if err := m.Build(layers.Shape{cfg.Data.WindowSize, cfg.Data.Features}, cfg.Train.Seed); err != nil {
		return nil, err
	}
	return m, nil
}

// Add appends a layer. Unnamed layers get a name derived from their kind.
func (m *Sequential) Add(l layers.Layer) {
	if l.Name() == "" {
		l.SetName(m.uniqueName(snakeCase(l.Kind())))
	}
	m.Layers = append(m.Layers, l)
	m.built = false
}

func (m *Sequential) uniqueName(prefix string) string {
	count := 0
	for _, l := range m.Layers {
		if l.Name() == prefix || strings.HasPrefix(l.Name(), prefix+"_") {
			count++
		}
	}
	if count == 0 {
		return prefix
	}
	return fmt.Sprintf("%s_%d", prefix, count)
}

// snakeCase turns "GlobalAveragePooling1D" into "global_average_pooling1d"
func snakeCase(kind string) string {
	var b strings.Builder
	for i, r := range kind {
		if r >= 'A' && r <= 'Z' {
			prevLower := i > 0 && kind[i-1] >= 'a' && kind[i-1] <= 'z'
			if prevLower {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Build initializes every layer for samples of shape in, seed drives the
// weight initialization and dropout masks
func (m *Sequential) Build(in layers.Shape, seed int64) error {
	if len(m.Layers) == 0 {
		return errors.New("model has no layers")
	}
	m.rng = rand.New(rand.NewSource(seed))
	shape := in
	for _, l := range m.Layers {
		out, err := l.Build(shape, m.rng)
		if err != nil {
			return fmt.Errorf("building %s: %w", l.Name(), err)
		}
		log.Lvlf3("%s %v -> %v", l.Name(), shape, out)
		shape = out
	}
	m.Input = in
	m.built = true
	return nil
}

// OutputShape is the per-sample shape of the last layer
func (m *Sequential) OutputShape() layers.Shape {
	if !m.built {
		return nil
	}
	return m.Layers[len(m.Layers)-1].OutputShape()
}

// Compile attaches the optimizer, the loss and the reported metrics
func (m *Sequential) Compile(opt optimizer.Optimizer, loss string, metrics ...string) error {
	if opt == nil {
		return errors.New("nil optimizer")
	}
	l, err := NewLoss(loss)
	if err != nil {
		return err
	}
	for _, metric := range metrics {
		if metric != "accuracy" {
			return fmt.Errorf("unknown metric %q", metric)
		}
	}
	m.optimizer, m.loss, m.metrics = opt, l, metrics
	return nil
}

// Optimizer returns the compiled optimizer, nil before Compile
func (m *Sequential) Optimizer() optimizer.Optimizer {
	return m.optimizer
}

// Params lists the parameters of all layers in order
func (m *Sequential) Params() []*layers.Param {
	var params []*layers.Param
	for _, l := range m.Layers {
		params = append(params, l.Params()...)
	}
	return params
}

// CountParams returns the total and trainable number of scalars
func (m *Sequential) CountParams() (total, trainable int) {
	for _, p := range m.Params() {
		total += p.Size()
		if p.Trainable {
			trainable += p.Size()
		}
	}
	return total, trainable
}

// Summary renders the layer table: name, output shape and parameter count
func (m *Sequential) Summary() string {
	var b strings.Builder
	line := strings.Repeat("_", 65)
	fmt.Fprintf(&b, "Model: %q\n%s\n", m.Name, line)
	fmt.Fprintf(&b, " %-28s%-26s%s\n%s\n", "Layer (type)", "Output Shape", "Param #", strings.Repeat("=", 65))
	for i, l := range m.Layers {
		count := 0
		for _, p := range l.Params() {
			count += p.Size()
		}
		fmt.Fprintf(&b, " %-28s%-26s%d\n", fmt.Sprintf("%s (%s)", l.Name(), l.Kind()), l.OutputShape(), count)
		if i < len(m.Layers)-1 {
			b.WriteString("\n")
		}
	}
	total, trainable := m.CountParams()
	fmt.Fprintf(&b, "%s\nTotal params: %d\nTrainable params: %d\nNon-trainable params: %d\n%s\n",
		strings.Repeat("=", 65), total, trainable, total-trainable, line)
	return b.String()
}

func (m *Sequential) forward(x []*mat.Dense, training bool) []*mat.Dense {
	out := x
	for _, l := range m.Layers {
		out = l.Forward(out, training)
	}
	return out
}

func (m *Sequential) backward(grad []*mat.Dense) {
	for i := len(m.Layers) - 1; i >= 0; i-- {
		grad = m.Layers[i].Backward(grad)
	}
}

// checkInput makes sure every window matches the input shape so that the
// layers never see a malformed sample
func (m *Sequential) checkInput(x []*mat.Dense) error {
	if !m.built {
		return ErrNotBuilt
	}
	for i, w := range x {
		if w == nil {
			return fmt.Errorf("%w: window %d is nil", layers.ErrShape, i)
		}
		r, c := w.Dims()
		if r != m.Input.Rows() || c != m.Input.Cols() {
			return fmt.Errorf("%w: window %d is %dx%d, model expects %v", layers.ErrShape, i, r, c, m.Input)
		}
	}
	return nil
}

func (m *Sequential) checkDataset(dataset common.TrendDataset) error {
	if !m.built {
		return ErrNotBuilt
	}
	return dataset.Validate(m.Input.Rows(), m.Input.Cols(), m.OutputShape().Cols())
}

// FitOptions control a training run. Callback, when set, runs after every
// epoch and stops training when it returns an error.
type FitOptions struct {
	Epochs          int
	BatchSize       int
	ValidationSplit float64
	Shuffle         bool
	Verbose         bool
	Callback        func(epoch int, logs EpochLogs) error
}

// Fit trains the model with mini-batches. The last ValidationSplit fraction
// of the dataset is held out, before shuffling, and evaluated after every
// epoch. The caller's dataset is left untouched.
func (m *Sequential) Fit(ctx context.Context, dataset common.TrendDataset, opts FitOptions) (*History, error) {
	if m.optimizer == nil {
		return nil, ErrNotCompiled
	}
	if opts.Epochs <= 0 {
		return nil, fmt.Errorf("epochs must be positive, got %d", opts.Epochs)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = common.BATCH_SIZE
	}
	if err := m.checkDataset(dataset); err != nil {
		return nil, err
	}
	train, valid, err := dataset.Split(opts.ValidationSplit)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		log.Lvlf1("Train on %d samples, validate on %d samples", train.Len(), valid.Len())
	}

	order := make([]int, train.Len())
	for i := range order {
		order[i] = i
	}
	nbatches := (len(order) + opts.BatchSize - 1) / opts.BatchSize
	history := &History{}
	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		epochTimer := libunlynx.StartTimer(fmt.Sprintf("Epoch%d", epoch))
		if opts.Shuffle {
			m.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}

		sumLoss, sumCorrect := 0., 0
		for b := 0; b < nbatches; b++ {
			if err := ctx.Err(); err != nil {
				return history, err
			}
			end := (b + 1) * opts.BatchSize
			if end > len(order) {
				end = len(order)
			}
			batch := train.Subset(order[b*opts.BatchSize : end])

			out := m.forward(batch.X, true)
			loss, grad := m.loss.Compute(out, batch.Y)
			m.backward(grad)
			m.optimizer.Update(m.Params())

			sumLoss += loss * float64(batch.Len())
			sumCorrect += correct(out, batch.Y)
			log.Lvlf3("epoch %d batch %d/%d loss %.5f", epoch, b+1, nbatches, loss)
		}

		logs := EpochLogs{
			Loss:     sumLoss / float64(train.Len()),
			Accuracy: float64(sumCorrect) / float64(train.Len()),
		}
		if valid.Len() > 0 {
			logs.ValLoss, logs.ValAccuracy, err = m.Evaluate(valid, opts.BatchSize)
			if err != nil {
				return history, err
			}
			logs.Validation = true
		}
		libunlynx.EndTimer(epochTimer)
		history.append(epoch, logs)
		if opts.Verbose {
			log.Lvlf1("Epoch %d/%d - %d batches - %s", epoch, opts.Epochs, nbatches, logs)
		}
		if opts.Callback != nil {
			if err := opts.Callback(epoch, logs); err != nil {
				return history, err
			}
		}
	}
	return history, nil
}

// Evaluate returns the loss and the accuracy in inference mode
func (m *Sequential) Evaluate(dataset common.TrendDataset, batchSize int) (float64, float64, error) {
	if m.loss == nil {
		return 0, 0, ErrNotCompiled
	}
	if err := m.checkDataset(dataset); err != nil {
		return 0, 0, err
	}
	if batchSize <= 0 {
		batchSize = common.BATCH_SIZE
	}
	sumLoss, sumCorrect := 0., 0
	for start := 0; start < dataset.Len(); start += batchSize {
		end := start + batchSize
		if end > dataset.Len() {
			end = dataset.Len()
		}
		out := m.forward(dataset.X[start:end], false)
		loss, _ := m.loss.Compute(out, dataset.Y[start:end])
		sumLoss += loss * float64(end-start)
		sumCorrect += correct(out, dataset.Y[start:end])
	}
	n := float64(dataset.Len())
	return sumLoss / n, float64(sumCorrect) / n, nil
}

// Predict returns the class probabilities of every window, one row per window
func (m *Sequential) Predict(x []*mat.Dense, batchSize int) (*mat.Dense, error) {
	if len(x) == 0 {
		return nil, common.ErrEmptyDataset
	}
	if err := m.checkInput(x); err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = common.BATCH_SIZE
	}
	var rows []*mat.Dense
	for start := 0; start < len(x); start += batchSize {
		end := start + batchSize
		if end > len(x) {
			end = len(x)
		}
		rows = append(rows, m.forward(x[start:end], false)...)
	}
	return utils.StackRows(rows), nil
}

// PredictClasses returns the most probable label of every window, in the
// float64 encoding of TrendDataset.Y
func (m *Sequential) PredictClasses(x []*mat.Dense, batchSize int) ([]float64, error) {
	probs, err := m.Predict(x, batchSize)
	if err != nil {
		return nil, err
	}
	return utils.Classify(probs), nil
}
