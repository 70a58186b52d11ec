package common

// trendCNN parameters
const WINDOW_SIZE = 6
const NFEATURES = 8
const NCLASSES = 3

const NFILTERS_1 = 32
const NFILTERS_2 = 16
const KERNEL_SIZE = 3
const DROPOUT_RATE = 0.2
const NHIDDEN = 16
const BN_MOMENTUM = 0.99
const BN_EPSILON = 1e-3

const EPOCHS = 20
const BATCH_SIZE = 32
const VALIDATION_SPLIT = 0.2
const LEARN_RATE = 0.001
const MOMENTUM = 0.9

const DATA_FILE = "training_data.npz"
const MODEL_FILE = "trend_model.cnn"
const EXPORT_DIR = "../public/models/trend-cnn"

// Trend classes, indexed by label
const (
	Stable = iota
	Declining
	Improving
)

var ClassNames = []string{"Stable", "Declining", "Improving"}

// ClassName returns the name of a label, or "unknown"
func ClassName(label int) string {
	if label < 0 || label >= len(ClassNames) {
		return "unknown"
	}
	return ClassNames[label]
}
