// Package config holds the training, export and serving settings of trendCNN.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/ldsec/trendCNN/common"
	"github.com/pelletier/go-toml"
)

// Config is the content of a trendCNN toml file
type Config struct {
	Data    DataConfig    `toml:"data"`
	Model   ModelConfig   `toml:"model"`
	Train   TrainConfig   `toml:"train"`
	Output  OutputConfig  `toml:"output"`
	Storage StorageConfig `toml:"storage"`
	Server  ServerConfig  `toml:"server"`
	// Debug is the onet log level, 0 prints only errors and warnings
	Debug int `toml:"debug"`
}

type DataConfig struct {
	Path       string `toml:"path"`
	XKey       string `toml:"x_key"`
	YKey       string `toml:"y_key"`
	WindowSize int    `toml:"window_size"`
	Features   int    `toml:"features"`
}

type ModelConfig struct {
	Filters1   int     `toml:"filters_1"`
	Filters2   int     `toml:"filters_2"`
	KernelSize int     `toml:"kernel_size"`
	Dropout    float64 `toml:"dropout"`
	Hidden     int     `toml:"hidden"`
	Classes    int     `toml:"classes"`
}

type TrainConfig struct {
	Epochs          int     `toml:"epochs"`
	BatchSize       int     `toml:"batch_size"`
	ValidationSplit float64 `toml:"validation_split"`
	Optimizer       string  `toml:"optimizer"`
	LearnRate       float64 `toml:"learn_rate"`
	Momentum        float64 `toml:"momentum"`
	Shuffle         bool    `toml:"shuffle"`
	Seed            int64   `toml:"seed"`
	Verbose         bool    `toml:"verbose"`
}

type OutputConfig struct {
	ModelFile string `toml:"model_file"`
	ExportDir string `toml:"export_dir"`
	PlotFile  string `toml:"plot_file"`
}

// StorageConfig selects where exported models are published, Backend is
// "none", "local" or "minio"
type StorageConfig struct {
	Backend   string `toml:"backend"`
	Root      string `toml:"root"`
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Region    string `toml:"region"`
	UseSSL    bool   `toml:"use_ssl"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// Default returns the settings of the reference training run
func Default() Config {
	return Config{
		Data: DataConfig{
			Path:       common.DATA_FILE,
			XKey:       "X",
			YKey:       "y",
			WindowSize: common.WINDOW_SIZE,
			Features:   common.NFEATURES,
		},
		Model: ModelConfig{
			Filters1:   common.NFILTERS_1,
			Filters2:   common.NFILTERS_2,
			KernelSize: common.KERNEL_SIZE,
			Dropout:    common.DROPOUT_RATE,
			Hidden:     common.NHIDDEN,
			Classes:    common.NCLASSES,
		},
		Train: TrainConfig{
			Epochs:          common.EPOCHS,
			BatchSize:       common.BATCH_SIZE,
			ValidationSplit: common.VALIDATION_SPLIT,
			Optimizer:       "adam",
			LearnRate:       common.LEARN_RATE,
			Momentum:        common.MOMENTUM,
			Shuffle:         true,
			Seed:            1,
			Verbose:         true,
		},
		Output: OutputConfig{
			ModelFile: common.MODEL_FILE,
			ExportDir: common.EXPORT_DIR,
		},
		Storage: StorageConfig{Backend: "none", Prefix: "trend-cnn"},
		Server:  ServerConfig{Addr: ":8080"},
		Debug:   1,
	}
}

// Load reads a toml file on top of the defaults
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate reports the first inconsistent setting
func (c Config) Validate() error {
	switch {
	case c.Data.WindowSize <= 0 || c.Data.Features <= 0:
		return errors.New("window_size and features must be positive")
	case c.Model.Filters1 <= 0 || c.Model.Filters2 <= 0 || c.Model.Hidden <= 0:
		return errors.New("filters and hidden units must be positive")
	case c.Model.KernelSize <= 0:
		return errors.New("kernel_size must be positive")
	case c.Model.Classes < 2:
		return errors.New("at least 2 classes are needed")
	case !(c.Model.Dropout >= 0 && c.Model.Dropout < 1):
		return fmt.Errorf("dropout must be in [0,1), got %v", c.Model.Dropout)
	case c.Train.Epochs <= 0:
		return errors.New("epochs must be positive")
	case c.Train.BatchSize <= 0:
		return errors.New("batch_size must be positive")
	case !(c.Train.ValidationSplit >= 0 && c.Train.ValidationSplit < 1):
		return fmt.Errorf("validation_split must be in [0,1), got %v", c.Train.ValidationSplit)
	case !(c.Train.LearnRate > 0):
		return errors.New("learn_rate must be positive")
	}
	switch c.Storage.Backend {
	case "", "none", "local", "minio":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "minio" && (c.Storage.Endpoint == "" || c.Storage.Bucket == "") {
		return errors.New("minio storage needs an endpoint and a bucket")
	}
	return nil
}

// Save writes the configuration as toml
func (c Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
