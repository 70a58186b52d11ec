package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/ldsec/trendCNN/common"
	"github.com/ldsec/trendCNN/config"
	"github.com/ldsec/trendCNN/export"
	"github.com/ldsec/trendCNN/model"
	"github.com/ldsec/trendCNN/optimizer"
	"github.com/ldsec/trendCNN/storage"
	libunlynx "github.com/ldsec/unlynx/lib"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.dedis.ch/onet/v3/log"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "train the classifier, save the archive and export it for the browser",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		_, err = runTrain(ctx, cfg, cmd.OutOrStdout())
		return err
	},
}

func init() {
	defaults := config.Default()
	flags := trainCmd.Flags()
	dataFlags(flags, defaults)
	modelFlag(flags, defaults)
	flags.String("export-dir", defaults.Output.ExportDir, "directory of the TensorFlow.js export, empty to skip")
	flags.String("plot", defaults.Output.PlotFile, "training history plot (.png, .svg, .pdf)")
	flags.Int("epochs", defaults.Train.Epochs, "number of epochs")
	flags.Int("batch-size", defaults.Train.BatchSize, "mini-batch size")
	flags.Float64("validation-split", defaults.Train.ValidationSplit, "fraction of the data held out for validation")
	flags.String("optimizer", defaults.Train.Optimizer, "adam or sgd")
	flags.Float64("learn-rate", defaults.Train.LearnRate, "learning rate")
	flags.Float64("momentum", defaults.Train.Momentum, "sgd momentum")
	flags.Int64("seed", defaults.Train.Seed, "seed of the weight initialization, shuffling and dropout")
	flags.Bool("shuffle", defaults.Train.Shuffle, "shuffle the training samples every epoch")
	flags.Bool("verbose", defaults.Train.Verbose, "log every epoch")
	flags.String("storage", defaults.Storage.Backend, "publish the export to none, local or minio")
	flags.String("storage-root", defaults.Storage.Root, "root directory of the local store")
	flags.String("storage-prefix", defaults.Storage.Prefix, "key prefix of the published files")
	flags.String("minio-endpoint", defaults.Storage.Endpoint, "minio endpoint")
	flags.String("minio-bucket", defaults.Storage.Bucket, "minio bucket")
	flags.String("minio-access-key", defaults.Storage.AccessKey, "minio access key")
	flags.String("minio-secret-key", defaults.Storage.SecretKey, "minio secret key")
	flags.String("minio-region", defaults.Storage.Region, "minio region")
	flags.Bool("minio-ssl", defaults.Storage.UseSSL, "use https for minio")
}

func loader(cfg config.Config) common.NpzLoader {
	return common.NpzLoader{
		Path:     cfg.Data.Path,
		XKey:     cfg.Data.XKey,
		YKey:     cfg.Data.YKey,
		Window:   cfg.Data.WindowSize,
		Features: cfg.Data.Features,
	}
}

// compiledModel returns a fresh trend classifier compiled with the training settings of cfg
func compiledModel(cfg config.Config) (*model.Sequential, error) {
	m, err := model.NewTrendCNN(cfg)
	if err != nil {
		return nil, err
	}
	opt, err := optimizer.New(cfg.Train.Optimizer, cfg.Train.LearnRate, cfg.Train.Momentum)
	if err != nil {
		return nil, err
	}
	if err := m.Compile(opt, "sparse_categorical_crossentropy", "accuracy"); err != nil {
		return nil, err
	}
	return m, nil
}

// runTrain loads the data, trains, saves the archive, exports it and
// optionally publishes the export
func runTrain(ctx context.Context, cfg config.Config, out io.Writer) (*model.History, error) {
	loadTimer := libunlynx.StartTimer("LoadData")
	dataset, err := loader(cfg).Load()
	if err != nil {
		return nil, fmt.Errorf("loading training data: %w", err)
	}
	libunlynx.EndTimer(loadTimer)
	dataset.LogSummary("training data")

	m, err := compiledModel(cfg)
	if err != nil {
		return nil, err
	}
	fmt.Fprint(out, m.Summary())

	trainTimer := libunlynx.StartTimer("Train")
	history, err := m.Fit(ctx, dataset, model.FitOptions{
		Epochs:          cfg.Train.Epochs,
		BatchSize:       cfg.Train.BatchSize,
		ValidationSplit: cfg.Train.ValidationSplit,
		Shuffle:         cfg.Train.Shuffle,
		Verbose:         cfg.Train.Verbose,
	})
	if err != nil {
		return history, err
	}
	libunlynx.EndTimer(trainTimer)
	fmt.Fprintf(out, "final epoch: %s\n", history.Last())

	saveTimer := libunlynx.StartTimer("Save")
	if err := m.Save(cfg.Output.ModelFile); err != nil {
		return history, fmt.Errorf("saving model: %w", err)
	}
	log.Lvl1("model saved to", cfg.Output.ModelFile)
	if cfg.Output.ExportDir != "" {
		if err := export.ExportTFJS(m, cfg.Output.ExportDir); err != nil {
			return history, fmt.Errorf("exporting model: %w", err)
		}
		log.Lvl1("browser model exported to", cfg.Output.ExportDir)
	}
	libunlynx.EndTimer(saveTimer)

	if cfg.Output.PlotFile != "" {
		if err := history.Plot(cfg.Output.PlotFile); err != nil {
			log.Warn("could not plot the history:", err)
		}
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return history, err
	}
	if store != nil && cfg.Output.ExportDir != "" {
		keys, err := storage.PublishDir(ctx, store, cfg.Storage.Prefix, cfg.Output.ExportDir)
		if err != nil {
			return history, err
		}
		log.Lvlf1("published %d files to %s storage", len(keys), cfg.Storage.Backend)
	}
	return history, nil
}
