package cmd

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"

	"github.com/ldsec/trendCNN/config"
	"github.com/ldsec/trendCNN/model"
	"github.com/ldsec/trendCNN/utils"
	libunlynx "github.com/ldsec/unlynx/lib"
	"github.com/montanaflynn/stats"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.dedis.ch/onet/v3/log"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "score a saved model on a labelled npz file, or cross-validate fresh models with --folds",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		if folds, _ := cmd.Flags().GetInt("folds"); folds > 0 {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runCrossValidate(ctx, cfg, folds, cmd.OutOrStdout())
		}
		return runEvaluate(cfg, cmd.OutOrStdout())
	},
}

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "classify the windows of an npz file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		return runPredict(cfg, cmd.OutOrStdout())
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "print the layers of a saved model, or of a fresh one without --model",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		var m *model.Sequential
		if cmd.Flags().Changed("model") {
			m, err = model.Load(cfg.Output.ModelFile)
		} else {
			m, err = model.NewTrendCNN(cfg)
		}
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), m.Summary())
		return nil
	},
}

func init() {
	defaults := config.Default()
	for _, c := range []*cobra.Command{evaluateCmd, predictCmd} {
		dataFlags(c.Flags(), defaults)
		modelFlag(c.Flags(), defaults)
		c.Flags().Int("batch-size", defaults.Train.BatchSize, "inference batch size")
	}
	evaluateCmd.Flags().Int("folds", 0, "k-fold cross-validation of freshly trained models instead of scoring --model")
	evaluateCmd.Flags().Int("epochs", defaults.Train.Epochs, "number of epochs of every fold")
	modelFlag(summaryCmd.Flags(), defaults)
}

func runEvaluate(cfg config.Config, out io.Writer) error {
	m, err := model.Load(cfg.Output.ModelFile)
	if err != nil {
		return err
	}
	dataset, err := loader(cfg).Load()
	if err != nil {
		return err
	}
	loss, accuracy, err := m.Evaluate(dataset, cfg.Train.BatchSize)
	if err != nil {
		return err
	}
	probs, err := m.Predict(dataset.X, cfg.Train.BatchSize)
	if err != nil {
		return err
	}
	predicted := utils.Classify(probs)
	nclasses := len(m.Metadata.Classes)
	utils.PrintTrainStats(probs, dataset.Y, nclasses, false)
	precision, recall := utils.ComputePrecisionRecall(predicted, dataset.Y, nclasses, false)
	log.Lvlf2("evaluated model %s on %d windows", m.Metadata.RunID, dataset.Len())

	fmt.Fprintf(out, "loss: %.4f\naccuracy: %.4f\nprecision: %.4f\nrecall: %.4f\nf-score: %.4f\n",
		loss, accuracy, precision, recall, utils.FScore(precision, recall))
	fmt.Fprint(out, utils.FormatConfusion(utils.ConfusionMatrix(predicted, dataset.Y, nclasses), m.Metadata.Classes))
	return nil
}

// runCrossValidate splits the labelled data in folds groups and, for every
// group, trains a fresh model on the others and scores it on the group
func runCrossValidate(ctx context.Context, cfg config.Config, folds int, out io.Writer) error {
	if folds < 2 {
		return fmt.Errorf("cross-validation needs at least 2 folds, got %d", folds)
	}
	dataset, err := loader(cfg).Load()
	if err != nil {
		return err
	}
	// groups are contiguous rows
	dataset.Shuffle(rand.New(rand.NewSource(cfg.Train.Seed)))

	accuracies := make([]float64, folds)
	for k := range accuracies {
		train, test, err := dataset.Partition(uint(folds), uint(k))
		if err != nil {
			return err
		}
		m, err := compiledModel(cfg)
		if err != nil {
			return err
		}
		foldTimer := libunlynx.StartTimer(fmt.Sprintf("Fold%d", k))
		_, err = m.Fit(ctx, train, model.FitOptions{
			Epochs:    cfg.Train.Epochs,
			BatchSize: cfg.Train.BatchSize,
			Shuffle:   cfg.Train.Shuffle,
			Verbose:   cfg.Train.Verbose,
		})
		if err != nil {
			return fmt.Errorf("fold %d: %w", k, err)
		}
		libunlynx.EndTimer(foldTimer)

		predicted, err := m.PredictClasses(test.X, cfg.Train.BatchSize)
		if err != nil {
			return err
		}
		accuracies[k] = utils.ComputeAccuracy(predicted, test.Y)
		fmt.Fprintf(out, "fold %d/%d: train %d, test %d, accuracy: %.4f\n", k+1, folds, train.Len(), test.Len(), accuracies[k])
	}
	mean, err := stats.Mean(accuracies)
	if err != nil {
		return err
	}
	std, err := stats.StandardDeviation(accuracies)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "cross-validation accuracy: %.4f (std %.4f)\n", mean, std)
	return nil
}

func runPredict(cfg config.Config, out io.Writer) error {
	m, err := model.Load(cfg.Output.ModelFile)
	if err != nil {
		return err
	}
	windows, err := loader(cfg).LoadWindows()
	if err != nil {
		return err
	}
	probs, err := m.Predict(windows, cfg.Train.BatchSize)
	if err != nil {
		return err
	}
	for i := range windows {
		row := probs.RawRowView(i)
		class := utils.Argmax(row)
		label := fmt.Sprint(class)
		if class < len(m.Metadata.Classes) {
			label = m.Metadata.Classes[class]
		}
		fmt.Fprintf(out, "%d\t%s\t%.4f\n", i, label, row)
	}
	return nil
}
