package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ldsec/trendCNN/common"
	"github.com/ldsec/trendCNN/config"
	"github.com/ldsec/trendCNN/export"
	"github.com/ldsec/trendCNN/model"
	"github.com/ldsec/trendCNN/optimizer"
	"go.dedis.ch/onet/v3/log"
)

// Trains the trend classifier on training_data.npz with the reference
// settings and writes the model next to the browser export directory.
func main() {
	cfg := config.Default()

	data, err := common.NewNpzLoader(common.DATA_FILE).Load()
	log.ErrFatal(err, "loading", common.DATA_FILE)

	m, err := model.NewTrendCNN(cfg)
	log.ErrFatal(err)
	log.ErrFatal(m.Compile(optimizer.NewAdam(common.LEARN_RATE), "sparse_categorical_crossentropy", "accuracy"))
	fmt.Print(m.Summary())

	_, err = m.Fit(context.Background(), data, model.FitOptions{
		Epochs:          common.EPOCHS,
		BatchSize:       common.BATCH_SIZE,
		ValidationSplit: common.VALIDATION_SPLIT,
		Shuffle:         true,
		Verbose:         true,
	})
	log.ErrFatal(err)

	log.ErrFatal(os.MkdirAll(common.EXPORT_DIR, 0755))
	log.ErrFatal(m.Save(common.MODEL_FILE))
	log.ErrFatal(export.ExportTFJS(m, common.EXPORT_DIR))
	fmt.Println("model saved to", common.MODEL_FILE, "and exported to", common.EXPORT_DIR)
}
