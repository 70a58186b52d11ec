package model

import (
	"fmt"

	"github.com/ldsec/trendCNN/utils"
)

// EpochLogs are the metrics of one training epoch. The validation values
// are only set when Validation is true.
type EpochLogs struct {
	Loss        float64
	Accuracy    float64
	ValLoss     float64
	ValAccuracy float64
	Validation  bool
}

func (l EpochLogs) String() string {
	s := fmt.Sprintf("loss: %.4f - accuracy: %.4f", l.Loss, l.Accuracy)
	if l.Validation {
		s += fmt.Sprintf(" - val_loss: %.4f - val_accuracy: %.4f", l.ValLoss, l.ValAccuracy)
	}
	return s
}

// History records the metrics of every epoch of a Fit call
type History struct {
	Epoch       []int
	Loss        []float64
	Accuracy    []float64
	ValLoss     []float64
	ValAccuracy []float64
}

func (h *History) append(epoch int, logs EpochLogs) {
	h.Epoch = append(h.Epoch, epoch)
	h.Loss = append(h.Loss, logs.Loss)
	h.Accuracy = append(h.Accuracy, logs.Accuracy)
	if logs.Validation {
		h.ValLoss = append(h.ValLoss, logs.ValLoss)
		h.ValAccuracy = append(h.ValAccuracy, logs.ValAccuracy)
	}
}

// Len is the number of recorded epochs
func (h *History) Len() int {
	return len(h.Epoch)
}

// Last returns the logs of the final epoch
func (h *History) Last() EpochLogs {
	n := h.Len()
	if n == 0 {
		return EpochLogs{}
	}
	logs := EpochLogs{Loss: h.Loss[n-1], Accuracy: h.Accuracy[n-1]}
	if len(h.ValLoss) == n {
		logs.ValLoss, logs.ValAccuracy, logs.Validation = h.ValLoss[n-1], h.ValAccuracy[n-1], true
	}
	return logs
}

// Plot draws the loss and accuracy curves to filename (.png, .svg, .pdf)
func (h *History) Plot(filename string) error {
	curves := []utils.Curve{{Name: "loss", Values: h.Loss}, {Name: "accuracy", Values: h.Accuracy}}
	if len(h.ValLoss) > 0 {
		curves = append(curves,
			utils.Curve{Name: "val_loss", Values: h.ValLoss},
			utils.Curve{Name: "val_accuracy", Values: h.ValAccuracy})
	}
	return utils.PlotCurves("Training history", "metric", curves, filename)
}
