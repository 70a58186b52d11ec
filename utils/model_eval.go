package utils

import (
	"fmt"
	"strings"

	"go.dedis.ch/onet/v3/log"
	"gonum.org/v1/gonum/mat"
)

// ComputeAccuracy returns the fraction of predictions c equal to labels y
func ComputeAccuracy(c []float64, y []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	accuracy := 0.
	for i := range y {
		if c[i] == y[i] {
			accuracy++
		}
	}
	return accuracy / float64(len(y))
}

// Classify returns the argmax class of every row of scores
func Classify(scores *mat.Dense) []float64 {
	nsamples, _ := scores.Dims()
	class := make([]float64, nsamples)
	for r := range class {
		class[r] = float64(Argmax(scores.RawRowView(r)))
	}
	return class
}

// ConfusionMatrix counts, for every true class (row), the predicted classes (columns)
func ConfusionMatrix(c []float64, y []float64, nclass int) [][]int {
	m := make([][]int, nclass)
	for i := range m {
		m[i] = make([]int, nclass)
	}
	for i := range y {
		truth, pred := int(y[i]), int(c[i])
		if truth < 0 || truth >= nclass || pred < 0 || pred >= nclass {
			continue
		}
		m[truth][pred]++
	}
	return m
}

// ComputePrecisionRecall returns the micro or macro averaged precision and recall.
// A class without any positive prediction (or label) contributes 0 to the macro average.
func ComputePrecisionRecall(c []float64, y []float64, nclass int, micro bool) (float64, float64) {
	cm := ConfusionMatrix(c, y, nclass)
	tp := make([]float64, nclass)
	fp := make([]float64, nclass)
	fn := make([]float64, nclass)
	for truth := range cm {
		for pred, n := range cm[truth] {
			if truth == pred {
				tp[truth] += float64(n)
			} else {
				fn[truth] += float64(n)
				fp[pred] += float64(n)
			}
		}
	}

	if micro {
		sumTp, sumFp, sumFn := 0., 0., 0.
		for k := 0; k < nclass; k++ {
			sumTp += tp[k]
			sumFp += fp[k]
			sumFn += fn[k]
		}
		return ratio(sumTp, sumTp+sumFp), ratio(sumTp, sumTp+sumFn)
	}

	precision, recall := 0., 0.
	for k := 0; k < nclass; k++ {
		precision += ratio(tp[k], tp[k]+fp[k])
		recall += ratio(tp[k], tp[k]+fn[k])
	}
	return precision / float64(nclass), recall / float64(nclass)
}

// FScore is the harmonic mean of precision and recall
func FScore(precision, recall float64) float64 {
	return ratio(2*precision*recall, precision+recall)
}

func ratio(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// PrintTrainStats logs accuracy, precision and recall of scores against y
func PrintTrainStats(scores *mat.Dense, y []float64, nclass int, micro bool) {
	classified := Classify(scores)
	accuracy := ComputeAccuracy(classified, y)
	precision, recall := ComputePrecisionRecall(classified, y, nclass, micro)
	log.Lvlf1("Accuracy: %.2f %%, precision: %.2f %%, recall: %.2f %%", 100*accuracy, 100*precision, 100*recall)
}

// FormatConfusion renders a confusion matrix with the class names as headers
func FormatConfusion(cm [][]int, names []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s", "true\\pred")
	for _, n := range names {
		fmt.Fprintf(&b, "%12s", n)
	}
	b.WriteString("\n")
	for i, row := range cm {
		name := fmt.Sprint(i)
		if i < len(names) {
			name = names[i]
		}
		fmt.Fprintf(&b, "%-12s", name)
		for _, v := range row {
			fmt.Fprintf(&b, "%12d", v)
		}
		b.WriteString("\n")
	}
	return b.String()
}
