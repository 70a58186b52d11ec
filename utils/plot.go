package utils

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Curve is one named series, indexed by epoch starting at 1
type Curve struct {
	Name   string
	Values []float64
}

// PlotCurves draws the curves against the epoch number and saves the figure,
// the format is taken from the file extension
func PlotCurves(title, ylabel string, curves []Curve, filename string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = ylabel

	args := make([]interface{}, 0, 2*len(curves))
	for _, c := range curves {
		if len(c.Values) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(c.Values))
		for i, v := range c.Values {
			pts[i].X = float64(i + 1)
			pts[i].Y = v
		}
		args = append(args, c.Name, pts)
	}
	if len(args) == 0 {
		return fmt.Errorf("plot %q: no values", title)
	}
	if err := plotutil.AddLinePoints(p, args...); err != nil {
		return err
	}
	return p.Save(6*vg.Inch, 4*vg.Inch, filename)
}
