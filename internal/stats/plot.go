package stats

import (
	"errors"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"caevo/internal/model"
)

// PlotFitnessHistory draws max, elite average and population average fitness
// per generation. The image format follows the extension of path.
func PlotFitnessHistory(history []model.FitnessRecord, title, path string) error {
	if len(history) == 0 {
		return errors.New("fitness history is empty")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Generation"
	p.Y.Label.Text = "Fitness"
	p.Y.Min = 0
	p.Y.Max = 100

	maxPts := make(plotter.XYs, len(history))
	goodPts := make(plotter.XYs, len(history))
	meanPts := make(plotter.XYs, len(history))
	for i, rec := range history {
		x := float64(rec.Generation)
		if rec.Generation == 0 {
			x = float64(i + 1)
		}
		maxPts[i] = plotter.XY{X: x, Y: rec.MaxFitness}
		goodPts[i] = plotter.XY{X: x, Y: rec.GoodFitness}
		meanPts[i] = plotter.XY{X: x, Y: rec.MeanFitness}
	}

	lines := make([]*plotter.Line, 0, 3)
	for _, pts := range []plotter.XYs{maxPts, goodPts, meanPts} {
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		lines = append(lines, line)
	}
	for i, line := range lines {
		line.Color = plotutil.Color(i)
	}

	p.Add(lines[0], lines[1], lines[2])
	p.Legend.Add("max", lines[0])
	p.Legend.Add("elite avg", lines[1])
	p.Legend.Add("avg", lines[2])
	p.Legend.Top = true
	p.Legend.Left = true

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
