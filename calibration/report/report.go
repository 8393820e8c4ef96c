// Package report summarizes how well a calibration record explains its own views.
package report

import (
	"fmt"
	"image/color"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"go.viam.com/stereocalib/calibration"
)

// Summary holds the distribution of a per view error in pixels: the reprojection error of one
// camera, or one of the stereo consistency measures.
type Summary struct {
	Name    string
	PerView []float64
	Mean    float64
	Median  float64
	P95     float64
	Max     float64
	// Worst is the index of the view with the largest error.
	Worst int
}

// Summarize computes the statistics of a list of per view errors.
func Summarize(name string, perView []float64) (*Summary, error) {
	if len(perView) == 0 {
		return nil, errors.Errorf("%s: no views to summarize", name)
	}
	data := stats.Float64Data(perView)
	mean, err := data.Mean()
	if err != nil {
		return nil, errors.Wrap(err, "mean")
	}
	median, err := data.Median()
	if err != nil {
		return nil, errors.Wrap(err, "median")
	}
	p95, err := data.PercentileNearestRank(95)
	if err != nil {
		return nil, errors.Wrap(err, "percentile")
	}
	maxErr, err := data.Max()
	if err != nil {
		return nil, errors.Wrap(err, "max")
	}
	_, worst, _ := lo.FindIndexOf(perView, func(e float64) bool { return e == maxErr })
	return &Summary{
		Name:    name,
		PerView: append([]float64(nil), perView...),
		Mean:    mean,
		Median:  median,
		P95:     p95,
		Max:     maxErr,
		Worst:   worst,
	}, nil
}

// Mono summarizes a mono record.
func Mono(rec *calibration.MonoCalibrationRecord) ([]*Summary, error) {
	perView, err := rec.PerViewErrors()
	if err != nil {
		return nil, err
	}
	s, err := Summarize("camera", perView)
	if err != nil {
		return nil, err
	}
	return []*Summary{s}, nil
}

// Stereo summarizes both sides of a stereo record, followed by its epipolar and rectified
// row consistency.
func Stereo(rec *calibration.StereoCalibrationRecord) ([]*Summary, error) {
	var out []*Summary
	for _, side := range []calibration.Side{calibration.Left, calibration.Right} {
		perView, err := rec.PerViewErrors(side)
		if err != nil {
			return nil, errors.Wrapf(err, "%s camera", side)
		}
		s, err := Summarize(side.String(), perView)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	epipolar, err := Epipolar(rec)
	if err != nil {
		return nil, err
	}
	rows, err := RectifiedRows(rec)
	if err != nil {
		return nil, err
	}
	return append(append(out, epipolar...), rows), nil
}

// Table renders one row per summary.
func Table(summaries []*Summary) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Measure", "Views", "Mean", "Median", "P95", "Max", "Worst view"})
	for _, s := range summaries {
		t.AppendRow(table.Row{
			s.Name,
			len(s.PerView),
			fmt.Sprintf("%.4f", s.Mean),
			fmt.Sprintf("%.4f", s.Median),
			fmt.Sprintf("%.4f", s.P95),
			fmt.Sprintf("%.4f", s.Max),
			s.Worst,
		})
	}
	return t.Render()
}

// SavePlot writes a bar chart of the per view errors of every summary, side by side, to path.
// The image format follows the file extension.
func SavePlot(path string, summaries []*Summary) error {
	if len(summaries) == 0 {
		return errors.New("nothing to plot")
	}
	p := plot.New()
	p.Title.Text = "Reprojection error per view"
	p.X.Label.Text = "view"
	p.Y.Label.Text = "pixels"

	width := vg.Points(12)
	offset := -width * vg.Length(len(summaries)-1) / 2
	for i, s := range summaries {
		bars, err := plotter.NewBarChart(plotter.Values(s.PerView), width)
		if err != nil {
			return errors.Wrapf(err, "bars for %s", s.Name)
		}
		bars.LineStyle.Width = vg.Length(0)
		bars.Color = plotutil.Color(i)
		bars.Offset = offset + width*vg.Length(i)
		p.Add(bars)
		p.Legend.Add(s.Name, bars)
	}
	mean := plotter.NewFunction(func(float64) float64 { return summaries[0].Mean })
	mean.Color = color.Gray{Y: 96}
	mean.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(mean, plotter.NewGrid())
	p.Legend.Add("mean ("+summaries[0].Name+")", mean)
	p.Legend.Top = true

	return errors.Wrapf(p.Save(vg.Length(max(6, len(summaries[0].PerView)))*vg.Centimeter, 10*vg.Centimeter, path),
		"saving plot to %s", path)
}
