// Package visualization renders comparison results as image files.
package visualization

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"profilecompare/internal/models"
	"profilecompare/pkg/comparison"
)

var (
	measuredColor  = color.RGBA{R: 220, A: 255}
	referenceColor = color.RGBA{B: 220, A: 255}
	gammaColor     = color.RGBA{R: 128, G: 128, B: 128, A: 255}
)

// Size of saved plots
const (
	PlotWidth  = 10 * vg.Inch
	PlotHeight = 6 * vg.Inch
)

// curve converts a profile to plot points with the distance from origin on
// the x axis. Points with an undefined y value are dropped.
func curve(p models.Profile, origin r3.Vec, y func(models.Point) float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(p))
	for _, point := range p {
		v := y(point)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: r3.Norm(r3.Sub(point.Position, origin)), Y: v})
	}
	return pts
}

// GammaScale returns the factor global gamma values are multiplied with so
// that they share the dose axis: a gamma of 1 (or the maximum, when larger)
// is drawn at 100
func GammaScale(globalMax float64) float64 {
	return 100 / math.Max(1, globalMax)
}

// NewPlot builds the comparison plot: the measured profile in red, the
// calculated profile in blue and the scaled global gamma in gray
func NewPlot(r *comparison.Result) (*plot.Plot, error) {
	if len(r.Measured) == 0 {
		return nil, comparison.ErrEmptyProfile
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s profile", r.Kind)
	p.X.Label.Text = "Distance (mm)"
	p.Y.Label.Text = "Dose (%)"

	origin := r.Measured.First().Position
	value := func(pt models.Point) float64 { return pt.Value }
	scale := GammaScale(r.Summary.Global.Max)
	gamma := func(pt models.Point) float64 { return pt.Value2 * scale }

	series := []struct {
		name    string
		profile models.Profile
		y       func(models.Point) float64
		color   color.Color
	}{
		{"Measured", r.Measured, value, measuredColor},
		{"Calculated", r.Convolved, value, referenceColor},
		{fmt.Sprintf("Global gamma (x%.0f)", scale), r.Gamma, gamma, gammaColor},
	}

	for _, s := range series {
		pts := curve(s.profile, origin, s.y)
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s line: %w", s.name, err)
		}
		line.Color = s.color
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.name, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	return p, nil
}

// SavePlot writes the comparison plot of r to path. The image format follows
// the file extension (png, jpg, svg, pdf ...).
func SavePlot(r *comparison.Result, path string) error {
	p, err := NewPlot(r)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	if err := p.Save(PlotWidth, PlotHeight, path); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}
