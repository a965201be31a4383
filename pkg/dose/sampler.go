// Package dose provides stand-ins for the dose engine services the comparison
// pipeline consumes: sampling a dose line between two points and mapping
// positions between the user and dose coordinate frames.
package dose

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/spatial/r3"

	"profilecompare/internal/models"
)

// ErrInsufficientPoints is returned when a reference profile cannot be
// interpolated along the requested segment
var ErrInsufficientPoints = errors.New("reference profile needs at least two distinct points along the segment")

// minSpacing is the smallest distance (mm) between projected reference
// points kept for interpolation
const minSpacing = 1e-9

// ProfileSampler samples a calculated dose profile, given in dose frame
// coordinates, along arbitrary segments. Reference points are projected onto
// the segment and interpolated linearly; samples outside the reference
// extent are NaN, like a dose engine queried outside its calculation grid.
type ProfileSampler struct {
	reference models.Profile
}

// NewProfileSampler returns a sampler for the reference profile
func NewProfileSampler(reference models.Profile) *ProfileSampler {
	return &ProfileSampler{reference: reference}
}

// SampleLine returns count evenly spaced samples from start to end, both
// included. A count of one samples start only. When start and end coincide
// all samples take the nearest reference value at start.
func (s *ProfileSampler) SampleLine(ctx context.Context, start, end r3.Vec, count int) (models.Profile, error) {
	if count < 1 {
		return nil, fmt.Errorf("sample count must be positive, got %d", count)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := r3.Sub(end, start)
	length := r3.Norm(dir)
	if length == 0 {
		return s.samplePoint(start, count)
	}
	unit := r3.Scale(1/length, dir)

	xs, ys, err := s.project(start, unit)
	if err != nil {
		return nil, err
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("error fitting reference profile: %w", err)
	}

	samples := make(models.Profile, count)
	for i := range samples {
		f := 0.0
		if count > 1 {
			f = float64(i) / float64(count-1)
		}
		t := f * length

		value := math.NaN()
		if t >= xs[0] && t <= xs[len(xs)-1] {
			value = pl.Predict(t)
		}
		samples[i] = models.Point{
			Position: r3.Add(start, r3.Scale(f, dir)),
			Value:    value,
		}
	}
	return samples, nil
}

// samplePoint handles a degenerate segment: every sample sits at pos and
// carries the value of the nearest reference point
func (s *ProfileSampler) samplePoint(pos r3.Vec, count int) (models.Profile, error) {
	value := math.NaN()
	nearest := math.Inf(1)
	for _, point := range s.reference {
		if math.IsNaN(point.Value) {
			continue
		}
		if d := r3.Norm(r3.Sub(point.Position, pos)); d < nearest {
			nearest, value = d, point.Value
		}
	}
	if math.IsNaN(value) {
		return nil, ErrInsufficientPoints
	}

	samples := make(models.Profile, count)
	for i := range samples {
		samples[i] = models.Point{Position: pos, Value: value}
	}
	return samples, nil
}

// project returns the distance along the segment of each reference point
// and its value, sorted by distance with coincident points collapsed
func (s *ProfileSampler) project(start, unit r3.Vec) ([]float64, []float64, error) {
	type projected struct{ t, v float64 }

	points := make([]projected, 0, len(s.reference))
	for _, point := range s.reference {
		if math.IsNaN(point.Value) {
			continue
		}
		points = append(points, projected{
			t: r3.Dot(r3.Sub(point.Position, start), unit),
			v: point.Value,
		})
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].t < points[j].t })

	xs := make([]float64, 0, len(points))
	ys := make([]float64, 0, len(points))
	for _, p := range points {
		if len(xs) > 0 && p.t-xs[len(xs)-1] < minSpacing {
			continue
		}
		xs = append(xs, p.t)
		ys = append(ys, p.v)
	}
	if len(xs) < 2 {
		return nil, nil, ErrInsufficientPoints
	}
	return xs, ys, nil
}
