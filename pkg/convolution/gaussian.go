// Package convolution smooths a calculated dose profile with a truncated
// Gaussian kernel to emulate the spatial response of the measuring detector.
package convolution

import (
	"context"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"profilecompare/internal/models"
	"profilecompare/internal/workpool"
)

// Gaussian is a truncated Gaussian detector response kernel
type Gaussian struct {
	// Sigma is the kernel standard deviation in mm. Zero disables smoothing.
	Sigma float64

	// Truncation is the kernel radius in mm. Points farther apart than this
	// do not contribute at all.
	Truncation float64

	// Workers is the number of goroutines used. Values below 2 run sequentially.
	Workers int
}

// NewGaussian returns a kernel for the convolution settings of the criteria
func NewGaussian(c models.Criteria, workers int) Gaussian {
	return Gaussian{Sigma: c.Sigma, Truncation: c.Truncation, Workers: workers}
}

// Weight returns the kernel weight for two points distance mm apart,
// ignoring truncation.
func (g Gaussian) Weight(distance float64) float64 {
	return math.Exp(-distance * distance / (2 * g.Sigma * g.Sigma))
}

// Apply convolves the profile values with the kernel and returns a new
// profile with the same positions, normalized to a maximum of 100.
//
// Near either end of the profile the kernel is clipped by the boundary. For a
// point within Truncation of an end, every filter point farther from it than
// that end is counted twice, standing in for its mirror image beyond the
// boundary. Points at exactly the same position contribute their value once.
//
// With Sigma == 0 the input profile is returned as is; callers must not
// modify it afterwards.
//
// Parameters:
//   - ctx: cancels the computation between points
//   - profile: the profile to smooth, ordered along the scan line
//
// Returns:
//   - the smoothed profile, or ctx.Err() if cancelled
func (g Gaussian) Apply(ctx context.Context, profile models.Profile) (models.Profile, error) {
	if g.Sigma == 0 || len(profile) == 0 {
		return profile, nil
	}

	first := profile.First().Position
	last := profile.Last().Position
	twoSigmaSq := 2 * g.Sigma * g.Sigma

	out := make(models.Profile, len(profile))
	err := workpool.Run(ctx, len(profile), g.Workers, func(i int) {
		point := profile[i]
		toFirst := r3.Norm(r3.Sub(point.Position, first))
		toLast := r3.Norm(r3.Sub(point.Position, last))
		firstEdge := toFirst <= g.Truncation
		lastEdge := toLast <= g.Truncation

		sum := 0.0
		for _, filter := range profile {
			d := r3.Norm(r3.Sub(point.Position, filter.Position))
			if d > g.Truncation {
				continue
			}

			switch {
			case point.Position == filter.Position:
				sum += filter.Value
			case firstEdge && d > toFirst, lastEdge && d > toLast:
				sum += 2 * filter.Value * math.Exp(-d*d/twoSigmaSq)
			default:
				sum += filter.Value * math.Exp(-d*d/twoSigmaSq)
			}
		}

		out[i] = models.Point{Position: point.Position, Value: sum}
	})
	if err != nil {
		return nil, err
	}

	return out.Normalized(), nil
}
