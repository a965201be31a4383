// Package gamma computes the 1D gamma index between a measured and a
// reference dose profile following Low DA, Harms WB, Mutic S, Purdy JA,
// "A technique for the quantitative evaluation of dose distributions",
// Med Phys 25(5):656-61, 1998.
package gamma

import (
	"context"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"profilecompare/internal/models"
	"profilecompare/internal/workpool"
)

const (
	// DefaultEarlyExit stops the search for a measured point once a local
	// gamma squared below this value is found. It trades a very rarely
	// missed lower minimum for speed; zero disables it.
	DefaultEarlyExit = 0.01

	// initialMinimum is the starting gamma squared of every search
	initialMinimum = 1000.0
)

// Options configures a gamma evaluation
type Options struct {
	// Percent is the dose difference criterion in percent
	Percent float64

	// DTA is the distance to agreement in mm
	DTA float64

	// Threshold excludes measured points whose value is below it
	Threshold float64

	// EarlyExit is the local gamma squared below which the search stops
	EarlyExit float64

	// Workers is the number of goroutines used. Values below 2 run sequentially.
	Workers int
}

// OptionsFromCriteria returns evaluation options for the criteria with the
// default early exit
func OptionsFromCriteria(c models.Criteria, workers int) Options {
	return Options{
		Percent:   c.Percent,
		DTA:       c.DTA,
		Threshold: c.Threshold,
		EarlyExit: DefaultEarlyExit,
		Workers:   workers,
	}
}

// Evaluate computes the local and global gamma for every measured point at or
// above the threshold.
//
// For each measured point both gamma squared values are minimized over every
// reference point:
//
//	local²  = ((m - r) / (m * percent/100))² + |pm - pr|² / DTA²
//	global² = ((m - r) / percent)² + |pm - pr|² / DTA²
//
// The local dose term is zero whenever m equals r, and infinite for m = 0
// and r != 0, so a zero dose point only passes locally on an exact match and
// otherwise keeps the local gamma at the search cap √1000.
// The global form assumes the measured profile is normalized to 100. The
// reference profile is not interpolated, so it must be sampled finely
// compared to DTA.
//
// Parameters:
//   - ctx: cancels the computation between measured points
//   - measured: the profile gamma is computed for
//   - reference: the profile it is compared against
//   - opts: criteria and search settings
//
// Returns:
//   - a profile with the positions of the evaluated measured points, the
//     local gamma in Value and the global gamma in Value2
func Evaluate(ctx context.Context, measured, reference models.Profile, opts Options) (models.Profile, error) {
	var evaluated []int
	for i, point := range measured {
		if point.Value < opts.Threshold {
			continue
		}
		evaluated = append(evaluated, i)
	}

	dtaSq := opts.DTA * opts.DTA
	result := make(models.Profile, len(evaluated))

	err := workpool.Run(ctx, len(evaluated), opts.Workers, func(k int) {
		point := measured[evaluated[k]]
		local, global := search(point, reference, opts.Percent, dtaSq, opts.EarlyExit)
		result[k] = models.Point{
			Position: point.Position,
			Value:    math.Sqrt(local),
			Value2:   math.Sqrt(global),
		}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// localDoseTerm is the squared local dose difference. Equal doses contribute
// nothing. A measured dose of zero has no local tolerance, so any difference
// from it is infinitely far and only an exact dose match can lower the local
// minimum below the initial cap.
func localDoseTerm(diff, tolerance float64) float64 {
	if diff == 0 {
		return 0
	}
	if tolerance == 0 {
		return math.Inf(1)
	}
	return math.Pow(diff/tolerance, 2)
}

// search returns the minimum local and global gamma squared of point over
// the reference profile
func search(point models.Point, reference models.Profile, percent, dtaSq, earlyExit float64) (float64, float64) {
	minLocal := initialMinimum
	minGlobal := initialMinimum
	localTolerance := point.Value * percent / 100

	for _, ref := range reference {
		diff := point.Value - ref.Value
		distSq := r3.Norm2(r3.Sub(point.Position, ref.Position)) / dtaSq

		local := localDoseTerm(diff, localTolerance) + distSq
		global := math.Pow(diff/percent, 2) + distSq

		if local < minLocal {
			minLocal = local
		}
		if global < minGlobal {
			minGlobal = global
		}
		if local < earlyExit {
			break
		}
	}
	return minLocal, minGlobal
}
