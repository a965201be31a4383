// Package metrics extracts summary dose metrics from profiles: the full width
// at half maximum with its center for lateral profiles, and R50, PDD(10) and
// the depth of maximum dose for depth profiles.
//
// All crossing based metrics share FindCrossing so that threshold detection
// and interpolation behave identically everywhere.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"profilecompare/internal/models"
)

const (
	// R50Level is the dose level (percent) whose depth defines R50
	R50Level = 50.0

	// PDDDepth is the depth (mm) at which PDD(10) is read
	PDDDepth = 100.0
)

// Series returns the i-th sample of a scanned quantity
type Series func(i int) float64

// FindCrossing returns the first index i in [from, n) at which series crosses
// target, i.e. where the sign of series(i-1)-target differs from the sign of
// series(i)-target. A sample equal to target counts as its own sign. Pairs
// that contain NaN are skipped.
//
// Parameters:
//   - n: number of samples in the series
//   - from: first index to test; values below 1 start at 1
//   - series: accessor for the scanned quantity
//   - target: level to locate
//
// Returns:
//   - the index of the sample after the crossing and true, or 0 and false
//     if no crossing exists
func FindCrossing(n, from int, series Series, target float64) (int, bool) {
	if from < 1 {
		from = 1
	}
	for i := from; i < n; i++ {
		prev, cur := series(i-1), series(i)
		if math.IsNaN(prev) || math.IsNaN(cur) {
			continue
		}
		if sign(prev-target) != sign(cur-target) {
			return i, true
		}
	}
	return 0, false
}

// Interp linearly interpolates y at x between (x0, y0) and (x1, y1). When the
// two abscissae coincide the mean of y0 and y1 is returned.
func Interp(x, x0, x1, y0, y1 float64) float64 {
	if x1-x0 == 0 {
		return (y0 + y1) / 2
	}
	return y0 + (x-x0)*(y1-y0)/(x1-x0)
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func values(p models.Profile) Series {
	return func(i int) float64 { return p[i].Value }
}

func depths(p models.Profile) Series {
	return func(i int) float64 { return p[i].Position.Y }
}

// FWHM returns the full width at half maximum of the profile and the
// position midway between the two half maximum crossings.
//
// The left edge is the first crossing of half the profile maximum. The
// right edge is searched starting two samples further so a flat top cannot
// yield the same shoulder twice. The width between the two inner crossing
// samples is refined on each side by the interpolated fraction of the
// neighbouring interval that lies inside the half maximum.
//
// Returns (0, zero vector) when no complete pair of crossings exists, e.g.
// for a flat profile. Zero is never a valid width.
func FWHM(p models.Profile) (float64, r3.Vec) {
	half := p.Max() / 2
	n := len(p)

	i, ok := FindCrossing(n, 1, values(p), half)
	if !ok {
		return 0, r3.Vec{}
	}
	// The right crossing lies between j and j+1 with j >= i+2
	k, ok := FindCrossing(n, i+3, values(p), half)
	if !ok {
		return 0, r3.Vec{}
	}
	j := k - 1

	width := distance(p[j], p[i]) +
		distance(p[i-1], p[i])*(1-edgeFraction(p[i-1].Value, p[i].Value, half)) +
		distance(p[j], p[j+1])*(1-edgeFraction(p[j].Value, p[j+1].Value, half))

	center := r3.Scale(0.5, r3.Add(p[j].Position, p[i].Position))
	return width, center
}

// edgeFraction is the position of level between a and b, measured from the
// lower of the two values as a fraction of their difference
func edgeFraction(a, b, level float64) float64 {
	return math.Abs((level - math.Min(a, b)) / (a - b))
}

func distance(a, b models.Point) float64 {
	return r3.Norm(r3.Sub(a.Position, b.Position))
}

// R50 returns the depth (mm) at which a depth profile first crosses 50%.
// The profile must be normalized to 100.
func R50(p models.Profile) (float64, bool) {
	i, ok := FindCrossing(len(p), 1, values(p), R50Level)
	if !ok {
		return 0, false
	}
	return Interp(R50Level, p[i-1].Value, p[i].Value, p[i-1].Position.Y, p[i].Position.Y), true
}

// PDD10 returns the profile value interpolated at 100 mm depth
func PDD10(p models.Profile) (float64, bool) {
	i, ok := FindCrossing(len(p), 1, depths(p), PDDDepth)
	if !ok {
		return 0, false
	}
	return Interp(PDDDepth, p[i-1].Position.Y, p[i].Position.Y, p[i-1].Value, p[i].Value), true
}

// DepthOfMax returns the depth of the first sample after the first one whose
// value is exactly 100, i.e. the maximum of a normalized profile.
func DepthOfMax(p models.Profile) (float64, bool) {
	for i := 1; i < len(p); i++ {
		if p[i].Value == 100 {
			return p[i].Position.Y, true
		}
	}
	return 0, false
}

// DepthQuality returns the beam quality metric of a depth profile: R50 (mm)
// for electron beams and PDD(10) (percent) for photon beams
func DepthQuality(p models.Profile, beam models.BeamKind) (float64, bool) {
	if beam == models.Electron {
		return R50(p)
	}
	return PDD10(p)
}
