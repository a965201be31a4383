// Package normalize rescales a reference profile relative to a measured one
package normalize

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"profilecompare/internal/models"
	"profilecompare/pkg/metrics"
)

// DefaultCentralFraction is the radius of the averaging region around the
// field center as a fraction of the FWHM
const DefaultCentralFraction = 0.1

// Mode selects how the reference profile is rescaled
type Mode int

const (
	// None leaves the reference profile as calculated
	None Mode = iota

	// DepthAnchor matches PDD(10) of both profiles (depth profiles)
	DepthAnchor

	// CentralRegion matches the average over the central region (lateral profiles)
	CentralRegion
)

// ModeFor returns the normalization mode used for a profile kind
func ModeFor(kind models.ProfileKind) Mode {
	if kind == models.DepthProfile {
		return DepthAnchor
	}
	return CentralRegion
}

// ByDepthAnchor scales the reference so its PDD(10) equals the measured one.
// When either PDD(10) cannot be found, or the reference value is not
// positive, the reference is returned unchanged and false.
func ByDepthAnchor(measured, reference models.Profile) (models.Profile, bool) {
	m, ok := metrics.PDD10(measured)
	if !ok {
		return reference, false
	}
	r, ok := metrics.PDD10(reference)
	if !ok || !(r > 0) {
		return reference, false
	}
	return reference.Scaled(m / r), true
}

// ByCentralRegion scales the reference so its average over the points within
// fraction*fwhm of center equals the measured average. An empty region or a
// zero or undefined average on either side leaves the reference unchanged and
// returns false.
func ByCentralRegion(measured, reference models.Profile, fwhm float64, center r3.Vec, fraction float64) (models.Profile, bool) {
	radius := fwhm * fraction

	m, ok := regionMean(measured, center, radius)
	if !ok {
		return reference, false
	}
	r, ok := regionMean(reference, center, radius)
	if !ok || r == 0 {
		return reference, false
	}
	return reference.Scaled(m / r), true
}

// regionMean averages the values of the points within radius of center
func regionMean(p models.Profile, center r3.Vec, radius float64) (float64, bool) {
	var values []float64
	for _, point := range p {
		if r3.Norm(r3.Sub(point.Position, center)) <= radius {
			values = append(values, point.Value)
		}
	}
	if len(values) == 0 {
		return 0, false
	}

	mean := stat.Mean(values, nil)
	if math.IsNaN(mean) || math.IsInf(mean, 0) {
		return 0, false
	}
	return mean, true
}
