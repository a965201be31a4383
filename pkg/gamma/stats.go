package gamma

import (
	"gonum.org/v1/gonum/spatial/r3"

	"profilecompare/internal/models"
)

// DefaultCentralFraction is the radius of the central region around the field
// center as a fraction of the FWHM (the central 80% of the field)
const DefaultCentralFraction = 0.4

// Region describes the clinically relevant core of the field used for the
// central pass rate. Depth profiles use the part beyond the depth of maximum
// dose, lateral profiles the central part of the field width.
type Region struct {
	// Kind is the kind of profile the region belongs to
	Kind models.ProfileKind

	// DmaxDepth is the depth of maximum dose in mm (depth profiles).
	// Zero means unknown.
	DmaxDepth float64

	// FWHM and Center define the lateral region
	FWHM   float64
	Center r3.Vec

	// Fraction is the lateral region radius as a fraction of FWHM
	Fraction float64
}

// Defined reports whether the region can select any points
func (r Region) Defined() bool {
	return r.DmaxDepth > 0 || r.FWHM > 0
}

// BeyondDmax reports whether the region is the part of a depth profile past
// the depth of maximum dose
func (r Region) BeyondDmax() bool {
	return r.Kind == models.DepthProfile && r.DmaxDepth > 0
}

// Label names the region for reports
func (r Region) Label() string {
	if r.BeyondDmax() {
		return "Below Dmax"
	}
	return "Central 80"
}

// Contains reports whether pos lies in the region. Every position is
// decided by exactly one of the two rules.
func (r Region) Contains(pos r3.Vec) bool {
	if r.BeyondDmax() {
		return pos.Y > r.DmaxDepth
	}
	if r.FWHM > 0 {
		return r3.Norm(r3.Sub(pos, r.Center)) < r.FWHM*r.Fraction
	}
	return false
}

// Stats are the aggregate results for one gamma criterion
type Stats struct {
	// PassRate is the percentage of evaluated points with gamma <= 1
	PassRate float64

	// Average and Max gamma over the evaluated points
	Average float64
	Max     float64

	// CentralPassRate is the pass rate restricted to the central region
	CentralPassRate float64
}

// Summary holds both local and global statistics of a gamma result
type Summary struct {
	Local  Stats
	Global Stats

	// Evaluated is the number of points at or above the threshold
	Evaluated int

	// CentralCount is the number of evaluated points inside the region
	CentralCount int

	// CentralAvailable is false when the region is undefined or empty, in
	// which case the central pass rates are zero and must not be reported
	CentralAvailable bool

	// Region is the region the central pass rates refer to
	Region Region
}

type accumulator struct {
	pass, central int
	sum, max      float64
}

func (a *accumulator) add(g float64, inRegion bool) {
	if g <= 1 {
		a.pass++
		if inRegion {
			a.central++
		}
	}
	a.sum += g
	if a.max < g {
		a.max = g
	}
}

func (a accumulator) stats(n, centralCount int) Stats {
	s := Stats{
		PassRate: float64(a.pass) / float64(n) * 100,
		Average:  a.sum / float64(n),
		Max:      a.max,
	}
	if centralCount > 0 {
		s.CentralPassRate = float64(a.central) / float64(centralCount) * 100
	}
	return s
}

// Summarize folds a gamma result into pass rates, averages and maxima for the
// local (Value) and global (Value2) criterion. Points are accumulated in
// profile order.
func Summarize(result models.Profile, region Region) Summary {
	summary := Summary{Evaluated: len(result), Region: region}
	if len(result) == 0 {
		return summary
	}

	var local, global accumulator
	for _, point := range result {
		inRegion := region.Contains(point.Position)
		if inRegion {
			summary.CentralCount++
		}
		local.add(point.Value, inRegion)
		global.add(point.Value2, inRegion)
	}

	summary.Local = local.stats(len(result), summary.CentralCount)
	summary.Global = global.stats(len(result), summary.CentralCount)
	summary.CentralAvailable = region.Defined() && summary.CentralCount > 0
	return summary
}
