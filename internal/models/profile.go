package models

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidCriteria is returned by Criteria.Validate for out-of-range settings.
var ErrInvalidCriteria = errors.New("invalid gamma criteria")

// DefaultDepthProfileSpan is the depth change (mm) between the first and last
// point above which a profile is treated as a depth profile.
const DefaultDepthProfileSpan = 10.0

// Point is a single profile sample
type Point struct {
	// Position is the sample location in mm in the user (scan) frame.
	// Position.Y is the depth axis.
	Position r3.Vec

	// Value is the dose or detector response. For gamma results it holds
	// the local gamma.
	Value float64

	// Value2 is only used by gamma results, where it holds the global gamma.
	Value2 float64
}

// Profile is an ordered sequence of points along the scanned line.
// The first and last points are the spatial extremes of the profile and
// neighbouring points are spatially adjacent.
type Profile []Point

// ProfileKind selects between depth and lateral (or diagonal) analysis
type ProfileKind int

const (
	LateralProfile ProfileKind = iota
	DepthProfile
)

func (k ProfileKind) String() string {
	if k == DepthProfile {
		return "depth"
	}
	return "lateral"
}

// BeamKind selects the depth quality metric (R50 or PDD10)
type BeamKind int

const (
	Photon BeamKind = iota
	Electron
)

func (b BeamKind) String() string {
	if b == Electron {
		return "electron"
	}
	return "photon"
}

// BeamFromEnergyMode derives the beam kind from a treatment machine energy
// mode label such as "6X", "10X-FFF" or "9E".
func BeamFromEnergyMode(label string) BeamKind {
	if strings.Contains(label, "E") {
		return Electron
	}
	return Photon
}

// BeamFromPlan derives the beam kind from the energy mode label and whether
// the plan carries a photon calculation model. Plans without one are
// electron plans.
func BeamFromPlan(label string, hasCalculationModel bool) BeamKind {
	if !hasCalculationModel {
		return Electron
	}
	return BeamFromEnergyMode(label)
}

// Criteria bundles the gamma and convolution settings for one comparison run
type Criteria struct {
	// Percent is the dose difference criterion in percent. Local gamma uses
	// it relative to each measured value, global gamma as an absolute
	// tolerance on the 0-100 scale.
	Percent float64

	// DTA is the distance to agreement in mm
	DTA float64

	// Threshold excludes measured points below this value (percent)
	Threshold float64

	// Sigma is the Gaussian convolution sigma in mm. Zero disables convolution.
	Sigma float64

	// Truncation is the convolution kernel radius in mm
	Truncation float64
}

// Validate checks that the criteria can be used for a gamma evaluation
func (c Criteria) Validate() error {
	switch {
	case !(c.Percent > 0):
		return fmt.Errorf("%w: percent must be positive, got %g", ErrInvalidCriteria, c.Percent)
	case !(c.DTA > 0):
		return fmt.Errorf("%w: DTA must be positive, got %g", ErrInvalidCriteria, c.DTA)
	case !(c.Threshold >= 0):
		return fmt.Errorf("%w: threshold must not be negative, got %g", ErrInvalidCriteria, c.Threshold)
	case !(c.Sigma >= 0):
		return fmt.Errorf("%w: sigma must not be negative, got %g", ErrInvalidCriteria, c.Sigma)
	case !(c.Truncation >= 0):
		return fmt.Errorf("%w: truncation must not be negative, got %g", ErrInvalidCriteria, c.Truncation)
	}
	return nil
}

// First returns the first point of the profile. The profile must not be empty.
func (p Profile) First() Point { return p[0] }

// Last returns the last point of the profile. The profile must not be empty.
func (p Profile) Last() Point { return p[len(p)-1] }

// Values returns the primary values in profile order
func (p Profile) Values() []float64 {
	values := make([]float64, len(p))
	for i, point := range p {
		values[i] = point.Value
	}
	return values
}

// Max returns the largest value in the profile. NaN values are ignored and
// the result is never below zero.
func (p Profile) Max() float64 {
	max := 0.0
	for _, point := range p {
		if point.Value > max {
			max = point.Value
		}
	}
	return max
}

// Scaled returns a copy of the profile with every value multiplied by factor
func (p Profile) Scaled(factor float64) Profile {
	out := make(Profile, len(p))
	for i, point := range p {
		point.Value *= factor
		out[i] = point
	}
	return out
}

// Normalized returns a copy of the profile rescaled so its maximum is 100.
// A profile without a positive maximum is copied unchanged.
func (p Profile) Normalized() Profile {
	max := p.Max()
	if max <= 0 || math.IsInf(max, 1) {
		return p.Scaled(1)
	}
	out := make(Profile, len(p))
	for i, point := range p {
		point.Value = point.Value / max * 100
		out[i] = point
	}
	return out
}

// Extent returns the distance between the first and last points
func (p Profile) Extent() float64 {
	if len(p) == 0 {
		return 0
	}
	return r3.Norm(r3.Sub(p.Last().Position, p.First().Position))
}

// Midpoint returns the position halfway between the first and last points
func (p Profile) Midpoint() r3.Vec {
	if len(p) == 0 {
		return r3.Vec{}
	}
	return r3.Scale(0.5, r3.Add(p.Last().Position, p.First().Position))
}

// Classify reports whether the profile runs along depth. A profile is a
// depth profile when its first and last points differ in depth by more
// than span mm.
func Classify(p Profile, span float64) ProfileKind {
	if len(p) == 0 {
		return LateralProfile
	}
	if math.Abs(p.First().Position.Y-p.Last().Position.Y) > span {
		return DepthProfile
	}
	return LateralProfile
}
