// Package comparison runs the complete measured versus calculated profile
// comparison: reference sampling, detector response convolution, metric
// extraction, normalization and gamma evaluation.
package comparison

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gonum.org/v1/gonum/spatial/r3"

	"profilecompare/internal/models"
	"profilecompare/pkg/convolution"
	"profilecompare/pkg/dose"
	"profilecompare/pkg/gamma"
	"profilecompare/pkg/metrics"
	"profilecompare/pkg/normalize"
)

// ErrEmptyProfile is returned when the measured profile holds no points,
// usually because the input file contains no usable profile
var ErrEmptyProfile = errors.New("measured profile contains no points")

// LineSampler samples the calculated dose along a straight segment given in
// dose frame coordinates, returning count evenly spaced samples including
// both end points
type LineSampler interface {
	SampleLine(ctx context.Context, start, end r3.Vec, count int) (models.Profile, error)
}

// CoordinateMapper converts positions between the user and dose frames
type CoordinateMapper interface {
	Map(pos r3.Vec, from, to dose.Frame) r3.Vec
}

// Params holds the comparison settings
type Params struct {
	// Criteria are the gamma and convolution criteria
	Criteria models.Criteria

	// Beam selects R50 (electrons) or PDD(10) (photons) for depth profiles
	Beam models.BeamKind

	// ResampleFactor is the number of reference samples per measured point
	ResampleFactor int

	// Normalize rescales the reference to the measured profile before gamma
	Normalize bool

	// EarlyExit is the gamma search early exit level, see gamma.Options
	EarlyExit float64

	// DepthProfileSpan is the depth change (mm) that marks a depth profile
	DepthProfileSpan float64

	// NormalizeFraction is the lateral normalization radius as a fraction of FWHM
	NormalizeFraction float64

	// CentralFraction is the central region radius as a fraction of FWHM
	CentralFraction float64

	// NumCores is the number of goroutines for convolution and gamma
	NumCores int

	// Verbose logs each pipeline step
	Verbose bool
}

// DefaultParams returns parameters with the standard settings for criteria
func DefaultParams(criteria models.Criteria) *Params {
	return &Params{
		Criteria:          criteria,
		ResampleFactor:    10,
		Normalize:         true,
		EarlyExit:         gamma.DefaultEarlyExit,
		DepthProfileSpan:  models.DefaultDepthProfileSpan,
		NormalizeFraction: normalize.DefaultCentralFraction,
		CentralFraction:   gamma.DefaultCentralFraction,
		NumCores:          1,
	}
}

// Metric is a scalar dose metric extracted from both profiles
type Metric struct {
	// Name is "FWHM", "R50" or "PDD10"
	Name string

	// Measured and Calculated are the metric values (mm for FWHM and R50,
	// percent for PDD10). They are only meaningful when the matching Found
	// flag is set.
	Measured        float64
	Calculated      float64
	MeasuredFound   bool
	CalculatedFound bool
}

// Difference returns calculated minus measured and whether both were found
func (m Metric) Difference() (float64, bool) {
	if !m.MeasuredFound || !m.CalculatedFound {
		return 0, false
	}
	return m.Calculated - m.Measured, true
}

// Result holds every output of a comparison run
type Result struct {
	// Kind is the detected profile kind
	Kind models.ProfileKind

	// Measured is the measured profile
	Measured models.Profile

	// Reference is the calculated profile as sampled, normalized to 100
	Reference models.Profile

	// Convolved is the reference after convolution and normalization, the
	// profile gamma is computed against
	Convolved models.Profile

	// Metric is the FWHM (lateral) or beam quality metric (depth)
	Metric Metric

	// Normalized reports whether the reference was rescaled to the measurement
	Normalized bool

	// Gamma holds local (Value) and global (Value2) gamma per evaluated point
	Gamma models.Profile

	// Summary holds the gamma statistics
	Summary gamma.Summary
}

// Comparator compares measured profiles against a dose calculation
type Comparator struct {
	// params stores the comparison configuration
	params *Params

	// sampler provides reference dose along a segment
	sampler LineSampler

	// mapper converts between user and dose coordinates
	mapper CoordinateMapper
}

// NewComparator creates a comparator that samples the calculated dose
// through sampler and maps coordinates with mapper
func NewComparator(params *Params, sampler LineSampler, mapper CoordinateMapper) *Comparator {
	return &Comparator{
		params:  params,
		sampler: sampler,
		mapper:  mapper,
	}
}

func (c *Comparator) logf(format string, args ...interface{}) {
	if c.params.Verbose {
		log.Printf(format, args...)
	}
}

// Compare runs the comparison pipeline for a measured profile. Convolution
// and normalization are skipped when disabled or not computable; once the
// reference has been sampled the pipeline always produces a result.
func (c *Comparator) Compare(ctx context.Context, measured models.Profile) (*Result, error) {
	if len(measured) == 0 {
		return nil, ErrEmptyProfile
	}
	if err := c.params.Criteria.Validate(); err != nil {
		return nil, err
	}

	result := &Result{
		Measured: measured,
		Kind:     models.Classify(measured, c.params.DepthProfileSpan),
	}

	// Step 1: Sample the calculated dose along the measured line
	c.logf("Step 1: Sampling calculated dose along %s profile (%d points)...", result.Kind, len(measured))
	reference, err := c.sampleReference(ctx, measured)
	if err != nil {
		return nil, err
	}
	result.Reference = reference

	// Step 2: Emulate the detector response
	c.logf("Step 2: Convolving calculated profile (sigma %.3f mm, truncation %.3f mm)...",
		c.params.Criteria.Sigma, c.params.Criteria.Truncation)
	convolved, err := convolution.NewGaussian(c.params.Criteria, c.params.NumCores).Apply(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("failed to convolve reference profile: %w", err)
	}

	// Step 3: Extract dose metrics and the analysis region
	c.logf("Step 3: Extracting dose metrics...")
	region := gamma.Region{
		Kind:     result.Kind,
		FWHM:     measured.Extent(),
		Center:   measured.Midpoint(),
		Fraction: c.params.CentralFraction,
	}
	if result.Kind == models.DepthProfile {
		if dmax, ok := metrics.DepthOfMax(measured); ok {
			region.DmaxDepth = dmax
		}
		result.Metric = c.depthMetric(measured, convolved)
	} else {
		result.Metric = lateralMetric(measured, convolved, &region)
	}

	// Step 4: Normalize the calculated profile to the measurement
	if c.params.Normalize {
		c.logf("Step 4: Normalizing calculated profile...")
		switch normalize.ModeFor(result.Kind) {
		case normalize.DepthAnchor:
			convolved, result.Normalized = normalize.ByDepthAnchor(measured, convolved)
		case normalize.CentralRegion:
			convolved, result.Normalized = normalize.ByCentralRegion(measured, convolved,
				region.FWHM, region.Center, c.params.NormalizeFraction)
		}
		if !result.Normalized {
			c.logf("Warning: normalization region is undefined, calculated profile left unscaled")
		}
	}
	result.Convolved = convolved

	// Step 5: Gamma evaluation
	c.logf("Step 5: Calculating gamma (%.1f%%/%.1f mm, threshold %.1f%%)...",
		c.params.Criteria.Percent, c.params.Criteria.DTA, c.params.Criteria.Threshold)
	opts := gamma.OptionsFromCriteria(c.params.Criteria, c.params.NumCores)
	opts.EarlyExit = c.params.EarlyExit
	result.Gamma, err = gamma.Evaluate(ctx, measured, convolved, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate gamma: %w", err)
	}
	result.Summary = gamma.Summarize(result.Gamma, region)

	return result, nil
}

// sampleReference extracts the calculated profile between the measured end
// points at ResampleFactor times the measured resolution
func (c *Comparator) sampleReference(ctx context.Context, measured models.Profile) (models.Profile, error) {
	start := c.mapper.Map(measured.First().Position, dose.UserFrame, dose.DoseFrame)
	end := c.mapper.Map(measured.Last().Position, dose.UserFrame, dose.DoseFrame)

	factor := c.params.ResampleFactor
	if factor < 1 {
		factor = 1
	}
	samples, err := c.sampler.SampleLine(ctx, start, end, len(measured)*factor)
	if err != nil {
		return nil, fmt.Errorf("failed to sample calculated dose: %w", err)
	}

	reference := make(models.Profile, len(samples))
	for i, s := range samples {
		reference[i] = models.Point{
			Position: c.mapper.Map(s.Position, dose.DoseFrame, dose.UserFrame),
			Value:    s.Value,
		}
	}
	return reference.Normalized(), nil
}

// depthMetric computes R50 or PDD(10) on both profiles
func (c *Comparator) depthMetric(measured, calculated models.Profile) Metric {
	m := Metric{Name: "PDD10"}
	if c.params.Beam == models.Electron {
		m.Name = "R50"
	}
	m.Measured, m.MeasuredFound = metrics.DepthQuality(measured, c.params.Beam)
	m.Calculated, m.CalculatedFound = metrics.DepthQuality(calculated, c.params.Beam)
	return m
}

// lateralMetric computes the FWHM of both profiles and narrows region to the
// computed field. The calculated FWHM takes precedence over the measured one.
func lateralMetric(measured, calculated models.Profile, region *gamma.Region) Metric {
	m := Metric{Name: "FWHM"}

	if width, center := metrics.FWHM(measured); width != 0 {
		m.Measured, m.MeasuredFound = width, true
		region.FWHM, region.Center = width, center
	}
	if width, center := metrics.FWHM(calculated); width != 0 {
		m.Calculated, m.CalculatedFound = width, true
		region.FWHM, region.Center = width, center
	}
	return m
}
