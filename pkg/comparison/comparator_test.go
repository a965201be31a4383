package comparison

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"profilecompare/internal/models"
	"profilecompare/pkg/dose"
	"profilecompare/pkg/gamma"
)

// fieldProfile is a symmetric field with a 100% plateau inside |x| <= 5 mm
// falling linearly to 25% at |x| = 20 mm, sampled every millimetre
func fieldProfile(offset r3.Vec) models.Profile {
	var p models.Profile
	for x := -20; x <= 20; x++ {
		v := 100.0
		if ax := math.Abs(float64(x)); ax > 5 {
			v = 100 - 5*(ax-5)
		}
		p = append(p, models.Point{Position: r3.Add(r3.Vec{X: float64(x)}, offset), Value: v})
	}
	return p
}

// depthProfile rises from 20% at the surface to 100% at 15 mm and then falls
// by 0.5% per mm, sampled every 5 mm down to 200 mm
func depthProfile() models.Profile {
	var p models.Profile
	for y := 0; y <= 200; y += 5 {
		d := float64(y)
		v := 100 - (d-15)*0.5
		if d < 15 {
			v = 20 + d*16/3
		}
		p = append(p, models.Point{Position: r3.Vec{Y: d}, Value: v})
	}
	return p
}

func testParams() *Params {
	params := DefaultParams(models.Criteria{Percent: 3, DTA: 1, Threshold: 20})
	params.NumCores = 2
	return params
}

func TestCompareLateralSelfConsistent(t *testing.T) {
	measured := fieldProfile(r3.Vec{})
	c := NewComparator(testParams(), dose.NewProfileSampler(fieldProfile(r3.Vec{})), dose.Identity)

	result, err := c.Compare(context.Background(), measured)
	require.NoError(t, err)

	assert.Equal(t, models.LateralProfile, result.Kind)
	assert.Len(t, result.Reference, len(measured)*10)
	assert.Len(t, result.Convolved, len(measured)*10)
	assert.True(t, result.Normalized)

	assert.Equal(t, "FWHM", result.Metric.Name)
	assert.True(t, result.Metric.MeasuredFound)
	assert.True(t, result.Metric.CalculatedFound)
	assert.InDelta(t, 30.0, result.Metric.Measured, 1e-9)
	assert.InDelta(t, 30.0, result.Metric.Calculated, 0.2)
	diff, ok := result.Metric.Difference()
	assert.True(t, ok)
	assert.InDelta(t, 0.0, diff, 0.2)

	s := result.Summary
	assert.Equal(t, len(measured), s.Evaluated)
	assert.Equal(t, 100.0, s.Global.PassRate)
	assert.Equal(t, 100.0, s.Local.PassRate)
	assert.Less(t, s.Global.Max, 0.5)
	assert.True(t, s.CentralAvailable)
	assert.Equal(t, 100.0, s.Global.CentralPassRate)
	assert.Equal(t, "Central 80", s.Region.Label())
	// Calculated FWHM defines the region
	assert.Equal(t, result.Metric.Calculated, s.Region.FWHM)
}

func TestCompareMapsBetweenFrames(t *testing.T) {
	origin := r3.Vec{X: 5, Z: -2}
	measured := fieldProfile(r3.Vec{})
	mapper := dose.OriginMapper{Origin: origin}

	// The calculation lives in dose coordinates
	shifted := NewComparator(testParams(), dose.NewProfileSampler(fieldProfile(origin)), mapper)
	got, err := shifted.Compare(context.Background(), measured)
	require.NoError(t, err)

	plain := NewComparator(testParams(), dose.NewProfileSampler(fieldProfile(r3.Vec{})), dose.Identity)
	want, err := plain.Compare(context.Background(), measured)
	require.NoError(t, err)

	// Reference positions are reported in the user frame
	assert.InDelta(t, measured.First().Position.X, got.Reference.First().Position.X, 1e-9)
	assert.InDelta(t, measured.Last().Position.X, got.Reference.Last().Position.X, 1e-9)
	assert.InDelta(t, 0.0, got.Reference.Last().Position.Z, 1e-9)
	assert.InDelta(t, want.Summary.Global.Average, got.Summary.Global.Average, 1e-9)
	assert.InDelta(t, want.Metric.Calculated, got.Metric.Calculated, 1e-9)
}

func TestCompareDepthPhoton(t *testing.T) {
	measured := depthProfile()
	params := testParams()
	params.Beam = models.Photon
	c := NewComparator(params, dose.NewProfileSampler(depthProfile()), dose.Identity)

	result, err := c.Compare(context.Background(), measured)
	require.NoError(t, err)

	assert.Equal(t, models.DepthProfile, result.Kind)
	assert.Equal(t, "PDD10", result.Metric.Name)
	assert.InDelta(t, 57.5, result.Metric.Measured, 1e-9)
	assert.InDelta(t, 57.5, result.Metric.Calculated, 0.2)
	assert.True(t, result.Normalized)

	s := result.Summary
	assert.Equal(t, "Below Dmax", s.Region.Label())
	assert.Equal(t, 15.0, s.Region.DmaxDepth)
	assert.True(t, s.CentralAvailable)
	assert.Less(t, s.Evaluated, len(measured))
	assert.Equal(t, 100.0, s.Global.PassRate)
}

func TestCompareDepthElectronUsesR50(t *testing.T) {
	params := testParams()
	params.Beam = models.Electron
	c := NewComparator(params, dose.NewProfileSampler(depthProfile()), dose.Identity)

	result, err := c.Compare(context.Background(), depthProfile())
	require.NoError(t, err)
	assert.Equal(t, "R50", result.Metric.Name)
	assert.True(t, result.Metric.MeasuredFound)
	// First 50% crossing lies in the build up region between 5 and 10 mm
	assert.InDelta(t, 5+(50-20-80.0/3)/(80.0/3)*5, result.Metric.Measured, 1e-9)
}

func TestCompareWithoutNormalization(t *testing.T) {
	params := testParams()
	params.Normalize = false
	c := NewComparator(params, dose.NewProfileSampler(fieldProfile(r3.Vec{})), dose.Identity)

	result, err := c.Compare(context.Background(), fieldProfile(r3.Vec{}))
	require.NoError(t, err)
	assert.False(t, result.Normalized)
	assert.Equal(t, result.Reference, result.Convolved)
}

func TestCompareSinglePoint(t *testing.T) {
	var flat models.Profile
	for x := -10; x <= 10; x++ {
		flat = append(flat, models.Point{Position: r3.Vec{X: float64(x)}, Value: 80})
	}
	measured := models.Profile{{Position: r3.Vec{}, Value: 100}}
	c := NewComparator(testParams(), dose.NewProfileSampler(flat), dose.Identity)

	result, err := c.Compare(context.Background(), measured)
	require.NoError(t, err)

	assert.Equal(t, models.LateralProfile, result.Kind)
	require.Len(t, result.Reference, 10)
	for _, point := range result.Reference {
		assert.Equal(t, r3.Vec{}, point.Position)
		assert.Equal(t, 100.0, point.Value)
	}
	assert.False(t, result.Metric.MeasuredFound)
	assert.False(t, result.Metric.CalculatedFound)

	s := result.Summary
	assert.Equal(t, 1, s.Evaluated)
	assert.Equal(t, 100.0, s.Local.PassRate)
	assert.Equal(t, 100.0, s.Global.PassRate)
	assert.False(t, s.CentralAvailable)
}

type failingSampler struct{ err error }

func (f failingSampler) SampleLine(context.Context, r3.Vec, r3.Vec, int) (models.Profile, error) {
	return nil, f.err
}

func TestCompareErrors(t *testing.T) {
	ctx := context.Background()
	sampler := dose.NewProfileSampler(fieldProfile(r3.Vec{}))

	_, err := NewComparator(testParams(), sampler, dose.Identity).Compare(ctx, nil)
	assert.True(t, errors.Is(err, ErrEmptyProfile))

	invalid := testParams()
	invalid.Criteria.DTA = 0
	_, err = NewComparator(invalid, sampler, dose.Identity).Compare(ctx, fieldProfile(r3.Vec{}))
	assert.True(t, errors.Is(err, models.ErrInvalidCriteria))

	sentinel := errors.New("no dose grid")
	_, err = NewComparator(testParams(), failingSampler{sentinel}, dose.Identity).Compare(ctx, fieldProfile(r3.Vec{}))
	assert.True(t, errors.Is(err, sentinel))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = NewComparator(testParams(), sampler, dose.Identity).Compare(cancelled, fieldProfile(r3.Vec{}))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestMetricDifference(t *testing.T) {
	m := Metric{Name: "FWHM", Measured: 30, Calculated: 31, MeasuredFound: true}
	_, ok := m.Difference()
	assert.False(t, ok)

	m.CalculatedFound = true
	diff, ok := m.Difference()
	assert.True(t, ok)
	assert.Equal(t, 1.0, diff)
}

func TestWriteReport(t *testing.T) {
	result := &Result{
		Kind:     models.LateralProfile,
		Measured: fieldProfile(r3.Vec{}),
		Metric: Metric{
			Name: "FWHM", Measured: 30, Calculated: 30.46,
			MeasuredFound: true, CalculatedFound: true,
		},
		Normalized: true,
		Summary: gamma.Summary{
			Local:            gamma.Stats{PassRate: 97.56, Average: 0.344, Max: 1.257, CentralPassRate: 100},
			Global:           gamma.Stats{PassRate: 100, Average: 0.123, Max: 0.5, CentralPassRate: 100},
			Evaluated:        41,
			CentralCount:     24,
			CentralAvailable: true,
			Region:           gamma.Region{Kind: models.LateralProfile, FWHM: 30},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, result))
	out := buf.String()

	assert.Contains(t, out, "3.00 cm")
	assert.Contains(t, out, "3.05 cm")
	assert.Contains(t, out, "0.05 cm")
	assert.Contains(t, out, "97.6")
	assert.Contains(t, out, "Central 80 pass rate")
	assert.Contains(t, out, "1.26")
	assert.Contains(t, out, "yes")
}

func TestWriteReportMissingMetric(t *testing.T) {
	result := &Result{
		Kind:     models.DepthProfile,
		Measured: depthProfile(),
		Metric:   Metric{Name: "PDD10", Measured: 57.5, MeasuredFound: true},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, result))
	out := buf.String()

	assert.Contains(t, out, "57.50 %")
	assert.Contains(t, out, "n/a")
	assert.NotContains(t, out, "difference")
	assert.NotContains(t, out, "Pass rate")
}
