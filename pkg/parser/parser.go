// Package parser reads measured dose profiles from detector text exports.
//
// Two formats are supported:
//   - the dense four-column water tank export (.snctxt), where each point is a
//     tab-separated "x y z value" line with positions in cm
//   - the detector array export (.txt), where a header line selects the axis
//     and each point is a tab-separated "position value" line
//
// Only the first contiguous block of points in a file is read. The returned
// profile is normalized so its maximum value is 100.
package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"profilecompare/internal/models"
)

var (
	// ErrInvalidArgument is returned for a missing file name or axis selector
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnknownFormat is returned by ParseFile for unsupported file extensions
	ErrUnknownFormat = errors.New("unknown profile file format")
)

const (
	// DefaultMinSeparation is the minimum distance (mm) between consecutive
	// points of a dense profile. Closer points are dropped.
	DefaultMinSeparation = 0.05

	// DefaultEffectiveDepth is the effective measurement depth (mm) of the
	// detector array relative to its surface.
	DefaultEffectiveDepth = 9.4

	cmToMM = 10.0
)

var (
	densePattern = regexp.MustCompile(`\t([-\d.]+)\t([-\d.]+)\t([-\d.]+)\t([\d.]+)`)
	axisPattern  = regexp.MustCompile(`\t([-\d.]+)\t([-\d.]+)`)
)

// Axis selects which profile of a detector array export is read
type Axis string

const (
	XAxis            Axis = "X Axis"
	YAxis            Axis = "Y Axis"
	PositiveDiagonal Axis = "Positive Diagonal"
	NegativeDiagonal Axis = "Negative Diagonal"
)

// Axes lists the supported axis selectors
var Axes = []Axis{XAxis, YAxis, PositiveDiagonal, NegativeDiagonal}

// ParseAxisName converts a selector such as "X Axis" into an Axis.
// Short forms ("x", "y", "pd", "nd") are accepted as well.
func ParseAxisName(name string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "x", "x axis":
		return XAxis, nil
	case "y", "y axis":
		return YAxis, nil
	case "pd", "positive diagonal":
		return PositiveDiagonal, nil
	case "nd", "negative diagonal":
		return NegativeDiagonal, nil
	}
	return "", fmt.Errorf("%w: unknown axis %q", ErrInvalidArgument, name)
}

func (a Axis) valid() bool {
	for _, axis := range Axes {
		if a == axis {
			return true
		}
	}
	return false
}

// header returns the line prefix that starts the block for this axis
func (a Axis) header() string {
	return "Detector ID\t" + string(a) + " Position(cm)"
}

// position maps a detector array position (cm) onto the comparison frame
func (a Axis) position(x, depth float64) r3.Vec {
	mm := x * cmToMM
	switch a {
	case XAxis:
		return r3.Vec{X: mm, Y: depth}
	case YAxis:
		return r3.Vec{Y: depth, Z: mm}
	case PositiveDiagonal:
		return r3.Vec{X: mm / math.Sqrt2, Y: depth, Z: mm / math.Sqrt2}
	default:
		return r3.Vec{X: mm / math.Sqrt2, Y: depth, Z: -mm / math.Sqrt2}
	}
}

// Options controls parsing details
type Options struct {
	// MinSeparation is the duplicate suppression distance for dense profiles in mm
	MinSeparation float64

	// EffectiveDepth is the depth (mm) assigned to detector array points
	EffectiveDepth float64
}

// DefaultOptions returns the standard parsing options
func DefaultOptions() Options {
	return Options{
		MinSeparation:  DefaultMinSeparation,
		EffectiveDepth: DefaultEffectiveDepth,
	}
}

// ParseDense reads the first block of four-column points from r.
//
// Device axes are (x, y, z) in cm; the returned positions are in mm with the
// second and third axes swapped, so device z becomes the depth axis (Y).
// A point within opts.MinSeparation of the previously accepted point is
// skipped. A reader without any point lines yields an empty profile.
func ParseDense(r io.Reader, opts Options) (models.Profile, error) {
	profile := models.Profile{}
	matched := 0

	err := scanLines(r, func(line string) bool {
		fields, ok := matchFloats(densePattern, line)
		if !ok {
			// End of the first block
			return matched == 0
		}
		matched++

		point := models.Point{
			Position: r3.Vec{
				X: fields[0] * cmToMM,
				Y: fields[2] * cmToMM,
				Z: fields[1] * cmToMM,
			},
			Value: fields[3],
		}

		if len(profile) == 0 || r3.Norm(r3.Sub(profile.Last().Position, point.Position)) > opts.MinSeparation {
			profile = append(profile, point)
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	return profile.Normalized(), nil
}

// ParseAxis reads the block of two-column points that follows the header
// for axis. Lines before the header are ignored.
func ParseAxis(r io.Reader, axis Axis, opts Options) (models.Profile, error) {
	if axis == "" || !axis.valid() {
		return nil, fmt.Errorf("%w: axis selector %q", ErrInvalidArgument, axis)
	}

	profile := models.Profile{}
	header := axis.header()
	ready := false

	err := scanLines(r, func(line string) bool {
		if strings.HasPrefix(line, header) {
			ready = true
		}

		fields, ok := matchFloats(axisPattern, line)
		if ready && ok {
			profile = append(profile, models.Point{
				Position: axis.position(fields[0], opts.EffectiveDepth),
				Value:    fields[1],
			})
			return true
		}
		return len(profile) == 0
	})
	if err != nil {
		return nil, err
	}

	return profile.Normalized(), nil
}

// ParseDenseFile opens fileName and parses it with ParseDense
func ParseDenseFile(fileName string, opts Options) (models.Profile, error) {
	f, err := openProfile(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseDense(f, opts)
}

// ParseAxisFile opens fileName and parses it with ParseAxis
func ParseAxisFile(fileName string, axis Axis, opts Options) (models.Profile, error) {
	if axis == "" {
		return nil, fmt.Errorf("%w: axis selector must not be empty", ErrInvalidArgument)
	}
	f, err := openProfile(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseAxis(f, axis, opts)
}

// ParseFile picks the parser from the file extension: ".snctxt" files are
// dense water tank exports, ".txt" files are detector array exports read
// along axis.
func ParseFile(fileName string, axis Axis, opts Options) (models.Profile, error) {
	if fileName == "" {
		return nil, fmt.Errorf("%w: file name must not be empty", ErrInvalidArgument)
	}

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".snctxt":
		return ParseDenseFile(fileName, opts)
	case ".txt":
		return ParseAxisFile(fileName, axis, opts)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, fileName)
}

func openProfile(fileName string) (*os.File, error) {
	if fileName == "" {
		return nil, fmt.Errorf("%w: file name must not be empty", ErrInvalidArgument)
	}
	f, err := os.Open(fileName)
	if err != nil {
		return nil, fmt.Errorf("error opening profile file: %w", err)
	}
	return f, nil
}

// scanLines feeds each line of r to fn until fn returns false or the input ends
func scanLines(r io.Reader, fn func(line string) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if !fn(line) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading profile file: %w", err)
	}
	return nil
}

// matchFloats applies pattern to line and parses every submatch. A line with
// a submatch that is not a valid number (e.g. "1.2.3") does not match.
func matchFloats(pattern *regexp.Regexp, line string) ([]float64, bool) {
	m := pattern.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	values := make([]float64, len(m)-1)
	for i, s := range m[1:] {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		values[i] = v
	}
	return values, true
}
