package dose

import "gonum.org/v1/gonum/spatial/r3"

// Frame identifies a coordinate system positions can be expressed in
type Frame int

const (
	// UserFrame is the scan frame of measured profiles (mm, Y is depth)
	UserFrame Frame = iota

	// DoseFrame is the native frame of the dose calculation
	DoseFrame
)

func (f Frame) String() string {
	if f == DoseFrame {
		return "dose"
	}
	return "user"
}

// OriginMapper converts between the user frame and a dose frame whose axes
// are parallel to it, with the user origin located at Origin in dose
// coordinates.
type OriginMapper struct {
	Origin r3.Vec
}

// Identity is a mapper for dose grids that already use the user frame
var Identity = OriginMapper{}

// Map converts pos from one frame to the other
func (m OriginMapper) Map(pos r3.Vec, from, to Frame) r3.Vec {
	switch {
	case from == to:
		return pos
	case from == UserFrame:
		return r3.Add(pos, m.Origin)
	default:
		return r3.Sub(pos, m.Origin)
	}
}
