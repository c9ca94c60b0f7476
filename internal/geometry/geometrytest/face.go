// Package geometrytest builds synthetic face-mesh landmark sets for tests
package geometrytest

import (
	"math"

	"github.com/MrCodeEU/livecheck/internal/geometry"
)

// Face describes a frontal synthetic face in normalized image coordinates.
// Eyes sit on y=0.4 with a 0.2 inter-eye distance, forehead at 0.2, chin at 0.8.
type Face struct {
	YawDeg     float64
	Pitch      float64
	EAR        float64
	MouthWidth float64
}

// New returns a neutral face: eyes open, looking straight ahead, not smiling
func New() Face {
	return Face{EAR: 0.3, MouthWidth: 0.04}
}

// WithYaw returns a copy turned to the given yaw angle
func (f Face) WithYaw(deg float64) Face {
	f.YawDeg = deg
	return f
}

// WithPitch returns a copy with the given normalized pitch
func (f Face) WithPitch(p float64) Face {
	f.Pitch = p
	return f
}

// WithEAR returns a copy whose eyes have the given aspect ratio
func (f Face) WithEAR(ear float64) Face {
	f.EAR = ear
	return f
}

// Smiling returns a copy with a widened mouth
func (f Face) Smiling() Face {
	f.MouthWidth = 0.06
	return f
}

// Landmarks renders the face into a complete landmark set
func (f Face) Landmarks() geometry.LandmarkSet {
	set := make(geometry.LandmarkSet, geometry.NumLandmarks)
	for i := range set {
		set[i] = geometry.Point{X: 0.5, Y: 0.5}
	}

	const (
		eyeY       = 0.4
		eyeWidth   = 0.06
		faceTop    = 0.2
		faceBottom = 0.8
	)
	faceHeight := faceBottom - faceTop
	lid := f.EAR * eyeWidth / 2

	set[geometry.Forehead] = geometry.Point{X: 0.5, Y: faceTop}
	set[geometry.Chin] = geometry.Point{X: 0.5, Y: faceBottom}

	placeEye(set, geometry.LeftEyeIndices, 0.40, 0.46, eyeY, lid)
	placeEye(set, geometry.RightEyeIndices, 0.54, 0.60, eyeY, lid)

	offset := math.Tan(f.YawDeg*math.Pi/180) / 1.2 * 0.2
	noseY := eyeY + (f.Pitch/2+0.3)*faceHeight
	set[geometry.NoseTip] = geometry.Point{X: 0.5 + offset, Y: noseY}

	half := f.MouthWidth / 2
	set[geometry.MouthLeft] = geometry.Point{X: 0.5 - half, Y: 0.7}
	set[geometry.MouthRight] = geometry.Point{X: 0.5 + half, Y: 0.7}
	set[geometry.LeftCheek] = geometry.Point{X: 0.3, Y: 0.6}
	set[geometry.RightCheek] = geometry.Point{X: 0.7, Y: 0.6}

	return set
}

// placeEye lays out a six-point eye contour with corners at x0 and x1
func placeEye(set geometry.LandmarkSet, idx []int, x0, x1, y, lid float64) {
	set[idx[0]] = geometry.Point{X: x0, Y: y}
	set[idx[1]] = geometry.Point{X: x1, Y: y}
	mid1 := x0 + (x1-x0)/3
	mid2 := x0 + 2*(x1-x0)/3
	set[idx[2]] = geometry.Point{X: mid1, Y: y - lid}
	set[idx[3]] = geometry.Point{X: mid2, Y: y - lid}
	set[idx[4]] = geometry.Point{X: mid1, Y: y + lid}
	set[idx[5]] = geometry.Point{X: mid2, Y: y + lid}
}
