// Package geometry converts face-mesh landmarks into eye, head and mouth signals
package geometry

import "math"

// NumLandmarks is the size of a complete face-mesh landmark set
const NumLandmarks = 468

// Face-mesh landmark indices used by the detectors
const (
	NoseTip       = 4
	Forehead      = 10
	Chin          = 152
	LeftEyeOuter  = 33
	RightEyeOuter = 263
	MouthLeft     = 61
	MouthRight    = 291
	LeftCheek     = 234
	RightCheek    = 454
)

// Six-point eye contours: two horizontal corners, two upper lid points, two lower lid points
var (
	LeftEyeIndices  = []int{33, 133, 159, 158, 145, 153}
	RightEyeIndices = []int{362, 263, 386, 385, 374, 380}
)

// Point is a normalized 3D landmark position
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// LandmarkSet is an ordered face-mesh landmark sequence.
// A nil or short set is valid input and means some points are unavailable.
type LandmarkSet []Point

// At returns the landmark at index i and whether it is present
func (s LandmarkSet) At(i int) (Point, bool) {
	if i < 0 || i >= len(s) {
		return Point{}, false
	}
	return s[i], true
}

// Complete reports whether the set carries every face-mesh point
func (s LandmarkSet) Complete() bool {
	return len(s) >= NumLandmarks
}

// distance2D is the image-plane distance between two landmarks
func distance2D(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// points fetches several landmarks at once; ok is false if any is missing
func (s LandmarkSet) points(indices ...int) ([]Point, bool) {
	pts := make([]Point, len(indices))
	for i, idx := range indices {
		p, ok := s.At(idx)
		if !ok {
			return nil, false
		}
		pts[i] = p
	}
	return pts, true
}
