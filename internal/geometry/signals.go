package geometry

import "math"

// NeutralEAR is returned when an eye cannot be measured; it reads as "open"
const NeutralEAR = 0.3

// Rotation is the head pose estimated from the nose tip
type Rotation struct {
	// Pitch is the normalized vertical nose offset minus a 0.3 baseline, scaled by 2
	Pitch float64 `json:"pitch"`
	// Yaw is the horizontal nose offset normalized by inter-eye distance
	Yaw float64 `json:"yaw"`
	// YawAngleDeg is positive when the head turns left
	YawAngleDeg float64 `json:"yaw_angle_deg"`
}

// SmileThresholds holds the three independent smile criteria
type SmileThresholds struct {
	CornerElevation float64 `mapstructure:"corner" yaml:"corner"`
	CheekLift       float64 `mapstructure:"cheek" yaml:"cheek"`
	MouthWidth      float64 `mapstructure:"width" yaml:"width"`
}

// DefaultSmileThresholds returns the empirically tuned smile thresholds
func DefaultSmileThresholds() SmileThresholds {
	return SmileThresholds{
		CornerElevation: 0.02,
		CheekLift:       0.03,
		MouthWidth:      0.045,
	}
}

// Sample is the per-tick geometry derived from one landmark set
type Sample struct {
	EyeAspectRatio float64 `json:"eye_aspect_ratio"`
	HeadYawDeg     float64 `json:"head_yaw_deg"`
	HeadPitch      float64 `json:"head_pitch"`
	YawOffset      float64 `json:"yaw_offset"`
	IsSmiling      bool    `json:"is_smiling"`
}

// EyeAspectRatio calculates the eye aspect ratio for one eye.
// indices are ordered outer corner, inner corner, two upper lid points, two lower lid points.
func EyeAspectRatio(landmarks LandmarkSet, indices []int) float64 {
	if len(indices) < 6 {
		return NeutralEAR
	}

	pts, ok := landmarks.points(indices[:6]...)
	if !ok {
		return NeutralEAR
	}

	// Vertical lid distances
	a := distance2D(pts[2], pts[4])
	b := distance2D(pts[3], pts[5])

	// Horizontal eye width
	c := distance2D(pts[0], pts[1])
	if c == 0 {
		return NeutralEAR
	}

	return (a + b) / (2 * c)
}

// HeadRotation estimates head pitch and yaw from the nose tip position
// relative to the point between the eyes
func HeadRotation(landmarks LandmarkSet) Rotation {
	pts, ok := landmarks.points(NoseTip, LeftEyeOuter, RightEyeOuter, Chin, Forehead)
	if !ok {
		return Rotation{}
	}
	nose, leftEye, rightEye, chin, forehead := pts[0], pts[1], pts[2], pts[3], pts[4]

	eyeCenterX := (leftEye.X + rightEye.X) / 2
	eyeCenterY := (leftEye.Y + rightEye.Y) / 2

	eyeDistance := distance2D(leftEye, rightEye)
	if eyeDistance == 0 {
		return Rotation{}
	}

	faceHeight := math.Abs(forehead.Y - chin.Y)
	if faceHeight == 0 {
		return Rotation{}
	}

	// Turning left moves the nose tip right of the eye center.
	// The 1.2 factor corrects for the lens projection of a real face.
	offset := (nose.X - eyeCenterX) / eyeDistance
	angle := math.Atan(offset*1.2) * 180 / math.Pi

	vertical := (nose.Y - eyeCenterY) / faceHeight

	return Rotation{
		Pitch:       (vertical - 0.3) * 2,
		Yaw:         offset,
		YawAngleDeg: angle,
	}
}

// DetectSmile reports whether any smile criterion holds: mouth corners raised,
// cheeks lifted or mouth widened
func DetectSmile(landmarks LandmarkSet, th SmileThresholds) bool {
	pts, ok := landmarks.points(MouthLeft, MouthRight, LeftCheek, RightCheek)
	if !ok {
		return false
	}
	leftCorner, rightCorner, leftCheek, rightCheek := pts[0], pts[1], pts[2], pts[3]

	mouthWidth := distance2D(leftCorner, rightCorner)
	if mouthWidth > th.MouthWidth {
		return true
	}

	avgCornerY := (leftCorner.Y + rightCorner.Y) / 2

	if mouthWidth > 0 {
		cheekLift := (leftCheek.Y+rightCheek.Y)/2 - avgCornerY
		if cheekLift/mouthWidth > th.CheekLift {
			return true
		}
	}

	top, okTop := landmarks.At(Forehead)
	bottom, okBottom := landmarks.At(Chin)
	if !okTop || !okBottom {
		return false
	}

	faceHeight := bottom.Y - top.Y
	if faceHeight == 0 {
		return false
	}

	// Corners sit below 35% of the face height on a neutral mouth
	elevation := (top.Y + faceHeight*0.35) - avgCornerY
	return elevation/faceHeight > th.CornerElevation
}

// Measure derives every per-tick signal from a landmark set
func Measure(landmarks LandmarkSet, smile SmileThresholds) Sample {
	left := EyeAspectRatio(landmarks, LeftEyeIndices)
	right := EyeAspectRatio(landmarks, RightEyeIndices)
	rot := HeadRotation(landmarks)

	return Sample{
		EyeAspectRatio: (left + right) / 2,
		HeadYawDeg:     rot.YawAngleDeg,
		HeadPitch:      rot.Pitch,
		YawOffset:      rot.Yaw,
		IsSmiling:      DetectSmile(landmarks, smile),
	}
}
