package models

import "image"

// DetectionResult is the wire form used by the remote detection server.
// Box is normalized [y1, x1, y2, x2].
type DetectionResult struct {
	ClassID    int       `json:"class_id"`
	Label      string    `json:"label"`
	Confidence float32   `json:"confidence"`
	Box        []float32 `json:"box"`
}

type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

func BoxFromRect(r image.Rectangle) Box {
	return Box{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}
}

func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

// Detection is one object found in a frame, in frame pixel coordinates.
// Label is the name reported by the backend, if any.
type Detection struct {
	ClassID    int
	Label      string
	Confidence float32
	Box        Box
}

// ToDetection scales a normalized wire result to a width x height frame.
func (r DetectionResult) ToDetection(width, height int) (Detection, bool) {
	if len(r.Box) < 4 {
		return Detection{}, false
	}

	w, h := float32(width), float32(height)
	return Detection{
		ClassID:    r.ClassID,
		Label:      r.Label,
		Confidence: r.Confidence,
		Box: Box{
			Y1: int(r.Box[0] * h),
			X1: int(r.Box[1] * w),
			Y2: int(r.Box[2] * h),
			X2: int(r.Box[3] * w),
		},
	}, true
}
