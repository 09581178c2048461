package processing

import (
	"fmt"
	"image"
)

// Candidate is a decoded box before non-max suppression.
type Candidate struct {
	Rect    image.Rectangle
	Score   float32
	ClassID int
}

// HeadLayout describes a YOLOv8/11 detection head output of shape
// [1, 4+classes, anchors] or its transpose [1, anchors, 4+classes].
type HeadLayout struct {
	Attrs      int
	Anchors    int
	Transposed bool
}

func NewHeadLayout(shape []int) (HeadLayout, error) {
	if len(shape) != 3 || shape[0] != 1 {
		return HeadLayout{}, fmt.Errorf("unexpected output shape %v", shape)
	}

	l := HeadLayout{Attrs: shape[1], Anchors: shape[2]}
	if l.Attrs > l.Anchors {
		l = HeadLayout{Attrs: shape[2], Anchors: shape[1], Transposed: true}
	}
	if l.Attrs < 5 {
		return HeadLayout{}, fmt.Errorf("output shape %v has no class scores", shape)
	}
	return l, nil
}

func (l HeadLayout) at(data []float32, attr, anchor int) float32 {
	if l.Transposed {
		return data[anchor*l.Attrs+attr]
	}
	return data[attr*l.Anchors+anchor]
}

// DecodeYOLO turns raw head output into candidates whose best class score
// reaches minScore. Box coordinates are in model input pixels and are scaled
// by scaleX/scaleY into frame pixels.
func DecodeYOLO(data []float32, l HeadLayout, minScore float32, scaleX, scaleY float32) ([]Candidate, error) {
	if len(data) < l.Attrs*l.Anchors {
		return nil, fmt.Errorf("output has %d values, want %d", len(data), l.Attrs*l.Anchors)
	}

	var out []Candidate
	for i := 0; i < l.Anchors; i++ {
		best, bestScore := -1, float32(0)
		for c := 4; c < l.Attrs; c++ {
			if s := l.at(data, c, i); s > bestScore {
				best, bestScore = c-4, s
			}
		}
		if best < 0 || bestScore < minScore {
			continue
		}

		cx, cy := l.at(data, 0, i), l.at(data, 1, i)
		w, h := l.at(data, 2, i), l.at(data, 3, i)

		out = append(out, Candidate{
			Rect: image.Rect(
				int((cx-w/2)*scaleX),
				int((cy-h/2)*scaleY),
				int((cx+w/2)*scaleX),
				int((cy+h/2)*scaleY),
			),
			Score:   bestScore,
			ClassID: best,
		})
	}

	return out, nil
}
