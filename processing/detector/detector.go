package processing

import (
	"context"
	"image"

	"kitvision/internal/models"
)

// Detector runs the detection model on a single frame.
type Detector interface {
	Detect(ctx context.Context, frame image.Image) ([]models.Detection, error)
	Close() error
}

type Options struct {
	Confidence float32
	IoU        float32
	InputSize  int
}
