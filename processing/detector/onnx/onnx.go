// Package onnx runs YOLO detection models exported to ONNX through the
// OpenCV DNN module.
package onnx

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"

	"kitvision/internal/models"
	processing "kitvision/processing/detector"
)

type Detector struct {
	opts   processing.Options
	logger *slog.Logger

	mu  sync.Mutex
	net gocv.Net
}

func New(path string, opts processing.Options, logger *slog.Logger) (*Detector, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.InputSize <= 0 {
		opts.InputSize = 640
	}

	net := gocv.ReadNetFromONNX(path)
	if net.Empty() {
		return nil, fmt.Errorf("could not load model %s", path)
	}

	logger.Info("loaded onnx model", "path", path, "input", opts.InputSize,
		"confidence", opts.Confidence, "iou", opts.IoU)

	return &Detector{opts: opts, logger: logger, net: net}, nil
}

func (d *Detector) Detect(ctx context.Context, frame image.Image) ([]models.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	defer mat.Close()

	size := d.opts.InputSize
	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	d.mu.Unlock()
	defer out.Close()

	layout, err := processing.NewHeadLayout(out.Size())
	if err != nil {
		return nil, err
	}

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read model output: %w", err)
	}

	bounds := frame.Bounds()
	scaleX := float32(bounds.Dx()) / float32(size)
	scaleY := float32(bounds.Dy()) / float32(size)

	candidates, err := processing.DecodeYOLO(data, layout, d.opts.Confidence, scaleX, scaleY)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	rects := make([]image.Rectangle, len(candidates))
	scores := make([]float32, len(candidates))
	for i, c := range candidates {
		rects[i] = c.Rect
		scores[i] = c.Score
	}

	keep := gocv.NMSBoxes(rects, scores, d.opts.Confidence, d.opts.IoU)

	detections := make([]models.Detection, 0, len(keep))
	for _, i := range keep {
		c := candidates[i]
		detections = append(detections, models.Detection{
			ClassID:    c.ClassID,
			Confidence: c.Score,
			Box:        models.BoxFromRect(c.Rect),
		})
	}

	return detections, nil
}

func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
