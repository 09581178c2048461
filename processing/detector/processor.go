package processing

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"kitvision/internal/dataset"
	"kitvision/processing/capture"
)

// Stats is the throughput of the running pipeline.
type Stats struct {
	FPS     uint
	Latency time.Duration
}

// Sink receives annotated frames. Done is closed when the viewer wants to stop.
type Sink interface {
	Show(frame image.Image, stats Stats)
	Done() <-chan struct{}
}

type Processor struct {
	streamer capture.VideoStreamer
	detector Detector
	names    dataset.ClassNames
	logger   *slog.Logger

	outWidth  int
	outHeight int

	mu    sync.RWMutex
	stats Stats
}

func NewProcessor(streamer capture.VideoStreamer, det Detector, names dataset.ClassNames, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Processor{
		streamer: streamer,
		detector: det,
		names:    names,
		logger:   logger,
	}
}

// SetOutputSize makes Run resize every annotated frame to width x height.
func (p *Processor) SetOutputSize(width, height int) {
	p.outWidth, p.outHeight = width, height
}

func (p *Processor) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

// Run reads frames until the stream ends, the capture fails, the sink is done
// or ctx is cancelled. The streamer is always stopped on return.
func (p *Processor) Run(ctx context.Context, sink Sink) error {
	defer p.streamer.Stop()
	if err := p.streamer.Start(); err != nil {
		return fmt.Errorf("could not open video source: %w", err)
	}

	frames := p.streamer.FrameChan()
	errs := p.streamer.ErrorChan()

	var frameCount uint
	lastFpsUpdate := time.Now()
	processed := 0

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				p.logger.Info("end of video stream", "frames", processed)
				return nil
			}
			if frame == nil {
				continue
			}

			start := time.Now()

			out, err := p.process(ctx, frame)
			if err != nil {
				return err
			}

			frameCount++
			processed++

			p.mu.Lock()
			p.stats.Latency = time.Since(start)
			if time.Since(lastFpsUpdate) >= time.Second {
				p.stats.FPS = frameCount
				frameCount = 0
				lastFpsUpdate = time.Now()
			}
			stats := p.stats
			p.mu.Unlock()

			sink.Show(out, stats)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			return fmt.Errorf("capture: %w", err)

		case <-sink.Done():
			p.logger.Info("viewer closed", "frames", processed)
			return nil

		case <-ctx.Done():
			p.logger.Info("detection interrupted", "frames", processed)
			return nil
		}
	}
}

func (p *Processor) process(ctx context.Context, frame image.Image) (image.Image, error) {
	detections, err := p.detector.Detect(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}

	annotated, err := Annotate(frame, detections, p.names)
	if err != nil {
		return nil, err
	}

	return Resize(annotated, p.outWidth, p.outHeight), nil
}
