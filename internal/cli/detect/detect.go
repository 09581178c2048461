// Package detect implements the detect command. It is kept apart from the
// other commands because it links OpenCV and the windowing toolkit.
package detect

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"kitvision/internal/cli/commands"
	"kitvision/internal/config"
	"kitvision/internal/dataset"
	"kitvision/internal/fsutil"
	"kitvision/internal/ui"
	"kitvision/processing/capture"
	processing "kitvision/processing/detector"
	"kitvision/processing/detector/onnx"
)

// NewDetectCommand creates the detect command.
func NewDetectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Run the detector on a video file or camera",
		Long: `Read frames from a video file or camera, draw a labeled box around every
detected kit and show the result in a window. Press q or close the window to
stop. The model is an ONNX export of the trained weights, or a ws:// URL of a
detection server.`,
		Example: `  kitvision detect --model models/best.onnx --source match.mp4
  kitvision detect --model models/best.onnx --source 0 --resolution 1280x720
  kitvision detect --model ws://localhost:8765 --source 0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDetect(cmd)
		},
	}

	f := cmd.Flags()
	f.String("model", "", "trained model (.onnx) or detection server URL")
	f.String("source", "", "video file path or camera index")
	f.String("resolution", "", "display resolution as WxH, e.g. 1280x720")
	f.String("data", "", "dataset descriptor with class names")
	f.Float64("conf", 0, "minimum detection confidence")
	f.Float64("iou", 0, "non-max suppression IoU threshold")
	f.Uint("fps", 0, "resample the source to this frame rate")

	config.BindFlag(f, "model", "detect.model")
	config.BindFlag(f, "source", "detect.source")
	config.BindFlag(f, "resolution", "detect.resolution")
	config.BindFlag(f, "data", "detect.descriptor")
	config.BindFlag(f, "conf", "detect.confidence")
	config.BindFlag(f, "iou", "detect.iou")
	config.BindFlag(f, "fps", "detect.fps")

	return cmd
}

func runDetect(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg := commands.GetConfig(ctx).Detect
	logger := commands.GetLogger(ctx)

	if cfg.Model == "" || cfg.Source == "" {
		return fmt.Errorf("both --model and --source are required")
	}

	var width, height int
	if cfg.Resolution != "" {
		w, h, err := config.ParseResolution(cfg.Resolution)
		if err != nil {
			logger.Error("invalid resolution", "error", err)
			return nil
		}
		width, height = w, h
	}

	names := loadNames(cfg.Descriptor, logger)

	det, err := openDetector(ctx, cfg, logger)
	if err != nil {
		logger.Error("could not load model", "model", cfg.Model, "error", err)
		return nil
	}
	defer det.Close()

	streamer, err := capture.NewStreamer(cfg.Source, capture.Options{
		FPS:           cfg.FPS,
		CaptureWidth:  cfg.CaptureWidth,
		CaptureHeight: cfg.CaptureHeight,
	})
	if err != nil {
		logger.Error("could not open video source", "source", cfg.Source, "error", err)
		return nil
	}

	proc := processing.NewProcessor(streamer, det, names, logger)
	proc.SetOutputSize(width, height)

	logger.Info("starting detection", "model", cfg.Model, "source", cfg.Source, "classes", len(names))

	viewer := ui.NewViewer(cfg.WindowTitle, width, height, cfg.FPS)
	var runErr error
	viewer.Run(func() {
		runErr = proc.Run(ctx, viewer)
	})

	if runErr != nil {
		logger.Error("detection stopped", "error", runErr)
	}
	return nil
}

func openDetector(ctx context.Context, cfg config.DetectConfig, logger *slog.Logger) (processing.Detector, error) {
	kind, err := processing.ResolveModel(cfg.Model)
	if err != nil {
		return nil, err
	}

	switch kind {
	case processing.ModelRemote:
		return processing.DialRemoteDetector(ctx, cfg.Model, logger)
	default:
		if !fsutil.Exists(cfg.Model) {
			return nil, fmt.Errorf("model file %s not found", cfg.Model)
		}
		return onnx.New(cfg.Model, processing.Options{
			Confidence: float32(cfg.Confidence),
			IoU:        float32(cfg.IoU),
			InputSize:  cfg.InputSize,
		}, logger)
	}
}

// loadNames reads class names from the dataset descriptor. Without one every
// detection is labeled Unknown.
func loadNames(path string, logger *slog.Logger) dataset.ClassNames {
	if path == "" {
		return nil
	}
	desc, err := dataset.LoadDescriptor(path)
	if err != nil {
		logger.Warn("class names unavailable, labels will read Unknown", "descriptor", path, "error", err)
		return nil
	}
	return desc.Names
}
