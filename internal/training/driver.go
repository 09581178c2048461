// Package training runs the external training job and moves its outputs
// into the project's models and analytics folders.
package training

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"kitvision/internal/config"
	"kitvision/internal/dataset"
	"kitvision/internal/fsutil"
)

const weightsDir = "weights"

// Report summarises where the run outputs ended up.
type Report struct {
	SaveDir        string
	ModelPath      string
	ModelCopied    bool
	ONNXPath       string
	AnalyticsDir   string
	AnalyticsItems []string
}

type Driver struct {
	cfg     config.TrainConfig
	trainer Trainer
	logger  *slog.Logger
}

func NewDriver(cfg config.TrainConfig, trainer Trainer, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Driver{cfg: cfg, trainer: trainer, logger: logger}
}

func (d *Driver) params() Params {
	return Params{
		Descriptor: d.cfg.Descriptor,
		Model:      d.cfg.Model,
		Epochs:     d.cfg.Epochs,
		ImageSize:  d.cfg.ImageSize,
		Project:    d.cfg.Project,
		Name:       d.cfg.Name,
		Device:     d.cfg.Device,
	}
}

// Run checks the dataset descriptor, trains, and organizes the run output.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	desc, err := dataset.LoadDescriptor(d.cfg.Descriptor)
	if err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid descriptor %s: %w", d.cfg.Descriptor, err)
	}

	d.logger.Info("initializing training",
		"model", d.cfg.Model,
		"epochs", d.cfg.Epochs,
		"imgsz", d.cfg.ImageSize,
		"classes", len(desc.Names),
	)

	run, err := d.trainer.Train(ctx, d.params())
	if err != nil {
		return nil, err
	}
	d.logger.Info("training complete", "save_dir", run.SaveDir)

	report, err := d.Organize(run.SaveDir)
	if err != nil {
		return report, err
	}

	if d.cfg.ExportONNX && report.ModelCopied {
		onnx, err := d.trainer.Export(ctx, report.ModelPath, d.cfg.ImageSize)
		if err != nil {
			d.logger.Warn("onnx export failed", "weights", report.ModelPath, "error", err)
		} else {
			report.ONNXPath = onnx
			d.logger.Info("exported onnx model", "path", onnx)
		}
	}

	return report, nil
}

// Organize copies the best weights into ModelsDir and everything else from
// saveDir, except the weights folder, into AnalyticsDir. A missing weights
// file is logged and does not fail the call.
func (d *Driver) Organize(saveDir string) (*Report, error) {
	d.logger.Info("organizing output files", "save_dir", saveDir)

	report := &Report{
		SaveDir:      saveDir,
		ModelPath:    filepath.Join(d.cfg.ModelsDir, d.cfg.BestWeights),
		AnalyticsDir: d.cfg.AnalyticsDir,
	}

	for _, dir := range []string{d.cfg.AnalyticsDir, d.cfg.ModelsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return report, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	src := filepath.Join(saveDir, weightsDir, d.cfg.BestWeights)
	if fsutil.Exists(src) {
		d.logger.Info("copying model", "from", src, "to", report.ModelPath)
		if err := fsutil.CopyFile(src, report.ModelPath); err != nil {
			return report, fmt.Errorf("copy weights: %w", err)
		}
		report.ModelCopied = true
	} else {
		d.logger.Warn("best weights not found", "name", d.cfg.BestWeights, "path", src)
	}

	entries, err := os.ReadDir(saveDir)
	if err != nil {
		return report, fmt.Errorf("read run directory: %w", err)
	}

	d.logger.Info("copying analytics files", "to", d.cfg.AnalyticsDir)
	for _, e := range entries {
		if e.Name() == weightsDir {
			continue
		}

		from := filepath.Join(saveDir, e.Name())
		to := filepath.Join(d.cfg.AnalyticsDir, e.Name())

		switch {
		case e.IsDir():
			err = fsutil.CopyTree(from, to)
		case e.Type().IsRegular():
			err = fsutil.CopyFile(from, to)
		default:
			continue
		}
		if err != nil {
			return report, fmt.Errorf("copy %s: %w", e.Name(), err)
		}
		report.AnalyticsItems = append(report.AnalyticsItems, e.Name())
	}

	d.logger.Info("file organization complete", "model", report.ModelPath, "analytics", d.cfg.AnalyticsDir)
	return report, nil
}
