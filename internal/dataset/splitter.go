// Package dataset splits a flat image/label corpus into the train/val layout
// expected by the training library.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/samber/lo"

	"kitvision/internal/config"
	"kitvision/internal/fsutil"
)

var (
	ErrSourceMissing = errors.New("source image directory not found")
	ErrNoImages      = errors.New("no images found")
)

// Sample is an image and the label file sharing its base name.
// Label is empty when no label file exists.
type Sample struct {
	Image string
	Label string
}

type Result struct {
	Discovered    int
	TrainSelected int
	ValSelected   int
	TrainCopied   int
	ValCopied     int

	// Skipped holds the image file names that had no label.
	Skipped []string
	// DescriptorWritten is set when a new descriptor was created.
	DescriptorWritten string
}

type Splitter struct {
	cfg    config.SplitConfig
	layout Layout
	exts   []string
	rng    *rand.Rand
	logger *slog.Logger
}

func NewSplitter(cfg config.SplitConfig, logger *slog.Logger) *Splitter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var rng *rand.Rand
	if cfg.Seed != 0 {
		seed := uint64(cfg.Seed)
		rng = rand.New(rand.NewPCG(seed, seed))
	}

	return &Splitter{
		cfg:    cfg,
		layout: Layout{Root: cfg.OutputDir},
		exts:   normalizeExtensions(cfg.ImageExtensions),
		rng:    rng,
		logger: logger,
	}
}

func normalizeExtensions(exts []string) []string {
	return lo.Uniq(lo.Map(exts, func(e string, _ int) string {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		return e
	}))
}

func (s *Splitter) Layout() Layout { return s.layout }

// Discover lists the images under the source directory whose extension is in
// the configured set, sorted by name.
func (s *Splitter) Discover() ([]string, error) {
	entries, err := os.ReadDir(s.cfg.ImagesDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceMissing, s.cfg.ImagesDir)
		}
		return nil, fmt.Errorf("read %s: %w", s.cfg.ImagesDir, err)
	}

	var images []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if lo.Contains(s.exts, strings.ToLower(filepath.Ext(e.Name()))) {
			images = append(images, filepath.Join(s.cfg.ImagesDir, e.Name()))
		}
	}
	sort.Strings(images)

	return images, nil
}

func (s *Splitter) shuffle(paths []string) {
	swap := func(i, j int) { paths[i], paths[j] = paths[j], paths[i] }
	if s.rng != nil {
		s.rng.Shuffle(len(paths), swap)
		return
	}
	rand.Shuffle(len(paths), swap)
}

// Partition shuffles images and cuts them at floor(ratio*n).
func (s *Splitter) Partition(images []string) (train, val []string) {
	shuffled := append([]string(nil), images...)
	s.shuffle(shuffled)

	cut := int(float64(len(shuffled)) * s.cfg.Ratio)
	return shuffled[:cut], shuffled[cut:]
}

func (s *Splitter) sampleFor(image string) Sample {
	base := strings.TrimSuffix(filepath.Base(image), filepath.Ext(image))
	label := filepath.Join(s.cfg.LabelsDir, base+s.cfg.LabelExtension)
	if !fsutil.Exists(label) {
		label = ""
	}
	return Sample{Image: image, Label: label}
}

func (s *Splitter) copySplit(ctx context.Context, split string, images []string, res *Result) (int, error) {
	imgDest := s.layout.Images(split)
	lblDest := s.layout.Labels(split)

	copied := 0
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return copied, err
		}

		sample := s.sampleFor(img)
		if sample.Label == "" {
			s.logger.Warn("label file not found, skipping", "image", filepath.Base(img), "split", split)
			res.Skipped = append(res.Skipped, filepath.Base(img))
			continue
		}

		if err := fsutil.CopyFile(sample.Image, filepath.Join(imgDest, filepath.Base(sample.Image))); err != nil {
			return copied, fmt.Errorf("copy image: %w", err)
		}
		if err := fsutil.CopyFile(sample.Label, filepath.Join(lblDest, filepath.Base(sample.Label))); err != nil {
			return copied, fmt.Errorf("copy label: %w", err)
		}
		copied++
	}

	return copied, nil
}

// Split copies a shuffled train/val partition of the corpus into the output
// layout. A missing source directory is reported before anything is
// created; an empty one after the output layout exists.
func (s *Splitter) Split(ctx context.Context) (*Result, error) {
	s.logger.Info("starting dataset preparation",
		"images", s.cfg.ImagesDir,
		"labels", s.cfg.LabelsDir,
		"output", s.cfg.OutputDir,
		"ratio", s.cfg.Ratio,
	)

	res := &Result{}

	images, err := s.Discover()
	if err != nil {
		s.logger.Error("cannot read source images", "dir", s.cfg.ImagesDir, "error", err)
		return res, err
	}

	if err := s.layout.Ensure(); err != nil {
		return res, err
	}

	if len(images) == 0 {
		s.logger.Error("no images found", "dir", s.cfg.ImagesDir, "extensions", s.exts)
		return res, fmt.Errorf("%w in %s (extensions %v)", ErrNoImages, s.cfg.ImagesDir, s.exts)
	}

	res.Discovered = len(images)
	s.logger.Info("found images", "total", res.Discovered)

	train, val := s.Partition(images)
	res.TrainSelected, res.ValSelected = len(train), len(val)
	s.logger.Info("split selected", "train", res.TrainSelected, "val", res.ValSelected)

	s.logger.Info("copying training files")
	if res.TrainCopied, err = s.copySplit(ctx, SplitTrain, train, res); err != nil {
		return res, err
	}

	s.logger.Info("copying validation files")
	if res.ValCopied, err = s.copySplit(ctx, SplitVal, val, res); err != nil {
		return res, err
	}

	if err := s.writeDescriptor(res); err != nil {
		return res, err
	}

	s.logger.Info("dataset preparation complete",
		"processed", res.Discovered,
		"train_copied", res.TrainCopied,
		"val_copied", res.ValCopied,
		"skipped", len(res.Skipped),
	)

	return res, nil
}

// writeDescriptor creates the data.yaml for a fresh layout. An existing
// descriptor is left untouched.
func (s *Splitter) writeDescriptor(res *Result) error {
	if len(s.cfg.Classes) == 0 || s.cfg.Descriptor == "" {
		return nil
	}
	if fsutil.Exists(s.cfg.Descriptor) {
		s.logger.Debug("descriptor exists, leaving it as is", "path", s.cfg.Descriptor)
		return nil
	}

	d := NewDescriptor(s.layout, s.cfg.Classes)
	if err := d.Save(s.cfg.Descriptor); err != nil {
		return fmt.Errorf("write descriptor: %w", err)
	}

	res.DescriptorWritten = s.cfg.Descriptor
	s.logger.Info("wrote dataset descriptor", "path", s.cfg.Descriptor, "classes", len(s.cfg.Classes))
	return nil
}
