package dataset

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	SplitTrain = "train"
	SplitVal   = "val"

	imagesDir = "images"
	labelsDir = "labels"
)

// Layout is the train/val directory tree under Root.
type Layout struct {
	Root string
}

func (l Layout) Images(split string) string { return filepath.Join(l.Root, split, imagesDir) }
func (l Layout) Labels(split string) string { return filepath.Join(l.Root, split, labelsDir) }

func (l Layout) TrainImages() string { return l.Images(SplitTrain) }
func (l Layout) TrainLabels() string { return l.Labels(SplitTrain) }
func (l Layout) ValImages() string   { return l.Images(SplitVal) }
func (l Layout) ValLabels() string   { return l.Labels(SplitVal) }

// Dirs lists the four leaf directories of the layout.
func (l Layout) Dirs() []string {
	return []string{l.TrainImages(), l.TrainLabels(), l.ValImages(), l.ValLabels()}
}

// Ensure creates the layout. Existing directories are reused as they are.
func (l Layout) Ensure() error {
	for _, dir := range l.Dirs() {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
