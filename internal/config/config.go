package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath string = "kitvision.yaml"
	EnvPrefix         string = "KITVISION_"

	DefaultDescriptor string = "dataset/data.yaml"
)

// DefaultClasses are the kit classes in descriptor order.
var DefaultClasses = []string{"Europa", "First", "Jacket", "Second", "Third", "Training"}

type SplitConfig struct {
	ImagesDir       string   `koanf:"images_dir" yaml:"images_dir"`
	LabelsDir       string   `koanf:"labels_dir" yaml:"labels_dir"`
	OutputDir       string   `koanf:"output_dir" yaml:"output_dir"`
	Ratio           float64  `koanf:"ratio" yaml:"ratio"`
	ImageExtensions []string `koanf:"image_extensions" yaml:"image_extensions"`
	LabelExtension  string   `koanf:"label_extension" yaml:"label_extension"`
	Seed            int64    `koanf:"seed" yaml:"seed"`
	Classes         []string `koanf:"classes" yaml:"classes"`
	Descriptor      string   `koanf:"descriptor" yaml:"descriptor"`
}

type TrainConfig struct {
	Descriptor   string `koanf:"descriptor" yaml:"descriptor"`
	Model        string `koanf:"model" yaml:"model"`
	Epochs       int    `koanf:"epochs" yaml:"epochs"`
	ImageSize    int    `koanf:"image_size" yaml:"image_size"`
	Project      string `koanf:"project" yaml:"project"`
	Name         string `koanf:"name" yaml:"name"`
	ModelsDir    string `koanf:"models_dir" yaml:"models_dir"`
	AnalyticsDir string `koanf:"analytics_dir" yaml:"analytics_dir"`
	BestWeights  string `koanf:"best_weights" yaml:"best_weights"`
	Command      string `koanf:"command" yaml:"command"`
	Device       string `koanf:"device" yaml:"device"`
	ExportONNX   bool   `koanf:"export_onnx" yaml:"export_onnx"`
}

type DetectConfig struct {
	Model         string  `koanf:"model" yaml:"model"`
	Source        string  `koanf:"source" yaml:"source"`
	Resolution    string  `koanf:"resolution" yaml:"resolution"`
	Descriptor    string  `koanf:"descriptor" yaml:"descriptor"`
	Confidence    float64 `koanf:"confidence" yaml:"confidence"`
	IoU           float64 `koanf:"iou" yaml:"iou"`
	InputSize     int     `koanf:"input_size" yaml:"input_size"`
	CaptureWidth  int     `koanf:"capture_width" yaml:"capture_width"`
	CaptureHeight int     `koanf:"capture_height" yaml:"capture_height"`
	FPS           uint    `koanf:"fps" yaml:"fps"`
	WindowTitle   string  `koanf:"window_title" yaml:"window_title"`
}

type Config struct {
	Verbose   bool   `koanf:"verbose" yaml:"verbose"`
	LogFormat string `koanf:"log_format" yaml:"log_format"`

	Split  SplitConfig  `koanf:"split" yaml:"split"`
	Train  TrainConfig  `koanf:"train" yaml:"train"`
	Detect DetectConfig `koanf:"detect" yaml:"detect"`
}

func NewDefaultConfig() *Config {
	return &Config{
		LogFormat: "text",
		Split: SplitConfig{
			ImagesDir:       "all_images",
			LabelsDir:       "all_labels",
			OutputDir:       "dataset",
			Ratio:           0.8,
			ImageExtensions: []string{".jpg", ".png"},
			LabelExtension:  ".txt",
			Classes:         append([]string(nil), DefaultClasses...),
			Descriptor:      DefaultDescriptor,
		},
		Train: TrainConfig{
			Descriptor:   DefaultDescriptor,
			Model:        "yolo11s.pt",
			Epochs:       60,
			ImageSize:    640,
			Project:      "runs/detect",
			Name:         "train",
			ModelsDir:    "models",
			AnalyticsDir: "training_analytics",
			BestWeights:  "best.pt",
			Command:      "yolo",
			ExportONNX:   true,
		},
		Detect: DetectConfig{
			Descriptor:    DefaultDescriptor,
			Confidence:    0.25,
			IoU:           0.45,
			InputSize:     640,
			CaptureWidth:  640,
			CaptureHeight: 480,
			WindowTitle:   "Football Kit Detector",
		},
	}
}

// Validate checks value ranges. Paths and the detect resolution are not
// checked here; the commands using them report bad values themselves.
func (c *Config) Validate() error {
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}

	if c.Split.Ratio <= 0 || c.Split.Ratio > 1 {
		return fmt.Errorf("split.ratio must be in (0, 1], got %v", c.Split.Ratio)
	}
	if len(c.Split.ImageExtensions) == 0 {
		return fmt.Errorf("split.image_extensions must not be empty")
	}
	if c.Split.LabelExtension == "" {
		return fmt.Errorf("split.label_extension is required")
	}

	if c.Train.Epochs <= 0 {
		return fmt.Errorf("train.epochs must be positive, got %d", c.Train.Epochs)
	}
	if c.Train.ImageSize <= 0 {
		return fmt.Errorf("train.image_size must be positive, got %d", c.Train.ImageSize)
	}
	if c.Train.BestWeights == "" {
		return fmt.Errorf("train.best_weights is required")
	}

	if c.Detect.Confidence < 0 || c.Detect.Confidence > 1 {
		return fmt.Errorf("detect.confidence must be in [0, 1], got %v", c.Detect.Confidence)
	}
	if c.Detect.IoU < 0 || c.Detect.IoU > 1 {
		return fmt.Errorf("detect.iou must be in [0, 1], got %v", c.Detect.IoU)
	}
	if c.Detect.InputSize <= 0 {
		return fmt.Errorf("detect.input_size must be positive, got %d", c.Detect.InputSize)
	}

	return nil
}

// ParseResolution parses a "WxH" string such as "1280x720".
func ParseResolution(s string) (int, int, error) {
	w, h, ok := strings.Cut(strings.TrimSpace(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("resolution must be in 'WxH' format (e.g. '1280x720'), got %q", s)
	}

	width, errW := strconv.Atoi(w)
	height, errH := strconv.Atoi(h)
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("resolution must be in 'WxH' format (e.g. '1280x720'), got %q", s)
	}

	return width, height, nil
}

func (c *Config) Save(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	return enc.Close()
}
