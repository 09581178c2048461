package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// FlagKeyAnnotation is the pflag annotation that maps a flag to its config key.
const FlagKeyAnnotation = "koanf"

// defaultValues flattens NewDefaultConfig into koanf keys.
func defaultValues() map[string]interface{} {
	d := NewDefaultConfig()

	return map[string]interface{}{
		"verbose":    d.Verbose,
		"log_format": d.LogFormat,

		"split.images_dir":       d.Split.ImagesDir,
		"split.labels_dir":       d.Split.LabelsDir,
		"split.output_dir":       d.Split.OutputDir,
		"split.ratio":            d.Split.Ratio,
		"split.image_extensions": d.Split.ImageExtensions,
		"split.label_extension":  d.Split.LabelExtension,
		"split.seed":             d.Split.Seed,
		"split.classes":          d.Split.Classes,
		"split.descriptor":       d.Split.Descriptor,

		"train.descriptor":    d.Train.Descriptor,
		"train.model":         d.Train.Model,
		"train.epochs":        d.Train.Epochs,
		"train.image_size":    d.Train.ImageSize,
		"train.project":       d.Train.Project,
		"train.name":          d.Train.Name,
		"train.models_dir":    d.Train.ModelsDir,
		"train.analytics_dir": d.Train.AnalyticsDir,
		"train.best_weights":  d.Train.BestWeights,
		"train.command":       d.Train.Command,
		"train.device":        d.Train.Device,
		"train.export_onnx":   d.Train.ExportONNX,

		"detect.model":          d.Detect.Model,
		"detect.source":         d.Detect.Source,
		"detect.resolution":     d.Detect.Resolution,
		"detect.descriptor":     d.Detect.Descriptor,
		"detect.confidence":     d.Detect.Confidence,
		"detect.iou":            d.Detect.IoU,
		"detect.input_size":     d.Detect.InputSize,
		"detect.capture_width":  d.Detect.CaptureWidth,
		"detect.capture_height": d.Detect.CaptureHeight,
		"detect.fps":            d.Detect.FPS,
		"detect.window_title":   d.Detect.WindowTitle,
	}
}

// findConfigFile returns the explicit path, or kitvision.yaml when it exists
// in the working directory.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat(DefaultConfigPath); err == nil {
		return DefaultConfigPath
	}
	return ""
}

// envKey turns KITVISION_SPLIT__IMAGES_DIR into split.images_dir.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Load builds the configuration from defaults, the config file, KITVISION_
// environment variables and explicitly set flags, in increasing precedence.
// It returns the config and the file used, if any.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, string, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultValues(), "."), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load defaults: %w", err)
	}

	used := findConfigFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, "", fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			if ann, ok := f.Annotations[FlagKeyAnnotation]; ok && len(ann) > 0 {
				key = ann[0]
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, "", fmt.Errorf("failed to load flags: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, "", fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, used, nil
}

// BindFlag annotates a flag with the config key it overrides.
func BindFlag(flags *pflag.FlagSet, name, key string) {
	_ = flags.SetAnnotation(name, FlagKeyAnnotation, []string{key})
}
