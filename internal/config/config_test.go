package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp moves into a fresh directory so a stray kitvision.yaml cannot leak in.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, used, err := Load("", nil)
	require.NoError(t, err)
	assert.Empty(t, used)

	assert.Equal(t, "all_images", cfg.Split.ImagesDir)
	assert.Equal(t, "all_labels", cfg.Split.LabelsDir)
	assert.Equal(t, "dataset", cfg.Split.OutputDir)
	assert.InDelta(t, 0.8, cfg.Split.Ratio, 1e-9)
	assert.Equal(t, []string{".jpg", ".png"}, cfg.Split.ImageExtensions)
	assert.Equal(t, DefaultClasses, cfg.Split.Classes)

	assert.Equal(t, "dataset/data.yaml", cfg.Train.Descriptor)
	assert.Equal(t, "yolo11s.pt", cfg.Train.Model)
	assert.Equal(t, 60, cfg.Train.Epochs)
	assert.Equal(t, 640, cfg.Train.ImageSize)
	assert.Equal(t, "models", cfg.Train.ModelsDir)
	assert.Equal(t, "training_analytics", cfg.Train.AnalyticsDir)
	assert.True(t, cfg.Train.ExportONNX)

	assert.Equal(t, 640, cfg.Detect.InputSize)
	assert.Equal(t, "Football Kit Detector", cfg.Detect.WindowTitle)
}

func TestLoad_FileEnvAndFlagPrecedence(t *testing.T) {
	dir := chdirTemp(t)

	content := `
split:
  ratio: 0.7
  images_dir: raw/images
train:
  epochs: 10
detect:
  confidence: 0.5
`
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	t.Setenv("KITVISION_TRAIN__EPOCHS", "25")
	t.Setenv("KITVISION_SPLIT__SEED", "42")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Float64("ratio", 0.8, "")
	BindFlag(flags, "ratio", "split.ratio")
	flags.Int("epochs", 60, "")
	BindFlag(flags, "epochs", "train.epochs")
	require.NoError(t, flags.Parse([]string{"--ratio", "0.5"}))

	cfg, used, err := Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, path, used)

	// flag beats file
	assert.InDelta(t, 0.5, cfg.Split.Ratio, 1e-9)
	// file beats default
	assert.Equal(t, "raw/images", cfg.Split.ImagesDir)
	assert.InDelta(t, 0.5, cfg.Detect.Confidence, 1e-9)
	// env beats file; unchanged flag does not override
	assert.Equal(t, 25, cfg.Train.Epochs)
	assert.Equal(t, int64(42), cfg.Split.Seed)
}

func TestLoad_PicksUpDefaultFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigPath), []byte("train:\n  name: exp\n"), 0644))

	cfg, used, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfigPath, used)
	assert.Equal(t, "exp", cfg.Train.Name)
}

func TestLoad_InvalidValues(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("split:\n  ratio: 1.5\n"), 0644))

	_, _, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "split.ratio")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	chdirTemp(t)

	_, _, err := Load("does-not-exist.yaml", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errSubstr string
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "ratio of one", mutate: func(c *Config) { c.Split.Ratio = 1 }},
		{name: "zero ratio", mutate: func(c *Config) { c.Split.Ratio = 0 }, errSubstr: "split.ratio"},
		{name: "no extensions", mutate: func(c *Config) { c.Split.ImageExtensions = nil }, errSubstr: "image_extensions"},
		{name: "no label extension", mutate: func(c *Config) { c.Split.LabelExtension = "" }, errSubstr: "label_extension"},
		{name: "zero epochs", mutate: func(c *Config) { c.Train.Epochs = 0 }, errSubstr: "train.epochs"},
		{name: "zero image size", mutate: func(c *Config) { c.Train.ImageSize = 0 }, errSubstr: "train.image_size"},
		{name: "resolution left to detect", mutate: func(c *Config) { c.Detect.Resolution = "1280by720" }},
		{name: "confidence above one", mutate: func(c *Config) { c.Detect.Confidence = 2 }, errSubstr: "detect.confidence"},
		{name: "negative iou", mutate: func(c *Config) { c.Detect.IoU = -0.1 }, errSubstr: "detect.iou"},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, errSubstr: "log_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.errSubstr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestParseResolution(t *testing.T) {
	tests := []struct {
		in      string
		w, h    int
		wantErr bool
	}{
		{in: "1280x720", w: 1280, h: 720},
		{in: " 640x480 ", w: 640, h: 480},
		{in: "1280", wantErr: true},
		{in: "1280x", wantErr: true},
		{in: "x720", wantErr: true},
		{in: "0x720", wantErr: true},
		{in: "-1x720", wantErr: true},
		{in: "axb", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			w, h, err := ParseResolution(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.w, w)
			assert.Equal(t, tt.h, h)
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "out.yaml")

	cfg := NewDefaultConfig()
	cfg.Train.Epochs = 3
	cfg.Split.Seed = 7
	require.NoError(t, cfg.Save(path))

	loaded, _, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Train.Epochs)
	assert.Equal(t, int64(7), loaded.Split.Seed)
	assert.Equal(t, cfg.Split.ImageExtensions, loaded.Split.ImageExtensions)
}
