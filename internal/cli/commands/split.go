package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"kitvision/internal/config"
	"kitvision/internal/dataset"
)

// NewSplitCommand creates the split command.
func NewSplitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Split labeled images into train and val sets",
		Long: `Shuffle the images in the source folder and copy them, with their label
files, into <output>/train and <output>/val. Images without a label file are
reported and skipped. Existing files in the output folder are kept; files with
the same name are overwritten.`,
		Example: `  kitvision split
  kitvision split --ratio 0.9 --seed 42
  kitvision split --images raw/images --labels raw/labels --output data`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSplit(cmd)
		},
	}

	f := cmd.Flags()
	f.String("images", "", "source image folder")
	f.String("labels", "", "source label folder")
	f.String("output", "", "dataset output folder")
	f.Float64("ratio", 0, "fraction of images used for training")
	f.Int64("seed", 0, "shuffle seed (0 = random)")
	f.StringSlice("ext", nil, "image extensions to include")

	config.BindFlag(f, "images", "split.images_dir")
	config.BindFlag(f, "labels", "split.labels_dir")
	config.BindFlag(f, "output", "split.output_dir")
	config.BindFlag(f, "ratio", "split.ratio")
	config.BindFlag(f, "seed", "split.seed")
	config.BindFlag(f, "ext", "split.image_extensions")

	return cmd
}

func runSplit(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg := GetConfig(ctx)
	logger := GetLogger(ctx)

	res, err := dataset.NewSplitter(cfg.Split, logger).Split(ctx)
	if err != nil {
		// source problems were already reported by the splitter
		if !errors.Is(err, dataset.ErrSourceMissing) && !errors.Is(err, dataset.ErrNoImages) {
			logger.Error("dataset preparation failed", "error", err)
		}
		return nil
	}

	renderSplitResult(cmd, cfg.Split, res)
	return nil
}

func renderSplitResult(cmd *cobra.Command, cfg config.SplitConfig, res *dataset.Result) {
	w := cmd.OutOrStdout()

	t := newTable(w, table.Row{"Split", "Selected", "Copied", "Folder"})
	layout := dataset.Layout{Root: cfg.OutputDir}
	t.AppendRow(table.Row{dataset.SplitTrain, res.TrainSelected, res.TrainCopied, layout.TrainImages()})
	t.AppendRow(table.Row{dataset.SplitVal, res.ValSelected, res.ValCopied, layout.ValImages()})
	t.AppendFooter(table.Row{"total", res.Discovered, res.TrainCopied + res.ValCopied, ""})
	t.Render()

	if len(res.Skipped) > 0 {
		_, _ = fmt.Fprintf(w, "skipped %d image(s) without labels: %s\n", len(res.Skipped), strings.Join(res.Skipped, ", "))
	}
	if res.DescriptorWritten != "" {
		_, _ = fmt.Fprintf(w, "wrote dataset descriptor %s\n", res.DescriptorWritten)
	}
}
