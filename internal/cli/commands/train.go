package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"kitvision/internal/config"
	"kitvision/internal/training"
)

// NewTrainCommand creates the train command.
func NewTrainCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a detector on the prepared dataset",
		Long: `Run the Ultralytics trainer on the dataset descriptor, then copy the best
weights into the models folder and the rest of the run output into the
analytics folder. The copied weights are exported to ONNX for the detect
command unless export is disabled.`,
		Example: `  kitvision train
  kitvision train --epochs 100 --model yolo11m.pt
  kitvision train --device 0 --export-onnx=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrain(cmd)
		},
	}

	f := cmd.Flags()
	f.String("data", "", "dataset descriptor (data.yaml)")
	f.String("model", "", "base model or checkpoint")
	f.Int("epochs", 0, "number of training epochs")
	f.Int("imgsz", 0, "training image size")
	f.String("device", "", "training device, e.g. cpu or 0")
	f.Bool("export-onnx", true, "export the best weights to ONNX")

	config.BindFlag(f, "data", "train.descriptor")
	config.BindFlag(f, "model", "train.model")
	config.BindFlag(f, "epochs", "train.epochs")
	config.BindFlag(f, "imgsz", "train.image_size")
	config.BindFlag(f, "device", "train.device")
	config.BindFlag(f, "export-onnx", "train.export_onnx")

	return cmd
}

func runTrain(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg := GetConfig(ctx)
	logger := GetLogger(ctx)

	trainer := training.NewCLITrainer(cfg.Train.Command, logger)
	report, err := training.NewDriver(cfg.Train, trainer, logger).Run(ctx)
	if err != nil {
		logger.Error("training failed", "error", err)
		if report == nil {
			return nil
		}
	}

	renderReport(cmd, report)
	return nil
}

func renderReport(cmd *cobra.Command, r *training.Report) {
	w := cmd.OutOrStdout()

	t := newTable(w, table.Row{"Output", "Location"})
	t.AppendRow(table.Row{"run directory", r.SaveDir})
	t.AppendRow(table.Row{"best weights", lo.Ternary(r.ModelCopied, r.ModelPath, "not found")})
	if r.ONNXPath != "" {
		t.AppendRow(table.Row{"onnx model", r.ONNXPath})
	}
	t.AppendRow(table.Row{"analytics", fmt.Sprintf("%s (%d items)", r.AnalyticsDir, len(r.AnalyticsItems))})
	t.Render()
}
