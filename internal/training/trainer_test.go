package training

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitvision/internal/testutil"
)

// fakeTool writes a shell script standing in for the yolo CLI.
func fakeTool(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not available on windows")
	}
	path := filepath.Join(t.TempDir(), "yolo")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func TestParams_Args(t *testing.T) {
	p := Params{
		Descriptor: "dataset/data.yaml",
		Model:      "yolo11s.pt",
		Epochs:     60,
		ImageSize:  640,
		Project:    "runs/detect",
		Name:       "train",
	}
	assert.Equal(t, []string{
		"detect", "train",
		"data=dataset/data.yaml",
		"model=yolo11s.pt",
		"epochs=60",
		"imgsz=640",
		"project=runs/detect",
		"name=train",
	}, p.Args())

	p.Device = "0"
	assert.Equal(t, "device=0", p.Args()[len(p.Args())-1])
}

func TestCLITrainer_TrainParsesSaveDir(t *testing.T) {
	tool := fakeTool(t, `echo "      Epoch    GPU_mem   box_loss"
printf 'Results saved to \033[1mruns/detect/train3\033[0m\n'
`)

	run, err := NewCLITrainer(tool, testutil.NewTestLogger(t)).Train(context.Background(), Params{Project: "runs/detect", Name: "train"})
	require.NoError(t, err)
	assert.Equal(t, "runs/detect/train3", run.SaveDir)
}

func TestCLITrainer_TrainSurvivesLongOutputLines(t *testing.T) {
	tool := fakeTool(t, `head -c 3000000 /dev/zero | tr '\0' x
printf '\r 1/60  12%% |###   | 10/80\r 1/60  25%% |#####  | 20/80'
head -c 2000000 /dev/zero | tr '\0' y >&2
echo
echo "Results saved to runs/detect/train7"
`)

	done := make(chan struct{})
	var (
		run *Run
		err error
	)
	go func() {
		defer close(done)
		run, err = NewCLITrainer(tool, nil).Train(context.Background(), Params{Project: "runs/detect", Name: "train"})
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("Train did not return after a long output line")
	}
	require.NoError(t, err)
	assert.Equal(t, "runs/detect/train7", run.SaveDir)
}

func TestScanOutputLines(t *testing.T) {
	sc := bufio.NewScanner(strings.NewReader("a\rb\r\nc\n" + strings.Repeat("z", maxOutputLine+10)))
	sc.Buffer(make([]byte, 1024), 1024*1024)
	sc.Split(scanOutputLines)

	var tokens []string
	for sc.Scan() {
		tokens = append(tokens, sc.Text())
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, []string{"a", "b", "", "c", strings.Repeat("z", maxOutputLine), "zzzzzzzzzz"}, tokens)
}

func TestCLITrainer_TrainFallsBackToProjectName(t *testing.T) {
	tool := fakeTool(t, "echo done >&2\n")

	run, err := NewCLITrainer(tool, nil).Train(context.Background(), Params{Project: "runs/detect", Name: "train"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("runs/detect", "train"), run.SaveDir)
}

func TestCLITrainer_TrainFailure(t *testing.T) {
	tool := fakeTool(t, "echo 'dataset not found' >&2\nexit 3\n")

	_, err := NewCLITrainer(tool, nil).Train(context.Background(), Params{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "training failed")
}

func TestCLITrainer_MissingCommand(t *testing.T) {
	_, err := NewCLITrainer(filepath.Join(t.TempDir(), "no-such-tool"), nil).Train(context.Background(), Params{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start")
}

func TestCLITrainer_Export(t *testing.T) {
	tool := fakeTool(t, `echo "ONNX: export success 1.2s, saved as 'models/best.onnx' (36.2 MB)"`+"\n")

	out, err := NewCLITrainer(tool, nil).Export(context.Background(), "models/best.pt", 640)
	require.NoError(t, err)
	assert.Equal(t, "models/best.onnx", out)

	quiet := fakeTool(t, "exit 0\n")
	out, err = NewCLITrainer(quiet, nil).Export(context.Background(), "models/best.pt", 640)
	require.NoError(t, err)
	assert.Equal(t, "models/best.onnx", out)
}
