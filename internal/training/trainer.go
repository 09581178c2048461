package training

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Params is the fixed configuration handed to the training library.
type Params struct {
	Descriptor string
	Model      string
	Epochs     int
	ImageSize  int
	Project    string
	Name       string
	Device     string
}

// Run describes a finished training invocation.
type Run struct {
	SaveDir string
}

// Trainer is the external training library.
type Trainer interface {
	Train(ctx context.Context, p Params) (*Run, error)
	// Export converts weights to ONNX and returns the exported file path.
	Export(ctx context.Context, weights string, imageSize int) (string, error)
}

var (
	ansiPattern     = regexp.MustCompile(`\x1b\[[0-9;]*m`)
	savedToPattern  = regexp.MustCompile(`Results saved to (.+)$`)
	exportedPattern = regexp.MustCompile(`(?:export success|saved as) '?([^'\s]+\.onnx)'?`)
)

// CLITrainer drives the Ultralytics command line tool.
type CLITrainer struct {
	command string
	logger  *slog.Logger
}

func NewCLITrainer(command string, logger *slog.Logger) *CLITrainer {
	if command == "" {
		command = "yolo"
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CLITrainer{command: command, logger: logger}
}

func (p Params) Args() []string {
	args := []string{
		"detect", "train",
		"data=" + p.Descriptor,
		"model=" + p.Model,
		"epochs=" + strconv.Itoa(p.Epochs),
		"imgsz=" + strconv.Itoa(p.ImageSize),
		"project=" + p.Project,
		"name=" + p.Name,
	}
	if p.Device != "" {
		args = append(args, "device="+p.Device)
	}
	return args
}

func (t *CLITrainer) Train(ctx context.Context, p Params) (*Run, error) {
	var saveDir string

	err := t.run(ctx, p.Args(), func(line string) {
		if m := savedToPattern.FindStringSubmatch(line); m != nil {
			saveDir = strings.TrimSpace(m[1])
		}
	})
	if err != nil {
		return nil, fmt.Errorf("training failed: %w", err)
	}

	if saveDir == "" {
		saveDir = filepath.Join(p.Project, p.Name)
		t.logger.Warn("trainer did not report a save directory, assuming default", "dir", saveDir)
	}

	return &Run{SaveDir: saveDir}, nil
}

func (t *CLITrainer) Export(ctx context.Context, weights string, imageSize int) (string, error) {
	args := []string{"export", "model=" + weights, "format=onnx", "imgsz=" + strconv.Itoa(imageSize)}

	var exported string
	err := t.run(ctx, args, func(line string) {
		if m := exportedPattern.FindStringSubmatch(line); m != nil {
			exported = m[1]
		}
	})
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	if exported == "" {
		exported = strings.TrimSuffix(weights, filepath.Ext(weights)) + ".onnx"
	}
	return exported, nil
}

const maxOutputLine = 64 * 1024

// scanOutputLines splits on \n and on the \r progress bars redraw with.
// Longer runs without either are cut into maxOutputLine chunks.
func scanOutputLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if len(data) >= maxOutputLine {
		return maxOutputLine, data[:maxOutputLine], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// run executes the tool, logging each output line with ANSI styling removed
// and passing it to onLine.
func (t *CLITrainer) run(ctx context.Context, args []string, onLine func(string)) error {
	cmd := exec.CommandContext(ctx, t.command, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	t.logger.Info("running trainer", "command", t.command, "args", strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", t.command, err)
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	scan := func(r io.Reader) {
		defer wg.Done()
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		sc.Split(scanOutputLines)
		// the child must never block on a pipe nobody reads
		defer func() {
			if err := sc.Err(); err != nil {
				t.logger.Warn("stopped reading trainer output", "error", err)
				_, _ = io.Copy(io.Discard, r)
			}
		}()
		for sc.Scan() {
			line := strings.TrimSpace(ansiPattern.ReplaceAllString(sc.Text(), ""))
			if line == "" {
				continue
			}
			mu.Lock()
			t.logger.Debug(line, "source", t.command)
			onLine(line)
			mu.Unlock()
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)
	wg.Wait()

	return cmd.Wait()
}
