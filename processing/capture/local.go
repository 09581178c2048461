package capture

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

type LocalFileStreamer struct {
	stopOnce sync.Once
	waitOnce sync.Once

	path      string
	targetFPS uint

	width  int
	height int

	cmd       *exec.Cmd
	frameChan chan image.Image
	errChan   chan error
	stopChan  chan struct{}
}

func NewLocalStreamer(path string, targetFPS uint) (*LocalFileStreamer, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("could not open video source: %w", err)
	}

	w, h, err := videoDimensions(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read video dimensions: %w", err)
	}

	return newLocalStreamer(path, targetFPS, int(w), int(h)), nil
}

func newLocalStreamer(path string, targetFPS uint, width, height int) *LocalFileStreamer {
	return &LocalFileStreamer{
		path:      path,
		targetFPS: targetFPS,
		width:     width,
		height:    height,
		frameChan: make(chan image.Image, 10),
		errChan:   make(chan error, 1),
		stopChan:  make(chan struct{}),
	}
}

func localArgs(path string, fps uint) []string {
	args := []string{"-loglevel", "error", "-i", path}
	if fps > 0 {
		args = append(args, "-vf", fmt.Sprintf("fps=%d", fps))
	}
	return append(args,
		"-f", "image2pipe",
		"-pix_fmt", "rgba",
		"-vcodec", "rawvideo",
		"-",
	)
}

func (ls *LocalFileStreamer) Start() error {
	ls.cmd = exec.Command("ffmpeg", localArgs(ls.path, ls.targetFPS)...)

	stdout, err := ls.cmd.StdoutPipe()
	if err != nil {
		return err
	}

	if err := ls.cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start error: %w", err)
	}

	go ls.readFrames(stdout)

	return nil
}

const bytesPerPixel = 4

func (ls *LocalFileStreamer) readFrames(stdout io.ReadCloser) {
	defer close(ls.frameChan)
	defer close(ls.errChan)
	defer stdout.Close()
	defer ls.stopCmdOut()

	frameSize := ls.width * ls.height * bytesPerPixel
	buffer := make([]byte, frameSize)

	// with a target rate, frames are paced like playback
	var tick <-chan time.Time
	if ls.targetFPS > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(ls.targetFPS))
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if tick != nil {
			select {
			case <-ls.stopChan:
				return
			case <-tick:
			}
		}

		_, err := io.ReadFull(stdout, buffer)
		if err != nil {
			select {
			case <-ls.stopChan:
				return
			default:
			}
			// end of stream; a truncated last frame is dropped
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return
			}
			ls.errChan <- fmt.Errorf("read error: %v", err)
			return
		}

		pixelData := make([]byte, len(buffer))
		copy(pixelData, buffer)

		img := &image.RGBA{
			Pix:    pixelData,
			Stride: ls.width * bytesPerPixel,
			Rect:   image.Rect(0, 0, ls.width, ls.height),
		}

		select {
		case ls.frameChan <- img:
		case <-ls.stopChan:
			return
		}
	}
}

// stopCmdOut kills and reaps ffmpeg. Both Stop and the reader call it;
// only the first call waits on the process.
func (ls *LocalFileStreamer) stopCmdOut() {
	ls.waitOnce.Do(func() {
		if ls.cmd != nil && ls.cmd.Process != nil {
			ls.cmd.Process.Kill()
			ls.cmd.Wait()
		}
	})
}

func (ls *LocalFileStreamer) Stop() {
	ls.stopOnce.Do(func() {
		close(ls.stopChan)
		ls.stopCmdOut()
	})
}

func (ls *LocalFileStreamer) FrameChan() <-chan image.Image {
	return ls.frameChan
}

func (ls *LocalFileStreamer) ErrorChan() <-chan error {
	return ls.errChan
}

type streamInfo struct {
	Streams []struct {
		Width  uint16 `json:"width"`
		Height uint16 `json:"height"`
	} `json:"streams"`
}

func videoDimensions(path string) (uint16, uint16, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "json",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, 0, err
	}

	return parseStreamInfo(output)
}

func parseStreamInfo(output []byte) (uint16, uint16, error) {
	var data streamInfo
	if err := json.Unmarshal(output, &data); err != nil {
		return 0, 0, err
	}

	if len(data.Streams) == 0 {
		return 0, 0, fmt.Errorf("no video streams found")
	}
	if data.Streams[0].Width == 0 || data.Streams[0].Height == 0 {
		return 0, 0, fmt.Errorf("video stream has no dimensions")
	}

	return data.Streams[0].Width, data.Streams[0].Height, nil
}
