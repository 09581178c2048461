package capture

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"sync"
)

type FFmpegWebcamStreamer struct {
	stopOnce sync.Once
	waitOnce sync.Once

	deviceName string
	width      int
	height     int
	targetFPS  uint

	cmd       *exec.Cmd
	stderr    bytes.Buffer
	frameChan chan image.Image
	errChan   chan error

	stopChan chan struct{}
}

func NewFFmpegWebcam(deviceName string, targetFps uint, width int, height int) *FFmpegWebcamStreamer {
	return &FFmpegWebcamStreamer{
		deviceName: deviceName,
		width:      width,
		height:     height,
		targetFPS:  targetFps,

		frameChan: make(chan image.Image),
		errChan:   make(chan error, 1),
		stopChan:  make(chan struct{}),
	}
}

func webcamArgs(goos, device string, fps uint, width, height int) []string {
	var input []string
	switch goos {
	case "windows":
		input = []string{"-f", "dshow", "-i", fmt.Sprintf("video=%s", device)}
	case "darwin":
		input = []string{"-f", "avfoundation", "-i", device}
	default:
		input = []string{"-f", "v4l2", "-i", device}
	}

	filter := fmt.Sprintf("scale=%d:%d", width, height)
	if fps > 0 {
		filter = fmt.Sprintf("fps=%d,%s", fps, filter)
	}

	args := append([]string{"-loglevel", "error"}, input...)
	return append(args,
		"-vf", filter,
		"-f", "image2pipe",
		"-pix_fmt", "rgba",
		"-vcodec", "rawvideo",
		"-",
	)
}

func (ws *FFmpegWebcamStreamer) Start() error {
	ws.cmd = exec.Command("ffmpeg", webcamArgs(runtime.GOOS, ws.deviceName, ws.targetFPS, ws.width, ws.height)...)
	ws.cmd.Stderr = &ws.stderr

	stdout, err := ws.cmd.StdoutPipe()
	if err != nil {
		return err
	}

	if err := ws.cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start error: %w. Details: %s", err, ws.stderr.String())
	}

	go ws.readLoop(stdout)

	return nil
}

func (ws *FFmpegWebcamStreamer) readLoop(stdout io.ReadCloser) {
	defer close(ws.frameChan)
	defer close(ws.errChan)
	defer stdout.Close()
	defer ws.stopCmdOut()

	frameSize := ws.width * ws.height * bytesPerPixel
	buffer := make([]byte, frameSize)

	for {
		select {
		case <-ws.stopChan:
			return

		default:
			_, err := io.ReadFull(stdout, buffer)
			if err != nil {
				select {
				case <-ws.stopChan:
					return
				default:
					// a camera never ends on its own, so EOF is a failure too
					ws.errChan <- fmt.Errorf("camera %s read error: %v", ws.deviceName, err)
					return
				}
			}

			pixelData := make([]byte, len(buffer))
			copy(pixelData, buffer)

			img := &image.RGBA{
				Pix:    pixelData,
				Stride: ws.width * bytesPerPixel,
				Rect:   image.Rect(0, 0, ws.width, ws.height),
			}

			// drop the frame when the consumer is still busy
			select {
			case ws.frameChan <- img:
			default:
			}
		}
	}
}

// stopCmdOut kills and reaps ffmpeg. Both Stop and the reader call it;
// only the first call waits on the process.
func (ws *FFmpegWebcamStreamer) stopCmdOut() {
	ws.waitOnce.Do(func() {
		if ws.cmd != nil && ws.cmd.Process != nil {
			ws.cmd.Process.Kill()
			ws.cmd.Wait()
		}
	})
}

func (ws *FFmpegWebcamStreamer) Stop() {
	ws.stopOnce.Do(func() {
		close(ws.stopChan)
		ws.stopCmdOut()
	})
}

func (ws *FFmpegWebcamStreamer) FrameChan() <-chan image.Image { return ws.frameChan }
func (ws *FFmpegWebcamStreamer) ErrorChan() <-chan error       { return ws.errChan }

// CameraDevice maps a camera index to the device name ffmpeg expects on goos.
func CameraDevice(goos string, index int) (string, error) {
	if index < 0 {
		return "", fmt.Errorf("invalid camera index %d", index)
	}

	switch goos {
	case "windows":
		cameras, err := ListCameras()
		if err != nil {
			return "", err
		}
		if index >= len(cameras) {
			return "", fmt.Errorf("camera %d not found (%d available)", index, len(cameras))
		}
		return cameras[index], nil
	case "darwin":
		return strconv.Itoa(index), nil
	default:
		return fmt.Sprintf("/dev/video%d", index), nil
	}
}

var dshowVideoDevice = regexp.MustCompile(`"([^"]+)"\s+\(video\)`)

// ListCameras lists DirectShow video devices. Only meaningful on windows.
func ListCameras() ([]string, error) {
	cmd := exec.Command("ffmpeg", "-list_devices", "true", "-f", "dshow", "-i", "dummy")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// ffmpeg exits non-zero after listing; the listing is on stderr
	_ = cmd.Run()

	return parseDshowDevices(stderr.String()), nil
}

func parseDshowDevices(output string) []string {
	var cameras []string
	seen := make(map[string]bool)

	for _, m := range dshowVideoDevice.FindAllStringSubmatch(output, -1) {
		name := m[1]
		if name != "dummy" && !seen[name] {
			cameras = append(cameras, name)
			seen[name] = true
		}
	}

	return cameras
}
