package capture

import (
	"fmt"
	"runtime"
	"strconv"
)

type Options struct {
	// FPS resamples the source; 0 keeps the native rate.
	FPS uint
	// CaptureWidth and CaptureHeight apply to cameras only; files use their own size.
	CaptureWidth  int
	CaptureHeight int
}

// IsCameraIndex reports whether source names a camera ("0", "1", ...)
// rather than a file.
func IsCameraIndex(source string) bool {
	if source == "" {
		return false
	}
	_, err := strconv.Atoi(source)
	return err == nil && source[0] != '-' && source[0] != '+'
}

// NewStreamer opens a camera for an index source and a file otherwise.
func NewStreamer(source string, opts Options) (VideoStreamer, error) {
	if source == "" {
		return nil, fmt.Errorf("no video source given")
	}

	if IsCameraIndex(source) {
		idx, _ := strconv.Atoi(source)
		device, err := CameraDevice(runtime.GOOS, idx)
		if err != nil {
			return nil, err
		}
		return NewFFmpegWebcam(device, opts.FPS, opts.CaptureWidth, opts.CaptureHeight), nil
	}

	return NewLocalStreamer(source, opts.FPS)
}
