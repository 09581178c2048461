package capture

import (
	"bytes"
	"image"
	"io"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsCameraIndex(t *testing.T) {
	tests := map[string]bool{
		"0":           true,
		"2":           true,
		"":            false,
		"-1":          false,
		"+1":          false,
		"video.mp4":   false,
		"0.mp4":       false,
		"/dev/video0": false,
		"clips/0":     false,
	}
	for in, want := range tests {
		assert.Equal(t, want, IsCameraIndex(in), "source %q", in)
	}
}

func TestCameraDevice(t *testing.T) {
	dev, err := CameraDevice("linux", 0)
	require.NoError(t, err)
	assert.Equal(t, "/dev/video0", dev)

	dev, err = CameraDevice("darwin", 1)
	require.NoError(t, err)
	assert.Equal(t, "1", dev)

	_, err = CameraDevice("linux", -1)
	assert.Error(t, err)
}

func TestNewStreamer_Errors(t *testing.T) {
	_, err := NewStreamer("", Options{})
	assert.Error(t, err)

	_, err = NewStreamer(filepath.Join(t.TempDir(), "missing.mp4"), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not open video source")
}

func TestLocalArgs(t *testing.T) {
	assert.Equal(t, []string{
		"-loglevel", "error", "-i", "clip.mp4",
		"-f", "image2pipe", "-pix_fmt", "rgba", "-vcodec", "rawvideo", "-",
	}, localArgs("clip.mp4", 0))

	assert.Contains(t, localArgs("clip.mp4", 15), "fps=15")
}

func TestWebcamArgs(t *testing.T) {
	linux := webcamArgs("linux", "/dev/video0", 0, 640, 480)
	assert.Equal(t, []string{
		"-loglevel", "error", "-f", "v4l2", "-i", "/dev/video0",
		"-vf", "scale=640:480",
		"-f", "image2pipe", "-pix_fmt", "rgba", "-vcodec", "rawvideo", "-",
	}, linux)

	win := webcamArgs("windows", "USB Camera", 30, 1280, 720)
	assert.Contains(t, win, "video=USB Camera")
	assert.Contains(t, win, "fps=30,scale=1280:720")

	mac := webcamArgs("darwin", "0", 0, 640, 480)
	assert.Contains(t, mac, "avfoundation")
}

func TestParseStreamInfo(t *testing.T) {
	w, h, err := parseStreamInfo([]byte(`{"streams":[{"width":1920,"height":1080}]}`))
	require.NoError(t, err)
	assert.Equal(t, uint16(1920), w)
	assert.Equal(t, uint16(1080), h)

	_, _, err = parseStreamInfo([]byte(`{"streams":[]}`))
	assert.Error(t, err)

	_, _, err = parseStreamInfo([]byte(`{"streams":[{}]}`))
	assert.Error(t, err)

	_, _, err = parseStreamInfo([]byte(`not json`))
	assert.Error(t, err)
}

func TestParseDshowDevices(t *testing.T) {
	out := `[dshow @ 0000] "Integrated Camera" (video)
[dshow @ 0000]   Alternative name "@device_pnp_..."
[dshow @ 0000] "Microphone Array" (audio)
[dshow @ 0000] "OBS Virtual Camera" (video)
[dshow @ 0000] "Integrated Camera" (video)`

	assert.Equal(t, []string{"Integrated Camera", "OBS Virtual Camera"}, parseDshowDevices(out))
	assert.Empty(t, parseDshowDevices(""))
}

func rawFrames(w, h, n int, extra int) []byte {
	size := w * h * bytesPerPixel
	data := make([]byte, 0, size*n+extra)
	for i := 0; i < n; i++ {
		data = append(data, bytes.Repeat([]byte{byte(i + 1)}, size)...)
	}
	return append(data, bytes.Repeat([]byte{0xff}, extra)...)
}

func collect(t *testing.T, s VideoStreamer) []image.Image {
	t.Helper()
	var frames []image.Image
	timeout := time.After(5 * time.Second)
	for {
		select {
		case f, ok := <-s.FrameChan():
			if !ok {
				return frames
			}
			frames = append(frames, f)
		case <-timeout:
			t.Fatal("stream did not end")
		}
	}
}

func TestLocalStreamer_ReadsUntilEOF(t *testing.T) {
	ls := newLocalStreamer("clip.mp4", 0, 4, 2)
	go ls.readFrames(io.NopCloser(bytes.NewReader(rawFrames(4, 2, 3, 5))))

	frames := collect(t, ls)
	require.Len(t, frames, 3)

	rgba, ok := frames[2].(*image.RGBA)
	require.True(t, ok)
	assert.Equal(t, image.Rect(0, 0, 4, 2), rgba.Bounds())
	assert.Equal(t, byte(3), rgba.Pix[0])

	_, open := <-ls.ErrorChan()
	assert.False(t, open, "end of stream is not an error")
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestLocalStreamer_ReadError(t *testing.T) {
	ls := newLocalStreamer("clip.mp4", 0, 2, 2)
	go ls.readFrames(io.NopCloser(failingReader{}))

	select {
	case err := <-ls.ErrorChan():
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read error")
	case <-time.After(5 * time.Second):
		t.Fatal("expected a read error")
	}
}

func TestLocalStreamer_StopIsIdempotent(t *testing.T) {
	ls := newLocalStreamer("clip.mp4", 0, 2, 2)
	ls.Stop()
	ls.Stop()
}

// startSleeper stands in for a running ffmpeg process.
func startSleeper(t *testing.T) *exec.Cmd {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("sleep is not available on windows")
	}
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	return cmd
}

func stopFromManyGoroutines(s VideoStreamer) {
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Stop()
		}()
	}
	wg.Wait()
}

func TestLocalStreamer_StopWhileReaderExits(t *testing.T) {
	ls := newLocalStreamer("clip.mp4", 0, 2, 2)
	ls.cmd = startSleeper(t)

	pr, pw := io.Pipe()
	go ls.readFrames(pr)

	pw.CloseWithError(io.ErrClosedPipe)
	stopFromManyGoroutines(ls)

	collect(t, ls)
	require.NotNil(t, ls.cmd.ProcessState, "process is reaped")
}

func TestWebcamStreamer_StopWhileReaderExits(t *testing.T) {
	ws := NewFFmpegWebcam("/dev/video0", 0, 2, 2)
	ws.cmd = startSleeper(t)

	pr, pw := io.Pipe()
	go ws.readLoop(pr)

	pw.CloseWithError(io.ErrClosedPipe)
	stopFromManyGoroutines(ws)

	collect(t, ws)
	require.NotNil(t, ws.cmd.ProcessState, "process is reaped")
}
