package ui

import (
	"fmt"
	"image"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	processing "kitvision/processing/detector"
)

const defaultDisplayFPS = 30

// Viewer shows annotated frames in a window. Pressing q or closing the
// window ends the session.
type Viewer struct {
	fyneApp fyne.App
	mainWin fyne.Window

	videoCanvas  *canvas.Image
	latencyLabel *widget.Label
	fpsLabel     *widget.Label

	displayFPS uint

	mu        sync.Mutex
	lastFrame image.Image
	stats     processing.Stats

	quit     chan struct{}
	quitOnce sync.Once
}

func NewViewer(title string, width, height int, displayFPS uint) *Viewer {
	if width <= 0 || height <= 0 {
		width, height = 960, 540
	}
	if displayFPS == 0 {
		displayFPS = defaultDisplayFPS
	}

	a := app.New()
	w := a.NewWindow(title)
	w.Resize(fyne.NewSize(float32(width), float32(height)))

	return &Viewer{
		fyneApp:    a,
		mainWin:    w,
		displayFPS: displayFPS,
		quit:       make(chan struct{}),
	}
}

// Show stores the latest frame; the display loop picks it up on its next tick.
func (v *Viewer) Show(frame image.Image, stats processing.Stats) {
	v.mu.Lock()
	v.lastFrame = frame
	v.stats = stats
	v.mu.Unlock()
}

func (v *Viewer) Done() <-chan struct{} {
	return v.quit
}

func (v *Viewer) requestQuit() {
	v.quitOnce.Do(func() { close(v.quit) })
}

// Run opens the window and calls work in the background. It returns once the
// window is gone and work has returned; the window closes itself when work
// returns first. work must stop when Done is closed.
func (v *Viewer) Run(work func()) {
	v.videoCanvas = canvas.NewImageFromImage(nil)
	v.videoCanvas.FillMode = canvas.ImageFillContain
	v.videoCanvas.SetMinSize(fyne.NewSize(640, 360))

	v.latencyLabel = widget.NewLabel(formatLatency(0))
	v.fpsLabel = widget.NewLabel(formatFPS(0))
	hint := widget.NewLabel("press q to quit")

	v.mainWin.SetContent(container.NewBorder(
		container.NewHBox(v.fpsLabel, widget.NewSeparator(), v.latencyLabel, widget.NewSeparator(), hint),
		nil, nil, nil,
		v.videoCanvas,
	))

	v.mainWin.Canvas().SetOnTypedRune(func(r rune) {
		if r == 'q' || r == 'Q' {
			v.requestQuit()
			v.fyneApp.Quit()
		}
	})
	v.mainWin.SetCloseIntercept(func() {
		v.requestQuit()
		v.mainWin.Close()
	})

	go v.runPlayerLoop()
	go v.runStatLoop()
	workDone := make(chan struct{})
	go func() {
		defer close(workDone)
		work()

		select {
		case <-v.quit:
		default:
			v.requestQuit()
			fyne.Do(v.fyneApp.Quit)
		}
	}()

	v.mainWin.CenterOnScreen()
	v.mainWin.ShowAndRun()

	v.requestQuit()
	<-workDone
}

func (v *Viewer) runPlayerLoop() {
	ticker := time.NewTicker(time.Second / time.Duration(v.displayFPS))
	defer ticker.Stop()

	var shown image.Image
	for {
		select {
		case <-ticker.C:
			v.mu.Lock()
			frame := v.lastFrame
			v.mu.Unlock()

			if frame == nil || frame == shown {
				continue
			}
			shown = frame
			fyne.Do(func() {
				v.videoCanvas.Image = frame
				v.videoCanvas.Refresh()
			})

		case <-v.quit:
			return
		}
	}
}

func (v *Viewer) runStatLoop() {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			v.mu.Lock()
			stats := v.stats
			v.mu.Unlock()

			fyne.Do(func() {
				v.latencyLabel.SetText(formatLatency(stats.Latency))
				v.fpsLabel.SetText(formatFPS(stats.FPS))
			})
		case <-v.quit:
			return
		}
	}
}

func formatFPS(v uint) string {
	return fmt.Sprintf("FPS: %d", v)
}

func formatLatency(v time.Duration) string {
	return fmt.Sprintf("Latency: %d ms", v.Milliseconds())
}
