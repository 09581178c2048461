package capture

import (
	"image"
)

// VideoStreamer delivers decoded RGBA frames. FrameChan is closed when the
// stream ends; a failure is sent on ErrorChan first.
type VideoStreamer interface {
	Start() error
	Stop()
	FrameChan() <-chan image.Image
	ErrorChan() <-chan error
}
