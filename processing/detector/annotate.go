package processing

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/nfnt/resize"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"kitvision/internal/dataset"
	"kitvision/internal/models"
)

const (
	boxLineWidth = 2
	labelHeight  = 20
	labelPadding = 4
	labelFontPt  = 14
)

// Palette holds the box colour of each known class id.
var Palette = map[int]color.RGBA{
	0: {0, 255, 255, 255},
	1: {0, 0, 255, 255},
	2: {128, 128, 128, 255},
	3: {255, 255, 0, 255},
	4: {0, 255, 0, 255},
	5: {173, 216, 230, 255},
}

var defaultColor = color.RGBA{255, 255, 255, 255}

func ColorFor(classID int) color.RGBA {
	if c, ok := Palette[classID]; ok {
		return c
	}
	return defaultColor
}

func LabelText(name string, confidence float32) string {
	return fmt.Sprintf("%s: %.2f", name, confidence)
}

var (
	faceOnce sync.Once
	face     font.Face
	faceErr  error
)

func labelFace() (font.Face, error) {
	faceOnce.Do(func() {
		f, err := truetype.Parse(goregular.TTF)
		if err != nil {
			faceErr = fmt.Errorf("parse label font: %w", err)
			return
		}
		face = truetype.NewFace(f, &truetype.Options{Size: labelFontPt})
	})
	return face, faceErr
}

// displayName prefers the descriptor's class name and falls back to the
// label the backend reported.
func displayName(d models.Detection, names dataset.ClassNames) string {
	if name, ok := names[d.ClassID]; ok {
		return name
	}
	if d.Label != "" {
		return d.Label
	}
	return dataset.UnknownClass
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(b)
	draw.Draw(rgba, b, img, b.Min, draw.Src)
	return rgba
}

// Annotate draws a box and a "name: confidence" label for every detection.
// RGBA frames are drawn on in place.
func Annotate(frame image.Image, detections []models.Detection, names dataset.ClassNames) (*image.RGBA, error) {
	rgba := toRGBA(frame)
	if len(detections) == 0 {
		return rgba, nil
	}

	ff, err := labelFace()
	if err != nil {
		return nil, err
	}

	dc := gg.NewContextForRGBA(rgba)
	dc.SetFontFace(ff)
	dc.SetLineWidth(boxLineWidth)

	for _, d := range detections {
		col := ColorFor(d.ClassID)
		x1, y1 := float64(d.Box.X1), float64(d.Box.Y1)
		w, h := float64(d.Box.X2-d.Box.X1), float64(d.Box.Y2-d.Box.Y1)

		dc.SetColor(col)
		dc.DrawRectangle(x1, y1, w, h)
		dc.Stroke()

		text := LabelText(displayName(d, names), d.Confidence)
		textW, _ := dc.MeasureString(text)

		dc.DrawRectangle(x1, y1-labelHeight, textW+2*labelPadding, labelHeight)
		dc.Fill()

		dc.SetColor(color.Black)
		dc.DrawString(text, x1+labelPadding, y1-labelPadding)
	}

	return rgba, nil
}

// Resize scales a frame to width x height. Zero dimensions keep the frame as is.
func Resize(frame image.Image, width, height int) image.Image {
	if width <= 0 || height <= 0 {
		return frame
	}
	b := frame.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return frame
	}
	return resize.Resize(uint(width), uint(height), frame, resize.Bilinear)
}
