package engine

import (
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"
)

// padColor 与 ultralytics LetterBox 相同的灰色填充
var padColor = color.RGBA{R: 114, G: 114, B: 114, A: 0}

// Letterbox describes an aspect-preserving resize into a square input
// with centered constant padding.
type Letterbox struct {
	Size   int
	Scale  float32
	NewW   int
	NewH   int
	Top    int
	Bottom int
	Left   int
	Right  int
}

func computeLetterbox(width, height, size int) Letterbox {
	r := math.Min(float64(size)/float64(height), float64(size)/float64(width))
	newW := int(math.Round(float64(width) * r))
	newH := int(math.Round(float64(height) * r))
	dw := float64(size-newW) / 2
	dh := float64(size-newH) / 2
	return Letterbox{
		Size:   size,
		Scale:  float32(r),
		NewW:   newW,
		NewH:   newH,
		Top:    int(math.Round(dh - 0.1)),
		Bottom: int(math.Round(dh + 0.1)),
		Left:   int(math.Round(dw - 0.1)),
		Right:  int(math.Round(dw + 0.1)),
	}
}

// ToOriginal maps a point in network input space back to the source frame.
func (l Letterbox) ToOriginal(x, y float32) (float32, float32) {
	return (x - float32(l.Left)) / l.Scale, (y - float32(l.Top)) / l.Scale
}

// Apply resizes and pads img. The caller closes the returned Mat.
func (l Letterbox) Apply(img gocv.Mat) gocv.Mat {
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Pt(l.NewW, l.NewH), 0, 0, gocv.InterpolationLinear)
	padded := gocv.NewMat()
	gocv.CopyMakeBorder(resized, &padded, l.Top, l.Bottom, l.Left, l.Right, gocv.BorderConstant, padColor)
	return padded
}
