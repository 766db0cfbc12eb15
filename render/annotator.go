// Package render draws detection overlays onto frames.
package render

import (
	iface "CorrosionDetect/interface"
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"
)

// palette 与 ultralytics 默认 20 色一致
var palette = []string{
	"FF3838", "FF9D97", "FF701F", "FFB21D", "CFD231", "48F90A", "92CC17", "3DDB86", "1A9334", "00D4BB",
	"2C99A8", "00C2FF", "344593", "6473FF", "0018EC", "8438FF", "520085", "CB38FF", "FF95C8", "FF37C7",
}

var textColor = color.RGBA{R: 255, G: 255, B: 255, A: 0}

// Annotator renders boxes, labels and confidences on a copy of a frame.
type Annotator struct {
	ShowLabels bool
	ShowConf   bool
	Font       gocv.HersheyFont
	colors     []color.RGBA
}

var _ iface.Annotator = (*Annotator)(nil)

func NewAnnotator() *Annotator {
	colors := make([]color.RGBA, len(palette))
	for i, hex := range palette {
		colors[i] = hexToRGBA(hex)
	}
	return &Annotator{
		ShowLabels: true,
		ShowConf:   true,
		Font:       gocv.FontHersheySimplex,
		colors:     colors,
	}
}

// ColorFor returns the drawing color of a class.
func (a *Annotator) ColorFor(classID int) color.RGBA {
	if classID < 0 {
		classID = -classID
	}
	return a.colors[classID%len(a.colors)]
}

// LineWidth scales with the frame like ultralytics plot().
func LineWidth(width, height int) int {
	lw := int(math.Round(float64(width+height) / 2 * 0.003))
	if lw < 2 {
		lw = 2
	}
	return lw
}

// Label is the text drawn above a box.
func (a *Annotator) Label(r iface.Result) string {
	switch {
	case a.ShowLabels && a.ShowConf:
		return fmt.Sprintf("%s %.2f", r.Name, r.Conf)
	case a.ShowLabels:
		return r.Name
	case a.ShowConf:
		return fmt.Sprintf("%.2f", r.Conf)
	}
	return ""
}

// Plot draws pred on a clone of img; img itself is not modified.
func (a *Annotator) Plot(img gocv.Mat, pred iface.Prediction) (gocv.Mat, error) {
	out := img.Clone()
	if len(pred.Results) == 0 {
		return out, nil
	}
	lw := LineWidth(out.Cols(), out.Rows())
	tf := lw - 1
	if tf < 1 {
		tf = 1
	}
	fontScale := float64(lw) / 3

	// 置信度低的先画，高的压在上面
	for i := len(pred.Results) - 1; i >= 0; i-- {
		r := pred.Results[i]
		c := a.ColorFor(r.ClassID)
		rect := r.Box.Rect()
		if err := gocv.Rectangle(&out, rect, c, lw); err != nil {
			_ = out.Close()
			return gocv.NewMat(), fmt.Errorf("failed to draw rectangle: %w", err)
		}
		label := a.Label(r)
		if label == "" {
			continue
		}
		if err := a.drawLabel(&out, rect, label, c, fontScale, tf); err != nil {
			_ = out.Close()
			return gocv.NewMat(), err
		}
	}
	return out, nil
}

func (a *Annotator) drawLabel(img *gocv.Mat, rect image.Rectangle, label string, c color.RGBA, fontScale float64, tf int) error {
	size := gocv.GetTextSize(label, a.Font, fontScale, tf)
	// 上方放不下时画在框内
	outside := rect.Min.Y-size.Y-3 >= 0
	bg := image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+size.X, rect.Min.Y+size.Y+3)
	textOrg := image.Pt(rect.Min.X, rect.Min.Y+size.Y+2)
	if outside {
		bg = image.Rect(rect.Min.X, rect.Min.Y-size.Y-3, rect.Min.X+size.X, rect.Min.Y)
		textOrg = image.Pt(rect.Min.X, rect.Min.Y-2)
	}
	if err := gocv.Rectangle(img, bg, c, -1); err != nil {
		return fmt.Errorf("failed to draw label box: %w", err)
	}
	if err := gocv.PutText(img, label, textOrg, a.Font, fontScale, textColor, tf); err != nil {
		return fmt.Errorf("failed to draw text: %w", err)
	}
	return nil
}

func hexToRGBA(hex string) color.RGBA {
	var r, g, b uint8
	_, _ = fmt.Sscanf(hex, "%02X%02X%02X", &r, &g, &b)
	return color.RGBA{R: r, G: g, B: b, A: 0}
}
