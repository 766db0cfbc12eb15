package render

import (
	iface "CorrosionDetect/interface"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func blank(rows, cols int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, gocv.MatTypeCV8UC3)
}

func TestLineWidth(t *testing.T) {
	assert.Equal(t, 2, LineWidth(640, 480))
	assert.Equal(t, 3, LineWidth(1280, 720))
	assert.Equal(t, 5, LineWidth(1920, 1080))
	assert.Equal(t, 2, LineWidth(10, 10))
}

func TestHexToRGBA(t *testing.T) {
	assert.Equal(t, color.RGBA{R: 0xFF, G: 0x38, B: 0x38}, hexToRGBA("FF3838"))
	assert.Equal(t, color.RGBA{R: 0x00, G: 0xC2, B: 0xFF}, hexToRGBA("00C2FF"))
}

func TestColorFor(t *testing.T) {
	a := NewAnnotator()
	assert.Equal(t, a.ColorFor(0), a.ColorFor(len(palette)))
	assert.NotEqual(t, a.ColorFor(0), a.ColorFor(1))
	assert.Equal(t, a.ColorFor(3), a.ColorFor(-3))
}

func TestLabel(t *testing.T) {
	a := NewAnnotator()
	r := iface.Result{Name: "corrosion", Conf: 0.876}
	assert.Equal(t, "corrosion 0.88", a.Label(r))
	a.ShowConf = false
	assert.Equal(t, "corrosion", a.Label(r))
	a.ShowLabels, a.ShowConf = false, true
	assert.Equal(t, "0.88", a.Label(r))
	a.ShowConf = false
	assert.Equal(t, "", a.Label(r))
}

func TestPlot_DoesNotMutateInput(t *testing.T) {
	img := blank(480, 640)
	defer img.Close()
	a := NewAnnotator()
	pred := iface.Prediction{
		Width:  640,
		Height: 480,
		Results: []iface.Result{
			{ClassID: 0, Name: "corrosion", Conf: 0.9, Box: iface.BoxFromXYXY(100, 100, 200, 200)},
			{ClassID: 0, Name: "corrosion", Conf: 0.4, Box: iface.BoxFromXYXY(0, 0, 50, 50)},
		},
	}
	out, err := a.Plot(img, pred)
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, 0, gocv.CountNonZero(firstChannel(t, img)))
	assert.Equal(t, img.Rows(), out.Rows())
	assert.Equal(t, img.Cols(), out.Cols())

	// 框的左边线被画上 palette[0] = FF3838 (BGR 38 38 FF)
	px := out.GetVecbAt(150, 100)
	assert.Equal(t, []uint8{0x38, 0x38, 0xFF}, px)
	// 框内部保持原样
	assert.Equal(t, []uint8{0, 0, 0}, out.GetVecbAt(150, 150))
}

func TestPlot_NoDetectionsReturnsCopy(t *testing.T) {
	img := blank(48, 64)
	defer img.Close()
	out, err := NewAnnotator().Plot(img, iface.Prediction{Width: 64, Height: 48})
	require.NoError(t, err)
	defer out.Close()
	assert.False(t, out.Empty())
	assert.Equal(t, 0, gocv.CountNonZero(firstChannel(t, out)))
}

func firstChannel(t *testing.T, img gocv.Mat) gocv.Mat {
	t.Helper()
	channels := gocv.Split(img)
	for _, ch := range channels[1:] {
		_ = ch.Close()
	}
	t.Cleanup(func() { _ = channels[0].Close() })
	return channels[0]
}
