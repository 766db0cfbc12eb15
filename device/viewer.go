package device

import (
	"sync"

	"gocv.io/x/gocv"
)

const WindowTitle = "Corrosion Detection"

// Viewer is a HighGUI window created on the first Show, like cv2.imshow.
type Viewer struct {
	Title     string
	window    *gocv.Window
	closeOnce sync.Once
	closeErr  error
}

func NewViewer(title string) *Viewer {
	return &Viewer{Title: title}
}

func (v *Viewer) Show(img gocv.Mat) error {
	if v.window == nil {
		v.window = gocv.NewWindow(v.Title)
	}
	v.window.IMShow(img)
	return nil
}

// PollKey waits up to delayMs for a key press and returns -1 when none.
func (v *Viewer) PollKey(delayMs int) int {
	if v.window == nil {
		return gocv.WaitKey(delayMs)
	}
	return v.window.WaitKey(delayMs)
}

func (v *Viewer) Close() error {
	v.closeOnce.Do(func() {
		if v.window != nil {
			v.closeErr = v.window.Close()
		}
	})
	return v.closeErr
}
