package device

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// DefaultCameraIndex 系统默认摄像头
const DefaultCameraIndex = 0

// Camera wraps a gocv video capture; Close is safe to call more than once.
type Camera struct {
	Index     int
	cap       *gocv.VideoCapture
	closeOnce sync.Once
	closeErr  error
}

// OpenCamera opens the device at index. The returned Camera is never nil,
// so callers can still Close it when err != nil.
func OpenCamera(index int) (*Camera, error) {
	c := &Camera{Index: index}
	vc, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return c, fmt.Errorf("open camera %d: %w", index, err)
	}
	c.cap = vc
	if !vc.IsOpened() {
		return c, fmt.Errorf("open camera %d: device not opened", index)
	}
	return c, nil
}

func (c *Camera) IsOpened() bool {
	return c.cap != nil && c.cap.IsOpened()
}

func (c *Camera) Read(frame *gocv.Mat) bool {
	if c.cap == nil {
		return false
	}
	return c.cap.Read(frame)
}

// Size reports the capture resolution.
func (c *Camera) Size() (int, int) {
	if c.cap == nil {
		return 0, 0
	}
	return int(c.cap.Get(gocv.VideoCaptureFrameWidth)), int(c.cap.Get(gocv.VideoCaptureFrameHeight))
}

func (c *Camera) Close() error {
	c.closeOnce.Do(func() {
		if c.cap != nil {
			c.closeErr = c.cap.Close()
		}
	})
	return c.closeErr
}
