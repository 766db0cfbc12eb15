package iface

import (
	"time"

	"gocv.io/x/gocv"
)

// Backend 检测引擎生命周期
type Backend interface {
	LoadModel(modelPath string, names NamesConf, conf float32, iou float32, useGPU bool) (bool, error)
	Destroy()
	CheckConfig() EngineConfig
	SetInputSize(size int)
	Predictor
}

// Predictor runs the detector on a single frame.
type Predictor interface {
	Predict(img gocv.Mat) (Prediction, error)
}

// Capture is an open video source.
type Capture interface {
	IsOpened() bool
	Read(frame *gocv.Mat) bool
	Close() error
}

// Viewer shows frames and polls the keyboard.
type Viewer interface {
	Show(img gocv.Mat) error
	PollKey(delayMs int) int
	Close() error
}

// Annotator draws a prediction onto a copy of the frame. The caller owns
// and closes the returned Mat, also when err != nil.
type Annotator interface {
	Plot(img gocv.Mat, pred Prediction) (gocv.Mat, error)
}

// FrameStats 循环每帧耗时
type FrameStats struct {
	Index   int64
	Read    time.Duration
	Render  time.Duration
	Display time.Duration
}

// Observer receives loop events. Implementations must not block.
type Observer interface {
	OnFrame(pred Prediction, stats FrameStats)
	OnExit(reason string, err error)
}
