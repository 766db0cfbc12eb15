// Package pipeline drives the capture, inference and display loop.
package pipeline

import (
	iface "CorrosionDetect/interface"
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const (
	QuitKey      = 'q'
	PollDelayMs  = 1
	keyMask      = 0xFF
	noKeyPressed = -1
)

// 循环退出原因
const (
	UserQuit    = "user_quit"
	ReadFailure = "read_failure"
	Interrupted = "interrupted"
	Failed      = "error"
)

var ErrCameraUnavailable = errors.New("cannot open camera")

// Loop owns the camera, model and viewer for the lifetime of Run.
type Loop struct {
	Capture   iface.Capture
	Model     iface.Predictor
	Annotator iface.Annotator
	Viewer    iface.Viewer
	Observer  iface.Observer
	Log       *zap.Logger

	releaseOnce sync.Once
	frames      int64
}

// Frames is the number of frames fully processed by the most recent Run.
func (l *Loop) Frames() int64 {
	return l.frames
}

// Run blocks until the user quits, a frame read fails, ctx is cancelled
// or a stage returns an error. Camera and viewer are released exactly
// once on every path that started the loop. Run may be called again
// with a reopened Capture.
func (l *Loop) Run(ctx context.Context) (reason string, err error) {
	if l.Log == nil {
		l.Log = zap.NewNop()
	}
	l.frames = 0
	l.releaseOnce = sync.Once{}
	if l.Capture == nil || !l.Capture.IsOpened() {
		if l.Observer != nil {
			l.Observer.OnExit(Failed, ErrCameraUnavailable)
		}
		return Failed, ErrCameraUnavailable
	}
	// HighGUI 需要在同一个 OS 线程上调用
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer l.release()
	defer func() {
		if l.Observer != nil {
			l.Observer.OnExit(reason, err)
		}
	}()

	frame := gocv.NewMat()
	defer frame.Close()

	for {
		t0 := time.Now()
		if ok := l.Capture.Read(&frame); !ok || frame.Empty() {
			fmt.Println("Failed to grab frame")
			l.Log.Warn("failed to grab frame, stopping", zap.Int64("Frames", l.frames))
			return ReadFailure, nil
		}
		readDur := time.Since(t0)

		pred, err := l.Model.Predict(frame)
		if err != nil {
			return Failed, fmt.Errorf("inference on frame %d: %w", l.frames, err)
		}

		t1 := time.Now()
		// annotated 归调用方所有，出错时也要关闭
		annotated, err := l.Annotator.Plot(frame, pred)
		if err != nil {
			_ = annotated.Close()
			return Failed, fmt.Errorf("annotate frame %d: %w", l.frames, err)
		}
		renderDur := time.Since(t1)

		t2 := time.Now()
		showErr := l.Viewer.Show(annotated)
		_ = annotated.Close()
		if showErr != nil {
			return Failed, fmt.Errorf("display frame %d: %w", l.frames, showErr)
		}
		displayDur := time.Since(t2)

		if ce := l.Log.Check(zap.DebugLevel, "frame"); ce != nil {
			ce.Write(
				zap.String("Summary", fmt.Sprintf("%dx%d %s", pred.Width, pred.Height, pred.Summary())),
				zap.Duration("Inference", pred.Speed.Inference))
		}
		if l.Observer != nil {
			l.Observer.OnFrame(pred, iface.FrameStats{
				Index:   l.frames,
				Read:    readDur,
				Render:  renderDur,
				Display: displayDur,
			})
		}
		l.frames++

		key := l.Viewer.PollKey(PollDelayMs)
		if key != noKeyPressed && key&keyMask == QuitKey {
			l.Log.Info("quit key pressed", zap.Int64("Frames", l.frames))
			return UserQuit, nil
		}
		select {
		case <-ctx.Done():
			l.Log.Info("interrupted", zap.Error(ctx.Err()))
			return Interrupted, nil
		default:
		}
	}
}

func (l *Loop) release() {
	l.releaseOnce.Do(func() {
		if err := l.Capture.Close(); err != nil {
			l.Log.Error("release camera", zap.Error(err))
		}
		if err := l.Viewer.Close(); err != nil {
			l.Log.Error("close viewer", zap.Error(err))
		}
	})
}
