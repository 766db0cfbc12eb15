package engine

import (
	iface "CorrosionDetect/interface"
	"CorrosionDetect/logger"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Detector 基于 gocv DNN 的 YOLOv8 ONNX 检测器
type Detector struct {
	ModelPath string
	Names     []string
	Conf      float32
	Iou       float32
	UseGPU    bool
	InputSize int
	State     int

	mu     sync.Mutex
	net    gocv.Net
	loaded bool
}

var _ iface.Backend = (*Detector)(nil)

func (d *Detector) New() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.InputSize == 0 {
		d.InputSize = DefaultInputSize
	}
	d.State = REGISTERED
	return true
}

func (d *Detector) CheckConfig() iface.EngineConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	retConfig := iface.EngineConfig{}
	retConfig.ModelPath = d.ModelPath
	retConfig.Conf = d.Conf
	retConfig.Iou = d.Iou
	retConfig.UseGPU = d.UseGPU
	retConfig.InputSize = d.InputSize
	retConfig.Names = iface.NamesConf{
		IsFile: false,
		Data:   append([]string(nil), d.Names...),
	}
	return retConfig
}

func (d *Detector) LoadModel(modelPath string, names iface.NamesConf, conf float32, iou float32, useGPU bool) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.State {
	case UNREGISTERED:
		return false, ErrNotRegistered
	case BUSY:
		return false, ErrBusy
	}
	if conf < 0 || conf > 1 {
		return false, fmt.Errorf("confidence must be between 0.0 and 1.0, got %f", conf)
	}
	if iou < 0 || iou > 1 {
		return false, fmt.Errorf("IoU must be between 0.0 and 1.0, got %f", iou)
	}
	if strings.ToLower(filepath.Ext(modelPath)) != ".onnx" {
		return false, fmt.Errorf("LoadModel only supports .onnx, got %q", modelPath)
	}
	if _, err := os.Stat(modelPath); err != nil {
		return false, fmt.Errorf("model file: %w", err)
	}
	classNames, err := LoadNames(names)
	if err != nil {
		return false, fmt.Errorf("load names: %w", err)
	}

	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return false, fmt.Errorf("failed to load network from %s", modelPath)
	}
	backend, target := gocv.NetBackendDefault, gocv.NetTargetCPU
	if useGPU {
		backend, target = gocv.NetBackendCUDA, gocv.NetTargetCUDA
	}
	errBackend := net.SetPreferableBackend(backend)
	errTarget := net.SetPreferableTarget(target)
	if errBackend != nil || errTarget != nil {
		_ = net.Close()
		return false, fmt.Errorf("failed to set preferable backend or target")
	}

	if d.loaded {
		_ = d.net.Close()
	}
	d.net = net
	d.loaded = true
	d.Names = classNames
	d.ModelPath = modelPath
	d.Conf = conf
	d.Iou = iou
	d.UseGPU = useGPU
	d.State = IDLE
	logger.Log().Info("model loaded",
		zap.String("ModelPath", modelPath),
		zap.Strings("Names", classNames),
		zap.Float32("Confidence", conf),
		zap.Float32("IoU", iou),
		zap.Bool("UseGPU", useGPU),
		zap.Int("InputSize", d.InputSize))
	return true, nil
}

func (d *Detector) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		_ = d.net.Close()
		d.loaded = false
	}
	d.ModelPath = ""
	d.Names = nil
	d.Conf = 0
	d.Iou = 0
	d.UseGPU = false
	d.State = UNREGISTERED
}

// SetInputSize 必须与导出模型时的 imgsz 一致
func (d *Detector) SetInputSize(size int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if size > 0 {
		d.InputSize = size
	}
}

func (d *Detector) acquire() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.State {
	case UNREGISTERED:
		return ErrNotRegistered
	case REGISTERED:
		return ErrNotLoaded
	case BUSY:
		return ErrBusy
	}
	d.State = BUSY
	return nil
}

func (d *Detector) release() {
	d.mu.Lock()
	if d.State == BUSY {
		d.State = IDLE
	}
	d.mu.Unlock()
}

// Predict runs one letterboxed forward pass on img.
func (d *Detector) Predict(img gocv.Mat) (iface.Prediction, error) {
	if err := d.acquire(); err != nil {
		return iface.Prediction{}, err
	}
	defer d.release()
	if img.Empty() {
		return iface.Prediction{}, fmt.Errorf("empty image")
	}

	pred := iface.Prediction{
		Width:  img.Cols(),
		Height: img.Rows(),
		Names:  d.Names,
	}

	t0 := time.Now()
	lb := computeLetterbox(pred.Width, pred.Height, d.InputSize)
	padded := lb.Apply(img)
	defer padded.Close()
	blob := gocv.BlobFromImage(padded, 1.0/255.0, image.Pt(d.InputSize, d.InputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()
	pred.Speed.Preprocess = time.Since(t0)

	t1 := time.Now()
	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()
	pred.Speed.Inference = time.Since(t1)

	t2 := time.Now()
	// YOLOv8 输出形状: [1, 4+nc, anchors]
	sizes := output.Size()
	if len(sizes) != 3 {
		return pred, fmt.Errorf("unexpected output shape %v", sizes)
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return pred, fmt.Errorf("read output: %w", err)
	}
	cands, err := decodeYOLOv8(data, sizes[1], sizes[2], d.Conf, lb, pred.Width, pred.Height)
	if err != nil {
		return pred, err
	}
	pred.Results = toResults(suppress(cands, d.Conf, d.Iou), d.Names)
	pred.Speed.Postprocess = time.Since(t2)
	return pred, nil
}

// Warmup 首帧前预热，GPU 下避免第一帧卡顿
func (d *Detector) Warmup(times int) {
	warmMat := gocv.NewMatWithSize(d.InputSize, d.InputSize, gocv.MatTypeCV8UC3)
	defer warmMat.Close()
	for i := 0; i < times; i++ {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Log().Error(fmt.Sprintf("panic during warmup predict: %v", r))
				}
			}()
			if _, err := d.Predict(warmMat); err != nil {
				logger.Log().Warn("warmup predict failed", zap.Error(err))
			}
		}()
	}
	logger.Log().Info("warm up finished", zap.Int("Times", times))
}
