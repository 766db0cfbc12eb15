package iface

import (
	"fmt"
	"image"
	"sort"
	"strings"
	"time"
)

// NamesConf 类别名来源: IsFile 为 true 时 Data 是文件路径(txt 或 data.yaml)，否则是 []string
type NamesConf struct {
	IsFile bool
	Data   any
}

type EngineConfig struct {
	UseGPU    bool
	ModelPath string
	Names     NamesConf
	Conf      float32
	Iou       float32
	InputSize int
}

type Position struct {
	X, Y float32
}

type Box struct {
	LT Position
	RT Position
	RB Position
	LB Position
}

// BoxFromXYXY builds a four-corner box from left, top, right, bottom.
func BoxFromXYXY(x1, y1, x2, y2 float32) Box {
	return Box{
		LT: Position{X: x1, Y: y1},
		RT: Position{X: x2, Y: y1},
		RB: Position{X: x2, Y: y2},
		LB: Position{X: x1, Y: y2},
	}
}

// Rect 返回整数像素矩形，用于绘制
func (b Box) Rect() image.Rectangle {
	return image.Rect(int(b.LT.X), int(b.LT.Y), int(b.RB.X), int(b.RB.Y))
}

type Result struct {
	ClassID int
	Name    string
	Conf    float32
	Box     Box
	Center  Position
}

// Speed 单帧各阶段耗时
type Speed struct {
	Preprocess  time.Duration
	Inference   time.Duration
	Postprocess time.Duration
}

func (s Speed) Total() time.Duration {
	return s.Preprocess + s.Inference + s.Postprocess
}

// Prediction is the detection result for one frame. Boxes are in the
// pixel coordinates of the original frame.
type Prediction struct {
	Width   int
	Height  int
	Results []Result
	Names   []string
	Speed   Speed
}

// ByClass groups results per class name. Every known class is present,
// with an empty slice when nothing of that class was found.
func (p Prediction) ByClass() map[string][]Result {
	resultDict := make(map[string][]Result, len(p.Names))
	for _, name := range p.Names {
		resultDict[name] = []Result{}
	}
	for _, r := range p.Results {
		resultDict[r.Name] = append(resultDict[r.Name], r)
	}
	return resultDict
}

// Summary renders counts like "2 corrosions, 1 rust" in class-id order.
func (p Prediction) Summary() string {
	if len(p.Results) == 0 {
		return "(no detections)"
	}
	counts := make(map[int]int)
	names := make(map[int]string)
	for _, r := range p.Results {
		counts[r.ClassID]++
		names[r.ClassID] = r.Name
	}
	ids := make([]int, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		name := names[id]
		if counts[id] > 1 {
			name += "s"
		}
		parts = append(parts, fmt.Sprintf("%d %s", counts[id], name))
	}
	return strings.Join(parts, ", ")
}
