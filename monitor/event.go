package monitor

import (
	iface "CorrosionDetect/interface"
	"time"
)

type DetectionDTO struct {
	Class      string     `json:"class"`
	Confidence float32    `json:"confidence"`
	Box        [4]float32 `json:"box"` // x1, y1, x2, y2
}

// FrameEvent is pushed to /ws/detections subscribers for every frame.
type FrameEvent struct {
	StationID   string         `json:"stationID"`
	Frame       int64          `json:"frame"`
	Timestamp   time.Time      `json:"timestamp"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
	InferenceMs float64        `json:"inferenceMs"`
	Detections  []DetectionDTO `json:"detections"`
}

func newFrameEvent(stationID string, frame int64, ts time.Time, pred iface.Prediction) FrameEvent {
	ev := FrameEvent{
		StationID:   stationID,
		Frame:       frame,
		Timestamp:   ts,
		Width:       pred.Width,
		Height:      pred.Height,
		InferenceMs: float64(pred.Speed.Inference.Microseconds()) / 1000,
		Detections:  make([]DetectionDTO, 0, len(pred.Results)),
	}
	for _, r := range pred.Results {
		ev.Detections = append(ev.Detections, DetectionDTO{
			Class:      r.Name,
			Confidence: r.Conf,
			Box:        [4]float32{r.Box.LT.X, r.Box.LT.Y, r.Box.RB.X, r.Box.RB.Y},
		})
	}
	return ev
}
