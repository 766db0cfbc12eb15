package engine

import (
	iface "CorrosionDetect/interface"
	"fmt"
	"image"
	"sort"

	"gocv.io/x/gocv"
)

type candidate struct {
	classID int
	conf    float32
	x1, y1  float32
	x2, y2  float32
}

// decodeYOLOv8 reads a [4+nc, anchors] row-major output: rows 0..3 are
// cx, cy, w, h in input pixels, the rest are per-class scores.
// Boxes are mapped back through lb and clipped to the frame.
func decodeYOLOv8(data []float32, features, anchors int, conf float32, lb Letterbox, frameW, frameH int) ([]candidate, error) {
	if features <= 4 {
		return nil, fmt.Errorf("output has %d features, want > 4", features)
	}
	if len(data) < features*anchors {
		return nil, fmt.Errorf("output holds %d values, want %d", len(data), features*anchors)
	}
	fw, fh := float32(frameW), float32(frameH)
	var out []candidate
	for i := 0; i < anchors; i++ {
		maxScore := float32(0)
		maxClassID := 0
		for c := 4; c < features; c++ {
			score := data[c*anchors+i]
			if score > maxScore {
				maxScore = score
				maxClassID = c - 4
			}
		}
		if maxScore < conf {
			continue
		}
		cx := data[0*anchors+i]
		cy := data[1*anchors+i]
		w := data[2*anchors+i]
		h := data[3*anchors+i]

		x1, y1 := lb.ToOriginal(cx-w/2, cy-h/2)
		x2, y2 := lb.ToOriginal(cx+w/2, cy+h/2)
		out = append(out, candidate{
			classID: maxClassID,
			conf:    maxScore,
			x1:      clamp(x1, 0, fw),
			y1:      clamp(y1, 0, fh),
			x2:      clamp(x2, 0, fw),
			y2:      clamp(y2, 0, fh),
		})
	}
	return out, nil
}

// suppress runs NMS and returns the kept candidates, most confident first.
func suppress(cands []candidate, conf, iou float32) []candidate {
	if len(cands) == 0 {
		return nil
	}
	// 按类别偏移，避免不同类别之间互相抑制
	const classOffset = 7680
	boxes := make([]image.Rectangle, len(cands))
	scores := make([]float32, len(cands))
	for i, c := range cands {
		off := c.classID * classOffset
		boxes[i] = image.Rect(int(c.x1)+off, int(c.y1)+off, int(c.x2)+off, int(c.y2)+off)
		scores[i] = c.conf
	}
	indices := gocv.NMSBoxes(boxes, scores, conf, iou)
	kept := make([]candidate, 0, len(indices))
	for _, idx := range indices {
		kept = append(kept, cands[idx])
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].conf > kept[j].conf
	})
	return kept
}

func toResults(cands []candidate, names []string) []iface.Result {
	results := make([]iface.Result, 0, len(cands))
	for _, c := range cands {
		box := iface.BoxFromXYXY(c.x1, c.y1, c.x2, c.y2)
		results = append(results, iface.Result{
			ClassID: c.classID,
			Name:    className(names, c.classID),
			Conf:    c.conf,
			Box:     box,
			Center: iface.Position{
				X: (box.LT.X + box.RB.X) / 2,
				Y: (box.LT.Y + box.RB.Y) / 2,
			},
		})
	}
	return results
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
