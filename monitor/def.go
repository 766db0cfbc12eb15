package monitor

import (
	iface "CorrosionDetect/interface"
	"math"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// Status is the station snapshot served at /api/status and sent with
// heartbeats.
type Status struct {
	StationID       string           `json:"stationID"`
	StartedAt       time.Time        `json:"startedAt"`
	Running         bool             `json:"running"`
	Frames          int64            `json:"frames"`
	Detections      int64            `json:"detections"`
	ByClass         map[string]int64 `json:"byClass"`
	LastFrameAt     time.Time        `json:"lastFrameAt,omitempty"`
	LastSummary     string           `json:"lastSummary"`
	LastInferenceMs float64          `json:"lastInferenceMs"`
	ExitReason      string           `json:"exitReason,omitempty"`
	ExitError       string           `json:"exitError,omitempty"`
}

// Station collects loop metrics. It implements iface.Observer and never
// blocks the loop.
type Station struct {
	ID       string
	Registry *prometheus.Registry
	Hub      *Hub

	memUsage         prometheus.Gauge
	cpuUsage         prometheus.Gauge
	framesTotal      prometheus.Counter
	detectionsTotal  *prometheus.CounterVec
	exitsTotal       *prometheus.CounterVec
	feedDropped      prometheus.Counter
	inferenceSeconds prometheus.Histogram
	frameSeconds     prometheus.Histogram

	mu     sync.RWMutex
	status Status
	proc   *process.Process
}

var _ iface.Observer = (*Station)(nil)

func NewStation(id string) *Station {
	s := &Station{
		ID:       id,
		Registry: prometheus.NewRegistry(),
		status: Status{
			StationID: id,
			StartedAt: time.Now(),
			Running:   true,
			ByClass:   map[string]int64{},
		},
	}
	s.memUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "memory_usage_Megabytes",
		Help: "Memory usage in Megabytes",
	})
	s.cpuUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cpu_usage_percent",
		Help: "CPU usage in percent",
	})
	s.framesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "frames_processed_total",
		Help: "Total number of frames read, inferred and displayed",
	})
	s.detectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "detections_total",
		Help: "Total number of detections per class",
	}, []string{"class"})
	s.exitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loop_exits_total",
		Help: "Detection loop terminations by reason",
	}, []string{"reason"})
	s.feedDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_events_dropped_total",
		Help: "Frame events not delivered to slow /ws/detections subscribers",
	})
	s.Hub = NewHub(s.feedDropped)
	s.inferenceSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "inference_seconds",
		Help:    "Model forward pass latency",
		Buckets: prometheus.ExponentialBuckets(0.002, 2, 10),
	})
	s.frameSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "frame_seconds",
		Help:    "End to end latency of one loop iteration before the key poll",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
	})
	s.Registry.MustRegister(s.memUsage, s.cpuUsage, s.framesTotal, s.detectionsTotal,
		s.exitsTotal, s.feedDropped, s.inferenceSeconds, s.frameSeconds)
	return s
}

func (s *Station) OnFrame(pred iface.Prediction, stats iface.FrameStats) {
	byClass := pred.ByClass()
	s.framesTotal.Inc()
	s.inferenceSeconds.Observe(pred.Speed.Inference.Seconds())
	s.frameSeconds.Observe((stats.Read + pred.Speed.Total() + stats.Render + stats.Display).Seconds())
	for name, results := range byClass {
		// 未检出的类别也要出现在 /metrics 中
		s.detectionsTotal.WithLabelValues(name).Add(float64(len(results)))
	}

	now := time.Now()
	inferMs := float64(pred.Speed.Inference.Microseconds()) / 1000
	s.mu.Lock()
	s.status.Frames++
	s.status.Detections += int64(len(pred.Results))
	for name, results := range byClass {
		s.status.ByClass[name] += int64(len(results))
	}
	s.status.LastFrameAt = now
	s.status.LastSummary = pred.Summary()
	s.status.LastInferenceMs = inferMs
	s.mu.Unlock()

	if s.Hub != nil {
		s.Hub.Publish(newFrameEvent(s.ID, stats.Index, now, pred))
	}
}

func (s *Station) OnExit(reason string, err error) {
	s.exitsTotal.WithLabelValues(reason).Inc()
	s.mu.Lock()
	s.status.Running = false
	s.status.ExitReason = reason
	if err != nil {
		s.status.ExitError = err.Error()
	}
	s.mu.Unlock()
}

// Snapshot returns a copy of the current status.
func (s *Station) Snapshot() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.status
	st.ByClass = make(map[string]int64, len(s.status.ByClass))
	for k, v := range s.status.ByClass {
		st.ByClass[k] = v
	}
	return st
}

// CheckProcessInfo samples RSS and CPU of this process into the gauges.
func (s *Station) CheckProcessInfo() {
	if s.proc == nil {
		p, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			return
		}
		s.proc = p
	}
	if memInfo, err := s.proc.MemoryInfo(); err == nil {
		s.memUsage.Set(float64(memInfo.RSS / 1024 / 1024))
	}
	if cpuPercent, err := s.proc.CPUPercent(); err == nil {
		s.cpuUsage.Set(math.Round(cpuPercent*100) / 100)
	}
}
