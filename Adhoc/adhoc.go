package Adhoc

import (
	"CorrosionDetect/logger"
	"CorrosionDetect/monitor"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DmlInstance    = 0x2001
	CpuInstance    = 0x2002
	CudaInstance   = 0x2003
	RocmInstance   = 0x2004
	TimeOutSeconds = 5
)

// InstanceClass maps the config name to the registry code, CpuInstance when
// the name is unknown.
func InstanceClass(name string) int {
	switch name {
	case "Dml":
		return DmlInstance
	case "Cuda":
		return CudaInstance
	case "Rocm":
		return RocmInstance
	default:
		return CpuInstance
	}
}

type RegisterRequest struct {
	Id            string           `json:"id"`
	IP            string           `json:"ip"`
	Port          int              `json:"port"`
	InstanceClass int              `json:"instanceClass"`
	TimeStamp     int64            `json:"timestamp"`
	Running       bool             `json:"running"`
	Frames        int64            `json:"frames"`
	Detections    int64            `json:"detections"`
	ByClass       map[string]int64 `json:"byClass"`
	LastSummary   string           `json:"lastSummary"`
}

type RegisterResponse struct {
	Id      string `json:"id"`
	Success bool   `json:"success"`
}

type RegServerConfig struct {
	Port int
	Addr string
}

func (reg *RegServerConfig) SetAddress(addr string, port int) {
	reg.Addr = addr
	reg.Port = port
}

func (reg RegServerConfig) URL() string {
	return fmt.Sprintf("http://%s:%d/api/register", reg.Addr, reg.Port)
}

// Heartbeat reports the station to the inspection portal.
type Heartbeat struct {
	ID            string
	Server        RegServerConfig
	IP            string
	Port          int
	InstanceClass int
	Status        func() monitor.Status
	Interval      time.Duration

	client *resty.Client
}

func (h *Heartbeat) request() RegisterRequest {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	req := RegisterRequest{
		Id:            h.ID,
		IP:            h.IP,
		Port:          h.Port,
		InstanceClass: h.InstanceClass,
		TimeStamp:     time.Now().Unix(),
	}
	if h.Status != nil {
		st := h.Status()
		req.Running = st.Running
		req.Frames = st.Frames
		req.Detections = st.Detections
		req.ByClass = st.ByClass
		req.LastSummary = st.LastSummary
	}
	return req
}

// Send posts one heartbeat.
func (h *Heartbeat) Send(ctx context.Context) (RegisterResponse, error) {
	if h.client == nil {
		h.client = resty.New().SetTimeout(TimeOutSeconds * time.Second) // 总超时
	}
	var respBody RegisterResponse
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(h.request()).
		SetResult(&respBody). // 2xx 自动反序列化到 respBody
		Post(h.Server.URL())
	if err != nil {
		return respBody, fmt.Errorf("register request: %w", err)
	}
	// 检查 HTTP 状态码
	if resp.IsError() {
		return respBody, fmt.Errorf("register server returned %s: %s", resp.Status(), resp.String())
	}
	return respBody, nil
}

// SendAliveMessage sends a heartbeat right away and then every Interval
// until ctx is cancelled.
func (h *Heartbeat) SendAliveMessage(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	interval := h.Interval
	if interval <= 0 {
		interval = TimeOutSeconds * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	safeDoRequest := func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Log().Error(fmt.Sprintf("SendAliveMessage panic recovered: %v", r))
			}
		}()
		if _, err := h.Send(ctx); err != nil && ctx.Err() == nil {
			logger.Log().Warn("heartbeat failed", zap.String("url", h.Server.URL()), zap.Error(err))
		}
	}
	safeDoRequest()
	for {
		select {
		case <-ctx.Done():
			logger.Log().Info("SendAliveMessage context cancelled, exiting goroutine.")
			return
		case <-ticker.C:
			safeDoRequest()
		}
	}
}
