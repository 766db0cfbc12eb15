package monitor

import (
	"CorrosionDetect/logger"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const sampleInterval = 500 * time.Millisecond

// Router exposes metrics, status and the live detection feed.
func (s *Station) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{Registry: s.Registry})))
	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/api/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": s.Snapshot()})
	})
	r.GET("/ws/detections", func(c *gin.Context) {
		s.Hub.ServeWS(c.Writer, c.Request)
	})
	return r
}

// StartMon serves the router on port and samples process usage until ctx
// is cancelled.
func StartMon(ctx context.Context, port int, s *Station) {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Router(),
	}
	go func() {
		logger.Log().Info("monitor listening", zap.Int("Port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log().Error("monitor ListenAndServe error", zap.Error(err))
		}
	}()
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()
checkPcs:
	for {
		select {
		case <-ctx.Done():
			break checkPcs
		case <-ticker.C:
			s.CheckProcessInfo()
		}
	}
	s.Hub.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log().Error("monitor shutdown error", zap.Error(err))
	}
}
