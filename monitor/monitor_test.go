package monitor

import (
	iface "CorrosionDetect/interface"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePrediction() iface.Prediction {
	return iface.Prediction{
		Width:  640,
		Height: 480,
		Names:  []string{"corrosion", "rust"},
		Results: []iface.Result{
			{ClassID: 0, Name: "corrosion", Conf: 0.91, Box: iface.BoxFromXYXY(10, 20, 110, 220)},
			{ClassID: 0, Name: "corrosion", Conf: 0.42, Box: iface.BoxFromXYXY(300, 300, 340, 360)},
		},
		Speed: iface.Speed{Inference: 12 * time.Millisecond},
	}
}

func TestStation_OnFrame(t *testing.T) {
	s := NewStation("station-1")
	s.OnFrame(samplePrediction(), iface.FrameStats{Index: 0})
	s.OnFrame(iface.Prediction{Width: 640, Height: 480}, iface.FrameStats{Index: 1})

	assert.Equal(t, float64(2), testutil.ToFloat64(s.framesTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(s.detectionsTotal.WithLabelValues("corrosion")))
	assert.Equal(t, 2, testutil.CollectAndCount(s.detectionsTotal), "unseen classes are still exported")

	st := s.Snapshot()
	assert.Equal(t, "station-1", st.StationID)
	assert.True(t, st.Running)
	assert.Equal(t, int64(2), st.Frames)
	assert.Equal(t, int64(2), st.Detections)
	assert.Equal(t, map[string]int64{"corrosion": 2, "rust": 0}, st.ByClass)
	assert.Equal(t, "(no detections)", st.LastSummary)

	// snapshot is a copy
	st.ByClass["corrosion"] = 100
	assert.Equal(t, int64(2), s.Snapshot().ByClass["corrosion"])
}

func TestStation_OnExit(t *testing.T) {
	s := NewStation("station-1")
	s.OnExit("read_failure", nil)
	s.OnExit("error", errors.New("boom"))

	st := s.Snapshot()
	assert.False(t, st.Running)
	assert.Equal(t, "error", st.ExitReason)
	assert.Equal(t, "boom", st.ExitError)
	assert.Equal(t, float64(1), testutil.ToFloat64(s.exitsTotal.WithLabelValues("read_failure")))
}

func TestStation_CheckProcessInfo(t *testing.T) {
	s := NewStation("station-1")
	s.CheckProcessInfo()
	assert.Greater(t, testutil.ToFloat64(s.memUsage), float64(0))
}

func TestRouter(t *testing.T) {
	s := NewStation("station-1")
	s.OnFrame(samplePrediction(), iface.FrameStats{})
	r := s.Router()

	t.Run("ping", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())
	})

	t.Run("status", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Data Status `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, int64(1), body.Data.Frames)
		assert.Equal(t, "2 corrosions", body.Data.LastSummary)
		assert.InDelta(t, 12.0, body.Data.LastInferenceMs, 1e-9)
	})

	t.Run("metrics", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, w.Code)
		body, _ := io.ReadAll(w.Body)
		assert.True(t, strings.Contains(string(body), "frames_processed_total 1"))
		assert.True(t, strings.Contains(string(body), `detections_total{class="corrosion"} 2`))
		assert.True(t, strings.Contains(string(body), `detections_total{class="rust"} 0`))
		assert.True(t, strings.Contains(string(body), "feed_events_dropped_total 0"))
	})
}

func TestDetectionFeed(t *testing.T) {
	s := NewStation("station-1")
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/detections"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.Hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	s.OnFrame(samplePrediction(), iface.FrameStats{Index: 7})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev FrameEvent
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, "station-1", ev.StationID)
	assert.Equal(t, int64(7), ev.Frame)
	require.Len(t, ev.Detections, 2)
	assert.Equal(t, "corrosion", ev.Detections[0].Class)
	assert.Equal(t, [4]float32{10, 20, 110, 220}, ev.Detections[0].Box)

	s.Hub.CloseAll()
	assert.Equal(t, 0, s.Hub.Count())
}

func TestHub_PublishDoesNotBlock(t *testing.T) {
	dropped := prometheus.NewCounter(prometheus.CounterOpts{Name: "dropped"})
	h := NewHub(dropped)
	c := &client{send: make(chan []byte, 1)}
	h.clients[c] = struct{}{}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			h.Publish(FrameEvent{Frame: int64(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	assert.Equal(t, float64(4), testutil.ToFloat64(dropped))
	assert.Len(t, c.send, 1)
}
