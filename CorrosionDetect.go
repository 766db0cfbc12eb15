package main

import (
	adhoc "CorrosionDetect/Adhoc"
	"CorrosionDetect/device"
	"CorrosionDetect/engine"
	"CorrosionDetect/logger"
	"CorrosionDetect/monitor"
	"CorrosionDetect/pipeline"
	"CorrosionDetect/render"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	rootCmd = &cobra.Command{
		Use:          "corrosion-detect",
		Short:        "Live webcam corrosion detection",
		Long:         `Reads frames from camera 0, runs the corrosion model at 640x640 and shows the annotated stream. Press q to quit.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	checkCmd = &cobra.Command{
		Use:          "check",
		Short:        "Load the model and print its configuration",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return check()
		},
	}
	configPath string
	devLogging bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "config file")
	rootCmd.PersistentFlags().BoolVar(&devLogging, "dev", false, "development logging")
	rootCmd.AddCommand(checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func GetOutboundIP() (string, error) {
	// 只为拿到本机出口 IP，不会真正发包
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}

func setup() (configStruct, error) {
	config, warnings, err := loadConfig(configPath)
	if err != nil {
		return config, err
	}
	if err := logger.Init(devLogging, config.LogLevel); err != nil {
		return config, err
	}
	fmt.Println(strings.Repeat("#", 64))
	fmt.Println(" Model:", config.ModelPath)
	fmt.Printf(" Confidence: %.2f  IoU: %.2f  GPU: %v\n", config.Confidence, config.Iou, config.UseGPU)
	fmt.Println(" Metrics Port:", config.MetricsPort)
	fmt.Println(strings.Repeat("#", 64))
	if len(warnings) > 0 {
		fmt.Println(strings.Repeat("!", 64))
		for _, w := range warnings {
			fmt.Println(w)
		}
		fmt.Println(strings.Repeat("!", 64))
	}
	return config, nil
}

func loadDetector(config configStruct) (*engine.Detector, error) {
	detector := &engine.Detector{}
	detector.New()
	if _, err := detector.LoadModel(config.ModelPath, config.namesConf(), config.Confidence, config.Iou, config.UseGPU); err != nil {
		return nil, err
	}
	detector.SetInputSize(engine.DefaultInputSize)
	return detector, nil
}

func check() error {
	defer logger.Sync()
	config, err := setup()
	if err != nil {
		return err
	}
	detector, err := loadDetector(config)
	if err != nil {
		logger.Log().Error("load model failed", zap.Error(err))
		return err
	}
	defer detector.Destroy()
	cfg := detector.CheckConfig()
	fmt.Println("Model:", cfg.ModelPath)
	fmt.Println("Names:", cfg.Names.Data)
	fmt.Printf("Input: %dx%d  Confidence: %.2f  IoU: %.2f  GPU: %v\n", cfg.InputSize, cfg.InputSize, cfg.Conf, cfg.Iou, cfg.UseGPU)
	return nil
}

func run(parent context.Context) error {
	defer logger.Sync()
	config, err := setup()
	if err != nil {
		return err
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	detector, err := loadDetector(config)
	if err != nil {
		logger.Log().Error("load model failed", zap.Error(err))
		return err
	}
	defer detector.Destroy()
	if config.UseGPU {
		detector.Warmup(3)
	}

	stationID := uuid.NewString()
	loop := &pipeline.Loop{
		Model:     detector,
		Annotator: render.NewAnnotator(),
		Viewer:    device.NewViewer(device.WindowTitle),
		Log:       logger.Named("pipeline").With(zap.String("station", stationID)),
	}

	var wg sync.WaitGroup
	monCtx, cancelMon := context.WithCancel(context.Background())
	defer func() {
		cancelMon()
		wg.Wait()
		fmt.Println("Safely exited")
	}()

	var station *monitor.Station
	if config.MetricsPort > 0 {
		station = monitor.NewStation(stationID)
		loop.Observer = station
		wg.Add(1)
		go func() {
			defer wg.Done()
			monitor.StartMon(monCtx, config.MetricsPort, station)
		}()
	}
	if config.UseRegServer {
		ip, err := GetOutboundIP()
		if err != nil {
			fmt.Println("Failed to get outbound IP:", err)
		}
		hb := &adhoc.Heartbeat{
			ID:            stationID,
			IP:            ip,
			Port:          config.MetricsPort,
			InstanceClass: adhoc.InstanceClass(config.InstanceClass),
		}
		hb.Server.SetAddress(config.RegServerHost, config.RegServerPort)
		if station != nil {
			hb.Status = station.Snapshot
		}
		wg.Add(1)
		go hb.SendAliveMessage(monCtx, &wg)
	} else {
		fmt.Println("UseRegServer is set to false, skipping registration")
	}

	camera, err := device.OpenCamera(device.DefaultCameraIndex)
	if err != nil {
		logger.Log().Warn("open camera failed", zap.Error(err))
	} else {
		w, h := camera.Size()
		logger.Log().Info("camera opened", zap.Int("Index", camera.Index), zap.Int("Width", w), zap.Int("Height", h))
	}
	loop.Capture = camera

	reason, err := loop.Run(ctx)
	if errors.Is(err, pipeline.ErrCameraUnavailable) {
		fmt.Println("Cannot open camera")
		_ = camera.Close()
		return nil
	}
	logger.Log().Info("detection loop finished",
		zap.String("reason", reason),
		zap.Int64("frames", loop.Frames()))
	return err
}
