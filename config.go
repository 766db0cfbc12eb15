package main

import (
	"CorrosionDetect/engine"
	iface "CorrosionDetect/interface"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultModelPath = "models/best.onnx"

type configStruct struct {
	ModelPath     string   `yaml:"modelPath"`
	Names         []string `yaml:"names"`
	NamesFile     string   `yaml:"namesFile"`
	Confidence    float32  `yaml:"confidence"`
	Iou           float32  `yaml:"iou"`
	UseGPU        bool     `yaml:"useGPU"`
	MetricsPort   int      `yaml:"metricsPort"`
	InstanceClass string   `yaml:"instanceClass"`
	LogLevel      string   `yaml:"logLevel"`
	UseRegServer  bool     `yaml:"UseRegServer"`
	RegServerPort int      `yaml:"RegServerPort"`
	RegServerHost string   `yaml:"RegServerHost"`
}

func defaultConfig() configStruct {
	return configStruct{
		ModelPath:     defaultModelPath,
		Names:         []string{"corrosion"},
		Confidence:    engine.DefaultConf,
		Iou:           engine.DefaultIou,
		InstanceClass: "Cpu",
	}
}

// loadConfig reads path over the defaults. A missing file is not an error.
func loadConfig(path string) (configStruct, []string, error) {
	config := defaultConfig()
	configData, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config, []string{fmt.Sprintf("config file %s not found, using defaults", path)}, nil
	}
	if err != nil {
		return config, nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(configData, &config); err != nil {
		return config, nil, fmt.Errorf("parse config file: %w", err)
	}
	return config, config.normalize(), nil
}

// normalize replaces out of range values and returns one warning per fix.
func (c *configStruct) normalize() []string {
	var warnings []string
	if strings.TrimSpace(c.ModelPath) == "" {
		c.ModelPath = defaultModelPath
		warnings = append(warnings, "Empty modelPath in config, defaulting to "+defaultModelPath)
	}
	if c.Confidence <= 0 || c.Confidence > 1 {
		c.Confidence = engine.DefaultConf
		warnings = append(warnings, fmt.Sprintf("Invalid confidence in config, defaulting to %.2f", engine.DefaultConf))
	}
	if c.Iou <= 0 || c.Iou > 1 {
		c.Iou = engine.DefaultIou
		warnings = append(warnings, fmt.Sprintf("Invalid iou in config, defaulting to %.2f", engine.DefaultIou))
	}
	switch c.InstanceClass {
	case "Dml", "Cuda", "Rocm", "Cpu":
	default:
		warnings = append(warnings, "Invalid instanceClass in config, defaulting to Cpu")
		c.InstanceClass = "Cpu"
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		warnings = append(warnings, "Invalid metricsPort in config, monitor disabled")
		c.MetricsPort = 0
	}
	if c.UseRegServer && (c.RegServerHost == "" || c.RegServerPort <= 0) {
		warnings = append(warnings, "UseRegServer is set but RegServerHost/RegServerPort is missing, skipping registration")
		c.UseRegServer = false
	}
	return warnings
}

// namesConf prefers namesFile over the inline list.
func (c configStruct) namesConf() iface.NamesConf {
	if c.NamesFile != "" {
		return iface.NamesConf{IsFile: true, Data: c.NamesFile}
	}
	return iface.NamesConf{IsFile: false, Data: c.Names}
}
