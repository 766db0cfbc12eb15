package engine

import (
	iface "CorrosionDetect/interface"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestDetector_All(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "best.onnx")
	names := iface.NamesConf{
		IsFile: false,
		Data:   []string{"corrosion"},
	}

	d := &Detector{}

	t.Run("Test Predict Unregistered", func(t *testing.T) {
		img := gocv.NewMatWithSize(32, 32, gocv.MatTypeCV8UC3)
		defer img.Close()
		_, err := d.Predict(img)
		assert.ErrorIs(t, err, ErrNotRegistered)
	})

	t.Run("Test New", func(t *testing.T) {
		if !d.New() {
			t.Errorf("Detector.New() failed, expected true, got false")
		}
		assert.Equal(t, REGISTERED, d.State)
		assert.Equal(t, DefaultInputSize, d.InputSize)
	})

	t.Run("Test Predict Before Load", func(t *testing.T) {
		img := gocv.NewMatWithSize(32, 32, gocv.MatTypeCV8UC3)
		defer img.Close()
		_, err := d.Predict(img)
		assert.ErrorIs(t, err, ErrNotLoaded)
	})

	t.Run("Test LoadModel Rejects Extension", func(t *testing.T) {
		ok, err := d.LoadModel(filepath.Join(dir, "best.pt"), names, DefaultConf, DefaultIou, false)
		assert.False(t, ok)
		assert.Error(t, err)
		assert.Equal(t, REGISTERED, d.State)
	})

	t.Run("Test LoadModel Missing File", func(t *testing.T) {
		ok, err := d.LoadModel(modelPath, names, DefaultConf, DefaultIou, false)
		assert.False(t, ok)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("Test LoadModel Bad Thresholds", func(t *testing.T) {
		_, err := d.LoadModel(modelPath, names, 1.5, DefaultIou, false)
		assert.Error(t, err)
		_, err = d.LoadModel(modelPath, names, DefaultConf, -0.1, false)
		assert.Error(t, err)
	})

	t.Run("Test SetInputSize", func(t *testing.T) {
		d.SetInputSize(0)
		assert.Equal(t, DefaultInputSize, d.CheckConfig().InputSize)
		d.SetInputSize(1280)
		assert.Equal(t, 1280, d.CheckConfig().InputSize)
		d.SetInputSize(DefaultInputSize)
	})

	t.Run("Test Destroy", func(t *testing.T) {
		d.Destroy()
		assert.Equal(t, d.ModelPath, "")
		assert.Equal(t, d.Conf, float32(0))
		assert.Equal(t, d.Iou, float32(0))
		assert.Equal(t, d.UseGPU, false)
		assert.Equal(t, d.State, UNREGISTERED)
	})
}

func TestLoadNames(t *testing.T) {
	dir := t.TempDir()

	t.Run("inline slice", func(t *testing.T) {
		got, err := LoadNames(iface.NamesConf{Data: []string{"corrosion", "rust"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"corrosion", "rust"}, got)
	})

	t.Run("inline any slice", func(t *testing.T) {
		got, err := LoadNames(iface.NamesConf{Data: []any{"corrosion"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"corrosion"}, got)
	})

	t.Run("inline wrong type", func(t *testing.T) {
		_, err := LoadNames(iface.NamesConf{Data: 42})
		assert.Error(t, err)
		_, err = LoadNames(iface.NamesConf{Data: []int{1}})
		assert.Error(t, err)
	})

	t.Run("nil data", func(t *testing.T) {
		got, err := LoadNames(iface.NamesConf{})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("text file with CRLF and blank lines", func(t *testing.T) {
		p := filepath.Join(dir, "names.txt")
		require.NoError(t, os.WriteFile(p, []byte("corrosion\r\n\r\nrust\r\n"), 0o644))
		got, err := LoadNames(iface.NamesConf{IsFile: true, Data: p})
		require.NoError(t, err)
		assert.Equal(t, []string{"corrosion", "rust"}, got)
	})

	t.Run("data.yaml list", func(t *testing.T) {
		p := filepath.Join(dir, "list.yaml")
		require.NoError(t, os.WriteFile(p, []byte("nc: 2\nnames: ['corrosion', 'rust']\n"), 0o644))
		got, err := LoadNames(iface.NamesConf{IsFile: true, Data: p})
		require.NoError(t, err)
		assert.Equal(t, []string{"corrosion", "rust"}, got)
	})

	t.Run("data.yaml map", func(t *testing.T) {
		p := filepath.Join(dir, "map.yml")
		require.NoError(t, os.WriteFile(p, []byte("names:\n  1: rust\n  0: corrosion\n"), 0o644))
		got, err := LoadNames(iface.NamesConf{IsFile: true, Data: p})
		require.NoError(t, err)
		assert.Equal(t, []string{"corrosion", "rust"}, got)
	})

	t.Run("data.yaml gap", func(t *testing.T) {
		p := filepath.Join(dir, "gap.yaml")
		require.NoError(t, os.WriteFile(p, []byte("names:\n  0: corrosion\n  2: rust\n"), 0o644))
		_, err := LoadNames(iface.NamesConf{IsFile: true, Data: p})
		assert.Error(t, err)
	})

	t.Run("data.yaml without names", func(t *testing.T) {
		p := filepath.Join(dir, "empty.yaml")
		require.NoError(t, os.WriteFile(p, []byte("nc: 1\n"), 0o644))
		_, err := LoadNames(iface.NamesConf{IsFile: true, Data: p})
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadNames(iface.NamesConf{IsFile: true, Data: filepath.Join(dir, "nope.txt")})
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestClassName(t *testing.T) {
	names := []string{"corrosion"}
	assert.Equal(t, "corrosion", className(names, 0))
	assert.Equal(t, "3", className(names, 3))
	assert.Equal(t, "-1", className(names, -1))
}
