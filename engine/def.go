package engine

import (
	iface "CorrosionDetect/interface"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const UNREGISTERED = 0x0001
const REGISTERED = 0x0002
const IDLE = 0x0003
const BUSY = 0x0004

// DefaultInputSize 固定推理尺寸 640x640
const DefaultInputSize = 640

const (
	DefaultConf = float32(0.25)
	DefaultIou  = float32(0.7)
)

var (
	ErrNotRegistered = errors.New("detector not registered")
	ErrNotLoaded     = errors.New("model not loaded")
	ErrBusy          = errors.New("detector is busy")
)

func ReadLinesReadFile(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	// 支持 Windows CRLF，去掉尾部的 '\r'
	raw := strings.Split(string(b), "\n")
	var lines []string
	for _, l := range raw {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

// ReadNamesYaml reads class names from an ultralytics dataset yaml.
// `names` may be a list or an index map ({0: corrosion, 1: rust}).
func ReadNamesYaml(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Names yaml.Node `yaml:"names"`
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	switch doc.Names.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := doc.Names.Decode(&names); err != nil {
			return nil, fmt.Errorf("decode names in %s: %w", path, err)
		}
		return names, nil
	case yaml.MappingNode:
		var indexed map[int]string
		if err := doc.Names.Decode(&indexed); err != nil {
			return nil, fmt.Errorf("decode names in %s: %w", path, err)
		}
		ids := make([]int, 0, len(indexed))
		for id := range indexed {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		names := make([]string, 0, len(ids))
		for i, id := range ids {
			if id != i {
				return nil, fmt.Errorf("names in %s are not contiguous from 0: missing %d", path, i)
			}
			names = append(names, indexed[id])
		}
		return names, nil
	case 0:
		return nil, fmt.Errorf("no names key in %s", path)
	default:
		return nil, fmt.Errorf("unsupported names node in %s", path)
	}
}

// LoadNames resolves a NamesConf into the ordered class list.
func LoadNames(names iface.NamesConf) ([]string, error) {
	if names.IsFile {
		path, ok := names.Data.(string)
		if !ok {
			return nil, fmt.Errorf("names file must be a path, got %T", names.Data)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			return ReadNamesYaml(path)
		default:
			return ReadLinesReadFile(path)
		}
	}
	if names.Data == nil {
		return []string{}, nil
	}
	rv := reflect.ValueOf(names.Data)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("names must be a slice or a file path, got %T", names.Data)
	}
	n := rv.Len()
	out := make([]string, n)
	for i := 0; i < n; i++ {
		s, ok := rv.Index(i).Interface().(string)
		if !ok {
			return nil, fmt.Errorf("names[%d] is %T, not string", i, rv.Index(i).Interface())
		}
		out[i] = s
	}
	return out, nil
}

func className(names []string, id int) string {
	if id >= 0 && id < len(names) {
		return names[id]
	}
	return strconv.Itoa(id)
}
