package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Metadata describes the tensors of a model. It is read from a JSON file
// next to the model when one exists.
type Metadata struct {
	InputName   string  `json:"input_name"`
	OutputName  string  `json:"output_name"`
	InputShape  []int64 `json:"input_shape"`
	OutputShape []int64 `json:"output_shape"`
}

// MetadataPath returns the sidecar path for a model file.
func MetadataPath(modelPath string) string {
	return strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + ".json"
}

// ReadMetadata reads the sidecar for modelPath. It returns ok == false
// when there is none.
func ReadMetadata(modelPath string) (meta Metadata, ok bool, err error) {
	data, err := os.ReadFile(MetadataPath(modelPath))
	if errors.Is(err, os.ErrNotExist) {
		return Metadata{}, false, nil
	} else if err != nil {
		return Metadata{}, false, fmt.Errorf("failed to read metadata: %w", err)
	}

	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, false, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if len(meta.InputShape) == 0 || len(meta.OutputShape) == 0 {
		return Metadata{}, false, errors.New("metadata is missing tensor shapes")
	}
	if meta.InputName == "" {
		meta.InputName = "input"
	}
	if meta.OutputName == "" {
		meta.OutputName = "output"
	}
	return meta, true, nil
}

// CheckInputShape reports an error unless dims is a channels-last RGB
// batch, [N, H, W, 3]. Inputs are written as interleaved RGB, so a
// channels-first model would read them as garbage.
func CheckInputShape(dims []int64) error {
	if len(dims) != 4 || dims[3] != 3 {
		return fmt.Errorf("input shape %v is not [N, H, W, 3]", dims)
	}
	return nil
}

// fixedShape replaces dynamic dimensions with 1 so tensors can be
// allocated up front.
func fixedShape(dims []int64) []int64 {
	shape := make([]int64, len(dims))
	for i, d := range dims {
		if d <= 0 {
			d = 1
		}
		shape[i] = d
	}
	return shape
}
