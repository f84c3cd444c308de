//go:build !tflite

package runtime

import "errors"

// LoadTFLite is unavailable in this build.
func LoadTFLite(string, Options) (Interpreter, error) {
	return nil, errors.New("tflite runtime not compiled in, rebuild with -tags tflite")
}
