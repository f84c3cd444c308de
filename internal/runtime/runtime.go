// Package runtime adapts on-device inference runtimes to a small
// interpreter surface: load with options, allocate tensors, copy bytes in,
// invoke, read bytes out.
package runtime

import (
	"fmt"
	goruntime "runtime"
	"strings"
)

// Interpreter is a loaded model ready to run forward passes. Implementations
// are not safe for concurrent use; callers serialize access.
type Interpreter interface {
	// AllocateTensors binds storage for the model's inputs and outputs. It
	// must succeed before any other call.
	AllocateTensors() error
	// CopyInput copies raw tensor bytes into input tensor index.
	CopyInput(index int, data []byte) error
	// Invoke runs one forward pass.
	Invoke() error
	// Output returns the raw bytes of output tensor index.
	Output(index int) ([]byte, error)
	Close() error
}

// Loader opens the model file at path with the given options.
type Loader func(path string, opts Options) (Interpreter, error)

// Delegate names a hardware-acceleration plug-in attached at load time.
type Delegate string

const (
	// DelegateCUDA is the ONNX Runtime CUDA execution provider.
	DelegateCUDA Delegate = "cuda"
	// DelegateCoreML is the ONNX Runtime CoreML execution provider.
	DelegateCoreML Delegate = "coreml"
	// DelegateEdgeTPU is the TensorFlow Lite Edge TPU delegate.
	DelegateEdgeTPU Delegate = "edgetpu"
	// DelegateXNNPACK is the TensorFlow Lite XNNPACK delegate.
	DelegateXNNPACK Delegate = "xnnpack"
)

// Options configures how a model is loaded.
type Options struct {
	// Threads is the intra-op thread count. Zero leaves the runtime default.
	Threads   int
	Delegates []Delegate
}

// Kind identifies an inference runtime.
type Kind string

const (
	KindONNX   Kind = "onnx"
	KindTFLite Kind = "tflite"
)

// ParseKind parses a runtime name. Empty selects ONNX.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindONNX, nil
	case KindONNX, KindTFLite:
		return k, nil
	default:
		return "", fmt.Errorf("unknown runtime %q", s)
	}
}

// Extension is the model file extension for the runtime, with the dot.
func (k Kind) Extension() string {
	return "." + string(k)
}

// Loader returns the loader for the runtime.
func (k Kind) Loader() Loader {
	if k == KindTFLite {
		return LoadTFLite
	}
	return LoadONNX
}

// DefaultGPUDelegate returns the accelerator used for the gpu backend when
// none is configured.
func (k Kind) DefaultGPUDelegate() Delegate {
	switch {
	case k == KindTFLite:
		return DelegateEdgeTPU
	case goruntime.GOOS == "darwin":
		return DelegateCoreML
	default:
		return DelegateCUDA
	}
}
