package runtime

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	ortOnce    sync.Once
	ortErr     error
	ortLibrary string
)

// SetONNXLibrary sets the ONNX Runtime shared library path. It only has an
// effect before the first model is loaded.
func SetONNXLibrary(path string) {
	ortLibrary = path
}

func initONNX() error {
	ortOnce.Do(func() {
		if ortLibrary != "" {
			ort.SetSharedLibraryPath(ortLibrary)
		}
		if !ort.IsInitialized() {
			ortErr = ort.InitializeEnvironment()
		}
	})
	return ortErr
}

// Shutdown releases the ONNX Runtime environment if it was initialized.
func Shutdown() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

type onnxInterpreter struct {
	path     string
	meta     Metadata
	sessOpts *ort.SessionOptions

	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// LoadONNX opens an ONNX model. Tensors are bound by AllocateTensors.
func LoadONNX(path string, opts Options) (Interpreter, error) {
	if err := initONNX(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	meta, err := onnxMetadata(path)
	if err != nil {
		return nil, err
	}
	if err := CheckInputShape(meta.InputShape); err != nil {
		return nil, err
	}

	sessOpts, err := onnxSessionOptions(opts)
	if err != nil {
		return nil, err
	}

	slog.Debug("onnx model loaded", "path", path, "input", meta.InputName, "output", meta.OutputName,
		"input_shape", meta.InputShape, "output_shape", meta.OutputShape)

	return &onnxInterpreter{path: path, meta: meta, sessOpts: sessOpts}, nil
}

func onnxMetadata(path string) (Metadata, error) {
	meta, ok, err := ReadMetadata(path)
	if err != nil || ok {
		return meta, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read model io: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return Metadata{}, fmt.Errorf("model has %d inputs and %d outputs", len(inputs), len(outputs))
	}

	in, out := inputs[0], outputs[0]
	if in.DataType != ort.TensorElementDataTypeFloat || out.DataType != ort.TensorElementDataTypeFloat {
		return Metadata{}, fmt.Errorf("unsupported tensor types: input %v, output %v", in.DataType, out.DataType)
	}

	return Metadata{
		InputName:   in.Name,
		OutputName:  out.Name,
		InputShape:  in.Dimensions,
		OutputShape: out.Dimensions,
	}, nil
}

func onnxSessionOptions(opts Options) (*ort.SessionOptions, error) {
	sessOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}

	if opts.Threads > 0 {
		if err := sessOpts.SetIntraOpNumThreads(opts.Threads); err != nil {
			sessOpts.Destroy()
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	for _, d := range opts.Delegates {
		if err := appendProvider(sessOpts, d); err != nil {
			sessOpts.Destroy()
			return nil, fmt.Errorf("failed to attach %s delegate: %w", d, err)
		}
	}

	return sessOpts, nil
}

func appendProvider(sessOpts *ort.SessionOptions, d Delegate) error {
	switch d {
	case DelegateCUDA:
		cudaOpts, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return err
		}
		defer cudaOpts.Destroy()
		return sessOpts.AppendExecutionProviderCUDA(cudaOpts)
	case DelegateCoreML:
		return sessOpts.AppendExecutionProviderCoreML(0)
	default:
		return errors.New("not supported by onnx runtime")
	}
}

func (o *onnxInterpreter) AllocateTensors() error {
	if o.session != nil {
		return nil
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(fixedShape(o.meta.InputShape)...))
	if err != nil {
		return fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(fixedShape(o.meta.OutputShape)...))
	if err != nil {
		inputTensor.Destroy()
		return fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(o.path,
		[]string{o.meta.InputName}, []string{o.meta.OutputName},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor},
		o.sessOpts)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return fmt.Errorf("failed to create ONNX session: %w", err)
	}

	o.sessOpts.Destroy()
	o.sessOpts = nil
	o.session = session
	o.inputTensor = inputTensor
	o.outputTensor = outputTensor
	return nil
}

func (o *onnxInterpreter) CopyInput(index int, data []byte) error {
	if o.session == nil {
		return errors.New("tensors not allocated")
	}
	if index != 0 {
		return fmt.Errorf("input %d out of range", index)
	}

	dst := o.inputTensor.GetData()
	if len(data) != 4*len(dst) {
		return fmt.Errorf("input is %d bytes, tensor needs %d", len(data), 4*len(dst))
	}
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return nil
}

func (o *onnxInterpreter) Invoke() error {
	if o.session == nil {
		return errors.New("tensors not allocated")
	}
	if err := o.session.Run(); err != nil {
		return fmt.Errorf("inference failed: %w", err)
	}
	return nil
}

func (o *onnxInterpreter) Output(index int) ([]byte, error) {
	if o.session == nil {
		return nil, errors.New("tensors not allocated")
	}
	if index != 0 {
		return nil, fmt.Errorf("output %d out of range", index)
	}

	src := o.outputTensor.GetData()
	out := make([]byte, 4*len(src))
	for i, v := range src {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out, nil
}

func (o *onnxInterpreter) Close() error {
	var errs []error
	if o.sessOpts != nil {
		errs = append(errs, o.sessOpts.Destroy())
		o.sessOpts = nil
	}
	if o.session != nil {
		errs = append(errs, o.session.Destroy())
		o.session = nil
	}
	if o.inputTensor != nil {
		errs = append(errs, o.inputTensor.Destroy())
		o.inputTensor = nil
	}
	if o.outputTensor != nil {
		errs = append(errs, o.outputTensor.Destroy())
		o.outputTensor = nil
	}
	return errors.Join(errs...)
}
