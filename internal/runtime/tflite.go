//go:build tflite

package runtime

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/mattn/go-tflite"
	"github.com/mattn/go-tflite/delegates"
	"github.com/mattn/go-tflite/delegates/edgetpu"
	"github.com/mattn/go-tflite/delegates/xnnpack"
)

type tfliteInterpreter struct {
	model     *tflite.Model
	options   *tflite.InterpreterOptions
	delegates []delegates.Delegater
	interp    *tflite.Interpreter
}

// LoadTFLite opens a TensorFlow Lite model and builds its interpreter.
func LoadTFLite(path string, opts Options) (Interpreter, error) {
	model := tflite.NewModelFromFile(path)
	if model == nil {
		return nil, fmt.Errorf("cannot load model %s", path)
	}

	t := &tfliteInterpreter{model: model, options: tflite.NewInterpreterOptions()}
	t.options.SetErrorReporter(func(msg string, _ interface{}) {
		slog.Warn("tflite", "msg", msg)
	}, nil)

	if opts.Threads > 0 {
		t.options.SetNumThread(opts.Threads)
	}

	for _, d := range opts.Delegates {
		delegate, err := newTFLiteDelegate(d)
		if err != nil {
			t.Close()
			return nil, fmt.Errorf("failed to attach %s delegate: %w", d, err)
		}
		t.delegates = append(t.delegates, delegate)
		t.options.AddDelegate(delegate)
	}

	t.interp = tflite.NewInterpreter(model, t.options)
	if t.interp == nil {
		t.Close()
		return nil, errors.New("cannot create interpreter")
	}

	input := t.interp.GetInputTensor(0)
	if input == nil {
		t.Close()
		return nil, errors.New("model has no inputs")
	}
	dims := make([]int64, input.NumDims())
	for i := range dims {
		dims[i] = int64(input.Dim(i))
	}
	if err := CheckInputShape(dims); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

func newTFLiteDelegate(d Delegate) (delegates.Delegater, error) {
	switch d {
	case DelegateEdgeTPU:
		devices, err := edgetpu.DeviceList()
		if err != nil {
			return nil, err
		}
		if len(devices) == 0 {
			return nil, errors.New("no edge tpu found")
		}
		if delegate := edgetpu.New(devices[0]); delegate != nil {
			return delegate, nil
		}
		return nil, errors.New("cannot open edge tpu")
	case DelegateXNNPACK:
		if delegate := xnnpack.New(xnnpack.DelegateOptions{NumThreads: 2}); delegate != nil {
			return delegate, nil
		}
		return nil, errors.New("cannot create xnnpack delegate")
	default:
		return nil, errors.New("not supported by tflite")
	}
}

func (t *tfliteInterpreter) AllocateTensors() error {
	if status := t.interp.AllocateTensors(); status != tflite.OK {
		return fmt.Errorf("allocate tensors: status %v", status)
	}
	return nil
}

func (t *tfliteInterpreter) CopyInput(index int, data []byte) error {
	if index < 0 || index >= t.interp.GetInputTensorCount() {
		return fmt.Errorf("input %d out of range", index)
	}

	input := t.interp.GetInputTensor(index)
	if uint(len(data)) != input.ByteSize() {
		return fmt.Errorf("input is %d bytes, tensor needs %d", len(data), input.ByteSize())
	}
	if status := input.CopyFromBuffer(data); status != tflite.OK {
		return fmt.Errorf("copy input: status %v", status)
	}
	return nil
}

func (t *tfliteInterpreter) Invoke() error {
	if status := t.interp.Invoke(); status != tflite.OK {
		return fmt.Errorf("invoke: status %v", status)
	}
	return nil
}

func (t *tfliteInterpreter) Output(index int) ([]byte, error) {
	if index < 0 || index >= t.interp.GetOutputTensorCount() {
		return nil, fmt.Errorf("output %d out of range", index)
	}

	output := t.interp.GetOutputTensor(index)
	out := make([]byte, output.ByteSize())
	if len(out) == 0 {
		return out, nil
	}
	if status := output.CopyToBuffer(out); status != tflite.OK {
		return nil, fmt.Errorf("read output: status %v", status)
	}
	return out, nil
}

func (t *tfliteInterpreter) Close() error {
	if t.interp != nil {
		t.interp.Delete()
		t.interp = nil
	}
	for _, d := range t.delegates {
		d.Delete()
	}
	t.delegates = nil
	if t.options != nil {
		t.options.Delete()
		t.options = nil
	}
	if t.model != nil {
		t.model.Delete()
		t.model = nil
	}
	return nil
}
