// Package model scores images with a pretrained model. A Rater owns one
// loaded model and runs every operation on it through its own serial queue.
package model

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	goruntime "runtime"
	"time"

	"github.com/google/uuid"

	"github.com/Brownie44l1/photo-rater/internal/imageutil"
	"github.com/Brownie44l1/photo-rater/internal/runtime"
)

// InputSize is the width and height of the model input.
const InputSize = 224

// InputElements is the number of values in one input: InputSize×InputSize
// interleaved RGB.
const InputElements = InputSize * InputSize * 3

// Config locates the model and selects the runtime.
type Config struct {
	ModelDir  string
	ModelName string
	Runtime   runtime.Kind

	// GPUDelegate overrides the runtime's default accelerator.
	GPUDelegate runtime.Delegate
	// Loader overrides the runtime's loader.
	Loader runtime.Loader
	// NumCPU overrides runtime.NumCPU.
	NumCPU func() int
}

func (c Config) kind() runtime.Kind {
	if c.Runtime == "" {
		return runtime.KindONNX
	}
	return c.Runtime
}

// ModelPath is the model file the Rater loads.
func (c Config) ModelPath() string {
	return filepath.Join(c.ModelDir, c.ModelName+c.kind().Extension())
}

func (c Config) loader() runtime.Loader {
	if c.Loader != nil {
		return c.Loader
	}
	return c.kind().Loader()
}

func (c Config) numCPU() int {
	if c.NumCPU != nil {
		return c.NumCPU()
	}
	return goruntime.NumCPU()
}

func (c Config) gpuDelegate() runtime.Delegate {
	if c.GPUDelegate != "" {
		return c.GPUDelegate
	}
	return c.kind().DefaultGPUDelegate()
}

// execOptions picks the load options for a backend: the gpu backend gets
// one delegate and no thread count, the cpu backend up to two threads.
func execOptions(backend Backend, cfg Config) runtime.Options {
	if backend == BackendGPU {
		return runtime.Options{Delegates: []runtime.Delegate{cfg.gpuDelegate()}}
	}

	threads := 1
	if cfg.numCPU() >= 2 {
		threads = 2
	}
	return runtime.Options{Threads: threads}
}

// Rater runs inference for one backend.
type Rater struct {
	backend Backend
	queue   *serialQueue

	// Only touched from the queue.
	interp runtime.Interpreter
	prep   func(image.Image) ([]byte, error)
	closed bool
}

// Open constructs a Rater on its own queue and returns immediately. The
// result arrives on the returned channel exactly once.
func Open(backend Backend, cfg Config) <-chan OpenResult {
	ch := make(chan OpenResult, 1)
	q := newSerialQueue()

	q.async(func() {
		r, err := open(backend, cfg, q)
		if err != nil {
			q.close()
			slog.Error("failed to create the interpreter", "backend", backend, "error", err)
		}
		ch <- OpenResult{Rater: r, Err: err}
	})

	return ch
}

// New is Open followed by waiting for the result.
func New(ctx context.Context, backend Backend, cfg Config) (*Rater, error) {
	select {
	case res := <-Open(backend, cfg):
		return res.Rater, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func open(backend Backend, cfg Config, q *serialQueue) (*Rater, error) {
	path := cfg.ModelPath()
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return nil, invalidModel(fmt.Sprintf("model %s could not be loaded", path))
	}

	opts := execOptions(backend, cfg)
	slog.Debug("loading model", "backend", backend, "path", path, "threads", opts.Threads, "delegates", opts.Delegates)

	interp, err := cfg.loader()(path, opts)
	if err != nil {
		return nil, initInternal(err)
	}

	if err := interp.AllocateTensors(); err != nil {
		if cerr := interp.Close(); cerr != nil {
			slog.Warn("failed to release interpreter", "backend", backend, "error", cerr)
		}
		return nil, initInternal(err)
	}

	slog.Info("model loaded", "backend", backend, "path", path)
	return &Rater{
		backend: backend,
		queue:   q,
		interp:  interp,
		prep:    prepare,
	}, nil
}

func prepare(img image.Image) ([]byte, error) {
	return imageutil.ScaledData(img, InputSize, false)
}

// Backend reports the backend the Rater was built for.
func (r *Rater) Backend() Backend {
	return r.backend
}

// Submit queues one inference for img and returns immediately. Calls run
// in submission order; the outcome arrives on the returned channel exactly
// once. There is no way to cancel a submitted call.
func (r *Rater) Submit(img image.Image) <-chan Outcome {
	return r.submit(func() ([]byte, error) { return r.prep(img) })
}

// SubmitTensor is Submit for input values already laid out as the model
// expects. values must hold InputElements floats.
func (r *Rater) SubmitTensor(values []float32) <-chan Outcome {
	return r.submit(func() ([]byte, error) { return tensorBytes(values) })
}

// Score submits img and waits for the outcome. Cancelling ctx stops the
// wait, not the queued call.
func (r *Rater) Score(ctx context.Context, img image.Image) (Result, error) {
	return wait(ctx, r.Submit(img))
}

// ScoreTensor submits values and waits for the outcome.
func (r *Rater) ScoreTensor(ctx context.Context, values []float32) (Result, error) {
	return wait(ctx, r.SubmitTensor(values))
}

func wait(ctx context.Context, pending <-chan Outcome) (Result, error) {
	select {
	case out := <-pending:
		return out.Result, out.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (r *Rater) submit(input func() ([]byte, error)) <-chan Outcome {
	ch := make(chan Outcome, 1)
	if !r.queue.async(func() { ch <- r.run(input) }) {
		ch <- Outcome{Err: ErrClosed}
	}
	return ch
}

func tensorBytes(values []float32) ([]byte, error) {
	if len(values) != InputElements {
		return nil, fmt.Errorf("expected %d values, got %d", InputElements, len(values))
	}
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out, nil
}

func (r *Rater) run(input func() ([]byte, error)) Outcome {
	if r.closed {
		return Outcome{Err: ErrClosed}
	}

	id := uuid.NewString()
	start := time.Now()

	data, err := input()
	if err != nil {
		slog.Debug("failed to convert the input image", "run", id, "backend", r.backend, "error", err)
		return Outcome{Err: invalidImage(err)}
	}

	if err := r.interp.CopyInput(0, data); err != nil {
		return r.fail(id, err)
	}
	if err := r.interp.Invoke(); err != nil {
		return r.fail(id, err)
	}
	out, err := r.interp.Output(0)
	if err != nil {
		return r.fail(id, err)
	}

	score, err := firstFloat32(out)
	if err != nil {
		return r.fail(id, err)
	}

	res := Result{ID: id, Score: score, Backend: r.backend, Elapsed: time.Since(start)}
	slog.Debug("inference done", "run", id, "backend", r.backend, "score", score, "elapsed", res.Elapsed)
	return Outcome{Result: res}
}

func (r *Rater) fail(id string, err error) Outcome {
	slog.Warn("failed to invoke the interpreter", "run", id, "backend", r.backend, "error", err)
	return Outcome{Err: inferInternal(err)}
}

// firstFloat32 reads element 0 of a float32 tensor.
func firstFloat32(b []byte) (float32, error) {
	if len(b) < 4 {
		return 0, fmt.Errorf("output tensor has %d bytes", len(b))
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
}

// Close waits for queued calls, then releases the model. Later calls fail
// with ErrClosed.
func (r *Rater) Close() error {
	done := make(chan error, 1)
	if !r.queue.async(func() {
		if r.closed {
			done <- ErrClosed
			return
		}
		r.closed = true
		done <- r.interp.Close()
	}) {
		return ErrClosed
	}
	r.queue.close()

	err := <-done
	<-r.queue.done
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrClosed):
		return err
	default:
		return fmt.Errorf("close %s rater: %w", r.backend, err)
	}
}
