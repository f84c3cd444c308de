// Package runtimetest provides an in-memory interpreter for tests.
package runtimetest

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Brownie44l1/photo-rater/internal/runtime"
)

// Interpreter returns a fixed output and counts calls.
type Interpreter struct {
	mu      sync.Mutex
	output  []byte
	err     error
	invokes int
	closed  bool
	gate    chan struct{}
}

// NewInterpreter returns an interpreter whose output tensor holds score.
func NewInterpreter(score float32) *Interpreter {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, math.Float32bits(score))
	return &Interpreter{output: out}
}

// SetError makes every following Invoke fail with err.
func (f *Interpreter) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Hold makes every following Invoke block until release is called.
// Invokes counts a held call as soon as it starts.
func (f *Interpreter) Hold() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.gate = nil
			f.mu.Unlock()
			close(gate)
		})
	}
}

// Invokes returns how many forward passes ran.
func (f *Interpreter) Invokes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invokes
}

// Closed reports whether Close was called.
func (f *Interpreter) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Interpreter) AllocateTensors() error      { return nil }
func (f *Interpreter) CopyInput(int, []byte) error { return nil }

func (f *Interpreter) Invoke() error {
	f.mu.Lock()
	f.invokes++
	gate, err := f.gate, f.err
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return err
}

func (f *Interpreter) Output(int) ([]byte, error) {
	return f.output, nil
}

func (f *Interpreter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// ModelDir creates a directory holding an empty model file for each name
// and returns it.
func ModelDir(t testing.TB, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// Loader returns a loader handing out interpreters by delegate: the first
// delegate in the options selects gpu, none selects cpu. A nil interpreter
// makes the load fail with err.
func Loader(cpu, gpu *Interpreter, err error) runtime.Loader {
	return func(_ string, opts runtime.Options) (runtime.Interpreter, error) {
		pick := cpu
		if len(opts.Delegates) > 0 {
			pick = gpu
		}
		if pick == nil {
			return nil, err
		}
		return pick, nil
	}
}
