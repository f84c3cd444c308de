package controller

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/photo-rater/internal/imageutil/imagetest"
	"github.com/Brownie44l1/photo-rater/internal/model"
	"github.com/Brownie44l1/photo-rater/internal/registry"
	"github.com/Brownie44l1/photo-rater/internal/runtime/runtimetest"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newRegistry(t *testing.T, cpu, gpu *runtimetest.Interpreter, modelFiles ...string) *registry.Registry {
	t.Helper()
	if modelFiles == nil {
		modelFiles = []string{"predict.onnx"}
	}
	r := registry.New(model.Config{
		ModelDir:  runtimetest.ModelDir(t, modelFiles...),
		ModelName: "predict",
		Loader:    runtimetest.Loader(cpu, gpu, errors.New("no device")),
	}, "")
	require.NoError(t, r.Load(context.Background()))
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRunWithoutImage(t *testing.T) {
	gpu := runtimetest.NewInterpreter(1)
	c := New(newRegistry(t, nil, gpu))

	s := c.Run(context.Background())
	assert.Equal(t, StatusNoInput, s.Status)
	assert.True(t, s.RunEnabled)
	assert.Zero(t, gpu.Invokes())
}

func TestSelectAndRun(t *testing.T) {
	cpu, gpu := runtimetest.NewInterpreter(0.25), runtimetest.NewInterpreter(0.75)
	c := New(newRegistry(t, cpu, gpu))

	s := c.SelectImage(context.Background(), SourceLibrary, pngBytes(t, 400, 300))
	assert.True(t, s.HasImage)
	assert.Empty(t, s.Status)
	assert.Equal(t, image.Rect(0, 0, 400, 300), c.Displayed().Bounds())

	s = c.Run(context.Background())
	assert.Equal(t, "Score: 0.75", s.Status)
	require.NotNil(t, s.Result)
	assert.Equal(t, float32(0.75), s.Result.Score)
	assert.Equal(t, model.BackendGPU, s.Result.Backend)
	assert.True(t, s.RunEnabled)
	assert.Equal(t, 1, gpu.Invokes())
	assert.Zero(t, cpu.Invokes())

	first := c.Displayed()
	assert.Equal(t, 300, first.Bounds().Dx())
	assert.Equal(t, 300, first.Bounds().Dy())

	c.Run(context.Background())
	assert.Equal(t, first.Bounds(), c.Displayed().Bounds())
	assert.Equal(t, 2, gpu.Invokes())
}

func TestRunNotReady(t *testing.T) {
	cpu, gpu := runtimetest.NewInterpreter(0.25), runtimetest.NewInterpreter(0.75)
	c := New(newRegistry(t, cpu, gpu, "other.onnx"))

	c.SelectImage(context.Background(), SourceCamera, pngBytes(t, 400, 300))
	s := c.Run(context.Background())
	assert.Equal(t, StatusNotReady, s.Status)
	assert.True(t, s.RunEnabled)
	assert.Nil(t, s.Result)
	assert.Zero(t, gpu.Invokes())
	assert.Zero(t, cpu.Invokes())

	// The selection is not cropped when nothing runs.
	assert.Equal(t, image.Rect(0, 0, 400, 300), c.Displayed().Bounds())
}

func TestRunNoFallbackToCPU(t *testing.T) {
	cpu := runtimetest.NewInterpreter(0.25)
	c := New(newRegistry(t, cpu, nil))

	c.SelectImage(context.Background(), SourceLibrary, pngBytes(t, 20, 20))
	s := c.Run(context.Background())
	assert.Equal(t, StatusNotReady, s.Status)
	assert.Zero(t, cpu.Invokes())
}

func TestRunFailure(t *testing.T) {
	gpu := runtimetest.NewInterpreter(0.75)
	gpu.SetError(errors.New("delegate lost"))
	c := New(newRegistry(t, nil, gpu))

	c.SelectImage(context.Background(), SourceLibrary, pngBytes(t, 20, 10))
	s := c.Run(context.Background())
	assert.Equal(t, "internal error: delegate lost", s.Status)
	assert.True(t, s.RunEnabled)
	assert.Nil(t, s.Result)

	gpu.SetError(nil)
	s = c.Run(context.Background())
	assert.Equal(t, "Score: 0.75", s.Status)
}

func TestSelectInvalidKeepsState(t *testing.T) {
	c := New(newRegistry(t, nil, runtimetest.NewInterpreter(1)))

	c.SelectImage(context.Background(), SourceLibrary, pngBytes(t, 30, 20))
	s := c.SelectImage(context.Background(), SourceCamera, []byte("not an image"))
	assert.Equal(t, StatusOrientation, s.Status)
	assert.True(t, s.HasImage)
	assert.Equal(t, image.Rect(0, 0, 30, 20), c.Displayed().Bounds())
}

func TestPasteInput(t *testing.T) {
	gpu := runtimetest.NewInterpreter(1)
	c := New(newRegistry(t, nil, gpu))

	s := c.Paste(RoleInput, pngBytes(t, 50, 40))
	assert.True(t, s.HasImage)
	assert.False(t, s.HasStyle)
	assert.Equal(t, image.Rect(0, 0, 50, 40), c.Displayed().Bounds())
	assert.Zero(t, gpu.Invokes())

	s = c.Paste(RoleInput, []byte{1, 2, 3})
	assert.Equal(t, StatusOrientation, s.Status)
}

func TestPasteStyleRunsOnSelect(t *testing.T) {
	gpu := runtimetest.NewInterpreter(0.5)
	c := New(newRegistry(t, nil, gpu))

	s := c.Paste(RoleStyle, []byte("garbage"))
	assert.Equal(t, StatusStyleCrop, s.Status)
	assert.False(t, s.HasStyle)

	s = c.Paste(RoleStyle, pngBytes(t, 60, 30))
	assert.True(t, s.HasStyle)
	assert.Nil(t, c.Displayed())

	s = c.SelectImage(context.Background(), SourceLibrary, pngBytes(t, 40, 80))
	assert.Equal(t, "Score: 0.5", s.Status)
	assert.Equal(t, 1, gpu.Invokes())
	assert.Equal(t, image.Rect(0, 0, 40, 40), c.Displayed().Bounds())
}

func TestSelectImageUpright(t *testing.T) {
	c := New(newRegistry(t, nil, runtimetest.NewInterpreter(1)))

	src := image.NewRGBA(image.Rect(0, 0, 40, 20))
	s := c.SelectImage(context.Background(), SourceCamera, imagetest.OrientedJPEG(t, src, 6))
	assert.Empty(t, s.Status)
	assert.True(t, s.HasImage)
	assert.Equal(t, image.Rect(0, 0, 20, 40), c.Displayed().Bounds())
}

// startHeldRun starts Run on a held interpreter and waits until the call
// reached Invoke.
func startHeldRun(t *testing.T, c *Controller, gpu *runtimetest.Interpreter, ctx context.Context) <-chan State {
	t.Helper()
	before := gpu.Invokes()
	states := make(chan State, 1)
	go func() { states <- c.Run(ctx) }()
	require.Eventually(t, func() bool { return gpu.Invokes() == before+1 }, 5*time.Second, time.Millisecond)
	return states
}

func TestRunWhileInFlight(t *testing.T) {
	gpu := runtimetest.NewInterpreter(0.5)
	c := New(newRegistry(t, nil, gpu))
	release := gpu.Hold()
	t.Cleanup(release)

	c.SelectImage(context.Background(), SourceLibrary, pngBytes(t, 30, 30))
	first := startHeldRun(t, c, gpu, context.Background())

	s := c.Run(context.Background())
	assert.Equal(t, StatusRunning, s.Status)
	assert.False(t, s.RunEnabled)
	assert.Nil(t, s.Result)

	release()
	s = <-first
	assert.Equal(t, "Score: 0.5", s.Status)
	assert.True(t, s.RunEnabled)
	assert.Equal(t, 1, gpu.Invokes())
}

func TestRunCancelledStillCompletes(t *testing.T) {
	gpu := runtimetest.NewInterpreter(0.9)
	c := New(newRegistry(t, nil, gpu))
	release := gpu.Hold()
	t.Cleanup(release)

	c.SelectImage(context.Background(), SourceLibrary, pngBytes(t, 30, 30))
	ctx, cancel := context.WithCancel(context.Background())
	states := startHeldRun(t, c, gpu, ctx)

	cancel()
	s := <-states
	assert.Equal(t, StatusRunning, s.Status)
	assert.False(t, s.RunEnabled)
	assert.Nil(t, s.Result)

	release()
	require.Eventually(t, func() bool { return c.Snapshot().RunEnabled }, 5*time.Second, time.Millisecond)

	s = c.Snapshot()
	assert.Equal(t, "Score: 0.9", s.Status)
	require.NotNil(t, s.Result)
	assert.Equal(t, float32(0.9), s.Result.Score)
}
