package cli

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/photo-rater/internal/controller"
	"github.com/Brownie44l1/photo-rater/internal/model"
	"github.com/Brownie44l1/photo-rater/internal/runtime"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewCLI()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func writePNG(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "photo.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 40, 30))))
	return path
}

func TestScoreModelMissing(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PHOTORATER_MODELS", dir)
	t.Setenv("PHOTORATER_RUNTIME", "")
	t.Setenv("PHOTORATER_BACKEND", "")

	out, err := execute(t, "score", writePNG(t, dir), filepath.Join(dir, "absent.jpg"))
	assert.EqualError(t, err, "2 of 2 images failed")
	assert.Contains(t, out, "photo.png: "+controller.StatusNotReady)
	assert.Contains(t, out, "absent.jpg: ")
}

func TestScoreInvalidImage(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PHOTORATER_MODELS", dir)
	path := filepath.Join(dir, "broken.png")
	require.NoError(t, os.WriteFile(path, []byte("not a png"), 0o644))

	out, err := execute(t, "score", path)
	assert.Error(t, err)
	assert.Contains(t, out, "broken.png: "+controller.StatusOrientation)
}

func TestScoreFlags(t *testing.T) {
	_, err := execute(t, "score")
	assert.Error(t, err)

	_, err = execute(t, "score", "--backend", "tpu", "photo.png")
	assert.ErrorContains(t, err, "unknown backend")

	t.Setenv("PHOTORATER_RUNTIME", "caffe")
	_, err = execute(t, "score", "photo.png")
	assert.ErrorContains(t, err, "unknown runtime")
}

func TestPreferredBackend(t *testing.T) {
	t.Setenv("PHOTORATER_BACKEND", "")
	b, err := preferredBackend("")
	require.NoError(t, err)
	assert.Equal(t, model.BackendGPU, b)

	t.Setenv("PHOTORATER_BACKEND", "cpu")
	b, err = preferredBackend("")
	require.NoError(t, err)
	assert.Equal(t, model.BackendCPU, b)

	b, err = preferredBackend("gpu")
	require.NoError(t, err)
	assert.Equal(t, model.BackendGPU, b)
}

func TestModelConfig(t *testing.T) {
	t.Setenv("PHOTORATER_MODELS", "/srv/models")
	t.Setenv("PHOTORATER_MODEL_NAME", "aesthetic")
	t.Setenv("PHOTORATER_RUNTIME", "tflite")
	t.Setenv("PHOTORATER_GPU_DELEGATE", "xnnpack")

	cfg, err := modelConfig()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/srv/models", "aesthetic.tflite"), cfg.ModelPath())
	assert.Equal(t, runtime.KindTFLite, cfg.Runtime)
	assert.Equal(t, runtime.DelegateXNNPACK, cfg.GPUDelegate)
}
