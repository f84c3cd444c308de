package imageutil

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/photo-rater/internal/imageutil/imagetest"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	img, err := Decode(bytes.NewReader(pngBytes(t, solid(40, 30, color.White))))
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx())
	assert.Equal(t, 30, img.Bounds().Dy())

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solid(16, 8, color.Black), nil))
	img, err = Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 8), img.Bounds())
}

func TestDecodeOrientation(t *testing.T) {
	// Left half red, right half blue.
	src := solid(16, 8, color.RGBA{0, 0, 255, 255})
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			src.Set(x, y, color.RGBA{255, 0, 0, 255})
		}
	}

	img, err := Decode(bytes.NewReader(imagetest.OrientedJPEG(t, src, 1)))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 8), img.Bounds())

	// Orientation 6: the stored pixels are rotated 90° clockwise for display,
	// so the left half ends up on top.
	img, err = Decode(bytes.NewReader(imagetest.OrientedJPEG(t, src, 6)))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 16), img.Bounds())

	r, _, b, _ := img.At(4, 3).RGBA()
	assert.Greater(t, r>>8, uint32(200))
	assert.Less(t, b>>8, uint32(60))

	r, _, b, _ = img.At(4, 12).RGBA()
	assert.Less(t, r>>8, uint32(60))
	assert.Greater(t, b>>8, uint32(200))
}

func TestDecodeInvalid(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte{0, 0, 0, 0}))
	assert.ErrorIs(t, err, ErrOrientation)
}

func TestCropCenter(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 400, 300))
	for y := 0; y < 300; y++ {
		for x := 0; x < 400; x++ {
			src.Set(x, y, color.RGBA{uint8(x), uint8(y), 0, 255})
		}
	}

	first, err := CropCenter(src)
	require.NoError(t, err)
	assert.Equal(t, 300, first.Bounds().Dx())
	assert.Equal(t, 300, first.Bounds().Dy())

	second, err := CropCenter(src)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// 50 columns are trimmed from each side.
	r, g, _, _ := first.At(0, 0).RGBA()
	assert.Equal(t, uint32(50), r>>8)
	assert.Equal(t, uint32(0), g>>8)

	tall, err := CropCenter(solid(10, 30, color.White))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 10, 10), tall.Bounds())
}

func TestCropCenterEmpty(t *testing.T) {
	_, err := CropCenter(image.NewRGBA(image.Rect(0, 0, 0, 0)))
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, err = CropCenter(nil)
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestScaledData(t *testing.T) {
	data, err := ScaledData(solid(400, 300, color.RGBA{255, 0, 0, 255}), 224, false)
	require.NoError(t, err)
	require.Len(t, data, 224*224*3*4)

	channel := func(i int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	assert.InDelta(t, 1.0, channel(0), 0.01)
	assert.InDelta(t, 0.0, channel(1), 0.01)
	assert.InDelta(t, 0.0, channel(2), 0.01)

	last := 224*224*3 - 3
	assert.InDelta(t, 1.0, channel(last), 0.01)
}

func TestScaledDataQuantized(t *testing.T) {
	data, err := ScaledData(solid(10, 10, color.RGBA{0, 0, 255, 255}), 224, true)
	require.NoError(t, err)
	require.Len(t, data, 224*224*3)
	assert.InDelta(t, 0, int(data[0]), 1)
	assert.InDelta(t, 0, int(data[1]), 1)
	assert.InDelta(t, 255, int(data[2]), 1)
}

func TestScaledDataInvalid(t *testing.T) {
	_, err := ScaledData(image.NewRGBA(image.Rect(0, 0, 0, 0)), 224, false)
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, err = ScaledData(nil, 224, false)
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, err = ScaledData(solid(4, 4, color.White), 0, false)
	assert.Error(t, err)
}

func TestEncodePNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodePNG(&buf, solid(3, 2, color.White)))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())
}
