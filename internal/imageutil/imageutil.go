// Package imageutil holds the image steps around inference: decoding into
// an upright image, center cropping, and resampling into tensor bytes.
package imageutil

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"math"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	// ErrOrientation is returned when an image cannot be decoded upright.
	ErrOrientation = errors.New("image orientation couldn't be fixed")
	// ErrEmptyImage is returned for nil or zero-sized images.
	ErrEmptyImage = errors.New("empty image")
)

// Decode reads an image and rotates it upright according to its EXIF
// orientation. JPEG, PNG, GIF, WebP, BMP and TIFF are supported.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrientation, err)
	}
	if isEmpty(img) {
		return nil, fmt.Errorf("%w: %w", ErrOrientation, ErrEmptyImage)
	}
	return img, nil
}

// CropCenter returns the largest centered square of img.
func CropCenter(img image.Image) (image.Image, error) {
	if isEmpty(img) {
		return nil, ErrEmptyImage
	}

	b := img.Bounds()
	side := min(b.Dx(), b.Dy())
	return imaging.CropCenter(img, side, side), nil
}

// ScaledData resamples img to size×size and returns its pixels as
// interleaved RGB. Quantized data has one byte per channel; otherwise each
// channel is a little-endian float32 in [0, 1].
func ScaledData(img image.Image, size int, quantized bool) ([]byte, error) {
	if isEmpty(img) {
		return nil, ErrEmptyImage
	}
	if size <= 0 {
		return nil, fmt.Errorf("invalid size %d", size)
	}

	resized := resize.Resize(uint(size), uint(size), img, resize.Lanczos3)
	bounds := resized.Bounds()

	bytesPerChannel := 4
	if quantized {
		bytesPerChannel = 1
	}
	out := make([]byte, size*size*3*bytesPerChannel)

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			for _, c := range [3]uint32{r >> 8, g >> 8, b >> 8} {
				if quantized {
					out[i] = byte(c)
				} else {
					binary.LittleEndian.PutUint32(out[i:], math.Float32bits(float32(c)/255))
				}
				i += bytesPerChannel
			}
		}
	}
	return out, nil
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return imaging.Encode(w, img, imaging.PNG)
}

func isEmpty(img image.Image) bool {
	return img == nil || img.Bounds().Empty()
}
