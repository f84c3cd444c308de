// Package imagetest builds encoded image fixtures for tests.
package imagetest

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/jpeg"
	"testing"
)

// OrientedJPEG encodes img as a JPEG whose EXIF block carries the given
// Orientation tag (1-8). Pixels are stored as-is, so a decoder honoring the
// tag must rotate or flip them.
func OrientedJPEG(t testing.TB, img image.Image, orientation uint16) []byte {
	t.Helper()

	var raw bytes.Buffer
	if err := jpeg.Encode(&raw, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatal(err)
	}

	// Big-endian TIFF header and a single IFD holding one SHORT entry.
	var tiff bytes.Buffer
	tiff.WriteString("MM\x00\x2a")
	for _, v := range []any{
		uint32(8),      // first IFD offset
		uint16(1),      // entry count
		uint16(0x0112), // Orientation
		uint16(3),      // SHORT
		uint32(1),      // count
		orientation,
		uint16(0),
		uint32(0), // next IFD
	} {
		if err := binary.Write(&tiff, binary.BigEndian, v); err != nil {
			t.Fatal(err)
		}
	}

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)

	data := raw.Bytes()
	var out bytes.Buffer
	out.Write(data[:2]) // SOI
	out.Write([]byte{0xff, 0xe1})
	if err := binary.Write(&out, binary.BigEndian, uint16(len(payload)+2)); err != nil {
		t.Fatal(err)
	}
	out.Write(payload)
	out.Write(data[2:])
	return out.Bytes()
}
