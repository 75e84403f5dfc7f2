package encoder

import (
	"bytes"
	"image"
	"image/jpeg"
)

// JPEGEncoder encodes composites as JPEG into a reused buffer.
type JPEGEncoder struct {
	quality int
	buf     bytes.Buffer
}

// NewJPEGEncoder creates a JPEG encoder with the given quality (1-100).
func NewJPEGEncoder(quality int) *JPEGEncoder {
	e := &JPEGEncoder{}
	e.SetQuality(quality)
	e.buf.Grow(128 * 1024) // pre-allocate 128KB
	return e
}

// SetQuality clamps quality to 1-100.
func (e *JPEGEncoder) SetQuality(quality int) {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	e.quality = quality
}

func (e *JPEGEncoder) Quality() int { return e.quality }

// Encode returns bytes that stay valid until the next call.
func (e *JPEGEncoder) Encode(img *image.RGBA) ([]byte, error) {
	e.buf.Reset()
	if err := jpeg.Encode(&e.buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}
