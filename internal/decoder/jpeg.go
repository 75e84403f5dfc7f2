package decoder

import (
	"bytes"
	"image"
	"image/draw"
	"image/jpeg"
)

// JPEGDecoder decodes composites received from a remote host into
// *image.RGBA, reusing its output image while the size is unchanged.
type JPEGDecoder struct {
	out *image.RGBA
}

func NewJPEGDecoder() *JPEGDecoder {
	return &JPEGDecoder{}
}

// Decode returns an image that is overwritten by the next call.
func (d *JPEGDecoder) Decode(data []byte) (*image.RGBA, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	if d.out == nil || d.out.Bounds() != b {
		d.out = image.NewRGBA(b)
	}
	draw.Draw(d.out, b, img, b.Min, draw.Src)
	return d.out, nil
}
