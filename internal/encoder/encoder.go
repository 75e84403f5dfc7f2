package encoder

import "image"

// Encoder encodes a composite into bytes for the wire.
type Encoder interface {
	Encode(img *image.RGBA) ([]byte, error)
	SetQuality(quality int)
}
