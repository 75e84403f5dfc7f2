// Package decoder turns filled capture buffers into application-owned
// planar frames. The decoders never allocate and never reinterpret memory:
// every sample is read explicitly from the byte span.
package decoder

import (
	"errors"
	"image"
)

// Display geometry of the two streams.
const (
	ColorWidth  = 640
	ColorHeight = 480
	DepthWidth  = 320
	DepthHeight = 240
)

// Packed sizes per pixel.
const (
	YUYVBytesPerPixel   = 2
	depthSampleSize     = 2
	intensitySampleSize = 1
	Z16Y8BytesPerPixel  = depthSampleSize + intensitySampleSize
)

// ErrShortFrame indicates a filled buffer holds fewer bytes than its
// geometry requires. The destination is left untouched.
var ErrShortFrame = errors.New("frame shorter than geometry")

// Decoder decodes bytes into an image.
type Decoder interface {
	Decode(data []byte) (*image.RGBA, error)
}
