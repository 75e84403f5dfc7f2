package decoder

import (
	"encoding/binary"
	"fmt"
)

// DepthFrame holds the depth and intensity planes of the combined sensor.
type DepthFrame struct {
	Width     int
	Height    int
	Depth     []uint16
	Intensity []uint8
}

// NewDepthFrame allocates both planes for the given geometry.
func NewDepthFrame(width, height int) *DepthFrame {
	n := width * height
	return &DepthFrame{
		Width:     width,
		Height:    height,
		Depth:     make([]uint16, n),
		Intensity: make([]uint8, n),
	}
}

// DecodeZ16Y8 splits packed elements of a little-endian 16-bit depth sample
// followed by an 8-bit intensity sample into the two planes of dst.
// Element i lands at index i of both planes.
func DecodeZ16Y8(dst *DepthFrame, src []byte) error {
	n := len(dst.Depth)
	need := n * Z16Y8BytesPerPixel
	if len(src) < need {
		return fmt.Errorf("%w: z16y8 %dx%d needs %d bytes, got %d", ErrShortFrame, dst.Width, dst.Height, need, len(src))
	}
	for i := 0; i < n; i++ {
		e := src[i*Z16Y8BytesPerPixel:]
		dst.Depth[i] = binary.LittleEndian.Uint16(e)
		dst.Intensity[i] = e[depthSampleSize]
	}
	return nil
}
