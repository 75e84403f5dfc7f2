package decoder

import "fmt"

// ColorFrame is the reusable interleaved YUYV buffer of the color stream.
type ColorFrame struct {
	Width  int
	Height int
	Pix    []byte
}

// NewColorFrame allocates a ColorFrame of the given geometry.
func NewColorFrame(width, height int) *ColorFrame {
	return &ColorFrame{Width: width, Height: height, Pix: make([]byte, width*height*YUYVBytesPerPixel)}
}

// DecodeYUYV copies a YUYV frame into dst unchanged. The display layer
// interprets the interleaved encoding itself, so no resampling happens.
func DecodeYUYV(dst *ColorFrame, src []byte) error {
	need := len(dst.Pix)
	if len(src) < need {
		return fmt.Errorf("%w: yuyv %dx%d needs %d bytes, got %d", ErrShortFrame, dst.Width, dst.Height, need, len(src))
	}
	copy(dst.Pix, src[:need])
	return nil
}
