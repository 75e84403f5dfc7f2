package display

import (
	"errors"
	"image"
	"math"

	"github.com/junsooki/DepthCam/internal/decoder"
)

// Renderer accepts the decoded frames of one capture tick. Render returns
// before the next tick starts and must not retain the frames.
type Renderer interface {
	Render(color *decoder.ColorFrame, depth *decoder.DepthFrame) error
}

// FrameSink accepts composited frames received from elsewhere.
type FrameSink interface {
	SetFrame(img *image.RGBA)
}

// Multi renders each tick to every renderer in order.
type Multi []Renderer

func (m Multi) Render(color *decoder.ColorFrame, depth *decoder.DepthFrame) error {
	var errs []error
	for _, r := range m {
		if err := r.Render(color, depth); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// aspectFitTransform returns scale and offsets to fit frame into view with letterboxing.
func aspectFitTransform(viewW, viewH, frameW, frameH float64) (scale, offsetX, offsetY float64) {
	scale = math.Min(viewW/frameW, viewH/frameH)
	offsetX = (viewW - frameW*scale) / 2
	offsetY = (viewH - frameH*scale) / 2
	return
}
