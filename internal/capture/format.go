package capture

import (
	"fmt"

	"github.com/junsooki/DepthCam/internal/v4l2"
)

// Forced geometry requested when a session is started with ForceFormat.
const (
	forcedWidth  = 640
	forcedHeight = 480
)

// Format is the negotiated frame geometry of a session.
type Format struct {
	Width       int
	Height      int
	Stride      int
	SizeImage   int
	PixelFormat v4l2.FourCC
	Field       uint32
}

func formatFromPix(p v4l2.PixFormat) Format {
	return Format{
		Width:       int(p.Width),
		Height:      int(p.Height),
		Stride:      int(p.BytesPerLine),
		SizeImage:   int(p.SizeImage),
		PixelFormat: p.PixelFormat,
		Field:       p.Field,
	}
}

// applyMinimums raises stride and image size to what the geometry needs.
// Some drivers under-report both.
func (f Format) applyMinimums() Format {
	if need := f.Width * 2; f.Stride < need {
		f.Stride = need
	}
	if need := f.Stride * f.Height; f.SizeImage < need {
		f.SizeImage = need
	}
	return f
}

func (f Format) String() string {
	return fmt.Sprintf("%dx%d %s stride=%d size=%d", f.Width, f.Height, f.PixelFormat, f.Stride, f.SizeImage)
}

// Want is the geometry a consumer decodes. A session whose negotiated
// format differs is refused instead of delivering frames nobody can read.
type Want struct {
	Width         int
	Height        int
	PixelFormat   v4l2.FourCC
	BytesPerPixel int
}

// check compares f against w. Rows must be packed: padding between rows
// would shift every line after the first.
func (f Format) check(w Want) error {
	if f.Width != w.Width || f.Height != w.Height {
		return fmt.Errorf("got %dx%d, want %dx%d", f.Width, f.Height, w.Width, w.Height)
	}
	if f.PixelFormat != w.PixelFormat {
		return fmt.Errorf("got pixel format %s, want %s", f.PixelFormat, w.PixelFormat)
	}
	if need := w.Width * w.BytesPerPixel; f.Stride != need {
		return fmt.Errorf("got stride %d, want %d", f.Stride, need)
	}
	return nil
}
