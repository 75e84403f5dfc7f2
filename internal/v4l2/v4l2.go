// Package v4l2 is a minimal pure Go binding to the Video4Linux2 streaming
// capture API: capability and format negotiation, cropping, memory-mapped
// buffer exchange and readiness waits.
//
// Only the single-plane VIDEO_CAPTURE buffer type with MMAP memory is
// supported.
package v4l2

import (
	"bytes"
	"errors"
	"fmt"
)

// Buffer type, memory model and field order values.
const (
	BufTypeVideoCapture = 1
	MemoryMMap          = 1

	FieldAny        = 0
	FieldNone       = 1
	FieldInterlaced = 4
)

// Capability bits reported by VIDIOC_QUERYCAP.
const (
	CapVideoCapture = 0x00000001
	CapStreaming    = 0x04000000
	CapDeviceCaps   = 0x80000000
)

// FourCC is a V4L2 pixel format code.
type FourCC uint32

// NewFourCC packs four characters into a FourCC the way v4l2_fourcc does.
func NewFourCC(a, b, c, d byte) FourCC {
	return FourCC(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

// Pixel formats used by the capture rig.
var (
	PixFmtYUYV = NewFourCC('Y', 'U', 'Y', 'V')
	// PixFmtZ16Y8 is the packed depth+infrared layout: a 16-bit depth sample
	// followed by an 8-bit intensity sample per pixel.
	PixFmtZ16Y8 = NewFourCC('Z', '1', '6', 'Y')
)

func (f FourCC) String() string {
	b := []byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("0x%08x", uint32(f))
		}
	}
	return string(b)
}

// ErrNotCharDevice is returned by Open when the path is not a character device.
var ErrNotCharDevice = errors.New("not a character device")

// Capability is the decoded form of struct v4l2_capability.
type Capability struct {
	Driver       string
	Card         string
	BusInfo      string
	Version      uint32
	Capabilities uint32
	DeviceCaps   uint32
}

// Effective returns the capability set of the opened node: device_caps when
// the driver fills it in, otherwise the physical device capabilities.
func (c Capability) Effective() uint32 {
	if c.Capabilities&CapDeviceCaps != 0 {
		return c.DeviceCaps
	}
	return c.Capabilities
}

// CanCapture reports whether the node supports single-plane video capture.
func (c Capability) CanCapture() bool { return c.Effective()&CapVideoCapture != 0 }

// CanStream reports whether the node supports streaming I/O.
func (c Capability) CanStream() bool { return c.Effective()&CapStreaming != 0 }

// PixFormat mirrors the negotiated fields of struct v4l2_pix_format.
type PixFormat struct {
	Width        uint32
	Height       uint32
	PixelFormat  FourCC
	Field        uint32
	BytesPerLine uint32
	SizeImage    uint32
}

// Rect mirrors struct v4l2_rect.
type Rect struct {
	Left   int32
	Top    int32
	Width  uint32
	Height uint32
}

// BufferInfo carries the fields of struct v4l2_buffer the rig consumes.
type BufferInfo struct {
	Index     uint32
	Offset    uint32
	Length    uint32
	BytesUsed uint32
	Sequence  uint32
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
