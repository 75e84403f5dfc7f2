//go:build linux && (amd64 || arm64)

package v4l2

import "unsafe"

// Layouts follow include/uapi/linux/videodev2.h on 64-bit architectures.
var (
	_ [0]struct{} = [unsafe.Sizeof(rawCapability{}) - 104]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(rawPixFormat{}) - 48]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(rawFormat{}) - 208]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(rawCropcap{}) - 44]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(rawCrop{}) - 20]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(rawRequestBuffers{}) - 20]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(rawBuffer{}) - 88]struct{}{}

	_ [0]struct{} = [unsafe.Offsetof(rawFormat{}.fmt) - 8]struct{}{}
	_ [0]struct{} = [unsafe.Offsetof(rawBuffer{}.sequence) - 56]struct{}{}
	_ [0]struct{} = [unsafe.Offsetof(rawBuffer{}.offset) - 64]struct{}{}
	_ [0]struct{} = [unsafe.Offsetof(rawBuffer{}.length) - 72]struct{}{}
)

type rawCapability struct {
	driver       [16]byte
	card         [32]byte
	busInfo      [32]byte
	version      uint32
	capabilities uint32
	deviceCaps   uint32
	reserved     [3]uint32
}

type rawPixFormat struct {
	width        uint32
	height       uint32
	pixelformat  uint32
	field        uint32
	bytesperline uint32
	sizeimage    uint32
	colorspace   uint32
	priv         uint32
	flags        uint32
	ycbcrEnc     uint32
	quantization uint32
	xferFunc     uint32
}

// rawFormat is struct v4l2_format. The kernel union is 8-byte aligned
// because v4l2_window carries pointers, hence the explicit pad.
type rawFormat struct {
	typ uint32
	_   uint32
	fmt [200]byte
}

func (f *rawFormat) pix() *rawPixFormat {
	return (*rawPixFormat)(unsafe.Pointer(&f.fmt[0]))
}

type rawRect struct {
	left   int32
	top    int32
	width  uint32
	height uint32
}

type rawFract struct {
	numerator   uint32
	denominator uint32
}

type rawCropcap struct {
	typ         uint32
	bounds      rawRect
	defrect     rawRect
	pixelaspect rawFract
}

type rawCrop struct {
	typ uint32
	c   rawRect
}

type rawRequestBuffers struct {
	count        uint32
	typ          uint32
	memory       uint32
	capabilities uint32
	flags        uint8
	reserved     [3]uint8
}

type rawTimeval struct {
	sec  int64
	usec int64
}

type rawTimecode struct {
	typ      uint32
	flags    uint32
	frames   uint8
	seconds  uint8
	minutes  uint8
	hours    uint8
	userbits [4]uint8
}

type rawBuffer struct {
	index     uint32
	typ       uint32
	bytesused uint32
	flags     uint32
	field     uint32
	_         uint32
	timestamp rawTimeval
	timecode  rawTimecode
	sequence  uint32
	memory    uint32
	offset    uint32 // m.offset; the union is 8 bytes wide
	_         uint32
	length    uint32
	reserved2 uint32
	requestFD int32
	_         uint32
}

const (
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, nr, size uintptr) uintptr {
	return dir<<iocDirShift | uintptr('V')<<iocTypeShift | nr<<iocNRShift | size<<iocSizeShift
}

var (
	vidiocQuerycap  = ioc(iocRead, 0, unsafe.Sizeof(rawCapability{}))
	vidiocGFmt      = ioc(iocRead|iocWrite, 4, unsafe.Sizeof(rawFormat{}))
	vidiocSFmt      = ioc(iocRead|iocWrite, 5, unsafe.Sizeof(rawFormat{}))
	vidiocReqbufs   = ioc(iocRead|iocWrite, 8, unsafe.Sizeof(rawRequestBuffers{}))
	vidiocQuerybuf  = ioc(iocRead|iocWrite, 9, unsafe.Sizeof(rawBuffer{}))
	vidiocQbuf      = ioc(iocRead|iocWrite, 15, unsafe.Sizeof(rawBuffer{}))
	vidiocDqbuf     = ioc(iocRead|iocWrite, 17, unsafe.Sizeof(rawBuffer{}))
	vidiocStreamon  = ioc(iocWrite, 18, unsafe.Sizeof(int32(0)))
	vidiocStreamoff = ioc(iocWrite, 19, unsafe.Sizeof(int32(0)))
	vidiocCropcap   = ioc(iocRead|iocWrite, 58, unsafe.Sizeof(rawCropcap{}))
	vidiocSCrop     = ioc(iocWrite, 60, unsafe.Sizeof(rawCrop{}))
)
