//go:build linux && (amd64 || arm64)

package v4l2

import (
	"fmt"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Device is an open V4L2 video node.
type Device struct {
	fd int
}

// Open validates that path names a character device and opens it
// read/write in non-blocking mode. Errors name the path.
func Open(path string) (*Device, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if st.Mode()&os.ModeCharDevice == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNotCharDevice)
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Device{fd: fd}, nil
}

// ioctl retries the request while it is interrupted by a signal.
func (d *Device) ioctl(req uintptr, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), req, uintptr(arg))
		if errno == unix.EINTR {
			continue
		}
		if errno != 0 {
			return errno
		}
		return nil
	}
}

func (d *Device) QueryCapability() (Capability, error) {
	var raw rawCapability
	if err := d.ioctl(vidiocQuerycap, unsafe.Pointer(&raw)); err != nil {
		return Capability{}, err
	}
	return Capability{
		Driver:       cString(raw.driver[:]),
		Card:         cString(raw.card[:]),
		BusInfo:      cString(raw.busInfo[:]),
		Version:      raw.version,
		Capabilities: raw.capabilities,
		DeviceCaps:   raw.deviceCaps,
	}, nil
}

// CropCapability returns the driver's default cropping rectangle.
func (d *Device) CropCapability() (Rect, error) {
	raw := rawCropcap{typ: BufTypeVideoCapture}
	if err := d.ioctl(vidiocCropcap, unsafe.Pointer(&raw)); err != nil {
		return Rect{}, err
	}
	r := raw.defrect
	return Rect{Left: r.left, Top: r.top, Width: r.width, Height: r.height}, nil
}

func (d *Device) SetCrop(r Rect) error {
	raw := rawCrop{
		typ: BufTypeVideoCapture,
		c:   rawRect{left: r.Left, top: r.Top, width: r.Width, height: r.Height},
	}
	return d.ioctl(vidiocSCrop, unsafe.Pointer(&raw))
}

// Format reads the currently active capture format.
func (d *Device) Format() (PixFormat, error) {
	raw := rawFormat{typ: BufTypeVideoCapture}
	if err := d.ioctl(vidiocGFmt, unsafe.Pointer(&raw)); err != nil {
		return PixFormat{}, err
	}
	return fromRaw(raw.pix()), nil
}

// SetFormat requests a capture format and returns what the driver
// actually applied, which may differ from the request.
func (d *Device) SetFormat(f PixFormat) (PixFormat, error) {
	raw := rawFormat{typ: BufTypeVideoCapture}
	pix := raw.pix()
	pix.width = f.Width
	pix.height = f.Height
	pix.pixelformat = uint32(f.PixelFormat)
	pix.field = f.Field
	if err := d.ioctl(vidiocSFmt, unsafe.Pointer(&raw)); err != nil {
		return PixFormat{}, err
	}
	return fromRaw(pix), nil
}

func fromRaw(p *rawPixFormat) PixFormat {
	return PixFormat{
		Width:        p.width,
		Height:       p.height,
		PixelFormat:  FourCC(p.pixelformat),
		Field:        p.field,
		BytesPerLine: p.bytesperline,
		SizeImage:    p.sizeimage,
	}
}

// RequestBuffers asks for count MMAP buffers and returns how many the
// driver granted.
func (d *Device) RequestBuffers(count uint32) (uint32, error) {
	req := rawRequestBuffers{count: count, typ: BufTypeVideoCapture, memory: MemoryMMap}
	if err := d.ioctl(vidiocReqbufs, unsafe.Pointer(&req)); err != nil {
		return 0, err
	}
	return req.count, nil
}

func (d *Device) QueryBuffer(index uint32) (BufferInfo, error) {
	buf := rawBuffer{index: index, typ: BufTypeVideoCapture, memory: MemoryMMap}
	if err := d.ioctl(vidiocQuerybuf, unsafe.Pointer(&buf)); err != nil {
		return BufferInfo{}, err
	}
	return bufferInfo(&buf), nil
}

// Map shares a buffer region into the process address space.
func (d *Device) Map(offset, length uint32) ([]byte, error) {
	return unix.Mmap(d.fd, int64(offset), int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

func (d *Device) Unmap(b []byte) error {
	return unix.Munmap(b)
}

// Queue hands the buffer at index to the driver.
func (d *Device) Queue(index uint32) error {
	buf := rawBuffer{index: index, typ: BufTypeVideoCapture, memory: MemoryMMap}
	return d.ioctl(vidiocQbuf, unsafe.Pointer(&buf))
}

// Dequeue takes one filled buffer back from the driver. On a non-blocking
// descriptor it fails with EAGAIN when no buffer is ready.
func (d *Device) Dequeue() (BufferInfo, error) {
	buf := rawBuffer{typ: BufTypeVideoCapture, memory: MemoryMMap}
	if err := d.ioctl(vidiocDqbuf, unsafe.Pointer(&buf)); err != nil {
		return BufferInfo{}, err
	}
	return bufferInfo(&buf), nil
}

func bufferInfo(b *rawBuffer) BufferInfo {
	return BufferInfo{
		Index:     b.index,
		Offset:    b.offset,
		Length:    b.length,
		BytesUsed: b.bytesused,
		Sequence:  b.sequence,
	}
}

func (d *Device) StreamOn() error {
	typ := int32(BufTypeVideoCapture)
	return d.ioctl(vidiocStreamon, unsafe.Pointer(&typ))
}

func (d *Device) StreamOff() error {
	typ := int32(BufTypeVideoCapture)
	return d.ioctl(vidiocStreamoff, unsafe.Pointer(&typ))
}

// Wait blocks until the device has a filled buffer or timeout elapses.
// An interrupted wait is reported as EINTR and not retried here.
func (d *Device) Wait(timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout/time.Millisecond))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *Device) Close() error {
	return unix.Close(d.fd)
}
