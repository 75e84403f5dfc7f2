// Package capture drives V4L2 capture devices through the memory-mapped
// streaming protocol: format negotiation, a fixed ring of kernel-shared
// buffers and a blocking wait/dequeue/requeue cycle.
package capture

import (
	"time"

	"github.com/junsooki/DepthCam/internal/v4l2"
)

// Device is the kernel control surface a Session drives.
// *v4l2.Device implements it; tests substitute an in-memory fake.
type Device interface {
	QueryCapability() (v4l2.Capability, error)
	CropCapability() (v4l2.Rect, error)
	SetCrop(r v4l2.Rect) error
	Format() (v4l2.PixFormat, error)
	SetFormat(f v4l2.PixFormat) (v4l2.PixFormat, error)
	StreamOn() error
	StreamOff() error
	// Wait blocks until a filled buffer is ready or the timeout elapses.
	// A signal interruption is reported as syscall.EINTR.
	Wait(timeout time.Duration) (bool, error)
	Close() error

	bufferDevice
}

// bufferDevice is the subset of Device a Pool needs.
type bufferDevice interface {
	RequestBuffers(count uint32) (uint32, error)
	QueryBuffer(index uint32) (v4l2.BufferInfo, error)
	Map(offset, length uint32) ([]byte, error)
	Unmap(b []byte) error
	Queue(index uint32) error
	Dequeue() (v4l2.BufferInfo, error)
}

// Opener opens the device node at path.
type Opener func(path string) (Device, error)

// OpenV4L2 opens a real V4L2 node.
func OpenV4L2(path string) (Device, error) {
	d, err := v4l2.Open(path)
	if err != nil {
		return nil, err
	}
	return d, nil
}
