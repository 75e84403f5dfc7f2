package capture

import (
	"syscall"
	"time"

	"github.com/junsooki/DepthCam/internal/v4l2"
)

const fakePageSize = 4096

type waitResult struct {
	ready bool
	err   error
}

// fakeDevice simulates a V4L2 driver: queued buffers are "filled" in
// FIFO order and become ready for dequeue immediately.
type fakeDevice struct {
	caps    v4l2.Capability
	capsErr error

	cropErr    error
	setCropErr error
	cropCalls  int

	active     v4l2.PixFormat
	negotiated v4l2.PixFormat
	fmtErr     error
	setFmtReq  *v4l2.PixFormat

	requested uint32
	granted   uint32
	reqErr    error

	bufLen     uint32
	queryErr   error
	mapFailAt  int
	mapped     map[*byte]uint32
	unmapped   []uint32
	unmapErr   error
	queueErr   error
	queueFrom  int // queueErr applies from this Queue call on
	queueCalls int

	queued    []uint32
	bytesUsed uint32
	fill      func(index uint32, b []byte)
	buffers   map[uint32][]byte
	dqErrs    []error

	waits        []waitResult
	waitTimeouts []time.Duration

	streamOnErr  error
	streamOffErr error
	streaming    bool
	streamOffs   int
	closeErr     error
	closed       int
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		caps: v4l2.Capability{
			Driver:       "fake",
			Card:         "Fake Camera",
			Capabilities: v4l2.CapVideoCapture | v4l2.CapStreaming,
		},
		active: v4l2.PixFormat{
			Width: 320, Height: 240, PixelFormat: v4l2.PixFmtZ16Y8,
			BytesPerLine: 960, SizeImage: 320 * 240 * 3,
		},
		negotiated: v4l2.PixFormat{
			Width: 640, Height: 480, PixelFormat: v4l2.PixFmtYUYV,
			Field: v4l2.FieldInterlaced, BytesPerLine: 1280, SizeImage: 640 * 480 * 2,
		},
		granted:   4,
		bufLen:    fakePageSize,
		mapFailAt: -1,
		queueFrom: -1,
		mapped:    map[*byte]uint32{},
		buffers:   map[uint32][]byte{},
	}
}

func (d *fakeDevice) opener() Opener {
	return func(string) (Device, error) { return d, nil }
}

func (d *fakeDevice) QueryCapability() (v4l2.Capability, error) { return d.caps, d.capsErr }

func (d *fakeDevice) CropCapability() (v4l2.Rect, error) {
	if d.cropErr != nil {
		return v4l2.Rect{}, d.cropErr
	}
	return v4l2.Rect{Width: 640, Height: 480}, nil
}

func (d *fakeDevice) SetCrop(v4l2.Rect) error {
	d.cropCalls++
	return d.setCropErr
}

func (d *fakeDevice) Format() (v4l2.PixFormat, error) { return d.active, d.fmtErr }

func (d *fakeDevice) SetFormat(f v4l2.PixFormat) (v4l2.PixFormat, error) {
	d.setFmtReq = &f
	if d.fmtErr != nil {
		return v4l2.PixFormat{}, d.fmtErr
	}
	return d.negotiated, nil
}

func (d *fakeDevice) RequestBuffers(count uint32) (uint32, error) {
	d.requested = count
	if d.reqErr != nil {
		return 0, d.reqErr
	}
	return d.granted, nil
}

func (d *fakeDevice) QueryBuffer(index uint32) (v4l2.BufferInfo, error) {
	if d.queryErr != nil {
		return v4l2.BufferInfo{}, d.queryErr
	}
	return v4l2.BufferInfo{Index: index, Offset: index * fakePageSize, Length: d.bufLen}, nil
}

func (d *fakeDevice) Map(offset, length uint32) ([]byte, error) {
	index := offset / fakePageSize
	if int(index) == d.mapFailAt {
		return nil, syscall.ENOMEM
	}
	b := make([]byte, length)
	d.mapped[&b[0]] = index
	d.buffers[index] = b
	return b, nil
}

func (d *fakeDevice) Unmap(b []byte) error {
	d.unmapped = append(d.unmapped, d.mapped[&b[0]])
	return d.unmapErr
}

func (d *fakeDevice) Queue(index uint32) error {
	call := d.queueCalls
	d.queueCalls++
	if d.queueErr != nil && call >= d.queueFrom {
		return d.queueErr
	}
	d.queued = append(d.queued, index)
	return nil
}

func (d *fakeDevice) Dequeue() (v4l2.BufferInfo, error) {
	if len(d.dqErrs) > 0 {
		err := d.dqErrs[0]
		d.dqErrs = d.dqErrs[1:]
		return v4l2.BufferInfo{}, err
	}
	if len(d.queued) == 0 {
		return v4l2.BufferInfo{}, syscall.EAGAIN
	}
	index := d.queued[0]
	d.queued = d.queued[1:]
	if d.fill != nil {
		d.fill(index, d.buffers[index])
	}
	return v4l2.BufferInfo{Index: index, Length: d.bufLen, BytesUsed: d.bytesUsed}, nil
}

func (d *fakeDevice) StreamOn() error {
	if d.streamOnErr != nil {
		return d.streamOnErr
	}
	d.streaming = true
	return nil
}

func (d *fakeDevice) StreamOff() error {
	d.streamOffs++
	d.streaming = false
	return d.streamOffErr
}

func (d *fakeDevice) Wait(timeout time.Duration) (bool, error) {
	d.waitTimeouts = append(d.waitTimeouts, timeout)
	if len(d.waits) > 0 {
		w := d.waits[0]
		d.waits = d.waits[1:]
		return w.ready, w.err
	}
	return len(d.queued) > 0, nil
}

func (d *fakeDevice) Close() error {
	d.closed++
	return d.closeErr
}
