package capture

import (
	"errors"
	"fmt"
	"syscall"

	"go.uber.org/zap"
)

// State is the ownership state of one capture buffer.
type State int

const (
	// StateFree means the buffer is not queued: only during setup and teardown.
	StateFree State = iota
	// StateQueued means the driver owns the buffer and may fill it at any time.
	StateQueued
	// StateFilled means the application exclusively owns the buffer.
	StateFilled
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateQueued:
		return "queued"
	case StateFilled:
		return "filled"
	default:
		return "unknown"
	}
}

// Buffer is one kernel-shared region of a Pool.
type Buffer struct {
	index uint32
	data  []byte
	state State
	used  int
}

// Index returns the driver's slot index.
func (b *Buffer) Index() int { return int(b.index) }

// Cap returns the mapped length.
func (b *Buffer) Cap() int { return len(b.data) }

// State returns the current ownership state.
func (b *Buffer) State() State { return b.state }

// Bytes returns the bytes the driver produced. It is nil unless the
// application currently owns the buffer.
func (b *Buffer) Bytes() []byte {
	if b.state != StateFilled {
		return nil
	}
	return b.data[:b.used]
}

var errBufferHeld = errors.New("a dequeued buffer has not been requeued")

// Pool is the fixed ring of mapped buffers of one device.
type Pool struct {
	dev    bufferDevice
	log    *zap.SugaredLogger
	bufs   []*Buffer
	filled *Buffer
}

// newPool requests count buffers and maps every granted slot. On failure
// everything mapped so far is released.
func newPool(dev bufferDevice, log *zap.SugaredLogger, count uint32) (*Pool, error) {
	granted, err := dev.RequestBuffers(count)
	if err != nil {
		if errors.Is(err, syscall.EINVAL) {
			return nil, fmt.Errorf("%w: memory mapping not supported", ErrNotCaptureDevice)
		}
		return nil, fmt.Errorf("%w: VIDIOC_REQBUFS: %w", ErrInsufficientBuffers, err)
	}
	if granted < minBuffers {
		return nil, fmt.Errorf("%w: granted %d of %d", ErrInsufficientBuffers, granted, count)
	}

	p := &Pool{dev: dev, log: log, bufs: make([]*Buffer, 0, granted)}
	for i := uint32(0); i < granted; i++ {
		info, err := dev.QueryBuffer(i)
		if err != nil {
			p.release()
			return nil, fmt.Errorf("%w: VIDIOC_QUERYBUF %d: %w", ErrMappingFailed, i, err)
		}
		data, err := dev.Map(info.Offset, info.Length)
		if err != nil {
			p.release()
			return nil, fmt.Errorf("%w: mmap buffer %d: %w", ErrMappingFailed, i, err)
		}
		p.bufs = append(p.bufs, &Buffer{index: i, data: data})
	}
	return p, nil
}

// Len returns the number of buffers in the ring.
func (p *Pool) Len() int { return len(p.bufs) }

// Queued returns how many buffers the driver currently owns.
func (p *Pool) Queued() int {
	n := 0
	for _, b := range p.bufs {
		if b.state == StateQueued {
			n++
		}
	}
	return n
}

// Buffer returns the buffer at slot i.
func (p *Pool) Buffer(i int) *Buffer { return p.bufs[i] }

func (p *Pool) queueAll() error {
	for _, b := range p.bufs {
		if err := p.dev.Queue(b.index); err != nil {
			return fmt.Errorf("VIDIOC_QBUF %d: %w", b.index, err)
		}
		b.state = StateQueued
	}
	return nil
}

// dequeue takes one filled buffer from the driver. Driver errors, EAGAIN
// included, are returned unwrapped.
func (p *Pool) dequeue() (*Buffer, error) {
	if p.filled != nil {
		return nil, fmt.Errorf("buffer %d: %w", p.filled.index, errBufferHeld)
	}
	info, err := p.dev.Dequeue()
	if err != nil {
		return nil, err
	}
	if int(info.Index) >= len(p.bufs) {
		return nil, fmt.Errorf("driver returned buffer %d of %d", info.Index, len(p.bufs))
	}
	b := p.bufs[info.Index]
	b.used = int(info.BytesUsed)
	if b.used > len(b.data) {
		b.used = len(b.data)
	}
	b.state = StateFilled
	p.filled = b
	return b, nil
}

// requeue hands a consumed buffer back to the driver. A buffer that cannot
// be requeued leaves circulation.
func (p *Pool) requeue(b *Buffer) error {
	p.filled = nil
	b.used = 0
	if err := p.dev.Queue(b.index); err != nil {
		b.state = StateFree
		return err
	}
	b.state = StateQueued
	return nil
}

// release unmaps every buffer. Failures are logged and do not stop the sweep.
func (p *Pool) release() {
	for _, b := range p.bufs {
		if b.data == nil {
			continue
		}
		if err := p.dev.Unmap(b.data); err != nil {
			p.log.Warnw("munmap failed", "index", b.index, "error", err)
		}
		b.data = nil
		b.state = StateFree
	}
	p.filled = nil
}
